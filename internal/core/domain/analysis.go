package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// AnalysisRequest is one query against one or more files. It is transient.
type AnalysisRequest struct {
	// Files are raw uploads, normalised by the engine.
	Files []FilePayload

	// Datasets are already normalised inputs. Used when Files is empty.
	Datasets []*Dataset

	// Mode controls how Files become datasets. Empty means single for one
	// file and mixed for several.
	Mode IngestMode

	// Join configures IngestJoin. Ignored by the other modes.
	Join JoinSpec

	// Query is the user's free-text question.
	Query string

	// Backend selects and configures the model backend.
	Backend BackendConfig

	// SessionID groups records in history. Empty means "default".
	SessionID string
}

// DefaultSessionID is stored when a request carries no session.
const DefaultSessionID = "default"

// ChartKind is the visualisation a directive asks for.
type ChartKind string

// Available chart kinds.
const (
	ChartBar   ChartKind = "bar"
	ChartLine  ChartKind = "line"
	ChartTable ChartKind = "table"
)

// IsValid returns true if the chart kind is recognised.
func (k ChartKind) IsValid() bool {
	switch k {
	case ChartBar, ChartLine, ChartTable:
		return true
	default:
		return false
	}
}

// IsNumeric returns true if the kind plots numeric series.
func (k ChartKind) IsNumeric() bool {
	return k == ChartBar || k == ChartLine
}

// DataRow is one labelled row of a chart's series.
type DataRow struct {
	Label  string `json:"label"`
	Values []Cell `json:"values"`
}

// ChartDirective is a structured instruction for a chart or table,
// extracted from the model response. Every field it names exists in the
// dataset it was resolved against.
type ChartDirective struct {
	Kind   ChartKind `json:"kind"`
	Title  string    `json:"title,omitempty"`
	Source string    `json:"source,omitempty"`
	X      string    `json:"x"`
	Y      []string  `json:"y"`
	Rows   []DataRow `json:"rows"`
}

// AnalysisResult is the outcome of one orchestrated analysis. Failures are
// reported through Success and ErrorKind rather than a Go error.
type AnalysisResult struct {
	Success     bool             `json:"success"`
	Insight     string           `json:"insight"`
	Charts      []ChartDirective `json:"charts"`
	Warnings    []string         `json:"warnings,omitempty"`
	RawResponse string           `json:"raw_response,omitempty"`
	ErrorKind   ErrorKind        `json:"error_kind,omitempty"`
	ErrorDetail string           `json:"error_detail,omitempty"`
	Attempts    int              `json:"attempts"`

	// HistoryID is the id of the record written for this result, if any.
	HistoryID string `json:"history_id,omitempty"`

	// StorageWarning reports a failed history write. It never changes
	// Success.
	StorageWarning string `json:"storage_warning,omitempty"`
}

// FailedResult builds an unsuccessful result from err.
func FailedResult(err error, attempts int) AnalysisResult {
	kind := ClassifyError(err)
	return AnalysisResult{
		Success:     false,
		Charts:      []ChartDirective{},
		ErrorKind:   kind,
		ErrorDetail: fmt.Sprintf("%s %v", DescribeError(kind), err),
		Attempts:    attempts,
	}
}

// MarshalJSON encodes null as null, numbers as their source digits and
// strings as JSON strings. Numbers whose source text is not valid JSON
// (".5", "+1") are written as strings to keep the digits intact.
func (c Cell) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case CellNull:
		return []byte("null"), nil
	case CellNumber:
		if isJSONNumber(c.Text) {
			return []byte(c.Text), nil
		}
		return json.Marshal(c.Text)
	default:
		return json.Marshal(c.Text)
	}
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (c *Cell) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case bytes.Equal(trimmed, []byte("null")):
		*c = NullCell()
		return nil
	case len(trimmed) > 0 && trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*c = StringCell(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return fmt.Errorf("cell: %w", err)
		}
		*c = NumberCell(strings.TrimSpace(n.String()))
		return nil
	}
}

func isJSONNumber(s string) bool {
	if s == "" || !(s[0] == '-' || (s[0] >= '0' && s[0] <= '9')) {
		return false
	}
	var n json.Number
	return json.Valid([]byte(s)) && json.Unmarshal([]byte(s), &n) == nil
}
