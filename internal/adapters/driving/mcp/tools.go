package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tabula-labs/tabula/internal/core/domain"
)

// FileInput is one data file passed to the analyse tool. Exactly one of
// Content and ContentBase64 is expected; binary spreadsheets need base64.
type FileInput struct {
	Name          string `json:"name" jsonschema:"file name, used to infer the format from its extension"`
	Format        string `json:"format,omitempty" jsonschema:"spreadsheet, csv, json, yaml or text; inferred from name when empty"`
	Sheet         string `json:"sheet,omitempty" jsonschema:"worksheet of a spreadsheet; the first sheet when empty"`
	Content       string `json:"content,omitempty" jsonschema:"file content as plain text"`
	ContentBase64 string `json:"content_base64,omitempty" jsonschema:"file content encoded as standard base64"`
}

// AnalyseInput is the input schema for the analyse tool.
type AnalyseInput struct {
	Query     string            `json:"query" jsonschema:"the question to answer from the data"`
	Files     []FileInput       `json:"files" jsonschema:"one or more data files"`
	Mode      string            `json:"mode,omitempty" jsonschema:"single, mixed, concat or join; mixed for several files when empty"`
	JoinOn    string            `json:"join_on,omitempty" jsonschema:"key column shared by both files, required for join"`
	JoinHow   string            `json:"join_how,omitempty" jsonschema:"inner, left, right or outer; inner when empty"`
	Provider  string            `json:"provider,omitempty" jsonschema:"deepseek, openai, claude or custom; the configured default when empty"`
	Model     string            `json:"model,omitempty" jsonschema:"model name; the provider default when empty"`
	Endpoint  string            `json:"endpoint,omitempty" jsonschema:"base URL override, required for custom"`
	APIKey    string            `json:"api_key,omitempty" jsonschema:"API key; the configured key when empty"`
	Headers   map[string]string `json:"headers,omitempty" jsonschema:"custom provider headers; {{api_key}} is replaced by the key"`
	SessionID string            `json:"session_id,omitempty" jsonschema:"history session to record under"`
}

// ChartOutput is one chart directive. Values are numbers, strings or null.
type ChartOutput struct {
	Kind   string      `json:"kind"`
	Title  string      `json:"title,omitempty"`
	Source string      `json:"source,omitempty"`
	X      string      `json:"x"`
	Y      []string    `json:"y"`
	Rows   []RowOutput `json:"rows"`
}

// RowOutput is one labelled row of a chart.
type RowOutput struct {
	Label  string `json:"label"`
	Values []any  `json:"values"`
}

// AnalyseOutput is the output schema for the analyse tool.
type AnalyseOutput struct {
	Success        bool          `json:"success"`
	Insight        string        `json:"insight"`
	Charts         []ChartOutput `json:"charts"`
	Warnings       []string      `json:"warnings,omitempty"`
	ErrorKind      string        `json:"error_kind,omitempty"`
	ErrorDetail    string        `json:"error_detail,omitempty"`
	Attempts       int           `json:"attempts"`
	HistoryID      string        `json:"history_id,omitempty"`
	StorageWarning string        `json:"storage_warning,omitempty"`
}

// HistoryListInput is the input schema for the history_list tool.
type HistoryListInput struct {
	Provider  string `json:"provider,omitempty" jsonschema:"only records from this provider"`
	SessionID string `json:"session_id,omitempty" jsonschema:"only records from this session"`
	Status    string `json:"status,omitempty" jsonschema:"ok or failed"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum number of records (default 50)"`
}

// HistoryEntry summarises one record.
type HistoryEntry struct {
	ID        string   `json:"id"`
	Timestamp string   `json:"timestamp"`
	Query     string   `json:"query"`
	Provider  string   `json:"provider"`
	Model     string   `json:"model"`
	SessionID string   `json:"session_id"`
	Files     []string `json:"files"`
	Success   bool     `json:"success"`
	ErrorKind string   `json:"error_kind,omitempty"`
	Insight   string   `json:"insight,omitempty"`
}

// HistoryListOutput is the output schema for the history_list tool.
type HistoryListOutput struct {
	Records []HistoryEntry `json:"records"`
	Count   int            `json:"count"`
}

// HistoryStatsInput is the (empty) input schema for the history_stats tool.
type HistoryStatsInput struct{}

// HistoryStatsOutput is the output schema for the history_stats tool.
type HistoryStatsOutput struct {
	Total            int            `json:"total"`
	Succeeded        int            `json:"succeeded"`
	Failed           int            `json:"failed"`
	Sessions         int            `json:"sessions"`
	LastSevenDays    int            `json:"last_seven_days"`
	PerProvider      map[string]int `json:"per_provider"`
	PerFormat        map[string]int `json:"per_format"`
	MostUsedProvider string         `json:"most_used_provider,omitempty"`
	Earliest         string         `json:"earliest,omitempty"`
	Latest           string         `json:"latest,omitempty"`
}

// HistoryClearInput is the input schema for the history_clear tool.
type HistoryClearInput struct {
	Confirm bool `json:"confirm" jsonschema:"must be true to delete every record"`
}

// HistoryClearOutput is the output schema for the history_clear tool.
type HistoryClearOutput struct {
	Cleared bool `json:"cleared"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "analyse",
		Description: "Answer a question about one or more data files (spreadsheet, CSV, JSON, YAML or text) with an insight and optional charts",
	}, s.handleAnalyse)

	if s.ports.History == nil {
		return
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "history_list",
		Description: "List past analyses, newest first",
	}, s.handleHistoryList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "history_stats",
		Description: "Summarise the analysis history",
	}, s.handleHistoryStats)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "history_clear",
		Description: "Delete every analysis history record",
	}, s.handleHistoryClear)
}

// handleAnalyse handles the analyse tool invocation. A failed analysis is
// not a tool error: it is reported through success and error_kind.
func (s *Server) handleAnalyse(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AnalyseInput,
) (*mcp.CallToolResult, AnalyseOutput, error) {
	files := make([]domain.FilePayload, len(input.Files))
	for i, f := range input.Files {
		data := []byte(f.Content)
		if f.ContentBase64 != "" {
			decoded, err := base64.StdEncoding.DecodeString(f.ContentBase64)
			if err != nil {
				return nil, AnalyseOutput{}, fmt.Errorf("decoding %s: %w", f.Name, err)
			}
			data = decoded
		}
		files[i] = domain.FilePayload{
			Name:   f.Name,
			Format: domain.Format(f.Format),
			Sheet:  f.Sheet,
			Data:   data,
		}
	}

	result := s.ports.Analysis.RunAnalysis(ctx, domain.AnalysisRequest{
		Files: files,
		Mode:  domain.IngestMode(input.Mode),
		Join:  domain.JoinSpec{Column: input.JoinOn, Type: domain.JoinType(input.JoinHow)},
		Query: input.Query,
		Backend: domain.BackendConfig{
			Provider:    domain.Provider(input.Provider),
			Endpoint:    input.Endpoint,
			APIKey:      input.APIKey,
			Model:       input.Model,
			Temperature: domain.DefaultTemperature,
			Headers:     input.Headers,
		},
		SessionID: input.SessionID,
	})

	return nil, toAnalyseOutput(result), nil
}

func toAnalyseOutput(result domain.AnalysisResult) AnalyseOutput {
	out := AnalyseOutput{
		Success:        result.Success,
		Insight:        result.Insight,
		Charts:         make([]ChartOutput, len(result.Charts)),
		Warnings:       result.Warnings,
		ErrorKind:      string(result.ErrorKind),
		ErrorDetail:    result.ErrorDetail,
		Attempts:       result.Attempts,
		HistoryID:      result.HistoryID,
		StorageWarning: result.StorageWarning,
	}
	for i, c := range result.Charts {
		rows := make([]RowOutput, len(c.Rows))
		for j, r := range c.Rows {
			values := make([]any, len(r.Values))
			for k, v := range r.Values {
				values[k] = cellValue(v)
			}
			rows[j] = RowOutput{Label: r.Label, Values: values}
		}
		out.Charts[i] = ChartOutput{
			Kind:   string(c.Kind),
			Title:  c.Title,
			Source: c.Source,
			X:      c.X,
			Y:      c.Y,
			Rows:   rows,
		}
	}
	return out
}

// cellValue keeps a number's source digits by passing its JSON encoding
// through unchanged.
func cellValue(c domain.Cell) any {
	if c.IsNull() {
		return nil
	}
	raw, err := c.MarshalJSON()
	if err != nil {
		return c.String()
	}
	return json.RawMessage(raw)
}

// handleHistoryList handles the history_list tool invocation.
func (s *Server) handleHistoryList(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input HistoryListInput,
) (*mcp.CallToolResult, HistoryListOutput, error) {
	if s.ports.History == nil {
		return nil, HistoryListOutput{}, ErrHistoryUnavailable
	}

	filter := domain.HistoryFilter{
		Provider:  domain.Provider(input.Provider),
		SessionID: input.SessionID,
		Limit:     input.Limit,
	}
	switch input.Status {
	case "":
	case "ok":
		ok := true
		filter.Success = &ok
	case "failed":
		failed := false
		filter.Success = &failed
	default:
		return nil, HistoryListOutput{}, fmt.Errorf("unknown status %q (want ok or failed)", input.Status)
	}

	records, err := s.ports.History.List(ctx, filter)
	if err != nil {
		return nil, HistoryListOutput{}, err
	}

	output := HistoryListOutput{
		Records: make([]HistoryEntry, len(records)),
		Count:   len(records),
	}
	for i := range records {
		output.Records[i] = toHistoryEntry(&records[i])
	}
	return nil, output, nil
}

func toHistoryEntry(r *domain.HistoryRecord) HistoryEntry {
	files := make([]string, len(r.Files))
	for i, f := range r.Files {
		files[i] = f.Name
	}
	return HistoryEntry{
		ID:        r.ID,
		Timestamp: r.Timestamp.UTC().Format(time.RFC3339Nano),
		Query:     r.Query,
		Provider:  string(r.Provider),
		Model:     r.Model,
		SessionID: r.SessionID,
		Files:     files,
		Success:   r.Success,
		ErrorKind: string(r.ErrorKind),
		Insight:   r.Result.Insight,
	}
}

// handleHistoryStats handles the history_stats tool invocation.
func (s *Server) handleHistoryStats(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ HistoryStatsInput,
) (*mcp.CallToolResult, HistoryStatsOutput, error) {
	if s.ports.History == nil {
		return nil, HistoryStatsOutput{}, ErrHistoryUnavailable
	}

	stats, err := s.ports.History.Stats(ctx)
	if err != nil {
		return nil, HistoryStatsOutput{}, err
	}

	output := HistoryStatsOutput{
		Total:            stats.TotalCount,
		Succeeded:        stats.SuccessCount,
		Failed:           stats.FailureCount,
		Sessions:         stats.SessionCount,
		LastSevenDays:    stats.RecentCount,
		PerProvider:      make(map[string]int, len(stats.PerProvider)),
		PerFormat:        make(map[string]int, len(stats.PerFormat)),
		MostUsedProvider: string(stats.MostUsedProvider),
	}
	for p, n := range stats.PerProvider {
		output.PerProvider[string(p)] = n
	}
	for f, n := range stats.PerFormat {
		output.PerFormat[string(f)] = n
	}
	if !stats.Earliest.IsZero() {
		output.Earliest = stats.Earliest.UTC().Format(time.RFC3339Nano)
		output.Latest = stats.Latest.UTC().Format(time.RFC3339Nano)
	}
	return nil, output, nil
}

// handleHistoryClear handles the history_clear tool invocation.
func (s *Server) handleHistoryClear(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input HistoryClearInput,
) (*mcp.CallToolResult, HistoryClearOutput, error) {
	if s.ports.History == nil {
		return nil, HistoryClearOutput{}, ErrHistoryUnavailable
	}
	if !input.Confirm {
		return nil, HistoryClearOutput{}, ErrClearNotConfirmed
	}
	if err := s.ports.History.ClearAll(ctx); err != nil {
		return nil, HistoryClearOutput{}, err
	}
	return nil, HistoryClearOutput{Cleared: true}, nil
}
