package services

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tabula-labs/tabula/internal/core/domain"
)

// ParseOutput is the result of extracting insight and chart directives
// from a raw model response.
type ParseOutput struct {
	Insight  string
	Charts   []domain.ChartDirective
	Warnings []string
}

// ResponseParser extracts chart blocks from free-form model output.
// Extraction is best effort: a block that cannot be used is skipped with
// exactly one warning and never aborts the parse.
type ResponseParser struct{}

// NewResponseParser creates a response parser.
func NewResponseParser() *ResponseParser {
	return &ResponseParser{}
}

// block is one fenced chart section before validation.
type block struct {
	index      int
	lines      []string
	terminated bool
}

// Parse splits raw into insight text and validated chart directives.
// Field names are matched case-insensitively against datasets, in order.
func (p *ResponseParser) Parse(raw string, datasets []*domain.Dataset) ParseOutput {
	out := ParseOutput{Charts: []domain.ChartDirective{}}

	insight, blocks := splitBlocks(raw)
	if len(blocks) == 0 {
		out.Insight = raw
		return out
	}
	out.Insight = insight

	for _, b := range blocks {
		directive, err := parseBlock(b)
		if err != nil {
			out.Warnings = append(out.Warnings, fmt.Sprintf("chart block %d skipped: %v", b.index, err))
			continue
		}
		if err := resolveFields(&directive, datasets); err != nil {
			out.Warnings = append(out.Warnings, fmt.Sprintf("chart block %d dropped: %v", b.index, err))
			continue
		}
		out.Charts = append(out.Charts, directive)
	}
	return out
}

// splitBlocks separates chart fences from the surrounding text.
//
// A block is closed by a bare fence. A block left open when another fence
// starts, or at the end of the response, is unterminated: it is reported
// as such, and every line after its chart syntax goes back to the text.
func splitBlocks(raw string) (string, []block) {
	var text []string
	var blocks []block
	var current *block
	var currentRaw []string

	closeOpen := func() {
		if current == nil {
			return
		}
		n := chartPrefix(current.lines)
		text = append(text, currentRaw[n:]...)
		current.lines = current.lines[:n]
		blocks = append(blocks, *current)
		current, currentRaw = nil, nil
	}

	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if current != nil {
			if trimmed == "```" {
				current.terminated = true
				blocks = append(blocks, *current)
				current, currentRaw = nil, nil
				continue
			}
			if !strings.HasPrefix(trimmed, "```") {
				current.lines = append(current.lines, trimmed)
				currentRaw = append(currentRaw, line)
				continue
			}
			closeOpen()
		}
		if isChartFence(trimmed) {
			current = &block{index: len(blocks) + 1}
			continue
		}
		text = append(text, line)
	}
	closeOpen()

	return strings.TrimSpace(strings.Join(text, "\n")), blocks
}

// chartPrefix returns how many leading lines still read as chart syntax:
// header lines, then rows whose arity matches y and whose values are
// numbers for numeric kinds.
func chartPrefix(lines []string) int {
	var kind domain.ChartKind
	want := 0
	rows := false
	for i, line := range lines {
		if line == "" {
			continue
		}
		if !rows {
			if key, value, ok := headerLine(line); ok {
				switch key {
				case "type":
					kind = domain.ChartKind(strings.ToLower(value))
				case "y":
					want = 1 + len(splitFields(value))
				}
				continue
			}
		}
		if want == 0 || !rowFits(line, want, kind.IsNumeric()) {
			return i
		}
		rows = true
	}
	return len(lines)
}

func rowFits(line string, want int, numeric bool) bool {
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.LazyQuotes = true
	record, err := r.Read()
	if err != nil || len(record) != want {
		return false
	}
	if numeric {
		for _, v := range record[1:] {
			if !domain.IsNumeric(strings.TrimSpace(v)) {
				return false
			}
		}
	}
	return true
}

func isChartFence(trimmed string) bool {
	if !strings.HasPrefix(trimmed, "```") {
		return false
	}
	info := strings.TrimSpace(strings.TrimLeft(trimmed, "`"))
	return strings.EqualFold(info, domain.ChartFence)
}

var headerKeys = map[string]bool{"type": true, "x": true, "y": true, "title": true, "source": true}

// parseBlock reads header lines (key=value) followed by data rows.
func parseBlock(b block) (domain.ChartDirective, error) {
	var d domain.ChartDirective
	if !b.terminated {
		return d, errors.New("unterminated block")
	}

	var rowLines []string
	for _, line := range b.lines {
		if line == "" {
			continue
		}
		if len(rowLines) == 0 {
			if key, value, ok := headerLine(line); ok {
				switch key {
				case "type":
					d.Kind = domain.ChartKind(strings.ToLower(value))
				case "x":
					d.X = value
				case "y":
					d.Y = splitFields(value)
				case "title":
					d.Title = value
				case "source":
					d.Source = value
				}
				continue
			}
		}
		rowLines = append(rowLines, line)
	}

	switch {
	case d.Kind == "":
		return d, errors.New("missing type")
	case !d.Kind.IsValid():
		return d, fmt.Errorf("unknown type %q", d.Kind)
	case d.X == "":
		return d, errors.New("missing x")
	case len(d.Y) == 0:
		return d, errors.New("missing y")
	case len(rowLines) == 0:
		return d, errors.New("no data rows")
	}

	rows, err := parseRows(rowLines, d)
	if err != nil {
		return d, err
	}
	d.Rows = rows
	return d, nil
}

func headerLine(line string) (string, string, bool) {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return "", "", false
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if !headerKeys[key] {
		return "", "", false
	}
	return key, strings.TrimSpace(value), true
}

func splitFields(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// parseRows reads label,value[,value...] lines. Labels may be quoted.
func parseRows(lines []string, d domain.ChartDirective) ([]domain.DataRow, error) {
	r := csv.NewReader(strings.NewReader(strings.Join(lines, "\n")))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.LazyQuotes = true

	want := 1 + len(d.Y)
	var rows []domain.DataRow
	for n := 1; ; n++ {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %v", n, err)
		}
		if len(record) != want {
			return nil, fmt.Errorf("row %d has %d fields, want %d", n, len(record), want)
		}
		row := domain.DataRow{Label: strings.TrimSpace(record[0]), Values: make([]domain.Cell, len(d.Y))}
		for i, v := range record[1:] {
			v = strings.TrimSpace(v)
			if d.Kind.IsNumeric() {
				if !domain.IsNumeric(v) {
					return nil, fmt.Errorf("row %d: value %q is not a number", n, v)
				}
				row.Values[i] = domain.NumberCell(v)
				continue
			}
			row.Values[i] = domain.InferCell(v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// resolveFields binds the directive to a dataset holding every field it
// names and rewrites the names to the dataset's spelling.
func resolveFields(d *domain.ChartDirective, datasets []*domain.Dataset) error {
	fields := append([]string{d.X}, d.Y...)

	if d.Source != "" {
		ds := findDataset(datasets, d.Source)
		if ds == nil {
			return fmt.Errorf("%w: unknown source %q", domain.ErrDirectiveValidation, d.Source)
		}
		if missing := missingFields(ds, fields); len(missing) > 0 {
			return fmt.Errorf("%w: %s has no column %s", domain.ErrDirectiveValidation, ds.Name, quoteAll(missing))
		}
		bind(d, ds)
		return nil
	}

	for _, ds := range datasets {
		if len(missingFields(ds, fields)) == 0 {
			bind(d, ds)
			return nil
		}
	}

	var missing []string
	for _, f := range fields {
		found := false
		for _, ds := range datasets {
			if _, ok := ds.Column(f); ok {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, f)
		}
	}
	if len(missing) == 0 {
		return fmt.Errorf("%w: columns %s are not in one dataset", domain.ErrDirectiveValidation, quoteAll(fields))
	}
	return fmt.Errorf("%w: unknown column %s", domain.ErrDirectiveValidation, quoteAll(missing))
}

func findDataset(datasets []*domain.Dataset, name string) *domain.Dataset {
	for _, ds := range datasets {
		if strings.EqualFold(ds.Name, name) {
			return ds
		}
	}
	return nil
}

func missingFields(ds *domain.Dataset, fields []string) []string {
	var missing []string
	for _, f := range fields {
		if _, ok := ds.Column(f); !ok {
			missing = append(missing, f)
		}
	}
	return missing
}

func bind(d *domain.ChartDirective, ds *domain.Dataset) {
	col, _ := ds.Column(d.X)
	d.X = col.Name
	for i, y := range d.Y {
		col, _ := ds.Column(y)
		d.Y[i] = col.Name
	}
	d.Source = ds.Name
}

func quoteAll(fields []string) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = fmt.Sprintf("%q", f)
	}
	return strings.Join(quoted, ", ")
}
