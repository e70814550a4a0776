package domain

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Format tags the kind of file a payload holds.
type Format string

// Supported formats.
const (
	// FormatSpreadsheet covers the .xlsx family and legacy .xls workbooks.
	FormatSpreadsheet Format = "spreadsheet"

	// FormatCSV covers comma, semicolon and tab separated text.
	FormatCSV Format = "csv"

	// FormatJSON is structured records encoded as JSON.
	FormatJSON Format = "json"

	// FormatYAML is structured records encoded as YAML.
	FormatYAML Format = "yaml"

	// FormatText is free-form text.
	FormatText Format = "text"
)

// IsValid returns true if the format is recognised.
func (f Format) IsValid() bool {
	switch f {
	case FormatSpreadsheet, FormatCSV, FormatJSON, FormatYAML, FormatText:
		return true
	default:
		return false
	}
}

// IsTabular returns true for formats that are parsed row by row.
func (f Format) IsTabular() bool {
	return f == FormatSpreadsheet || f == FormatCSV
}

// String returns the string representation.
func (f Format) String() string {
	return string(f)
}

// AllFormats returns every supported format.
func AllFormats() []Format {
	return []Format{FormatSpreadsheet, FormatCSV, FormatJSON, FormatYAML, FormatText}
}

var extensionFormats = map[string]Format{
	".xlsx": FormatSpreadsheet,
	".xlsm": FormatSpreadsheet,
	".xltx": FormatSpreadsheet,
	".xltm": FormatSpreadsheet,
	".xls":  FormatSpreadsheet,
	".csv":  FormatCSV,
	".tsv":  FormatCSV,
	".json": FormatJSON,
	".yaml": FormatYAML,
	".yml":  FormatYAML,
	".txt":  FormatText,
	".md":   FormatText,
	".log":  FormatText,
}

// InferFormat derives a format tag from a filename extension.
// It returns ErrUnsupportedFormat for unknown extensions.
func InferFormat(name string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if f, ok := extensionFormats[ext]; ok {
		return f, nil
	}
	return "", unsupported(Format(ext))
}

func unsupported(f Format) error {
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
}

// CellKind distinguishes the scalar kinds a cell can hold.
type CellKind int

const (
	// CellNull is an absent value.
	CellNull CellKind = iota

	// CellString is a text value.
	CellString

	// CellNumber is a numeric value. The source text is kept verbatim.
	CellNumber
)

// String returns the kind name used in data descriptions.
func (k CellKind) String() string {
	switch k {
	case CellString:
		return "string"
	case CellNumber:
		return "number"
	default:
		return "null"
	}
}

// Cell is a single scalar value. Numbers keep their source text so that
// re-serialising a cell never changes its digits.
type Cell struct {
	Kind CellKind
	Text string
}

// NullCell returns an absent value.
func NullCell() Cell { return Cell{Kind: CellNull} }

// StringCell returns a text value.
func StringCell(s string) Cell { return Cell{Kind: CellString, Text: s} }

// NumberCell returns a numeric value holding its source text.
func NumberCell(text string) Cell { return Cell{Kind: CellNumber, Text: text} }

// InferCell classifies raw text from a tabular source: empty is null,
// anything strconv parses as a finite float is a number, the rest is text.
func InferCell(raw string) Cell {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return NullCell()
	}
	if IsNumeric(trimmed) {
		return NumberCell(trimmed)
	}
	return StringCell(raw)
}

// IsNumeric reports whether s is a plain finite number.
func IsNumeric(s string) bool {
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return false
	}
	// ParseFloat accepts "Inf" and "NaN"; those are labels, not data.
	lower := strings.ToLower(s)
	return !strings.Contains(lower, "inf") && !strings.Contains(lower, "nan")
}

// IsNull returns true for an absent value.
func (c Cell) IsNull() bool { return c.Kind == CellNull }

// Float returns the numeric value and whether the cell is a number.
func (c Cell) Float() (float64, bool) {
	if c.Kind != CellNumber {
		return 0, false
	}
	v, err := strconv.ParseFloat(c.Text, 64)
	return v, err == nil
}

// String returns the cell as text. Null renders as the empty string.
func (c Cell) String() string {
	return c.Text
}

// Column is a named, ordered sequence of cells.
type Column struct {
	Name  string
	Cells []Cell
}

// Type summarises the kinds present in the column: "number", "string",
// "mixed" or "empty" when every cell is null.
func (c Column) Type() string {
	var numbers, strs int
	for _, cell := range c.Cells {
		switch cell.Kind {
		case CellNumber:
			numbers++
		case CellString:
			strs++
		}
	}
	switch {
	case numbers == 0 && strs == 0:
		return "empty"
	case strs == 0:
		return "number"
	case numbers == 0:
		return "string"
	default:
		return "mixed"
	}
}

// Dataset is the canonical, format-independent view of one uploaded file
// (or of several files merged). It is never modified after a normaliser
// returns it.
type Dataset struct {
	// Name is the originating filename.
	Name string

	// Format is the source format.
	Format Format

	// Sheet is the worksheet the data came from, spreadsheets only.
	Sheet string

	// Columns in source order. All columns have the same length.
	Columns []Column

	// RawText holds the original content for free-text sources.
	RawText string

	// SizeBytes is the size of the source payload.
	SizeBytes int64
}

// RowCount returns the number of rows.
func (d *Dataset) RowCount() int {
	if len(d.Columns) == 0 {
		return 0
	}
	return len(d.Columns[0].Cells)
}

// ColumnNames returns the column names in order.
func (d *Dataset) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// Row returns the cells of row i across all columns.
func (d *Dataset) Row(i int) []Cell {
	row := make([]Cell, len(d.Columns))
	for j, c := range d.Columns {
		row[j] = c.Cells[i]
	}
	return row
}

// Column looks a column up by name, ignoring case.
func (d *Dataset) Column(name string) (*Column, bool) {
	for i := range d.Columns {
		if strings.EqualFold(d.Columns[i].Name, name) {
			return &d.Columns[i], true
		}
	}
	return nil, false
}

// Validate checks that column names are unique, ignoring case as Column
// does, and that lengths agree.
func (d *Dataset) Validate() error {
	seen := make(map[string]bool, len(d.Columns))
	rows := d.RowCount()
	for _, c := range d.Columns {
		if c.Name == "" {
			return fmt.Errorf("%w: empty column name in %s", ErrInvalidInput, d.Name)
		}
		key := strings.ToLower(c.Name)
		if seen[key] {
			return fmt.Errorf("%w: duplicate column %q in %s", ErrInvalidInput, c.Name, d.Name)
		}
		seen[key] = true
		if len(c.Cells) != rows {
			return fmt.Errorf("%w: column %q has %d cells, want %d", ErrInvalidInput, c.Name, len(c.Cells), rows)
		}
	}
	return nil
}

// FileRef summarises a dataset for history records.
func (d *Dataset) FileRef() FileRef {
	return FileRef{
		Name:      d.Name,
		Format:    d.Format,
		Sheet:     d.Sheet,
		SizeBytes: d.SizeBytes,
		Rows:      d.RowCount(),
		Columns:   len(d.Columns),
	}
}
