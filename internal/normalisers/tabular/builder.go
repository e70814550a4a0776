package tabular

import (
	"fmt"
	"strings"

	"github.com/tabula-labs/tabula/internal/core/domain"
)

// SourceColumn is the column Concat adds to record each row's origin.
const SourceColumn = "source_file"

// Build converts rows of raw strings into a dataset. The caller sets
// SizeBytes and Sheet on the result.
func Build(name string, format domain.Format, rows [][]string) *domain.Dataset {
	rows = dropBlank(rows)
	ds := &domain.Dataset{Name: name, Format: format}
	if len(rows) == 0 {
		return ds
	}

	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}

	var header []string
	data := rows
	if IsHeader(rows[0]) {
		header = rows[0]
		data = rows[1:]
	}

	names := ColumnNames(header, width)
	ds.Columns = make([]domain.Column, width)
	for i := range ds.Columns {
		ds.Columns[i] = domain.Column{Name: names[i], Cells: make([]domain.Cell, len(data))}
	}
	for r, row := range data {
		for c := 0; c < width; c++ {
			if c < len(row) {
				ds.Columns[c].Cells[r] = domain.InferCell(row[c])
			} else {
				ds.Columns[c].Cells[r] = domain.NullCell()
			}
		}
	}
	return ds
}

// IsHeader applies the header rule to a candidate first row.
func IsHeader(row []string) bool {
	seen := make(map[string]bool, len(row))
	nonEmpty := 0
	for _, cell := range row {
		v := strings.TrimSpace(cell)
		if v == "" {
			continue
		}
		if domain.IsNumeric(v) || seen[v] {
			return false
		}
		seen[v] = true
		nonEmpty++
	}
	return nonEmpty > 0
}

// ColumnNames returns width unique names, taken from header where present
// and synthetic (col_N, 1-based) elsewhere.
func ColumnNames(header []string, width int) []string {
	names := make([]string, width)
	used := make(map[string]bool, width)
	for i := 0; i < width; i++ {
		name := ""
		if i < len(header) {
			name = strings.TrimSpace(header[i])
		}
		if name == "" {
			name = fmt.Sprintf("col_%d", i+1)
		}
		names[i] = Unique(name, used)
	}
	return names
}

// Unique returns name, or name_2, name_3... if it is already in used, and
// marks the result as used. Names are compared ignoring case, so used is
// keyed by lower-cased names.
func Unique(name string, used map[string]bool) string {
	candidate := name
	for n := 2; used[strings.ToLower(candidate)]; n++ {
		candidate = fmt.Sprintf("%s_%d", name, n)
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

func dropBlank(rows [][]string) [][]string {
	out := rows[:0:0]
	for _, r := range rows {
		for _, cell := range r {
			if strings.TrimSpace(cell) != "" {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// Concat stacks datasets into one. Columns are the union of all column
// names in first-appearance order, matched ignoring case, followed by
// SourceColumn holding each row's originating file name. Missing cells are
// null.
func Concat(name string, datasets []*domain.Dataset) *domain.Dataset {
	var names []string
	index := make(map[string]int)
	var size int64
	total := 0
	for _, ds := range datasets {
		for _, c := range ds.Columns {
			key := strings.ToLower(c.Name)
			if _, ok := index[key]; !ok {
				index[key] = len(names)
				names = append(names, c.Name)
			}
		}
		size += ds.SizeBytes
		total += ds.RowCount()
	}

	used := make(map[string]bool, len(names))
	for _, n := range names {
		used[strings.ToLower(n)] = true
	}
	source := Unique(SourceColumn, used)

	out := &domain.Dataset{Name: name, Format: domain.FormatCSV, SizeBytes: size}
	if len(datasets) > 0 {
		out.Format = datasets[0].Format
	}
	out.Columns = make([]domain.Column, len(names)+1)
	for i, n := range names {
		out.Columns[i] = domain.Column{Name: n, Cells: make([]domain.Cell, 0, total)}
	}
	out.Columns[len(names)] = domain.Column{Name: source, Cells: make([]domain.Cell, 0, total)}

	for _, ds := range datasets {
		rows := ds.RowCount()
		for i := range names {
			col, ok := ds.Column(names[i])
			for r := 0; r < rows; r++ {
				cell := domain.NullCell()
				if ok {
					cell = col.Cells[r]
				}
				out.Columns[i].Cells = append(out.Columns[i].Cells, cell)
			}
		}
		for r := 0; r < rows; r++ {
			out.Columns[len(names)].Cells = append(out.Columns[len(names)].Cells, domain.StringCell(ds.Name))
		}
	}
	return out
}
