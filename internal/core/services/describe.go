package services

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tabula-labs/tabula/internal/core/domain"
)

// DescribeOptions bounds the size of a data description.
type DescribeOptions struct {
	// SampleRows is the number of leading rows included per dataset.
	SampleRows int

	// MaxTextChars truncates RawText of free-text datasets.
	MaxTextChars int
}

// DescribeDatasets renders datasets, in order, into a bounded textual
// description: name, format, counts, column names with inferred types,
// and a CSV sample of the first rows. Full dumps are never produced.
func DescribeDatasets(datasets []*domain.Dataset, opts DescribeOptions) string {
	var b strings.Builder
	for i, ds := range datasets {
		if i > 0 {
			b.WriteString("\n")
		}
		describeDataset(&b, i+1, ds, opts)
	}
	return b.String()
}

func describeDataset(b *strings.Builder, n int, ds *domain.Dataset, opts DescribeOptions) {
	fmt.Fprintf(b, "Dataset %d: %s (%s", n, ds.Name, ds.Format)
	if ds.Sheet != "" {
		fmt.Fprintf(b, ", sheet %q", ds.Sheet)
	}
	b.WriteString(")\n")

	rows := ds.RowCount()
	fmt.Fprintf(b, "Rows: %d, Columns: %d\n", rows, len(ds.Columns))

	if ds.Format == domain.FormatText && ds.RawText != "" {
		text, truncated := truncateRunes(ds.RawText, opts.MaxTextChars)
		if truncated {
			fmt.Fprintf(b, "Content (first %d characters):\n", opts.MaxTextChars)
		} else {
			b.WriteString("Content:\n")
		}
		b.WriteString(text)
		if !strings.HasSuffix(text, "\n") {
			b.WriteString("\n")
		}
		return
	}

	if len(ds.Columns) == 0 {
		b.WriteString("No columns.\n")
		return
	}

	b.WriteString("Columns:\n")
	for _, c := range ds.Columns {
		fmt.Fprintf(b, "- %s (%s)\n", c.Name, c.Type())
	}

	sample := rows
	if opts.SampleRows >= 0 && sample > opts.SampleRows {
		sample = opts.SampleRows
	}
	if sample == 0 {
		return
	}
	if sample < rows {
		fmt.Fprintf(b, "Sample rows (first %d of %d):\n", sample, rows)
	} else {
		b.WriteString("Rows:\n")
	}
	b.WriteString(sampleCSV(ds, sample))
}

// sampleCSV writes the header and the first n rows as CSV. Nulls are empty
// fields; numbers keep their source text.
func sampleCSV(ds *domain.Dataset, n int) string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(ds.ColumnNames())
	record := make([]string, len(ds.Columns))
	for r := 0; r < n; r++ {
		for c, cell := range ds.Row(r) {
			record[c] = cell.String()
		}
		_ = w.Write(record)
	}
	w.Flush()
	return buf.String()
}

func truncateRunes(s string, limit int) (string, bool) {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s, false
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i], true
		}
		count++
	}
	return s, false
}
