// Package csv normalises delimited text files. The delimiter is detected
// from the first non-blank line among comma, semicolon and tab.
package csv

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/tabula-labs/tabula/internal/core/domain"
	"github.com/tabula-labs/tabula/internal/core/ports/driven"
	"github.com/tabula-labs/tabula/internal/normalisers/tabular"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Normaliser handles CSV and TSV payloads.
type Normaliser struct{}

// New creates a new CSV normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedFormats returns the formats this normaliser handles.
func (n *Normaliser) SupportedFormats() []domain.Format {
	return []domain.Format{domain.FormatCSV}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 60
}

// Normalise parses the payload into a dataset.
func (n *Normaliser) Normalise(ctx context.Context, payload *domain.FilePayload) (*domain.Dataset, error) {
	if payload == nil {
		return nil, domain.ErrInvalidInput
	}

	data := bytes.TrimPrefix(payload.Data, utf8BOM)
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = SniffDelimiter(data)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrParse, payload.Name, err)
		}
		rows = append(rows, record)
	}

	ds := tabular.Build(payload.Name, domain.FormatCSV, rows)
	ds.SizeBytes = int64(len(payload.Data))
	return ds, nil
}

// SniffDelimiter picks the candidate delimiter that occurs most often,
// outside quotes, on the first non-blank line. Ties and misses fall back
// to comma.
func SniffDelimiter(data []byte) rune {
	line := firstLine(data)
	candidates := []rune{',', ';', '\t'}
	counts := make(map[rune]int, len(candidates))
	inQuotes := false
	for _, ch := range string(line) {
		if ch == '"' {
			inQuotes = !inQuotes
			continue
		}
		if !inQuotes {
			counts[ch]++
		}
	}
	best := ','
	for _, c := range candidates {
		if counts[c] > counts[best] {
			best = c
		}
	}
	return best
}

func firstLine(data []byte) []byte {
	for len(data) > 0 {
		i := bytes.IndexByte(data, '\n')
		var line []byte
		if i < 0 {
			line, data = data, nil
		} else {
			line, data = data[:i], data[i+1:]
		}
		if len(bytes.TrimSpace(line)) > 0 {
			return line
		}
	}
	return nil
}
