package plaintext

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/tabula-labs/tabula/internal/core/domain"
	"github.com/tabula-labs/tabula/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// TextColumn names the single column of a free-text dataset.
const TextColumn = "text"

// Normaliser handles free-form text files.
type Normaliser struct{}

// New creates a new plain text normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedFormats returns the formats this normaliser handles.
func (n *Normaliser) SupportedFormats() []domain.Format {
	return []domain.Format{domain.FormatText}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 5 // Fallback normaliser
}

// Normalise produces one row per line in a "text" column and keeps the
// whole content in RawText for full-document prompting.
func (n *Normaliser) Normalise(_ context.Context, payload *domain.FilePayload) (*domain.Dataset, error) {
	if payload == nil {
		return nil, domain.ErrInvalidInput
	}

	content := string(payload.Data)
	if !utf8.ValidString(content) {
		content = strings.ToValidUTF8(content, "\ufffd")
	}
	content = strings.TrimPrefix(content, "\ufeff")

	lines := splitLines(content)
	cells := make([]domain.Cell, len(lines))
	for i, line := range lines {
		cells[i] = domain.StringCell(line)
	}

	return &domain.Dataset{
		Name:      payload.Name,
		Format:    domain.FormatText,
		Columns:   []domain.Column{{Name: TextColumn, Cells: cells}},
		RawText:   content,
		SizeBytes: int64(len(payload.Data)),
	}, nil
}

// splitLines splits on LF or CRLF. A trailing newline does not start an
// extra row.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	content = strings.TrimSuffix(content, "\n")
	lines := strings.Split(content, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
