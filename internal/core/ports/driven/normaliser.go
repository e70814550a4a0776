package driven

import (
	"context"

	"github.com/tabula-labs/tabula/internal/core/domain"
)

// Normaliser turns the raw bytes of one file into a Dataset.
// Each normaliser handles one or more format tags.
type Normaliser interface {
	// SupportedFormats returns the format tags this normaliser handles.
	SupportedFormats() []domain.Format

	// Priority returns the selection priority (higher = preferred).
	// Format-specific normalisers should return 50-89.
	// Fallback normalisers should return 1-9.
	Priority() int

	// Normalise parses the payload. Decoding failures wrap domain.ErrParse.
	Normalise(ctx context.Context, payload *domain.FilePayload) (*domain.Dataset, error)
}

// SheetLister is implemented by normalisers whose format can hold several
// tables, such as workbooks.
type SheetLister interface {
	// Sheets returns the table names in source order.
	Sheets(ctx context.Context, payload *domain.FilePayload) ([]string, error)
}
