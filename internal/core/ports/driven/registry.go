package driven

import (
	"context"

	"github.com/tabula-labs/tabula/internal/core/domain"
)

// NormaliserRegistry selects the appropriate normaliser for a payload and
// combines several payloads according to an ingest mode.
type NormaliserRegistry interface {
	// Normalise converts one payload using the best matching normaliser.
	// The size ceiling is enforced before any parsing.
	Normalise(ctx context.Context, payload *domain.FilePayload) (*domain.Dataset, error)

	// NormaliseAll converts payloads in upload order. Mixed mode returns one
	// dataset per payload; concat and join modes return a single merged
	// dataset. join configures join mode only.
	NormaliseAll(ctx context.Context, payloads []domain.FilePayload, mode domain.IngestMode, join domain.JoinSpec) ([]*domain.Dataset, error)

	// Sheets lists worksheet names for formats that have them.
	Sheets(ctx context.Context, payload *domain.FilePayload) ([]string, error)

	// Register adds a normaliser to the registry.
	Register(normaliser Normaliser)

	// SupportedFormats returns all formats that can be normalised.
	SupportedFormats() []domain.Format
}
