package records

import (
	"context"
	"fmt"

	"github.com/tabula-labs/tabula/internal/core/domain"
	"github.com/tabula-labs/tabula/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles JSON and YAML payloads.
type Normaliser struct{}

// New creates a new structured-record normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedFormats returns the formats this normaliser handles.
func (n *Normaliser) SupportedFormats() []domain.Format {
	return []domain.Format{domain.FormatJSON, domain.FormatYAML}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 60
}

// Normalise flattens the payload's records into a dataset.
func (n *Normaliser) Normalise(ctx context.Context, payload *domain.FilePayload) (*domain.Dataset, error) {
	if payload == nil {
		return nil, domain.ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	format, err := payload.ResolveFormat()
	if err != nil {
		return nil, err
	}

	var recs []record
	switch format {
	case domain.FormatJSON:
		recs, err = decodeJSON(payload.Data)
	case domain.FormatYAML:
		recs, err = decodeYAML(payload.Data)
	default:
		return nil, fmt.Errorf("%w: %s is not a record format", domain.ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrParse, payload.Name, err)
	}

	ds := assemble(payload.Name, format, recs)
	ds.SizeBytes = int64(len(payload.Data))
	return ds, nil
}
