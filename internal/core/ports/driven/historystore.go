package driven

import (
	"context"

	"github.com/tabula-labs/tabula/internal/core/domain"
)

// HistoryStore persists analysis history. Records are append-only: there is
// no update operation, and the only deletion is ClearAll.
type HistoryStore interface {
	// Append persists a new record.
	Append(ctx context.Context, record *domain.HistoryRecord) error

	// Get retrieves a record by ID. Returns domain.ErrNotFound if absent.
	Get(ctx context.Context, id string) (*domain.HistoryRecord, error)

	// List returns matching records, most recent first.
	List(ctx context.Context, filter domain.HistoryFilter) ([]domain.HistoryRecord, error)

	// Stats aggregates the whole store.
	Stats(ctx context.Context) (*domain.HistoryStats, error)

	// ClearAll removes every record.
	ClearAll(ctx context.Context) error
}
