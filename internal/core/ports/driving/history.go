package driving

import (
	"context"

	"github.com/tabula-labs/tabula/internal/core/domain"
)

// HistoryService exposes the analysis history to external actors.
type HistoryService interface {
	// Record appends a new record. Used by the orchestrator.
	Record(ctx context.Context, record *domain.HistoryRecord) error

	// Get retrieves a single record by ID.
	Get(ctx context.Context, id string) (*domain.HistoryRecord, error)

	// List returns matching records, most recent first.
	List(ctx context.Context, filter domain.HistoryFilter) ([]domain.HistoryRecord, error)

	// Stats aggregates the whole history.
	Stats(ctx context.Context) (*domain.HistoryStats, error)

	// ClearAll removes every record.
	ClearAll(ctx context.Context) error
}
