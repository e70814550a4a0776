package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tabula-labs/tabula/internal/core/domain"
	"github.com/tabula-labs/tabula/internal/core/ports/driven"
	"github.com/tabula-labs/tabula/internal/core/ports/driving"
)

// Ensure HistoryService implements the interface.
var _ driving.HistoryService = (*HistoryService)(nil)

// HistoryService records and queries past analyses. Writes are serialised
// so that an append never interleaves with a clear.
type HistoryService struct {
	mu    sync.Mutex
	store driven.HistoryStore
	now   func() time.Time
}

// NewHistoryService creates a new history service.
func NewHistoryService(store driven.HistoryStore) *HistoryService {
	return &HistoryService{
		store: store,
		now:   time.Now,
	}
}

// Record appends a record, assigning an ID and a UTC timestamp when the
// caller left them empty. Store failures are wrapped with ErrStorage.
func (s *HistoryService) Record(ctx context.Context, record *domain.HistoryRecord) error {
	if record == nil {
		return fmt.Errorf("%w: nil history record", domain.ErrInvalidInput)
	}
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = s.now()
	}
	record.Timestamp = record.Timestamp.UTC()
	if record.SessionID == "" {
		record.SessionID = domain.DefaultSessionID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Append(ctx, record); err != nil {
		return storageErr("append history record", err)
	}
	return nil
}

// Get retrieves a single record by ID.
func (s *HistoryService) Get(ctx context.Context, id string) (*domain.HistoryRecord, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, storageErr("get history record", err)
	}
	return rec, nil
}

// List returns matching records, most recent first.
func (s *HistoryService) List(ctx context.Context, filter domain.HistoryFilter) ([]domain.HistoryRecord, error) {
	records, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, storageErr("list history", err)
	}
	return records, nil
}

// Stats aggregates the whole history.
func (s *HistoryService) Stats(ctx context.Context) (*domain.HistoryStats, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, storageErr("history stats", err)
	}
	return stats, nil
}

// ClearAll removes every record.
func (s *HistoryService) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.ClearAll(ctx); err != nil {
		return storageErr("clear history", err)
	}
	return nil
}

// storageErr tags err with ErrStorage. Not-found and already tagged
// errors pass through unchanged apart from the operation prefix.
func storageErr(op string, err error) error {
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrStorage) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStorage, err)
}
