package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tabula-labs/tabula/internal/core/domain"
	"github.com/tabula-labs/tabula/internal/core/ports/driven"
)

// Ensure HistoryStore implements the interface.
var _ driven.HistoryStore = (*HistoryStore)(nil)

// HistoryStore is an in-memory implementation of driven.HistoryStore.
// Records are kept in append order.
type HistoryStore struct {
	mu      sync.RWMutex
	records []domain.HistoryRecord
	now     func() time.Time
}

// NewHistoryStore creates a new in-memory history store.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{now: time.Now}
}

// Append stores a copy of the record.
func (s *HistoryStore) Append(_ context.Context, record *domain.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *record)
	return nil
}

// Get retrieves a record by ID.
func (s *HistoryStore) Get(_ context.Context, id string) (*domain.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.records {
		if s.records[i].ID == id {
			rec := s.records[i]
			return &rec, nil
		}
	}
	return nil, domain.ErrNotFound
}

// List returns matching records, most recent first. Records with equal
// timestamps are ordered by most recent append.
func (s *HistoryStore) List(_ context.Context, filter domain.HistoryFilter) ([]domain.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.HistoryRecord, 0)
	for i := len(s.records) - 1; i >= 0; i-- {
		if filter.Matches(&s.records[i]) {
			result = append(result, s.records[i])
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	if limit := filter.EffectiveLimit(); limit >= 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Stats aggregates all records.
func (s *HistoryStore) Stats(_ context.Context) (*domain.HistoryStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &domain.HistoryStats{
		PerProvider: make(map[domain.Provider]int),
		PerFormat:   make(map[domain.Format]int),
	}
	sessions := make(map[string]bool)
	recentSince := s.now().Add(-domain.RecentWindow)

	for i := range s.records {
		rec := &s.records[i]
		stats.TotalCount++
		if rec.Success {
			stats.SuccessCount++
		} else {
			stats.FailureCount++
		}
		stats.PerProvider[rec.Provider]++
		for _, f := range rec.Files {
			stats.PerFormat[f.Format]++
		}
		sessions[rec.SessionID] = true
		if !rec.Timestamp.Before(recentSince) {
			stats.RecentCount++
		}
		if stats.Earliest.IsZero() || rec.Timestamp.Before(stats.Earliest) {
			stats.Earliest = rec.Timestamp
		}
		if rec.Timestamp.After(stats.Latest) {
			stats.Latest = rec.Timestamp
		}
	}
	stats.SessionCount = len(sessions)
	stats.MostUsedProvider = domain.MostUsed(stats.PerProvider)
	return stats, nil
}

// ClearAll removes every record.
func (s *HistoryStore) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	return nil
}
