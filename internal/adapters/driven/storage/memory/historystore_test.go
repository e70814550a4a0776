package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabula-labs/tabula/internal/core/domain"
)

var baseTime = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func record(id string, provider domain.Provider, at time.Time, success bool, formats ...domain.Format) *domain.HistoryRecord {
	rec := &domain.HistoryRecord{
		ID:        id,
		Timestamp: at,
		Query:     "q " + id,
		Provider:  provider,
		SessionID: "default",
		Success:   success,
	}
	for _, f := range formats {
		rec.Files = append(rec.Files, domain.FileRef{Name: id + "." + string(f), Format: f, Rows: 1})
	}
	return rec
}

func TestNewHistoryStore(t *testing.T) {
	store := NewHistoryStore()
	require.NotNil(t, store)
}

func TestHistoryStore_AppendAndGet(t *testing.T) {
	store := NewHistoryStore()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, record("r1", domain.ProviderOpenAI, baseTime, true, domain.FormatCSV)))

	got, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "q r1", got.Query)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHistoryStore_ListMostRecentFirst(t *testing.T) {
	store := NewHistoryStore()
	ctx := context.Background()

	_ = store.Append(ctx, record("old", domain.ProviderOpenAI, baseTime, true))
	_ = store.Append(ctx, record("new", domain.ProviderOpenAI, baseTime.Add(time.Hour), true))
	_ = store.Append(ctx, record("tie", domain.ProviderOpenAI, baseTime.Add(time.Hour), true))

	list, err := store.List(ctx, domain.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "tie", list[0].ID)
	assert.Equal(t, "new", list[1].ID)
	assert.Equal(t, "old", list[2].ID)
}

func TestHistoryStore_ListFilterAndLimit(t *testing.T) {
	store := NewHistoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = store.Append(ctx, record(string(rune('a'+i)), domain.ProviderClaude, baseTime.Add(time.Duration(i)*time.Minute), i%2 == 0))
	}
	_ = store.Append(ctx, record("x", domain.ProviderDeepSeek, baseTime, true))

	list, _ := store.List(ctx, domain.HistoryFilter{Provider: domain.ProviderClaude, Limit: 2})
	require.Len(t, list, 2)
	assert.Equal(t, "e", list[0].ID)
	assert.Equal(t, "d", list[1].ID)

	failed := false
	list, _ = store.List(ctx, domain.HistoryFilter{Success: &failed})
	assert.Len(t, list, 2)

	list, _ = store.List(ctx, domain.HistoryFilter{Limit: -1})
	assert.Len(t, list, 6)
}

func TestHistoryStore_Stats(t *testing.T) {
	store := NewHistoryStore()
	store.now = func() time.Time { return baseTime.Add(10 * 24 * time.Hour) }
	ctx := context.Background()

	_ = store.Append(ctx, record("r1", domain.ProviderOpenAI, baseTime, true, domain.FormatCSV, domain.FormatJSON))
	_ = store.Append(ctx, record("r2", domain.ProviderOpenAI, baseTime.Add(5*24*time.Hour), false, domain.FormatCSV))
	r3 := record("r3", domain.ProviderClaude, baseTime.Add(9*24*time.Hour), true, domain.FormatText)
	r3.SessionID = "s2"
	_ = store.Append(ctx, r3)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalCount)
	assert.Equal(t, 2, stats.SuccessCount)
	assert.Equal(t, 1, stats.FailureCount)
	assert.Equal(t, 2, stats.SessionCount)
	assert.Equal(t, 2, stats.RecentCount)
	assert.Equal(t, map[domain.Provider]int{domain.ProviderOpenAI: 2, domain.ProviderClaude: 1}, stats.PerProvider)
	assert.Equal(t, map[domain.Format]int{domain.FormatCSV: 2, domain.FormatJSON: 1, domain.FormatText: 1}, stats.PerFormat)
	assert.Equal(t, domain.ProviderOpenAI, stats.MostUsedProvider)
	assert.Equal(t, baseTime, stats.Earliest)
	assert.Equal(t, baseTime.Add(9*24*time.Hour), stats.Latest)
}

func TestHistoryStore_ClearAll(t *testing.T) {
	store := NewHistoryStore()
	ctx := context.Background()
	_ = store.Append(ctx, record("r1", domain.ProviderOpenAI, baseTime, true))

	require.NoError(t, store.ClearAll(ctx))

	list, err := store.List(ctx, domain.HistoryFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalCount)
	assert.True(t, stats.Earliest.IsZero())
}
