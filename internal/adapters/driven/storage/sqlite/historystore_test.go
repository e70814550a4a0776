package sqlite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabula-labs/tabula/internal/core/domain"
)

var baseTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newRecord(id string, at time.Time, provider domain.Provider, success bool) *domain.HistoryRecord {
	rec := &domain.HistoryRecord{
		ID:        id,
		Timestamp: at,
		Query:     "which region sells most?",
		Provider:  provider,
		Model:     "model-x",
		MaskedKey: "****abcd",
		SessionID: "default",
		Files: []domain.FileRef{
			{Name: "sales.csv", Format: domain.FormatCSV, SizeBytes: 120, Rows: 3, Columns: 2},
		},
		Success: success,
		Result: domain.AnalysisResult{
			Success: success,
			Insight: "North leads.",
			Charts: []domain.ChartDirective{
				{
					Kind: domain.ChartBar,
					X:    "region",
					Y:    []string{"sales"},
					Rows: []domain.DataRow{
						{Label: "North", Values: []domain.Cell{domain.NumberCell("12")}},
						{Label: "South", Values: []domain.Cell{domain.NullCell()}},
					},
				},
			},
			Attempts: 1,
		},
	}
	if !success {
		rec.ErrorKind = domain.ErrorKindAuth
		rec.FailureReason = "bad key"
		rec.Result = domain.AnalysisResult{
			Charts:    []domain.ChartDirective{},
			ErrorKind: domain.ErrorKindAuth,
			Attempts:  1,
		}
	}
	return rec
}

func TestHistoryStore_AppendAndGet(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	hs := store.HistoryStore()

	rec := newRecord("rec-1", baseTime, domain.ProviderOpenAI, true)
	rec.Files = append(rec.Files, domain.FileRef{
		Name: "book.xlsx", Format: domain.FormatSpreadsheet, Sheet: "Q1", SizeBytes: 2048, Rows: 10, Columns: 4,
	})
	require.NoError(t, hs.Append(ctx, rec))

	got, err := hs.Get(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestHistoryStore_GetMissing(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := store.HistoryStore().Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHistoryStore_AppendDuplicateID(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	hs := store.HistoryStore()

	require.NoError(t, hs.Append(ctx, newRecord("dup", baseTime, domain.ProviderOpenAI, true)))
	assert.Error(t, hs.Append(ctx, newRecord("dup", baseTime, domain.ProviderOpenAI, true)))

	records, err := hs.List(ctx, domain.HistoryFilter{})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestHistoryStore_AppendNil(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	assert.ErrorIs(t, store.HistoryStore().Append(context.Background(), nil), domain.ErrInvalidInput)
}

func TestHistoryStore_ListOrdering(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	hs := store.HistoryStore()

	require.NoError(t, hs.Append(ctx, newRecord("old", baseTime, domain.ProviderOpenAI, true)))
	require.NoError(t, hs.Append(ctx, newRecord("new", baseTime.Add(time.Hour), domain.ProviderOpenAI, true)))
	require.NoError(t, hs.Append(ctx, newRecord("tie", baseTime, domain.ProviderOpenAI, true)))

	records, err := hs.List(ctx, domain.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "new", records[0].ID)
	assert.Equal(t, "tie", records[1].ID)
	assert.Equal(t, "old", records[2].ID)
	assert.Len(t, records[0].Files, 1)
}

func TestHistoryStore_FilesSpansBatches(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	hs := store.HistoryStore()

	ids := make([]string, 2*fileBatch+7)
	for i := range ids {
		ids[i] = fmt.Sprintf("missing-%d", i)
	}
	for _, i := range []int{0, fileBatch + 3, len(ids) - 1} {
		ids[i] = fmt.Sprintf("rec-%d", i)
		require.NoError(t, hs.Append(ctx, newRecord(ids[i], baseTime, domain.ProviderOpenAI, true)))
	}

	files, err := hs.(*historyStore).files(ctx, ids)
	require.NoError(t, err)
	assert.Len(t, files, 3)
	for _, i := range []int{0, fileBatch + 3, len(ids) - 1} {
		require.Len(t, files[ids[i]], 1, ids[i])
		assert.Equal(t, "sales.csv", files[ids[i]][0].Name)
	}
}

func TestHistoryStore_ListFilters(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	hs := store.HistoryStore()

	for i, p := range []domain.Provider{domain.ProviderOpenAI, domain.ProviderClaude, domain.ProviderOpenAI, domain.ProviderDeepSeek} {
		rec := newRecord(string(rune('a'+i)), baseTime.Add(time.Duration(i)*time.Minute), p, i != 2)
		if i == 3 {
			rec.SessionID = "other"
		}
		require.NoError(t, hs.Append(ctx, rec))
	}

	failed := false
	tests := []struct {
		name   string
		filter domain.HistoryFilter
		want   []string
	}{
		{"all", domain.HistoryFilter{}, []string{"d", "c", "b", "a"}},
		{"provider", domain.HistoryFilter{Provider: domain.ProviderOpenAI}, []string{"c", "a"}},
		{"session", domain.HistoryFilter{SessionID: "other"}, []string{"d"}},
		{"failures", domain.HistoryFilter{Success: &failed}, []string{"c"}},
		{"since", domain.HistoryFilter{Since: baseTime.Add(2 * time.Minute)}, []string{"d", "c"}},
		{"until is exclusive", domain.HistoryFilter{Until: baseTime.Add(time.Minute)}, []string{"a"}},
		{"limit", domain.HistoryFilter{Limit: 2}, []string{"d", "c"}},
		{"unbounded", domain.HistoryFilter{Limit: -1}, []string{"d", "c", "b", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := hs.List(ctx, tt.filter)
			require.NoError(t, err)
			ids := make([]string, 0, len(records))
			for _, r := range records {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestHistoryStore_ListEmpty(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	records, err := store.HistoryStore().List(context.Background(), domain.HistoryFilter{})
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestHistoryStore_Stats(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	store.now = func() time.Time { return baseTime.Add(10 * 24 * time.Hour) }
	hs := store.HistoryStore()

	old := newRecord("old", baseTime, domain.ProviderClaude, false)
	old.SessionID = "s2"
	require.NoError(t, hs.Append(ctx, old))
	require.NoError(t, hs.Append(ctx, newRecord("r1", baseTime.Add(9*24*time.Hour), domain.ProviderOpenAI, true)))
	both := newRecord("r2", baseTime.Add(9*24*time.Hour+time.Hour), domain.ProviderOpenAI, true)
	both.Files = append(both.Files, domain.FileRef{Name: "b.json", Format: domain.FormatJSON})
	require.NoError(t, hs.Append(ctx, both))

	stats, err := hs.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalCount)
	assert.Equal(t, 2, stats.SuccessCount)
	assert.Equal(t, 1, stats.FailureCount)
	assert.Equal(t, 2, stats.SessionCount)
	assert.Equal(t, 2, stats.RecentCount)
	assert.Equal(t, map[domain.Provider]int{domain.ProviderOpenAI: 2, domain.ProviderClaude: 1}, stats.PerProvider)
	assert.Equal(t, map[domain.Format]int{domain.FormatCSV: 3, domain.FormatJSON: 1}, stats.PerFormat)
	assert.Equal(t, domain.ProviderOpenAI, stats.MostUsedProvider)
	assert.True(t, stats.Earliest.Equal(baseTime))
	assert.True(t, stats.Latest.Equal(both.Timestamp))
}

func TestHistoryStore_StatsEmpty(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	stats, err := store.HistoryStore().Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalCount)
	assert.True(t, stats.Earliest.IsZero())
	assert.Empty(t, stats.PerProvider)
	assert.Equal(t, domain.Provider(""), stats.MostUsedProvider)
}

func TestHistoryStore_ClearAll(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	hs := store.HistoryStore()

	require.NoError(t, hs.Append(ctx, newRecord("r1", baseTime, domain.ProviderOpenAI, true)))
	require.NoError(t, hs.ClearAll(ctx))

	records, err := hs.List(ctx, domain.HistoryFilter{})
	require.NoError(t, err)
	assert.Empty(t, records)

	var files int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM history_files").Scan(&files))
	assert.Zero(t, files)
}

func TestHistoryStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.HistoryStore().Append(ctx, newRecord("kept", baseTime, domain.ProviderCustom, true)))
	require.NoError(t, store.Close())

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.HistoryStore().Get(ctx, "kept")
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderCustom, got.Provider)
}
