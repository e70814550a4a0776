package cli

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabula-labs/tabula/internal/core/domain"
)

func seedHistory(t *testing.T, ts *testServices) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, ts.history.Record(ctx, &domain.HistoryRecord{
		ID:        "rec-ok",
		Timestamp: now.Add(-time.Hour),
		Query:     "Which region sells most?",
		Provider:  domain.ProviderOpenAI,
		Model:     "gpt-4o-mini",
		MaskedKey: "****abcd",
		Files:     []domain.FileRef{{Name: "sales.csv", Format: domain.FormatCSV, SizeBytes: 40, Rows: 2, Columns: 2}},
		Success:   true,
		Result:    domain.AnalysisResult{Success: true, Insight: "North.", Charts: []domain.ChartDirective{}},
	}))
	require.NoError(t, ts.history.Record(ctx, &domain.HistoryRecord{
		ID:        "rec-failed",
		Timestamp: now,
		Query:     "Trend?",
		Provider:  domain.ProviderClaude,
		Model:     "claude-3-5-sonnet-latest",
		SessionID: "s2",
		Files:     []domain.FileRef{{Name: "notes.txt", Format: domain.FormatText}},
		ErrorKind: domain.ErrorKindAuth,
		Result:    domain.FailedResult(domain.ErrAuth, 1),
	}))
}

func TestHistoryListCmd_Empty(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCommand(t, "", "history", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No analyses recorded.")
}

func TestHistoryListCmd_NewestFirst(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	seedHistory(t, ts)

	out, err := executeCommand(t, "", "history", "list")
	require.NoError(t, err)

	assert.Contains(t, out, "rec-ok")
	assert.Contains(t, out, "openai/gpt-4o-mini")
	assert.Contains(t, out, "files: sales.csv")
	assert.Contains(t, out, "AuthError")
	assert.Less(t, strings.Index(out, "rec-failed"), strings.Index(out, "rec-ok"))
}

func TestHistoryListCmd_StatusFilter(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	seedHistory(t, ts)

	out, err := executeCommand(t, "", "history", "list", "--status", "failed")
	require.NoError(t, err)
	assert.Contains(t, out, "rec-failed")
	assert.NotContains(t, out, "rec-ok")

	_, err = executeCommand(t, "", "history", "list", "--status", "sometimes")
	assert.Error(t, err)
}

func TestHistoryListCmd_JSON(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	seedHistory(t, ts)

	out, err := executeCommand(t, "", "history", "list", "--json", "--provider", "claude")
	require.NoError(t, err)

	var records []domain.HistoryRecord
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "rec-failed", records[0].ID)
}

func TestHistoryFilter_Defaults(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	historySince = 2 * time.Hour
	historyStatus = "ok"
	filter, err := historyFilter(now)
	require.NoError(t, err)

	assert.Equal(t, now.Add(-2*time.Hour), filter.Since)
	require.NotNil(t, filter.Success)
	assert.True(t, *filter.Success)
	assert.Equal(t, domain.DefaultHistoryLimit, filter.Limit)
}

func TestHistoryShowCmd(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	seedHistory(t, ts)

	out, err := executeCommand(t, "", "history", "show", "rec-ok")
	require.NoError(t, err)
	assert.Contains(t, out, "Which region sells most?")
	assert.Contains(t, out, "****abcd")
	assert.Contains(t, out, "sales.csv (csv, 40 bytes, 2 rows x 2 columns)")
	assert.Contains(t, out, "North.")

	_, err = executeCommand(t, "", "history", "show", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no analysis with id missing")
}

func TestHistoryStatsCmd(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	seedHistory(t, ts)

	out, err := executeCommand(t, "", "history", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Analyses:     2 (1 ok, 1 failed)")
	assert.Contains(t, out, "Sessions:     2")
	assert.Contains(t, out, "csv")
	assert.Contains(t, out, "text")
}

func TestHistoryClearCmd(t *testing.T) {
	t.Run("aborts without confirmation", func(t *testing.T) {
		ts, cleanup := setupTestServices()
		defer cleanup()
		seedHistory(t, ts)

		out, err := executeCommand(t, "n\n", "history", "clear")
		require.NoError(t, err)
		assert.Contains(t, out, "Aborted.")

		stats, err := ts.history.Stats(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, stats.TotalCount)
	})

	t.Run("clears on yes", func(t *testing.T) {
		ts, cleanup := setupTestServices()
		defer cleanup()
		seedHistory(t, ts)

		out, err := executeCommand(t, "yes\n", "history", "clear")
		require.NoError(t, err)
		assert.Contains(t, out, "History cleared.")

		stats, err := ts.history.Stats(context.Background())
		require.NoError(t, err)
		assert.Zero(t, stats.TotalCount)
	})

	t.Run("skips prompt with --yes", func(t *testing.T) {
		ts, cleanup := setupTestServices()
		defer cleanup()
		seedHistory(t, ts)

		out, err := executeCommand(t, "", "history", "clear", "--yes")
		require.NoError(t, err)
		assert.NotContains(t, out, "[y/N]")
		assert.Contains(t, out, "History cleared.")
	})
}
