package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabula-labs/tabula/internal/core/domain"
)

func newTestServer(t *testing.T, analysis *mockAnalysisService, history *mockHistoryService) *Server {
	t.Helper()
	ports := &Ports{Analysis: analysis}
	if history != nil {
		ports.History = history
	}
	server, err := NewServer(ports)
	require.NoError(t, err)
	return server
}

func TestServer_handleAnalyse(t *testing.T) {
	ctx := context.Background()

	t.Run("maps request and result", func(t *testing.T) {
		analysis := &mockAnalysisService{
			result: domain.AnalysisResult{
				Success: true,
				Insight: "North leads.",
				Charts: []domain.ChartDirective{{
					Kind: domain.ChartBar,
					X:    "region",
					Y:    []string{"sales"},
					Rows: []domain.DataRow{
						{Label: "North", Values: []domain.Cell{domain.NumberCell("12.50")}},
						{Label: "South", Values: []domain.Cell{domain.NullCell()}},
					},
				}},
				Attempts:  1,
				HistoryID: "rec-1",
			},
		}
		server := newTestServer(t, analysis, nil)

		input := AnalyseInput{
			Query: "which region?",
			Files: []FileInput{
				{Name: "sales.csv", Content: "region,sales\nNorth,12.50\n"},
				{Name: "book.xlsx", Sheet: "Q1", ContentBase64: base64.StdEncoding.EncodeToString([]byte{0x50, 0x4b})},
			},
			Mode:     "mixed",
			Provider: "claude",
			APIKey:   "sk-test",
			Headers:  map[string]string{"X-Team": "data"},
		}
		_, output, err := server.handleAnalyse(ctx, nil, input)
		require.NoError(t, err)

		req := analysis.lastReq
		assert.Equal(t, "which region?", req.Query)
		assert.Equal(t, domain.IngestMixed, req.Mode)
		assert.Equal(t, domain.ProviderClaude, req.Backend.Provider)
		assert.Equal(t, "sk-test", req.Backend.APIKey)
		assert.Equal(t, map[string]string{"X-Team": "data"}, req.Backend.Headers)
		require.Len(t, req.Files, 2)
		assert.Equal(t, []byte("region,sales\nNorth,12.50\n"), req.Files[0].Data)
		assert.Equal(t, []byte{0x50, 0x4b}, req.Files[1].Data)
		assert.Equal(t, "Q1", req.Files[1].Sheet)

		assert.True(t, output.Success)
		assert.Equal(t, "North leads.", output.Insight)
		assert.Equal(t, "rec-1", output.HistoryID)
		require.Len(t, output.Charts, 1)
		assert.Equal(t, "bar", output.Charts[0].Kind)
		assert.Equal(t, json.RawMessage("12.50"), output.Charts[0].Rows[0].Values[0])
		assert.Nil(t, output.Charts[0].Rows[1].Values[0])
	})

	t.Run("join options pass through", func(t *testing.T) {
		analysis := &mockAnalysisService{result: domain.AnalysisResult{Success: true}}
		server := newTestServer(t, analysis, nil)

		_, _, err := server.handleAnalyse(ctx, nil, AnalyseInput{
			Query:   "q",
			Files:   []FileInput{{Name: "a.csv", Content: "id\n1\n"}, {Name: "b.csv", Content: "id\n1\n"}},
			Mode:    "join",
			JoinOn:  "id",
			JoinHow: "left",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.IngestJoin, analysis.lastReq.Mode)
		assert.Equal(t, domain.JoinSpec{Column: "id", Type: domain.JoinLeft}, analysis.lastReq.Join)
	})

	t.Run("failed analysis is not a tool error", func(t *testing.T) {
		analysis := &mockAnalysisService{
			result: domain.FailedResult(domain.ErrAuth, 1),
		}
		server := newTestServer(t, analysis, nil)

		_, output, err := server.handleAnalyse(ctx, nil, AnalyseInput{Query: "q", Files: []FileInput{{Name: "a.csv"}}})
		require.NoError(t, err)
		assert.False(t, output.Success)
		assert.Equal(t, "AuthError", output.ErrorKind)
		assert.NotNil(t, output.Charts)
	})

	t.Run("invalid base64 is rejected", func(t *testing.T) {
		server := newTestServer(t, &mockAnalysisService{}, nil)

		_, _, err := server.handleAnalyse(ctx, nil, AnalyseInput{
			Query: "q",
			Files: []FileInput{{Name: "a.xlsx", ContentBase64: "not base64!"}},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "a.xlsx")
	})
}

func TestServer_handleHistoryList(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	history := &mockHistoryService{
		records: []domain.HistoryRecord{{
			ID:        "rec-1",
			Timestamp: at,
			Query:     "q",
			Provider:  domain.ProviderOpenAI,
			Model:     "gpt-4o-mini",
			SessionID: "default",
			Files:     []domain.FileRef{{Name: "a.csv", Format: domain.FormatCSV}},
			Success:   true,
			Result:    domain.AnalysisResult{Success: true, Insight: "fine"},
		}},
	}
	server := newTestServer(t, &mockAnalysisService{}, history)

	_, output, err := server.handleHistoryList(ctx, nil, HistoryListInput{Provider: "openai", Status: "ok", Limit: 5})
	require.NoError(t, err)

	assert.Equal(t, domain.ProviderOpenAI, history.lastFilter.Provider)
	require.NotNil(t, history.lastFilter.Success)
	assert.True(t, *history.lastFilter.Success)
	assert.Equal(t, 5, history.lastFilter.Limit)

	require.Equal(t, 1, output.Count)
	entry := output.Records[0]
	assert.Equal(t, "rec-1", entry.ID)
	assert.Equal(t, "2026-05-01T12:00:00Z", entry.Timestamp)
	assert.Equal(t, []string{"a.csv"}, entry.Files)
	assert.Equal(t, "fine", entry.Insight)

	_, _, err = server.handleHistoryList(ctx, nil, HistoryListInput{Status: "maybe"})
	assert.Error(t, err)
}

func TestServer_handleHistoryStats(t *testing.T) {
	history := &mockHistoryService{
		stats: &domain.HistoryStats{
			TotalCount:       3,
			SuccessCount:     2,
			FailureCount:     1,
			SessionCount:     1,
			RecentCount:      3,
			PerProvider:      map[domain.Provider]int{domain.ProviderClaude: 3},
			PerFormat:        map[domain.Format]int{domain.FormatCSV: 2, domain.FormatJSON: 1},
			MostUsedProvider: domain.ProviderClaude,
			Earliest:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			Latest:           time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		},
	}
	server := newTestServer(t, &mockAnalysisService{}, history)

	_, output, err := server.handleHistoryStats(context.Background(), nil, HistoryStatsInput{})
	require.NoError(t, err)
	assert.Equal(t, 3, output.Total)
	assert.Equal(t, 1, output.Failed)
	assert.Equal(t, map[string]int{"claude": 3}, output.PerProvider)
	assert.Equal(t, map[string]int{"csv": 2, "json": 1}, output.PerFormat)
	assert.Equal(t, "claude", output.MostUsedProvider)
	assert.Equal(t, "2026-01-01T00:00:00Z", output.Earliest)
}

func TestServer_handleHistoryClear(t *testing.T) {
	ctx := context.Background()

	t.Run("requires confirmation", func(t *testing.T) {
		history := &mockHistoryService{}
		server := newTestServer(t, &mockAnalysisService{}, history)

		_, _, err := server.handleHistoryClear(ctx, nil, HistoryClearInput{})
		assert.ErrorIs(t, err, ErrClearNotConfirmed)
		assert.False(t, history.cleared)
	})

	t.Run("clears when confirmed", func(t *testing.T) {
		history := &mockHistoryService{}
		server := newTestServer(t, &mockAnalysisService{}, history)

		_, output, err := server.handleHistoryClear(ctx, nil, HistoryClearInput{Confirm: true})
		require.NoError(t, err)
		assert.True(t, output.Cleared)
		assert.True(t, history.cleared)
	})

	t.Run("propagates storage errors", func(t *testing.T) {
		history := &mockHistoryService{err: errors.New("disk full")}
		server := newTestServer(t, &mockAnalysisService{}, history)

		_, _, err := server.handleHistoryClear(ctx, nil, HistoryClearInput{Confirm: true})
		assert.Error(t, err)
	})
}

func TestServer_HistoryToolsWithoutHistory(t *testing.T) {
	server := newTestServer(t, &mockAnalysisService{}, nil)

	_, _, err := server.handleHistoryStats(context.Background(), nil, HistoryStatsInput{})
	assert.ErrorIs(t, err, ErrHistoryUnavailable)
}
