package mcp

import (
	"context"

	"github.com/tabula-labs/tabula/internal/core/domain"
)

// mockAnalysisService is a mock implementation of driving.AnalysisService.
type mockAnalysisService struct {
	result  domain.AnalysisResult
	lastReq domain.AnalysisRequest
	err     error
	sheets  []string
}

func (m *mockAnalysisService) RunAnalysis(_ context.Context, req domain.AnalysisRequest) domain.AnalysisResult {
	m.lastReq = req
	return m.result
}

func (m *mockAnalysisService) TestConnection(_ context.Context, _ domain.BackendConfig) error {
	return m.err
}

func (m *mockAnalysisService) Sheets(_ context.Context, _ domain.FilePayload) ([]string, error) {
	return m.sheets, m.err
}

// mockHistoryService is a mock implementation of driving.HistoryService.
type mockHistoryService struct {
	records    []domain.HistoryRecord
	record     *domain.HistoryRecord
	stats      *domain.HistoryStats
	lastFilter domain.HistoryFilter
	cleared    bool
	err        error
}

func (m *mockHistoryService) Record(_ context.Context, _ *domain.HistoryRecord) error {
	return m.err
}

func (m *mockHistoryService) Get(_ context.Context, _ string) (*domain.HistoryRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.record == nil {
		return nil, domain.ErrNotFound
	}
	return m.record, nil
}

func (m *mockHistoryService) List(_ context.Context, filter domain.HistoryFilter) ([]domain.HistoryRecord, error) {
	m.lastFilter = filter
	return m.records, m.err
}

func (m *mockHistoryService) Stats(_ context.Context) (*domain.HistoryStats, error) {
	return m.stats, m.err
}

func (m *mockHistoryService) ClearAll(_ context.Context) error {
	if m.err != nil {
		return m.err
	}
	m.cleared = true
	return nil
}
