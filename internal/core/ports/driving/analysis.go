package driving

import (
	"context"

	"github.com/tabula-labs/tabula/internal/core/domain"
)

// AnalysisService is the engine's entry point for running analyses.
type AnalysisService interface {
	// RunAnalysis normalises the request's files, queries the backend and
	// parses the response. It never returns an error: failures are reported
	// in the result's Success and ErrorKind fields.
	RunAnalysis(ctx context.Context, req domain.AnalysisRequest) domain.AnalysisResult

	// TestConnection checks that a backend configuration can reach its
	// provider and that the key is accepted.
	TestConnection(ctx context.Context, cfg domain.BackendConfig) error

	// Sheets lists the worksheet names of a spreadsheet payload.
	Sheets(ctx context.Context, payload domain.FilePayload) ([]string, error)
}
