// Package domain defines the core business entities for Tabula.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - FilePayload: Raw bytes of one uploaded file
//   - Dataset: The canonical tabular or text view of a file
//   - BackendConfig: A model backend chosen by the caller
//   - AnalysisResult: Insight, chart directives and failure detail
//   - HistoryRecord: An immutable entry in the analysis history
//
// The error taxonomy lives in errors.go. Adapters wrap its sentinels so
// that every failure can be classified with ClassifyError.
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
