// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
//   - AnalysisService: ingest, prompt, dispatch with retries, parse, record
//   - HistoryService: append-only history with filters and statistics
//   - SettingsService: engine settings backed by the config store
//   - NormaliserRegistry: format detection and ingest modes
//
// Services are pure Go with no CGO or external dependencies.
package services
