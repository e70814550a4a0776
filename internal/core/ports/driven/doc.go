// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - Normaliser: Parses one file format into a Dataset
//   - NormaliserRegistry: Selects a normaliser and applies the ingest mode
//   - Backend: Sends a prompt to one AI model endpoint
//   - BackendRegistry: Resolves a BackendConfig to a Backend
//   - HistoryStore: Append-only analysis history persistence
//
// # Optional Interfaces
//
// These can be nil - the application falls back to built-in defaults:
//
//   - ConfigStore: Application configuration
//   - PromptStore: User-editable prompt templates
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or normaliser package
package driven
