// Package driving defines what the CLI and the MCP server may ask of the
// engine: run an analysis, test a backend, read or clear history, and
// read or change settings.
//
// Implementations live in internal/core/services.
package driving
