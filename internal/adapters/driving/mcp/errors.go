// Package mcp provides an MCP (Model Context Protocol) server adapter for Tabula.
// It lets AI assistants run analyses over data files and browse the history.
package mcp

import "errors"

var (
	// ErrMissingAnalysisService is returned when the analysis service is not provided.
	ErrMissingAnalysisService = errors.New("mcp: analysis service is required")

	// ErrHistoryUnavailable is returned by history tools when no history
	// service was provided.
	ErrHistoryUnavailable = errors.New("mcp: history is not available")

	// ErrClearNotConfirmed is returned when history_clear is called without
	// confirm set.
	ErrClearNotConfirmed = errors.New("mcp: history_clear requires confirm=true")
)
