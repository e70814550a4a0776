package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tabula-labs/tabula/internal/core/domain"
)

const (
	// URIScheme is the custom URI scheme for Tabula resources.
	uriScheme = "tabula://"

	historyURI = uriScheme + "history"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	if s.ports.History == nil {
		return
	}

	// Static resource for recent analyses.
	s.server.AddResource(&mcp.Resource{
		URI:         historyURI,
		Name:        "history",
		Description: "Most recent analyses, newest first",
		MIMEType:    "application/json",
	}, s.handleHistoryResource)

	// Template for a single analysis.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: historyURI + "/{id}",
		Name:        "history-record",
		Description: "One analysis with its full result",
		MIMEType:    "application/json",
	}, s.handleHistoryRecordResource)
}

// handleHistoryResource returns the most recent records.
func (s *Server) handleHistoryResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	records, err := s.ports.History.List(ctx, domain.HistoryFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}

	entries := make([]HistoryEntry, len(records))
	for i := range records {
		entries[i] = toHistoryEntry(&records[i])
	}
	return jsonResource(req.Params.URI, entries)
}

// handleHistoryRecordResource returns one record with its full result.
func (s *Server) handleHistoryRecordResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	// Extract id from URI: tabula://history/{id}
	id := extractHistoryID(req.Params.URI)
	if id == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	record, err := s.ports.History.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("getting history record: %w", err)
	}

	type recordInfo struct {
		HistoryEntry
		MaskedKey string           `json:"masked_key,omitempty"`
		FileRefs  []domain.FileRef `json:"file_details"`
		Result    AnalyseOutput    `json:"result"`
	}
	return jsonResource(req.Params.URI, recordInfo{
		HistoryEntry: toHistoryEntry(record),
		MaskedKey:    record.MaskedKey,
		FileRefs:     record.Files,
		Result:       toAnalyseOutput(record.Result),
	})
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling resource: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractHistoryID extracts the record ID from a URI like tabula://history/{id}.
func extractHistoryID(uri string) string {
	const prefix = historyURI + "/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	id := strings.TrimPrefix(uri, prefix)
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}
