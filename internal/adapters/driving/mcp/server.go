package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tabula-labs/tabula/internal/logger"
)

// Version is the MCP server version.
const Version = "0.1.0"

// shutdownGrace bounds how long in-flight HTTP requests may finish after
// the context is cancelled.
const shutdownGrace = 5 * time.Second

// Server exposes the analysis engine over the Model Context Protocol.
type Server struct {
	ports  *Ports
	server *mcp.Server
}

// NewServer validates ports and registers the tools and resources they
// support. History tools and resources are omitted without a history port.
func NewServer(ports *Ports) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}

	s := &Server{
		ports: ports,
		server: mcp.NewServer(
			&mcp.Implementation{Name: "tabula", Version: Version},
			&mcp.ServerOptions{Instructions: instructions(ports.History != nil)},
		),
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// instructions tells the client model how the tools fit together.
func instructions(withHistory bool) string {
	var b strings.Builder
	b.WriteString("Tabula answers questions about data files. ")
	b.WriteString("Call analyse with one or more files (text content, or content_base64 for spreadsheets) ")
	b.WriteString("and a question; the result holds an insight and chart directives ready to render.")
	if withHistory {
		b.WriteString(" Every analysis is recorded: use history_list, history_stats and the ")
		b.WriteString("tabula://history resources to review past runs. history_clear deletes everything ")
		b.WriteString("and needs confirm=true.")
	}
	return b.String()
}

// Run serves over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	logger.Debug("MCP server on stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the streamable HTTP transport on addr until ctx is
// cancelled.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("MCP HTTP shutdown: %v", err)
		}
	}()

	logger.Debug("MCP server on http %s", addr)
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		<-stopped
		return nil
	}
	return err
}
