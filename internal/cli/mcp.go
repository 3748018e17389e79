package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/adapters/mcp"
)

// MCP transports.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// MCPOptions configures ServeMCP.
type MCPOptions struct {
	Dir        string
	PlanPath   string
	ConfigPath string
	Transport  string
	// Addr is the listen address of the SSE transport.
	Addr   string
	Logger *slog.Logger
}

// NewMCPServer wires the MCP adapter to the plan and the report backend. The returned
// cleanup closes the backend.
func NewMCPServer(opts MCPOptions) (*mcp.Server, func() error, error) {
	settings, err := LoadSettings(opts.ConfigPath, opts.Dir)
	if err != nil {
		return nil, nil, err
	}
	loader, err := PlanLoader(opts.PlanPath)
	if err != nil {
		return nil, nil, err
	}
	backend, err := OpenBackend(settings, opts.Dir)
	if err != nil {
		return nil, nil, err
	}

	engine := createEngine(EngineOptions{Settings: settings, Logger: opts.Logger, Dir: opts.Dir})
	mcpOpts := []mcp.Option{mcp.WithLogger(opts.Logger)}
	if backend.Store != nil {
		mcpOpts = append(mcpOpts, mcp.WithReports(backend.Store))
	}
	srv := mcp.NewServer(&PlanRunner{Engine: engine, Loader: loader}, arbor.Version, mcpOpts...)
	return srv, backend.Close, nil
}

// ServeMCP serves the plan as MCP tools until ctx is done (SSE) or stdin closes (stdio).
// Logs go to stderr so they never corrupt the stdio JSON-RPC stream.
func ServeMCP(ctx context.Context, opts MCPOptions) error {
	if opts.Transport != TransportStdio && opts.Transport != TransportSSE {
		return fmt.Errorf("unknown transport %q: supported are %s and %s", opts.Transport, TransportStdio, TransportSSE)
	}
	srv, cleanup, err := NewMCPServer(opts)
	if err != nil {
		return err
	}
	defer cleanup()

	if opts.Transport == TransportStdio {
		opts.Logger.Info("Starting arbor MCP Server (Stdio)")
		return srv.ServeStdio()
	}

	opts.Logger.Info("Starting arbor MCP Server (SSE)", "addr", opts.Addr)
	if err := srv.ServeSSE(ctx, opts.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	opts.Logger.Info("MCP Server stopped gracefully")
	return nil
}
