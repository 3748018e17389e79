package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// PlanURI is the resource exposing the node tree of the served plan.
const PlanURI = "arbor://plan"

// Runner executes and inspects the served plan.
type Runner interface {
	Run(ctx context.Context) (*domain.Report, error)
	Inspect(ctx context.Context) (*domain.Node, error)
}

// RunResponse is the structured result of the run_plan tool.
type RunResponse struct {
	RunID   string         `json:"run_id"`
	Plan    string         `json:"plan,omitempty"`
	Passed  bool           `json:"passed"`
	Saved   bool           `json:"saved"`
	Summary domain.Summary `json:"summary"`
	// Failures lists the display names of failed tests and invocations.
	Failures []string `json:"failures,omitempty"`
}

// Server exposes a plan as an MCP Server.
type Server struct {
	runner    Runner
	reports   ports.ReportStore
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the server.
type Option func(*Server)

// WithReports persists the reports of run_plan and enables the report tools.
func WithReports(store ports.ReportStore) Option {
	return func(s *Server) {
		s.reports = store
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(runner Runner, version string, opts ...Option) *Server {
	s := &Server{
		runner:    runner,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("arbor-mcp", strings.TrimSpace(version), server.WithToolCapabilities(true)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr string) error {
	baseURL := "http://" + addr
	if strings.HasPrefix(addr, ":") {
		baseURL = "http://localhost" + addr
	}
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))
	httpServer := &http.Server{Addr: addr, Handler: mux}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("run_plan",
		mcp.WithDescription("Run the served test plan and return its summary and failures."),
	), s.handleRunPlan)

	s.mcpServer.AddTool(mcp.NewTool("get_plan",
		mcp.WithDescription("Get the node tree of the served plan for introspection."),
	), s.handleGetPlan)

	if s.reports == nil {
		return
	}

	s.mcpServer.AddTool(mcp.NewTool("list_reports",
		mcp.WithDescription("List the IDs of the saved run reports."),
	), s.handleListReports)

	s.mcpServer.AddTool(mcp.NewTool("get_report",
		mcp.WithDescription("Get a saved run report."),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("ID of the run")),
	), s.handleGetReport)
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(PlanURI, "Served plan",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		root, err := s.runner.Inspect(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to inspect plan: %w", err)
		}
		data, err := json.Marshal(root)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      PlanURI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}

func (s *Server) handleRunPlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.runner.Run(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run failed: %v", err)), nil
	}

	resp := RunResponse{
		RunID:    report.RunID,
		Plan:     report.Plan,
		Passed:   report.Passed(),
		Summary:  report.Summary(),
		Failures: failures(report.Root),
	}
	if s.reports != nil {
		if err := s.reports.Save(ctx, report.RunID, report); err != nil {
			s.logger.Error("report not saved", "run", report.RunID, "err", err)
		} else {
			resp.Saved = true
		}
	}
	return jsonResult(resp)
}

func (s *Server) handleGetPlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	root, err := s.runner.Inspect(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("inspect failed: %v", err)), nil
	}
	return jsonResult(root)
}

func (s *Server) handleListReports(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids, err := s.reports.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
	}
	return jsonResult(ids)
}

func (s *Server) handleGetReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := request.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	report, err := s.reports.Load(ctx, runID)
	if errors.Is(err, domain.ErrReportNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("report %s not found", runID)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load failed: %v", err)), nil
	}
	return jsonResult(report)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

func failures(res *domain.Result) []string {
	if res == nil {
		return nil
	}
	var out []string
	if res.Status == domain.StateFailed {
		out = append(out, res.DisplayName)
	}
	for _, inv := range res.Invocations {
		if inv.Status == domain.StateFailed {
			out = append(out, res.DisplayName+" "+inv.DisplayName)
		}
	}
	for _, c := range res.Children {
		out = append(out, failures(c)...)
	}
	return out
}
