package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/go-chi/chi/v5"
)

// Runner executes the served plan.
type Runner interface {
	Run(ctx context.Context) (*domain.Report, error)
	Inspect(ctx context.Context) (*domain.Node, error)
}

// Server exposes runs, reports and run events over HTTP.
type Server struct {
	Runner  Runner
	Reports ports.ReportStore
	Streams *StreamManager
	Metrics http.Handler
	Version string
	Logger  *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithStreams shares a StreamManager whose Hooks feed the engine.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) { s.Streams = sm }
}

// WithMetrics mounts h on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.Metrics = h }
}

// WithVersion sets the version reported by /info.
func WithVersion(v string) Option {
	return func(s *Server) { s.Version = v }
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.Logger = logger }
}

// NewHandler creates the HTTP handler. reports may be nil, in which case runs are not
// persisted and the /reports routes answer 404.
func NewHandler(runner Runner, reports ports.ReportStore, opts ...Option) http.Handler {
	s := &Server{
		Runner:  runner,
		Reports: reports,
		Version: "dev",
		Logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager()
	}
	return s.Routes()
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/plan", s.GetPlan)
	r.Post("/runs", s.CreateRun)
	r.Get("/events", s.SubscribeEvents)

	r.Route("/reports", func(r chi.Router) {
		r.Get("/", s.ListReports)
		r.Get("/{id}", s.GetReport)
		r.Delete("/{id}", s.DeleteReport)
	})

	if s.Metrics != nil {
		r.Handle("/metrics", s.Metrics)
	}
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RunResponse is the body returned by POST /runs.
type RunResponse struct {
	Report  *domain.Report `json:"report"`
	Summary domain.Summary `json:"summary"`
	Passed  bool           `json:"passed"`
	Saved   bool           `json:"saved"`
}

// GetHealth handles GET /healthz.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "arbor-http",
		"version": s.Version,
	})
}

// GetPlan handles GET /plan.
func (s *Server) GetPlan(w http.ResponseWriter, r *http.Request) {
	root, err := s.Runner.Inspect(r.Context())
	if err != nil {
		s.fail(w, http.StatusInternalServerError, "Inspect failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, root)
}

// CreateRun handles POST /runs: it runs the plan and stores the report when a store is
// configured.
func (s *Server) CreateRun(w http.ResponseWriter, r *http.Request) {
	report, err := s.Runner.Run(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrConfiguration) {
			s.fail(w, http.StatusUnprocessableEntity, "Run rejected", err)
			return
		}
		s.fail(w, http.StatusInternalServerError, "Run failed", err)
		return
	}

	resp := RunResponse{Report: report, Summary: report.Summary(), Passed: report.Passed()}
	if s.Reports != nil {
		if err := s.Reports.Save(r.Context(), report.RunID, report); err != nil {
			s.fail(w, http.StatusInternalServerError, "Saving report failed", err)
			return
		}
		resp.Saved = true
	}
	s.Logger.Info("run served", "run", report.RunID, "passed", resp.Passed)
	s.writeJSON(w, http.StatusCreated, resp)
}

// ListReports handles GET /reports.
func (s *Server) ListReports(w http.ResponseWriter, r *http.Request) {
	if s.Reports == nil {
		http.NotFound(w, r)
		return
	}
	ids, err := s.Reports.List(r.Context())
	if err != nil {
		s.fail(w, http.StatusInternalServerError, "List failed", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"reports": ids})
}

// GetReport handles GET /reports/{id}.
func (s *Server) GetReport(w http.ResponseWriter, r *http.Request) {
	if s.Reports == nil {
		http.NotFound(w, r)
		return
	}
	report, err := s.Reports.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrReportNotFound) {
			s.fail(w, http.StatusNotFound, "Report not found", err)
			return
		}
		s.fail(w, http.StatusInternalServerError, "Load failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// DeleteReport handles DELETE /reports/{id}.
func (s *Server) DeleteReport(w http.ResponseWriter, r *http.Request) {
	if s.Reports == nil {
		http.NotFound(w, r)
		return
	}
	if err := s.Reports.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, http.StatusInternalServerError, "Delete failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SubscribeEvents handles GET /events (SSE). With ?run_id= only that run is streamed.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	topic := r.URL.Query().Get("run_id")
	if topic == "" {
		topic = AllRuns
	}
	ch, cancel := s.Streams.Subscribe(topic)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.Logger.Debug("SSE client disconnected", "topic", topic)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, msg.Data)
			flusher.Flush()
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Error("response encode failed", "err", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, status int, msg string, err error) {
	if status >= http.StatusInternalServerError {
		s.Logger.Error(msg, "err", err)
	} else {
		s.Logger.Warn(msg, "err", err)
	}
	s.writeJSON(w, status, map[string]string{"error": fmt.Sprintf("%s: %v", msg, err)})
}
