package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/arbor"
	httpAdapter "github.com/aretw0/arbor/pkg/adapters/http"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/observability"
	"github.com/aretw0/arbor/pkg/plan"
)

// shutdownTimeout bounds how long outstanding requests may take once a signal arrives.
const shutdownTimeout = 5 * time.Second

// PlanRunner reloads its plan on every request, so edits are picked up without a restart.
type PlanRunner struct {
	Engine *arbor.Engine
	Loader plan.Loader
}

func (r *PlanRunner) Run(ctx context.Context) (*domain.Report, error) {
	return r.Engine.RunLoader(ctx, r.Loader)
}

func (r *PlanRunner) Inspect(ctx context.Context) (*domain.Node, error) {
	p, err := r.Loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	return p.Root, nil
}

// ServeOptions configures Serve.
type ServeOptions struct {
	Dir        string
	PlanPath   string
	ConfigPath string
	Addr       string
	Logger     *slog.Logger
	Out        io.Writer
}

// NewServer wires the HTTP adapter: plan runner, report backend, metrics and event
// streams. The returned cleanup closes the backend.
func NewServer(opts ServeOptions) (http.Handler, *observability.Metrics, func() error, error) {
	settings, err := LoadSettings(opts.ConfigPath, opts.Dir)
	if err != nil {
		return nil, nil, nil, err
	}
	loader, err := PlanLoader(opts.PlanPath)
	if err != nil {
		return nil, nil, nil, err
	}
	backend, err := OpenBackend(settings, opts.Dir)
	if err != nil {
		return nil, nil, nil, err
	}

	metrics := observability.NewMetrics()
	streams := httpAdapter.NewStreamManager()
	engine := createEngine(EngineOptions{
		Settings: settings,
		Logger:   opts.Logger,
		Dir:      opts.Dir,
		Hooks:    []domain.LifecycleHooks{metrics.Hooks(), streams.Hooks()},
	})

	handler := httpAdapter.NewHandler(&PlanRunner{Engine: engine, Loader: loader}, backend.Store,
		httpAdapter.WithStreams(streams),
		httpAdapter.WithMetrics(metrics.Handler()),
		httpAdapter.WithVersion(arbor.Version),
		httpAdapter.WithLogger(opts.Logger),
	)
	return handler, metrics, backend.Close, nil
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down gracefully.
// When the settings name a metrics address, metrics are also served there.
func Serve(ctx context.Context, opts ServeOptions) error {
	settings, err := LoadSettings(opts.ConfigPath, opts.Dir)
	if err != nil {
		return err
	}
	handler, metrics, cleanup, err := NewServer(opts)
	if err != nil {
		return err
	}
	defer cleanup()

	servers := []*http.Server{{Addr: opts.Addr, Handler: handler}}
	if settings.MetricsAddr != "" {
		servers = append(servers, &http.Server{Addr: settings.MetricsAddr, Handler: metrics.Handler()})
	}

	serverErrors := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			opts.Logger.Info("listening", "addr", srv.Addr)
			serverErrors <- srv.ListenAndServe()
		}(srv)
	}
	printSystemMessage(opts.Out, "Serving %s on %s", opts.PlanPath, opts.Addr)

	select {
	case err := <-serverErrors:
		for _, srv := range servers {
			_ = srv.Close()
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			opts.Logger.Warn("graceful shutdown did not complete", "addr", srv.Addr, "err", err)
			errs = append(errs, srv.Close())
		}
	}
	printSystemMessage(opts.Out, "Server stopped gracefully")
	return errors.Join(errs...)
}
