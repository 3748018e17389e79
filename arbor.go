package arbor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/config"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/expressions"
	"github.com/aretw0/arbor/pkg/extension"
	"github.com/aretw0/arbor/pkg/history"
	"github.com/aretw0/arbor/pkg/params"
	"github.com/aretw0/arbor/pkg/plan"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/registry"
)

// Version is overridden at build time with -ldflags "-X github.com/aretw0/arbor.Version=...".
var Version = "dev"

// Func is the Go body of a test node or of one template invocation.
type Func func(ctx context.Context, args []any) error

// Funcs maps node IDs to Go bodies. Nodes without an entry fall back to their
// assert expression.
type Funcs map[string]Func

// Invoker returns an invoker running the mapped bodies first and fallback otherwise.
// A nil fallback evaluates assert expressions.
func (f Funcs) Invoker(fallback ports.Invoker) ports.Invoker {
	if fallback == nil {
		fallback = expressions.NewInvoker()
	}
	return ports.InvokerFunc(func(ctx context.Context, node *domain.Node, args []any) error {
		if fn, ok := f[node.ID]; ok {
			return fn(ctx, args)
		}
		return fallback.Invoke(ctx, node, args)
	})
}

// Engine is the high-level entry point for the arbor library.
// It wraps the internal runtime and assembles a fresh extension registry for every run:
// the argument provider as a default, the engine-wide extensions and the extensions the
// plan defines.
type Engine struct {
	funcs       Funcs
	invoker     ports.Invoker
	extensions  []extension.Extension
	defaults    []extension.Extension
	provider    *params.Provider
	params      config.Parameters
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	parallelism int
	history     *history.Manager
	attached    map[string][]params.ArgumentSource
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithFuncs registers Go bodies by node ID.
func WithFuncs(funcs Funcs) Option {
	return func(e *Engine) {
		if e.funcs == nil {
			e.funcs = make(Funcs, len(funcs))
		}
		for id, fn := range funcs {
			e.funcs[id] = fn
		}
	}
}

// WithInvoker replaces the fallback executor of bodies without a Func.
func WithInvoker(invoker ports.Invoker) Option {
	return func(e *Engine) {
		e.invoker = invoker
	}
}

// WithExtensions registers extensions in every run. They are visible only to nodes that
// declare them.
func WithExtensions(exts ...extension.Extension) Option {
	return func(e *Engine) {
		e.extensions = append(e.extensions, exts...)
	}
}

// WithDefaultExtensions registers extensions visible to every node.
func WithDefaultExtensions(exts ...extension.Extension) Option {
	return func(e *Engine) {
		e.defaults = append(e.defaults, exts...)
	}
}

// WithFactories replaces the argument source factories of the built-in provider.
func WithFactories(f *params.Factories) Option {
	return func(e *Engine) {
		e.provider = params.NewProvider(params.WithFactories(f))
	}
}

// WithSources attaches programmatic argument sources to a template node.
func WithSources(nodeID string, sources ...params.ArgumentSource) Option {
	return func(e *Engine) {
		e.attached[nodeID] = append(e.attached[nodeID], sources...)
	}
}

// WithConfiguration sets configuration parameters. Plan configuration takes precedence.
func WithConfiguration(p config.Parameters) Option {
	return func(e *Engine) {
		e.params = e.params.Merge(p)
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = domain.ChainHooks(e.hooks, hooks)
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithParallelism runs container children with at most n goroutines.
func WithParallelism(n int) Option {
	return func(e *Engine) {
		e.parallelism = n
	}
}

// WithHistory records every finished report.
func WithHistory(m *history.Manager) Option {
	return func(e *Engine) {
		e.history = m
	}
}

// New creates an engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger:      logging.NewNop(),
		parallelism: 1,
		attached:    make(map[string][]params.ArgumentSource),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.provider == nil {
		e.provider = params.NewProvider()
	}
	for id, sources := range e.attached {
		e.provider.Attach(id, sources...)
	}
	e.attached = nil
	return e
}

// Attach adds programmatic argument sources to a template node after construction.
func (e *Engine) Attach(nodeID string, sources ...params.ArgumentSource) {
	e.provider.Attach(nodeID, sources...)
}

// Run executes a plan and records the report when a history is configured. A recording
// failure is returned together with the report.
func (e *Engine) Run(ctx context.Context, p *plan.Plan) (*domain.Report, error) {
	if p == nil {
		return nil, errors.New("cannot run a nil plan")
	}
	rt, err := e.runtime(p)
	if err != nil {
		return nil, err
	}

	report, err := rt.Run(ctx, p.Root)
	if err != nil {
		return nil, err
	}
	report.Plan = p.Name

	if e.history != nil {
		if err := e.history.Record(ctx, report); err != nil {
			return report, fmt.Errorf("failed to record report %s: %w", report.RunID, err)
		}
	}
	return report, nil
}

// RunLoader loads a plan and runs it.
func (e *Engine) RunLoader(ctx context.Context, loader plan.Loader) (*domain.Report, error) {
	p, err := loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, p)
}

// RunTree executes a programmatic node tree under the name given.
func (e *Engine) RunTree(ctx context.Context, name string, root *domain.Node) (*domain.Report, error) {
	return e.Run(ctx, &plan.Plan{Name: name, Root: root})
}

// Check validates a plan without executing anything.
func (e *Engine) Check(p *plan.Plan) error {
	if p == nil || p.Root == nil {
		return errors.New("cannot check an empty plan")
	}
	rt, err := e.runtime(p)
	if err != nil {
		return err
	}
	return rt.Check(p.Root)
}

// Registry returns the registry a run of p would use.
func (e *Engine) Registry(p *plan.Plan) (*registry.Registry, error) {
	reg := registry.NewRegistry()
	if err := reg.RegisterDefault(e.provider.Extension()); err != nil {
		return nil, err
	}
	for _, ext := range e.defaults {
		if err := reg.RegisterDefault(ext); err != nil {
			return nil, err
		}
	}
	for _, ext := range e.extensions {
		if err := reg.Register(ext); err != nil {
			return nil, err
		}
	}
	if p != nil {
		if err := p.Register(reg); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (e *Engine) runtime(p *plan.Plan) (*runtime.Engine, error) {
	reg, err := e.Registry(p)
	if err != nil {
		return nil, err
	}

	invoker := e.invoker
	if len(e.funcs) > 0 {
		invoker = e.funcs.Invoker(invoker)
	}
	opts := []runtime.Option{
		runtime.WithConfiguration(e.params.Merge(p.Configuration)),
		runtime.WithLifecycleHooks(e.hooks),
		runtime.WithLogger(e.logger),
		runtime.WithParallelism(e.parallelism),
	}
	if invoker != nil {
		opts = append(opts, runtime.WithInvoker(invoker))
	}
	return runtime.NewEngine(reg, opts...), nil
}
