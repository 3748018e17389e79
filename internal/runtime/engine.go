package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/config"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/expressions"
	"github.com/aretw0/arbor/pkg/extension"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/registry"
	"github.com/aretw0/arbor/pkg/store"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ReasonCancelled is reported for nodes that did not start, or templates that stopped
// expanding, because the run context was cancelled.
const ReasonCancelled = "execution cancelled"

// EngineScopeLabel is the label of the root scope of every run.
const EngineScopeLabel = "engine"

// Engine walks a node tree depth-first. For each node it evaluates conditions, opens a
// scope, runs lifecycle callbacks, binds parameters and invokes bodies, expanding
// templates through their providers. Scopes are closed bottom-up whatever the outcome.
type Engine struct {
	registry    *registry.Registry
	invoker     ports.Invoker
	params      config.Parameters
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	parallelism int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks. With parallelism above one, hooks
// are called from several goroutines.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithInvoker sets the executor of test and invocation bodies.
func WithInvoker(invoker ports.Invoker) Option {
	return func(e *Engine) {
		e.invoker = invoker
	}
}

// WithConfiguration sets the configuration parameters visible to extensions.
func WithConfiguration(params config.Parameters) Option {
	return func(e *Engine) {
		e.params = params
	}
}

// WithParallelism runs the children of a container with at most n goroutines.
// Values below two keep the walk sequential.
func WithParallelism(n int) Option {
	return func(e *Engine) {
		e.parallelism = n
	}
}

// NewEngine creates an engine resolving extensions from reg. Bodies are evaluated as
// expressions unless WithInvoker is given.
func NewEngine(reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry:    reg,
		invoker:     expressions.NewInvoker(),
		logger:      logging.NewNop(),
		parallelism: 1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// execution is the state shared by every node of one run.
type execution struct {
	id     string
	logger *slog.Logger
}

// Run executes the tree rooted at root. The returned error is only set when the tree
// itself is invalid; node failures are recorded in the report.
func (e *Engine) Run(ctx context.Context, root *domain.Node) (*domain.Report, error) {
	if root == nil {
		return nil, errors.New("cannot run a nil node")
	}
	domain.Link(root)
	if err := ValidateTree(root); err != nil {
		return nil, fmt.Errorf("invalid node tree: %w", err)
	}

	x := &execution{id: uuid.NewString()}
	x.logger = e.logger.With("run", x.id)
	report := &domain.Report{RunID: x.id, StartedAt: time.Now()}
	x.logger.Info("run started", "root", root.ID)

	arena := store.NewArena(store.WithLogger(x.logger))
	engineScope := arena.Root(EngineScopeLabel)
	report.Root = e.runNode(ctx, x, root, engineScope)

	// Scopes left open by a misbehaving provider are closed here.
	if err := errors.Join(engineScope.Close(), arena.CloseAll()); err != nil {
		report.Root.Status = domain.StateFailed
		report.Root.Error = joinMessages(report.Root.Error, err.Error())
	}
	report.FinishedAt = time.Now()

	summary := report.Summary()
	x.logger.Info("run finished",
		"total", summary.Total,
		"successful", summary.Successful,
		"failed", summary.Failed,
		"aborted", summary.Aborted,
		"skipped", summary.Skipped,
		"duration", report.FinishedAt.Sub(report.StartedAt),
	)
	return report, nil
}

// nodeRun accumulates the outcome of one node.
type nodeRun struct {
	node   *domain.Node
	lc     *domain.Lifecycle
	res    *domain.Result
	reason string
	errs   []error
}

func (nr *nodeRun) move(next domain.NodeState) {
	if err := nr.lc.Transition(next); err != nil {
		nr.errs = append(nr.errs, err)
	}
}

func (nr *nodeRun) fail(err error) {
	nr.errs = append(nr.errs, err)
	nr.move(domain.StateFailed)
}

func (nr *nodeRun) skip(reason string) {
	nr.reason = reason
	nr.move(domain.StateSkipped)
}

func (e *Engine) runNode(ctx context.Context, x *execution, node *domain.Node, parent *store.Scope) *domain.Result {
	nr := &nodeRun{
		node: node,
		lc:   domain.NewLifecycle(),
		res:  &domain.Result{NodeID: node.ID, DisplayName: node.Name(), Kind: node.Kind},
	}
	start := time.Now()
	e.enter(ctx, x, node)
	defer e.leave(ctx, x, nr, start)

	if ctx.Err() != nil {
		nr.skip(ReasonCancelled)
		return nr.res
	}

	decls, err := e.registry.Visible(node)
	if err != nil {
		nr.fail(err)
		return nr.res
	}

	ec := &extension.Context{
		RunID:  x.id,
		Node:   node,
		Scope:  parent,
		Config: e.params,
		Logger: x.logger.With("node", node.ID),
	}
	verdict, err := EvaluateConditions(ctx, decls, ec)
	if err != nil {
		nr.fail(err)
		return nr.res
	}
	if !verdict.Enabled {
		ec.Logger.Debug("node skipped", "reason", verdict.Reason)
		nr.skip(verdict.Reason)
		return nr.res
	}

	scope, err := parent.Child(node.ID)
	if err != nil {
		nr.fail(err)
		return nr.res
	}
	ec.Scope = scope
	nr.move(domain.StateStoreOpened)

	callbacks := registry.Filter(decls, extension.CapabilityLifecycleCallback)
	outcome := domain.StateFailed
	called, err := before(ctx, callbacks, ec)
	if err != nil {
		nr.errs = append(nr.errs, err)
	} else {
		nr.move(domain.StateResolving)
		outcome = e.body(ctx, x, nr, decls, ec)
	}

	if err := after(ctx, callbacks[:called], ec); err != nil {
		nr.errs = append(nr.errs, err)
		outcome = domain.StateFailed
	}
	if err := scope.Close(); err != nil {
		nr.errs = append(nr.errs, err)
		outcome = domain.StateFailed
	}
	nr.move(outcome)
	nr.move(domain.StateClosed)
	return nr.res
}

func (e *Engine) body(ctx context.Context, x *execution, nr *nodeRun, decls []registry.Declaration, ec *extension.Context) domain.NodeState {
	switch nr.node.Kind {
	case domain.KindContainer:
		nr.move(domain.StateRunning)
		nr.res.Children = e.runChildren(ctx, x, nr.node.Children, ec.Scope)
		return domain.StateSuccessful
	case domain.KindTemplate:
		return e.runTemplate(ctx, x, nr, decls, ec)
	default:
		args, err := ResolveParameters(ctx, decls, nr.node, ec)
		if err != nil {
			nr.errs = append(nr.errs, err)
			return domain.StateFailed
		}
		nr.move(domain.StateRunning)
		status, err := classify(e.invoke(ctx, nr.node, args))
		switch status {
		case domain.StateAborted:
			nr.reason = abortReason(err)
		case domain.StateFailed:
			nr.errs = append(nr.errs, err)
		}
		return status
	}
}

func (e *Engine) runChildren(ctx context.Context, x *execution, children []*domain.Node, scope *store.Scope) []*domain.Result {
	results := make([]*domain.Result, len(children))
	if e.parallelism < 2 {
		for i, child := range children {
			results[i] = e.runNode(ctx, x, child, scope)
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(e.parallelism)
	for i, child := range children {
		g.Go(func() error {
			results[i] = e.runNode(ctx, x, child, scope)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// runTemplate expands the template through every visible provider that supports it, one
// provider after the other. Failed invocations do not fail the template.
func (e *Engine) runTemplate(ctx context.Context, x *execution, nr *nodeRun, decls []registry.Declaration, ec *extension.Context) domain.NodeState {
	var providers []registry.Declaration
	for _, d := range registry.Filter(decls, extension.CapabilityTemplateProvider) {
		if d.Extension.TemplateProvider.Supports(ec) {
			providers = append(providers, d)
		}
	}
	if len(providers) == 0 {
		nr.errs = append(nr.errs, missingProvider(nr.node))
		return domain.StateFailed
	}

	nr.move(domain.StateExpanding)
	for _, d := range providers {
		if status := e.expand(ctx, x, nr, d, decls, ec); status != domain.StateSuccessful {
			return status
		}
	}
	return domain.StateSuccessful
}

func (e *Engine) expand(ctx context.Context, x *execution, nr *nodeRun, provider registry.Declaration, decls []registry.Declaration, ec *extension.Context) domain.NodeState {
	stream, err := provider.Extension.TemplateProvider.Provide(ctx, ec)
	if err != nil {
		nr.errs = append(nr.errs, fmt.Errorf("provider %q: %w", provider.Extension.ID, err))
		return domain.StateFailed
	}

	status := domain.StateSuccessful
	for {
		if ctx.Err() != nil {
			nr.reason = ReasonCancelled
			status = domain.StateAborted
			break
		}

		inv, err := stream.Next(ctx)
		if errors.Is(err, extension.ErrStreamDone) {
			break
		}
		var invErr *extension.InvocationError
		if errors.As(err, &invErr) {
			nr.res.Invocations = append(nr.res.Invocations, e.rejectInvocation(ctx, x, nr.node, invErr))
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				nr.reason = ReasonCancelled
				status = domain.StateAborted
			} else {
				nr.errs = append(nr.errs, err)
				status = domain.StateFailed
			}
			break
		}
		nr.res.Invocations = append(nr.res.Invocations, e.runInvocation(ctx, x, nr.node, inv, decls, ec))
	}

	if err := stream.Close(); err != nil {
		nr.errs = append(nr.errs, err)
		status = domain.StateFailed
	}
	return status
}

// runInvocation executes one invocation inside its own scope, with the extensions it
// contributes appended to those visible on the template.
func (e *Engine) runInvocation(ctx context.Context, x *execution, node *domain.Node, inv *extension.Invocation, decls []registry.Declaration, ec *extension.Context) domain.InvocationResult {
	start := time.Now()
	e.invocationStart(ctx, x, node, inv.Index, inv.DisplayName)

	iec := ec.ForInvocation(inv)
	iec.Logger = ec.Logger.With("invocation", inv.Index)
	all := slices.Clone(decls)
	for _, ext := range inv.Extensions {
		all = append(all, registry.Declaration{Extension: ext, DeclaredBy: node.ID})
	}

	callbacks := registry.Filter(all, extension.CapabilityLifecycleCallback)
	status := domain.StateFailed
	called, err := before(ctx, callbacks, iec)
	if err == nil {
		var args []any
		if args, err = ResolveParameters(ctx, all, node, iec); err == nil {
			status, err = classify(e.invoke(ctx, node, args))
		}
	}
	if aerr := after(ctx, callbacks[:called], iec); aerr != nil {
		err = errors.Join(err, aerr)
		status = domain.StateFailed
	}
	if inv.Scope != nil {
		if cerr := inv.Scope.Close(); cerr != nil {
			err = errors.Join(err, cerr)
			status = domain.StateFailed
		}
	}

	result := domain.InvocationResult{
		Index:       inv.Index,
		DisplayName: inv.DisplayName,
		Status:      status,
		Duration:    time.Since(start),
	}
	if err != nil {
		result.Error = err.Error()
	}
	iec.Logger.Debug("invocation finished", "name", inv.DisplayName, "status", status, "err", err)
	e.invocationFinish(ctx, x, node, result, err)
	return result
}

// rejectInvocation records an element the stream refused to produce.
func (e *Engine) rejectInvocation(ctx context.Context, x *execution, node *domain.Node, invErr *extension.InvocationError) domain.InvocationResult {
	e.invocationStart(ctx, x, node, invErr.Index, invErr.DisplayName)
	result := domain.InvocationResult{
		Index:       invErr.Index,
		DisplayName: invErr.DisplayName,
		Status:      domain.StateFailed,
		Error:       invErr.Err.Error(),
	}
	e.invocationFinish(ctx, x, node, result, invErr.Err)
	return result
}

func (e *Engine) invoke(ctx context.Context, node *domain.Node, args []any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("body of %q panicked: %v", node.ID, r)
		}
	}()
	return e.invoker.Invoke(ctx, node, args)
}

// classify maps the error of a body to an outcome. Aborts and cancellations are not
// failures.
func classify(err error) (domain.NodeState, error) {
	switch {
	case err == nil:
		return domain.StateSuccessful, nil
	case errors.Is(err, domain.ErrAborted),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return domain.StateAborted, err
	default:
		return domain.StateFailed, err
	}
}

func abortReason(err error) string {
	var aborted *domain.AbortedError
	if errors.As(err, &aborted) {
		return aborted.Reason
	}
	return ReasonCancelled
}

// before calls Before on each callback in order and stops at the first failure. It
// returns how many callbacks were called, the failing one included.
func before(ctx context.Context, callbacks []registry.Declaration, ec *extension.Context) (int, error) {
	for i, d := range callbacks {
		if err := d.Extension.Callback.Before(ctx, ec); err != nil {
			return i + 1, callbackError(d, ec, "before", err)
		}
	}
	return len(callbacks), nil
}

// after calls After in reverse order and keeps going on failure.
func after(ctx context.Context, callbacks []registry.Declaration, ec *extension.Context) error {
	var errs []error
	for i := len(callbacks) - 1; i >= 0; i-- {
		d := callbacks[i]
		if err := d.Extension.Callback.After(ctx, ec); err != nil {
			errs = append(errs, callbackError(d, ec, "after", err))
		}
	}
	return errors.Join(errs...)
}

func callbackError(d registry.Declaration, ec *extension.Context, phase string, err error) error {
	return &domain.ConfigurationError{
		Code:    domain.CodeCallbackFailed,
		Subject: fmt.Sprintf("%s callback %q on node %q", phase, d.Extension.ID, ec.Node.ID),
		Err:     err,
	}
}

func (e *Engine) enter(ctx context.Context, x *execution, node *domain.Node) {
	x.logger.Debug("node entered", "node", node.ID, "kind", node.Kind)
	if e.hooks.OnNodeEnter == nil {
		return
	}
	e.hooks.OnNodeEnter(ctx, &domain.NodeEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventNodeEnter, RunID: x.id},
		NodeID:    node.ID,
		Kind:      node.Kind,
	})
}

func (e *Engine) leave(ctx context.Context, x *execution, nr *nodeRun, start time.Time) {
	err := errors.Join(nr.errs...)
	nr.res.Status = nr.lc.Outcome()
	nr.res.Reason = nr.reason
	nr.res.Duration = time.Since(start)
	if err != nil {
		nr.res.Error = err.Error()
	}

	x.logger.Debug("node left",
		"node", nr.node.ID,
		"status", nr.res.Status,
		"reason", nr.reason,
		"err", err,
		"duration", nr.res.Duration,
	)
	if e.hooks.OnNodeLeave == nil {
		return
	}
	e.hooks.OnNodeLeave(ctx, &domain.NodeEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventNodeLeave, RunID: x.id},
		NodeID:    nr.node.ID,
		Kind:      nr.node.Kind,
		Status:    nr.res.Status,
		Reason:    nr.reason,
		Err:       err,
		Duration:  nr.res.Duration,
	})
}

func (e *Engine) invocationStart(ctx context.Context, x *execution, node *domain.Node, index int, name string) {
	if e.hooks.OnInvocationStart == nil {
		return
	}
	e.hooks.OnInvocationStart(ctx, &domain.InvocationEvent{
		EventBase:   domain.EventBase{Timestamp: time.Now(), Type: domain.EventInvocationStart, RunID: x.id},
		NodeID:      node.ID,
		Index:       index,
		DisplayName: name,
	})
}

func (e *Engine) invocationFinish(ctx context.Context, x *execution, node *domain.Node, res domain.InvocationResult, err error) {
	if e.hooks.OnInvocationFinish == nil {
		return
	}
	e.hooks.OnInvocationFinish(ctx, &domain.InvocationEvent{
		EventBase:   domain.EventBase{Timestamp: time.Now(), Type: domain.EventInvocationFinish, RunID: x.id},
		NodeID:      node.ID,
		Index:       res.Index,
		DisplayName: res.DisplayName,
		Status:      res.Status,
		Err:         err,
		Duration:    res.Duration,
	})
}

func joinMessages(msgs ...string) string {
	var out []string
	for _, m := range msgs {
		if m != "" {
			out = append(out, m)
		}
	}
	return strings.Join(out, "\n")
}
