package runtime_test

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/conditions"
	"github.com/aretw0/arbor/pkg/config"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/extension"
	"github.com/aretw0/arbor/pkg/params"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/registry"
	"github.com/aretw0/arbor/pkg/resolvers"
	"github.com/aretw0/arbor/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func container(id string, children ...*domain.Node) *domain.Node {
	return (&domain.Node{ID: id, Kind: domain.KindContainer}).Add(children...)
}

func test(id string, extensions ...string) *domain.Node {
	return &domain.Node{ID: id, Kind: domain.KindTest, Extensions: extensions}
}

// calls records the bodies invoked by the engine.
type calls struct {
	mu   sync.Mutex
	ids  []string
	args map[string][][]any
}

func (c *calls) invoker(fn func(ctx context.Context, node *domain.Node) error) ports.Invoker {
	return ports.InvokerFunc(func(ctx context.Context, node *domain.Node, args []any) error {
		c.mu.Lock()
		c.ids = append(c.ids, node.ID)
		if c.args == nil {
			c.args = make(map[string][][]any)
		}
		c.args[node.ID] = append(c.args[node.ID], args)
		c.mu.Unlock()
		if fn != nil {
			return fn(ctx, node)
		}
		return nil
	})
}

func (c *calls) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ids...)
}

// leaveErrors captures the error of every node leave event.
func leaveErrors() (domain.LifecycleHooks, func(id string) error) {
	var mu sync.Mutex
	errs := make(map[string]error)
	hooks := domain.LifecycleHooks{
		OnNodeLeave: func(_ context.Context, ev *domain.NodeEvent) {
			mu.Lock()
			defer mu.Unlock()
			errs[ev.NodeID] = ev.Err
		},
	}
	return hooks, func(id string) error {
		mu.Lock()
		defer mu.Unlock()
		return errs[id]
	}
}

// recordingCallback logs Before/After calls as "phase id@node".
type recordingCallback struct {
	id         string
	log        *[]string
	failBefore bool
}

func (c recordingCallback) entry(phase string, ec *extension.Context) string {
	where := ec.Node.ID
	if ec.Invocation != nil {
		where = fmt.Sprintf("%s#%d", where, ec.Invocation.Index)
	}
	return fmt.Sprintf("%s %s@%s", phase, c.id, where)
}

func (c recordingCallback) Before(_ context.Context, ec *extension.Context) error {
	*c.log = append(*c.log, c.entry("before", ec))
	if c.failBefore {
		return errors.New("setup exploded")
	}
	return nil
}

func (c recordingCallback) After(_ context.Context, ec *extension.Context) error {
	*c.log = append(*c.log, c.entry("after", ec))
	return nil
}

func callback(id string, log *[]string) extension.Extension {
	return extension.Extension{ID: id, Callback: recordingCallback{id: id, log: log}}
}

func TestEngine_Run_DepthFirst(t *testing.T) {
	var c calls
	root := container("root",
		container("suite", test("a"), test("b")),
		test("c"),
	)

	report, err := runtime.NewEngine(registry.NewRegistry(), runtime.WithInvoker(c.invoker(nil))).
		Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, c.list())
	assert.NotEmpty(t, report.RunID)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))
	assert.Equal(t, domain.StateSuccessful, report.Root.Status)
	assert.Equal(t, domain.StateSuccessful, report.Root.Find("b").Status)
	assert.Equal(t, domain.Summary{Total: 3, Successful: 3}, report.Summary())
	assert.True(t, report.Passed())
}

func TestEngine_Run_InvalidTree(t *testing.T) {
	engine := runtime.NewEngine(registry.NewRegistry())

	_, err := engine.Run(context.Background(), nil)
	assert.Error(t, err)

	_, err = engine.Run(context.Background(), container("root", test("dup"), test("dup")))
	assert.ErrorContains(t, err, `duplicate node ID "dup"`)

	_, err = engine.Run(context.Background(), test("leaf").Add(test("child")))
	assert.ErrorContains(t, err, "only containers can have children")
}

func TestEngine_Run_LifecycleHooks(t *testing.T) {
	var events []string
	hooks := domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, ev *domain.NodeEvent) {
			events = append(events, "enter "+ev.NodeID)
		},
		OnNodeLeave: func(_ context.Context, ev *domain.NodeEvent) {
			events = append(events, fmt.Sprintf("leave %s %s", ev.NodeID, ev.Status))
		},
		OnInvocationStart: func(_ context.Context, ev *domain.InvocationEvent) {
			events = append(events, fmt.Sprintf("start %s#%d", ev.NodeID, ev.Index))
		},
		OnInvocationFinish: func(_ context.Context, ev *domain.InvocationEvent) {
			events = append(events, fmt.Sprintf("finish %s#%d %s", ev.NodeID, ev.Index, ev.Status))
		},
	}

	provider := params.NewProvider(params.WithSources("tpl", params.Values(domain.Arguments(1), domain.Arguments(2))))
	reg := registry.NewRegistry().MustRegister(provider.Extension())
	tpl := &domain.Node{
		ID:         "tpl",
		Kind:       domain.KindTemplate,
		Extensions: []string{params.ProviderID},
		Parameters: []domain.Parameter{{Name: "n", Type: "int"}},
	}

	_, err := runtime.NewEngine(reg,
		runtime.WithLifecycleHooks(hooks),
		runtime.WithInvoker(ports.InvokerFunc(func(context.Context, *domain.Node, []any) error { return nil })),
	).Run(context.Background(), container("root", test("t"), tpl))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"enter root",
		"enter t",
		"leave t successful",
		"enter tpl",
		"start tpl#1",
		"finish tpl#1 successful",
		"start tpl#2",
		"finish tpl#2 successful",
		"leave tpl successful",
		"leave root successful",
	}, events)
}

func TestEngine_Run_Conditions(t *testing.T) {
	t.Run("disabled subtree is skipped with its reason", func(t *testing.T) {
		var c calls
		reg := registry.NewRegistry().MustRegister(conditions.Disabled("off", "flaky on CI"))
		suite := container("suite", test("a"), test("b"))
		suite.Extensions = []string{"off"}

		report, err := runtime.NewEngine(reg, runtime.WithInvoker(c.invoker(nil))).
			Run(context.Background(), container("root", suite, test("c")))
		require.NoError(t, err)

		assert.Equal(t, []string{"c"}, c.list())
		res := report.Root.Find("suite")
		assert.Equal(t, domain.StateSkipped, res.Status)
		assert.Equal(t, "flaky on CI", res.Reason)
		assert.Empty(t, res.Children)
		assert.Equal(t, domain.Summary{Total: 2, Successful: 1, Skipped: 1}, report.Summary())
	})

	t.Run("failing condition fails the node without running it", func(t *testing.T) {
		var c calls
		broken := extension.Extension{
			ID: "broken",
			Condition: extension.ConditionFunc(func(context.Context, *extension.Context) (extension.ConditionResult, error) {
				return extension.ConditionResult{}, errors.New("cannot evaluate")
			}),
		}
		hooks, errOf := leaveErrors()
		reg := registry.NewRegistry().MustRegister(broken)

		report, err := runtime.NewEngine(reg, runtime.WithInvoker(c.invoker(nil)), runtime.WithLifecycleHooks(hooks)).
			Run(context.Background(), container("root", test("t", "broken")))
		require.NoError(t, err)

		assert.Empty(t, c.list())
		assert.Equal(t, domain.StateFailed, report.Root.Find("t").Status)

		var cfgErr *domain.ConfigurationError
		require.ErrorAs(t, errOf("t"), &cfgErr)
		assert.Equal(t, domain.CodeConditionFailed, cfgErr.Code)
	})

	t.Run("unknown extension fails the node", func(t *testing.T) {
		hooks, errOf := leaveErrors()
		report, err := runtime.NewEngine(registry.NewRegistry(), runtime.WithLifecycleHooks(hooks)).
			Run(context.Background(), container("root", test("t", "missing")))
		require.NoError(t, err)

		assert.Equal(t, domain.StateFailed, report.Root.Find("t").Status)
		var cfgErr *domain.ConfigurationError
		require.ErrorAs(t, errOf("t"), &cfgErr)
		assert.Equal(t, domain.CodeUnknownExtension, cfgErr.Code)
	})
}

func TestEngine_Run_AmbiguousResolution(t *testing.T) {
	var c calls
	hooks, errOf := leaveErrors()
	reg := registry.NewRegistry().MustRegister(
		resolvers.Value("first", "x", 1),
		resolvers.Value("second", "x", 2),
	)
	node := test("t", "first", "second")
	node.Parameters = []domain.Parameter{{Name: "x", Type: "int"}}

	report, err := runtime.NewEngine(reg, runtime.WithInvoker(c.invoker(nil)), runtime.WithLifecycleHooks(hooks)).
		Run(context.Background(), node)
	require.NoError(t, err)

	assert.Empty(t, c.list(), "the body must not run")
	assert.Equal(t, domain.StateFailed, report.Root.Status)

	var resErr *domain.ParameterResolutionError
	require.ErrorAs(t, errOf("t"), &resErr)
	assert.Equal(t, domain.CodeAmbiguous, resErr.Code)
	assert.Equal(t, []string{"first", "second"}, resErr.Resolvers)
	assert.ErrorIs(t, errOf("t"), domain.ErrParameterResolution)
}

func TestEngine_Run_ResolvesParameters(t *testing.T) {
	var c calls
	reg := registry.NewRegistry().MustRegister(resolvers.Value("answer", "n", 42))
	node := test("t", "answer")
	node.Parameters = []domain.Parameter{{Name: "n", Type: "int"}}

	report, err := runtime.NewEngine(reg, runtime.WithInvoker(c.invoker(nil))).Run(context.Background(), node)
	require.NoError(t, err)

	assert.Equal(t, domain.StateSuccessful, report.Root.Status)
	assert.Equal(t, [][]any{{42}}, c.args["t"])
}

func templateNode(mode string, allowZero bool) *domain.Node {
	return &domain.Node{
		ID:         "tpl",
		Kind:       domain.KindTemplate,
		Extensions: []string{params.ProviderID},
		Parameters: []domain.Parameter{{Name: "a", Type: "string"}, {Name: "b", Type: "int"}},
		Template: &domain.TemplateConfig{
			ArgumentCountValidation: mode,
			AllowZeroInvocations:    allowZero,
		},
	}
}

func TestEngine_Run_ArgumentCountValidation(t *testing.T) {
	run := func(t *testing.T, node *domain.Node, cfg map[string]string) (*domain.Report, *calls) {
		t.Helper()
		var c calls
		provider := params.NewProvider(params.WithSources("tpl", params.Values(domain.Arguments("x", 1, "extra"))))
		reg := registry.NewRegistry().MustRegister(provider.Extension())

		report, err := runtime.NewEngine(reg,
			runtime.WithInvoker(c.invoker(nil)),
			runtime.WithConfiguration(config.NewParameters(cfg)),
		).Run(context.Background(), node)
		require.NoError(t, err)
		return report, &c
	}

	t.Run("STRICT rejects the invocation before binding", func(t *testing.T) {
		report, c := run(t, templateNode(domain.ValidationStrict, false), nil)

		assert.Empty(t, c.list())
		require.Len(t, report.Root.Invocations, 1)
		inv := report.Root.Invocations[0]
		assert.Equal(t, domain.StateFailed, inv.Status)
		assert.Contains(t, inv.Error, domain.CodeArgumentCountMismatch)
		assert.Equal(t, "[1] x, 1, extra", inv.DisplayName)
		// Rejected invocations do not fail the template itself.
		assert.Equal(t, domain.StateSuccessful, report.Root.Status)
		assert.False(t, report.Passed())
	})

	t.Run("NONE proceeds to binding", func(t *testing.T) {
		report, c := run(t, templateNode(domain.ValidationNone, false), nil)

		assert.Equal(t, []string{"tpl"}, c.list())
		assert.Equal(t, [][]any{{"x", 1}}, c.args["tpl"])
		require.Len(t, report.Root.Invocations, 1)
		assert.Equal(t, domain.StateSuccessful, report.Root.Invocations[0].Status)
	})

	t.Run("DEFAULT follows the configuration", func(t *testing.T) {
		report, c := run(t, templateNode("", false), map[string]string{params.KeyValidationMode: "strict"})

		assert.Empty(t, c.list())
		require.Len(t, report.Root.Invocations, 1)
		assert.Equal(t, domain.StateFailed, report.Root.Invocations[0].Status)
	})
}

func TestEngine_Run_ZeroInvocations(t *testing.T) {
	run := func(t *testing.T, allowZero bool) (*domain.Report, func(string) error) {
		t.Helper()
		hooks, errOf := leaveErrors()
		provider := params.NewProvider(params.WithSources("tpl", params.Values()))
		reg := registry.NewRegistry().MustRegister(provider.Extension())
		report, err := runtime.NewEngine(reg, runtime.WithLifecycleHooks(hooks)).
			Run(context.Background(), templateNode("", allowZero))
		require.NoError(t, err)
		return report, errOf
	}

	t.Run("required", func(t *testing.T) {
		report, errOf := run(t, false)
		assert.Equal(t, domain.StateFailed, report.Root.Status)
		assert.Empty(t, report.Root.Invocations)

		var cfgErr *domain.ConfigurationError
		require.ErrorAs(t, errOf("tpl"), &cfgErr)
		assert.Equal(t, domain.CodeNoInvocations, cfgErr.Code)
		assert.Equal(t, 1, countSubstring(report.Root.Error, domain.CodeNoInvocations))
	})

	t.Run("allowed", func(t *testing.T) {
		report, _ := run(t, true)
		assert.Equal(t, domain.StateSuccessful, report.Root.Status)
	})
}

func countSubstring(s, sub string) int {
	n := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			n++
		}
	}
	return n
}

func TestEngine_Run_MissingProvider(t *testing.T) {
	hooks, errOf := leaveErrors()
	report, err := runtime.NewEngine(registry.NewRegistry(), runtime.WithLifecycleHooks(hooks)).
		Run(context.Background(), &domain.Node{ID: "tpl", Kind: domain.KindTemplate})
	require.NoError(t, err)

	assert.Equal(t, domain.StateFailed, report.Root.Status)
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, errOf("tpl"), &cfgErr)
	assert.Equal(t, domain.CodeMissingProvider, cfgErr.Code)
}

func TestEngine_Run_SourceErrorFailsTemplate(t *testing.T) {
	boom := errors.New("source broke")
	src := params.SourceFunc(func(context.Context, *extension.Context) iter.Seq2[domain.ArgumentSet, error] {
		return func(yield func(domain.ArgumentSet, error) bool) {
			if !yield(domain.Arguments("x", 1), nil) {
				return
			}
			yield(domain.ArgumentSet{}, boom)
		}
	})
	var c calls
	hooks, errOf := leaveErrors()
	provider := params.NewProvider(params.WithSources("tpl", src))
	reg := registry.NewRegistry().MustRegister(provider.Extension())

	report, err := runtime.NewEngine(reg, runtime.WithInvoker(c.invoker(nil)), runtime.WithLifecycleHooks(hooks)).
		Run(context.Background(), templateNode("", false))
	require.NoError(t, err)

	assert.Equal(t, []string{"tpl"}, c.list())
	assert.Len(t, report.Root.Invocations, 1)
	assert.Equal(t, domain.StateFailed, report.Root.Status)
	assert.ErrorIs(t, errOf("tpl"), boom)
}

func TestEngine_Run_Callbacks(t *testing.T) {
	t.Run("around nodes and invocations, after in reverse order", func(t *testing.T) {
		var log []string
		provider := params.NewProvider(params.WithSources("tpl", params.Values(domain.Arguments("x", 1))))
		reg := registry.NewRegistry().MustRegister(callback("outer", &log), callback("inner", &log), provider.Extension())
		tpl := templateNode("", false)
		tpl.Extensions = append(tpl.Extensions, "inner")
		root := container("root", tpl)
		root.Extensions = []string{"outer"}

		invoker := ports.InvokerFunc(func(_ context.Context, node *domain.Node, _ []any) error {
			log = append(log, "body "+node.ID)
			return nil
		})
		report, err := runtime.NewEngine(reg, runtime.WithInvoker(invoker)).Run(context.Background(), root)
		require.NoError(t, err)
		assert.True(t, report.Passed())

		assert.Equal(t, []string{
			"before outer@root",
			"before outer@tpl",
			"before inner@tpl",
			"before outer@tpl#1",
			"before inner@tpl#1",
			"body tpl",
			"after inner@tpl#1",
			"after outer@tpl#1",
			"after inner@tpl",
			"after outer@tpl",
			"after outer@root",
		}, log)
	})

	t.Run("failing before skips the body but still runs after", func(t *testing.T) {
		var log []string
		var c calls
		hooks, errOf := leaveErrors()
		reg := registry.NewRegistry().MustRegister(
			callback("ok", &log),
			extension.Extension{ID: "bad", Callback: recordingCallback{id: "bad", log: &log, failBefore: true}},
			callback("never", &log),
		)

		report, err := runtime.NewEngine(reg, runtime.WithInvoker(c.invoker(nil)), runtime.WithLifecycleHooks(hooks)).
			Run(context.Background(), test("t", "ok", "bad", "never"))
		require.NoError(t, err)

		assert.Empty(t, c.list())
		assert.Equal(t, []string{"before ok@t", "before bad@t", "after bad@t", "after ok@t"}, log)
		assert.Equal(t, domain.StateFailed, report.Root.Status)

		var cfgErr *domain.ConfigurationError
		require.ErrorAs(t, errOf("t"), &cfgErr)
		assert.Equal(t, domain.CodeCallbackFailed, cfgErr.Code)
	})
}

func TestEngine_Run_Outcomes(t *testing.T) {
	cases := []struct {
		name   string
		body   func(context.Context, *domain.Node) error
		status domain.NodeState
		reason string
		errMsg string
	}{
		{name: "success", body: func(context.Context, *domain.Node) error { return nil }, status: domain.StateSuccessful},
		{name: "failure", body: func(context.Context, *domain.Node) error { return errors.New("expected 2, got 3") }, status: domain.StateFailed, errMsg: "expected 2, got 3"},
		{name: "abort", body: func(context.Context, *domain.Node) error { return domain.Abort("service not ready") }, status: domain.StateAborted, reason: "service not ready"},
		{name: "panic", body: func(context.Context, *domain.Node) error { panic("nil map") }, status: domain.StateFailed, errMsg: `body of "t" panicked: nil map`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var c calls
			report, err := runtime.NewEngine(registry.NewRegistry(), runtime.WithInvoker(c.invoker(tc.body))).
				Run(context.Background(), test("t"))
			require.NoError(t, err)

			assert.Equal(t, tc.status, report.Root.Status)
			assert.Equal(t, tc.reason, report.Root.Reason)
			if tc.errMsg != "" {
				assert.Contains(t, report.Root.Error, tc.errMsg)
			} else {
				assert.Empty(t, report.Root.Error)
			}
		})
	}
}

func TestEngine_Run_Cancellation(t *testing.T) {
	t.Run("before the run starts", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		report, err := runtime.NewEngine(registry.NewRegistry()).Run(ctx, container("root", test("t")))
		require.NoError(t, err)
		assert.Equal(t, domain.StateSkipped, report.Root.Status)
		assert.Equal(t, runtime.ReasonCancelled, report.Root.Reason)
	})

	t.Run("remaining siblings are skipped", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		var c calls
		invoker := c.invoker(func(context.Context, *domain.Node) error {
			cancel()
			return nil
		})

		report, err := runtime.NewEngine(registry.NewRegistry(), runtime.WithInvoker(invoker)).
			Run(ctx, container("root", test("first"), test("second")))
		require.NoError(t, err)

		assert.Equal(t, []string{"first"}, c.list())
		assert.Equal(t, domain.StateSuccessful, report.Root.Find("first").Status)
		second := report.Root.Find("second")
		assert.Equal(t, domain.StateSkipped, second.Status)
		assert.Equal(t, runtime.ReasonCancelled, second.Reason)
	})

	t.Run("template stops pulling invocations", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		var c calls
		invoker := c.invoker(func(context.Context, *domain.Node) error {
			cancel()
			return nil
		})
		provider := params.NewProvider(params.WithSources("tpl",
			params.Values(domain.Arguments("a", 1), domain.Arguments("b", 2), domain.Arguments("c", 3))))
		reg := registry.NewRegistry().MustRegister(provider.Extension())

		report, err := runtime.NewEngine(reg, runtime.WithInvoker(invoker)).Run(ctx, templateNode("", false))
		require.NoError(t, err)

		assert.Len(t, c.list(), 1)
		assert.Len(t, report.Root.Invocations, 1)
		assert.Equal(t, domain.StateAborted, report.Root.Status)
		assert.Equal(t, runtime.ReasonCancelled, report.Root.Reason)
	})
}

func TestEngine_Run_Parallelism(t *testing.T) {
	var running, peak atomic.Int32
	invoker := ports.InvokerFunc(func(context.Context, *domain.Node, []any) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return nil
	})

	root := container("root")
	for i := range 8 {
		root.Add(test(fmt.Sprintf("t%d", i)))
	}

	report, err := runtime.NewEngine(registry.NewRegistry(),
		runtime.WithInvoker(invoker),
		runtime.WithParallelism(3),
	).Run(context.Background(), root)
	require.NoError(t, err)

	assert.Greater(t, peak.Load(), int32(1))
	assert.LessOrEqual(t, peak.Load(), int32(3))
	require.Len(t, report.Root.Children, 8)
	for i, child := range report.Root.Children {
		assert.Equal(t, fmt.Sprintf("t%d", i), child.NodeID, "results keep declaration order")
		assert.Equal(t, domain.StateSuccessful, child.Status)
	}
}

type resource struct {
	closed atomic.Bool
	err    error
}

func (r *resource) Close() error {
	r.closed.Store(true)
	return r.err
}

// storing puts a resource into the scope of every node it is visible to.
func storing(id string, res *resource) extension.Extension {
	return extension.Extension{
		ID: id,
		Callback: storeCallback{put: func(ec *extension.Context) error {
			return ec.Scope.Put(store.NewNamespace("test"), ec.Node.ID, res, store.WithCloser(store.CloseValue))
		}},
	}
}

type storeCallback struct {
	put func(ec *extension.Context) error
}

func (s storeCallback) Before(_ context.Context, ec *extension.Context) error { return s.put(ec) }
func (storeCallback) After(context.Context, *extension.Context) error         { return nil }

func TestEngine_Run_ClosesScopes(t *testing.T) {
	t.Run("values stored by extensions are released", func(t *testing.T) {
		res := &resource{}
		reg := registry.NewRegistry().MustRegister(storing("res", res))

		report, err := runtime.NewEngine(reg).Run(context.Background(), test("t", "res"))
		require.NoError(t, err)
		assert.True(t, res.closed.Load())
		assert.Equal(t, domain.StateSuccessful, report.Root.Status)
	})

	t.Run("close failures fail the node", func(t *testing.T) {
		res := &resource{err: errors.New("flush failed")}
		hooks, errOf := leaveErrors()
		reg := registry.NewRegistry().MustRegister(storing("res", res))

		report, err := runtime.NewEngine(reg, runtime.WithLifecycleHooks(hooks)).
			Run(context.Background(), test("t", "res"))
		require.NoError(t, err)

		assert.True(t, res.closed.Load())
		assert.Equal(t, domain.StateFailed, report.Root.Status)
		assert.ErrorIs(t, errOf("t"), domain.ErrResourceClose)
	})

	t.Run("closeable arguments are closed after their invocation", func(t *testing.T) {
		res := &resource{}
		provider := params.NewProvider(params.WithSources("tpl", params.Values(domain.Arguments(res))))
		reg := registry.NewRegistry().MustRegister(provider.Extension())
		tpl := &domain.Node{
			ID:         "tpl",
			Kind:       domain.KindTemplate,
			Extensions: []string{params.ProviderID},
			Parameters: []domain.Parameter{{Name: "r"}},
		}

		var closedDuringBody bool
		invoker := ports.InvokerFunc(func(_ context.Context, _ *domain.Node, args []any) error {
			closedDuringBody = args[0].(*resource).closed.Load()
			return nil
		})
		report, err := runtime.NewEngine(reg, runtime.WithInvoker(invoker)).Run(context.Background(), tpl)
		require.NoError(t, err)

		assert.False(t, closedDuringBody)
		assert.True(t, res.closed.Load())
		assert.True(t, report.Passed())
	})
}

func TestEngine_Check(t *testing.T) {
	provider := params.NewProvider()
	reg := registry.NewRegistry().MustRegister(provider.Extension())

	t.Run("valid", func(t *testing.T) {
		tpl := templateNode(domain.ValidationStrict, false)
		tpl.Template.Sources = []domain.SourceSpec{{Kind: params.KindCSV, Options: map[string]any{"records": []any{"a, 1"}}}}
		assert.NoError(t, runtime.NewEngine(reg).Check(container("root", tpl)))
	})

	t.Run("reports every problem", func(t *testing.T) {
		tpl := templateNode("LOOSE", false)
		tpl.Template.Sources = []domain.SourceSpec{{Kind: params.KindCSV, Options: map[string]any{"records": []any{"a"}}}}
		orphan := &domain.Node{ID: "orphan", Kind: domain.KindTemplate}

		err := runtime.NewEngine(reg).Check(container("root", tpl, orphan, test("t", "missing")))
		require.Error(t, err)
		assert.ErrorContains(t, err, domain.CodeUnsupportedMode)
		assert.ErrorContains(t, err, domain.CodeMissingProvider)
		assert.ErrorContains(t, err, domain.CodeUnknownExtension)
	})

	t.Run("structural errors come first", func(t *testing.T) {
		err := runtime.NewEngine(reg).Check(container("root", &domain.Node{ID: "x", Kind: "suite"}))
		assert.ErrorContains(t, err, `unknown node kind "suite"`)
	})
}
