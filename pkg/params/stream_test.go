package params_test

import (
	"bytes"
	"context"
	"iter"
	"log/slog"
	"testing"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/config"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/extension"
	"github.com/aretw0/arbor/pkg/params"
	"github.com/aretw0/arbor/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func template(id string, cfg *domain.TemplateConfig, parameters ...domain.Parameter) *domain.Node {
	return &domain.Node{ID: id, Kind: domain.KindTemplate, Template: cfg, Parameters: parameters}
}

func csvSpec(records ...any) domain.SourceSpec {
	return domain.SourceSpec{Kind: params.KindCSV, Options: map[string]any{"records": records}}
}

func twoParams() []domain.Parameter {
	return []domain.Parameter{{Name: "a", Type: "string"}, {Name: "b", Type: "int"}}
}

// newContext opens an engine root scope and the template scope below it.
func newContext(t *testing.T, node *domain.Node, values map[string]string) *extension.Context {
	t.Helper()
	root := store.NewArena().Root("engine")
	scope, err := root.Child(node.ID)
	require.NoError(t, err)
	return &extension.Context{Node: node, Scope: scope, Config: config.NewParameters(values)}
}

// drain pulls every element, separating invocations from element errors.
func drain(t *testing.T, stream extension.InvocationStream) ([]*extension.Invocation, []error) {
	t.Helper()
	var (
		invs []*extension.Invocation
		errs []error
	)
	for {
		inv, err := stream.Next(context.Background())
		if err == extension.ErrStreamDone {
			return invs, errs
		}
		if err != nil {
			errs = append(errs, err)
			var invErr *extension.InvocationError
			if !assert.ErrorAs(t, err, &invErr) {
				return invs, errs
			}
			continue
		}
		invs = append(invs, inv)
	}
}

func provide(t *testing.T, p *params.Provider, ec *extension.Context) extension.InvocationStream {
	t.Helper()
	require.True(t, p.Supports(ec))
	stream, err := p.Provide(context.Background(), ec)
	require.NoError(t, err)
	return stream
}

func TestProvider_Supports(t *testing.T) {
	p := params.NewProvider()

	withSources := template("t", &domain.TemplateConfig{Sources: []domain.SourceSpec{csvSpec("a")}})
	assert.True(t, p.Supports(&extension.Context{Node: withSources}))
	assert.False(t, p.Supports(&extension.Context{Node: template("bare", nil)}))
	assert.False(t, p.Supports(&extension.Context{Node: &domain.Node{ID: "x", Kind: domain.KindTest}}))

	p.Attach("bare", params.Values(domain.Arguments(1)))
	assert.True(t, p.Supports(&extension.Context{Node: template("bare", nil)}))
}

func TestStream_ProducesInvocations(t *testing.T) {
	node := template("greet", &domain.TemplateConfig{
		NamePattern: "{index}: {arguments}",
		Sources:     []domain.SourceSpec{csvSpec("alice, 30", "bob, 25")},
	}, twoParams()...)
	extra := params.Values(domain.Arguments("carol", 41))
	p := params.NewProvider(params.WithSources("greet", extra))
	ec := newContext(t, node, nil)

	stream := provide(t, p, ec)
	invs, errs := drain(t, stream)
	require.Empty(t, errs)
	require.NoError(t, stream.Close())

	require.Len(t, invs, 3)
	assert.Equal(t, "1: alice, 30", invs[0].DisplayName)
	assert.Equal(t, "3: carol, 41", invs[2].DisplayName, "attached sources follow declared ones")
	for i, inv := range invs {
		assert.Equal(t, i+1, inv.Index)
		assert.Same(t, node, inv.Template)
		require.NotNil(t, inv.Scope)
		assert.Equal(t, ec.Scope.ID(), inv.Scope.Parent().ID(), "each invocation gets a child of the template scope")
		require.Len(t, inv.Extensions, 1)
		assert.Equal(t, params.ArgumentResolverID, inv.Extensions[0].ID)
	}
	assert.NotEqual(t, invs[0].Scope.ID(), invs[1].Scope.ID())

	_, err := stream.Next(context.Background())
	assert.Equal(t, extension.ErrStreamDone, err)
}

func TestStream_ArgumentCountValidation(t *testing.T) {
	records := []any{"a, 1, extra", "b, 2"}

	t.Run("strict fails the element before binding", func(t *testing.T) {
		node := template("t", &domain.TemplateConfig{
			ArgumentCountValidation: "strict",
			Sources:                 []domain.SourceSpec{csvSpec(records[0])},
		}, twoParams()...)

		invs, errs := drain(t, provide(t, params.NewProvider(), newContext(t, node, nil)))
		assert.Empty(t, invs)
		require.Len(t, errs, 1)

		var cfgErr *domain.ConfigurationError
		require.ErrorAs(t, errs[0], &cfgErr)
		assert.Equal(t, domain.CodeArgumentCountMismatch, cfgErr.Code)
		var invErr *extension.InvocationError
		require.ErrorAs(t, errs[0], &invErr)
		assert.Equal(t, 1, invErr.Index)
	})

	t.Run("strict keeps going after a mismatch", func(t *testing.T) {
		node := template("t", &domain.TemplateConfig{
			ArgumentCountValidation: "STRICT",
			Sources: []domain.SourceSpec{
				{Kind: params.KindValues, Options: map[string]any{"sets": []any{
					[]any{"a", 1, "extra"},
					[]any{"b", 2},
				}}},
			},
		}, twoParams()...)

		invs, errs := drain(t, provide(t, params.NewProvider(), newContext(t, node, nil)))
		assert.Len(t, errs, 1)
		require.Len(t, invs, 1)
		assert.Equal(t, 2, invs[0].Index)
	})

	t.Run("none proceeds to binding", func(t *testing.T) {
		node := template("t", &domain.TemplateConfig{
			ArgumentCountValidation: "NONE",
			Sources:                 []domain.SourceSpec{csvSpec(records[0])},
		}, twoParams()...)

		invs, errs := drain(t, provide(t, params.NewProvider(), newContext(t, node, nil)))
		assert.Empty(t, errs)
		assert.Len(t, invs, 1)
	})

	t.Run("injected parameters are not counted", func(t *testing.T) {
		parameters := append(twoParams(), domain.Parameter{Name: "db", Injected: true})
		node := template("t", &domain.TemplateConfig{
			ArgumentCountValidation: "STRICT",
			Sources:                 []domain.SourceSpec{csvSpec("a, 1")},
		}, parameters...)

		invs, errs := drain(t, provide(t, params.NewProvider(), newContext(t, node, nil)))
		assert.Empty(t, errs)
		assert.Len(t, invs, 1)
	})

	t.Run("default defers to configuration", func(t *testing.T) {
		node := template("t", &domain.TemplateConfig{Sources: []domain.SourceSpec{csvSpec(records[0])}}, twoParams()...)
		ec := newContext(t, node, map[string]string{params.KeyValidationMode: "strict"})

		_, errs := drain(t, provide(t, params.NewProvider(), ec))
		assert.Len(t, errs, 1)
	})

	t.Run("configuration is read once per run", func(t *testing.T) {
		node := template("t", &domain.TemplateConfig{Sources: []domain.SourceSpec{csvSpec(records[0])}}, twoParams()...)
		ec := newContext(t, node, map[string]string{params.KeyValidationMode: "STRICT"})
		p := params.NewProvider()

		_, errs := drain(t, provide(t, p, ec))
		assert.Len(t, errs, 1)

		sibling, err := ec.Scope.Root().Child("sibling")
		require.NoError(t, err)
		later := &extension.Context{Node: node, Scope: sibling, Config: config.NewParameters(nil)}
		_, errs = drain(t, provide(t, p, later))
		assert.Len(t, errs, 1, "the cached mode of the run wins")
	})

	t.Run("invalid configuration falls back to none", func(t *testing.T) {
		var logs bytes.Buffer
		node := template("t", &domain.TemplateConfig{Sources: []domain.SourceSpec{csvSpec(records[0])}}, twoParams()...)
		ec := newContext(t, node, map[string]string{params.KeyValidationMode: "sometimes"})
		ec.Logger = logging.NewWithWriter(&logs, slog.LevelWarn)

		invs, errs := drain(t, provide(t, params.NewProvider(), ec))
		assert.Empty(t, errs)
		assert.Len(t, invs, 1)
		assert.Contains(t, logs.String(), "falling back to NONE")
	})

	t.Run("invalid template mode is a configuration error", func(t *testing.T) {
		node := template("t", &domain.TemplateConfig{
			ArgumentCountValidation: "sometimes",
			Sources:                 []domain.SourceSpec{csvSpec("a")},
		})
		_, err := params.NewProvider().Provide(context.Background(), newContext(t, node, nil))
		var cfgErr *domain.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, domain.CodeUnsupportedMode, cfgErr.Code)
	})
}

func TestStream_ZeroInvocations(t *testing.T) {
	empty := domain.SourceSpec{Kind: params.KindValues}

	t.Run("required invocations fail once at close", func(t *testing.T) {
		node := template("t", &domain.TemplateConfig{Sources: []domain.SourceSpec{empty}})
		stream := provide(t, params.NewProvider(), newContext(t, node, nil))

		invs, errs := drain(t, stream)
		assert.Empty(t, invs)
		assert.Empty(t, errs)

		err := stream.Close()
		var cfgErr *domain.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, domain.CodeNoInvocations, cfgErr.Code)
		assert.NoError(t, stream.Close(), "the failure is reported once")
	})

	t.Run("allowed", func(t *testing.T) {
		node := template("t", &domain.TemplateConfig{AllowZeroInvocations: true, Sources: []domain.SourceSpec{empty}})
		stream := provide(t, params.NewProvider(), newContext(t, node, nil))
		drain(t, stream)
		assert.NoError(t, stream.Close())
	})

	t.Run("early termination is not a failure", func(t *testing.T) {
		node := template("t", &domain.TemplateConfig{Sources: []domain.SourceSpec{csvSpec("a", "b")}})
		stream := provide(t, params.NewProvider(), newContext(t, node, nil))
		assert.NoError(t, stream.Close())
	})
}

func TestStream_SourceErrorsEndTheStream(t *testing.T) {
	node := template("t", &domain.TemplateConfig{Sources: []domain.SourceSpec{csvSpec("a, b", "c")}})
	stream := provide(t, params.NewProvider(), newContext(t, node, nil))

	_, err := stream.Next(context.Background())
	require.NoError(t, err)
	_, err = stream.Next(context.Background())
	assert.ErrorIs(t, err, domain.ErrParsing)
	assert.NoError(t, stream.Close())
}

func TestStream_StopsPendingSources(t *testing.T) {
	stopped := false
	infinite := params.SourceFunc(func(context.Context, *extension.Context) iter.Seq2[domain.ArgumentSet, error] {
		return func(yield func(domain.ArgumentSet, error) bool) {
			defer func() { stopped = true }()
			for i := 0; ; i++ {
				if !yield(domain.Arguments(i), nil) {
					return
				}
			}
		}
	})
	node := template("t", nil)
	stream := provide(t, params.NewProvider(params.WithSources("t", infinite)), newContext(t, node, nil))

	for range 3 {
		_, err := stream.Next(context.Background())
		require.NoError(t, err)
	}
	require.NoError(t, stream.Close())
	assert.True(t, stopped)
}

func TestStream_Cancellation(t *testing.T) {
	node := template("t", &domain.TemplateConfig{Sources: []domain.SourceSpec{csvSpec("a")}})
	stream := provide(t, params.NewProvider(), newContext(t, node, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := stream.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, stream.Close())
}

type handle struct{ closed bool }

func (h *handle) Close() error {
	h.closed = true
	return nil
}

func TestStream_AutoCloseArguments(t *testing.T) {
	run := func(autoClose *bool) *handle {
		h := &handle{}
		node := template("t", &domain.TemplateConfig{AutoCloseArguments: autoClose})
		p := params.NewProvider(params.WithSources("t", params.Values(domain.Arguments(h, "plain"))))
		stream := provide(t, p, newContext(t, node, nil))

		inv, err := stream.Next(context.Background())
		require.NoError(t, err)
		require.NoError(t, inv.Scope.Close())
		require.NoError(t, stream.Close())
		return h
	}

	assert.True(t, run(nil).closed)
	off := false
	assert.False(t, run(&off).closed)
}

func TestProvider_InvalidPattern(t *testing.T) {
	node := template("t", &domain.TemplateConfig{NamePattern: "{oops", Sources: []domain.SourceSpec{csvSpec("a")}})
	p := params.NewProvider()

	_, err := p.Provide(context.Background(), newContext(t, node, nil))
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, domain.CodeInvalidPattern, cfgErr.Code)

	assert.ErrorIs(t, p.Check(node, config.Parameters{}), domain.ErrConfiguration)
}

func TestProvider_ConfiguredDisplayNames(t *testing.T) {
	node := template("t", &domain.TemplateConfig{Sources: []domain.SourceSpec{csvSpec("abcdefgh")}})
	node.DisplayName = "words"
	ec := newContext(t, node, map[string]string{
		params.KeyDefaultPattern: "{displayName} ({index}) {0}",
		params.KeyMaxLength:      "4",
	})

	invs, _ := drain(t, provide(t, params.NewProvider(), ec))
	require.Len(t, invs, 1)
	assert.Equal(t, "words (1) abc…", invs[0].DisplayName)
}
