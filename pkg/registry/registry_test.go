package registry_test

import (
	"context"
	"testing"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/extension"
	"github.com/aretw0/arbor/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func condition(id string) extension.Extension {
	return extension.Extension{
		ID: id,
		Condition: extension.ConditionFunc(func(context.Context, *extension.Context) (extension.ConditionResult, error) {
			return extension.Enabled(id), nil
		}),
	}
}

type stubCallback struct{}

func (stubCallback) Before(context.Context, *extension.Context) error { return nil }
func (stubCallback) After(context.Context, *extension.Context) error  { return nil }

func ids(decls []registry.Declaration) []string {
	out := make([]string, 0, len(decls))
	for _, d := range decls {
		out = append(out, d.Extension.ID)
	}
	return out
}

func TestRegistry_Register(t *testing.T) {
	reg := registry.NewRegistry()
	require.NoError(t, reg.Register(condition("a")))

	err := reg.Register(condition("a"))
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, domain.CodeDuplicateExtension, cfgErr.Code)

	err = reg.Register(extension.Extension{})
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, domain.CodeInvalidExtension, cfgErr.Code)

	ext, ok := reg.Lookup("a")
	assert.True(t, ok)
	assert.Equal(t, "a", ext.ID)
	_, ok = reg.Lookup("missing")
	assert.False(t, ok)

	assert.Panics(t, func() { reg.MustRegister(condition("a")) })
}

func TestRegistry_Visible(t *testing.T) {
	reg := registry.NewRegistry().MustRegister(
		condition("root-ext"),
		condition("suite-ext"),
		condition("leaf-ext"),
	)
	require.NoError(t, reg.RegisterDefault(condition("default")))

	leaf := &domain.Node{ID: "leaf", Kind: domain.KindTest, Extensions: []string{"leaf-ext", "root-ext"}}
	suite := &domain.Node{ID: "suite", Kind: domain.KindContainer, Extensions: []string{"suite-ext"}}
	root := &domain.Node{ID: "root", Kind: domain.KindContainer, Extensions: []string{"root-ext"}}
	root.Add(suite.Add(leaf))

	t.Run("ancestors first, nearest last", func(t *testing.T) {
		decls, err := reg.Visible(leaf)
		require.NoError(t, err)
		assert.Equal(t, []string{"default", "root-ext", "suite-ext", "leaf-ext"}, ids(decls))
		assert.Equal(t, "", decls[0].DeclaredBy)
		assert.Equal(t, "root", decls[1].DeclaredBy, "a repeated ID keeps its first declaration")
		assert.Equal(t, "leaf", decls[3].DeclaredBy)
	})

	t.Run("siblings do not leak", func(t *testing.T) {
		sibling := &domain.Node{ID: "sibling", Kind: domain.KindTest}
		root.Add(sibling)

		decls, err := reg.Visible(sibling)
		require.NoError(t, err)
		assert.Equal(t, []string{"default", "root-ext"}, ids(decls))
	})

	t.Run("unknown IDs are configuration errors", func(t *testing.T) {
		bad := &domain.Node{ID: "bad", Kind: domain.KindTest, Extensions: []string{"nope"}}
		root.Add(bad)

		_, err := reg.Visible(bad)
		var cfgErr *domain.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, domain.CodeUnknownExtension, cfgErr.Code)
		assert.Contains(t, err.Error(), `"nope"`)
	})
}

func TestFilter(t *testing.T) {
	both := condition("both")
	both.Callback = stubCallback{}
	decls := []registry.Declaration{
		{Extension: condition("c1")},
		{Extension: extension.Extension{ID: "cb", Callback: stubCallback{}}},
		{Extension: both},
	}

	assert.Equal(t, []string{"c1", "both"}, ids(registry.Filter(decls, extension.CapabilityCondition)))
	assert.Equal(t, []string{"cb", "both"}, ids(registry.Filter(decls, extension.CapabilityLifecycleCallback)))
	assert.Empty(t, registry.Filter(decls, extension.CapabilityTemplateProvider))
}

func TestRegistry_IDs(t *testing.T) {
	reg := registry.NewRegistry().MustRegister(condition("b"), condition("a"))
	assert.Equal(t, []string{"a", "b"}, reg.IDs())
}
