package resolvers_test

import (
	"context"
	"testing"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/extension"
	"github.com/aretw0/arbor/pkg/resolvers"
	"github.com/aretw0/arbor/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func param(name, typ string) extension.ParameterContext {
	return extension.ParameterContext{Parameter: domain.Parameter{Name: name, Type: typ, Injected: true}}
}

func TestValue(t *testing.T) {
	ext := resolvers.Value("base-url", "baseURL", "http://localhost")
	ec := &extension.Context{}

	ok, err := ext.ParameterResolver.Supports(param("baseURL", "string"), ec)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = ext.ParameterResolver.Supports(param("other", "string"), ec)
	assert.False(t, ok)

	v, err := ext.ParameterResolver.Resolve(context.Background(), param("baseURL", "string"), ec)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost", v)
}

func TestTyped(t *testing.T) {
	ext, err := resolvers.Typed("ports", "[ int ]", []any{80, 443})
	require.NoError(t, err)
	ec := &extension.Context{}

	ok, err := ext.ParameterResolver.Supports(param("p", "[int]"), ec)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ext.ParameterResolver.Supports(param("p", "int"), ec)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = resolvers.Typed("bad", "[int", nil)
	assert.Error(t, err)
}

func TestFromStore(t *testing.T) {
	ns := store.NewNamespace("fixtures")
	root := store.NewArena().Root("root")
	child, err := root.Child("child")
	require.NoError(t, err)

	ext := resolvers.FromStore("db", "db", ns, "connection")
	ec := &extension.Context{Scope: child}

	ok, err := ext.ParameterResolver.Supports(param("db", "any"), ec)
	require.NoError(t, err)
	assert.False(t, ok, "nothing stored yet")

	require.NoError(t, root.Put(ns, "connection", "postgres://"))

	ok, err = ext.ParameterResolver.Supports(param("db", "any"), ec)
	require.NoError(t, err)
	assert.True(t, ok)

	v, err := ext.ParameterResolver.Resolve(context.Background(), param("db", "any"), ec)
	require.NoError(t, err)
	assert.Equal(t, "postgres://", v)
}
