package runtime_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/extension"
	"github.com/aretw0/arbor/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func verdict(id string, res extension.ConditionResult, evaluated *[]string) extension.Extension {
	return extension.Extension{
		ID: id,
		Condition: extension.ConditionFunc(func(context.Context, *extension.Context) (extension.ConditionResult, error) {
			*evaluated = append(*evaluated, id)
			return res, nil
		}),
	}
}

func declare(exts ...extension.Extension) []registry.Declaration {
	decls := make([]registry.Declaration, len(exts))
	for i, ext := range exts {
		decls[i] = registry.Declaration{Extension: ext, DeclaredBy: "n"}
	}
	return decls
}

func TestEvaluateConditions(t *testing.T) {
	ec := &extension.Context{Node: &domain.Node{ID: "n", Kind: domain.KindTest}}

	t.Run("no conditions enables the node", func(t *testing.T) {
		res, err := runtime.EvaluateConditions(context.Background(), nil, ec)
		require.NoError(t, err)
		assert.True(t, res.Enabled)
		assert.Equal(t, runtime.DefaultEnabledReason, res.Reason)
	})

	t.Run("first disabling verdict wins", func(t *testing.T) {
		var evaluated []string
		decls := declare(
			verdict("a", extension.Enabled("fine"), &evaluated),
			extension.Extension{ID: "resolver-only"},
			verdict("b", extension.Disabled("not on weekends"), &evaluated),
			verdict("c", extension.Disabled("never reached"), &evaluated),
		)

		res, err := runtime.EvaluateConditions(context.Background(), decls, ec)
		require.NoError(t, err)
		assert.False(t, res.Enabled)
		assert.Equal(t, "not on weekends", res.Reason)
		assert.Equal(t, []string{"a", "b"}, evaluated)
	})

	t.Run("blank reason names the condition", func(t *testing.T) {
		var evaluated []string
		res, err := runtime.EvaluateConditions(context.Background(),
			declare(verdict("quiet", extension.Disabled(""), &evaluated)), ec)
		require.NoError(t, err)
		assert.Equal(t, "disabled by quiet", res.Reason)
	})

	t.Run("errors are configuration errors", func(t *testing.T) {
		boom := errors.New("boom")
		decls := declare(extension.Extension{
			ID: "broken",
			Condition: extension.ConditionFunc(func(context.Context, *extension.Context) (extension.ConditionResult, error) {
				return extension.Enabled("ignored"), boom
			}),
		})

		res, err := runtime.EvaluateConditions(context.Background(), decls, ec)
		assert.False(t, res.Enabled)
		assert.ErrorIs(t, err, boom)
		assert.ErrorIs(t, err, domain.ErrConfiguration)
		assert.ErrorContains(t, err, `condition "broken" on node "n"`)
	})
}
