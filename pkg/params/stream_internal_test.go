package params

import (
	"testing"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handle struct {
	closed bool
}

func (h *handle) Close() error {
	h.closed = true
	return nil
}

func TestCloseWithScope(t *testing.T) {
	t.Run("registers closers only", func(t *testing.T) {
		scope := store.NewArena().Root("tpl[1]")
		h := &handle{}
		require.NoError(t, closeWithScope(scope, []any{"plain", h, 3}))

		assert.False(t, scope.Closed())
		require.NoError(t, scope.Close())
		assert.True(t, h.closed)
	})

	t.Run("closes the scope when registration fails", func(t *testing.T) {
		scope := store.NewArena().Root("tpl[2]")
		require.NoError(t, scope.Put(argumentsNamespace, 1, "taken"))

		first, second := &handle{}, &handle{}
		err := closeWithScope(scope, []any{first, second})

		assert.ErrorIs(t, err, domain.ErrConfiguration)
		assert.True(t, scope.Closed())
		assert.True(t, first.closed, "arguments registered before the failure are released")
		assert.False(t, second.closed)
	})
}
