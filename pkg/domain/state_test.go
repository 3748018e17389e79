package domain_test

import (
	"sync"
	"testing"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycle_TemplatePath(t *testing.T) {
	l := domain.NewLifecycle()

	for _, s := range []domain.NodeState{
		domain.StateStoreOpened,
		domain.StateResolving,
		domain.StateExpanding,
		domain.StateSuccessful,
		domain.StateClosed,
	} {
		require.NoError(t, l.Transition(s), "transition to %s", s)
	}

	assert.Equal(t, domain.StateClosed, l.State())
	assert.Equal(t, domain.StateSuccessful, l.Outcome())
	assert.Len(t, l.History(), 6)
}

func TestLifecycle_RejectsBackwardTransitions(t *testing.T) {
	l := domain.NewLifecycle()
	require.NoError(t, l.Transition(domain.StateStoreOpened))
	require.NoError(t, l.Transition(domain.StateResolving))

	err := l.Transition(domain.StateStoreOpened)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
	assert.Equal(t, domain.StateResolving, l.State(), "failed transition must not change state")
}

func TestLifecycle_SkippedIsTerminal(t *testing.T) {
	l := domain.NewLifecycle()
	require.NoError(t, l.Transition(domain.StateSkipped))

	assert.ErrorIs(t, l.Transition(domain.StateStoreOpened), domain.ErrIllegalTransition)
	assert.ErrorIs(t, l.Transition(domain.StateClosed), domain.ErrIllegalTransition)
	assert.Equal(t, domain.StateSkipped, l.Outcome())
}

func TestLifecycle_ConditionFailureWithoutScope(t *testing.T) {
	l := domain.NewLifecycle()
	require.NoError(t, l.Transition(domain.StateFailed))
	assert.Equal(t, domain.StateFailed, l.Outcome())
}

func TestLifecycle_ConcurrentTransitionsAdvanceOnce(t *testing.T) {
	l := domain.NewLifecycle()

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Transition(domain.StateStoreOpened) == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
}
