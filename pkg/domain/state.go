package domain

import (
	"fmt"
	"sync"
)

// NodeState is the lifecycle position of a node (or invocation) within one run.
type NodeState string

const (
	StateNotStarted  NodeState = "not_started"
	StateSkipped     NodeState = "skipped" // Disabled by a condition or cancelled before start
	StateStoreOpened NodeState = "store_opened"
	StateResolving   NodeState = "resolving"
	StateExpanding   NodeState = "expanding" // Templates only
	StateRunning     NodeState = "running"
	StateSuccessful  NodeState = "successful"
	StateAborted     NodeState = "aborted"
	StateFailed      NodeState = "failed"
	StateClosed      NodeState = "closed"
)

var transitions = map[NodeState][]NodeState{
	StateNotStarted:  {StateSkipped, StateStoreOpened, StateFailed},
	StateStoreOpened: {StateResolving, StateFailed, StateClosed},
	StateResolving:   {StateRunning, StateExpanding, StateFailed},
	StateExpanding:   {StateSuccessful, StateAborted, StateFailed},
	StateRunning:     {StateSuccessful, StateAborted, StateFailed},
	StateSuccessful:  {StateClosed},
	StateAborted:     {StateClosed},
	StateFailed:      {StateClosed},
}

// CanTransition reports whether the state machine allows moving from s to next.
func (s NodeState) CanTransition(next NodeState) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Outcome reports whether s is one of the result states of an execution.
func (s NodeState) Outcome() bool {
	switch s {
	case StateSuccessful, StateAborted, StateFailed, StateSkipped:
		return true
	}
	return false
}

// Lifecycle tracks the state of one node during one run.
// It is safe for concurrent use.
type Lifecycle struct {
	mu      sync.Mutex
	state   NodeState
	outcome NodeState
	history []NodeState
}

// NewLifecycle returns a lifecycle in StateNotStarted.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		state:   StateNotStarted,
		history: []NodeState{StateNotStarted},
	}
}

// State returns the current state.
func (l *Lifecycle) State() NodeState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Outcome returns the last result state reached (successful, aborted, failed, skipped),
// or StateNotStarted if none was reached yet.
func (l *Lifecycle) Outcome() NodeState {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.outcome == "" {
		return StateNotStarted
	}
	return l.outcome
}

// History returns every state visited, in order.
func (l *Lifecycle) History() []NodeState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]NodeState(nil), l.history...)
}

// Transition moves the lifecycle to next. Backward or skipping transitions fail with
// ErrIllegalTransition.
func (l *Lifecycle) Transition(next NodeState) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.state.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, l.state, next)
	}
	l.state = next
	if next.Outcome() {
		l.outcome = next
	}
	l.history = append(l.history, next)
	return nil
}
