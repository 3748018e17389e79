package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventNodeEnter        EventType = "node_enter"
	EventNodeLeave        EventType = "node_leave"
	EventInvocationStart  EventType = "invocation_start"
	EventInvocationFinish EventType = "invocation_finish"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
}

// NodeEvent represents entry into or exit from a node.
// Status, Reason, Err and Duration are only set on leave.
type NodeEvent struct {
	EventBase
	NodeID   string        `json:"node_id"`
	Kind     NodeKind      `json:"kind"`
	Status   NodeState     `json:"status,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration,omitempty"`
}

// InvocationEvent represents the start or end of one template invocation.
type InvocationEvent struct {
	EventBase
	NodeID      string        `json:"node_id"`
	Index       int           `json:"index"`
	DisplayName string        `json:"display_name"`
	Status      NodeState     `json:"status,omitempty"`
	Err         error         `json:"-"`
	Duration    time.Duration `json:"duration,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnNodeEnter        func(context.Context, *NodeEvent)
	OnNodeLeave        func(context.Context, *NodeEvent)
	OnInvocationStart  func(context.Context, *InvocationEvent)
	OnInvocationFinish func(context.Context, *InvocationEvent)
}

// ChainHooks merges several hook sets; each callback fans out in argument order.
func ChainHooks(all ...LifecycleHooks) LifecycleHooks {
	var merged LifecycleHooks
	for _, h := range all {
		merged.OnNodeEnter = chain(merged.OnNodeEnter, h.OnNodeEnter)
		merged.OnNodeLeave = chain(merged.OnNodeLeave, h.OnNodeLeave)
		merged.OnInvocationStart = chain(merged.OnInvocationStart, h.OnInvocationStart)
		merged.OnInvocationFinish = chain(merged.OnInvocationFinish, h.OnInvocationFinish)
	}
	return merged
}

func chain[E any](first, second func(context.Context, E)) func(context.Context, E) {
	switch {
	case first == nil:
		return second
	case second == nil:
		return first
	}
	return func(ctx context.Context, e E) {
		first(ctx, e)
		second(ctx, e)
	}
}
