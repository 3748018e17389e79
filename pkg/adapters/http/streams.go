package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
)

// AllRuns is the topic receiving the events of every run.
const AllRuns = "*"

// Message is one server-sent event.
type Message struct {
	Event string
	Data  string
}

// StreamManager fans run events out to SSE subscribers.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Message]struct{}
	logger      *slog.Logger
}

// NewStreamManager creates a manager without subscribers.
func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan Message]struct{}),
		logger:      logging.NewNop(),
	}
}

// Subscribe registers a buffered channel for topic. The returned func unsubscribes and
// closes the channel.
func (sm *StreamManager) Subscribe(topic string) (<-chan Message, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan Message, 64)
	if _, ok := sm.subscribers[topic]; !ok {
		sm.subscribers[topic] = make(map[chan Message]struct{})
	}
	sm.subscribers[topic][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			subs := sm.subscribers[topic]
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, topic)
			}
		})
	}
}

// Broadcast delivers msg to the subscribers of topic and of AllRuns. Slow subscribers
// lose messages instead of blocking the run.
func (sm *StreamManager) Broadcast(topic string, msg Message) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	deliver := func(subs map[chan Message]struct{}) {
		for ch := range subs {
			select {
			case ch <- msg:
			default:
				sm.logger.Warn("SSE client buffer full, dropping message", "topic", topic)
			}
		}
	}
	deliver(sm.subscribers[topic])
	if topic != AllRuns {
		deliver(sm.subscribers[AllRuns])
	}
}

// Hooks publishes every engine event, JSON encoded, under its run ID.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	publish := func(runID string, event domain.EventType, v any) {
		data, err := json.Marshal(v)
		if err != nil {
			sm.logger.Error("event encode failed", "err", err)
			return
		}
		sm.Broadcast(runID, Message{Event: string(event), Data: string(data)})
	}
	return domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			publish(e.RunID, e.Type, e)
		},
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) {
			publish(e.RunID, e.Type, e)
		},
		OnInvocationStart: func(_ context.Context, e *domain.InvocationEvent) {
			publish(e.RunID, e.Type, e)
		},
		OnInvocationFinish: func(_ context.Context, e *domain.InvocationEvent) {
			publish(e.RunID, e.Type, e)
		},
	}
}
