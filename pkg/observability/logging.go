package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/arbor/pkg/domain"
)

// LogHooks logs node outcomes at info level (warn when they did not succeed) and
// everything else at debug level.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_enter",
				"run", e.RunID,
				"node_id", e.NodeID,
				"kind", e.Kind,
			)
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			level := slog.LevelInfo
			if e.Status != domain.StateSuccessful {
				level = slog.LevelWarn
			}
			attrs := []any{
				"run", e.RunID,
				"node_id", e.NodeID,
				"kind", e.Kind,
				"status", e.Status,
				"duration", e.Duration,
			}
			if e.Reason != "" {
				attrs = append(attrs, "reason", e.Reason)
			}
			if e.Err != nil {
				attrs = append(attrs, "err", e.Err)
			}
			logger.Log(ctx, level, "node_leave", attrs...)
		},
		OnInvocationStart: func(ctx context.Context, e *domain.InvocationEvent) {
			logger.DebugContext(ctx, "invocation_start",
				"run", e.RunID,
				"node_id", e.NodeID,
				"index", e.Index,
				"name", e.DisplayName,
			)
		},
		OnInvocationFinish: func(ctx context.Context, e *domain.InvocationEvent) {
			attrs := []any{
				"run", e.RunID,
				"node_id", e.NodeID,
				"index", e.Index,
				"name", e.DisplayName,
				"status", e.Status,
				"duration", e.Duration,
			}
			if e.Err != nil {
				attrs = append(attrs, "err", e.Err)
			}
			logger.DebugContext(ctx, "invocation_finish", attrs...)
		},
	}
}
