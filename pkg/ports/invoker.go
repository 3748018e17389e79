package ports

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
)

// Invoker executes the body of a test node or of one template invocation.
// args holds the resolved value of every formal parameter, in declaration order.
// Returning an error wrapping domain.ErrAborted marks the execution as aborted rather
// than failed.
type Invoker interface {
	Invoke(ctx context.Context, node *domain.Node, args []any) error
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, node *domain.Node, args []any) error

func (f InvokerFunc) Invoke(ctx context.Context, node *domain.Node, args []any) error {
	return f(ctx, node, args)
}
