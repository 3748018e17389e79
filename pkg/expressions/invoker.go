package expressions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/expr-lang/expr"
)

// ErrAssertionFailed is returned when an assertion evaluates to false.
var ErrAssertionFailed = errors.New("assertion failed")

// Invoker runs the Assert expression of a test node as its body. Nodes without an
// assertion succeed.
type Invoker struct{}

// NewInvoker creates an assertion invoker.
func NewInvoker() *Invoker {
	return &Invoker{}
}

func (i *Invoker) Invoke(ctx context.Context, node *domain.Node, args []any) error {
	source := strings.TrimSpace(node.Assert)
	if source == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var aborted error
	env := make(map[string]any, len(args)+6)
	for idx, p := range node.Parameters {
		if idx < len(args) && p.Name != "" {
			env[p.Name] = args[idx]
		}
	}
	for k, v := range bindings(nil) {
		env[k] = v
	}
	env["tags"] = append([]string{}, node.Tags...)
	env["node"] = describe(node)
	env["args"] = args
	env["abort"] = func(reason string) bool {
		aborted = domain.Abort(reason)
		return true
	}

	program, err := expr.Compile(source, expr.Env(env), expr.AsBool())
	if err != nil {
		return fmt.Errorf("compile assertion %q: %w", source, err)
	}
	out, err := expr.Run(program, env)
	if aborted != nil {
		return aborted
	}
	if err != nil {
		return fmt.Errorf("eval assertion %q: %w", source, err)
	}
	if ok, _ := out.(bool); !ok {
		return fmt.Errorf("%w: %s (args %v)", ErrAssertionFailed, source, args)
	}
	return nil
}
