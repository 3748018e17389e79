package expressions

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/extension"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Mode selects how a boolean result maps to a condition verdict.
type Mode int

const (
	// EnabledIf enables the node when the expression is true.
	EnabledIf Mode = iota
	// DisabledIf disables the node when the expression is true.
	DisabledIf
)

func (m Mode) String() string {
	if m == DisabledIf {
		return "disabled_if"
	}
	return "enabled_if"
}

// Condition compiles source into a condition extension. Compilation errors are returned
// immediately; evaluation errors surface when the condition runs.
func Condition(id, source string, mode Mode) (extension.Extension, error) {
	source = strings.TrimSpace(source)
	program, err := expr.Compile(source, expr.Env(bindings(nil)), expr.AsBool())
	if err != nil {
		return extension.Extension{}, fmt.Errorf("compile %s %q: %w", mode, source, err)
	}

	cond := &condition{source: source, mode: mode, program: program}
	return extension.Extension{ID: id, Condition: cond}, nil
}

type condition struct {
	source  string
	mode    Mode
	program *vm.Program
}

func (c *condition) Evaluate(_ context.Context, ec *extension.Context) (extension.ConditionResult, error) {
	out, err := expr.Run(c.program, bindings(ec))
	if err != nil {
		return extension.ConditionResult{}, fmt.Errorf("eval %s %q: %w", c.mode, c.source, err)
	}
	result, ok := out.(bool)
	if !ok {
		return extension.ConditionResult{}, fmt.Errorf("%s %q did not return bool (got %T)", c.mode, c.source, out)
	}

	enabled := result
	if c.mode == DisabledIf {
		enabled = !result
	}
	reason := fmt.Sprintf("%s %q evaluated to %t", c.mode, c.source, result)
	if enabled {
		return extension.Enabled(reason), nil
	}
	return extension.Disabled(reason), nil
}

// bindings builds the evaluation environment. A nil context yields the shape used for
// type checking.
func bindings(ec *extension.Context) map[string]any {
	env := map[string]any{
		"env":    os.Getenv,
		"config": func(string) string { return "" },
		"os":     runtime.GOOS,
		"tags":   []string{},
		"node":   map[string]any{},
	}
	if ec == nil {
		return env
	}

	env["config"] = func(key string) string {
		v, _ := ec.Config.Get(key)
		return v
	}
	if ec.Node != nil {
		env["tags"] = append([]string{}, ec.Node.Tags...)
		env["node"] = describe(ec.Node)
	}
	return env
}

func describe(n *domain.Node) map[string]any {
	path := make([]string, 0, 4)
	for _, p := range n.Path() {
		path = append(path, p.ID)
	}
	return map[string]any{
		"id":   n.ID,
		"kind": string(n.Kind),
		"name": n.Name(),
		"path": strings.Join(path, "/"),
	}
}
