package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"unicode"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// EnvPrefix starts the name of every variable the invoker sets.
const EnvPrefix = "ARBOR_"

// Command is an allow-listed executable bound to a node.
type Command struct {
	Command string
	Args    []string
	Env     map[string]string
}

// Invoker implements ports.Invoker by executing local processes.
// It follows a strict registry pattern: only nodes with a registered command run a
// process, everything else goes to the fallback invoker.
type Invoker struct {
	commands map[string]Command
	baseDir  string
	fallback ports.Invoker
}

// Option configures the invoker.
type Option func(*Invoker)

// WithCommands populates the allow-list, keyed by node ID.
func WithCommands(commands map[string]Command) Option {
	return func(i *Invoker) {
		for id, c := range commands {
			i.commands[id] = c
		}
	}
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) Option {
	return func(i *Invoker) {
		i.baseDir = dir
	}
}

// WithFallback sets the invoker used for nodes without a command.
func WithFallback(fallback ports.Invoker) Option {
	return func(i *Invoker) {
		i.fallback = fallback
	}
}

// NewInvoker creates a new process invoker.
func NewInvoker(opts ...Option) *Invoker {
	i := &Invoker{
		commands: make(map[string]Command),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Register adds a trusted command to the allow-list.
func (i *Invoker) Register(nodeID string, command string, args ...string) {
	i.commands[nodeID] = Command{
		Command: command,
		Args:    args,
	}
}

// Invoke runs the command registered for node. Arguments are never appended to the
// command line; they are passed as environment variables to prevent flag injection:
// ARBOR_ARG_<n> by 1-based position and ARBOR_ARG_<NAME> by parameter name.
// A non-zero exit fails the execution with the captured stderr. A cancelled context
// aborts it.
func (i *Invoker) Invoke(ctx context.Context, node *domain.Node, args []any) error {
	proc, ok := i.commands[node.ID]
	if !ok {
		if i.fallback != nil {
			return i.fallback.Invoke(ctx, node, args)
		}
		return fmt.Errorf("no command registered for node %q", node.ID)
	}

	cmd := exec.CommandContext(ctx, proc.Command, proc.Args...)
	cmd.Dir = i.baseDir
	cmd.Env = append(cmd.Environ(), environment(node, proc, args)...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return domain.Abort(fmt.Sprintf("command %s interrupted: %v", proc.Command, ctx.Err()))
		}
		msg := strings.TrimSpace(stderr.String())
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && msg != "" {
			return fmt.Errorf("command %s exited with code %d: %s", proc.Command, exitErr.ExitCode(), msg)
		}
		return fmt.Errorf("command %s failed: %w", proc.Command, err)
	}
	return nil
}

func environment(node *domain.Node, proc Command, args []any) []string {
	env := []string{
		EnvPrefix + "NODE_ID=" + node.ID,
		EnvPrefix + "ARGC=" + strconv.Itoa(len(args)),
	}
	for k, v := range proc.Env {
		env = append(env, k+"="+v)
	}
	for idx, v := range args {
		val := encode(v)
		env = append(env, fmt.Sprintf("%sARG_%d=%s", EnvPrefix, idx+1, val))
		if idx < len(node.Parameters) && node.Parameters[idx].Name != "" {
			env = append(env, EnvPrefix+"ARG_"+envName(node.Parameters[idx].Name)+"="+val)
		}
	}
	return env
}

// encode renders primitives with fmt and structured values as JSON.
func encode(v any) string {
	switch v.(type) {
	case nil:
		return ""
	case string, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprintf("%v", v)
	}
	if data, err := json.Marshal(v); err == nil {
		return string(data)
	}
	return fmt.Sprintf("%v", v)
}

func envName(name string) string {
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return unicode.ToUpper(r)
		}
		return '_'
	}, name)
}
