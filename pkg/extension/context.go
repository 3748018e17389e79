package extension

import (
	"log/slog"

	"github.com/aretw0/arbor/pkg/config"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/store"
)

// Context is what an extension sees of the node (and invocation) it is called for.
type Context struct {
	RunID  string
	Node   *domain.Node
	Scope  *store.Scope
	Config config.Parameters
	Logger *slog.Logger

	// Invocation is set when the extension is called for one template invocation.
	Invocation *Invocation
}

// ForInvocation derives the context of one invocation of the same node.
func (c *Context) ForInvocation(inv *Invocation) *Context {
	derived := *c
	derived.Invocation = inv
	derived.Scope = inv.Scope
	return &derived
}

// Invocation is one concrete execution of a template bound to one argument set.
type Invocation struct {
	Template    *domain.Node
	Index       int // 1-based
	DisplayName string
	Arguments   domain.ArgumentSet
	Scope       *store.Scope

	// Extensions are visible to this invocation only, after the node's extensions.
	Extensions []Extension
}

// ParameterContext identifies the formal parameter being resolved.
type ParameterContext struct {
	Parameter domain.Parameter
	Index     int // Position among all formal parameters
	Node      *domain.Node
}
