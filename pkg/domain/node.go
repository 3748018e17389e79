package domain

// NodeKind distinguishes the three kinds of nodes in the execution tree.
type NodeKind string

const (
	// KindContainer groups child nodes and has no body of its own.
	KindContainer NodeKind = "container"
	// KindTest is a single executable test.
	KindTest NodeKind = "test"
	// KindTemplate is expanded into one invocation per argument set.
	KindTemplate NodeKind = "template"
)

// Valid reports whether k is one of the known node kinds.
func (k NodeKind) Valid() bool {
	switch k {
	case KindContainer, KindTest, KindTemplate:
		return true
	}
	return false
}

// Parameter is a formal parameter of a test or template body.
type Parameter struct {
	Name string `json:"name" yaml:"name"`
	// Type is a schema type name ("string", "int", "[string]", ...). Empty means "any".
	Type string `json:"type,omitempty" yaml:"type,omitempty"`
	// Injected parameters are supplied by an extension rather than by an argument set.
	// They do not count towards argument count validation.
	Injected bool `json:"injected,omitempty" yaml:"injected,omitempty"`
}

// Node represents one unit of the execution tree.
// Nodes are built by a discovery collaborator (plan loader, DSL) and are read-only
// while a run is in progress; per-run state lives in a Lifecycle.
type Node struct {
	ID          string   `json:"id" yaml:"id"`
	Kind        NodeKind `json:"kind" yaml:"kind"`
	DisplayName string   `json:"display_name,omitempty" yaml:"display_name,omitempty"`

	// Extensions lists the registry IDs declared on this node, in declaration order.
	// They are inherited by every descendant.
	Extensions []string `json:"extensions,omitempty" yaml:"extensions,omitempty"`

	Parameters []Parameter `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Tags       []string    `json:"tags,omitempty" yaml:"tags,omitempty"`

	// Template holds the explicit configuration of a template node.
	Template *TemplateConfig `json:"template,omitempty" yaml:"template,omitempty"`

	// Assert is an optional expression used as the body by expression-based invokers.
	Assert string `json:"assert,omitempty" yaml:"assert,omitempty"`

	Children []*Node `json:"children,omitempty" yaml:"children,omitempty"`

	parent *Node
}

// Add appends children and sets their parent back-reference.
func (n *Node) Add(children ...*Node) *Node {
	for _, c := range children {
		c.parent = n
		n.Children = append(n.Children, c)
	}
	return n
}

// Parent returns the enclosing node, or nil for a root.
func (n *Node) Parent() *Node {
	return n.parent
}

// Name returns the display name, falling back to the ID.
func (n *Node) Name() string {
	if n.DisplayName != "" {
		return n.DisplayName
	}
	return n.ID
}

// Path returns the chain of nodes from the root down to n (inclusive).
func (n *Node) Path() []*Node {
	var path []*Node
	for cur := n; cur != nil; cur = cur.parent {
		path = append(path, cur)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// ArgumentParameters returns the parameters bound from argument sets, in order.
func (n *Node) ArgumentParameters() []Parameter {
	var params []Parameter
	for _, p := range n.Parameters {
		if !p.Injected {
			params = append(params, p)
		}
	}
	return params
}

// Link sets parent back-references throughout the tree rooted at n.
// Trees decoded from YAML or JSON must be linked before execution.
func Link(n *Node) {
	for _, c := range n.Children {
		c.parent = n
		Link(c)
	}
}

// Walk visits n and its descendants depth-first, stopping at the first error.
func Walk(n *Node, fn func(*Node) error) error {
	if err := fn(n); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := Walk(c, fn); err != nil {
			return err
		}
	}
	return nil
}
