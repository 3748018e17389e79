package dsl

import (
	"fmt"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/plan"
)

// Builder manages the plan construction. Its name is also the ID of the root container
// every parentless node is attached to.
type Builder struct {
	name   string
	config map[string]any
	define []plan.ExtensionSpec
	nodes  map[string]*NodeBuilder
	order  []string
	base   string
}

// New creates a new plan builder.
func New(name string) *Builder {
	return &Builder{
		name:   name,
		config: make(map[string]any),
		nodes:  make(map[string]*NodeBuilder),
	}
}

// Configure sets a configuration parameter. Dotted keys are kept as is.
func (b *Builder) Configure(key string, value any) *Builder {
	b.config[key] = value
	return b
}

// Define adds a plan-local extension.
func (b *Builder) Define(id, kind string, options map[string]any) *Builder {
	b.define = append(b.define, plan.ExtensionSpec{ID: id, Kind: kind, Options: options})
	return b
}

// BaseDir resolves relative csv-file paths.
func (b *Builder) BaseDir(dir string) *Builder {
	b.base = dir
	return b
}

// Add creates a node. If the node already exists, it returns the existing builder.
func (b *Builder) Add(id string) *NodeBuilder {
	if nb, ok := b.nodes[id]; ok {
		return nb
	}
	nb := &NodeBuilder{spec: plan.NodeSpec{ID: id}}
	b.nodes[id] = nb
	b.order = append(b.order, id)
	return nb
}

// Document assembles the plan document. Siblings keep the order they were added in.
func (b *Builder) Document() (*plan.Document, error) {
	if b.name == "" {
		return nil, fmt.Errorf("plan name cannot be empty")
	}
	if _, ok := b.nodes[b.name]; ok {
		return nil, fmt.Errorf("node ID %q is reserved for the plan root", b.name)
	}

	children := make(map[string][]string)
	for _, id := range b.order {
		parent := b.nodes[id].parent
		if parent == "" {
			parent = b.name
		} else if _, ok := b.nodes[parent]; !ok {
			return nil, fmt.Errorf("node %q: unknown parent %q", id, parent)
		}
		children[parent] = append(children[parent], id)
	}

	visited := make(map[string]bool)
	var build func(id string) []plan.NodeSpec
	build = func(id string) []plan.NodeSpec {
		var specs []plan.NodeSpec
		for _, child := range children[id] {
			visited[child] = true
			spec := b.nodes[child].spec
			spec.Children = build(child)
			specs = append(specs, spec)
		}
		return specs
	}

	doc := &plan.Document{
		Name:   b.name,
		Define: b.define,
		Root: plan.NodeSpec{
			ID:       b.name,
			Kind:     domain.KindContainer,
			Children: build(b.name),
		},
	}
	if len(b.config) > 0 {
		doc.Configuration = b.config
	}
	if len(visited) != len(b.nodes) {
		return nil, fmt.Errorf("cycle detected in parent links")
	}
	return doc, nil
}

// Build validates and builds the plan.
func (b *Builder) Build() (*plan.Plan, error) {
	doc, err := b.Document()
	if err != nil {
		return nil, err
	}
	if err := plan.Validate(doc); err != nil {
		return nil, fmt.Errorf("invalid plan %s: %w", b.name, err)
	}
	return plan.Build(doc, b.base)
}
