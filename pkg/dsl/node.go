package dsl

import (
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/params"
	"github.com/aretw0/arbor/pkg/plan"
)

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	spec   plan.NodeSpec
	parent string
}

// In attaches the node to the parent node.
func (n *NodeBuilder) In(parent string) *NodeBuilder {
	n.parent = parent
	return n
}

// Container marks the node as a container even while it has no children.
func (n *NodeBuilder) Container() *NodeBuilder {
	n.spec.Kind = domain.KindContainer
	return n
}

// Named sets the display name.
func (n *NodeBuilder) Named(name string) *NodeBuilder {
	n.spec.DisplayName = name
	return n
}

// Assert sets the expression evaluated as the test body.
func (n *NodeBuilder) Assert(expr string) *NodeBuilder {
	n.spec.Assert = expr
	return n
}

// Param declares a formal parameter.
func (n *NodeBuilder) Param(name, typ string) *NodeBuilder {
	n.spec.Parameters = append(n.spec.Parameters, domain.Parameter{Name: name, Type: typ})
	return n
}

// Inject declares a parameter supplied by a resolver rather than by argument sets.
func (n *NodeBuilder) Inject(name, typ string) *NodeBuilder {
	n.spec.Parameters = append(n.spec.Parameters, domain.Parameter{Name: name, Type: typ, Injected: true})
	return n
}

// Tags adds tags.
func (n *NodeBuilder) Tags(tags ...string) *NodeBuilder {
	n.spec.Tags = append(n.spec.Tags, tags...)
	return n
}

// Use declares registered extensions on the node.
func (n *NodeBuilder) Use(ids ...string) *NodeBuilder {
	n.spec.Extensions = append(n.spec.Extensions, ids...)
	return n
}

// EnabledIf runs the node only while expr holds.
func (n *NodeBuilder) EnabledIf(expr string) *NodeBuilder {
	n.spec.EnabledIf = expr
	return n
}

// DisabledIf skips the node while expr holds.
func (n *NodeBuilder) DisabledIf(expr string) *NodeBuilder {
	n.spec.DisabledIf = expr
	return n
}

// CSV adds an inline CSV source, one record per string. It makes the node a template.
func (n *NodeBuilder) CSV(records ...string) *NodeBuilder {
	return n.Source(params.KindCSV, map[string]any{"records": toAny(records)})
}

// CSVText adds an inline CSV source parsed from a text block.
func (n *NodeBuilder) CSVText(text string) *NodeBuilder {
	return n.Source(params.KindCSV, map[string]any{"text_block": text})
}

// CSVFile adds a CSV file source.
func (n *NodeBuilder) CSVFile(files ...string) *NodeBuilder {
	return n.Source(params.KindCSVFile, map[string]any{"files": toAny(files)})
}

// Source adds an argument source of any kind. It makes the node a template.
func (n *NodeBuilder) Source(kind string, options map[string]any) *NodeBuilder {
	t := n.template()
	t.Sources = append(t.Sources, domain.SourceSpec{Kind: kind, Options: options})
	return n
}

// NamePattern sets the display name pattern of invocations.
func (n *NodeBuilder) NamePattern(pattern string) *NodeBuilder {
	n.template().NamePattern = pattern
	return n
}

// ArgumentCountValidation overrides the configured validation mode.
func (n *NodeBuilder) ArgumentCountValidation(mode string) *NodeBuilder {
	n.template().ArgumentCountValidation = mode
	return n
}

// AllowZeroInvocations lets the template succeed without any argument set.
func (n *NodeBuilder) AllowZeroInvocations() *NodeBuilder {
	n.template().AllowZeroInvocations = true
	return n
}

func (n *NodeBuilder) template() *domain.TemplateConfig {
	if n.spec.Template == nil {
		n.spec.Template = &domain.TemplateConfig{}
	}
	return n.spec.Template
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
