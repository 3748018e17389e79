package plan

import (
	"bytes"
	"fmt"
	"io"

	"github.com/aretw0/arbor/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Document is the on-disk form of a plan.
type Document struct {
	Name          string          `json:"name,omitempty" yaml:"name,omitempty"`
	Configuration map[string]any  `json:"configuration,omitempty" yaml:"configuration,omitempty"`
	Define        []ExtensionSpec `json:"define,omitempty" yaml:"define,omitempty"`
	Root          NodeSpec        `json:"root" yaml:"root"`
}

// NodeSpec declares one node. Kind may be omitted: nodes with children are containers,
// nodes with a template section are templates, everything else is a test.
type NodeSpec struct {
	ID          string                 `json:"id" yaml:"id" jsonschema:"minLength=1"`
	Kind        domain.NodeKind        `json:"kind,omitempty" yaml:"kind,omitempty" jsonschema:"enum=container,enum=test,enum=template"`
	DisplayName string                 `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Extensions  []string               `json:"extensions,omitempty" yaml:"extensions,omitempty"`
	Parameters  []domain.Parameter     `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Tags        []string               `json:"tags,omitempty" yaml:"tags,omitempty"`
	EnabledIf   string                 `json:"enabled_if,omitempty" yaml:"enabled_if,omitempty"`
	DisabledIf  string                 `json:"disabled_if,omitempty" yaml:"disabled_if,omitempty"`
	Assert      string                 `json:"assert,omitempty" yaml:"assert,omitempty"`
	Template    *domain.TemplateConfig `json:"template,omitempty" yaml:"template,omitempty"`
	Children    []NodeSpec             `json:"children,omitempty" yaml:"children,omitempty"`
}

// ExtensionSpec defines a plan-local extension built from one of the built-in kinds.
type ExtensionSpec struct {
	ID      string         `json:"id" yaml:"id" jsonschema:"minLength=1"`
	Kind    string         `json:"kind" yaml:"kind" jsonschema:"enum=disabled,enum=enabled_if,enum=disabled_if,enum=on_os,enum=not_on_os,enum=if_env,enum=unless_env,enum=tagged,enum=not_tagged,enum=value,enum=typed"`
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

// Decode parses a YAML plan. Unknown fields are rejected.
func Decode(r io.Reader) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("decode plan: empty document")
		}
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	return &doc, nil
}

// DecodeBytes is Decode over an in-memory document.
func DecodeBytes(data []byte) (*Document, error) {
	return Decode(bytes.NewReader(data))
}
