// Package registry holds the extensions known to an engine and computes which of them
// are visible at a given node.
package registry

import (
	"fmt"
	"slices"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/extension"
)

// Declaration is an extension visible at a node, with the node that declared it.
// DeclaredBy is empty for defaults.
type Declaration struct {
	Extension  extension.Extension
	DeclaredBy string
}

// Registry maps extension IDs to extensions. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	extensions map[string]extension.Extension
	defaults   []string
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		extensions: make(map[string]extension.Extension),
	}
}

// Register adds an extension that nodes opt into by ID.
func (r *Registry) Register(ext extension.Extension) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.add(ext)
}

// RegisterDefault adds an extension visible at every node, ahead of declared ones.
func (r *Registry) RegisterDefault(ext extension.Extension) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.add(ext); err != nil {
		return err
	}
	r.defaults = append(r.defaults, ext.ID)
	return nil
}

// MustRegister is Register for setup code; it panics on error.
func (r *Registry) MustRegister(exts ...extension.Extension) *Registry {
	for _, ext := range exts {
		if err := r.Register(ext); err != nil {
			panic(err)
		}
	}
	return r
}

// Lookup returns the extension registered under id.
func (r *Registry) Lookup(id string) (extension.Extension, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ext, ok := r.extensions[id]
	return ext, ok
}

// IDs returns the registered IDs, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.extensions))
	for id := range r.extensions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Visible returns the extensions in effect at node: defaults first, then the
// declarations of each ancestor from the root down, then the node's own. An ID seen
// twice keeps its first position.
func (r *Registry) Visible(node *domain.Node) ([]Declaration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var visible []Declaration

	for _, id := range r.defaults {
		seen[id] = true
		visible = append(visible, Declaration{Extension: r.extensions[id]})
	}

	for _, n := range node.Path() {
		for _, id := range n.Extensions {
			if seen[id] {
				continue
			}
			ext, ok := r.extensions[id]
			if !ok {
				return nil, &domain.ConfigurationError{
					Code:    domain.CodeUnknownExtension,
					Subject: fmt.Sprintf("node %q", n.ID),
					Reason:  fmt.Sprintf("extension %q is not registered", id),
				}
			}
			seen[id] = true
			visible = append(visible, Declaration{Extension: ext, DeclaredBy: n.ID})
		}
	}
	return visible, nil
}

// Filter keeps the declarations whose extension has every flag of capability,
// preserving order.
func Filter(decls []Declaration, capability extension.Capability) []Declaration {
	var out []Declaration
	for _, d := range decls {
		if d.Extension.Capabilities().Has(capability) {
			out = append(out, d)
		}
	}
	return out
}

func (r *Registry) add(ext extension.Extension) error {
	if ext.ID == "" {
		return &domain.ConfigurationError{
			Code:    domain.CodeInvalidExtension,
			Subject: "registry",
			Reason:  "extension ID must not be empty",
		}
	}
	if _, exists := r.extensions[ext.ID]; exists {
		return &domain.ConfigurationError{
			Code:    domain.CodeDuplicateExtension,
			Subject: "registry",
			Reason:  fmt.Sprintf("extension %q is already registered", ext.ID),
		}
	}
	r.extensions[ext.ID] = ext
	return nil
}
