package runtime

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/arbor/pkg/config"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/extension"
	"github.com/aretw0/arbor/pkg/registry"
	"github.com/aretw0/arbor/pkg/schema"
)

// TemplateChecker is implemented by template providers that can validate a template
// without expanding it.
type TemplateChecker interface {
	Check(node *domain.Node, params config.Parameters) error
}

// ValidateTree checks the structure of a linked tree: unique non-empty IDs, known kinds,
// children only below containers and parseable parameter types.
func ValidateTree(root *domain.Node) error {
	seen := make(map[string]bool)
	var errs []error

	_ = domain.Walk(root, func(n *domain.Node) error {
		key := nodePath(n)
		invalid := func(reason string, value any) {
			errs = append(errs, &schema.ValidationError{Key: key, Reason: reason, Value: value})
		}

		switch {
		case n.ID == "":
			invalid("node ID must not be empty", nil)
		case seen[n.ID]:
			invalid(fmt.Sprintf("duplicate node ID %q", n.ID), nil)
		}
		seen[n.ID] = true

		if !n.Kind.Valid() {
			invalid(fmt.Sprintf("unknown node kind %q", n.Kind), nil)
		}
		if n.Kind != domain.KindContainer && len(n.Children) > 0 {
			invalid("only containers can have children", nil)
		}
		if n.Kind != domain.KindTemplate && n.Template != nil {
			invalid("template configuration on a non-template node", nil)
		}
		for _, p := range n.Parameters {
			if _, err := schema.ParseType(p.Type); err != nil {
				invalid(fmt.Sprintf("parameter %q: %v", p.Name, err), nil)
			}
		}
		return nil
	})
	return schema.Join(errs)
}

// Check validates root without executing anything: the tree structure, the extension
// declarations of every node and the configuration of every template.
func (e *Engine) Check(root *domain.Node) error {
	domain.Link(root)
	if err := ValidateTree(root); err != nil {
		return err
	}

	var errs []error
	_ = domain.Walk(root, func(n *domain.Node) error {
		decls, err := e.registry.Visible(n)
		if err != nil {
			errs = append(errs, err)
			return nil
		}
		if n.Kind != domain.KindTemplate {
			return nil
		}

		ec := &extension.Context{Node: n, Config: e.params, Logger: e.logger}
		supported := false
		for _, d := range registry.Filter(decls, extension.CapabilityTemplateProvider) {
			if !d.Extension.TemplateProvider.Supports(ec) {
				continue
			}
			supported = true
			if checker, ok := d.Extension.TemplateProvider.(TemplateChecker); ok {
				if err := checker.Check(n, e.params); err != nil {
					errs = append(errs, err)
				}
			}
		}
		if !supported {
			errs = append(errs, missingProvider(n))
		}
		return nil
	})
	return errors.Join(errs...)
}

func missingProvider(n *domain.Node) error {
	return &domain.ConfigurationError{
		Code:    domain.CodeMissingProvider,
		Subject: fmt.Sprintf("template %q", n.ID),
		Reason:  "no visible template provider supports this node",
	}
}

func nodePath(n *domain.Node) string {
	var ids []string
	for _, p := range n.Path() {
		id := p.ID
		if id == "" {
			id = "?"
		}
		ids = append(ids, id)
	}
	return strings.Join(ids, "/")
}
