package plan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aretw0/arbor/pkg/config"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/expressions"
	"github.com/aretw0/arbor/pkg/extension"
	"github.com/aretw0/arbor/pkg/params"
	"github.com/aretw0/arbor/pkg/registry"
)

// Plan is a built plan: a linked node tree, the configuration it runs with and the
// extensions it defines.
type Plan struct {
	Name          string
	Root          *domain.Node
	Configuration config.Parameters
	Extensions    []extension.Extension
}

// Register adds every plan extension to reg.
func (p *Plan) Register(reg *registry.Registry) error {
	for _, ext := range p.Extensions {
		if err := reg.Register(ext); err != nil {
			return err
		}
	}
	return nil
}

// Parse decodes, validates and builds a plan. Relative csv-file paths are resolved
// against baseDir.
func Parse(data []byte, baseDir string) (*Plan, error) {
	doc, err := DecodeBytes(data)
	if err != nil {
		return nil, err
	}
	if err := Validate(doc); err != nil {
		return nil, err
	}
	return Build(doc, baseDir)
}

// LoadFile reads and parses the plan at path.
func LoadFile(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	p, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", path, err)
	}
	if p.Name == "" {
		p.Name = trimExtension(filepath.Base(path))
	}
	return p, nil
}

// Build turns a document into a plan. Every node carrying enabled_if or disabled_if gets
// a generated expression condition named "<node id>#enabled_if" (or "#disabled_if").
// The plan name is left empty when the document has none; loaders fill it in.
func Build(doc *Document, baseDir string) (*Plan, error) {
	p := &Plan{
		Name:          doc.Name,
		Configuration: config.NewParameters(config.Flatten(doc.Configuration)),
	}

	var errs []error
	for _, spec := range doc.Define {
		ext, err := BuildExtension(spec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		p.Extensions = append(p.Extensions, ext)
	}

	b := &builder{baseDir: baseDir, plan: p}
	p.Root = b.node(doc.Root)
	errs = append(errs, b.errs...)
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	domain.Link(p.Root)
	return p, nil
}

type builder struct {
	baseDir string
	plan    *Plan
	errs    []error
}

func (b *builder) node(spec NodeSpec) *domain.Node {
	n := &domain.Node{
		ID:          spec.ID,
		Kind:        spec.Kind,
		DisplayName: spec.DisplayName,
		Extensions:  append([]string(nil), spec.Extensions...),
		Parameters:  spec.Parameters,
		Tags:        spec.Tags,
		Template:    b.template(spec.ID, spec.Template),
		Assert:      spec.Assert,
	}
	if n.Kind == "" {
		n.Kind = InferKind(len(spec.Children) > 0, spec.Template != nil)
	}

	b.condition(n, spec.EnabledIf, expressions.EnabledIf)
	b.condition(n, spec.DisabledIf, expressions.DisabledIf)

	for _, child := range spec.Children {
		n.Add(b.node(child))
	}
	return n
}

// InferKind picks the kind of a node declared without one.
func InferKind(hasChildren, hasTemplate bool) domain.NodeKind {
	switch {
	case hasChildren:
		return domain.KindContainer
	case hasTemplate:
		return domain.KindTemplate
	default:
		return domain.KindTest
	}
}

func (b *builder) condition(n *domain.Node, source string, mode expressions.Mode) {
	if source == "" {
		return
	}
	id := fmt.Sprintf("%s#%s", n.ID, mode)
	ext, err := expressions.Condition(id, source, mode)
	if err != nil {
		b.errs = append(b.errs, &domain.ConfigurationError{
			Code:    domain.CodeInvalidExtension,
			Subject: fmt.Sprintf("node %q", n.ID),
			Err:     err,
		})
		return
	}
	b.plan.Extensions = append(b.plan.Extensions, ext)
	n.Extensions = append(n.Extensions, id)
}

// template copies cfg so that path resolution never mutates the document.
func (b *builder) template(nodeID string, cfg *domain.TemplateConfig) *domain.TemplateConfig {
	if cfg == nil {
		return nil
	}
	out := *cfg
	out.Sources = make([]domain.SourceSpec, len(cfg.Sources))
	for i, src := range cfg.Sources {
		out.Sources[i] = src
		if src.Kind != params.KindCSVFile || b.baseDir == "" {
			continue
		}
		opts, err := ResolveFiles(src.Options, b.baseDir)
		if err != nil {
			b.errs = append(b.errs, fmt.Errorf("template %q source %d: %w", nodeID, i+1, err))
			continue
		}
		out.Sources[i].Options = opts
	}
	return &out
}

// ResolveFiles returns a copy of csv-file options whose relative "files" entries are
// joined to baseDir.
func ResolveFiles(options map[string]any, baseDir string) (map[string]any, error) {
	out := make(map[string]any, len(options))
	for k, v := range options {
		out[k] = v
	}

	var files []string
	switch v := options["files"].(type) {
	case nil:
		return out, nil
	case string:
		files = []string{v}
	case []string:
		files = append(files, v...)
	case []any:
		for _, f := range v {
			s, ok := f.(string)
			if !ok {
				return nil, fmt.Errorf("files: expected strings, got %T", f)
			}
			files = append(files, s)
		}
	default:
		return nil, fmt.Errorf("files: expected a list of paths, got %T", v)
	}

	resolved := make([]any, len(files))
	for i, f := range files {
		if !filepath.IsAbs(f) {
			f = filepath.Join(baseDir, f)
		}
		resolved[i] = f
	}
	out["files"] = resolved
	return out, nil
}

func trimExtension(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
