package loam

import (
	"cmp"
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/plan"
	"github.com/aretw0/loam"
)

// Loader builds a plan from a directory of Markdown, JSON and YAML documents. Each
// document is a node; its front matter names its parent. Documents without a parent hang
// under a root container named after the plan.
type Loader struct {
	Repo *loam.TypedRepository[NodeMetadata]
	// Dir resolves relative csv-file paths. Optional.
	Dir string
	// Name is used when no plan document names the plan.
	Name string
}

// New creates a loader over an existing repository.
func New(repo *loam.TypedRepository[NodeMetadata]) *Loader {
	return &Loader{Repo: repo}
}

// Open initialises a strict, read-only Loam repository at dir.
// Strict mode makes every format decode numbers the same way (json.Number).
func Open(dir string) (*Loader, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	repo, err := loam.Init(absPath,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return &Loader{
		Repo: loam.NewTypedRepository[NodeMetadata](repo),
		Dir:  absPath,
		Name: filepath.Base(absPath),
	}, nil
}

type entry struct {
	docID string
	meta  NodeMetadata
	spec  plan.NodeSpec
}

// Load reads every document and assembles the plan.
func (l *Loader) Load(ctx context.Context) (*plan.Plan, error) {
	docs, err := l.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	doc := &plan.Document{Name: l.Name}
	var planDoc string
	var entries []*entry
	seen := make(map[string]string)

	for _, d := range docs {
		meta := d.Data
		if meta.Kind == KindPlan {
			if planDoc != "" {
				return nil, fmt.Errorf("plan settings are defined in both '%s' and '%s'", planDoc, d.ID)
			}
			planDoc = d.ID
			if meta.Name != "" {
				doc.Name = meta.Name
			}
			doc.Configuration = meta.Configuration
			doc.Define = meta.Define
			continue
		}

		rawID := meta.ID
		if rawID == "" {
			rawID = d.ID
		}
		id := trimExtension(rawID)

		if existingPath, ok := seen[id]; ok {
			return nil, fmt.Errorf("collision detected: ID '%s' is defined in both '%s' and '%s'", id, existingPath, d.ID)
		}
		seen[id] = d.ID

		entries = append(entries, &entry{
			docID: d.ID,
			meta:  meta,
			spec:  nodeSpec(id, meta, d.Content),
		})
	}

	if doc.Name == "" {
		doc.Name = "plan"
	}
	root, err := assemble(doc.Name, entries)
	if err != nil {
		return nil, err
	}
	doc.Root = *root

	if err := plan.Validate(doc); err != nil {
		return nil, err
	}
	return plan.Build(doc, l.Dir)
}

func nodeSpec(id string, meta NodeMetadata, content string) plan.NodeSpec {
	name := meta.DisplayName
	if name == "" {
		name = heading(content)
	}
	return plan.NodeSpec{
		ID:          id,
		Kind:        domain.NodeKind(meta.Kind),
		DisplayName: name,
		Extensions:  meta.Extensions,
		Parameters:  meta.Parameters,
		Tags:        meta.Tags,
		EnabledIf:   meta.EnabledIf,
		DisabledIf:  meta.DisabledIf,
		Assert:      meta.Assert,
		Template:    meta.Template,
	}
}

// heading returns the first non-empty body line, without Markdown heading marks.
func heading(content string) string {
	for line := range strings.Lines(content) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		return strings.TrimSpace(strings.TrimLeft(line, "#"))
	}
	return ""
}

// assemble links entries into a tree under a synthesized root container.
func assemble(rootID string, entries []*entry) (*plan.NodeSpec, error) {
	byID := make(map[string]*entry, len(entries))
	for _, e := range entries {
		byID[e.spec.ID] = e
	}
	if _, ok := byID[rootID]; ok {
		return nil, fmt.Errorf("node ID '%s' is reserved for the plan root", rootID)
	}

	children := make(map[string][]*entry)
	for _, e := range entries {
		parent := trimExtension(e.meta.Parent)
		if parent == "" {
			parent = rootID
		} else if _, ok := byID[parent]; !ok {
			return nil, fmt.Errorf("node '%s' (%s): unknown parent '%s'", e.spec.ID, e.docID, parent)
		}
		children[parent] = append(children[parent], e)
	}

	visited := make(map[string]bool, len(entries))
	var build func(id string) []plan.NodeSpec
	build = func(id string) []plan.NodeSpec {
		kids := children[id]
		slices.SortFunc(kids, func(a, b *entry) int {
			return cmp.Or(cmp.Compare(a.meta.Order, b.meta.Order), cmp.Compare(a.spec.ID, b.spec.ID))
		})
		specs := make([]plan.NodeSpec, 0, len(kids))
		for _, k := range kids {
			visited[k.spec.ID] = true
			spec := k.spec
			spec.Children = build(spec.ID)
			specs = append(specs, spec)
		}
		return specs
	}

	root := &plan.NodeSpec{
		ID:       rootID,
		Kind:     domain.KindContainer,
		Children: build(rootID),
	}

	// Anything unreachable from the root sits on a parent cycle.
	var cyclic []string
	for _, e := range entries {
		if !visited[e.spec.ID] {
			cyclic = append(cyclic, e.spec.ID)
		}
	}
	if len(cyclic) > 0 {
		slices.Sort(cyclic)
		return nil, fmt.Errorf("cycle detected in parent links: %s", strings.Join(cyclic, ", "))
	}
	return root, nil
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}

// Watch reports the IDs of documents that change on disk.
func (l *Loader) Watch(ctx context.Context) (<-chan string, error) {
	events, err := l.Repo.Watch(ctx, "**/*.{md,json,yaml,yml}")
	if err != nil {
		return nil, fmt.Errorf("failed to start loam watcher: %w", err)
	}

	ch := make(chan string, 1)
	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				select {
				case ch <- evt.ID:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}
