package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/aretw0/arbor/pkg/plan"
	"gopkg.in/yaml.v3"
)

// Loader serves plans held in memory as YAML documents, keyed by plan name.
type Loader struct {
	mu    sync.RWMutex
	plans map[string][]byte
}

// NewLoader creates a loader over raw YAML plan documents.
func NewLoader(data map[string]string) *Loader {
	plans := make(map[string][]byte, len(data))
	for name, doc := range data {
		plans[name] = []byte(doc)
	}
	return &Loader{plans: plans}
}

// NewFromDocuments creates a loader from decoded documents. A document without a name
// takes the key it is registered under.
func NewFromDocuments(docs map[string]*plan.Document) (*Loader, error) {
	l := &Loader{plans: make(map[string][]byte, len(docs))}
	for name, doc := range docs {
		if err := l.Put(name, doc); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Put stores or replaces a document.
func (l *Loader) Put(name string, doc *plan.Document) error {
	if name == "" {
		return fmt.Errorf("plan name cannot be empty")
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal plan %s: %w", name, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.plans[name] = data
	return nil
}

// Names returns the available plan names, sorted.
func (l *Loader) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.plans))
	for name := range l.plans {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Get parses the named plan.
func (l *Loader) Get(ctx context.Context, name string) (*plan.Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	data, ok := l.plans[name]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("plan not found: %s", name)
	}

	p, err := plan.Parse(data, "")
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", name, err)
	}
	if p.Name == "" {
		p.Name = name
	}
	return p, nil
}

// Select returns a plan.Loader for one named plan.
func (l *Loader) Select(name string) plan.Loader {
	return plan.LoaderFunc(func(ctx context.Context) (*plan.Plan, error) {
		return l.Get(ctx, name)
	})
}
