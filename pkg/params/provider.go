package params

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/arbor/pkg/config"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/extension"
)

// ProviderID is the registry ID under which the engine installs the Provider.
const ProviderID = "arbor.template-provider"

// Provider expands template nodes from their declared and programmatic sources.
type Provider struct {
	factories *Factories

	mu       sync.RWMutex
	attached map[string][]ArgumentSource
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithFactories replaces the source factories.
func WithFactories(f *Factories) ProviderOption {
	return func(p *Provider) {
		p.factories = f
	}
}

// WithSources attaches programmatic sources to the template with the given node ID.
// They run after the node's declared sources.
func WithSources(nodeID string, sources ...ArgumentSource) ProviderOption {
	return func(p *Provider) {
		p.attached[nodeID] = append(p.attached[nodeID], sources...)
	}
}

// NewProvider creates a provider using DefaultFactories.
func NewProvider(opts ...ProviderOption) *Provider {
	p := &Provider{
		factories: DefaultFactories(),
		attached:  make(map[string][]ArgumentSource),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Extension wraps the provider for registration.
func (p *Provider) Extension() extension.Extension {
	return extension.Extension{ID: ProviderID, TemplateProvider: p}
}

// Attach adds programmatic sources after construction.
func (p *Provider) Attach(nodeID string, sources ...ArgumentSource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attached[nodeID] = append(p.attached[nodeID], sources...)
}

func (p *Provider) Supports(ec *extension.Context) bool {
	n := ec.Node
	if n == nil || n.Kind != domain.KindTemplate {
		return false
	}
	if n.Template != nil && len(n.Template.Sources) > 0 {
		return true
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.attached[n.ID]) > 0
}

func (p *Provider) Provide(ctx context.Context, ec *extension.Context) (extension.InvocationStream, error) {
	cfg := ec.Node.Template

	sources, err := p.sources(ec.Node)
	if err != nil {
		return nil, err
	}
	mode, err := effectiveMode(ec, cfg)
	if err != nil {
		return nil, err
	}
	formatter, err := p.formatter(ec)
	if err != nil {
		return nil, err
	}

	loggerOf(ec).Debug("expanding template",
		"node", ec.Node.ID,
		"sources", len(sources),
		"validation", string(mode),
		"pattern", formatter.Pattern(),
	)

	return newStream(ctx, ec, sources, streamConfig{
		formatter: formatter,
		mode:      mode,
		autoClose: cfg.AutoClose(),
		allowZero: cfg != nil && cfg.AllowZeroInvocations,
	}), nil
}

// Check validates the template configuration of node without reading any source.
func (p *Provider) Check(node *domain.Node, params config.Parameters) error {
	if node.Kind != domain.KindTemplate {
		return nil
	}
	ec := &extension.Context{Node: node, Config: params}
	if _, err := p.sources(node); err != nil {
		return err
	}
	if node.Template != nil {
		if _, err := ParseValidationMode(node.Template.ArgumentCountValidation); err != nil {
			return &domain.ConfigurationError{
				Code:    domain.CodeUnsupportedMode,
				Subject: fmt.Sprintf("template %q", node.ID),
				Err:     err,
			}
		}
	}
	_, err := p.formatter(ec)
	return err
}

func (p *Provider) sources(node *domain.Node) ([]ArgumentSource, error) {
	var sources []ArgumentSource
	if node.Template != nil {
		for i, spec := range node.Template.Sources {
			src, err := p.factories.Build(spec)
			if err != nil {
				return nil, fmt.Errorf("template %q source %d: %w", node.ID, i+1, err)
			}
			sources = append(sources, src)
		}
	}

	p.mu.RLock()
	sources = append(sources, p.attached[node.ID]...)
	p.mu.RUnlock()
	return sources, nil
}

func (p *Provider) formatter(ec *extension.Context) (*Formatter, error) {
	defaultPattern, maxLength := formatSettings(ec)
	var pattern string
	if ec.Node.Template != nil {
		pattern = ec.Node.Template.NamePattern
	}
	return NewFormatter(pattern, defaultPattern, maxLength)
}
