package params

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/extension"
	"github.com/mitchellh/mapstructure"
)

// Source kinds understood by DefaultFactories.
const (
	KindCSV     = "csv"
	KindCSVFile = "csv-file"
	KindValues  = "values"
)

// ArgumentSource produces the argument sets of a template. The sequence is lazy and
// finite, and is only iterated once. An error ends the sequence.
type ArgumentSource interface {
	Arguments(ctx context.Context, ec *extension.Context) iter.Seq2[domain.ArgumentSet, error]
}

// SourceFunc adapts a function to ArgumentSource.
type SourceFunc func(ctx context.Context, ec *extension.Context) iter.Seq2[domain.ArgumentSet, error]

func (f SourceFunc) Arguments(ctx context.Context, ec *extension.Context) iter.Seq2[domain.ArgumentSet, error] {
	return f(ctx, ec)
}

// Values is a source yielding the given sets in order.
func Values(sets ...domain.ArgumentSet) ArgumentSource {
	return SourceFunc(func(context.Context, *extension.Context) iter.Seq2[domain.ArgumentSet, error] {
		return func(yield func(domain.ArgumentSet, error) bool) {
			for _, set := range sets {
				if !yield(set, nil) {
					return
				}
			}
		}
	})
}

// ValuesConfig configures the "values" source kind. Each entry of Sets is one argument
// set; each entry of Values is a single-argument set.
type ValuesConfig struct {
	Sets   [][]any `mapstructure:"sets"`
	Values []any   `mapstructure:"values"`
}

// NewValues builds a literal source from its configuration.
func NewValues(cfg ValuesConfig) ArgumentSource {
	sets := make([]domain.ArgumentSet, 0, len(cfg.Sets)+len(cfg.Values))
	for _, s := range cfg.Sets {
		sets = append(sets, domain.Arguments(s...))
	}
	for _, v := range cfg.Values {
		sets = append(sets, domain.Arguments(v))
	}
	return Values(sets...)
}

// Factory builds a source from the options of a SourceSpec.
type Factory func(options map[string]any) (ArgumentSource, error)

// Factories maps source kinds to factories. It is safe for concurrent use.
type Factories struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewFactories creates an empty factory table.
func NewFactories() *Factories {
	return &Factories{factories: make(map[string]Factory)}
}

// DefaultFactories knows the csv, csv-file and values kinds.
func DefaultFactories() *Factories {
	f := NewFactories()
	f.Register(KindCSV, func(options map[string]any) (ArgumentSource, error) {
		var cfg CSVConfig
		if err := decode(KindCSV, options, &cfg); err != nil {
			return nil, err
		}
		return NewCSV(cfg)
	})
	f.Register(KindCSVFile, func(options map[string]any) (ArgumentSource, error) {
		var cfg CSVFileConfig
		if err := decode(KindCSVFile, options, &cfg); err != nil {
			return nil, err
		}
		return NewCSVFile(cfg)
	})
	f.Register(KindValues, func(options map[string]any) (ArgumentSource, error) {
		var cfg ValuesConfig
		if err := decode(KindValues, options, &cfg); err != nil {
			return nil, err
		}
		return NewValues(cfg), nil
	})
	return f
}

// Register adds or replaces the factory of kind.
func (f *Factories) Register(kind string, factory Factory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.factories[kind] = factory
}

// Kinds returns the registered kinds, sorted.
func (f *Factories) Kinds() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	kinds := make([]string, 0, len(f.factories))
	for k := range f.factories {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// Build creates the source described by spec.
func (f *Factories) Build(spec domain.SourceSpec) (ArgumentSource, error) {
	f.mu.RLock()
	factory, ok := f.factories[spec.Kind]
	f.mu.RUnlock()
	if !ok {
		return nil, &domain.ConfigurationError{
			Code:    domain.CodeInvalidSource,
			Subject: fmt.Sprintf("source %q", spec.Kind),
			Reason:  "unknown source kind",
		}
	}
	return factory(spec.Options)
}

func decode(kind string, options map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(options); err != nil {
		return &domain.ConfigurationError{
			Code:    domain.CodeInvalidSource,
			Subject: fmt.Sprintf("source %q", kind),
			Err:     err,
		}
	}
	return nil
}

// concat chains sources lazily in declaration order. The first error ends the sequence.
func concat(ctx context.Context, ec *extension.Context, sources []ArgumentSource) iter.Seq2[domain.ArgumentSet, error] {
	return func(yield func(domain.ArgumentSet, error) bool) {
		for _, src := range sources {
			for set, err := range src.Arguments(ctx, ec) {
				if !yield(set, err) || err != nil {
					return
				}
			}
		}
	}
}
