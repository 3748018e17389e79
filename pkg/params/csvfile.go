package params

import (
	"context"
	"fmt"
	"iter"
	"os"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/extension"
)

// CSVFileConfig configures the "csv-file" source kind. Files are read in order, each
// with its own row numbering.
type CSVFileConfig struct {
	CSVConfig `mapstructure:",squash"`

	Files []string `mapstructure:"files"`
	// SkipLines drops leading lines of every file, typically a header.
	SkipLines int `mapstructure:"skip_lines"`
}

// CSVFileSource reads argument sets from CSV files.
type CSVFileSource struct {
	cfg    CSVFileConfig
	format csvFormat
}

// NewCSVFile validates cfg and returns the source. Files are opened lazily.
func NewCSVFile(cfg CSVFileConfig) (*CSVFileSource, error) {
	source := cfg.name("csv file source")
	invalid := func(reason string) error {
		return &domain.ConfigurationError{Code: domain.CodeInvalidSource, Subject: source, Reason: reason}
	}
	switch {
	case len(cfg.Files) == 0:
		return nil, invalid("at least one file is required")
	case len(cfg.Records) > 0 || cfg.TextBlock != "":
		return nil, invalid("records and text block are not supported for files")
	case cfg.SkipLines < 0:
		return nil, invalid(fmt.Sprintf("skip lines must not be negative, got %d", cfg.SkipLines))
	}

	f, err := cfg.format(source)
	if err != nil {
		return nil, err
	}
	return &CSVFileSource{cfg: cfg, format: f}, nil
}

func (s *CSVFileSource) Arguments(_ context.Context, _ *extension.Context) iter.Seq2[domain.ArgumentSet, error] {
	return func(yield func(domain.ArgumentSet, error) bool) {
		for _, path := range s.cfg.Files {
			if !s.readFile(path, yield) {
				return
			}
		}
	}
}

// readFile yields the rows of one file and reports whether iteration should go on.
func (s *CSVFileSource) readFile(path string, yield func(domain.ArgumentSet, error) bool) bool {
	p := &csvParser{csvFormat: s.format, source: fmt.Sprintf("file %q", path), skip: s.cfg.SkipLines}

	f, err := os.Open(path)
	if err != nil {
		yield(domain.ArgumentSet{}, p.readError(err))
		return false
	}
	defer f.Close()

	for row, err := range p.rows(f) {
		if err != nil {
			yield(domain.ArgumentSet{}, err)
			return false
		}
		if !yield(domain.Arguments(row...), nil) {
			return false
		}
	}
	return true
}
