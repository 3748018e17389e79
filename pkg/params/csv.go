package params

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/extension"
)

const (
	quote = '\''

	defaultDelimiter         = ","
	defaultMaxCharsPerColumn = 4096
	unlimitedChars           = -1
)

// ErrColumnBufferExceeded is wrapped by parsing errors for fields longer than the
// configured column limit.
var ErrColumnBufferExceeded = errors.New("column buffer exceeded")

// CSVConfig configures the "csv" source kind.
//
// Each entry of Records holds one or more rows and must not be blank; TextBlock holds
// many and may contain blank lines. Only one of them may be set.
type CSVConfig struct {
	// Name identifies the source in error messages.
	Name string `mapstructure:"name"`

	Records   []string `mapstructure:"records"`
	TextBlock string   `mapstructure:"text_block"`

	// Delimiter is a single character. DelimiterString may be longer. Setting both is an
	// error; setting neither means ",".
	Delimiter       string `mapstructure:"delimiter"`
	DelimiterString string `mapstructure:"delimiter_string"`

	// EmptyValue replaces unquoted empty fields.
	EmptyValue string `mapstructure:"empty_value"`
	// NullValues lists the unquoted texts read as nil.
	NullValues []string `mapstructure:"null_values"`

	// MaxCharsPerColumn bounds field length. 0 means 4096, -1 means unlimited.
	MaxCharsPerColumn int `mapstructure:"max_chars_per_column"`

	// KeepWhitespace disables trimming of unquoted fields.
	KeepWhitespace bool `mapstructure:"keep_whitespace"`
}

func (c CSVConfig) name(fallback string) string {
	if c.Name != "" {
		return c.Name
	}
	return fallback
}

// format validates the dialect settings shared by every CSV source kind.
func (c CSVConfig) format(source string) (csvFormat, error) {
	f := csvFormat{
		delimiter:  defaultDelimiter,
		emptyValue: c.EmptyValue,
		maxChars:   c.MaxCharsPerColumn,
		trim:       !c.KeepWhitespace,
		nulls:      make(map[string]struct{}, len(c.NullValues)),
	}
	invalid := func(reason string) error {
		return &domain.ConfigurationError{
			Code:    domain.CodeInvalidSource,
			Subject: source,
			Reason:  reason,
		}
	}

	switch {
	case c.Delimiter != "" && c.DelimiterString != "":
		return f, &domain.ConfigurationError{
			Code:   domain.CodeConflictingDelimiter,
			Reason: "the delimiter and delimiter string cannot be set simultaneously in " + source,
		}
	case c.Delimiter != "":
		if utf8.RuneCountInString(c.Delimiter) != 1 {
			return f, invalid(fmt.Sprintf("delimiter %q must be a single character", c.Delimiter))
		}
		f.delimiter = c.Delimiter
	case c.DelimiterString != "":
		f.delimiter = c.DelimiterString
	}
	if strings.ContainsRune(f.delimiter, quote) {
		return f, invalid(fmt.Sprintf("delimiter %q must not contain the quote character", f.delimiter))
	}

	switch {
	case f.maxChars == 0:
		f.maxChars = defaultMaxCharsPerColumn
	case f.maxChars == unlimitedChars:
	case f.maxChars < 1:
		return f, invalid(fmt.Sprintf("max chars per column must be a positive number or -1, got %d", f.maxChars))
	}

	for _, token := range c.NullValues {
		f.nulls[strings.TrimSpace(token)] = struct{}{}
	}
	return f, nil
}

// CSVSource reads argument sets from inline CSV records.
type CSVSource struct {
	cfg    CSVConfig
	source string
	format csvFormat
}

// NewCSV validates cfg and returns the source.
func NewCSV(cfg CSVConfig) (*CSVSource, error) {
	source := cfg.name("csv source")
	if len(cfg.Records) > 0 && cfg.TextBlock != "" {
		return nil, &domain.ConfigurationError{
			Code:    domain.CodeInvalidSource,
			Subject: source,
			Reason:  "records and text block cannot be set simultaneously",
		}
	}
	f, err := cfg.format(source)
	if err != nil {
		return nil, err
	}
	return &CSVSource{cfg: cfg, source: source, format: f}, nil
}

func (s *CSVSource) Arguments(_ context.Context, _ *extension.Context) iter.Seq2[domain.ArgumentSet, error] {
	return func(yield func(domain.ArgumentSet, error) bool) {
		p := &csvParser{csvFormat: s.format, source: s.source}
		inputs := s.cfg.Records
		if s.cfg.TextBlock != "" {
			inputs = []string{s.cfg.TextBlock}
		}
		for _, in := range inputs {
			if s.cfg.TextBlock == "" && strings.TrimSpace(in) == "" {
				yield(domain.ArgumentSet{}, p.emptyRecord())
				return
			}
			for row, err := range p.rows(strings.NewReader(in)) {
				if err != nil {
					yield(domain.ArgumentSet{}, err)
					return
				}
				if !yield(domain.Arguments(row...), nil) {
					return
				}
			}
		}
	}
}

type csvFormat struct {
	delimiter  string
	emptyValue string
	nulls      map[string]struct{}
	maxChars   int
	trim       bool
}

// csvParser keeps row numbering and width across the inputs of one source.
type csvParser struct {
	csvFormat
	source string
	skip   int // Physical lines skipped at the start of each input

	row   int
	width int
}

func (p *csvParser) rows(in io.Reader) iter.Seq2[[]any, error] {
	return func(yield func([]any, error) bool) {
		br := bufio.NewReader(in)
		for range p.skip {
			if _, err := readLine(br); err != nil {
				if !errors.Is(err, io.EOF) {
					yield(nil, p.readError(err))
				}
				return
			}
		}
		for {
			row, err := p.next(br)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// next returns the following record, skipping blank and comment lines inside an input.
func (p *csvParser) next(br *bufio.Reader) ([]any, error) {
	for {
		line, err := readLine(br)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, p.readError(err)
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		p.row++
		fields, err := p.record(line, br)
		if err != nil {
			return nil, err
		}
		if p.width == 0 {
			p.width = len(fields)
		} else if len(fields) != p.width {
			return nil, p.malformed(fmt.Errorf("expected %d fields like the first row but found %d", p.width, len(fields)))
		}
		return fields, nil
	}
}

// record splits one record, reading further lines while a quoted field is open.
func (p *csvParser) record(line string, br *bufio.Reader) ([]any, error) {
	var (
		fields   []any
		buf      strings.Builder
		n        int
		quoted   bool // the field started with a quote
		inQuotes bool
		closed   bool // the closing quote was seen
	)
	write := func(r rune) error {
		buf.WriteRune(r)
		n++
		if p.maxChars != unlimitedChars && n > p.maxChars {
			return &domain.ParsingError{
				Code:   domain.CodeColumnTooLarge,
				Source: p.source,
				Row:    p.row,
				Err:    fmt.Errorf("%w: field %d is longer than %d characters", ErrColumnBufferExceeded, len(fields)+1, p.maxChars),
			}
		}
		return nil
	}
	finish := func() {
		fields = append(fields, p.value(buf.String(), quoted))
		buf.Reset()
		n = 0
		quoted, inQuotes, closed = false, false, false
	}

	for {
		for i := 0; i < len(line); {
			r, size := utf8.DecodeRuneInString(line[i:])
			switch {
			case inQuotes:
				if r == quote {
					if strings.HasPrefix(line[i+size:], string(quote)) {
						if err := write(quote); err != nil {
							return nil, err
						}
						i += 2 * size
						continue
					}
					inQuotes, closed = false, true
				} else if err := write(r); err != nil {
					return nil, err
				}
			case strings.HasPrefix(line[i:], p.delimiter):
				finish()
				i += len(p.delimiter)
				continue
			case closed:
				if !unicode.IsSpace(r) {
					return nil, p.malformed(fmt.Errorf("unexpected %q after closing quote of field %d", r, len(fields)+1))
				}
			case r == quote && !quoted && strings.TrimSpace(buf.String()) == "":
				quoted, inQuotes = true, true
				buf.Reset()
				n = 0
			default:
				if err := write(r); err != nil {
					return nil, err
				}
			}
			i += size
		}

		if !inQuotes {
			finish()
			return fields, nil
		}

		next, err := readLine(br)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, p.malformed(fmt.Errorf("unterminated quoted field %d", len(fields)+1))
			}
			return nil, p.readError(err)
		}
		if err := write('\n'); err != nil {
			return nil, err
		}
		line = next
	}
}

// value maps a raw field to its argument value.
func (p *csvParser) value(text string, quoted bool) any {
	if quoted {
		return text
	}
	trimmed := strings.TrimSpace(text)
	if _, ok := p.nulls[trimmed]; ok {
		return nil
	}
	if p.trim {
		text = trimmed
	}
	if text == "" {
		return p.emptyValue
	}
	return text
}

// emptyRecord counts a blank entry of Records as a row and rejects it.
func (p *csvParser) emptyRecord() error {
	p.row++
	return p.malformed(errors.New("record is empty"))
}

func (p *csvParser) malformed(err error) error {
	return &domain.ParsingError{Code: domain.CodeMalformedRow, Source: p.source, Row: p.row, Err: err}
}

func (p *csvParser) readError(err error) error {
	return &domain.ParsingError{Code: domain.CodeSourceReadError, Source: p.source, Row: p.row, Err: err}
}

// readLine returns the next line without its terminator, or io.EOF when the input is
// exhausted.
func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if errors.Is(err, io.EOF) && line == "" {
		return "", io.EOF
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}
