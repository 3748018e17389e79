package params

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/aretw0/arbor/pkg/domain"
)

// Pattern tokens.
const (
	TokenIndex              = "{index}"
	TokenDisplayName        = "{displayName}"
	TokenDefaultDisplayName = "{default_display_name}"
	TokenArguments          = "{arguments}"
	TokenDescription        = "{arguments.description}"
)

// DefaultPattern is used when neither the template nor the configuration sets one.
const DefaultPattern = "[" + TokenIndex + "] " + TokenArguments

// DefaultMaxLength bounds each rendered argument.
const DefaultMaxLength = 512

const ellipsis = "…"

type segmentKind int

const (
	segLiteral segmentKind = iota
	segIndex
	segDisplayName
	segArguments
	segDescription
	segPositional
)

type segment struct {
	kind     segmentKind
	text     string // Literal text, or the raw token of a positional
	position int
}

// Formatter renders invocation display names from a compiled pattern.
type Formatter struct {
	pattern   string
	segments  []segment
	maxLength int
}

// NewFormatter compiles pattern. An empty pattern means {default_display_name}, which
// expands to defaultPattern. A maxLength below 1 means DefaultMaxLength.
func NewFormatter(pattern, defaultPattern string, maxLength int) (*Formatter, error) {
	if strings.TrimSpace(pattern) == "" {
		pattern = TokenDefaultDisplayName
	}
	if defaultPattern == "" {
		defaultPattern = DefaultPattern
	}
	if maxLength < 1 {
		maxLength = DefaultMaxLength
	}

	expanded := strings.ReplaceAll(pattern, TokenDefaultDisplayName, defaultPattern)
	segments, err := parsePattern(expanded)
	if err != nil {
		return nil, &domain.ConfigurationError{
			Code:    domain.CodeInvalidPattern,
			Subject: fmt.Sprintf("display name pattern %q", pattern),
			Err:     err,
		}
	}
	return &Formatter{pattern: pattern, segments: segments, maxLength: maxLength}, nil
}

// Pattern returns the pattern as configured.
func (f *Formatter) Pattern() string { return f.pattern }

// Format renders the display name of invocation index.
func (f *Formatter) Format(index int, displayName string, args domain.ArgumentSet) string {
	var b strings.Builder
	for _, seg := range f.segments {
		switch seg.kind {
		case segLiteral:
			b.WriteString(seg.text)
		case segIndex:
			b.WriteString(strconv.Itoa(index))
		case segDisplayName:
			b.WriteString(displayName)
		case segDescription:
			b.WriteString(args.Name)
		case segArguments:
			for i, v := range args.Values {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString(f.render(v))
			}
		case segPositional:
			if seg.position < len(args.Values) {
				b.WriteString(f.render(args.Values[seg.position]))
			} else {
				b.WriteString(seg.text)
			}
		}
	}
	return b.String()
}

func (f *Formatter) render(v any) string {
	return truncate(stringify(v), f.maxLength)
}

// stringify renders a value for humans; nil is "null" and slices are bracketed.
func stringify(v any) string {
	if v == nil {
		return "null"
	}
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case error:
		return t.Error()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return "null"
		}
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = stringify(rv.Index(i).Interface())
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case reflect.Pointer, reflect.Map:
		if rv.IsNil() {
			return "null"
		}
	}
	return fmt.Sprint(v)
}

func truncate(s string, maxLength int) string {
	if utf8.RuneCountInString(s) <= maxLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLength-1]) + ellipsis
}

// parsePattern splits a pattern into literal text and tokens. Single quotes delimit
// literal text, and two single quotes stand for one.
func parsePattern(pattern string) ([]segment, error) {
	var (
		segments []segment
		lit      strings.Builder
		inQuote  bool
	)
	flush := func() {
		if lit.Len() > 0 {
			segments = append(segments, segment{kind: segLiteral, text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case c == '\'':
			if i+1 < len(pattern) && pattern[i+1] == '\'' {
				lit.WriteByte('\'')
				i++
				continue
			}
			inQuote = !inQuote
		case inQuote:
			lit.WriteByte(c)
		case c == '{':
			end := strings.IndexByte(pattern[i:], '}')
			if end < 0 {
				return nil, fmt.Errorf("unmatched '{' at offset %d", i)
			}
			raw := pattern[i : i+end+1]
			seg, err := parseToken(raw)
			if err != nil {
				return nil, err
			}
			flush()
			segments = append(segments, seg)
			i += end
		case c == '}':
			return nil, fmt.Errorf("unmatched '}' at offset %d", i)
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return segments, nil
}

func parseToken(raw string) (segment, error) {
	switch raw {
	case TokenIndex:
		return segment{kind: segIndex}, nil
	case TokenDisplayName:
		return segment{kind: segDisplayName}, nil
	case TokenArguments:
		return segment{kind: segArguments}, nil
	case TokenDescription:
		return segment{kind: segDescription}, nil
	}

	inner := strings.TrimSpace(raw[1 : len(raw)-1])
	if strings.ContainsRune(inner, '{') {
		return segment{}, fmt.Errorf("nested '{' in %s", raw)
	}
	n, err := strconv.Atoi(inner)
	if err != nil || n < 0 {
		return segment{}, fmt.Errorf("unknown token %s", raw)
	}
	return segment{kind: segPositional, text: raw, position: n}, nil
}
