package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// Mask replaces every redacted match.
const Mask = "***"

type redactionMiddleware struct {
	next     ports.ReportStore
	patterns []*regexp.Regexp
}

// NewRedactionMiddleware creates a middleware that masks pattern matches in the display
// names, errors and skip reasons of saved reports. Invocation display names carry the
// rendered arguments, so secrets fed through argument sources are masked there too.
func NewRedactionMiddleware(patterns []string) (Middleware, error) {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		compiled[i] = re
	}
	return func(next ports.ReportStore) ports.ReportStore {
		return &redactionMiddleware{next: next, patterns: compiled}
	}, nil
}

func (m *redactionMiddleware) Save(ctx context.Context, id string, report *domain.Report) error {
	// Copy so the in-memory report handed back to callers keeps its values.
	cloned := *report
	cloned.Root = m.redact(report.Root)
	return m.next.Save(ctx, id, &cloned)
}

func (m *redactionMiddleware) Load(ctx context.Context, id string) (*domain.Report, error) {
	return m.next.Load(ctx, id)
}

func (m *redactionMiddleware) Delete(ctx context.Context, id string) error {
	return m.next.Delete(ctx, id)
}

func (m *redactionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *redactionMiddleware) redact(res *domain.Result) *domain.Result {
	if res == nil {
		return nil
	}
	out := *res
	out.DisplayName = m.mask(res.DisplayName)
	out.Error = m.mask(res.Error)
	out.Reason = m.mask(res.Reason)

	if res.Invocations != nil {
		out.Invocations = make([]domain.InvocationResult, len(res.Invocations))
		for i, inv := range res.Invocations {
			inv.DisplayName = m.mask(inv.DisplayName)
			inv.Error = m.mask(inv.Error)
			out.Invocations[i] = inv
		}
	}
	if res.Children != nil {
		out.Children = make([]*domain.Result, len(res.Children))
		for i, c := range res.Children {
			out.Children[i] = m.redact(c)
		}
	}
	return &out
}

func (m *redactionMiddleware) mask(s string) string {
	for _, p := range m.patterns {
		s = p.ReplaceAllString(s, Mask)
	}
	return s
}
