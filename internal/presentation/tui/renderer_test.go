package tui_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/arbor/internal/presentation/tui"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *domain.Report {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &domain.Report{
		RunID:      "run-1",
		Plan:       "checkout",
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Root: &domain.Result{
			NodeID: "checkout", DisplayName: "checkout", Kind: domain.KindContainer, Status: domain.StateSuccessful,
			Children: []*domain.Result{
				{NodeID: "login", DisplayName: "login", Kind: domain.KindTest, Status: domain.StateSuccessful, Duration: 3 * time.Millisecond},
				{NodeID: "legacy", DisplayName: "legacy", Kind: domain.KindTest, Status: domain.StateSkipped, Reason: "not on windows"},
				{
					NodeID: "totals", DisplayName: "totals", Kind: domain.KindTemplate, Status: domain.StateSuccessful,
					Invocations: []domain.InvocationResult{
						{Index: 1, DisplayName: "[1] 2, 3", Status: domain.StateSuccessful},
						{Index: 2, DisplayName: "[2] a|b", Status: domain.StateFailed, Error: "assertion failed"},
					},
				},
			},
		},
	}
}

func TestRenderer_Report(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, tui.NewRenderer(&buf).Report(sampleReport()))
	out := buf.String()

	assert.NotContains(t, out, "\x1b[", "buffers are not terminals")
	assert.Contains(t, out, "✔ login 3ms")
	assert.Contains(t, out, "- legacy (not on windows)")
	assert.Contains(t, out, "    ✘ [2] a|b 0s")
	assert.Contains(t, out, "assertion failed")
	assert.True(t, strings.HasSuffix(out, "2 passed, 1 failed, 1 skipped (4 total, 1.5s)\n"))
}

func TestMarkdown(t *testing.T) {
	md := tui.Markdown(sampleReport())

	assert.True(t, strings.HasPrefix(md, "# checkout\n"))
	assert.Contains(t, md, "Run `run-1` started 2026-01-02T03:04:05Z.")
	assert.Contains(t, md, "| 4 | 2 | 1 | 0 | 1 |")
	assert.Contains(t, md, `[2] a\|b | invocation | failed | assertion failed |`)
	assert.Contains(t, md, "legacy | test | skipped | not on windows |")
}

func TestBanner_SkipsNonTerminals(t *testing.T) {
	var buf bytes.Buffer
	tui.Banner(&buf, "dev")
	assert.Empty(t, buf.String())
}
