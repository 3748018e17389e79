package tui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Renderer prints run reports. Colours are only used when the output is a terminal.
type Renderer struct {
	out     io.Writer
	profile termenv.Profile
}

// NewRenderer creates a renderer writing to w.
func NewRenderer(w io.Writer) *Renderer {
	profile := termenv.Ascii
	if IsTerminal(w) {
		profile = termenv.ColorProfile()
	}
	return &Renderer{out: w, profile: profile}
}

// NewPlainRenderer creates a renderer that never emits escape sequences.
func NewPlainRenderer(w io.Writer) *Renderer {
	return &Renderer{out: w, profile: termenv.Ascii}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Report prints the result tree followed by the summary line.
func (r *Renderer) Report(report *domain.Report) error {
	var b strings.Builder
	if report.Root != nil {
		r.tree(&b, report.Root, 0)
	}
	b.WriteString("\n")
	b.WriteString(r.summary(report))
	b.WriteString("\n")
	_, err := io.WriteString(r.out, b.String())
	return err
}

func (r *Renderer) tree(b *strings.Builder, res *domain.Result, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(b, "%s%s %s%s\n", indent, r.icon(res.Status), res.DisplayName, r.detail(res))

	if res.Error != "" {
		fmt.Fprintf(b, "%s    %s\n", indent, r.faint(res.Error))
	}
	for _, inv := range res.Invocations {
		fmt.Fprintf(b, "%s  %s %s %s\n", indent, r.icon(inv.Status), inv.DisplayName, r.faint(duration(inv.Duration)))
		if inv.Error != "" {
			fmt.Fprintf(b, "%s      %s\n", indent, r.faint(inv.Error))
		}
	}
	for _, c := range res.Children {
		r.tree(b, c, depth+1)
	}
}

func (r *Renderer) detail(res *domain.Result) string {
	if res.Status == domain.StateSkipped {
		return " " + r.faint("("+res.Reason+")")
	}
	if res.Kind == domain.KindTest {
		return " " + r.faint(duration(res.Duration))
	}
	return ""
}

func (r *Renderer) summary(report *domain.Report) string {
	s := report.Summary()
	parts := []string{
		r.color(fmt.Sprintf("%d passed", s.Successful), "#22c55e"),
		r.color(fmt.Sprintf("%d failed", s.Failed), "#ef4444"),
	}
	if s.Aborted > 0 {
		parts = append(parts, r.color(fmt.Sprintf("%d aborted", s.Aborted), "#f59e0b"))
	}
	if s.Skipped > 0 {
		parts = append(parts, r.faint(fmt.Sprintf("%d skipped", s.Skipped)))
	}
	took := report.FinishedAt.Sub(report.StartedAt)
	return fmt.Sprintf("%s (%d total, %s)", strings.Join(parts, ", "), s.Total, duration(took))
}

func (r *Renderer) icon(status domain.NodeState) string {
	switch status {
	case domain.StateSuccessful:
		return r.color("✔", "#22c55e")
	case domain.StateFailed:
		return r.color("✘", "#ef4444")
	case domain.StateAborted:
		return r.color("!", "#f59e0b")
	case domain.StateSkipped:
		return r.faint("-")
	default:
		return "?"
	}
}

func (r *Renderer) color(s, hex string) string {
	if r.profile == termenv.Ascii {
		return s
	}
	return termenv.String(s).Foreground(r.profile.Color(hex)).String()
}

func (r *Renderer) faint(s string) string {
	if r.profile == termenv.Ascii {
		return s
	}
	return termenv.String(s).Faint().String()
}

func duration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}

// Markdown renders the report as a markdown document.
func Markdown(report *domain.Report) string {
	var b strings.Builder
	title := report.Plan
	if title == "" {
		title = "Run"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "Run `%s` started %s.\n\n", report.RunID, report.StartedAt.Format(time.RFC3339))

	s := report.Summary()
	b.WriteString("| Total | Passed | Failed | Aborted | Skipped |\n")
	b.WriteString("|---|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %d |\n\n", s.Total, s.Successful, s.Failed, s.Aborted, s.Skipped)

	b.WriteString("| Node | Kind | Status | Detail |\n")
	b.WriteString("|---|---|---|---|\n")
	if report.Root != nil {
		markdownRows(&b, report.Root, 0)
	}
	return b.String()
}

func markdownRows(b *strings.Builder, res *domain.Result, depth int) {
	name := strings.Repeat("&nbsp;&nbsp;", depth) + cell(res.DisplayName)
	fmt.Fprintf(b, "| %s | %s | %s | %s |\n", name, res.Kind, res.Status, cell(firstOf(res.Error, res.Reason)))
	for _, inv := range res.Invocations {
		name := strings.Repeat("&nbsp;&nbsp;", depth+1) + cell(inv.DisplayName)
		fmt.Fprintf(b, "| %s | invocation | %s | %s |\n", name, inv.Status, cell(inv.Error))
	}
	for _, c := range res.Children {
		markdownRows(b, c, depth+1)
	}
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// NewMarkdownRenderer returns a function that renders markdown using glamour.
// It picks a light or dark style from the terminal background.
func NewMarkdownRenderer() (func(string) (string, error), error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return nil, err
	}
	return r.Render, nil
}
