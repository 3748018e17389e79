package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/internal/presentation/tui"
	"github.com/aretw0/arbor/pkg/adapters/loam"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/plan"
)

// SignalContext wraps a context and captures the signal that cancelled it.
type SignalContext struct {
	context.Context
	Cancel func()
	start  sync.Once
	stop   sync.Once
	sigCh  chan os.Signal
	sigVal os.Signal
	mu     sync.Mutex
}

// NewSignalContext creates a context that is cancelled on SIGINT or SIGTERM.
// It acts as a drop-in replacement for signal.NotifyContext but allows retrieving the signal.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	sc := &SignalContext{
		Context: ctx,
		Cancel:  cancel,
		sigCh:   make(chan os.Signal, 1),
	}

	sc.start.Do(func() {
		signal.Notify(sc.sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			select {
			case sig := <-sc.sigCh:
				sc.mu.Lock()
				sc.sigVal = sig
				sc.mu.Unlock()
				sc.Cancel()
			case <-sc.Context.Done():
			}
			sc.stop.Do(func() {
				signal.Stop(sc.sigCh)
			})
		}()
	})

	return sc
}

// Signal returns the signal that caused the context to be cancelled, or nil.
func (sc *SignalContext) Signal() os.Signal {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.sigVal
}

// CreateLogger configures the application logger. It writes to Stderr to keep Stdout
// for reports.
func CreateLogger(level string) (*slog.Logger, error) {
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return logging.New(lvl), nil
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}

// PlanLoader picks the loader for path: a loam plan directory or a YAML/JSON plan file.
func PlanLoader(path string) (plan.Loader, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", path, err)
	}
	if !info.IsDir() {
		return plan.NewFileLoader(path), nil
	}
	return plan.LoaderFunc(func(ctx context.Context) (*plan.Plan, error) {
		l, err := loam.Open(path)
		if err != nil {
			return nil, err
		}
		return l.Load(ctx)
	}), nil
}

// ResolvePlanPath defaults to the project directory itself when no argument is given.
func ResolvePlanPath(dir string, args []string) string {
	if len(args) == 0 {
		return dir
	}
	if filepath.IsAbs(args[0]) {
		return args[0]
	}
	if _, err := os.Stat(args[0]); err == nil {
		return args[0]
	}
	return filepath.Join(dir, args[0])
}

// Output formats.
const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// WriteReport prints report in the requested format.
func WriteReport(w io.Writer, report *domain.Report, format string) error {
	switch format {
	case FormatText, "":
		return tui.NewRenderer(w).Report(report)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case FormatMarkdown:
		md := tui.Markdown(report)
		if !tui.IsTerminal(w) {
			_, err := io.WriteString(w, md)
			return err
		}
		render, err := tui.NewMarkdownRenderer()
		if err != nil {
			return err
		}
		out, err := render(md)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, out)
		return err
	default:
		return fmt.Errorf("unknown format %q (want text, json or markdown)", format)
	}
}
