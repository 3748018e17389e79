package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// ErrRunFailed is returned when a run finished with failures.
var ErrRunFailed = errors.New("run failed")

// RunOptions contains all the configuration for the run command.
type RunOptions struct {
	Dir        string
	PlanPath   string
	ConfigPath string
	Format     string
	Save       bool
	Parallel   int
	Watch      bool
	Logger     *slog.Logger
	Out        io.Writer
}

// Execute handles the run command, dispatching to a single run or watch mode.
func Execute(ctx context.Context, opts RunOptions) error {
	if opts.Watch {
		if opts.Format == FormatJSON {
			return fmt.Errorf("--watch and --format json cannot be used together")
		}
		return RunWatch(ctx, opts)
	}
	return RunOnce(ctx, opts)
}

// RunOnce loads the plan, runs it and prints the report. ErrRunFailed is returned when
// anything failed.
func RunOnce(ctx context.Context, opts RunOptions) error {
	settings, err := LoadSettings(opts.ConfigPath, opts.Dir)
	if err != nil {
		return err
	}
	loader, err := PlanLoader(opts.PlanPath)
	if err != nil {
		return err
	}

	engineOpts := EngineOptions{Settings: settings, Logger: opts.Logger, Parallel: opts.Parallel, Dir: opts.Dir}
	if opts.Save {
		backend, err := OpenBackend(settings, opts.Dir)
		if err != nil {
			return err
		}
		defer backend.Close()
		engineOpts.History = backend.History(settings, opts.Logger)
		if engineOpts.History == nil {
			opts.Logger.Warn("--save ignored: reports backend is none")
		}
	}

	report, err := createEngine(engineOpts).RunLoader(ctx, loader)
	if report == nil {
		return err
	}
	if err != nil {
		opts.Logger.Error("report not saved", "run", report.RunID, "err", err)
	}
	if err := WriteReport(opts.Out, report, opts.Format); err != nil {
		return err
	}
	if !report.Passed() {
		return ErrRunFailed
	}
	return nil
}
