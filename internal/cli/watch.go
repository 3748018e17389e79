package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/presentation/tui"
	"github.com/aretw0/arbor/pkg/adapters/loam"
)

// settleDelay lets editors finish writing before the plan is reloaded.
const settleDelay = 100 * time.Millisecond

// RunWatch runs a plan directory, then runs it again whenever one of its documents
// changes, until ctx is cancelled. Failed runs and broken plans are reported and the
// watcher keeps going.
func RunWatch(ctx context.Context, opts RunOptions) error {
	info, err := os.Stat(opts.PlanPath)
	if err != nil {
		return fmt.Errorf("plan %s: %w", opts.PlanPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("--watch requires a plan directory, got file %s", opts.PlanPath)
	}

	settings, err := LoadSettings(opts.ConfigPath, opts.Dir)
	if err != nil {
		return err
	}
	loader, err := loam.Open(opts.PlanPath)
	if err != nil {
		return err
	}
	events, err := loader.Watch(ctx)
	if err != nil {
		return err
	}

	engine := createEngine(EngineOptions{Settings: settings, Logger: opts.Logger, Parallel: opts.Parallel, Dir: opts.Dir})
	tui.Banner(opts.Out, arbor.Version)
	opts.Logger.Info("Starting Watcher", "path", opts.PlanPath)

	for {
		report, err := engine.RunLoader(ctx, loader)
		switch {
		case err != nil:
			opts.Logger.Error("Run failed", "err", err)
			printSystemMessage(opts.Out, "Plan is broken: %v", err)
		default:
			if err := WriteReport(opts.Out, report, opts.Format); err != nil {
				return err
			}
		}
		printSystemMessage(opts.Out, "Waiting for changes...")

		select {
		case <-ctx.Done():
			opts.Logger.Info("Stopping watcher")
			return nil
		case id, ok := <-events:
			if !ok {
				return nil
			}
			printSystemMessage(opts.Out, "Change detected in '%s'.", id)
			drain(ctx, events)
		}
	}
}

// drain swallows the burst of events a single save usually produces.
func drain(ctx context.Context, events <-chan string) {
	timer := time.NewTimer(settleDelay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			return
		case _, ok := <-events:
			if !ok {
				return
			}
		}
	}
}
