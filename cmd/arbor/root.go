package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/arbor/internal/cli"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "arbor",
	Short: "Arbor runs hierarchical test plans",
	Long: `Arbor executes test plans written as YAML files or as directories of markdown documents.
Conditions, parameter resolvers and CSV argument sources are declared next to the tests they affect.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, cli.ErrRunFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("dir", ".", "Project directory holding arbor.yaml and plans")
	rootCmd.PersistentFlags().String("config", "", "Settings file (default <dir>/arbor.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error (default from settings)")
}

// project collects the persistent flags shared by every command.
type project struct {
	Dir    string
	Config string
	Logger *slog.Logger
}

func loadProject(cmd *cobra.Command) (*project, error) {
	dir, _ := cmd.Flags().GetString("dir")
	cfg, _ := cmd.Flags().GetString("config")
	level, _ := cmd.Flags().GetString("log-level")

	if level == "" {
		settings, err := cli.LoadSettings(cfg, dir)
		if err != nil {
			return nil, err
		}
		level = settings.LogLevel
	}
	logger, err := cli.CreateLogger(level)
	if err != nil {
		return nil, err
	}
	return &project{Dir: dir, Config: cfg, Logger: logger}, nil
}
