package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/aretw0/arbor/internal/cli"
	"github.com/aretw0/arbor/pkg/history"
	"github.com/spf13/cobra"
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Manage persisted run reports",
	Long:  `List, inspect, remove and prune the reports saved by 'arbor run --save' or 'arbor serve'.`,
}

var reportsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List saved reports, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(cmd, func(m *history.Manager) error {
			entries, err := m.Entries(cmd.Context())
			if err != nil {
				return fmt.Errorf("error listing reports: %w", err)
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No reports found.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tPLAN\tSTARTED\tRESULT\tPASSED\tFAILED")
			for _, e := range entries {
				result := "passed"
				if !e.Passed {
					result = "failed"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
					e.ID, e.Plan, e.StartedAt.Format(time.DateTime), result, e.Summary.Successful, e.Summary.Failed)
			}
			return w.Flush()
		})
	},
}

var reportsInspectCmd = &cobra.Command{
	Use:   "inspect <run-id>",
	Short: "Print a saved report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		return withHistory(cmd, func(m *history.Manager) error {
			report, err := m.Load(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("error loading report '%s': %w", args[0], err)
			}
			return cli.WriteReport(cmd.OutOrStdout(), report, format)
		})
	},
}

var reportsRmCmd = &cobra.Command{
	Use:   "rm <run-id>...",
	Short: "Remove one or more reports",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(cmd, func(m *history.Manager) error {
			failed := 0
			for _, id := range args {
				if err := m.Delete(cmd.Context(), id); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Error removing '%s': %v\n", id, err)
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed report '%s'\n", id)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d reports could not be removed", failed, len(args))
			}
			return nil
		})
	},
}

var reportsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove all but the most recent reports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		keep, _ := cmd.Flags().GetInt("keep")
		return withHistory(cmd, func(m *history.Manager) error {
			removed, err := m.Prune(cmd.Context(), keep)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d reports\n", len(removed))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(reportsCmd)
	reportsCmd.AddCommand(reportsLsCmd, reportsInspectCmd, reportsRmCmd, reportsPruneCmd)

	reportsInspectCmd.Flags().StringP("format", "f", cli.FormatText, "Report format: text, json or markdown")
	reportsPruneCmd.Flags().Int("keep", 10, "Number of reports to keep")
}

func withHistory(cmd *cobra.Command, fn func(*history.Manager) error) error {
	p, err := loadProject(cmd)
	if err != nil {
		return err
	}
	settings, err := cli.LoadSettings(p.Config, p.Dir)
	if err != nil {
		return err
	}
	backend, err := cli.OpenBackend(settings, p.Dir)
	if err != nil {
		return err
	}
	defer backend.Close()

	m := backend.History(settings, p.Logger)
	if m == nil {
		return fmt.Errorf("reports backend is %q: nothing is persisted", backend.Name)
	}
	return fn(m)
}
