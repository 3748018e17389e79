package main

import (
	"fmt"

	"github.com/aretw0/arbor/internal/cli"
	"github.com/aretw0/arbor/internal/presentation/graph"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/history"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph [plan]",
	Short: "Export the plan tree visualization",
	Long: `Loads the plan and outputs a Mermaid diagram (graph TD) of its node tree.
With --report, nodes are coloured by the outcome recorded in a saved report.
Pass "latest" to use the most recent report of the plan.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject(cmd)
		if err != nil {
			return err
		}
		loader, err := cli.PlanLoader(cli.ResolvePlanPath(p.Dir, args))
		if err != nil {
			return err
		}
		pl, err := loader.Load(cmd.Context())
		if err != nil {
			return fmt.Errorf("error loading plan: %w", err)
		}

		var report *domain.Report
		if runID, _ := cmd.Flags().GetString("report"); runID != "" {
			err := withHistory(cmd, func(m *history.Manager) error {
				var err error
				if runID == "latest" {
					report, err = m.Latest(cmd.Context(), pl.Name)
				} else {
					report, err = m.Load(cmd.Context(), runID)
				}
				return err
			})
			if err != nil {
				return fmt.Errorf("error loading report '%s': %w", runID, err)
			}
		}

		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(pl.Root, report))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("report", "", "Colour nodes by a saved report (run ID or \"latest\")")
}
