package main

import (
	"github.com/aretw0/arbor/internal/cli"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [plan]",
	Short: "Run a plan file or plan directory",
	Long: `Runs the plan and prints its report. The plan defaults to the project directory itself.
The exit code is 1 when any test or invocation failed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject(cmd)
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		save, _ := cmd.Flags().GetBool("save")
		parallel, _ := cmd.Flags().GetInt("parallel")
		watch, _ := cmd.Flags().GetBool("watch")

		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		return cli.Execute(sigCtx, cli.RunOptions{
			Dir:        p.Dir,
			PlanPath:   cli.ResolvePlanPath(p.Dir, args),
			ConfigPath: p.Config,
			Format:     format,
			Save:       save,
			Parallel:   parallel,
			Watch:      watch,
			Logger:     p.Logger,
			Out:        cmd.OutOrStdout(),
		})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("format", "f", cli.FormatText, "Report format: text, json or markdown")
	runCmd.Flags().Bool("save", false, "Persist the report in the configured backend")
	runCmd.Flags().IntP("parallel", "p", 0, "Run container children with up to N goroutines (default from settings)")
	runCmd.Flags().BoolP("watch", "w", false, "Re-run a plan directory whenever it changes")
}
