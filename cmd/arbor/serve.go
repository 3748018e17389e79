package main

import (
	"github.com/aretw0/arbor/internal/cli"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve [plan]",
	Short: "Start the HTTP server",
	Long: `Serves the plan over HTTP: POST /runs executes it, /reports exposes persisted reports,
/events streams run events and /metrics exposes Prometheus metrics.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject(cmd)
		if err != nil {
			return err
		}
		port, _ := cmd.Flags().GetString("port")

		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		return cli.Serve(sigCtx, cli.ServeOptions{
			Dir:        p.Dir,
			PlanPath:   cli.ResolvePlanPath(p.Dir, args),
			ConfigPath: p.Config,
			Addr:       ":" + port,
			Logger:     p.Logger,
			Out:        cmd.OutOrStdout(),
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("port", "p", "8080", "Port to listen on")
}
