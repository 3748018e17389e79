package main

import (
	"fmt"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/cli"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [plan]",
	Short: "Check a plan without running it",
	Long: `Checks the plan schema, the node tree, the extension declarations, the display name
patterns and the argument source options. Nothing is executed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject(cmd)
		if err != nil {
			return err
		}
		settings, err := cli.LoadSettings(p.Config, p.Dir)
		if err != nil {
			return err
		}
		loader, err := cli.PlanLoader(cli.ResolvePlanPath(p.Dir, args))
		if err != nil {
			return err
		}
		pl, err := loader.Load(cmd.Context())
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}

		eng := arbor.New(arbor.WithConfiguration(settings.ConfigurationParameters()))
		if err := eng.Check(pl); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Plan %s is valid! ✅\n", pl.Name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
