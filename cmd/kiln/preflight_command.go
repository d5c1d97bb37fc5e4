package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kiln/internal/preflight"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Run local readiness checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}

			results := preflight.RunAll(cmd.Context(), cfg)
			deps := preflight.CheckSystemDeps(cfg)

			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"checks":       results,
					"dependencies": deps,
				})
			}

			rows := make([][]string, 0, len(results)+len(deps))
			failed := 0
			for _, result := range results {
				state := "OK"
				if !result.Passed {
					state = "FAIL"
					failed++
				}
				rows = append(rows, []string{result.Name, state, result.Detail})
			}
			for _, status := range deps {
				state := "OK"
				switch {
				case status.Available:
				case status.Optional:
					state = "WARN"
				default:
					state = "FAIL"
					failed++
				}
				rows = append(rows, []string{status.Name, state, status.Detail})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Check", "Result", "Detail"}, rows))
			if failed > 0 {
				return fmt.Errorf("%d preflight check(s) failed", failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of a table")
	return cmd
}
