package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"kiln/internal/api"
)

const listRequestTimeout = 10 * time.Second

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				reqCtx, cancel := context.WithTimeout(cmd.Context(), listRequestTimeout)
				defer cancel()

				runs, err := client.Runs(reqCtx, limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(cmd.OutOrStdout(), api.RunListResponse{Runs: runs})
				}

				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}
				headers := []string{"Run", "Status", "Images", "Mode", "Created", "Duration"}
				fmt.Fprintln(out, renderTable(headers, buildRunListRows(runs), 3, 6))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of a table")
	return cmd
}
