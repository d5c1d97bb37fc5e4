package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"kiln/internal/api"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Display one run in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *api.Client) error {
				reqCtx, cancel := context.WithTimeout(cmd.Context(), listRequestTimeout)
				defer cancel()

				run, err := client.RunByID(reqCtx, id)
				if err != nil {
					if errors.Is(err, api.ErrNotFound) {
						return fmt.Errorf("run %s not found", id)
					}
					return err
				}
				if jsonOutput {
					return printJSON(cmd.OutOrStdout(), run)
				}
				printRunDetail(cmd.OutOrStdout(), run)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of text")
	return cmd
}

func printRunDetail(out io.Writer, run api.Run) {
	fmt.Fprintf(out, "Run:      %s\n", run.ID)
	fmt.Fprintf(out, "Status:   %s\n", formatStatusLabel(run.Status))
	if run.PromptID != "" {
		fmt.Fprintf(out, "Prompt:   %s\n", run.PromptID)
	}
	if run.ClientID != "" {
		fmt.Fprintf(out, "Client:   %s\n", run.ClientID)
	}
	fmt.Fprintf(out, "Created:  %s\n", formatDisplayTime(run.CreatedAt))
	if run.StartedAt != "" {
		fmt.Fprintf(out, "Started:  %s\n", formatDisplayTime(run.StartedAt))
	}
	if run.FinishedAt != "" {
		fmt.Fprintf(out, "Finished: %s\n", formatDisplayTime(run.FinishedAt))
	}
	if run.DurationSeconds > 0 {
		fmt.Fprintf(out, "Duration: %s\n", formatRunDuration(run.DurationSeconds))
	}
	if run.StorageMode != "" {
		fmt.Fprintf(out, "Storage:  %s\n", run.StorageMode)
	}
	fmt.Fprintf(out, "Images:   %d\n", run.ArtifactCount)
	for _, path := range run.ArtifactPaths {
		fmt.Fprintf(out, "  %s\n", path)
	}
	for _, warning := range run.Warnings {
		fmt.Fprintf(out, "Warning:  %s\n", warning)
	}
	if run.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:    %s (%s)\n", run.ErrorMessage, valueOrDash(run.FailureKind))
	}
}
