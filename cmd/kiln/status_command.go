package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"kiln/internal/api"
	"kiln/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show worker and engine status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			reqCtx, cancel := context.WithTimeout(cmd.Context(), listRequestTimeout)
			defer cancel()

			var health *api.HealthStatus
			var stats *api.WorkerStats
			remoteErr := func() error {
				client, err := ctx.dialClient()
				if err != nil {
					return err
				}
				h, err := client.Health(reqCtx)
				if err != nil {
					bind, _ := ctx.apiBind()
					return wrapConnectError(err, bind)
				}
				health = &h
				if s, err := client.Stats(reqCtx); err == nil {
					stats = &s
				}
				return nil
			}()

			deps := preflight.CheckSystemDeps(cfg)

			if jsonOutput {
				payload := map[string]any{"reachable": remoteErr == nil}
				if remoteErr != nil {
					payload["error"] = remoteErr.Error()
				}
				if health != nil {
					payload["health"] = health
				}
				if stats != nil {
					payload["stats"] = stats
				}
				payload["dependencies"] = deps
				return printJSON(cmd.OutOrStdout(), payload)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			fmt.Fprintln(out, renderSectionHeader("Worker", colorize))
			if remoteErr != nil {
				fmt.Fprintln(out, renderStatusLine("Daemon", statusError, remoteErr.Error(), colorize))
			} else {
				fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, "reachable", colorize))
				fmt.Fprintln(out, engineStatusLine(health, colorize))
				if health.Models != nil {
					fmt.Fprintln(out, modelsStatusLine(health.Models, colorize))
				}
				if stats != nil {
					uptime := time.Duration(stats.UptimeSeconds) * time.Second
					fmt.Fprintln(out, renderStatusLine("Uptime", statusInfo, uptime.String(), colorize))
					fmt.Fprintln(out, renderStatusLine("Storage", statusInfo, stats.StorageMode, colorize))
					fmt.Fprintln(out, renderStatusLine("Workspace disk", statusInfo, formatGiB(stats.WorkspaceFreeBytes), colorize))
					fmt.Fprintln(out, renderStatusLine("Volume disk", statusInfo, formatGiB(stats.VolumeFreeBytes), colorize))
				}
			}

			for _, status := range deps {
				kind := statusOK
				detail := status.Detail
				if !status.Available {
					kind = statusWarn
					if status.Optional {
						kind = statusInfo
					}
				}
				fmt.Fprintln(out, renderStatusLine(status.Name, kind, detail, colorize))
			}

			if stats != nil && len(stats.RunCounts) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderSectionHeader("Runs", colorize))
				rows := buildRunCountRows(stats.RunCounts)
				fmt.Fprintln(out, renderTable([]string{"Status", "Count"}, rows, 2))
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of text")
	return cmd
}

func engineStatusLine(health *api.HealthStatus, colorize bool) string {
	kind := statusInfo
	detail := formatStatusLabel(health.EngineState)
	switch health.EngineState {
	case "running":
		kind = statusOK
	case "crashed":
		kind = statusError
	case "not_started":
		detail = "Not started (launches on the first render)"
	}
	if health.EngineReady {
		kind = statusOK
		detail = "Ready"
	}
	return renderStatusLine("Engine", kind, detail, colorize)
}

func modelsStatusLine(models *api.ModelsSummary, colorize bool) string {
	switch models.Outcome {
	case "linked", "skipped":
		detail := fmt.Sprintf("%d models (%s)", models.TotalModels, valueOrDash(models.Source))
		return renderStatusLine("Models", statusOK, detail, colorize)
	default:
		return renderStatusLine("Models", statusWarn, valueOrDash(models.Reason), colorize)
	}
}
