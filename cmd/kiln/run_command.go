package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"kiln/internal/api"
	"kiln/internal/worker"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "run <job.json>",
		Short: "Submit a render job and wait for the outcome",
		Long: `Submit a render job to kilnd and wait for it to finish.

The argument is a JSON file, or - for stdin, containing either a full job
payload ({"input":{"workflow":{...}}}) or a bare render graph, which is
wrapped automatically.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readJobPayload(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			job, err := decodeJob(payload)
			if err != nil {
				return err
			}

			return ctx.withClient(func(client *api.Client) error {
				outcome, err := client.SubmitRun(cmd.Context(), job)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(cmd.OutOrStdout(), outcome)
				}
				printOutcome(cmd.OutOrStdout(), outcome)
				if outcome.Failed() {
					return fmt.Errorf("run %s failed: %s", outcome.RunID, outcome.Error)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the raw outcome as JSON")
	return cmd
}

func readJobPayload(arg string, stdin io.Reader) ([]byte, error) {
	if arg == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read job from stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return nil, fmt.Errorf("read job file: %w", err)
	}
	return data, nil
}

// decodeJob accepts either a full job payload or a bare render graph. Graph
// node keys are numeric strings, so the presence of "input" or "type" marks
// the envelope form.
func decodeJob(payload []byte) (worker.Job, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(payload, &probe); err != nil {
		return worker.Job{}, fmt.Errorf("parse job JSON: %w", err)
	}

	_, hasInput := probe["input"]
	_, hasType := probe["type"]
	if hasInput || hasType {
		var job worker.Job
		if err := json.Unmarshal(payload, &job); err != nil {
			return worker.Job{}, fmt.Errorf("parse job JSON: %w", err)
		}
		return job, nil
	}
	return worker.Job{Input: worker.JobInput{Workflow: json.RawMessage(payload)}}, nil
}

func printOutcome(out io.Writer, outcome *worker.Outcome) {
	fmt.Fprintf(out, "Run:     %s\n", valueOrDash(outcome.RunID))
	fmt.Fprintf(out, "Status:  %s\n", formatStatusLabel(outcome.Status))
	if outcome.StorageMode != "" {
		fmt.Fprintf(out, "Storage: %s\n", outcome.StorageMode)
	}
	fmt.Fprintf(out, "Images:  %d\n", outcome.Count)
	seen := make(map[string]struct{}, len(outcome.Paths))
	for _, path := range outcome.Paths {
		seen[path] = struct{}{}
		fmt.Fprintf(out, "  %s\n", path)
	}
	// The wire outcome mirrors links and paths for compatibility; only
	// print links that add information.
	for _, link := range outcome.Links {
		if _, dup := seen[link]; dup {
			continue
		}
		fmt.Fprintf(out, "  %s\n", link)
	}
	for _, warning := range outcome.Warnings {
		fmt.Fprintf(out, "Warning: %s\n", warning)
	}
	if outcome.Error != "" {
		fmt.Fprintf(out, "Error:   %s\n", outcome.Error)
	}
}
