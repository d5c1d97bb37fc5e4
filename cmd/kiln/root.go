package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var (
		apiFlag    string
		configFlag string
	)
	ctx := newCommandContext(&apiFlag, &configFlag)

	root := &cobra.Command{
		Use:           "kiln",
		Short:         "Render worker CLI",
		Long:          "kiln drives a kilnd render worker: submit jobs, inspect runs, and check engine health.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&apiFlag, "api", "", "Address of the kilnd HTTP API")
	flags.StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	root.AddCommand(
		newRunCommand(ctx),
		newRunsCommand(ctx),
		newShowCommand(ctx),
		newStatusCommand(ctx),
		newPreflightCommand(ctx),
		newConfigCommand(ctx),
	)
	return root
}

// printJSON writes v as indented JSON. HTML escaping is off so presigned
// links print usable as-is.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
