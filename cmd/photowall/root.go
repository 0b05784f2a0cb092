package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"photowall/internal/config"
	"photowall/internal/format"
)

type outputOptions struct {
	json   bool
	format string
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	var (
		logLevel string
		output   outputOptions
	)

	cmd := &cobra.Command{
		Use:           "photowall",
		Short:         "Photowall is a bounded photo wall with live updates",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := configureLoggerForCLI(logLevel, cfg.LogLevel)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), warning)
			}
			if output.format != "" {
				f, err := format.ByName(output.format)
				if err != nil {
					return err
				}
				outputFormatter = f
				output.json = true
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&output.json, "json", false, "output JSON")
	cmd.PersistentFlags().StringVarP(&output.format, "output", "o", "", "structured output format (json, json-pretty, yaml)")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newMigrateCmd(cfg, &output.json),
		newConfigCmd(cfg, &output.json),
		newAdminCmd(cfg, &output.json),
		newUploadCmd(cfg, &output.json),
		newListCmd(cfg, &output.json),
		newShowCmd(cfg, &output.json),
		newDeleteCmd(cfg, &output.json),
		newWatchCmd(cfg, &output.json),
		newStatusCmd(cfg, &output.json),
	)

	return cmd
}
