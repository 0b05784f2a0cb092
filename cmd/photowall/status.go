package main

import (
	"github.com/spf13/cobra"

	"photowall/internal/config"
)

func newStatusCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			health, err := newClient(cfg, "").Health(commandContext(cmd))
			if err != nil {
				return err
			}
			if *jsonOutput {
				return writeJSON(health)
			}
			return writePlain("status: %s\napi_url: %s\nphotos: %d\nsubscribers: %d\n",
				health.Status, cfg.APIURL, health.Photos, health.Subscribers)
		},
	}
}
