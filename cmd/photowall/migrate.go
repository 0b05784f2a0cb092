package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"photowall/internal/catalog"
	"photowall/internal/config"
)

func newMigrateCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect catalog schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := catalog.Options{DatabaseURL: cfg.Storage.DatabaseURL, SQLitePath: cfg.Storage.DBPath}
			if !dryRun {
				cat, err := catalog.Open(commandContext(cmd), opts)
				if err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				if err := cat.Close(); err != nil {
					return err
				}
			}

			plan, err := migrationPlan(opts)
			if err != nil {
				return fmt.Errorf("inspect migrations: %w", err)
			}
			if *jsonOutput {
				return writeJSON(plan)
			}
			return writeMigrationPlan(opts.Engine(), plan, dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show pending migrations without applying")
	return cmd
}

func migrationPlan(opts catalog.Options) (*catalog.MigrationStatus, error) {
	if opts.Engine() == "postgres" {
		return catalog.PostgresMigrationPlan(opts.DatabaseURL)
	}
	db, err := catalog.OpenSQLiteRaw(opts.SQLitePath)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return catalog.MigrationPlan(db)
}

func writeMigrationPlan(engine string, plan *catalog.MigrationStatus, dryRun bool) error {
	if err := writePlain("Engine: %s\nCurrent version: %d\nAvailable version: %d\n", engine, plan.CurrentVersion, plan.AvailableVersion); err != nil {
		return err
	}
	if len(plan.Pending) == 0 {
		if dryRun {
			return writePlain("No pending migrations.\n")
		}
		return writePlain("Migrations applied successfully.\n")
	}
	if err := writePlain("Pending migrations: %d\n", len(plan.Pending)); err != nil {
		return err
	}
	for _, m := range plan.Pending {
		if err := writePlain("  %d: %s\n", m.Version, m.Description); err != nil {
			return err
		}
	}
	return nil
}
