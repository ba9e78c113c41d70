package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"creditdocs-backend/internal/shared/storage/db"
)

func migrateCmd() *cobra.Command {
	var statusOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sqlDB, err := db.Connect(cmd.Context(), cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultMigrateOptions()))
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer sqlDB.Close()

			var version int64
			if statusOnly {
				version, err = db.SchemaVersion(cmd.Context(), sqlDB)
			} else {
				version, err = db.RunMigrations(cmd.Context(), sqlDB)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"version": version, "applied": !statusOnly})
		},
	}
	cmd.Flags().BoolVar(&statusOnly, "status", false, "report the schema version without migrating")
	return cmd
}
