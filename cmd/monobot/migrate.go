package main

import (
	"errors"
	"fmt"

	"github.com/boddenberg/monoreport-bot-go/internal/config"
	"github.com/boddenberg/monoreport-bot-go/internal/infra/sqlite"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending SQLite schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.StoreBackend != config.BackendSQLite {
			return errors.New("migrate only applies to the sqlite backend; Supabase schemas are managed in the project")
		}

		db, err := sqlite.Open(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer db.Close()

		schemaVersion, err := sqlite.Migrate(db)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s at schema version %d\n", cfg.DatabasePath, schemaVersion)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
