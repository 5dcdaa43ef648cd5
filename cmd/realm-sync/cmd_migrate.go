package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/aileks/realm-sync/internal/store/migrations"
)

func migrateCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations to the SQLite store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Store.Driver != "sqlite" {
				return fmt.Errorf("migrate: store.driver is %q; nothing to migrate", cfg.Store.Driver)
			}
			if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o750); err != nil {
				return fmt.Errorf("migrate: creating store directory: %w", err)
			}
			db, err := sql.Open("sqlite3", cfg.Store.Path)
			if err != nil {
				return fmt.Errorf("migrate: opening database: %w", err)
			}
			defer func() { _ = db.Close() }()

			latest, err := migrations.Latest()
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if check {
				if err := migrations.CheckStatus(db); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				fmt.Printf("Schema is up to date (version %d)\n", latest)
				return nil
			}
			if err := migrations.Up(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Printf("Migrated %s to version %d\n", cfg.Store.Path, latest)
			return nil
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "only report whether the schema is current")
	return cmd
}
