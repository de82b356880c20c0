package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trogers1052/twstock-service/internal/catalog"
	"github.com/trogers1052/twstock-service/internal/database"
)

var migrateSeedCatalog bool

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or roll back the database schema",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down"},
	RunE:      runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateSeedCatalog, "seed-catalog", false, "Write the built-in symbol list into stock_symbols after migrating up")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	db.SetLogger(logger)

	direction := "up"
	if len(args) == 1 {
		direction = args[0]
	}

	path := cfg.Database.MigrationsPath
	if direction == "down" {
		if err := db.MigrateDown(path); err != nil {
			return err
		}
		logger.Info().Str("path", path).Msg("Migrations rolled back")
		return nil
	}
	if err := db.MigrateUp(path); err != nil {
		return err
	}
	if !migrateSeedCatalog {
		return nil
	}

	entries, err := catalog.BackupLoader{}.Load(context.Background())
	if err != nil {
		return err
	}
	if err := db.UpsertCatalog(context.Background(), entries); err != nil {
		return err
	}
	logger.Info().Int("symbols", len(entries)).Msg("Seeded symbol catalog")
	return nil
}
