package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/modlink/registry-engine/internal/config"
	"github.com/modlink/registry-engine/internal/db"
	"github.com/modlink/registry-engine/internal/telemetry"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate <up|down>",
		Short:     "Apply or roll back database migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)
			return runMigrations(cmd, cfg, args[0])
		},
	}
}

func runMigrations(cmd *cobra.Command, cfg *config.Config, direction string) error {
	database, err := connectDB(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	slog.Info("running migrations", "direction", direction)
	if err := db.RunMigrations(database.DB, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	v, dirty, err := db.GetMigrationVersion(database.DB)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Migration completed successfully. Current version: %d (dirty: %v)\n", v, dirty)
	return nil
}
