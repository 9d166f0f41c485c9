package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gatherly/server/internal/config"
	"github.com/gatherly/server/internal/storage/postgres"
)

var (
	migrationsPath string
	downSteps      int
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}
		logger := config.NewLogger(cfg.Logging)
		if err := postgres.MigrateUp(cfg.Database.URL, migrationsPath); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
		logger.Info().Msg("migrations applied")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}
		logger := config.NewLogger(cfg.Logging)
		if err := postgres.MigrateDown(cfg.Database.URL, migrationsPath, downSteps); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
		logger.Info().Int("steps", downSteps).Msg("migrations rolled back")
		return nil
	},
}

func init() {
	migrateCmd.PersistentFlags().StringVar(&migrationsPath, "path", "", "migrations directory (default: "+postgres.DefaultMigrationsPath+")")
	migrateDownCmd.Flags().IntVar(&downSteps, "steps", 1, "number of migrations to roll back")

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
}
