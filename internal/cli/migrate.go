package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/civicsignal/civicsignal/internal/config"
	"github.com/civicsignal/civicsignal/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations",
	Long: `Apply pending Postgres schema migrations and exit. Stage processes
also run migrations at startup; this command exists for deploy hooks that
migrate before rolling the stages.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cfg.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is not configured")
		}

		if err := storage.Migrate(cfg.Postgres.MigrationsURL, cfg.Postgres.DSN); err != nil {
			return err
		}

		color.New(color.FgGreen, color.Bold).Println("✓ migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
