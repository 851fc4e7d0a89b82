package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pointstack/pointstack/db"
	"github.com/pointstack/pointstack/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Apply the embedded schema migrations to the configured PostgreSQL
database. The serve command also migrates on startup; this command exists for
running migrations separately, e.g. in a deploy pipeline.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	fmt.Println("migrations applied")
	return nil
}
