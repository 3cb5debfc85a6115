package cmd

import (
	"github.com/spf13/cobra"

	"fieldsync/internal/infrastructure/migration"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Применить миграции схемы и выйти",
	RunE: func(_ *cobra.Command, _ []string) error {
		return migration.NewMigration(cfg, nil, log).Up()
	},
}
