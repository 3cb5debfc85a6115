package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/exp/slog"

	"fieldsync/internal/app/server/config"
	"fieldsync/internal/utils/logger"
)

var (
	cfg *config.Config
	log *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:               "fieldsync-server",
	Short:             "fieldsync-server - сервер приема полевых данных",
	PersistentPreRunE: setup,
	RunE:              runServe,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		os.Exit(1)
	}
}

func setup(_ *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}
	log = logger.New(cfg.Env)
	return nil
}
