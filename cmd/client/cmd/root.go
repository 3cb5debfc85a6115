// cmd/client/cmd/root.go
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/exp/slog"

	"fieldsync/cmd/client/cmd/types"
	"fieldsync/internal/app/client"
	"fieldsync/internal/app/client/config"
	"fieldsync/internal/utils/logger"
)

var (
	engineFile string
	cfg        *config.Config
	log        *slog.Logger
	app        *client.App
	debug      bool
	serverURL  string
)

var rootCmd = &cobra.Command{
	Use:   "fieldsync",
	Short: "fieldsync - офлайн-клиент сбора полевых данных",
	Long: `fieldsync сохраняет анкеты, мониторинг, регистрации и публикации локально
и отправляет их на сервер, как только появляется сеть.

Записи, которые не удалось отправить, повторно отправляются фоновым
синхронизатором или командой "fieldsync sync".`,
	PersistentPreRunE:  setupApp,
	PersistentPostRunE: closeApp,
	SilenceUsage:       true,
	SilenceErrors:      true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		os.Exit(1)
	}
}

func setupApp(cmd *cobra.Command, _ []string) error {
	if engineFile != "" {
		viper.Set("CONFIG_FILE", engineFile)
	}

	var err error
	cfg, err = config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	// Переопределяем настройки из флагов командной строки
	if serverURL != "" {
		cfg.ServerAddress = serverURL
	}
	env := cfg.Env
	if debug {
		env = logger.EnvLocal
	}
	log = logger.New(env)

	app, err = client.New(cfg, log)
	if err != nil {
		return fmt.Errorf("ошибка инициализации приложения: %w", err)
	}

	cmd.SetContext(context.WithValue(cmd.Context(), types.ClientAppKey, app))
	return nil
}

func closeApp(_ *cobra.Command, _ []string) error {
	if app == nil {
		return nil
	}
	return app.Close()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&engineFile, "config", "", "YAML-файл с ресурсами, естественными ключами и политикой повторов")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "включить отладочный режим")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "адрес сервера сбора данных")
}
