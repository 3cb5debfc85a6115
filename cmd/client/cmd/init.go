// cmd/client/cmd/init.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"fieldsync/cmd/client/cmd/auth"
	"fieldsync/cmd/client/cmd/post"
	"fieldsync/cmd/client/cmd/record"
	"fieldsync/cmd/client/cmd/resource"
	"fieldsync/cmd/client/cmd/sync"
	"fieldsync/cmd/client/cmd/types"
	"fieldsync/cmd/client/cmd/ui"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Запустить фоновую синхронизацию",
	Long: `Команда run держит клиент запущенным: следит за сетью, обновляет справочники
при появлении соединения и периодически отправляет неотправленные записи.

Остановка по Ctrl+C.`,
	PersistentPostRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}

		if app.Connect(cmd.Context()) {
			ui.Success("Соединение с сервером установлено")
		} else {
			ui.Warn("Сервер недоступен, работаем офлайн")
		}

		if err := app.Run(); err != nil {
			return fmt.Errorf("ошибка работы клиента: %w", err)
		}
		app.Shutdown()
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Состояние сети и сессии",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}

		if app.Connect(cmd.Context()) {
			ui.Success("Сервер доступен")
		} else {
			ui.Warn("Сервер недоступен")
		}

		if app.IsAuthenticated() {
			ui.Success("Вход выполнен (user_id=%d)", app.Session().UserID)
		} else {
			ui.Warn("Вход не выполнен: fieldsync auth login")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)

	rootCmd.AddCommand(auth.AuthCmd)
	auth.AuthCmd.AddCommand(auth.RegisterCmd)
	auth.AuthCmd.AddCommand(auth.LoginCmd)

	rootCmd.AddCommand(record.RecordCmd)
	record.RecordCmd.AddCommand(record.SubmitCmd)
	record.RecordCmd.AddCommand(record.ListCmd)

	rootCmd.AddCommand(resource.ResourceCmd)
	resource.ResourceCmd.AddCommand(resource.RefreshCmd)
	resource.ResourceCmd.AddCommand(resource.ShowCmd)

	rootCmd.AddCommand(sync.SyncCmd)

	rootCmd.AddCommand(post.PostCmd)
	post.PostCmd.AddCommand(post.LikeCmd)
	post.PostCmd.AddCommand(post.UnlikeCmd)
	post.PostCmd.AddCommand(post.DeleteCmd)
}
