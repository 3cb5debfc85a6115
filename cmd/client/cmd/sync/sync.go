package sync

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fieldsync/cmd/client/cmd/types"
	"fieldsync/cmd/client/cmd/ui"
	"fieldsync/internal/app/client"
)

var syncStatus bool

var SyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Отправить неотправленные записи",
	Long: `Повторная отправка записей текущего пользователя, которые еще не приняты сервером.

Записи, которые снова не удалось отправить, остаются в очереди с причиной ошибки.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}
		if syncStatus {
			showSyncStatus(app)
			return nil
		}

		fmt.Println("=== Синхронизация данных ===")
		if !app.Connect(cmd.Context()) {
			ui.Warn("Сервер недоступен, записи остаются в очереди")
			return nil
		}

		start := time.Now()
		result, err := app.SyncNow(cmd.Context())
		if err != nil {
			return fmt.Errorf("ошибка синхронизации: %w", err)
		}

		fmt.Println()
		ui.Success("Синхронизация завершена за %v", time.Since(start).Round(time.Millisecond))
		fmt.Printf("Отправлено: %d\n", result.Synced)
		fmt.Printf("Не отправлено: %d\n", result.Failed)
		if result.Skipped > 0 {
			fmt.Printf("Пропущено: %d\n", result.Skipped)
		}
		if result.Failed > 0 {
			fmt.Println("Подробности: fieldsync record list --pending")
		}
		return nil
	},
}

func showSyncStatus(app *client.App) {
	fmt.Println("=== Статус синхронизации ===")

	stats := app.SyncStats()
	fmt.Printf("  Проходов: %d\n", stats.TotalRuns)
	fmt.Printf("  Отправлено всего: %d\n", stats.TotalSynced)
	fmt.Printf("  Ошибок всего: %d\n", stats.TotalFailed)
	if !stats.LastSuccess.IsZero() {
		fmt.Printf("  Последний успешный проход: %s\n", stats.LastSuccess.Local().Format(time.DateTime))
	}
	if stats.LastError != "" {
		ui.Warn("Последняя ошибка: %s", stats.LastError)
	}
}

func init() {
	SyncCmd.Flags().BoolVar(&syncStatus, "status", false, "показать статистику синхронизации")
}
