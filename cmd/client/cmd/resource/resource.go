package resource

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"fieldsync/cmd/client/cmd/types"
	"fieldsync/cmd/client/cmd/ui"
)

var (
	forceRefresh bool
	showFormat   string
)

// ResourceCmd - справочники, которые клиент держит локально
var ResourceCmd = &cobra.Command{
	Use:   "resource",
	Short: "Справочники",
	Long:  `Обновление и просмотр справочников (проекты, семьи, формы, публикации).`,
}

var RefreshCmd = &cobra.Command{
	Use:   "refresh [key...]",
	Short: "Обновить справочники",
	Long: `Справочник загружается заново, если он устарел или указан флаг --force.
Без аргументов обновляются все справочники.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}

		if !app.Connect(cmd.Context()) {
			ui.Warn("Сервер недоступен, используются сохраненные данные")
			return nil
		}

		results := app.Refresh(cmd.Context(), forceRefresh, args...)
		keys := make([]string, 0, len(results))
		for k := range results {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, key := range keys {
			if err := results[key]; err != nil {
				ui.Fail("%s: %v", key, err)
				continue
			}
			ui.Success("%s", key)
		}
		return nil
	},
}

var ShowCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Показать справочник",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}

		app.Connect(cmd.Context())
		view, err := app.View(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("ошибка получения справочника: %w", err)
		}

		if showFormat == "json" {
			return ui.JSON(view.Records)
		}

		for _, rec := range view.Records {
			fmt.Printf("%d\t%v\n", rec.ID(), rec.Fields)
		}
		fmt.Println()
		if view.Snapshot.Err != nil {
			ui.Warn("Последнее обновление не удалось: %v", view.Snapshot.Err)
		}
		if view.Snapshot.LastSync.IsZero() {
			ui.Dim("Справочник еще не загружался")
		} else {
			ui.Dim("Обновлено: %s", view.Snapshot.LastSync.Local().Format(time.DateTime))
		}
		return nil
	},
}

func init() {
	RefreshCmd.Flags().BoolVar(&forceRefresh, "force", false, "обновить, даже если данные свежие")
	ShowCmd.Flags().StringVar(&showFormat, "format", "table", "формат вывода: table, json")
}
