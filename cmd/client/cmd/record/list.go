// cmd/client/cmd/record/list.go
package record

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"fieldsync/cmd/client/cmd/types"
	"fieldsync/cmd/client/cmd/ui"
	"fieldsync/internal/domain/record"
)

var (
	listKind    string
	listPending bool
	listFormat  string
)

var ListCmd = &cobra.Command{
	Use:   "list",
	Short: "Список записей",
	Long: `Просмотр записей на устройстве с их состоянием синхронизации.

Флаг --pending оставляет только записи, которые еще не приняты сервером.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}

		kinds := record.Kinds()
		if listKind != "" {
			k := record.Kind(listKind)
			if err := k.Validate(); err != nil {
				return err
			}
			kinds = []record.Kind{k}
		}

		var records []record.Record
		for _, k := range kinds {
			recs, err := app.Records(cmd.Context(), k.Resource(), listPending)
			if err != nil {
				return fmt.Errorf("ошибка получения списка записей: %w", err)
			}
			records = append(records, recs...)
		}

		if listFormat == "json" {
			return ui.JSON(records)
		}
		return printRecordsTable(records)
	},
}

func printRecordsTable(records []record.Record) error {
	if len(records) == 0 {
		fmt.Println("Записи не найдены")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLOCAL\tTYPE\tSTATE\tATTEMPTS\tREASON")
	for _, rec := range records {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%d\t%s\n",
			rec.ID(), rec.LocalID, rec.Kind.DisplayName(), ui.State(rec), rec.Meta.SyncAttempts, rec.Meta.SyncReason)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\nНайдено записей: %d\n", len(records))
	return nil
}

func init() {
	ListCmd.Flags().StringVarP(&listKind, "kind", "k", "", "фильтр по типу записи")
	ListCmd.Flags().BoolVar(&listPending, "pending", false, "только неотправленные")
	ListCmd.Flags().StringVar(&listFormat, "format", "table", "формат вывода: table, json")
}
