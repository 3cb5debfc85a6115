package record

import (
	"github.com/spf13/cobra"
)

// RecordCmd - родительская команда для всех операций с записями
var RecordCmd = &cobra.Command{
	Use:   "record",
	Short: "Управление записями",
	Long:  `Создание и просмотр анкет, мониторинга, регистраций и публикаций.`,
}
