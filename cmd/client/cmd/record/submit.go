// cmd/client/cmd/record/submit.go
package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"fieldsync/cmd/client/cmd/types"
	"fieldsync/cmd/client/cmd/ui"
	"fieldsync/internal/domain/record"
)

var (
	submitKind   string
	submitFields []string
	submitFile   string
)

var SubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Создать и отправить запись",
	Long: `Запись сначала сохраняется на устройстве, затем отправляется на сервер.
Без сети запись остается в очереди и будет отправлена позже.

Поля задаются флагами --field key=value (значение разбирается как JSON,
если это возможно) или JSON-файлом --file.`,
	Example: `  fieldsync record submit --kind monitoring_response \
      --field family_id=HH-001 --field form_id=12 --field module_id=3`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}

		fields, err := parseFields(submitFile, submitFields)
		if err != nil {
			return err
		}

		app.Connect(cmd.Context())

		out, err := app.Submit(cmd.Context(), record.Envelope{Kind: record.Kind(submitKind), Fields: fields})
		var dup *record.DuplicateSubmissionError
		switch {
		case errors.As(err, &dup):
			ui.Fail("%s (id %d)", dup.Error(), dup.ExistingID)
			return nil
		case err != nil:
			return fmt.Errorf("ошибка сохранения записи: %w", err)
		}

		switch {
		case out.Synced:
			ui.Success("Запись отправлена, id на сервере %d", out.Record.ID())
		case errors.Is(out.Err, record.ErrNetworkUnavailable):
			ui.Warn("Нет сети: запись сохранена локально (id %d) и будет отправлена позже", out.Record.ID())
		default:
			ui.Warn("Запись сохранена локально (id %d), отправка не удалась: %s", out.Record.ID(), out.Reason)
		}
		return nil
	},
}

func parseFields(file string, pairs []string) (map[string]any, error) {
	fields := make(map[string]any)
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения файла: %w", err)
		}
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, fmt.Errorf("ошибка разбора файла: %w", err)
		}
	}

	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("неверный формат поля %q, ожидается key=value", pair)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		fields[key] = v
	}
	return fields, nil
}

func init() {
	SubmitCmd.Flags().StringVarP(&submitKind, "kind", "k", "", "тип записи: registration, monitoring_response, survey_response, social_post")
	SubmitCmd.Flags().StringArrayVarP(&submitFields, "field", "f", nil, "поле key=value")
	SubmitCmd.Flags().StringVar(&submitFile, "file", "", "JSON-файл с полями")
	_ = SubmitCmd.MarkFlagRequired("kind")
}
