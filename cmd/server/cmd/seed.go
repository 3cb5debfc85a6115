package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"fieldsync/internal/domain/resource"
	"fieldsync/internal/infrastructure/storage/postgres"
)

var seedCmd = &cobra.Command{
	Use:   "seed <file.json>",
	Short: "Загрузить справочники из JSON-файла",
	Long: `Файл - объект, где ключ - имя справочника, значение - массив строк с числовым id:

  {"families": [{"id": 1, "family_id": "HH-001"}], "forms": [...]}`,
	Args: cobra.ExactArgs(1),
	RunE: runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("ошибка чтения файла: %w", err)
	}

	rows, err := parseSeed(data)
	if err != nil {
		return err
	}

	storage, err := postgres.New(cmd.Context(), cfg, log)
	if err != nil {
		return fmt.Errorf("ошибка подключения к базе: %w", err)
	}
	defer storage.Close()

	repo := postgres.NewResourceRepository(storage, log)
	names := make([]string, 0, len(rows))
	for name := range rows {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, row := range rows[name] {
			if err := repo.Upsert(cmd.Context(), name, row.id, row.data); err != nil {
				return err
			}
		}
		log.Info("resource seeded", "resource", name, "rows", len(rows[name]))
	}
	return nil
}

type seedRow struct {
	id   int64
	data map[string]any
}

// parseSeed принимает только справочники общей таблицы.
func parseSeed(data []byte) (map[string][]seedRow, error) {
	var raw map[string][]map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("неверный формат файла: %w", err)
	}

	known := make(map[string]bool)
	for _, name := range resource.DefaultNames() {
		known[name] = true
	}

	out := make(map[string][]seedRow, len(raw))
	for name, items := range raw {
		if !known[name] {
			return nil, fmt.Errorf("неизвестный справочник %q", name)
		}
		for i, item := range items {
			id, ok := item["id"].(float64)
			if !ok || id <= 0 || id != float64(int64(id)) {
				return nil, fmt.Errorf("%s[%d]: нужен положительный целый id", name, i)
			}
			fields := make(map[string]any, len(item))
			for k, v := range item {
				if k != "id" {
					fields[k] = v
				}
			}
			out[name] = append(out[name], seedRow{id: int64(id), data: fields})
		}
	}
	return out, nil
}
