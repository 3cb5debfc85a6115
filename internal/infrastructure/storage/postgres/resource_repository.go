package postgres

import (
	"context"
	"fmt"

	"golang.org/x/exp/slog"
)

// ResourceRepository справочники в общей таблице resource_items
type ResourceRepository struct {
	db  *Storage
	log *slog.Logger
}

func NewResourceRepository(db *Storage, log *slog.Logger) *ResourceRepository {
	return &ResourceRepository{
		db:  db,
		log: log.With("component", "resource_repository"),
	}
}

// List возвращает строки справочника; поле id берется из ключа таблицы.
func (r *ResourceRepository) List(ctx context.Context, name string) ([]map[string]any, error) {
	rows, err := r.db.Pool().Query(ctx,
		`SELECT id, data FROM resource_items WHERE resource = $1 ORDER BY id`, name)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", name, err)
	}
	defer rows.Close()

	out := make([]map[string]any, 0)
	for rows.Next() {
		var (
			id   int64
			data map[string]any
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan %s: %w", name, err)
		}
		if data == nil {
			data = make(map[string]any)
		}
		data["id"] = id
		out = append(out, data)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", name, err)
	}
	return out, nil
}

// Upsert заменяет строку справочника.
func (r *ResourceRepository) Upsert(ctx context.Context, name string, id int64, data map[string]any) error {
	_, err := r.db.Pool().Exec(ctx,
		`INSERT INTO resource_items (resource, id, data) VALUES ($1, $2, $3)
         ON CONFLICT (resource, id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`,
		name, id, data)
	if err != nil {
		return fmt.Errorf("upsert %s/%d: %w", name, id, err)
	}
	return nil
}
