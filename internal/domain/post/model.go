package post

import (
	"time"

	"fieldsync/internal/domain/record"
)

// Post публикация в ленте проекта
type Post struct {
	ID        int64
	AuthorID  int64
	Fields    map[string]any
	Likes     []int64
	CreatedAt time.Time
}

// Row представление для массовой выборки справочника публикаций
func (p Post) Row() map[string]any {
	out := record.CloneFields(p.Fields)
	if out == nil {
		out = make(map[string]any)
	}
	likes := make([]any, len(p.Likes))
	for i, id := range p.Likes {
		likes[i] = id
	}
	out["id"] = p.ID
	out["author_id"] = p.AuthorID
	out["likes"] = likes
	out["created_at"] = p.CreatedAt.UTC().Format(time.RFC3339)
	return out
}
