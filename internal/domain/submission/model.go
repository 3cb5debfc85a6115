package submission

import (
	"time"

	"fieldsync/internal/domain/record"
)

// Submission запись, принятая от полевого агента
type Submission struct {
	ID             int64
	UserID         int64
	Kind           record.Kind
	IdempotencyKey string
	Fields         map[string]any
	CreatedAt      time.Time
}

// Canonical каноническое представление, которое клиент сливает в свою запись
func (s Submission) Canonical() map[string]any {
	out := record.CloneFields(s.Fields)
	if out == nil {
		out = make(map[string]any)
	}
	out["id"] = s.ID
	out["submitted_by"] = s.UserID
	out["received_at"] = s.CreatedAt.UTC().Format(time.RFC3339)
	return out
}
