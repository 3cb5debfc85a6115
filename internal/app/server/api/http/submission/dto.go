package submission

import "fieldsync/internal/domain/record"

type createInput struct {
	Kind           record.Kind    `path:"kind" doc:"Тип записи"`
	IdempotencyKey string         `header:"Idempotency-Key" maxLength:"255" doc:"Ключ повторной отправки: <device>:<resource>:<local_id>"`
	Body           map[string]any `doc:"Поля записи"`
}

type createOutput struct {
	Status int
	Body   CreateResponse
}

// CreateResponse каноническая запись, которую клиент сливает в локальную копию
type CreateResponse struct {
	Result map[string]any `json:"result"`
}
