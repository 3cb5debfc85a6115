package submission

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (h *Handler) createOp() huma.Operation {
	return huma.Operation{
		OperationID:   "submission-create",
		Method:        http.MethodPost,
		Path:          "/api/v1/submissions/{kind}",
		Summary:       "Отправка записи с устройства",
		Description:   "Повтор с тем же Idempotency-Key возвращает уже сохраненную запись со статусом 200.",
		Tags:          []string{"submissions"},
		DefaultStatus: http.StatusCreated,
		Security:      []map[string][]string{{"bearer": {}}},
		Errors:        []int{http.StatusUnauthorized, http.StatusUnprocessableEntity},
		Middlewares:   h.middleware,
	}
}
