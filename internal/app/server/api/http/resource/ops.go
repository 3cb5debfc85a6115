package resource

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (h *Handler) listOp() huma.Operation {
	return huma.Operation{
		OperationID: "resource-list",
		Method:      http.MethodGet,
		Path:        "/api/v1/resources/{name}",
		Summary:     "Массовая выборка справочника",
		Tags:        []string{"resources"},
		Security:    []map[string][]string{{"bearer": {}}},
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
		Middlewares: h.middleware,
	}
}
