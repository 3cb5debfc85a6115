package post

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

var bearer = []map[string][]string{{"bearer": {}}}

func (h *Handler) likeOp() huma.Operation {
	return huma.Operation{
		OperationID:   "post-like",
		Method:        http.MethodPost,
		Path:          "/api/v1/posts/{id}/like",
		Summary:       "Поставить лайк",
		Tags:          []string{"posts"},
		DefaultStatus: http.StatusNoContent,
		Security:      bearer,
		Errors:        []int{http.StatusUnauthorized, http.StatusNotFound},
		Middlewares:   h.middleware,
	}
}

func (h *Handler) unlikeOp() huma.Operation {
	return huma.Operation{
		OperationID:   "post-unlike",
		Method:        http.MethodDelete,
		Path:          "/api/v1/posts/{id}/like",
		Summary:       "Снять лайк",
		Tags:          []string{"posts"},
		DefaultStatus: http.StatusNoContent,
		Security:      bearer,
		Errors:        []int{http.StatusUnauthorized, http.StatusNotFound},
		Middlewares:   h.middleware,
	}
}

func (h *Handler) deleteOp() huma.Operation {
	return huma.Operation{
		OperationID:   "post-delete",
		Method:        http.MethodDelete,
		Path:          "/api/v1/posts/{id}",
		Summary:       "Удалить публикацию",
		Description:   "Удалить может только автор.",
		Tags:          []string{"posts"},
		DefaultStatus: http.StatusNoContent,
		Security:      bearer,
		Errors:        []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
		Middlewares:   h.middleware,
	}
}
