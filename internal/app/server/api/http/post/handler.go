package post

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"

	"fieldsync/internal/app/server/api/http/middleware/auth"
	"fieldsync/internal/domain/post"
)

type Handler struct {
	service    post.Servicer
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(service post.Servicer, log *slog.Logger, mws huma.Middlewares) *Handler {
	return &Handler{
		service:    service,
		log:        log,
		middleware: mws,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.likeOp(), h.like)
	huma.Register(api, h.unlikeOp(), h.unlike)
	huma.Register(api, h.deleteOp(), h.delete)
}

func (h *Handler) like(ctx context.Context, input *postInput) (*struct{}, error) {
	return h.apply(ctx, input.ID, h.service.Like)
}

func (h *Handler) unlike(ctx context.Context, input *postInput) (*struct{}, error) {
	return h.apply(ctx, input.ID, h.service.Unlike)
}

func (h *Handler) delete(ctx context.Context, input *postInput) (*struct{}, error) {
	return h.apply(ctx, input.ID, h.service.Delete)
}

func (h *Handler) apply(ctx context.Context, postID int64, op func(ctx context.Context, userID, postID int64) error) (*struct{}, error) {
	userID, ok := auth.GetUserID(ctx)
	if !ok {
		return nil, huma.Error401Unauthorized("Unauthorized")
	}

	err := op(ctx, userID, postID)
	switch {
	case err == nil:
		return nil, nil
	case errors.Is(err, post.ErrNotFound):
		return nil, huma.Error404NotFound("Post not found")
	case errors.Is(err, post.ErrForbidden):
		return nil, huma.Error403Forbidden(err.Error())
	default:
		return nil, huma.Error500InternalServerError("Post operation failed", err)
	}
}
