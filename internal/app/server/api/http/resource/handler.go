package resource

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"

	"fieldsync/internal/domain/resource"
)

type Handler struct {
	service    resource.Servicer
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(service resource.Servicer, log *slog.Logger, mws huma.Middlewares) *Handler {
	return &Handler{
		service:    service,
		log:        log,
		middleware: mws,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.listOp(), h.list)
}

func (h *Handler) list(ctx context.Context, input *listInput) (*listOutput, error) {
	rows, err := h.service.List(ctx, input.Name)
	if err != nil {
		if errors.Is(err, resource.ErrUnknownResource) {
			return nil, huma.Error404NotFound("Unknown resource " + input.Name)
		}
		return nil, huma.Error500InternalServerError("List failed", err)
	}

	return &listOutput{
		Body: ListResponse{Data: rows},
	}, nil
}
