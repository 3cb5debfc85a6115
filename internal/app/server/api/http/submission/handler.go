package submission

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"

	"fieldsync/internal/app/server/api/http/middleware/auth"
	"fieldsync/internal/domain/submission"
)

type Handler struct {
	service    submission.Servicer
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(service submission.Servicer, log *slog.Logger, mws huma.Middlewares) *Handler {
	return &Handler{
		service:    service,
		log:        log,
		middleware: mws,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.createOp(), h.create)
}

func (h *Handler) create(ctx context.Context, input *createInput) (*createOutput, error) {
	userID, ok := auth.GetUserID(ctx)
	if !ok {
		return nil, huma.Error401Unauthorized("Unauthorized")
	}

	saved, created, err := h.service.Submit(ctx, userID, input.Kind, input.IdempotencyKey, input.Body)
	if err != nil {
		if errors.Is(err, submission.ErrInvalid) {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		return nil, huma.Error500InternalServerError("Submission failed", err)
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	return &createOutput{
		Status: status,
		Body:   CreateResponse{Result: saved.Canonical()},
	}, nil
}
