package user

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"

	"fieldsync/internal/domain/session"
	"fieldsync/internal/domain/user"
)

type Handler struct {
	service    user.Servicer
	session    session.Servicer
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(service user.Servicer, session session.Servicer, log *slog.Logger, middleware huma.Middlewares) *Handler {
	return &Handler{
		service:    service,
		session:    session,
		log:        log,
		middleware: middleware,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.registerOp(), h.register)
	huma.Register(api, h.loginOp(), h.login)
}

func (h *Handler) register(ctx context.Context, input *registerInput) (*registerOutput, error) {
	userID, err := h.service.Register(ctx, input.Body.Login, input.Body.Password)
	switch {
	case errors.Is(err, user.ErrLoginTaken):
		return nil, huma.Error409Conflict("Login already taken")
	case errors.Is(err, user.ErrInvalidInput):
		return nil, huma.Error422UnprocessableEntity(err.Error())
	case err != nil:
		return nil, huma.Error500InternalServerError("Registration failed", err)
	}

	return &registerOutput{
		Body: RegisterResponse{UserID: userID, Status: "Ok"},
	}, nil
}

func (h *Handler) login(ctx context.Context, input *loginInput) (*loginOutput, error) {
	u, err := h.service.Authenticate(ctx, input.Body.Login, input.Body.Password)
	if err != nil {
		if errors.Is(err, user.ErrInvalidAuth) {
			return nil, huma.Error401Unauthorized("Invalid credentials")
		}
		return nil, huma.Error500InternalServerError("Login failed", err)
	}

	token, err := h.session.Create(ctx, u.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("Create session failed", err)
	}

	return &loginOutput{
		Body: LoginResponse{Token: token, UserID: u.ID},
	}, nil
}
