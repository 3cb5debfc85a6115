package user

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"fieldsync/internal/domain/user"
	"fieldsync/internal/utils/logger"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Register(ctx context.Context, login, password string) (int64, error) {
	args := m.Called(ctx, login, password)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockService) Authenticate(ctx context.Context, login, password string) (user.User, error) {
	args := m.Called(ctx, login, password)
	return args.Get(0).(user.User), args.Error(1)
}

type MockSession struct {
	mock.Mock
}

func (m *MockSession) Create(ctx context.Context, userID int64) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

func (m *MockSession) Validate(ctx context.Context, token string) (int64, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(int64), args.Error(1)
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var se huma.StatusError
	require.ErrorAs(t, err, &se)
	return se.GetStatus()
}

func TestHandler_Register(t *testing.T) {
	tests := []struct {
		name       string
		serviceErr error
		wantStatus int
	}{
		{name: "created"},
		{name: "login taken", serviceErr: user.ErrLoginTaken, wantStatus: http.StatusConflict},
		{name: "weak password", serviceErr: user.ErrInvalidInput, wantStatus: http.StatusUnprocessableEntity},
		{name: "storage failure", serviceErr: errors.New("db down"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			h := NewHandler(svc, nil, logger.Discard(), nil)

			svc.On("Register", mock.Anything, "agent", "s3cretpass").Return(int64(42), tt.serviceErr)

			input := &registerInput{Body: user.BaseRequest{Login: "agent", Password: "s3cretpass"}}
			out, err := h.register(context.Background(), input)
			if tt.wantStatus != 0 {
				assert.Nil(t, out)
				assert.Equal(t, tt.wantStatus, statusOf(t, err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(42), out.Body.UserID)
		})
	}
}

func TestHandler_Login(t *testing.T) {
	svc := new(MockService)
	sess := new(MockSession)
	h := NewHandler(svc, sess, logger.Discard(), nil)

	svc.On("Authenticate", mock.Anything, "agent", "s3cretpass").Return(user.User{ID: 42, Login: "agent"}, nil)
	svc.On("Authenticate", mock.Anything, "agent", "wrongpass").Return(user.User{}, user.ErrInvalidAuth)
	sess.On("Create", mock.Anything, int64(42)).Return("tok-42", nil)

	out, err := h.login(context.Background(), &loginInput{Body: user.BaseRequest{Login: "agent", Password: "s3cretpass"}})
	require.NoError(t, err)
	assert.Equal(t, "tok-42", out.Body.Token)
	assert.Equal(t, int64(42), out.Body.UserID)

	_, err = h.login(context.Background(), &loginInput{Body: user.BaseRequest{Login: "agent", Password: "wrongpass"}})
	assert.Equal(t, http.StatusUnauthorized, statusOf(t, err))
}

func TestHandler_Routes(t *testing.T) {
	svc := new(MockService)
	sess := new(MockSession)
	svc.On("Authenticate", mock.Anything, "agent", "s3cretpass").Return(user.User{ID: 42}, nil)
	sess.On("Create", mock.Anything, int64(42)).Return("tok-42", nil)

	_, api := humatest.New(t)
	NewHandler(svc, sess, logger.Discard(), nil).SetupRoutes(api)

	resp := api.Post("/api/v1/user/login", map[string]any{"login": "agent", "password": "s3cretpass"})
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"token":"tok-42"`)

	resp = api.Post("/api/v1/user/register", map[string]any{"login": "ag", "password": "short"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	svc.AssertNotCalled(t, "Register", mock.Anything, mock.Anything, mock.Anything)
}
