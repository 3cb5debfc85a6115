package submission

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"fieldsync/internal/app/server/api/http/middleware/auth"
	"fieldsync/internal/domain/record"
	"fieldsync/internal/domain/submission"
	"fieldsync/internal/utils/logger"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Submit(ctx context.Context, userID int64, kind record.Kind, key string, fields map[string]any) (submission.Submission, bool, error) {
	args := m.Called(ctx, userID, kind, key, fields)
	return args.Get(0).(submission.Submission), args.Bool(1), args.Error(2)
}

// asUser подставляет пользователя вместо проверки токена
func asUser(userID int64) huma.Middlewares {
	return huma.Middlewares{func(ctx huma.Context, next func(huma.Context)) {
		next(huma.WithContext(ctx, auth.WithUserID(ctx.Context(), userID)))
	}}
}

func TestHandler_Create(t *testing.T) {
	userID := int64(42)
	authCtx := auth.WithUserID(context.Background(), userID)

	t.Run("Created", func(t *testing.T) {
		svc := new(MockService)
		h := NewHandler(svc, logger.Discard(), nil)

		fields := map[string]any{"family_id": "HH-001", "form_id": 12.0, "module_id": 3.0}
		svc.On("Submit", mock.Anything, userID, record.KindMonitoringResponse, "dev-1:monitoring_response:1001", fields).
			Return(submission.Submission{ID: 558, UserID: userID, Fields: fields}, true, nil)

		out, err := h.create(authCtx, &createInput{
			Kind:           record.KindMonitoringResponse,
			IdempotencyKey: "dev-1:monitoring_response:1001",
			Body:           fields,
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, out.Status)
		assert.Equal(t, int64(558), out.Body.Result["id"])
		assert.Equal(t, "HH-001", out.Body.Result["family_id"])
	})

	t.Run("Replay", func(t *testing.T) {
		svc := new(MockService)
		h := NewHandler(svc, logger.Discard(), nil)

		svc.On("Submit", mock.Anything, userID, record.KindSocialPost, "k", mock.Anything).
			Return(submission.Submission{ID: 900}, false, nil)

		out, err := h.create(authCtx, &createInput{Kind: record.KindSocialPost, IdempotencyKey: "k", Body: map[string]any{"body": "hi"}})
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, out.Status)
	})

	t.Run("Invalid", func(t *testing.T) {
		svc := new(MockService)
		h := NewHandler(svc, logger.Discard(), nil)

		svc.On("Submit", mock.Anything, userID, record.KindSurveyResponse, "", mock.Anything).
			Return(submission.Submission{}, false, fmt.Errorf("%w: missing survey_id", submission.ErrInvalid))

		_, err := h.create(authCtx, &createInput{Kind: record.KindSurveyResponse, Body: map[string]any{"family_id": "HH-001"}})
		var se huma.StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusUnprocessableEntity, se.GetStatus())
	})

	t.Run("Unauthorized", func(t *testing.T) {
		h := NewHandler(nil, logger.Discard(), nil)
		_, err := h.create(context.Background(), &createInput{Kind: record.KindSocialPost})
		var se huma.StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusUnauthorized, se.GetStatus())
	})
}

func TestHandler_Route(t *testing.T) {
	svc := new(MockService)
	svc.On("Submit", mock.Anything, int64(7), record.KindSocialPost, "dev-1:social_post:1001", mock.Anything).
		Return(submission.Submission{ID: 900, UserID: 7, Fields: map[string]any{"body": "Clinic day"}}, true, nil)

	_, api := humatest.New(t)
	NewHandler(svc, logger.Discard(), asUser(7)).SetupRoutes(api)

	resp := api.Post("/api/v1/submissions/social_post", "Idempotency-Key: dev-1:social_post:1001", map[string]any{"body": "Clinic day"})
	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Contains(t, resp.Body.String(), `"id":900`)

	resp = api.Post("/api/v1/submissions/invoice", map[string]any{"total": 1})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	svc.AssertNumberOfCalls(t, "Submit", 1)
}
