package logger

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/slog"
)

func TestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	_, api := humatest.New(t)
	huma.Register(api, huma.Operation{
		OperationID: "boom",
		Method:      http.MethodPost,
		Path:        "/boom",
		Middlewares: huma.Middlewares{New(log).Middleware()},
	}, func(context.Context, *struct{}) (*struct{}, error) {
		return nil, huma.Error503ServiceUnavailable("maintenance")
	})

	resp := api.Post("/boom", "Idempotency-Key: dev-1:survey_response:1001")
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)

	out := buf.String()
	assert.Contains(t, out, `"level":"ERROR"`)
	assert.Contains(t, out, `"msg":"HTTP request"`)
	assert.Contains(t, out, `"status":503`)
	assert.Contains(t, out, `"idempotency_key":"dev-1:survey_response:1001"`)
	assert.Contains(t, out, `"component":"http_logger"`)
}
