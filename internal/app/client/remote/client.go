package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fieldsync/internal/domain/record"

	"golang.org/x/exp/slog"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "fieldsync-client/1.0"

	// HeaderIdempotencyKey ключ, по которому сервер узнает повторную отправку той же записи
	HeaderIdempotencyKey = "Idempotency-Key"
)

type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Client HTTP-клиент удаленного сервиса сбора данных.
// Каждый вызов ограничен собственным таймаутом; ошибки классифицируются в *record.RemoteError.
type Client struct {
	client    *http.Client
	baseURL   string
	timeout   time.Duration
	userAgent string
	creds     *Credentials
	log       *slog.Logger
}

// CreateResult ответ сервера на создание записи
type CreateResult struct {
	ID     int64
	Fields map[string]any
}

func New(cfg Config, creds *Credentials, log *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	if creds == nil {
		creds, _ = LoadCredentials("")
	}

	return &Client{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 10,
			},
		},
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		timeout:   timeout,
		userAgent: userAgent,
		creds:     creds,
		log:       log.With("component", "remote"),
	}
}

func (c *Client) Credentials() *Credentials {
	return c.creds
}

// HealthCheck проверяет доступность сервера
func (c *Client) HealthCheck(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	return c.do(ctx, http.MethodGet, "/api/v1/health", nil, nil, &resp)
}

// Probe реализует network.Prober: любой HTTP-ответ означает, что сеть есть.
func (c *Client) Probe(ctx context.Context) (bool, error) {
	err := c.HealthCheck(ctx)
	if err == nil {
		return true, nil
	}
	var remoteErr *record.RemoteError
	if errors.As(err, &remoteErr) {
		return errors.Is(err, record.ErrRemoteRejected), nil
	}
	return false, err
}

// Register регистрирует пользователя.
func (c *Client) Register(ctx context.Context, login, password string) error {
	body := map[string]string{"login": login, "password": password}
	return c.do(ctx, http.MethodPost, "/api/v1/user/register", nil, body, nil)
}

// Login получает токен и сохраняет сессию.
func (c *Client) Login(ctx context.Context, login, password string) (Session, error) {
	body := map[string]string{"login": login, "password": password}

	var resp Session
	if err := c.do(ctx, http.MethodPost, "/api/v1/user/login", nil, body, &resp); err != nil {
		return Session{}, err
	}
	if err := c.creds.Save(resp); err != nil {
		return Session{}, err
	}
	return resp, nil
}

// FetchCollection возвращает сырое тело ответа массовой выборки.
func (c *Client) FetchCollection(ctx context.Context, path string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Create отправляет новую запись. idempotencyKey передается в заголовке Idempotency-Key.
func (c *Client) Create(ctx context.Context, kind record.Kind, fields map[string]any, idempotencyKey string) (CreateResult, error) {
	headers := map[string]string{}
	if idempotencyKey != "" {
		headers[HeaderIdempotencyKey] = idempotencyKey
	}

	var resp struct {
		Result map[string]any `json:"result"`
	}
	path := "/api/v1/submissions/" + url.PathEscape(string(kind))
	if err := c.do(ctx, http.MethodPost, path, headers, fields, &resp); err != nil {
		return CreateResult{}, err
	}

	id, err := parseID(resp.Result["id"])
	if err != nil {
		return CreateResult{}, &record.RemoteError{
			Kind:    record.ErrTransport,
			Message: "response has no usable id",
			Err:     err,
		}
	}
	return CreateResult{ID: id, Fields: resp.Result}, nil
}

func (c *Client) LikePost(ctx context.Context, postID int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/posts/%d/like", postID), nil, nil, nil)
}

func (c *Client) UnlikePost(ctx context.Context, postID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/posts/%d/like", postID), nil, nil, nil)
}

func (c *Client) DeletePost(ctx context.Context, postID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/posts/%d", postID), nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, headers map[string]string, body, result any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if token := c.creds.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	c.log.Debug("sending request", "method", method, "path", path)

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyTransport(ctx, err)
	}

	c.log.Debug("received response", "method", method, "path", path, "status", resp.StatusCode)

	if resp.StatusCode >= http.StatusBadRequest {
		return c.rejected(resp.StatusCode, data)
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return &record.RemoteError{Kind: record.ErrTransport, Status: resp.StatusCode, Message: "malformed response", Err: err}
		}
	}
	return nil
}

func (c *Client) rejected(status int, body []byte) error {
	remoteErr := &record.RemoteError{
		Kind:    record.ErrRemoteRejected,
		Status:  status,
		Message: errorMessage(status, body),
	}
	if status == http.StatusUnauthorized {
		remoteErr.Err = record.ErrAuthExpired
		c.creds.Invalidate()
		c.log.Warn("credential rejected by server, session invalidated")
	}
	return remoteErr
}

// errorMessage достает текст ошибки из тела problem+json или {"error": ...}.
func errorMessage(status int, body []byte) string {
	var problem struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(body, &problem); err == nil {
		switch {
		case problem.Detail != "":
			return problem.Detail
		case problem.Error != "":
			return problem.Error
		case problem.Title != "":
			return problem.Title
		}
	}
	return http.StatusText(status)
}

func classifyTransport(ctx context.Context, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return &record.RemoteError{Kind: record.ErrRemoteTimeout, Message: "request timed out", Err: err}
	}
	return &record.RemoteError{Kind: record.ErrTransport, Err: err}
}

func parseID(v any) (int64, error) {
	switch id := record.Normalize(v).(type) {
	case float64:
		if id <= 0 || id != float64(int64(id)) {
			return 0, fmt.Errorf("invalid id %v", id)
		}
		return int64(id), nil
	case string:
		return strconv.ParseInt(id, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected id type %T", v)
	}
}
