package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/exp/slog"

	"fieldsync/internal/utils/clock"
)

const DefaultTTL = 24 * time.Hour

type Servicer interface {
	Create(ctx context.Context, userID int64) (string, error)
	Validate(ctx context.Context, token string) (int64, error)
}

type Service struct {
	repo  Repository
	ttl   time.Duration
	clock clock.Clock
	log   *slog.Logger
}

func NewService(repo Repository, ttl time.Duration, log *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		repo:  repo,
		ttl:   ttl,
		clock: clock.Real{},
		log:   log.With("component", "session"),
	}
}

// Create выпускает новый токен; в хранилище попадает только его SHA-256.
func (s *Service) Create(ctx context.Context, userID int64) (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	token := base64.URLEncoding.EncodeToString(tokenBytes)

	expiresAt := s.clock.Now().Add(s.ttl)
	if err := s.repo.Create(ctx, userID, hashToken(token), expiresAt); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}

	return token, nil
}

func (s *Service) Validate(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, ErrInvalidSession
	}
	return s.repo.Validate(ctx, hashToken(token))
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
