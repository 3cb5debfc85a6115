package session

import (
	"context"
	"time"
)

// Repository хранит только хэш токена.
// Validate возвращает ErrInvalidSession для неизвестного или истекшего токена.
type Repository interface {
	Create(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error
	Validate(ctx context.Context, tokenHash string) (int64, error)
}
