package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"golang.org/x/exp/slog"

	"fieldsync/internal/domain/record"
	"fieldsync/internal/domain/submission"
)

type SubmissionRepository struct {
	db  *Storage
	log *slog.Logger
}

func NewSubmissionRepository(db *Storage, log *slog.Logger) *SubmissionRepository {
	return &SubmissionRepository{
		db:  db,
		log: log.With("component", "submission_repository"),
	}
}

// Create вставляет отправку; при совпадении ключа идемпотентности читает существующую.
func (r *SubmissionRepository) Create(ctx context.Context, s submission.Submission) (submission.Submission, bool, error) {
	saved := s
	err := r.db.Pool().QueryRow(ctx,
		`INSERT INTO submissions (user_id, kind, idempotency_key, fields)
         VALUES ($1, $2, NULLIF($3, ''), $4)
         ON CONFLICT (user_id, idempotency_key) WHERE idempotency_key IS NOT NULL DO NOTHING
         RETURNING id, created_at`,
		s.UserID, string(s.Kind), s.IdempotencyKey, s.Fields).Scan(&saved.ID, &saved.CreatedAt)
	if err == nil {
		return saved, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return submission.Submission{}, false, fmt.Errorf("insert submission: %w", err)
	}

	existing, err := r.findByKey(ctx, s.UserID, s.IdempotencyKey)
	if err != nil {
		return submission.Submission{}, false, err
	}
	return existing, false, nil
}

func (r *SubmissionRepository) findByKey(ctx context.Context, userID int64, key string) (submission.Submission, error) {
	var (
		s    submission.Submission
		kind string
	)
	err := r.db.Pool().QueryRow(ctx,
		`SELECT id, user_id, kind, idempotency_key, fields, created_at
         FROM submissions WHERE user_id = $1 AND idempotency_key = $2`,
		userID, key).Scan(&s.ID, &s.UserID, &kind, &s.IdempotencyKey, &s.Fields, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return submission.Submission{}, submission.ErrNotFound
		}
		return submission.Submission{}, fmt.Errorf("select submission: %w", err)
	}
	s.Kind = record.Kind(kind)
	return s, nil
}
