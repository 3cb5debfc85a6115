package submission

import (
	"context"
	"fmt"

	"golang.org/x/exp/slog"

	"fieldsync/internal/domain/record"
)

type Servicer interface {
	Submit(ctx context.Context, userID int64, kind record.Kind, idempotencyKey string, fields map[string]any) (Submission, bool, error)
}

type Service struct {
	repo      Repository
	validator record.Validator
	log       *slog.Logger
}

func NewService(repo Repository, validator record.Validator, log *slog.Logger) *Service {
	if validator == nil {
		validator = record.NewRegistry()
	}
	return &Service{
		repo:      repo,
		validator: validator,
		log:       log.With("component", "submission"),
	}
}

// Submit принимает отправку. Повтор с тем же ключом возвращает уже сохраненную запись.
func (s *Service) Submit(ctx context.Context, userID int64, kind record.Kind, idempotencyKey string, fields map[string]any) (Submission, bool, error) {
	if err := s.validator.Validate(record.Envelope{Kind: kind, Fields: fields}); err != nil {
		return Submission{}, false, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	// клиент не выбирает серверный идентификатор
	clean := record.CloneFields(fields)
	delete(clean, "id")

	saved, created, err := s.repo.Create(ctx, Submission{
		UserID:         userID,
		Kind:           kind,
		IdempotencyKey: idempotencyKey,
		Fields:         clean,
	})
	if err != nil {
		return Submission{}, false, fmt.Errorf("save submission: %w", err)
	}

	log := s.log.With("id", saved.ID, "kind", kind, "user_id", userID)
	if created {
		log.Info("submission accepted")
	} else {
		log.Info("duplicate submission resolved by idempotency key", "key", idempotencyKey)
	}
	return saved, created, nil
}
