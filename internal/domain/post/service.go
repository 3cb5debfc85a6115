package post

import (
	"context"
	"fmt"

	"golang.org/x/exp/slog"
)

type Servicer interface {
	List(ctx context.Context) ([]Post, error)
	Like(ctx context.Context, userID, postID int64) error
	Unlike(ctx context.Context, userID, postID int64) error
	Delete(ctx context.Context, userID, postID int64) error
}

type Service struct {
	repo Repository
	log  *slog.Logger
}

func NewService(repo Repository, log *slog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With("component", "post"),
	}
}

func (s *Service) List(ctx context.Context) ([]Post, error) {
	posts, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

// Like идемпотентен: повторный лайк не ошибка.
func (s *Service) Like(ctx context.Context, userID, postID int64) error {
	if _, err := s.repo.Get(ctx, postID); err != nil {
		return err
	}
	if err := s.repo.Like(ctx, postID, userID); err != nil {
		return fmt.Errorf("like post: %w", err)
	}
	s.log.Debug("post liked", "post_id", postID, "user_id", userID)
	return nil
}

func (s *Service) Unlike(ctx context.Context, userID, postID int64) error {
	if _, err := s.repo.Get(ctx, postID); err != nil {
		return err
	}
	if err := s.repo.Unlike(ctx, postID, userID); err != nil {
		return fmt.Errorf("unlike post: %w", err)
	}
	s.log.Debug("post unliked", "post_id", postID, "user_id", userID)
	return nil
}

func (s *Service) Delete(ctx context.Context, userID, postID int64) error {
	p, err := s.repo.Get(ctx, postID)
	if err != nil {
		return err
	}
	if p.AuthorID != userID {
		return ErrForbidden
	}
	if err := s.repo.Delete(ctx, postID); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	s.log.Info("post deleted", "post_id", postID, "user_id", userID)
	return nil
}
