package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"golang.org/x/exp/slog"

	"fieldsync/internal/domain/post"
	"fieldsync/internal/domain/record"
)

const selectPosts = `
SELECT s.id, s.user_id, s.fields, s.created_at,
       COALESCE(array_agg(l.user_id ORDER BY l.user_id) FILTER (WHERE l.user_id IS NOT NULL), '{}')
FROM submissions s
LEFT JOIN post_likes l ON l.post_id = s.id
WHERE s.kind = $1 AND NOT s.deleted`

// PostRepository публикации хранятся как отправки типа social_post
type PostRepository struct {
	db  *Storage
	log *slog.Logger
}

func NewPostRepository(db *Storage, log *slog.Logger) *PostRepository {
	return &PostRepository{
		db:  db,
		log: log.With("component", "post_repository"),
	}
}

func (r *PostRepository) List(ctx context.Context) ([]post.Post, error) {
	rows, err := r.db.Pool().Query(ctx,
		selectPosts+` GROUP BY s.id ORDER BY s.created_at DESC, s.id DESC`,
		string(record.KindSocialPost))
	if err != nil {
		return nil, fmt.Errorf("select posts: %w", err)
	}
	defer rows.Close()

	var posts []post.Post
	for rows.Next() {
		var p post.Post
		if err := rows.Scan(&p.ID, &p.AuthorID, &p.Fields, &p.CreatedAt, &p.Likes); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

func (r *PostRepository) Get(ctx context.Context, id int64) (post.Post, error) {
	var p post.Post
	err := r.db.Pool().QueryRow(ctx,
		selectPosts+` AND s.id = $2 GROUP BY s.id`,
		string(record.KindSocialPost), id).Scan(&p.ID, &p.AuthorID, &p.Fields, &p.CreatedAt, &p.Likes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return post.Post{}, post.ErrNotFound
		}
		return post.Post{}, fmt.Errorf("select post: %w", err)
	}
	return p, nil
}

func (r *PostRepository) Like(ctx context.Context, postID, userID int64) error {
	_, err := r.db.Pool().Exec(ctx,
		`INSERT INTO post_likes (post_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		postID, userID)
	if err != nil {
		return fmt.Errorf("insert like: %w", err)
	}
	return nil
}

func (r *PostRepository) Unlike(ctx context.Context, postID, userID int64) error {
	_, err := r.db.Pool().Exec(ctx,
		`DELETE FROM post_likes WHERE post_id = $1 AND user_id = $2`,
		postID, userID)
	if err != nil {
		return fmt.Errorf("delete like: %w", err)
	}
	return nil
}

// Delete помечает публикацию удаленной; лайки остаются до физической очистки.
func (r *PostRepository) Delete(ctx context.Context, postID int64) error {
	tag, err := r.db.Pool().Exec(ctx,
		`UPDATE submissions SET deleted = TRUE WHERE id = $1 AND kind = $2 AND NOT deleted`,
		postID, string(record.KindSocialPost))
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return post.ErrNotFound
	}
	return nil
}
