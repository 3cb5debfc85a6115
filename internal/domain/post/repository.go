package post

import "context"

// Repository публикации - это отправки типа social_post.
// Get и Delete возвращают ErrNotFound для удаленной или несуществующей публикации.
type Repository interface {
	List(ctx context.Context) ([]Post, error)
	Get(ctx context.Context, id int64) (Post, error)
	Like(ctx context.Context, postID, userID int64) error
	Unlike(ctx context.Context, postID, userID int64) error
	Delete(ctx context.Context, postID int64) error
}
