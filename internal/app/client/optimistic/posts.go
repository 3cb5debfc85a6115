package optimistic

import (
	"context"

	"fieldsync/internal/domain/record"
)

const likesField = "likes"

// PostRemote удаленные операции над публикациями
type PostRemote interface {
	LikePost(ctx context.Context, postID int64) error
	UnlikePost(ctx context.Context, postID int64) error
	DeletePost(ctx context.Context, postID int64) error
}

// Posts лайки и удаление публикаций поверх Mutator
type Posts struct {
	mutator *Mutator
	remote  PostRemote
	refresh func(ctx context.Context) error
}

// NewPosts refresh может быть nil.
func NewPosts(m *Mutator, r PostRemote, refresh func(ctx context.Context) error) *Posts {
	return &Posts{mutator: m, remote: r, refresh: refresh}
}

func (p *Posts) Like(ctx context.Context, postID, userID int64) (record.Record, error) {
	return p.mutator.Apply(ctx, Mutation{
		Resource: record.KindSocialPost.Resource(),
		ID:       postID,
		Change: func(rec *record.Record) error {
			likes := likesOf(rec)
			if !containsUser(likes, userID) {
				likes = append(likes, userID)
			}
			setLikes(rec, likes)
			return nil
		},
		Remote:  func(ctx context.Context) error { return p.remote.LikePost(ctx, postID) },
		Refresh: p.refresh,
	})
}

func (p *Posts) Unlike(ctx context.Context, postID, userID int64) (record.Record, error) {
	return p.mutator.Apply(ctx, Mutation{
		Resource: record.KindSocialPost.Resource(),
		ID:       postID,
		Change: func(rec *record.Record) error {
			likes := likesOf(rec)
			out := likes[:0]
			for _, v := range likes {
				if !record.Equal(v, userID) {
					out = append(out, v)
				}
			}
			setLikes(rec, out)
			return nil
		},
		Remote:  func(ctx context.Context) error { return p.remote.UnlikePost(ctx, postID) },
		Refresh: p.refresh,
	})
}

func (p *Posts) Delete(ctx context.Context, postID int64) error {
	_, err := p.mutator.Apply(ctx, Mutation{
		Resource: record.KindSocialPost.Resource(),
		ID:       postID,
		Change:   func(*record.Record) error { return Remove },
		Remote:   func(ctx context.Context) error { return p.remote.DeletePost(ctx, postID) },
		Refresh:  p.refresh,
	})
	return err
}

func likesOf(rec *record.Record) []any {
	if rec.Fields == nil {
		rec.Fields = make(map[string]any)
	}
	likes, _ := rec.Fields[likesField].([]any)
	return likes
}

func setLikes(rec *record.Record, likes []any) {
	if likes == nil {
		likes = []any{}
	}
	rec.Fields[likesField] = likes
}

func containsUser(likes []any, userID int64) bool {
	for _, v := range likes {
		if record.Equal(v, userID) {
			return true
		}
	}
	return false
}
