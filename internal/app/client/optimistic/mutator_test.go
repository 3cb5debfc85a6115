package optimistic

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"fieldsync/internal/app/client/store"
	"fieldsync/internal/domain/record"
	"fieldsync/internal/utils/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPostRemote struct {
	mock.Mock
}

func (m *MockPostRemote) LikePost(ctx context.Context, postID int64) error {
	return m.Called(postID).Error(0)
}

func (m *MockPostRemote) UnlikePost(ctx context.Context, postID int64) error {
	return m.Called(postID).Error(0)
}

func (m *MockPostRemote) DeletePost(ctx context.Context, postID int64) error {
	return m.Called(postID).Error(0)
}

func seedPost(t *testing.T, s store.Store, serverID int64, likes []any) record.Record {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Replace(ctx, "social_post", []record.Record{{
		ServerID: &serverID,
		Kind:     record.KindSocialPost,
		Fields:   map[string]any{"body": "Borehole repaired", "likes": likes},
		Meta:     record.SyncMetadata{SyncStatus: true, SyncReason: record.ReasonFetched, SyncType: record.SyncTypeFetch},
	}}, time.Now()))
	rec, err := s.Get(ctx, "social_post", serverID)
	require.NoError(t, err)
	return rec
}

func TestPosts_LikeSuccess(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	seedPost(t, s, 10, []any{float64(3)})

	r := new(MockPostRemote)
	r.On("LikePost", int64(10)).Return(nil)

	var refreshed atomic.Bool
	posts := NewPosts(NewMutator(s, time.Second, logger.Discard()), r, func(context.Context) error {
		refreshed.Store(true)
		return nil
	})

	rec, err := posts.Like(ctx, 10, 7)
	require.NoError(t, err)
	assert.Len(t, rec.Fields["likes"], 2)

	stored, err := s.Get(ctx, "social_post", 10)
	require.NoError(t, err)
	assert.True(t, containsUser(stored.Fields["likes"].([]any), 7))

	assert.Eventually(t, refreshed.Load, time.Second, 5*time.Millisecond)
	r.AssertExpectations(t)
}

func TestPosts_LikeForbiddenRestoresSnapshot(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	before := seedPost(t, s, 10, []any{float64(3)})

	r := new(MockPostRemote)
	forbidden := &record.RemoteError{Kind: record.ErrRemoteRejected, Status: 403, Message: "forbidden"}
	r.On("LikePost", int64(10)).Return(forbidden)

	posts := NewPosts(NewMutator(s, time.Second, logger.Discard()), r, nil)
	_, err := posts.Like(ctx, 10, 7)

	var mutErr *MutationError
	require.ErrorAs(t, err, &mutErr)
	assert.ErrorIs(t, err, record.ErrRemoteRejected)
	assert.NoError(t, mutErr.RestoreErr)

	after, err := s.Get(ctx, "social_post", 10)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestPosts_UnlikeIsIdempotentLocally(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	seedPost(t, s, 10, []any{float64(3), float64(7)})

	r := new(MockPostRemote)
	r.On("UnlikePost", int64(10)).Return(nil).Twice()

	posts := NewPosts(NewMutator(s, time.Second, logger.Discard()), r, nil)

	rec, err := posts.Unlike(ctx, 10, 7)
	require.NoError(t, err)
	assert.Equal(t, []any{float64(3)}, rec.Fields["likes"])

	rec, err = posts.Unlike(ctx, 10, 7)
	require.NoError(t, err)
	assert.Equal(t, []any{float64(3)}, rec.Fields["likes"])
}

func TestPosts_DeleteRollback(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	before := seedPost(t, s, 10, []any{})

	r := new(MockPostRemote)
	r.On("DeletePost", int64(10)).Return(errors.New("connection reset")).Once()
	r.On("DeletePost", int64(10)).Return(nil).Once()

	posts := NewPosts(NewMutator(s, time.Second, logger.Discard()), r, nil)

	err := posts.Delete(ctx, 10)
	var mutErr *MutationError
	require.ErrorAs(t, err, &mutErr)

	restored, err := s.Get(ctx, "social_post", 10)
	require.NoError(t, err)
	assert.Equal(t, before, restored)

	require.NoError(t, posts.Delete(ctx, 10))
	_, err = s.Get(ctx, "social_post", 10)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMutator_MissingRecord(t *testing.T) {
	m := NewMutator(store.NewMemory(), time.Second, logger.Discard())

	called := false
	_, err := m.Apply(context.Background(), Mutation{
		Resource: "social_post",
		ID:       99,
		Change:   func(*record.Record) error { return nil },
		Remote:   func(context.Context) error { called = true; return nil },
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.False(t, called)
}

func TestMutator_RemoteBoundedByTimeout(t *testing.T) {
	s := store.NewMemory()
	seedPost(t, s, 10, []any{})

	m := NewMutator(s, 20*time.Millisecond, logger.Discard())
	_, err := m.Apply(context.Background(), Mutation{
		Resource: "social_post",
		ID:       10,
		Change: func(rec *record.Record) error {
			rec.Fields["body"] = "edited"
			return nil
		},
		Remote: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	rec, err := s.Get(context.Background(), "social_post", 10)
	require.NoError(t, err)
	assert.Equal(t, "Borehole repaired", rec.Fields["body"])
}

func TestMutator_PendingRecordRejected(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	seedPost(t, s, 1, []any{})

	draft := record.Record{
		Kind:   record.KindSocialPost,
		Fields: map[string]any{"body": "draft", "likes": []any{}},
		Meta:   record.SyncMetadata{SyncReason: record.ReasonNewRecord, SyncType: record.SyncTypeCreate},
	}
	require.NoError(t, s.Create(ctx, "social_post", &draft))

	r := new(MockPostRemote)
	posts := NewPosts(NewMutator(s, time.Second, logger.Discard()), r, nil)

	_, err := posts.Like(ctx, draft.ID(), 7)
	assert.ErrorIs(t, err, ErrNotSynced)

	// local_id черновика не совпадает ни с одним серверным постом
	_, err = posts.Like(ctx, draft.LocalID, 7)
	assert.ErrorIs(t, err, store.ErrNotFound)
	r.AssertNotCalled(t, "LikePost", mock.Anything)

	stored, err := s.GetLocal(ctx, "social_post", draft.LocalID)
	require.NoError(t, err)
	assert.Equal(t, []any{}, stored.Fields["likes"])
}

func TestMutator_SameRecordMutationsSerialized(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	seedPost(t, s, 10, []any{})

	m := NewMutator(s, time.Second, logger.Discard())
	like := func(user float64) ChangeFunc {
		return func(rec *record.Record) error {
			rec.Fields["likes"] = append(rec.Fields["likes"].([]any), user)
			return nil
		}
	}

	applied := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := m.Apply(ctx, Mutation{
			Resource: "social_post",
			ID:       10,
			Change:   like(3),
			Remote: func(context.Context) error {
				close(applied)
				time.Sleep(30 * time.Millisecond)
				return errors.New("connection reset")
			},
		})
		done <- err
	}()

	<-applied
	_, err := m.Apply(ctx, Mutation{
		Resource: "social_post",
		ID:       10,
		Change:   like(7),
		Remote:   func(context.Context) error { return nil },
	})
	require.NoError(t, err)

	var mutErr *MutationError
	require.ErrorAs(t, <-done, &mutErr)

	rec, err := s.Get(ctx, "social_post", 10)
	require.NoError(t, err)
	assert.Equal(t, []any{float64(7)}, rec.Fields["likes"])
}
