package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"fieldsync/internal/domain/record"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0 = time.Date(2024, 5, 10, 8, 30, 0, 0, time.UTC)
)

func implementations(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemory()
		},
		"sqlite": func(t *testing.T) Store {
			s, err := NewSQLite(filepath.Join(t.TempDir(), "fieldsync.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func pending(kind record.Kind, actor int64, fields map[string]any) record.Record {
	return record.Record{
		Kind:   kind,
		Fields: fields,
		Meta: record.SyncMetadata{
			SyncReason:      record.ReasonNewRecord,
			SubmittedAt:     t0,
			CreatedByUserID: actor,
			SyncType:        record.SyncTypeCreate,
		},
	}
}

func fetched(serverID int64, fields map[string]any) record.Record {
	return record.Record{
		ServerID: &serverID,
		Fields:   fields,
		Meta: record.SyncMetadata{
			SyncStatus: true,
			SyncReason: record.ReasonFetched,
			SyncType:   record.SyncTypeFetch,
		},
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	for name, newStore := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			rec := pending(record.KindMonitoringResponse, 7, map[string]any{"family_id": "HH-001", "form_id": 12})
			require.NoError(t, s.Create(ctx, "monitoring_response", &rec))
			assert.NotZero(t, rec.LocalID)

			got, err := s.Get(ctx, "monitoring_response", rec.ID())
			require.NoError(t, err)
			assert.Equal(t, record.PendingID(rec.LocalID), got.ID())
			assert.Equal(t, rec.LocalID, got.LocalID)
			assert.Nil(t, got.ServerID)
			assert.Equal(t, "HH-001", got.Fields["family_id"])
			assert.True(t, record.Equal(12, got.Fields["form_id"]))
			assert.Equal(t, record.StateLocalPending, got.State())
			assert.True(t, t0.Equal(got.Meta.SubmittedAt))

			_, err = s.Get(ctx, "monitoring_response", 9999)
			assert.ErrorIs(t, err, ErrNotFound)

			// положительный id ищется только среди серверных
			_, err = s.Get(ctx, "monitoring_response", rec.LocalID)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_LocalIDsNeverReused(t *testing.T) {
	for name, newStore := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			first := pending(record.KindSocialPost, 1, map[string]any{"body": "a"})
			require.NoError(t, s.Create(ctx, "social_post", &first))
			second := pending(record.KindSocialPost, 1, map[string]any{"body": "b"})
			require.NoError(t, s.Create(ctx, "social_post", &second))
			require.Greater(t, second.LocalID, first.LocalID)

			require.NoError(t, s.Delete(ctx, "social_post", second.LocalID))

			third := pending(record.KindSocialPost, 1, map[string]any{"body": "c"})
			require.NoError(t, s.Create(ctx, "social_post", &third))
			assert.Greater(t, third.LocalID, second.LocalID)
		})
	}
}

func TestStore_GetByQuery(t *testing.T) {
	for name, newStore := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			mine := pending(record.KindSurveyResponse, 7, map[string]any{"family_id": "HH-1", "survey_id": 3})
			theirs := pending(record.KindSurveyResponse, 8, map[string]any{"family_id": "HH-1", "survey_id": 3})
			require.NoError(t, s.Create(ctx, "survey_response", &mine))
			require.NoError(t, s.Create(ctx, "survey_response", &theirs))
			require.NoError(t, s.BatchCreate(ctx, "survey_response", []record.Record{
				fetched(40, map[string]any{"family_id": "HH-1", "survey_id": 4}),
			}))

			got, err := s.GetByQuery(ctx, "survey_response", Pending(7))
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, mine.LocalID, got[0].LocalID)

			got, err = s.GetByQuery(ctx, "survey_response", Query{Fields: map[string]any{"family_id": "HH-1", "survey_id": int64(3)}})
			require.NoError(t, err)
			assert.Len(t, got, 2)

			all, err := s.GetAll(ctx, "survey_response")
			require.NoError(t, err)
			assert.Len(t, all, 3)
		})
	}
}

func TestStore_ReplaceKeepsPendingAndWritesSyncTime(t *testing.T) {
	for name, newStore := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			_, ok, err := s.LastSync(ctx, "social_post")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Replace(ctx, "social_post", []record.Record{
				fetched(1, map[string]any{"body": "old"}),
				fetched(2, map[string]any{"body": "old"}),
			}, t0))

			draft := pending(record.KindSocialPost, 3, map[string]any{"body": "draft"})
			require.NoError(t, s.Create(ctx, "social_post", &draft))

			later := t0.Add(time.Hour)
			require.NoError(t, s.Replace(ctx, "social_post", []record.Record{
				fetched(2, map[string]any{"body": "edited"}),
				fetched(3, map[string]any{"body": "new"}),
			}, later))

			all, err := s.GetAll(ctx, "social_post")
			require.NoError(t, err)
			require.Len(t, all, 3)

			_, err = s.Get(ctx, "social_post", 1)
			assert.ErrorIs(t, err, ErrNotFound)

			edited, err := s.Get(ctx, "social_post", 2)
			require.NoError(t, err)
			assert.Equal(t, "edited", edited.Fields["body"])

			kept, err := s.GetLocal(ctx, "social_post", draft.LocalID)
			require.NoError(t, err)
			assert.Equal(t, "draft", kept.Fields["body"])

			at, ok, err := s.LastSync(ctx, "social_post")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.True(t, later.Equal(at))
		})
	}
}

func TestStore_ReplaceIsAtomic(t *testing.T) {
	for name, newStore := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			require.NoError(t, s.Replace(ctx, "project", []record.Record{
				fetched(1, map[string]any{"name": "Water"}),
			}, t0))

			// два ряда с одинаковым server_id нарушают уникальность
			err := s.Replace(ctx, "project", []record.Record{
				fetched(5, map[string]any{"name": "A"}),
				fetched(5, map[string]any{"name": "B"}),
			}, t0.Add(time.Hour))
			require.ErrorIs(t, err, ErrServerIDConflict)

			all, err := s.GetAll(ctx, "project")
			require.NoError(t, err)
			require.Len(t, all, 1)
			assert.Equal(t, "Water", all[0].Fields["name"])

			at, _, err := s.LastSync(ctx, "project")
			require.NoError(t, err)
			assert.True(t, t0.Equal(at))
		})
	}
}

func TestStore_AcceptRemote(t *testing.T) {
	for name, newStore := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			reg := pending(record.KindRegistration, 7, map[string]any{"family_id": "HH-9", "project_id": 2})
			require.NoError(t, s.Create(ctx, "registration", &reg))

			answer := pending(record.KindSurveyResponse, 7, map[string]any{"registration_id": reg.ID(), "survey_id": 3})
			require.NoError(t, s.Create(ctx, "survey_response", &answer))

			refs := []record.Reference{{Resource: "survey_response", Field: "registration_id", Target: "registration"}}
			at := t0.Add(time.Minute)
			got, err := s.AcceptRemote(ctx, "registration", reg.LocalID, 558,
				map[string]any{"id": 558, "family_id": "HH-9", "status": "approved"}, refs, at)
			require.NoError(t, err)

			assert.Equal(t, int64(558), got.ID())
			assert.Equal(t, reg.LocalID, got.LocalID)
			assert.Equal(t, record.StateSynced, got.State())
			assert.Equal(t, record.ReasonSynced, got.Meta.SyncReason)
			assert.Equal(t, uint(1), got.Meta.SyncAttempts)
			assert.Equal(t, "approved", got.Fields["status"])
			assert.NotContains(t, got.Fields, "id")

			byServer, err := s.Get(ctx, "registration", 558)
			require.NoError(t, err)
			assert.Equal(t, reg.LocalID, byServer.LocalID)

			child, err := s.GetLocal(ctx, "survey_response", answer.LocalID)
			require.NoError(t, err)
			assert.True(t, record.Equal(558, child.Fields["registration_id"]))

			again, err := s.AcceptRemote(ctx, "registration", reg.LocalID, 558, nil, refs, at.Add(time.Minute))
			require.NoError(t, err)
			assert.Equal(t, uint(1), again.Meta.SyncAttempts)
		})
	}
}

func TestStore_AcceptRemoteRejectsSharedServerID(t *testing.T) {
	for name, newStore := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			a := pending(record.KindSocialPost, 1, map[string]any{"body": "a"})
			b := pending(record.KindSocialPost, 1, map[string]any{"body": "b"})
			require.NoError(t, s.Create(ctx, "social_post", &a))
			require.NoError(t, s.Create(ctx, "social_post", &b))

			_, err := s.AcceptRemote(ctx, "social_post", a.LocalID, 77, nil, nil, t0)
			require.NoError(t, err)

			_, err = s.AcceptRemote(ctx, "social_post", b.LocalID, 77, nil, nil, t0)
			require.ErrorIs(t, err, ErrServerIDConflict)

			still, err := s.GetLocal(ctx, "social_post", b.LocalID)
			require.NoError(t, err)
			assert.Nil(t, still.ServerID)
			assert.False(t, still.Meta.SyncStatus)
		})
	}
}

func TestStore_RecordFailure(t *testing.T) {
	for name, newStore := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			rec := pending(record.KindMonitoringResponse, 7, map[string]any{"family_id": "HH-1"})
			require.NoError(t, s.Create(ctx, "monitoring_response", &rec))

			got, err := s.RecordFailure(ctx, "monitoring_response", rec.LocalID, "HTTP 500", t0)
			require.NoError(t, err)
			assert.Equal(t, uint(1), got.Meta.SyncAttempts)
			assert.Equal(t, "HTTP 500", got.Meta.SyncReason)
			assert.Equal(t, record.StateFailedRetryable, got.State())

			got, err = s.RecordFailure(ctx, "monitoring_response", rec.LocalID, "timeout", t0.Add(time.Minute))
			require.NoError(t, err)
			assert.Equal(t, uint(2), got.Meta.SyncAttempts)
			assert.True(t, t0.Add(time.Minute).Equal(got.Meta.LastSyncAttempt))

			_, err = s.RecordFailure(ctx, "monitoring_response", 4242, "x", t0)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_UpdatePutDelete(t *testing.T) {
	for name, newStore := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			require.NoError(t, s.Replace(ctx, "social_post", []record.Record{
				fetched(10, map[string]any{"body": "hello", "likes": []any{}}),
			}, t0))
			post, err := s.Get(ctx, "social_post", 10)
			require.NoError(t, err)

			updated, err := s.Update(ctx, "social_post", post.LocalID, record.Patch{Fields: map[string]any{"likes": []any{float64(7)}}})
			require.NoError(t, err)
			assert.Equal(t, "hello", updated.Fields["body"])
			assert.Equal(t, []any{float64(7)}, updated.Fields["likes"])

			require.NoError(t, s.Delete(ctx, "social_post", post.LocalID))
			_, err = s.Get(ctx, "social_post", 10)
			require.ErrorIs(t, err, ErrNotFound)

			// Put с прежним local_id восстанавливает запись целиком
			require.NoError(t, s.Put(ctx, post))
			restored, err := s.Get(ctx, "social_post", 10)
			require.NoError(t, err)
			assert.Equal(t, post.LocalID, restored.LocalID)
			assert.Equal(t, post.Fields, restored.Fields)
			assert.Equal(t, post.Meta.SyncStatus, restored.Meta.SyncStatus)

			require.NoError(t, s.DeleteAll(ctx, "social_post"))
			all, err := s.GetAll(ctx, "social_post")
			require.NoError(t, err)
			assert.Empty(t, all)

			assert.ErrorIs(t, s.Delete(ctx, "social_post", post.LocalID), ErrNotFound)
		})
	}
}

func TestStore_AcceptRemoteRepointsOnlyAcceptedRecord(t *testing.T) {
	for name, newStore := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)
			refs := []record.Reference{{Resource: "monitoring_response", Field: "family_id", Target: "family"}}

			a := pending(record.KindRegistration, 7, map[string]any{"name": "A"})
			require.NoError(t, s.Create(ctx, "family", &a))
			b := pending(record.KindRegistration, 7, map[string]any{"name": "B"})
			require.NoError(t, s.Create(ctx, "family", &b))

			// server id A совпадает с local_id B
			_, err := s.AcceptRemote(ctx, "family", a.LocalID, b.LocalID, nil, refs, t0)
			require.NoError(t, err)

			toA := pending(record.KindMonitoringResponse, 7, map[string]any{"family_id": b.LocalID})
			require.NoError(t, s.Create(ctx, "monitoring_response", &toA))
			toB := pending(record.KindMonitoringResponse, 7, map[string]any{"family_id": b.ID()})
			require.NoError(t, s.Create(ctx, "monitoring_response", &toB))

			byID, err := s.Get(ctx, "family", b.LocalID)
			require.NoError(t, err)
			assert.Equal(t, a.LocalID, byID.LocalID)

			_, err = s.AcceptRemote(ctx, "family", b.LocalID, 900, nil, refs, t0)
			require.NoError(t, err)

			gotA, err := s.GetLocal(ctx, "monitoring_response", toA.LocalID)
			require.NoError(t, err)
			assert.True(t, record.Equal(b.LocalID, gotA.Fields["family_id"]))

			gotB, err := s.GetLocal(ctx, "monitoring_response", toB.LocalID)
			require.NoError(t, err)
			assert.True(t, record.Equal(900, gotB.Fields["family_id"]))
		})
	}
}

func TestStore_AcceptRemoteAbsorbsFetchedCopy(t *testing.T) {
	for name, newStore := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			post := pending(record.KindSocialPost, 7, map[string]any{"body": "draft"})
			require.NoError(t, s.Create(ctx, "social_post", &post))
			_, err := s.RecordFailure(ctx, "social_post", post.LocalID, "timeout", t0)
			require.NoError(t, err)

			// сервер сохранил пост, ответ потерян, а лента уже принесла его копию
			require.NoError(t, s.Replace(ctx, "social_post", []record.Record{
				fetched(77, map[string]any{"body": "draft", "likes": []any{}}),
			}, t0.Add(time.Minute)))

			got, err := s.AcceptRemote(ctx, "social_post", post.LocalID, 77,
				map[string]any{"id": 77, "likes": []any{}}, nil, t0.Add(2*time.Minute))
			require.NoError(t, err)
			assert.Equal(t, record.StateSynced, got.State())
			assert.Equal(t, uint(2), got.Meta.SyncAttempts)
			assert.Equal(t, record.SyncTypeCreate, got.Meta.SyncType)

			all, err := s.GetAll(ctx, "social_post")
			require.NoError(t, err)
			require.Len(t, all, 1)
			assert.Equal(t, post.LocalID, all[0].LocalID)

			byServer, err := s.Get(ctx, "social_post", 77)
			require.NoError(t, err)
			assert.Equal(t, post.LocalID, byServer.LocalID)
		})
	}
}
