package resource

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fieldsync/internal/app/client/store"
	"fieldsync/internal/utils/clock"
	"fieldsync/internal/utils/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type countingFetch struct {
	calls atomic.Int32
	rows  []map[string]any
	err   error
	gate  chan struct{}
}

func (f *countingFetch) Fetch(ctx context.Context) ([]map[string]any, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

func newOrchestrator(t *testing.T, c *clock.Manual, d ...Descriptor) (*Orchestrator, store.Store) {
	t.Helper()
	s := store.NewMemory()
	return New(s, logger.Discard(), d, WithClock(c), WithRefreshDelay(0)), s
}

func TestOrchestrator_StaleWindow(t *testing.T) {
	ctx := context.Background()
	c := clock.NewManual(start)
	f := &countingFetch{rows: []map[string]any{{"id": 1, "name": "Water"}}}
	o, _ := newOrchestrator(t, c, Descriptor{Key: "project", Fetch: f.Fetch, StaleTime: 10 * time.Minute})

	_, err := o.Refresh(ctx, "project", false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.calls.Load())

	c.Advance(5 * time.Minute)
	_, err = o.Refresh(ctx, "project", false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.calls.Load(), "fresh resource must not be refetched")

	_, err = o.Refresh(ctx, "project", true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.calls.Load())

	c.Advance(11 * time.Minute)
	snap, err := o.Refresh(ctx, "project", false)
	require.NoError(t, err)
	assert.Equal(t, int32(3), f.calls.Load())
	assert.Equal(t, start.Add(16*time.Minute), snap.LastSync)
	assert.False(t, snap.Loading)
}

func TestOrchestrator_ForceSyncDescriptor(t *testing.T) {
	ctx := context.Background()
	f := &countingFetch{rows: []map[string]any{{"id": 1}}}
	o, _ := newOrchestrator(t, clock.NewManual(start), Descriptor{Key: "survey", Fetch: f.Fetch, StaleTime: time.Hour, ForceSync: true})

	for i := 0; i < 3; i++ {
		_, err := o.Refresh(ctx, "survey", false)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), f.calls.Load())
}

func TestOrchestrator_FetchFailureKeepsData(t *testing.T) {
	ctx := context.Background()
	c := clock.NewManual(start)
	f := &countingFetch{rows: []map[string]any{{"id": 1, "name": "Water"}, {"id": 2, "name": "Seeds"}}}
	o, s := newOrchestrator(t, c, Descriptor{Key: "project", Fetch: f.Fetch, StaleTime: time.Minute})

	_, err := o.Refresh(ctx, "project", false)
	require.NoError(t, err)

	f.err = errors.New("connection reset")
	c.Advance(time.Hour)

	snap, err := o.Refresh(ctx, "project", false)
	require.Error(t, err)
	assert.False(t, snap.Loading)
	assert.ErrorContains(t, snap.Err, "connection reset")
	assert.Equal(t, start, snap.LastSync)

	recs, err := s.GetAll(ctx, "project")
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	view, err := o.View(ctx, "project")
	require.NoError(t, err)
	assert.Len(t, view.Records, 2)
	assert.Error(t, view.Err)

	f.err = nil
	snap, err = o.Refresh(ctx, "project", true)
	require.NoError(t, err)
	assert.NoError(t, snap.Err)
}

func TestOrchestrator_ConcurrentRefreshJoins(t *testing.T) {
	ctx := context.Background()
	f := &countingFetch{rows: []map[string]any{{"id": 1}}, gate: make(chan struct{})}
	o, _ := newOrchestrator(t, clock.NewManual(start), Descriptor{Key: "project", Fetch: f.Fetch, StaleTime: time.Hour})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.Refresh(ctx, "project", true)
			assert.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool { return o.Snapshot("project").Loading }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	assert.Equal(t, int32(1), f.calls.Load())
	assert.False(t, o.Snapshot("project").Loading)
}

func TestOrchestrator_TransformAndRowsWithoutID(t *testing.T) {
	ctx := context.Background()
	f := &countingFetch{rows: []map[string]any{{"id": 3, "name": "a"}, {"name": "no id"}}}
	upper := func(rows []map[string]any) ([]map[string]any, error) {
		for _, r := range rows {
			r["seen"] = true
		}
		return rows, nil
	}
	o, _ := newOrchestrator(t, clock.NewManual(start), Descriptor{Key: "module", Fetch: f.Fetch, Transform: upper})

	view, err := o.View(ctx, "module")
	require.NoError(t, err)
	require.Len(t, view.Records, 1)
	assert.Equal(t, int64(3), view.Records[0].ID())
	assert.Equal(t, true, view.Records[0].Fields["seen"])
	assert.NotContains(t, view.Records[0].Fields, "id")
}

func TestOrchestrator_PersistedLastSyncSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	c := clock.NewManual(start)
	s := store.NewMemory()
	f := &countingFetch{rows: []map[string]any{{"id": 1}}}
	d := Descriptor{Key: "project", Fetch: f.Fetch, StaleTime: time.Hour}

	first := New(s, logger.Discard(), []Descriptor{d}, WithClock(c))
	_, err := first.Refresh(ctx, "project", false)
	require.NoError(t, err)

	c.Advance(time.Minute)
	second := New(s, logger.Discard(), []Descriptor{d}, WithClock(c))
	view, err := second.View(ctx, "project")
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.calls.Load())
	assert.Equal(t, start, view.LastSync)
}

func TestOrchestrator_RefreshAllAndParallel(t *testing.T) {
	ctx := context.Background()
	ok := &countingFetch{rows: []map[string]any{{"id": 1}}}
	bad := &countingFetch{err: errors.New("boom")}
	o, _ := newOrchestrator(t, clock.NewManual(start),
		Descriptor{Key: "project", Fetch: ok.Fetch},
		Descriptor{Key: "survey", Fetch: bad.Fetch},
	)

	errs := o.RefreshAll(ctx, true)
	assert.Len(t, errs, 1)
	assert.Contains(t, errs, "survey")

	err := o.RefreshParallel(ctx, true)
	assert.ErrorContains(t, err, "boom")
	assert.Eventually(t, func() bool { return ok.calls.Load() == 2 }, time.Second, time.Millisecond)

	_, err = o.Refresh(ctx, "missing", false)
	assert.ErrorIs(t, err, ErrUnknownResource)
}

type fakeFetcher map[string]string

func (f fakeFetcher) FetchCollection(_ context.Context, path string) (json.RawMessage, error) {
	return json.RawMessage(f[path]), nil
}

func TestRemoteFetch_Envelopes(t *testing.T) {
	ctx := context.Background()
	f := fakeFetcher{
		"/a": `{"data":[{"id":1}]}`,
		"/b": `{"surveys":[{"id":2},{"id":3}]}`,
		"/c": `[{"id":4}]`,
		"/d": `{"other":[]}`,
	}

	rows, err := RemoteFetch(f, "/a", "")(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	rows, err = RemoteFetch(f, "/b", "surveys")(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = RemoteFetch(f, "/c", "")(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	_, err = RemoteFetch(f, "/d", "surveys")(ctx)
	assert.Error(t, err)

	d := DescriptorConfig{Key: "survey", Envelope: "surveys"}.Build(fakeFetcher{"/api/v1/resources/survey": `{"surveys":[{"id":9}]}`})
	rows, err = d.Fetch(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
