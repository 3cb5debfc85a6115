package resource

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fieldsync/internal/app/client/store"
	"fieldsync/internal/domain/record"
	"fieldsync/internal/utils/clock"

	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	defaultFetchTimeout = 30 * time.Second
	defaultRefreshDelay = 500 * time.Millisecond
)

var ErrUnknownResource = errors.New("unknown resource")

// Snapshot состояние синхронизации одного ресурса
type Snapshot struct {
	Loading  bool      `json:"is_loading"`
	Err      error     `json:"-"`
	LastSync time.Time `json:"last_sync_time"`
}

// View локальные данные ресурса вместе с состоянием синхронизации
type View struct {
	Records []record.Record
	Snapshot
}

// Orchestrator обновляет справочные ресурсы по окну устаревания.
// Повторный вызов для ключа, который уже обновляется, присоединяется к текущему обновлению.
type Orchestrator struct {
	store        store.Store
	clock        clock.Clock
	log          *slog.Logger
	fetchTimeout time.Duration
	limiter      *rate.Limiter

	mu          sync.RWMutex
	descriptors map[string]Descriptor
	order       []string
	snapshots   map[string]Snapshot

	group singleflight.Group
}

type Option func(*Orchestrator)

func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

func WithFetchTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.fetchTimeout = d
		}
	}
}

// WithRefreshDelay задает паузу между последовательными обновлениями в RefreshAll.
func WithRefreshDelay(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d <= 0 {
			o.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		o.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

func New(s store.Store, log *slog.Logger, descriptors []Descriptor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:        s,
		clock:        clock.Real{},
		log:          log.With("component", "resource"),
		fetchTimeout: defaultFetchTimeout,
		limiter:      rate.NewLimiter(rate.Every(defaultRefreshDelay), 1),
		descriptors:  make(map[string]Descriptor),
		snapshots:    make(map[string]Snapshot),
	}
	for _, opt := range opts {
		opt(o)
	}
	for _, d := range descriptors {
		o.Register(d)
	}
	return o
}

// Register добавляет или заменяет дескриптор ресурса.
func (o *Orchestrator) Register(d Descriptor) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.descriptors[d.Key]; !ok {
		o.order = append(o.order, d.Key)
	}
	o.descriptors[d.Key] = d
}

// Keys ключи зарегистрированных ресурсов в порядке регистрации.
func (o *Orchestrator) Keys() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]string(nil), o.order...)
}

// NeedsRefresh решает, пора ли обновить ресурс.
func (o *Orchestrator) NeedsRefresh(ctx context.Context, key string, force bool) (bool, error) {
	d, err := o.descriptor(key)
	if err != nil {
		return false, err
	}
	if force || d.ForceSync {
		return true, nil
	}

	last, ok, err := o.store.LastSync(ctx, key)
	if err != nil {
		return false, record.Persistence("read last sync", err)
	}
	if !ok {
		return true, nil
	}
	return o.clock.Now().Sub(last) > d.StaleTime, nil
}

// Refresh обновляет ресурс, если он устарел или force.
// Ошибка выборки не трогает локальные данные и попадает в снимок.
func (o *Orchestrator) Refresh(ctx context.Context, key string, force bool) (Snapshot, error) {
	needed, err := o.NeedsRefresh(ctx, key, force)
	if err != nil {
		return o.Snapshot(key), err
	}
	if !needed {
		return o.Snapshot(key), nil
	}

	ch := o.group.DoChan(key, func() (any, error) {
		return nil, o.refresh(context.WithoutCancel(ctx), key)
	})

	select {
	case res := <-ch:
		return o.Snapshot(key), res.Err
	case <-ctx.Done():
		return o.Snapshot(key), ctx.Err()
	}
}

func (o *Orchestrator) refresh(ctx context.Context, key string) error {
	d, err := o.descriptor(key)
	if err != nil {
		return err
	}

	o.update(key, func(s *Snapshot) { s.Loading = true })
	log := o.log.With("resource", key)
	log.Debug("refreshing resource")

	fetchCtx, cancel := context.WithTimeout(ctx, o.fetchTimeout)
	defer cancel()

	err = o.fetchAndReplace(fetchCtx, d)
	if err != nil {
		log.Warn("resource refresh failed, keeping local data", "error", err)
		o.update(key, func(s *Snapshot) {
			s.Loading = false
			s.Err = err
		})
		return err
	}

	now := o.clock.Now()
	o.update(key, func(s *Snapshot) {
		s.Loading = false
		s.Err = nil
		s.LastSync = now
	})
	log.Info("resource refreshed")
	return nil
}

func (o *Orchestrator) fetchAndReplace(ctx context.Context, d Descriptor) error {
	if d.Fetch == nil {
		return fmt.Errorf("resource %s has no fetch function", d.Key)
	}

	rows, err := d.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", d.Key, err)
	}
	if d.Transform != nil {
		if rows, err = d.Transform(rows); err != nil {
			return fmt.Errorf("transform %s: %w", d.Key, err)
		}
	}

	recs := make([]record.Record, 0, len(rows))
	for _, row := range rows {
		rec, ok := fromRow(d.Key, row)
		if !ok {
			o.log.Warn("skipping row without id", "resource", d.Key)
			continue
		}
		recs = append(recs, rec)
	}

	if err := o.store.Replace(ctx, d.Key, recs, o.clock.Now()); err != nil {
		return record.Persistence("replace "+d.Key, err)
	}
	return nil
}

// View запускает обновление при необходимости и возвращает локальные данные.
// Ошибка обновления не делает View неуспешным: она видна в снимке.
func (o *Orchestrator) View(ctx context.Context, key string) (View, error) {
	if _, err := o.Refresh(ctx, key, false); err != nil && errors.Is(err, ErrUnknownResource) {
		return View{}, err
	}

	recs, err := o.store.GetAll(ctx, key)
	if err != nil {
		return View{}, record.Persistence("read "+key, err)
	}

	snap := o.Snapshot(key)
	if snap.LastSync.IsZero() {
		if last, ok, err := o.store.LastSync(ctx, key); err == nil && ok {
			snap.LastSync = last
		}
	}
	return View{Records: recs, Snapshot: snap}, nil
}

// RefreshAll обновляет все ресурсы по очереди с паузой между вызовами.
// Возвращает ошибки по ключам.
func (o *Orchestrator) RefreshAll(ctx context.Context, force bool) map[string]error {
	errs := make(map[string]error)
	for _, key := range o.Keys() {
		if err := o.limiter.Wait(ctx); err != nil {
			errs[key] = err
			continue
		}
		if _, err := o.Refresh(ctx, key, force); err != nil {
			errs[key] = err
		}
	}
	return errs
}

// RefreshParallel обновляет независимые ресурсы одновременно. Возвращает первую ошибку.
func (o *Orchestrator) RefreshParallel(ctx context.Context, force bool, keys ...string) error {
	if len(keys) == 0 {
		keys = o.Keys()
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, key := range keys {
		g.Go(func() error {
			_, err := o.Refresh(gctx, key, force)
			return err
		})
	}
	return g.Wait()
}

// Snapshot текущее состояние синхронизации ключа.
func (o *Orchestrator) Snapshot(key string) Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snapshots[key]
}

func (o *Orchestrator) descriptor(key string) (Descriptor, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	d, ok := o.descriptors[key]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownResource, key)
	}
	return d, nil
}

func (o *Orchestrator) update(key string, fn func(s *Snapshot)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.snapshots[key]
	fn(&s)
	o.snapshots[key] = s
}

func fromRow(key string, row map[string]any) (record.Record, bool) {
	id, ok := rowID(row["id"])
	if !ok {
		return record.Record{}, false
	}
	fields := record.CloneFields(row)
	delete(fields, "id")

	return record.Record{
		ServerID: &id,
		Resource: key,
		Kind:     record.Kind(key),
		Fields:   fields,
		Meta: record.SyncMetadata{
			SyncStatus: true,
			SyncReason: record.ReasonFetched,
			SyncType:   record.SyncTypeFetch,
		},
	}, true
}

func rowID(v any) (int64, bool) {
	f, ok := record.Normalize(v).(float64)
	if !ok || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}
