package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"fieldsync/internal/app/client/store"
	"fieldsync/internal/app/client/submission"
	"fieldsync/internal/domain/record"
	"fieldsync/internal/utils/clock"

	"golang.org/x/exp/slog"
)

var ErrReconcileInProgress = errors.New("reconcile already in progress")

// Deliverer доставка одной сохраненной записи
type Deliverer interface {
	Deliver(ctx context.Context, resource string, localID int64) (submission.Outcome, error)
}

// Network состояние сети и подписка на переход в online
type Network interface {
	Online() bool
	OnOnline(cb func()) (unsubscribe func())
}

// Result итог одного прохода
type Result struct {
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Stats накопленная статистика прохода синхронизатора
type Stats struct {
	TotalRuns   int       `json:"total_runs"`
	TotalSynced int       `json:"total_synced"`
	TotalFailed int       `json:"total_failed"`
	LastRun     time.Time `json:"last_run"`
	LastSuccess time.Time `json:"last_success"`
	LastResult  Result    `json:"last_result"`
	LastError   string    `json:"last_error,omitempty"`
	InProgress  bool      `json:"in_progress"`
}

// Reconciler повторяет доставку неотправленных записей текущего пользователя.
// Записи обрабатываются строго по очереди, проходы не пересекаются.
type Reconciler struct {
	store     store.Store
	deliverer Deliverer
	network   Network
	clock     clock.Clock
	log       *slog.Logger
	resources []string
	actor     func() int64
	interval  time.Duration

	mu        sync.Mutex
	isSyncing bool
	stats     Stats

	trigger chan struct{}
}

type Config struct {
	// Resources коллекции, в которых лежат отправки пользователя
	Resources []string
	// Actor возвращает id текущего пользователя
	Actor func() int64
	// Interval период фонового прохода; 0 отключает таймер
	Interval time.Duration
}

func New(s store.Store, d Deliverer, n Network, c clock.Clock, cfg Config, log *slog.Logger) *Reconciler {
	if c == nil {
		c = clock.Real{}
	}
	resources := cfg.Resources
	if len(resources) == 0 {
		for _, k := range record.Kinds() {
			resources = append(resources, k.Resource())
		}
	}
	return &Reconciler{
		store:     s,
		deliverer: d,
		network:   n,
		clock:     c,
		log:       log.With("component", "reconciler"),
		resources: resources,
		actor:     cfg.Actor,
		interval:  cfg.Interval,
		trigger:   make(chan struct{}, 1),
	}
}

// Reconcile выполняет один проход по неотправленным записям.
// Ошибка доставки отдельной записи учитывается в Result и не прерывает проход.
func (r *Reconciler) Reconcile(ctx context.Context) (Result, error) {
	if !r.network.Online() {
		return Result{}, record.ErrNetworkUnavailable
	}

	r.mu.Lock()
	if r.isSyncing {
		r.mu.Unlock()
		return Result{}, ErrReconcileInProgress
	}
	r.isSyncing = true
	r.mu.Unlock()

	var (
		result Result
		runErr error
	)
	defer func() {
		r.finish(result, runErr)
	}()

	actor := r.currentActor()
	log := r.log.With("actor", actor)
	log.Debug("reconcile started")

	for _, resource := range r.resources {
		pending, err := r.store.GetByQuery(ctx, resource, store.Pending(actor))
		if err != nil {
			runErr = record.Persistence("query pending "+resource, err)
			log.Error("failed to load pending records", "resource", resource, "error", runErr)
			return result, runErr
		}

		for _, rec := range pending {
			if err := ctx.Err(); err != nil {
				runErr = err
				return result, err
			}
			if !r.network.Online() {
				result.Skipped++
				continue
			}

			out, err := r.deliverer.Deliver(ctx, resource, rec.LocalID)
			switch {
			case errors.Is(err, submission.ErrDeliveryInFlight):
				result.Skipped++
			case err != nil:
				result.Failed++
				log.Error("delivery failed locally", "resource", resource, "local_id", rec.LocalID, "error", err)
			case out.Synced:
				result.Synced++
			default:
				result.Failed++
				log.Debug("record still pending", "resource", resource, "local_id", rec.LocalID, "reason", out.Reason)
			}
		}
	}

	log.Info("reconcile finished", "synced", result.Synced, "failed", result.Failed, "skipped", result.Skipped)
	return result, nil
}

// Trigger просит фоновый цикл выполнить проход как можно скорее ("синхронизировать сейчас").
func (r *Reconciler) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Run фоновый цикл: проход при появлении сети, по Trigger и по таймеру.
func (r *Reconciler) Run(ctx context.Context) {
	unsubscribe := r.network.OnOnline(r.Trigger)
	defer unsubscribe()

	var tick <-chan time.Time
	if r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	r.log.Info("background sync started", "interval", r.interval)
	if r.network.Online() {
		r.Trigger()
	}

	for {
		select {
		case <-ctx.Done():
			r.log.Info("background sync stopped")
			return
		case <-r.trigger:
			r.runOnce(ctx)
		case <-tick:
			r.runOnce(ctx)
		}
	}
}

func (r *Reconciler) runOnce(ctx context.Context) {
	_, err := r.Reconcile(ctx)
	switch {
	case err == nil:
	case errors.Is(err, record.ErrNetworkUnavailable):
		r.log.Debug("skipping reconcile, offline")
	case errors.Is(err, ErrReconcileInProgress):
		r.log.Debug("skipping reconcile, already running")
	default:
		r.log.Error("reconcile failed", "error", err)
	}
}

// Stats возвращает копию накопленной статистики.
func (r *Reconciler) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats
	s.InProgress = r.isSyncing
	return s
}

func (r *Reconciler) finish(result Result, err error) {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.isSyncing = false
	r.stats.TotalRuns++
	r.stats.TotalSynced += result.Synced
	r.stats.TotalFailed += result.Failed
	r.stats.LastRun = now
	r.stats.LastResult = result
	if err != nil {
		r.stats.LastError = err.Error()
		return
	}
	r.stats.LastError = ""
	if result.Failed == 0 {
		r.stats.LastSuccess = now
	}
}

func (r *Reconciler) currentActor() int64 {
	if r.actor == nil {
		return 0
	}
	return r.actor()
}
