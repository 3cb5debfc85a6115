package submission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fieldsync/internal/app/client/remote"
	"fieldsync/internal/app/client/store"
	"fieldsync/internal/domain/record"
	"fieldsync/internal/utils/clock"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/exp/slog"
)

const defaultDeliveryTimeout = 30 * time.Second

var ErrDeliveryInFlight = errors.New("delivery already in flight")

// Remote создание записи на сервере
type Remote interface {
	Create(ctx context.Context, kind record.Kind, fields map[string]any, idempotencyKey string) (remote.CreateResult, error)
}

// Checker проверка дубликатов перед сохранением
type Checker interface {
	Check(ctx context.Context, env record.Envelope) error
}

// Connectivity текущее состояние сети
type Connectivity interface {
	Online() bool
}

// Outcome результат отправки: запись сохранена всегда, Synced - принята ли сервером
type Outcome struct {
	Record record.Record
	Synced bool
	Reason string
	Err    error
}

type Config struct {
	DeviceID        string
	DeliveryTimeout time.Duration
	DefaultPolicy   Policy
	Policies        map[string]Policy
	References      []record.Reference
}

// Manager сначала сохраняет запись локально, затем пытается доставить ее на сервер.
type Manager struct {
	store     store.Store
	validator record.Validator
	guard     Checker
	remote    Remote
	network   Connectivity
	clock     clock.Clock
	log       *slog.Logger
	cfg       Config

	mu       sync.Mutex
	inflight map[string]struct{}
	// проверка дубликатов и сохранение идут под одной блокировкой ресурса
	admit map[string]*sync.Mutex
}

func NewManager(
	s store.Store,
	validator record.Validator,
	guard Checker,
	r Remote,
	network Connectivity,
	c clock.Clock,
	cfg Config,
	log *slog.Logger,
) *Manager {
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = defaultDeliveryTimeout
	}
	if cfg.DefaultPolicy.MaxAttempts == 0 {
		cfg.DefaultPolicy = DefaultPolicy()
	}
	if c == nil {
		c = clock.Real{}
	}
	return &Manager{
		store:     s,
		validator: validator,
		guard:     guard,
		remote:    r,
		network:   network,
		clock:     c,
		log:       log.With("component", "submission"),
		cfg:       cfg,
		inflight:  make(map[string]struct{}),
		admit:     make(map[string]*sync.Mutex),
	}
}

// Submit принимает новую запись от пользователя actor.
// Ошибки сервера не возвращаются, они попадают в Outcome и метаданные записи.
// Возвращаются только ErrInvalidEnvelope, *DuplicateSubmissionError и LocalPersistenceError.
func (m *Manager) Submit(ctx context.Context, env record.Envelope, actor int64) (Outcome, error) {
	if err := m.validator.Validate(env); err != nil {
		return Outcome{}, err
	}

	resource := env.Kind.Resource()
	rec, err := m.admitRecord(ctx, resource, env, actor)
	if err != nil {
		return Outcome{}, err
	}

	log := m.log.With("kind", env.Kind, "local_id", rec.LocalID)
	log.Info("submission saved locally")

	if !m.network.Online() {
		log.Info("offline, submission left pending")
		return Outcome{Record: rec, Reason: record.ReasonNewRecord, Err: record.ErrNetworkUnavailable}, nil
	}

	return m.Deliver(ctx, resource, rec.LocalID)
}

// admitRecord проверяет дубликаты и сохраняет запись, не давая параллельному Submit вклиниться между шагами.
func (m *Manager) admitRecord(ctx context.Context, resource string, env record.Envelope, actor int64) (record.Record, error) {
	lock := m.admitLock(resource)
	lock.Lock()
	defer lock.Unlock()

	if m.guard != nil {
		if err := m.guard.Check(ctx, env); err != nil {
			return record.Record{}, err
		}
	}

	rec := record.Record{
		Resource: resource,
		Kind:     env.Kind,
		Fields:   record.CloneFields(env.Fields),
		Meta: record.SyncMetadata{
			SyncStatus:      false,
			SyncReason:      record.ReasonNewRecord,
			SyncAttempts:    0,
			SubmittedAt:     m.clock.Now(),
			CreatedByUserID: actor,
			SyncType:        record.SyncTypeCreate,
		},
	}
	if err := m.store.Create(ctx, resource, &rec); err != nil {
		err = record.Persistence("save submission", err)
		m.log.Error("failed to persist submission", "kind", env.Kind, "error", err)
		return record.Record{}, err
	}
	return rec, nil
}

// Deliver отправляет сохраненную запись и записывает результат в хранилище.
// Вызов не отменяется вместе с ctx: доставку ограничивает только собственный таймаут.
func (m *Manager) Deliver(ctx context.Context, resource string, localID int64) (Outcome, error) {
	key := fmt.Sprintf("%s/%d", resource, localID)
	if !m.acquire(key) {
		return Outcome{}, ErrDeliveryInFlight
	}
	defer m.release(key)

	ctx = context.WithoutCancel(ctx)
	log := m.log.With("resource", resource, "local_id", localID)

	rec, err := m.store.GetLocal(ctx, resource, localID)
	if err != nil {
		return Outcome{}, record.Persistence("load submission", err)
	}
	if rec.Meta.SyncStatus {
		return Outcome{Record: rec, Synced: true, Reason: rec.Meta.SyncReason}, nil
	}

	idempotencyKey := fmt.Sprintf("%s:%s:%d", m.cfg.DeviceID, resource, localID)
	policy := m.policy(resource)

	var (
		created    remote.CreateResult
		lastRemote error
		persistErr error
	)

	operation := func() error {
		callCtx, cancel := context.WithTimeout(ctx, m.cfg.DeliveryTimeout)
		defer cancel()

		res, err := m.remote.Create(callCtx, rec.Kind, rec.Fields, idempotencyKey)
		if err == nil {
			created = res
			return nil
		}

		lastRemote = err
		failed, ferr := m.store.RecordFailure(ctx, resource, localID, err.Error(), m.clock.Now())
		if ferr != nil {
			persistErr = record.Persistence("record failure", ferr)
			return backoff.Permanent(persistErr)
		}
		rec = failed

		var remoteErr *record.RemoteError
		if errors.As(err, &remoteErr) && !remoteErr.Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		log.Debug("delivery failed, retrying", "error", err, "wait", wait)
	}

	if err := backoff.RetryNotify(operation, policy.backOff(ctx), notify); err != nil {
		if persistErr != nil {
			log.Error("failed to record delivery failure", "error", persistErr)
			return Outcome{Record: rec, Reason: rec.Meta.SyncReason, Err: lastRemote}, persistErr
		}
		log.Warn("delivery failed", "error", lastRemote, "attempts", rec.Meta.SyncAttempts)
		return Outcome{Record: rec, Reason: rec.Meta.SyncReason, Err: lastRemote}, nil
	}

	accepted, err := m.store.AcceptRemote(ctx, resource, localID, created.ID, created.Fields, m.cfg.References, m.clock.Now())
	if err != nil {
		err = record.Persistence("accept remote id", err)
		log.Error("server accepted submission but local update failed", "server_id", created.ID, "error", err)
		if failed, ferr := m.store.RecordFailure(ctx, resource, localID, err.Error(), m.clock.Now()); ferr != nil {
			log.Error("failed to record delivery attempt", "error", ferr)
		} else {
			rec = failed
		}
		return Outcome{Record: rec, Reason: rec.Meta.SyncReason}, err
	}

	log.Info("submission synced", "server_id", created.ID)
	return Outcome{Record: accepted, Synced: true, Reason: accepted.Meta.SyncReason}, nil
}

func (m *Manager) policy(resource string) Policy {
	if p, ok := m.cfg.Policies[resource]; ok && p.MaxAttempts > 0 {
		return p
	}
	return m.cfg.DefaultPolicy
}

func (m *Manager) admitLock(resource string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.admit[resource]
	if !ok {
		lock = new(sync.Mutex)
		m.admit[resource] = lock
	}
	return lock
}

func (m *Manager) acquire(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inflight[key]; busy {
		return false
	}
	m.inflight[key] = struct{}{}
	return true
}

func (m *Manager) release(key string) {
	m.mu.Lock()
	delete(m.inflight, key)
	m.mu.Unlock()
}
