package optimistic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fieldsync/internal/app/client/store"
	"fieldsync/internal/domain/record"

	"golang.org/x/exp/slog"
)

const defaultRemoteTimeout = 15 * time.Second

// Remove возвращается из ChangeFunc, когда запись нужно удалить локально
var Remove = errors.New("remove record")

// ErrNotSynced запись еще не подтверждена сервером, изменять ее на сервере нечего
var ErrNotSynced = errors.New("record is not synced yet")

// ChangeFunc изменяет копию записи перед сохранением
type ChangeFunc func(rec *record.Record) error

// Mutation обратимое изменение синхронизированной записи
type Mutation struct {
	Resource string
	ID       int64
	Change   ChangeFunc
	Remote   func(ctx context.Context) error
	// Refresh запускается в фоне после успешного удаленного вызова
	Refresh func(ctx context.Context) error
}

// MutationError удаленный вызов не удался, локальная запись восстановлена
type MutationError struct {
	Resource   string
	ID         int64
	Err        error
	RestoreErr error
}

func (e *MutationError) Error() string {
	if e.RestoreErr != nil {
		return fmt.Sprintf("mutation of %s/%d failed: %v (restore failed: %v)", e.Resource, e.ID, e.Err, e.RestoreErr)
	}
	return fmt.Sprintf("mutation of %s/%d failed and was rolled back: %v", e.Resource, e.ID, e.Err)
}

func (e *MutationError) Unwrap() []error {
	if e.RestoreErr != nil {
		return []error{e.Err, e.RestoreErr}
	}
	return []error{e.Err}
}

// Mutator применяет изменение локально до ответа сервера и откатывает его при ошибке.
type Mutator struct {
	store   store.Store
	timeout time.Duration
	log     *slog.Logger

	mu    sync.Mutex
	locks map[string]*recordLock
}

type recordLock struct {
	sync.Mutex
	refs int
}

func NewMutator(s store.Store, timeout time.Duration, log *slog.Logger) *Mutator {
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}
	return &Mutator{
		store:   s,
		timeout: timeout,
		log:     log.With("component", "optimistic"),
		locks:   make(map[string]*recordLock),
	}
}

// Apply снимает копию записи, применяет изменение, вызывает сервер
// и при ошибке восстанавливает запись из копии в точности.
// Изменения одной записи выполняются по очереди.
func (m *Mutator) Apply(ctx context.Context, mut Mutation) (record.Record, error) {
	unlock := m.lock(fmt.Sprintf("%s/%d", mut.Resource, mut.ID))
	defer unlock()

	snapshot, err := m.store.Get(ctx, mut.Resource, mut.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return record.Record{}, err
		}
		return record.Record{}, record.Persistence("load "+mut.Resource, err)
	}
	if !snapshot.Meta.SyncStatus {
		return snapshot, fmt.Errorf("%s/%d: %w", mut.Resource, mut.ID, ErrNotSynced)
	}

	next := snapshot.Clone()
	removed := false
	if err := mut.Change(&next); err != nil {
		if !errors.Is(err, Remove) {
			return snapshot, err
		}
		removed = true
	}

	if removed {
		err = m.store.Delete(ctx, mut.Resource, snapshot.LocalID)
	} else {
		err = m.store.Put(ctx, next)
	}
	if err != nil {
		return snapshot, record.Persistence("apply "+mut.Resource, err)
	}

	log := m.log.With("resource", mut.Resource, "id", mut.ID)

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()

	if err := mut.Remote(callCtx); err != nil {
		mutErr := &MutationError{Resource: mut.Resource, ID: mut.ID, Err: err}
		if rerr := m.store.Put(context.WithoutCancel(ctx), snapshot); rerr != nil {
			mutErr.RestoreErr = record.Persistence("restore "+mut.Resource, rerr)
			log.Error("failed to restore record after remote failure", "error", rerr)
		}
		log.Warn("optimistic change rolled back", "error", err)
		return snapshot, mutErr
	}

	if mut.Refresh != nil {
		go func() {
			refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
			defer cancel()
			if err := mut.Refresh(refreshCtx); err != nil {
				log.Warn("refresh after mutation failed", "error", err)
			}
		}()
	}

	if removed {
		return record.Record{}, nil
	}
	return next, nil
}

func (m *Mutator) lock(key string) func() {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &recordLock{}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, key)
		}
		m.mu.Unlock()
	}
}
