package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fieldsync/internal/domain/record"
)

// Memory хранилище в памяти процесса, для тестов и временных сессий
type Memory struct {
	mu       sync.RWMutex
	records  map[string]map[int64]record.Record
	lastSync map[string]time.Time
	seq      int64
	closed   bool
}

func NewMemory() *Memory {
	return &Memory{
		records:  make(map[string]map[int64]record.Record),
		lastSync: make(map[string]time.Time),
	}
}

func (m *Memory) GetAll(ctx context.Context, resource string) ([]record.Record, error) {
	return m.GetByQuery(ctx, resource, Query{})
}

func (m *Memory) GetByQuery(_ context.Context, resource string, q Query) ([]record.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.check(); err != nil {
		return nil, err
	}

	out := make([]record.Record, 0, len(m.records[resource]))
	for _, rec := range m.records[resource] {
		if q.Match(rec) {
			out = append(out, rec.Clone())
		}
	}
	sortByLocalID(out)
	return out, nil
}

func (m *Memory) Get(_ context.Context, resource string, id int64) (record.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.check(); err != nil {
		return record.Record{}, err
	}

	if record.IsPendingID(id) {
		rec, ok := m.records[resource][-id]
		if !ok || rec.ServerID != nil {
			return record.Record{}, ErrNotFound
		}
		return rec.Clone(), nil
	}
	for _, rec := range m.records[resource] {
		if rec.ServerID != nil && *rec.ServerID == id {
			return rec.Clone(), nil
		}
	}
	return record.Record{}, ErrNotFound
}

func (m *Memory) GetLocal(_ context.Context, resource string, localID int64) (record.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.check(); err != nil {
		return record.Record{}, err
	}

	rec, ok := m.records[resource][localID]
	if !ok {
		return record.Record{}, ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *Memory) Create(_ context.Context, resource string, rec *record.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return err
	}

	stored := rec.Clone()
	stored.Resource = resource
	if err := m.checkServerID(stored, 0); err != nil {
		return err
	}

	m.seq++
	stored.LocalID = m.seq
	m.bucket(resource)[stored.LocalID] = stored
	rec.LocalID = stored.LocalID
	rec.Resource = resource
	return nil
}

func (m *Memory) BatchCreate(_ context.Context, resource string, recs []record.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return err
	}
	return m.insertAll(resource, recs)
}

func (m *Memory) Update(_ context.Context, resource string, localID int64, patch record.Patch) (record.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return record.Record{}, err
	}

	rec, ok := m.records[resource][localID]
	if !ok {
		return record.Record{}, ErrNotFound
	}
	if patch.Fields != nil {
		rec.Fields = mergeFields(rec.Fields, record.CloneFields(patch.Fields))
	}
	if patch.Meta != nil {
		rec.Meta = *patch.Meta
	}
	m.records[resource][localID] = rec
	return rec.Clone(), nil
}

func (m *Memory) Put(_ context.Context, rec record.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return err
	}

	stored := rec.Clone()
	if stored.LocalID == 0 {
		m.seq++
		stored.LocalID = m.seq
	}
	if err := m.checkServerID(stored, stored.LocalID); err != nil {
		return err
	}
	if stored.LocalID > m.seq {
		m.seq = stored.LocalID
	}
	m.bucket(stored.Resource)[stored.LocalID] = stored
	return nil
}

func (m *Memory) Delete(_ context.Context, resource string, localID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return err
	}
	if _, ok := m.records[resource][localID]; !ok {
		return ErrNotFound
	}
	delete(m.records[resource], localID)
	return nil
}

func (m *Memory) DeleteAll(_ context.Context, resource string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return err
	}
	delete(m.records, resource)
	return nil
}

func (m *Memory) Replace(_ context.Context, resource string, recs []record.Record, syncedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return err
	}

	// изменения применяются к копии, чтобы ошибка не оставила ресурс частично замененным
	prev := m.records[resource]
	prevSeq := m.seq
	kept := make(map[int64]record.Record, len(prev))
	for id, rec := range prev {
		if !rec.Meta.SyncStatus {
			kept[id] = rec
		}
	}
	m.records[resource] = kept

	if err := m.insertAll(resource, recs); err != nil {
		m.records[resource] = prev
		m.seq = prevSeq
		return err
	}
	m.lastSync[resource] = syncedAt
	return nil
}

func (m *Memory) LastSync(_ context.Context, resource string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.check(); err != nil {
		return time.Time{}, false, err
	}
	at, ok := m.lastSync[resource]
	return at, ok, nil
}

func (m *Memory) AcceptRemote(_ context.Context, resource string, localID, serverID int64, fields map[string]any, refs []record.Reference, at time.Time) (record.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return record.Record{}, err
	}

	rec, ok := m.records[resource][localID]
	if !ok {
		return record.Record{}, ErrNotFound
	}
	if rec.Meta.SyncStatus {
		return rec.Clone(), nil
	}

	candidate := rec
	candidate.ServerID = &serverID
	var absorbed []int64
	for id, other := range m.records[resource] {
		if id != localID && other.Meta.SyncType == record.SyncTypeFetch &&
			other.ServerID != nil && *other.ServerID == serverID {
			absorbed = append(absorbed, id)
		}
	}
	for _, id := range absorbed {
		delete(m.records[resource], id)
	}
	if err := m.checkServerID(candidate, localID); err != nil {
		return record.Record{}, err
	}

	oldID := rec.ID()
	rec.ServerID = &serverID
	rec.Fields = mergeFields(rec.Fields, fields)
	rec.Meta.SyncStatus = true
	rec.Meta.SyncReason = record.ReasonSynced
	rec.Meta.SyncAttempts++
	rec.Meta.LastSyncAttempt = at
	m.records[resource][localID] = rec

	for _, ref := range refs {
		if ref.Target != resource {
			continue
		}
		for id, other := range m.records[ref.Resource] {
			v, ok := other.Fields[ref.Field]
			if !ok || !sameID(v, oldID) {
				continue
			}
			other.Fields = record.CloneFields(other.Fields)
			other.Fields[ref.Field] = serverID
			m.records[ref.Resource][id] = other
		}
	}

	return rec.Clone(), nil
}

func (m *Memory) RecordFailure(_ context.Context, resource string, localID int64, reason string, at time.Time) (record.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(); err != nil {
		return record.Record{}, err
	}

	rec, ok := m.records[resource][localID]
	if !ok {
		return record.Record{}, ErrNotFound
	}
	if rec.Meta.SyncStatus {
		return rec.Clone(), nil
	}
	rec.Meta.SyncReason = reason
	rec.Meta.SyncAttempts++
	rec.Meta.LastSyncAttempt = at
	m.records[resource][localID] = rec
	return rec.Clone(), nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *Memory) check() error {
	if m.closed {
		return fmt.Errorf("memory store is closed")
	}
	return nil
}

func (m *Memory) bucket(resource string) map[int64]record.Record {
	b, ok := m.records[resource]
	if !ok {
		b = make(map[int64]record.Record)
		m.records[resource] = b
	}
	return b
}

func (m *Memory) insertAll(resource string, recs []record.Record) error {
	staged := make([]record.Record, 0, len(recs))
	seen := make(map[int64]struct{}, len(recs))
	for _, rec := range recs {
		stored := rec.Clone()
		stored.Resource = resource
		if stored.ServerID != nil {
			if _, dup := seen[*stored.ServerID]; dup {
				return fmt.Errorf("%w: %s/%d", ErrServerIDConflict, resource, *stored.ServerID)
			}
			seen[*stored.ServerID] = struct{}{}
		}
		if err := m.checkServerID(stored, 0); err != nil {
			return err
		}
		staged = append(staged, stored)
	}

	b := m.bucket(resource)
	for _, stored := range staged {
		m.seq++
		stored.LocalID = m.seq
		b[stored.LocalID] = stored
	}
	return nil
}

// checkServerID проверяет уникальность (resource, server_id), исключая запись self.
func (m *Memory) checkServerID(rec record.Record, self int64) error {
	if rec.ServerID == nil {
		return nil
	}
	for id, other := range m.records[rec.Resource] {
		if id == self || other.ServerID == nil {
			continue
		}
		if *other.ServerID == *rec.ServerID {
			return fmt.Errorf("%w: %s/%d", ErrServerIDConflict, rec.Resource, *rec.ServerID)
		}
	}
	return nil
}

// sameID сравнивает значение поля-ссылки с идентификатором, допуская строковую запись числа.
func sameID(v any, id int64) bool {
	if s, ok := v.(string); ok {
		return s == fmt.Sprint(id)
	}
	return record.Equal(v, id)
}
