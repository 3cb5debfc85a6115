package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"fieldsync/internal/domain/record"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrServerIDConflict другая локальная запись уже указывает на этот серверный id
	ErrServerIDConflict = errors.New("server id already bound to another record")
)

// Store абстрактное долговременное хранилище записей на устройстве.
//
// Полезная нагрузка и метаданные синхронизации лежат в одной строке,
// каждая запись выполняется одним оператором или одной транзакцией.
type Store interface {
	GetAll(ctx context.Context, resource string) ([]record.Record, error)
	GetByQuery(ctx context.Context, resource string, q Query) ([]record.Record, error)
	// Get ищет запись по публичному идентификатору: отрицательный id адресует
	// неподтвержденную запись по local_id, положительный ищется среди server_id
	Get(ctx context.Context, resource string, id int64) (record.Record, error)
	GetLocal(ctx context.Context, resource string, localID int64) (record.Record, error)

	// Create выделяет local_id в той же транзакции и записывает его в rec
	Create(ctx context.Context, resource string, rec *record.Record) error
	BatchCreate(ctx context.Context, resource string, recs []record.Record) error
	Update(ctx context.Context, resource string, localID int64, patch record.Patch) (record.Record, error)
	// Put вставляет или полностью перезаписывает запись с тем же local_id
	Put(ctx context.Context, rec record.Record) error
	Delete(ctx context.Context, resource string, localID int64) error
	DeleteAll(ctx context.Context, resource string) error

	// Replace атомарно заменяет серверные строки ресурса и время последней синхронизации.
	// Неотправленные локальные записи сохраняются.
	Replace(ctx context.Context, resource string, recs []record.Record, syncedAt time.Time) error
	LastSync(ctx context.Context, resource string) (time.Time, bool, error)

	// AcceptRemote переводит запись в SYNCED: смена идентификатора, слияние канонических полей,
	// метаданные и перевод ссылок выполняются в одной транзакции.
	// Справочная (fetch) копия того же server_id удаляется, другая create-запись с ним дает ErrServerIDConflict.
	AcceptRemote(ctx context.Context, resource string, localID, serverID int64, fields map[string]any, refs []record.Reference, at time.Time) (record.Record, error)
	// RecordFailure фиксирует неудачную попытку: sync_attempts+1, причина и время.
	RecordFailure(ctx context.Context, resource string, localID int64, reason string, at time.Time) (record.Record, error)

	Close() error
}

// Query конъюнкция предикатов равенства.
// Поля сравниваются с учетом числовых типов, nil-предикаты метаданных не проверяются.
type Query struct {
	Fields     map[string]any
	SyncStatus *bool
	CreatedBy  *int64
	SyncType   record.SyncType
}

// Pending запрос неотправленных записей, созданных пользователем на устройстве
func Pending(actor int64) Query {
	synced := false
	return Query{
		SyncStatus: &synced,
		CreatedBy:  &actor,
		SyncType:   record.SyncTypeCreate,
	}
}

// Match проверяет запись на соответствие запросу.
func (q Query) Match(rec record.Record) bool {
	if q.SyncStatus != nil && rec.Meta.SyncStatus != *q.SyncStatus {
		return false
	}
	if q.CreatedBy != nil && rec.Meta.CreatedByUserID != *q.CreatedBy {
		return false
	}
	if q.SyncType != "" && rec.Meta.SyncType != q.SyncType {
		return false
	}
	for name, want := range q.Fields {
		got, ok := rec.Fields[name]
		if !ok || !record.Equal(got, want) {
			return false
		}
	}
	return true
}

// mergeFields накладывает src поверх dst; ключ "id" сервера не копируется в поля.
func mergeFields(dst, src map[string]any) map[string]any {
	out := record.CloneFields(dst)
	if out == nil {
		out = make(map[string]any, len(src))
	}
	for k, v := range src {
		if k == "id" {
			continue
		}
		out[k] = v
	}
	return out
}

func sortByLocalID(recs []record.Record) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].LocalID < recs[j].LocalID })
}
