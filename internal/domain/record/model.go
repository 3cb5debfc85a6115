package record

import (
	"encoding/json"
	"reflect"
	"time"
)

// SyncType откуда появилась запись в локальном хранилище
type SyncType string

const (
	// SyncTypeCreate запись создана агентом на устройстве
	SyncTypeCreate SyncType = "create"
	// SyncTypeFetch справочная запись, полученная с сервера
	SyncTypeFetch SyncType = "fetch"
)

const (
	ReasonNewRecord = "New record"
	ReasonSynced    = "Successfully synced"
	ReasonFetched   = "Fetched from server"
)

// State состояние записи в жизненном цикле синхронизации
type State string

const (
	StateLocalPending    State = "LOCAL_PENDING"
	StateFailedRetryable State = "FAILED_RETRYABLE"
	StateSynced          State = "SYNCED"
)

// SyncMetadata метаданные синхронизации, хранятся вместе с полезной нагрузкой
type SyncMetadata struct {
	SyncStatus      bool      `json:"sync_status"`
	SyncReason      string    `json:"sync_reason"`
	SyncAttempts    uint      `json:"sync_attempts"`
	LastSyncAttempt time.Time `json:"last_sync_attempt"`
	SubmittedAt     time.Time `json:"submitted_at"`
	CreatedByUserID int64     `json:"created_by_user_id"`
	SyncType        SyncType  `json:"sync_type"`
}

// Envelope конверт с типом и полями, который принимает движок синхронизации
type Envelope struct {
	Kind   Kind           `json:"kind"`
	Fields map[string]any `json:"fields"`
}

// Record запись в локальном хранилище.
//
// Пока сервер не подтвердил запись, ее публичный идентификатор равен -LocalID,
// поэтому он не пересекается с серверными id. После подтверждения им становится ServerID.
type Record struct {
	LocalID  int64          `json:"local_id"`
	ServerID *int64         `json:"server_id,omitempty"`
	Resource string         `json:"resource"`
	Kind     Kind           `json:"kind"`
	Fields   map[string]any `json:"fields"`
	Meta     SyncMetadata   `json:"meta"`
}

// ID возвращает текущий публичный идентификатор записи.
func (r Record) ID() int64 {
	if r.ServerID != nil {
		return *r.ServerID
	}
	return PendingID(r.LocalID)
}

// PendingID публичный идентификатор неподтвержденной записи с данным local_id.
func PendingID(localID int64) int64 {
	return -localID
}

// IsPendingID сообщает, что id адресует неподтвержденную запись.
func IsPendingID(id int64) bool {
	return id < 0
}

// State вычисляет состояние записи по ее метаданным.
func (r Record) State() State {
	switch {
	case r.Meta.SyncStatus:
		return StateSynced
	case r.Meta.SyncAttempts > 0:
		return StateFailedRetryable
	default:
		return StateLocalPending
	}
}

// Envelope возвращает конверт с копией полей записи.
func (r Record) Envelope() Envelope {
	return Envelope{Kind: r.Kind, Fields: CloneFields(r.Fields)}
}

// Clone возвращает глубокую копию записи.
func (r Record) Clone() Record {
	out := r
	if r.ServerID != nil {
		id := *r.ServerID
		out.ServerID = &id
	}
	out.Fields = CloneFields(r.Fields)
	return out
}

// Patch частичное обновление записи
type Patch struct {
	Fields map[string]any
	Meta   *SyncMetadata
}

// Reference описывает поле в записях Resource, которое ссылается на записи Target.
// При замене идентификатора все такие ссылки переводятся на новый id.
type Reference struct {
	Resource string `mapstructure:"resource" json:"resource"`
	Field    string `mapstructure:"field" json:"field"`
	Target   string `mapstructure:"target" json:"target"`
}

// CloneFields делает глубокую копию произвольных JSON-совместимых полей.
func CloneFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneFields(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case json.RawMessage:
		out := make(json.RawMessage, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}

// Normalize приводит числовые значения к float64, как после json.Unmarshal.
// Используется для сравнения полей естественного ключа.
func Normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	default:
		return v
	}
}

// Equal сравнивает два значения поля с учетом числовых типов.
func Equal(a, b any) bool {
	return reflect.DeepEqual(Normalize(a), Normalize(b))
}
