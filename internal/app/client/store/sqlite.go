package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fieldsync/internal/domain/record"

	"github.com/golang-migrate/migrate/v4"
	sqlite3migrate "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrations embed.FS

const recordColumns = `local_id, server_id, resource, kind, fields, sync_status, sync_reason,
	sync_attempts, last_sync_attempt, submitted_at, created_by_user_id, sync_type`

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// SQLite хранилище на файле SQLite; схема накатывается встроенными миграциями
type SQLite struct {
	db *sql.DB
}

// NewSQLite открывает базу по пути path (":memory:" для временной базы) и применяет миграции.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// одно соединение: для :memory: каждое новое соединение видело бы пустую базу
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite database: %w", err)
	}

	return s, nil
}

func (s *SQLite) migrate() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}
	driver, err := sqlite3migrate.WithInstance(s.db, &sqlite3migrate.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return err
	}
	// m.Close() закрыл бы и s.db, поэтому закрываем только источник
	defer src.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (s *SQLite) GetAll(ctx context.Context, resource string) ([]record.Record, error) {
	return s.GetByQuery(ctx, resource, Query{})
}

func (s *SQLite) GetByQuery(ctx context.Context, resource string, q Query) ([]record.Record, error) {
	where := []string{"resource = ?"}
	args := []any{resource}

	if q.SyncStatus != nil {
		where = append(where, "sync_status = ?")
		args = append(args, *q.SyncStatus)
	}
	if q.CreatedBy != nil {
		where = append(where, "created_by_user_id = ?")
		args = append(args, *q.CreatedBy)
	}
	if q.SyncType != "" {
		where = append(where, "sync_type = ?")
		args = append(args, string(q.SyncType))
	}

	query := "SELECT " + recordColumns + " FROM records WHERE " + strings.Join(where, " AND ") + " ORDER BY local_id"
	recs, err := s.list(ctx, s.db, query, args...)
	if err != nil {
		return nil, err
	}

	if len(q.Fields) == 0 {
		return recs, nil
	}
	out := recs[:0]
	for _, rec := range recs {
		if q.Match(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *SQLite) Get(ctx context.Context, resource string, id int64) (record.Record, error) {
	if record.IsPendingID(id) {
		row := s.db.QueryRowContext(ctx, "SELECT "+recordColumns+` FROM records
			WHERE resource = ? AND local_id = ? AND server_id IS NULL`, resource, -id)
		return scanRecord(row)
	}
	row := s.db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM records WHERE resource = ? AND server_id = ?", resource, id)
	return scanRecord(row)
}

func (s *SQLite) GetLocal(ctx context.Context, resource string, localID int64) (record.Record, error) {
	return getLocal(ctx, s.db, resource, localID)
}

func (s *SQLite) Create(ctx context.Context, resource string, rec *record.Record) error {
	rec.Resource = resource
	id, err := insert(ctx, s.db, *rec)
	if err != nil {
		return err
	}
	rec.LocalID = id
	return nil
}

func (s *SQLite) BatchCreate(ctx context.Context, resource string, recs []record.Record) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, rec := range recs {
			rec.Resource = resource
			if _, err := insert(ctx, tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLite) Update(ctx context.Context, resource string, localID int64, patch record.Patch) (record.Record, error) {
	var out record.Record
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rec, err := getLocal(ctx, tx, resource, localID)
		if err != nil {
			return err
		}
		if patch.Fields != nil {
			rec.Fields = mergeFields(rec.Fields, patch.Fields)
		}
		if patch.Meta != nil {
			rec.Meta = *patch.Meta
		}
		if err := upsert(ctx, tx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	return out, err
}

func (s *SQLite) Put(ctx context.Context, rec record.Record) error {
	if rec.LocalID == 0 {
		_, err := insert(ctx, s.db, rec)
		return err
	}
	return upsert(ctx, s.db, rec)
}

func (s *SQLite) Delete(ctx context.Context, resource string, localID int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE resource = ? AND local_id = ?", resource, localID)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) DeleteAll(ctx context.Context, resource string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE resource = ?", resource); err != nil {
		return fmt.Errorf("delete all records: %w", err)
	}
	return nil
}

func (s *SQLite) Replace(ctx context.Context, resource string, recs []record.Record, syncedAt time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM records WHERE resource = ? AND sync_status = 1", resource); err != nil {
			return fmt.Errorf("clear resource: %w", err)
		}
		for _, rec := range recs {
			rec.Resource = resource
			if _, err := insert(ctx, tx, rec); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO sync_state (resource, last_sync_at) VALUES (?, ?)
			ON CONFLICT(resource) DO UPDATE SET last_sync_at = excluded.last_sync_at`,
			resource, formatTime(syncedAt)); err != nil {
			return fmt.Errorf("write sync time: %w", err)
		}
		return nil
	})
}

func (s *SQLite) LastSync(ctx context.Context, resource string) (time.Time, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT last_sync_at FROM sync_state WHERE resource = ?", resource).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read sync time: %w", err)
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse sync time: %w", err)
	}
	return at, true, nil
}

func (s *SQLite) AcceptRemote(ctx context.Context, resource string, localID, serverID int64, fields map[string]any, refs []record.Reference, at time.Time) (record.Record, error) {
	var out record.Record
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rec, err := getLocal(ctx, tx, resource, localID)
		if err != nil {
			return err
		}
		if rec.Meta.SyncStatus {
			out = rec
			return nil
		}

		oldID := rec.ID()

		// справочная копия той же серверной строки поглощается подтверждаемой записью
		if _, err := tx.ExecContext(ctx, `DELETE FROM records
			WHERE resource = ? AND server_id = ? AND sync_type = ? AND local_id <> ?`,
			resource, serverID, string(record.SyncTypeFetch), localID); err != nil {
			return fmt.Errorf("absorb fetched copy: %w", err)
		}

		rec.ServerID = &serverID
		rec.Fields = mergeFields(rec.Fields, fields)
		rec.Meta.SyncStatus = true
		rec.Meta.SyncReason = record.ReasonSynced
		rec.Meta.SyncAttempts++
		rec.Meta.LastSyncAttempt = at
		if err := upsert(ctx, tx, rec); err != nil {
			return err
		}

		for _, ref := range refs {
			if ref.Target != resource {
				continue
			}
			path := fmt.Sprintf(`$."%s"`, ref.Field)
			if _, err := tx.ExecContext(ctx, `UPDATE records SET fields = json_set(fields, ?, ?)
				WHERE resource = ? AND (json_extract(fields, ?) = ? OR json_extract(fields, ?) = ?)`,
				path, serverID, ref.Resource, path, oldID, path, strconv.FormatInt(oldID, 10)); err != nil {
				return fmt.Errorf("repoint %s.%s: %w", ref.Resource, ref.Field, err)
			}
		}

		out = rec
		return nil
	})
	return out, err
}

func (s *SQLite) RecordFailure(ctx context.Context, resource string, localID int64, reason string, at time.Time) (record.Record, error) {
	_, err := s.db.ExecContext(ctx, `UPDATE records
		SET sync_reason = ?, sync_attempts = sync_attempts + 1, last_sync_attempt = ?
		WHERE resource = ? AND local_id = ? AND sync_status = 0`,
		reason, formatTime(at), resource, localID)
	if err != nil {
		return record.Record{}, fmt.Errorf("record failure: %w", err)
	}
	return getLocal(ctx, s.db, resource, localID)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SQLite) list(ctx context.Context, q querier, query string, args ...any) ([]record.Record, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var recs []record.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return recs, nil
}

func getLocal(ctx context.Context, q querier, resource string, localID int64) (record.Record, error) {
	row := q.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM records WHERE resource = ? AND local_id = ?", resource, localID)
	return scanRecord(row)
}

func insert(ctx context.Context, q querier, rec record.Record) (int64, error) {
	args, err := recordArgs(rec)
	if err != nil {
		return 0, err
	}
	res, err := q.ExecContext(ctx, `INSERT INTO records (server_id, resource, kind, fields, sync_status, sync_reason,
		sync_attempts, last_sync_attempt, submitted_at, created_by_user_id, sync_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return 0, classify("insert record", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read local id: %w", err)
	}
	return id, nil
}

func upsert(ctx context.Context, q querier, rec record.Record) error {
	args, err := recordArgs(rec)
	if err != nil {
		return err
	}
	args = append([]any{rec.LocalID}, args...)
	_, err = q.ExecContext(ctx, `INSERT INTO records (local_id, server_id, resource, kind, fields, sync_status,
		sync_reason, sync_attempts, last_sync_attempt, submitted_at, created_by_user_id, sync_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(local_id) DO UPDATE SET
			server_id = excluded.server_id,
			resource = excluded.resource,
			kind = excluded.kind,
			fields = excluded.fields,
			sync_status = excluded.sync_status,
			sync_reason = excluded.sync_reason,
			sync_attempts = excluded.sync_attempts,
			last_sync_attempt = excluded.last_sync_attempt,
			submitted_at = excluded.submitted_at,
			created_by_user_id = excluded.created_by_user_id,
			sync_type = excluded.sync_type`, args...)
	if err != nil {
		return classify("write record", err)
	}
	return nil
}

func recordArgs(rec record.Record) ([]any, error) {
	fields := rec.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal fields: %w", err)
	}

	var serverID sql.NullInt64
	if rec.ServerID != nil {
		serverID = sql.NullInt64{Int64: *rec.ServerID, Valid: true}
	}

	syncType := rec.Meta.SyncType
	if syncType == "" {
		syncType = record.SyncTypeCreate
	}

	return []any{
		serverID,
		rec.Resource,
		string(rec.Kind),
		string(raw),
		rec.Meta.SyncStatus,
		rec.Meta.SyncReason,
		int64(rec.Meta.SyncAttempts),
		nullTime(rec.Meta.LastSyncAttempt),
		nullTime(rec.Meta.SubmittedAt),
		rec.Meta.CreatedByUserID,
		string(syncType),
	}, nil
}

func scanRecord(row scanner) (record.Record, error) {
	var (
		rec         record.Record
		serverID    sql.NullInt64
		kind        string
		fields      string
		attempts    int64
		lastAttempt sql.NullString
		submittedAt sql.NullString
		syncType    string
	)

	err := row.Scan(&rec.LocalID, &serverID, &rec.Resource, &kind, &fields, &rec.Meta.SyncStatus,
		&rec.Meta.SyncReason, &attempts, &lastAttempt, &submittedAt, &rec.Meta.CreatedByUserID, &syncType)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Record{}, ErrNotFound
	}
	if err != nil {
		return record.Record{}, fmt.Errorf("scan record: %w", err)
	}

	if serverID.Valid {
		id := serverID.Int64
		rec.ServerID = &id
	}
	rec.Kind = record.Kind(kind)
	rec.Meta.SyncAttempts = uint(attempts)
	rec.Meta.SyncType = record.SyncType(syncType)
	if rec.Meta.LastSyncAttempt, err = parseTime(lastAttempt); err != nil {
		return record.Record{}, err
	}
	if rec.Meta.SubmittedAt, err = parseTime(submittedAt); err != nil {
		return record.Record{}, err
	}
	if err := json.Unmarshal([]byte(fields), &rec.Fields); err != nil {
		return record.Record{}, fmt.Errorf("unmarshal fields of %d: %w", rec.LocalID, err)
	}

	return rec, nil
}

func classify(op string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("%s: %w", op, ErrServerIDConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func parseTime(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s.String, err)
	}
	return t, nil
}
