package guard

import (
	"context"

	"fieldsync/internal/app/client/store"
	"fieldsync/internal/domain/record"

	"golang.org/x/exp/slog"
)

// NaturalKey поля, по которым две записи одного типа считаются одной и той же отправкой
type NaturalKey struct {
	Kind   record.Kind `mapstructure:"kind"`
	Fields []string    `mapstructure:"fields"`
	Reason string      `mapstructure:"reason"`
}

// DefaultKeys естественные ключи по умолчанию
func DefaultKeys() []NaturalKey {
	return []NaturalKey{
		{
			Kind:   record.KindMonitoringResponse,
			Fields: []string{"family_id", "form_id", "module_id"},
			Reason: "This family has already been monitored for this module.",
		},
		{
			Kind:   record.KindSurveyResponse,
			Fields: []string{"family_id", "survey_id"},
			Reason: "This family has already answered this survey.",
		},
		{
			Kind:   record.KindRegistration,
			Fields: []string{"family_id", "project_id"},
			Reason: "This family is already registered in this project.",
		},
	}
}

// Guard проверяет, не была ли такая запись уже принята локально
type Guard struct {
	store store.Store
	keys  map[record.Kind]NaturalKey
	log   *slog.Logger
}

func New(s store.Store, keys []NaturalKey, log *slog.Logger) *Guard {
	g := &Guard{
		store: s,
		keys:  make(map[record.Kind]NaturalKey, len(keys)),
		log:   log.With("component", "guard"),
	}
	for _, k := range keys {
		g.keys[k.Kind] = k
	}
	return g
}

// Check возвращает *record.DuplicateSubmissionError, если в хранилище есть запись
// того же типа с теми же значениями естественного ключа.
// Типы без ключа и конверты без полей ключа проходят проверку.
func (g *Guard) Check(ctx context.Context, env record.Envelope) error {
	key, ok := g.keys[env.Kind]
	if !ok || len(key.Fields) == 0 {
		return nil
	}

	q := store.Query{Fields: make(map[string]any, len(key.Fields))}
	for _, name := range key.Fields {
		v, ok := env.Fields[name]
		if !ok || v == nil {
			return nil
		}
		q.Fields[name] = v
	}

	existing, err := g.store.GetByQuery(ctx, env.Kind.Resource(), q)
	if err != nil {
		return record.Persistence("duplicate check", err)
	}
	if len(existing) == 0 {
		return nil
	}

	dup := &record.DuplicateSubmissionError{
		Kind:       env.Kind,
		Reason:     key.Reason,
		ExistingID: existing[0].ID(),
	}
	g.log.Info("duplicate submission rejected", "kind", env.Kind, "existing_id", dup.ExistingID)
	return dup
}
