package resource

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/exp/slog"
)

// DefaultNames справочники, которые хранятся в общей таблице
func DefaultNames() []string {
	return []string{"projects", "families", "forms", "surveys"}
}

type Servicer interface {
	List(ctx context.Context, name string) ([]map[string]any, error)
	Names() []string
}

// Service каталог справочников для массовой выборки клиентом
type Service struct {
	sources map[string]Source
	log     *slog.Logger
}

// Option дополнительный источник справочника
type Option func(*Service)

// WithSource регистрирует справочник со своим источником строк.
func WithSource(name string, src Source) Option {
	return func(s *Service) {
		s.sources[name] = src
	}
}

// NewService регистрирует names поверх repo и дополнительные источники из opts.
func NewService(repo Repository, names []string, log *slog.Logger, opts ...Option) *Service {
	s := &Service{
		sources: make(map[string]Source, len(names)),
		log:     log.With("component", "resource"),
	}
	for _, name := range names {
		s.sources[name] = SourceFunc(func(ctx context.Context) ([]map[string]any, error) {
			return repo.List(ctx, name)
		})
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) List(ctx context.Context, name string) ([]map[string]any, error) {
	src, ok := s.sources[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, name)
	}

	rows, err := src.Rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", name, err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	s.log.Debug("resource listed", "resource", name, "rows", len(rows))
	return rows, nil
}

// Names возвращает зарегистрированные справочники по алфавиту.
func (s *Service) Names() []string {
	out := make([]string, 0, len(s.sources))
	for name := range s.sources {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
