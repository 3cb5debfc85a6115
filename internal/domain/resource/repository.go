package resource

import "context"

// Repository справочные строки, загруженные администратором
type Repository interface {
	List(ctx context.Context, name string) ([]map[string]any, error)
}

// Source отдает строки одного справочника целиком
type Source interface {
	Rows(ctx context.Context) ([]map[string]any, error)
}

// SourceFunc адаптер функции к Source
type SourceFunc func(ctx context.Context) ([]map[string]any, error)

func (f SourceFunc) Rows(ctx context.Context) ([]map[string]any, error) {
	return f(ctx)
}
