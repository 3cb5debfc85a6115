package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// FetchFunc массовая выборка ресурса с сервера
type FetchFunc func(ctx context.Context) ([]map[string]any, error)

// TransformFunc преобразует строки ответа перед сохранением
type TransformFunc func(rows []map[string]any) ([]map[string]any, error)

// Descriptor описывает справочный ресурс: откуда брать и как долго данные свежие
type Descriptor struct {
	Key       string
	Fetch     FetchFunc
	StaleTime time.Duration
	Transform TransformFunc
	ForceSync bool
}

// DescriptorConfig форма дескриптора в конфигурации клиента
type DescriptorConfig struct {
	Key       string        `mapstructure:"key"`
	Path      string        `mapstructure:"path"`
	Envelope  string        `mapstructure:"envelope"`
	StaleTime time.Duration `mapstructure:"stale_time"`
	ForceSync bool          `mapstructure:"force_sync"`
}

// Fetcher источник сырых ответов массовой выборки
type Fetcher interface {
	FetchCollection(ctx context.Context, path string) (json.RawMessage, error)
}

// Build собирает дескриптор поверх удаленного клиента.
func (c DescriptorConfig) Build(f Fetcher) Descriptor {
	path := c.Path
	if path == "" {
		path = "/api/v1/resources/" + c.Key
	}
	return Descriptor{
		Key:       c.Key,
		Fetch:     RemoteFetch(f, path, c.Envelope),
		StaleTime: c.StaleTime,
		ForceSync: c.ForceSync,
	}
}

// RemoteFetch читает коллекцию по path. Поддерживаются ответы {"data": [...]}
// и {"<envelope>": [...]}; при пустом envelope также голый массив.
func RemoteFetch(f Fetcher, path, envelope string) FetchFunc {
	return func(ctx context.Context) ([]map[string]any, error) {
		raw, err := f.FetchCollection(ctx, path)
		if err != nil {
			return nil, err
		}
		return decodeCollection(raw, envelope)
	}
}

func decodeCollection(raw json.RawMessage, envelope string) ([]map[string]any, error) {
	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err == nil {
		return rows, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode collection: %w", err)
	}

	for _, key := range []string{envelope, "data"} {
		if key == "" {
			continue
		}
		body, ok := wrapped[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("decode collection %q: %w", key, err)
		}
		return rows, nil
	}

	return nil, fmt.Errorf("decode collection: no %q or \"data\" array in response", envelope)
}
