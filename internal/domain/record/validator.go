package record

import (
	"fmt"
	"sort"
)

// Validator - интерфейс для проверки конвертов на границе синхронизации
type Validator interface {
	Validate(env Envelope) error
}

// Schema обязательные поля для одного типа записи
type Schema struct {
	Kind     Kind     `mapstructure:"kind"`
	Required []string `mapstructure:"required"`
}

// Registry реестр схем по типам записей
type Registry struct {
	schemas map[Kind]Schema
}

// DefaultSchemas идентифицирующие внешние ключи, без которых сервер не примет запись
func DefaultSchemas() []Schema {
	return []Schema{
		{Kind: KindRegistration, Required: []string{"family_id", "project_id"}},
		{Kind: KindMonitoringResponse, Required: []string{"family_id", "form_id", "module_id"}},
		{Kind: KindSurveyResponse, Required: []string{"family_id", "survey_id", "project_id"}},
		{Kind: KindSocialPost, Required: []string{"body"}},
	}
}

// NewRegistry создает реестр; схемы из аргументов заменяют схемы по умолчанию
func NewRegistry(schemas ...Schema) *Registry {
	r := &Registry{schemas: make(map[Kind]Schema)}
	for _, s := range DefaultSchemas() {
		r.schemas[s.Kind] = s
	}
	for _, s := range schemas {
		r.schemas[s.Kind] = s
	}
	return r
}

// Validate проверяет тип и наличие обязательных полей.
func (r *Registry) Validate(env Envelope) error {
	if err := env.Kind.Validate(); err != nil {
		return err
	}
	if len(env.Fields) == 0 {
		return fmt.Errorf("%w: %s has no fields", ErrInvalidEnvelope, env.Kind)
	}

	schema, ok := r.schemas[env.Kind]
	if !ok {
		return nil
	}

	var missing []string
	for _, name := range schema.Required {
		v, ok := env.Fields[name]
		if !ok || v == nil || v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %s is missing %v", ErrInvalidEnvelope, env.Kind, missing)
	}

	return nil
}
