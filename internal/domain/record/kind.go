package record

import (
	"fmt"

	"github.com/danielgtaylor/huma/v2"
)

// Kind тег конверта: какой тип записи создан агентом
type Kind string

const (
	KindRegistration       Kind = "registration"
	KindMonitoringResponse Kind = "monitoring_response"
	KindSurveyResponse     Kind = "survey_response"
	KindSocialPost         Kind = "social_post"
)

// Kinds возвращает все типы записей, которые можно отправить на сервер
func Kinds() []Kind {
	return []Kind{KindRegistration, KindMonitoringResponse, KindSurveyResponse, KindSocialPost}
}

func (Kind) Schema(_ huma.Registry) *huma.Schema {
	return &huma.Schema{
		Type: "string",
		Enum: []any{
			string(KindRegistration),
			string(KindMonitoringResponse),
			string(KindSurveyResponse),
			string(KindSocialPost),
		},
		Description: "Тип отправляемой записи",
		Examples:    []any{KindMonitoringResponse},
	}
}

// Validate проверяет, что тип входит в список известных.
func (k Kind) Validate() error {
	switch k {
	case KindRegistration, KindMonitoringResponse, KindSurveyResponse, KindSocialPost:
		return nil
	}
	return fmt.Errorf("%w: unknown kind %q", ErrInvalidEnvelope, string(k))
}

// String возвращает строковое представление типа.
func (k Kind) String() string {
	return string(k)
}

// Resource имя локальной коллекции, в которой хранятся записи этого типа.
func (k Kind) Resource() string {
	return string(k)
}

// DisplayName возвращает человекочитаемое название типа.
func (k Kind) DisplayName() string {
	switch k {
	case KindRegistration:
		return "Registration"
	case KindMonitoringResponse:
		return "Monitoring response"
	case KindSurveyResponse:
		return "Survey response"
	case KindSocialPost:
		return "Social post"
	default:
		return "Unknown"
	}
}
