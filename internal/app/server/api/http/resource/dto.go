package resource

type listInput struct {
	Name string `path:"name" example:"families" doc:"Имя справочника"`
}

type listOutput struct {
	Body ListResponse
}

// ListResponse конверт массовой выборки
type ListResponse struct {
	Data []map[string]any `json:"data"`
}
