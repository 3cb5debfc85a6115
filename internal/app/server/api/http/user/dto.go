package user

import "fieldsync/internal/domain/user"

type registerInput struct {
	Body user.BaseRequest
}

type registerOutput struct {
	Body RegisterResponse
}

type RegisterResponse struct {
	UserID int64  `json:"user_id" doc:"Идентификатор пользователя"`
	Status string `json:"status" example:"Ok"`
}

type loginInput struct {
	Body user.BaseRequest
}

type loginOutput struct {
	Body LoginResponse
}

// LoginResponse клиент сохраняет token и user_id как сессию
type LoginResponse struct {
	Token  string `json:"token" doc:"Bearer-токен"`
	UserID int64  `json:"user_id" doc:"Идентификатор пользователя"`
}
