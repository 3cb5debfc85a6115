package user

import "time"

type User struct {
	ID        int64
	Login     string
	Password  string // хэш
	CreatedAt time.Time
}

type BaseRequest struct {
	Login    string `json:"login" minLength:"3" maxLength:"32" doc:"Логин агента"`
	Password string `json:"password" minLength:"8" maxLength:"72" doc:"Пароль"`
}
