package models

// User пользователь из внешнего справочника
type User struct {
	ID       int64  `json:"id"`
	Nickname string `json:"nickname"`
	Phone    string `json:"phone"`
}
