package domain

import "time"

// User представляет профиль пользователя. Первичный ключ — sub из
// токена провайдера идентификации, регистрация выполняется внешним
// сервисом.
type User struct {
	UserID    string     `json:"user_id" db:"user_id"`
	Email     *string    `json:"email,omitempty" db:"email"`
	Nickname  *string    `json:"nickname,omitempty" db:"nickname"`
	Status    *string    `json:"status,omitempty" db:"status"`
	CreatedAt *time.Time `json:"created_at,omitempty" db:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty" db:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// UserCreate содержит данные для создания профиля
type UserCreate struct {
	UserID   string  `json:"user_id"`
	Email    *string `json:"email,omitempty"`
	Nickname *string `json:"nickname,omitempty"`
}

// UserUpdate перечисляет изменяемые поля профиля
type UserUpdate struct {
	Email    *string `json:"email,omitempty"`
	Nickname *string `json:"nickname,omitempty"`
	Status   *string `json:"status,omitempty"`
}
