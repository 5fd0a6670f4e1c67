package service

import "errors"

// Ошибки сервисного слоя. Обработчики переводят их в HTTP-коды ответа.
var (
	ErrNotFound        = errors.New("item not found")
	ErrForbidden       = errors.New("access denied")
	ErrValidation      = errors.New("validation failed")
	ErrUnauthenticated = errors.New("authentication required")
)
