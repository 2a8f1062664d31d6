package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound возвращается, когда пост, пользователь или связь отсутствуют.
	ErrNotFound = errors.New("not found")

	// ErrForbidden возвращается, когда у пользователя нет прав на действие.
	ErrForbidden = errors.New("forbidden")

	// ErrValidation возвращается при некорректном вводе.
	ErrValidation = errors.New("validation failed")

	// ErrSelfFollow возвращается при попытке подписаться на самого себя.
	ErrSelfFollow = errors.New("cannot follow yourself")

	// ErrInvalidCursor возвращается, если курсор пагинации не разбирается.
	ErrInvalidCursor = fmt.Errorf("%w: invalid cursor", ErrValidation)

	// ErrCacheMiss возвращается кэшем, если ключ отсутствует.
	ErrCacheMiss = errors.New("cache miss")

	// ErrQueueFull возвращается очередью без свободного места.
	ErrQueueFull = errors.New("queue is full")
)

// Коды ошибок, которые видит клиент API.
const (
	CodeNotFound   = "not_found"
	CodeForbidden  = "forbidden"
	CodeValidation = "validation_failed"
	CodeSelfFollow = "self_follow"
	CodeInternal   = "internal"
)

// ErrorCode возвращает стабильный машиночитаемый код ошибки.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSelfFollow):
		return CodeSelfFollow
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrValidation):
		return CodeValidation
	default:
		return CodeInternal
	}
}
