package domain

import (
	"fmt"
	"strconv"
)

// UserID идентифицирует пользователя. Пользователями владеет внешняя подсистема идентификации.
type UserID int64

// PostID идентифицирует пост.
type PostID int64

// String возвращает десятичное представление идентификатора.
func (id UserID) String() string { return strconv.FormatInt(int64(id), 10) }

// String возвращает десятичное представление идентификатора.
func (id PostID) String() string { return strconv.FormatInt(int64(id), 10) }

// ParseUserID разбирает идентификатор пользователя из строки.
func ParseUserID(raw string) (UserID, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid user id %q", ErrValidation, raw)
	}
	return UserID(id), nil
}

// ParsePostID разбирает идентификатор поста из строки.
func ParsePostID(raw string) (PostID, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid post id %q", ErrValidation, raw)
	}
	return PostID(id), nil
}
