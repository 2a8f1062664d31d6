package domain

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"
)

// Cursor фиксирует позицию последнего выданного элемента: время создания и идентификатор
// для разрешения равенства. Курсор не зависит от смещения, поэтому вставки между запросами
// не сдвигают страницы.
type Cursor struct {
	At time.Time
	ID int64
}

// IsZero сообщает, что курсор указывает на начало выдачи.
func (c Cursor) IsZero() bool { return c.At.IsZero() && c.ID == 0 }

// Before сообщает, что элемент (at, id) идёт после курсора при сортировке по убыванию.
func (c Cursor) Before(at time.Time, id int64) bool {
	if c.IsZero() {
		return true
	}
	if at.Equal(c.At) {
		return id < c.ID
	}
	return at.Before(c.At)
}

// After сообщает, что элемент (at, id) идёт после курсора при сортировке по возрастанию.
func (c Cursor) After(at time.Time, id int64) bool {
	if c.IsZero() {
		return true
	}
	if at.Equal(c.At) {
		return id > c.ID
	}
	return at.After(c.At)
}

// Encode сериализует курсор в непрозрачную строку.
func (c Cursor) Encode() string {
	if c.IsZero() {
		return ""
	}
	raw := strconv.FormatInt(c.At.UnixNano(), 10) + "." + strconv.FormatInt(c.ID, 10)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// CursorAt строит курсор из позиции элемента.
func CursorAt(at time.Time, id int64) Cursor {
	return Cursor{At: at.UTC(), ID: id}
}

// DecodeCursor разбирает курсор. Пустая строка означает начало выдачи.
func DecodeCursor(raw string) (Cursor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Cursor{}, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	nanosRaw, idRaw, ok := strings.Cut(string(data), ".")
	if !ok {
		return Cursor{}, ErrInvalidCursor
	}
	nanos, err := strconv.ParseInt(nanosRaw, 10, 64)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	id, err := strconv.ParseInt(idRaw, 10, 64)
	if err != nil || id < 0 {
		return Cursor{}, ErrInvalidCursor
	}
	return Cursor{At: time.Unix(0, nanos).UTC(), ID: id}, nil
}
