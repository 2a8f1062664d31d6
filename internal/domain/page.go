package domain

// PageLimits ограничивает размер страницы выдачи.
type PageLimits struct {
	Default int
	Max     int
}

// Clamp приводит запрошенный размер к допустимому диапазону. Ноль и отрицательные
// значения означают размер по умолчанию.
func (l PageLimits) Clamp(limit int) int {
	def := l.Default
	if def <= 0 {
		def = 20
	}
	if limit <= 0 {
		limit = def
	}
	if l.Max > 0 && limit > l.Max {
		limit = l.Max
	}
	return limit
}

// TrimPage отрезает лишний элемент, запрошенный сверх limit, и возвращает курсор
// следующей страницы. Пустой курсор означает, что выдача закончилась.
func TrimPage[T any](items []T, limit int, cursorOf func(T) Cursor) ([]T, string) {
	if len(items) <= limit {
		return items, ""
	}
	items = items[:limit]
	return items, cursorOf(items[len(items)-1]).Encode()
}

// PostCursor возвращает позицию поста в выдаче.
func PostCursor(p Post) Cursor {
	return CursorAt(p.CreatedAt, int64(p.ID))
}
