package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"feed-engine/internal/domain"
)

// ActorHeader содержит идентификатор пользователя, от имени которого выполняется запрос.
// Проверку подлинности выполняет шлюз перед сервисом.
const ActorHeader = "X-User-ID"

type actorKey struct{}

// ActorMiddleware извлекает идентификатор пользователя из заголовка.
// Отсутствующий заголовок означает анонимного зрителя; некорректный отклоняется с 400.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(ActorHeader))
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		id, err := domain.ParseUserID(raw)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error": "invalid " + ActorHeader + " header",
				"code":  domain.CodeValidation,
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), id)))
	})
}

// WithActor сохраняет пользователя в контексте.
func WithActor(ctx context.Context, id domain.UserID) context.Context {
	return context.WithValue(ctx, actorKey{}, id)
}

// ActorFromContext возвращает пользователя запроса, если он известен.
func ActorFromContext(ctx context.Context) (domain.UserID, bool) {
	id, ok := ctx.Value(actorKey{}).(domain.UserID)
	return id, ok && id > 0
}
