// Package httpapi публикует операции ленты как REST API.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"feed-engine/internal/domain"
	infrahttp "feed-engine/internal/infra/http"
	feedusecase "feed-engine/internal/usecase/feed"
	graphusecase "feed-engine/internal/usecase/graph"
	interactionsusecase "feed-engine/internal/usecase/interactions"
	notifyusecase "feed-engine/internal/usecase/notify"
	postsusecase "feed-engine/internal/usecase/posts"
)

const codeUnauthorized = "unauthorized"

// Services — зависимости обработчиков.
type Services struct {
	Posts         *postsusecase.Service
	Graph         *graphusecase.Service
	Interactions  *interactionsusecase.Service
	Feed          *feedusecase.Service
	Notifications *notifyusecase.Service
}

// Handler обслуживает REST маршруты.
type Handler struct {
	svc Services
	log zerolog.Logger
}

// Option настраивает Handler.
type Option func(*Handler)

// WithLogger задаёт логгер.
func WithLogger(log zerolog.Logger) Option {
	return func(h *Handler) {
		h.log = log
	}
}

// NewHandler создаёт обработчик.
func NewHandler(svc Services, opts ...Option) *Handler {
	h := &Handler{svc: svc, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Mount регистрирует маршруты в роутере.
func (h *Handler) Mount(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(infrahttp.ActorMiddleware)

		r.Post("/tweets", h.handleCreatePost)
		r.Get("/tweets/{id}", h.handleGetPost)
		r.Delete("/tweets/{id}", h.handleDeletePost)
		r.Post("/tweets/{id}/reply", h.handleReply)
		r.Get("/tweets/{id}/replies", h.handleReplies)
		r.Get("/tweets/{id}/thread", h.handleThread)
		r.Post("/tweets/{id}/{kind}", h.handleApply)
		r.Delete("/tweets/{id}/{kind}", h.handleRevoke)

		r.Post("/users/{id}/follow", h.handleFollow)
		r.Delete("/users/{id}/follow", h.handleUnfollow)
		r.Get("/users/{id}/followers", h.handleFollowers)
		r.Get("/users/{id}/following", h.handleFollowing)
		r.Get("/users/{id}/stats", h.handleStats)
		r.Get("/users/{id}/tweets", h.handleUserPosts)
		r.Get("/users/{id}/mood", h.handleCurrentMood)
		r.Get("/users/{id}/mood/history", h.handleMoodHistory)
		r.Get("/suggestions", h.handleSuggestions)

		r.Get("/feed", h.handleFeed)
		r.Get("/bookmarks", h.handleBookmarks)
		r.Get("/notifications", h.handleNotifications)
		r.Post("/notifications/read", h.handleMarkRead)
	})
}

// Router возвращает самостоятельный роутер с маршрутами API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	h.Mount(r)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// writeDomainError переводит ошибку в HTTP статус по стабильному коду.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.ErrorCode(err)
	status := http.StatusInternalServerError
	switch code {
	case domain.CodeNotFound:
		status = http.StatusNotFound
	case domain.CodeForbidden:
		status = http.StatusForbidden
	case domain.CodeValidation:
		status = http.StatusBadRequest
	case domain.CodeSelfFollow:
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("httpapi: внутренняя ошибка")
		writeError(w, status, code, "internal error")
		return
	}
	writeError(w, status, code, err.Error())
}

// requireActor возвращает пользователя запроса или отвечает 401.
func requireActor(w http.ResponseWriter, r *http.Request) (domain.UserID, bool) {
	actor, ok := infrahttp.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, infrahttp.ActorHeader+" header is required")
		return 0, false
	}
	return actor, true
}

// viewer возвращает пользователя запроса или 0 для анонимного чтения.
func viewer(r *http.Request) domain.UserID {
	actor, _ := infrahttp.ActorFromContext(r.Context())
	return actor
}

func postIDParam(r *http.Request) (domain.PostID, error) {
	return domain.ParsePostID(chi.URLParam(r, "id"))
}

func userIDParam(r *http.Request) (domain.UserID, error) {
	return domain.ParseUserID(chi.URLParam(r, "id"))
}

// pageParams разбирает cursor и limit из строки запроса.
func pageParams(r *http.Request) (domain.Cursor, int, error) {
	q := r.URL.Query()
	cursor, err := domain.DecodeCursor(q.Get("cursor"))
	if err != nil {
		return domain.Cursor{}, 0, err
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return domain.Cursor{}, 0, fmt.Errorf("%w: limit must be a positive integer", domain.ErrValidation)
		}
	}
	return cursor, limit, nil
}
