package httpapi

import (
	"fmt"
	"net/http"

	chi "github.com/go-chi/chi/v5"

	"feed-engine/internal/domain"
	postsusecase "feed-engine/internal/usecase/posts"
)

func (h *Handler) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	author, ok := actorOr(r, domain.UserID(req.AuthorID))
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "author is required")
		return
	}
	if req.AuthorID != 0 && domain.UserID(req.AuthorID) != author {
		h.writeDomainError(w, r, fmt.Errorf("%w: author_id does not match the requesting user", domain.ErrForbidden))
		return
	}
	in := postsusecase.CreateInput{AuthorID: author, Body: req.Body, ImageRef: req.ImageRef}
	if req.ParentID != nil {
		parent := domain.PostID(*req.ParentID)
		in.ParentID = &parent
	}
	post, err := h.svc.Posts.Create(r.Context(), in)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newPostResponse(post))
}

func (h *Handler) handleGetPost(w http.ResponseWriter, r *http.Request) {
	id, err := postIDParam(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	item, err := h.svc.Feed.GetPost(r.Context(), viewer(r), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, err := postIDParam(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := h.svc.Posts.SoftDelete(r.Context(), id, actor); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReply(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, err := postIDParam(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	var req replyRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	post, err := h.svc.Posts.Reply(r.Context(), actor, id, req.Body, req.ImageRef)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newPostResponse(post))
}

func (h *Handler) handleReplies(w http.ResponseWriter, r *http.Request) {
	id, err := postIDParam(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	cursor, limit, err := pageParams(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	page, err := h.svc.Feed.ListReplies(r.Context(), viewer(r), id, cursor, limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) handleThread(w http.ResponseWriter, r *http.Request) {
	id, err := postIDParam(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	cursor, limit, err := pageParams(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	thread, err := h.svc.Feed.GetThread(r.Context(), viewer(r), id, cursor, limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

func (h *Handler) handleApply(w http.ResponseWriter, r *http.Request) {
	actor, id, kind, ok := h.interactionParams(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Interactions.Apply(r.Context(), actor, id, kind)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, applyResponse{Applied: res.Applied(), Outcome: res.Outcome, Counts: res.Counts})
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	actor, id, kind, ok := h.interactionParams(w, r)
	if !ok {
		return
	}
	counts, err := h.svc.Interactions.Revoke(r.Context(), actor, id, kind)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, revokeResponse{Counts: counts})
}

// interactionParams разбирает актора, пост и тип реакции. Ответы создаются отдельным
// маршрутом, поэтому kind=reply отклоняет сервис реакций.
func (h *Handler) interactionParams(w http.ResponseWriter, r *http.Request) (domain.UserID, domain.PostID, domain.InteractionKind, bool) {
	actor, ok := requireActor(w, r)
	if !ok {
		return 0, 0, "", false
	}
	id, err := postIDParam(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return 0, 0, "", false
	}
	kind, err := domain.ParseInteractionKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return 0, 0, "", false
	}
	return actor, id, kind, true
}

// actorOr возвращает пользователя из заголовка, иначе fallback.
func actorOr(r *http.Request, fallback domain.UserID) (domain.UserID, bool) {
	if actor := viewer(r); actor > 0 {
		return actor, true
	}
	return fallback, fallback > 0
}
