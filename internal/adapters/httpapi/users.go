package httpapi

import (
	"net/http"
	"strconv"
)

func (h *Handler) handleFollow(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	target, err := userIDParam(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	res, err := h.svc.Graph.Follow(r.Context(), actor, target)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleUnfollow(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	target, err := userIDParam(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	res, err := h.svc.Graph.Unfollow(r.Context(), actor, target)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleFollowers(w http.ResponseWriter, r *http.Request) {
	user, err := userIDParam(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	cursor, limit, err := pageParams(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	page, err := h.svc.Graph.ListFollowers(r.Context(), user, cursor, limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) handleFollowing(w http.ResponseWriter, r *http.Request) {
	user, err := userIDParam(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	cursor, limit, err := pageParams(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	page, err := h.svc.Graph.ListFollowing(r.Context(), user, cursor, limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	user, err := userIDParam(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	stats, err := h.svc.Graph.Stats(r.Context(), user)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleUserPosts(w http.ResponseWriter, r *http.Request) {
	user, err := userIDParam(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	cursor, limit, err := pageParams(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	page, err := h.svc.Feed.ListByAuthor(r.Context(), viewer(r), user, cursor, limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) handleFeed(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	cursor, limit, err := pageParams(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	page, err := h.svc.Feed.GetFeed(r.Context(), actor, cursor, limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) handleBookmarks(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	cursor, limit, err := pageParams(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	page, err := h.svc.Feed.ListBookmarks(r.Context(), actor, cursor, limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	cursor, limit, err := pageParams(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	unread, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	page, err := h.svc.Notifications.List(r.Context(), actor, unread, cursor, limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	n, err := h.svc.Notifications.MarkRead(r.Context(), actor)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, markReadResponse{Updated: n})
}
