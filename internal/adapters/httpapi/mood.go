package httpapi

import (
	"net/http"

	"feed-engine/internal/domain"
)

func (h *Handler) handleCurrentMood(w http.ResponseWriter, r *http.Request) {
	user, err := userIDParam(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	mood, err := h.svc.Feed.CurrentMood(r.Context(), user)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mood)
}

func (h *Handler) handleMoodHistory(w http.ResponseWriter, r *http.Request) {
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
	page, err := h.svc.Feed.MoodHistory(r.Context(), user, cursor, limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	_, limit, err := pageParams(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	suggestions, err := h.svc.Feed.Suggest(r.Context(), actor, limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.Page[domain.Suggestion]{Items: suggestions})
}
