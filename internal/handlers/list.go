package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dcollien/Chatitat/internal/chat"
)

// List serves a channel's presence snapshot: the online members with their
// display names and connection times, ordered by connection time.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	if channel == "" {
		h.Error(w, http.StatusNotFound, "channel is required")
		return
	}

	if !h.authorize(r, channel) {
		h.Error(w, http.StatusForbidden, "invalid signature")
		return
	}

	h.JSON(w, http.StatusOK, chat.ListOnline(r.Context(), h.broker, channel))
}
