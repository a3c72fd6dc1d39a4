package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dcollien/Chatitat/internal/chat"
)

// History serves a channel's persisted messages, oldest first. GET reads;
// DELETE performs the same read and then purges every returned entry, so the
// caller of a purge always receives what it deleted. An optional count path
// segment limits the result to the count oldest entries, which is the purge
// use case: archive then drop the least recent part of the log.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	if channel == "" {
		h.Error(w, http.StatusNotFound, "channel is required")
		return
	}

	if !h.authorize(r, channel) {
		h.Error(w, http.StatusForbidden, "invalid signature")
		return
	}

	stop := int64(-1)
	if countStr := chi.URLParam(r, "count"); countStr != "" {
		count, err := strconv.ParseInt(countStr, 10, 64)
		if err != nil || count < 0 {
			h.Error(w, http.StatusNotFound, "invalid count")
			return
		}
		if count == 0 {
			// Zero oldest entries: nothing to read, nothing to purge. A
			// stop of count-1 = -1 would mean the whole log.
			h.JSON(w, http.StatusOK, []map[string]string{})
			return
		}
		stop = count - 1
	}

	purge := r.Method == http.MethodDelete

	messages, err := chat.History(r.Context(), h.broker, channel, 0, stop, purge)
	if err != nil {
		// Store trouble degrades to an empty result rather than an error.
		h.broker.Logger.Warn().Err(err).Str("channel", channel).Msg("history read failed")
		messages = []map[string]string{}
	}

	h.JSON(w, http.StatusOK, messages)
}

// MissingChannel answers history or list requests without a channel segment.
func (h *Handler) MissingChannel(w http.ResponseWriter, r *http.Request) {
	h.Error(w, http.StatusNotFound, "channel is required")
}
