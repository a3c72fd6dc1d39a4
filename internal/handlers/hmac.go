package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dcollien/Chatitat/internal/auth"
)

// HMACResponse echoes the signed tuple along with its signature.
type HMACResponse struct {
	User      string `json:"user"`
	Channel   string `json:"channel"`
	Issued    int64  `json:"issued"`
	Signature string `json:"signature"`
}

// HMAC computes a reference signature for a (user, channel, issued) tuple
// under the salt given in the path. A debugging utility for ad-hoc testing:
// the salt stands in for the real shared key, and the endpoint itself is
// deliberately unauthenticated.
func (h *Handler) HMAC(w http.ResponseWriter, r *http.Request) {
	salt := chi.URLParam(r, "salt")
	user := chi.URLParam(r, "user")
	channel := chi.URLParam(r, "channel")

	issued, err := strconv.ParseInt(chi.URLParam(r, "issued"), 10, 64)
	if err != nil {
		h.Error(w, http.StatusNotFound, "issued must be a unix millisecond timestamp")
		return
	}

	h.JSON(w, http.StatusOK, HMACResponse{
		User:      user,
		Channel:   channel,
		Issued:    issued,
		Signature: auth.Signature(user, channel, issued, salt),
	})
}
