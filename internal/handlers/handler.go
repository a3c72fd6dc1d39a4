package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/dcollien/Chatitat/internal/auth"
	"github.com/dcollien/Chatitat/internal/chat"
	"github.com/dcollien/Chatitat/internal/metrics"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	broker *chat.Broker
}

// NewHandler creates a new Handler on the given broker.
func NewHandler(broker *chat.Broker) *Handler {
	return &Handler{broker: broker}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// authorize checks the user/issued/signature query parameters against the
// shared key. In open mode (no key configured) every request passes.
func (h *Handler) authorize(r *http.Request, channel string) bool {
	if h.broker.Secret == "" {
		return true
	}

	q := r.URL.Query()
	issued, err := strconv.ParseInt(q.Get("issued"), 10, 64)
	if err != nil {
		return false
	}

	ok := auth.Verify(
		q.Get("signature"),
		q.Get("user"),
		channel,
		issued,
		time.Now().UnixMilli(),
		h.broker.Secret,
		h.broker.Window,
	)
	if !ok {
		metrics.AuthFailures.WithLabelValues("http").Inc()
	}
	return ok
}

// Fallback answers anything that matched no route with a benign
// informational body and success status, not an error.
func (h *Handler) Fallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Connect via client"))
}
