// Package notify implements the downstream notification-sending surface
// (spec §6) the admission filter guards. It is an opaque stub: it validates
// the request body and manufactures an id, with no actual SMS/email
// delivery in scope.
package notify

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/arjunmehta/ratequota/pkg/utils"
)

// Handler serves the two notification endpoints behind the admission
// middleware. Each response carries a content-derived idempotency key
// alongside its unique id, so a caller retrying the exact same send can
// detect it downstream even though this stub itself performs no dedup.
type Handler struct{}

// NewHandler builds a notify Handler.
func NewHandler() *Handler {
	return &Handler{}
}

type sendRequest struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

type sendResponse struct {
	Success        bool      `json:"success"`
	ID             string    `json:"id"`
	Channel        string    `json:"channel"`
	Timestamp      time.Time `json:"timestamp"`
	Message        string    `json:"message"`
	IdempotencyKey string    `json:"idempotency_key"`
}

type errorResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status"`
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Path      string    `json:"path"`
}

// SMS handles POST /api/notify/sms.
func (h *Handler) SMS(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, "sms")
}

// Email handles POST /api/notify/email.
func (h *Handler) Email(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, "email")
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request, channel string) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "recipient and message are required")
		return
	}
	if req.Recipient == "" || req.Message == "" {
		writeError(w, r, http.StatusBadRequest, "recipient and message are required")
		return
	}

	writeJSON(w, http.StatusOK, sendResponse{
		Success:        true,
		ID:             uuid.New().String(),
		Channel:        channel,
		Timestamp:      time.Now().UTC(),
		Message:        "queued",
		IdempotencyKey: utils.HashString(channel + ":" + req.Recipient + ":" + req.Message),
	})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, errorResponse{
		Timestamp: time.Now().UTC(),
		Status:    status,
		Error:     http.StatusText(status),
		Message:   message,
		Path:      r.URL.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
