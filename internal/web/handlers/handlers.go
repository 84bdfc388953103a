package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/tasklight/tasklight/internal/database"
	"github.com/tasklight/tasklight/internal/web/sse"
)

// Limits enforced on request payloads. The original schema stores free
// text; these bounds keep the API predictable.
const (
	MaxTodoTextLength  = 100
	MaxLabelNameLength = 30

	maxBodyBytes = 1 << 20
)

// Handlers contains all HTTP handlers
type Handlers struct {
	db        *database.DB
	sseBroker *sse.Broker
}

// New creates a new Handlers instance
func New(db *database.DB, sseBroker *sse.Broker) *Handlers {
	return &Handlers{
		db:        db,
		sseBroker: sseBroker,
	}
}

// Health handles the liveness endpoint
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(); err != nil {
		log.Error().Err(err).Msg("Health check failed")
		h.jsonError(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// broadcast sends an event if the broker is configured
func (h *Handlers) broadcast(eventType sse.EventType, data any) {
	if h.sseBroker != nil {
		h.sseBroker.Broadcast(sse.Event{Type: eventType, Data: data})
	}
}

// decodeJSON decodes a request body into v, limiting its size
func (h *Handlers) decodeJSON(r *http.Request, v any) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeJSON writes v as a JSON response with the given status
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// jsonError sends a JSON error response
func (h *Handlers) jsonError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// storageError maps repository errors to HTTP responses
func (h *Handlers) storageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		h.jsonError(w, "Not found", http.StatusNotFound)
	case errors.Is(err, database.ErrDuplicateLabel):
		h.jsonError(w, "Label already exists", http.StatusConflict)
	case errors.Is(err, database.ErrLabelMissing):
		h.jsonError(w, "Referenced label does not exist", http.StatusUnprocessableEntity)
	default:
		log.Error().Err(err).Msg("Storage error")
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
	}
}
