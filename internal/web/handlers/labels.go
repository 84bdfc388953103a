package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tasklight/tasklight/internal/database"
	"github.com/tasklight/tasklight/internal/web/sse"
)

// createLabelRequest is the payload for POST /api/labels
type createLabelRequest struct {
	Name string `json:"name"`
}

// LabelCreate handles POST /api/labels
func (h *Handlers) LabelCreate(w http.ResponseWriter, r *http.Request) {
	var req createLabelRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.jsonError(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		h.jsonError(w, "name must not be empty", http.StatusBadRequest)
		return
	}
	if len([]rune(name)) > MaxLabelNameLength {
		h.jsonError(w, "name must be at most 30 characters", http.StatusBadRequest)
		return
	}

	label, err := h.db.CreateLabel(name)
	if err != nil {
		h.storageError(w, err)
		return
	}

	h.broadcast(sse.EventLabelCreated, label)
	h.writeJSON(w, http.StatusCreated, label)
}

// LabelList handles GET /api/labels
func (h *Handlers) LabelList(w http.ResponseWriter, r *http.Request) {
	labels, err := h.db.ListLabels()
	if err != nil {
		h.storageError(w, err)
		return
	}
	if labels == nil {
		labels = []*database.Label{}
	}
	h.writeJSON(w, http.StatusOK, labels)
}

// LabelDelete handles DELETE /api/labels/{id}
func (h *Handlers) LabelDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.jsonError(w, "Invalid label ID", http.StatusBadRequest)
		return
	}

	if err := h.db.DeleteLabel(id); err != nil {
		h.storageError(w, err)
		return
	}

	h.broadcast(sse.EventLabelDeleted, map[string]int64{"id": id})
	w.WriteHeader(http.StatusNoContent)
}
