package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tasklight/tasklight/internal/database"
	"github.com/tasklight/tasklight/internal/web/sse"
)

// createTodoRequest is the payload for POST /api/todos
type createTodoRequest struct {
	Text     string     `json:"text"`
	DueAt    *time.Time `json:"due_at"`
	LabelIDs []int64    `json:"label_ids"`
}

// updateTodoRequest is the payload for PATCH /api/todos/{id}.
// Absent fields are left unchanged; label_ids, when present, replaces the
// attached label set. clear_due removes the due date (a JSON null due_at is
// indistinguishable from an absent one).
type updateTodoRequest struct {
	Text      *string    `json:"text"`
	Completed *bool      `json:"completed"`
	DueAt     *time.Time `json:"due_at"`
	ClearDue  bool       `json:"clear_due"`
	LabelIDs  []int64    `json:"label_ids"`
}

// validateTodoText checks the 1..100 character constraint
func validateTodoText(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "text must not be empty", false
	}
	if len([]rune(text)) > MaxTodoTextLength {
		return "text must be at most 100 characters", false
	}
	return "", true
}

// TodoCreate handles POST /api/todos
func (h *Handlers) TodoCreate(w http.ResponseWriter, r *http.Request) {
	var req createTodoRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.jsonError(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}

	if msg, ok := validateTodoText(req.Text); !ok {
		h.jsonError(w, msg, http.StatusBadRequest)
		return
	}

	todo, err := h.db.CreateTodo(strings.TrimSpace(req.Text), req.DueAt, req.LabelIDs)
	if err != nil {
		h.storageError(w, err)
		return
	}

	h.broadcast(sse.EventTodoCreated, todo)
	h.writeJSON(w, http.StatusCreated, todo)
}

// TodoList handles GET /api/todos
func (h *Handlers) TodoList(w http.ResponseWriter, r *http.Request) {
	todos, err := h.db.ListTodos()
	if err != nil {
		h.storageError(w, err)
		return
	}
	if todos == nil {
		todos = []*database.Todo{}
	}
	h.writeJSON(w, http.StatusOK, todos)
}

// TodoGet handles GET /api/todos/{id}
func (h *Handlers) TodoGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.todoID(w, r)
	if !ok {
		return
	}

	todo, err := h.db.GetTodo(id)
	if err != nil {
		h.storageError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, todo)
}

// TodoUpdate handles PATCH /api/todos/{id}
func (h *Handlers) TodoUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.todoID(w, r)
	if !ok {
		return
	}

	var req updateTodoRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.jsonError(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}

	patch := database.TodoPatch{
		Completed: req.Completed,
		DueAt:     req.DueAt,
		ClearDue:  req.ClearDue,
		LabelIDs:  req.LabelIDs,
	}
	if req.Text != nil {
		text := strings.TrimSpace(*req.Text)
		if msg, ok := validateTodoText(text); !ok {
			h.jsonError(w, msg, http.StatusBadRequest)
			return
		}
		patch.Text = &text
	}

	todo, err := h.db.UpdateTodo(id, patch)
	if err != nil {
		h.storageError(w, err)
		return
	}

	h.broadcast(sse.EventTodoUpdated, todo)
	h.writeJSON(w, http.StatusOK, todo)
}

// TodoDelete handles DELETE /api/todos/{id}
func (h *Handlers) TodoDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.todoID(w, r)
	if !ok {
		return
	}

	if err := h.db.DeleteTodo(id); err != nil {
		h.storageError(w, err)
		return
	}

	h.broadcast(sse.EventTodoDeleted, map[string]int64{"id": id})
	w.WriteHeader(http.StatusNoContent)
}

// todoID parses the {id} URL parameter
func (h *Handlers) todoID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.jsonError(w, "Invalid todo ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
