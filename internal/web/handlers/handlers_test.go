package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/tasklight/tasklight/internal/database"
)

func newTestRouter(t *testing.T) (*database.DB, *chi.Mux) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.New(dbPath)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	h := New(db, nil)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Route("/todos", func(r chi.Router) {
			r.Post("/", h.TodoCreate)
			r.Get("/", h.TodoList)
			r.Get("/{id}", h.TodoGet)
			r.Patch("/{id}", h.TodoUpdate)
			r.Delete("/{id}", h.TodoDelete)
		})
		r.Route("/labels", func(r chi.Router) {
			r.Post("/", h.LabelCreate)
			r.Get("/", h.LabelList)
			r.Delete("/{id}", h.LabelDelete)
		})
	})

	return db, r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestTodoCreate_RejectsInvalidText(t *testing.T) {
	_, r := newTestRouter(t)

	cases := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"too long", strings.Repeat("x", 101)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, r, http.MethodPost, "/api/todos", map[string]any{"text": tc.text})
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestTodoCreate_WithLabels(t *testing.T) {
	db, r := newTestRouter(t)

	label, err := db.CreateLabel("work")
	if err != nil {
		t.Fatalf("failed to create label: %v", err)
	}

	rec := doJSON(t, r, http.MethodPost, "/api/todos", map[string]any{
		"text":      "write report",
		"label_ids": []int64{label.ID},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var todo database.Todo
	if err := json.Unmarshal(rec.Body.Bytes(), &todo); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if todo.ID == 0 {
		t.Error("expected a non-zero todo id")
	}
	if len(todo.Labels) != 1 || todo.Labels[0].Name != "work" {
		t.Errorf("unexpected labels: %+v", todo.Labels)
	}
}

func TestTodoCreate_UnknownLabelReturns422(t *testing.T) {
	_, r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/todos", map[string]any{
		"text":      "doomed",
		"label_ids": []int64{9999},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestTodoList_EmptyIsArray(t *testing.T) {
	_, r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodGet, "/api/todos", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("expected empty array, got %q", got)
	}
}

func TestTodoLifecycle(t *testing.T) {
	_, r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/todos", map[string]any{"text": "buy milk"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var todo database.Todo
	if err := json.Unmarshal(rec.Body.Bytes(), &todo); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	path := fmt.Sprintf("/api/todos/%d", todo.ID)

	rec = doJSON(t, r, http.MethodGet, path, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, r, http.MethodPatch, path, map[string]any{"completed": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var updated database.Todo
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !updated.Completed {
		t.Error("expected todo to be completed")
	}
	if updated.Text != "buy milk" {
		t.Errorf("text should be unchanged, got %q", updated.Text)
	}

	rec = doJSON(t, r, http.MethodDelete, path, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	rec = doJSON(t, r, http.MethodGet, path, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestTodoGet_InvalidID(t *testing.T) {
	_, r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodGet, "/api/todos/abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestLabelCreate_DuplicateReturns409(t *testing.T) {
	_, r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/labels", map[string]any{"name": "work"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, r, http.MethodPost, "/api/labels", map[string]any{"name": "work"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestLabelCreate_RejectsInvalidName(t *testing.T) {
	_, r := newTestRouter(t)

	for _, name := range []string{"", "  ", strings.Repeat("x", 31)} {
		rec := doJSON(t, r, http.MethodPost, "/api/labels", map[string]any{"name": name})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %q, got %d", name, rec.Code)
		}
	}
}

func TestLabelDelete(t *testing.T) {
	db, r := newTestRouter(t)

	label, err := db.CreateLabel("temp")
	if err != nil {
		t.Fatalf("failed to create label: %v", err)
	}

	rec := doJSON(t, r, http.MethodDelete, fmt.Sprintf("/api/labels/%d", label.ID), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	rec = doJSON(t, r, http.MethodDelete, fmt.Sprintf("/api/labels/%d", label.ID), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 deleting twice, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	_, r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
