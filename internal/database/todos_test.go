package database

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	return db
}

func mustCreateLabel(t *testing.T, db *DB, name string) *Label {
	t.Helper()
	label, err := db.CreateLabel(name)
	if err != nil {
		t.Fatalf("failed to create label %q: %v", name, err)
	}
	return label
}

func TestCreateTodo_AttachesLabels(t *testing.T) {
	db := newTestDB(t)

	work := mustCreateLabel(t, db, "work")
	urgent := mustCreateLabel(t, db, "urgent")

	todo, err := db.CreateTodo("write report", nil, []int64{work.ID, urgent.ID})
	if err != nil {
		t.Fatalf("failed to create todo: %v", err)
	}

	if todo.Text != "write report" {
		t.Errorf("expected text %q, got %q", "write report", todo.Text)
	}
	if todo.Completed {
		t.Error("new todo should not be completed")
	}
	if len(todo.Labels) != 2 {
		t.Fatalf("expected 2 labels, got %d", len(todo.Labels))
	}
	if todo.Labels[0].Name != "work" || todo.Labels[1].Name != "urgent" {
		t.Errorf("unexpected labels: %+v", todo.Labels)
	}
}

func TestCreateTodo_MissingLabelFailsAtCommit(t *testing.T) {
	db := newTestDB(t)

	_, err := db.CreateTodo("doomed", nil, []int64{9999})
	if !errors.Is(err, ErrLabelMissing) {
		t.Fatalf("expected ErrLabelMissing, got %v", err)
	}

	// The whole transaction must have rolled back
	todos, err := db.ListTodos()
	if err != nil {
		t.Fatalf("failed to list todos: %v", err)
	}
	if len(todos) != 0 {
		t.Fatalf("expected no todos after failed create, got %d", len(todos))
	}

	var orphans int
	if err := db.QueryRow(`SELECT COUNT(*) FROM todo_labels`).Scan(&orphans); err != nil {
		t.Fatalf("failed to count attachments: %v", err)
	}
	if orphans != 0 {
		t.Fatalf("expected no todo_labels rows after rollback, got %d", orphans)
	}

	// The connection must come back clean: a later create must succeed and
	// commit nothing from the aborted transaction alongside it.
	survivor, err := db.CreateTodo("survivor", nil, nil)
	if err != nil {
		t.Fatalf("create after failed commit should succeed: %v", err)
	}
	todos, err = db.ListTodos()
	if err != nil {
		t.Fatalf("failed to list todos: %v", err)
	}
	if len(todos) != 1 || todos[0].ID != survivor.ID {
		t.Fatalf("expected only the survivor todo, got %+v", todos)
	}
}

// The todo_labels foreign keys are deferred, so inside one transaction the
// attachment rows may be inserted before the todo they reference, as long as
// the todo exists by commit time.
func TestDeferredConstraint_ChildBeforeParent(t *testing.T) {
	db := newTestDB(t)

	label := mustCreateLabel(t, db, "home")

	err := db.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO todo_labels (todo_id, label_id) VALUES (?, ?)`, 42, label.ID); err != nil {
			return err
		}
		_, err := tx.Exec(`INSERT INTO todos (id, text, completed) VALUES (?, ?, false)`, 42, "out of order")
		return err
	})
	if err != nil {
		t.Fatalf("commit should succeed when the todo exists by commit time: %v", err)
	}

	todo, err := db.GetTodo(42)
	if err != nil {
		t.Fatalf("failed to get todo: %v", err)
	}
	if len(todo.Labels) != 1 || todo.Labels[0].ID != label.ID {
		t.Fatalf("expected label %d attached, got %+v", label.ID, todo.Labels)
	}
}

func TestDeferredConstraint_UnresolvedAtCommitFails(t *testing.T) {
	db := newTestDB(t)

	err := db.Transaction(func(tx *sql.Tx) error {
		// Insert succeeds because the check is deferred
		_, err := tx.Exec(`INSERT INTO todo_labels (todo_id, label_id) VALUES (?, ?)`, 777, 888)
		return err
	})
	if !isForeignKeyViolation(err) {
		t.Fatalf("expected foreign key violation from commit, got %v", err)
	}
}

func TestListTodos_NewestFirst(t *testing.T) {
	db := newTestDB(t)

	first, err := db.CreateTodo("first", nil, nil)
	if err != nil {
		t.Fatalf("failed to create todo: %v", err)
	}
	second, err := db.CreateTodo("second", nil, nil)
	if err != nil {
		t.Fatalf("failed to create todo: %v", err)
	}

	todos, err := db.ListTodos()
	if err != nil {
		t.Fatalf("failed to list todos: %v", err)
	}
	if len(todos) != 2 {
		t.Fatalf("expected 2 todos, got %d", len(todos))
	}
	if todos[0].ID != second.ID || todos[1].ID != first.ID {
		t.Errorf("expected order [%d %d], got [%d %d]", second.ID, first.ID, todos[0].ID, todos[1].ID)
	}
}

func TestUpdateTodo_PartialPatch(t *testing.T) {
	db := newTestDB(t)

	work := mustCreateLabel(t, db, "work")
	home := mustCreateLabel(t, db, "home")

	todo, err := db.CreateTodo("original", nil, []int64{work.ID})
	if err != nil {
		t.Fatalf("failed to create todo: %v", err)
	}

	completed := true
	updated, err := db.UpdateTodo(todo.ID, TodoPatch{Completed: &completed})
	if err != nil {
		t.Fatalf("failed to update todo: %v", err)
	}
	if !updated.Completed {
		t.Error("expected todo to be completed")
	}
	if updated.Text != "original" {
		t.Errorf("text should be unchanged, got %q", updated.Text)
	}
	if len(updated.Labels) != 1 {
		t.Fatalf("labels should be unchanged, got %+v", updated.Labels)
	}

	// Replacing the label set
	updated, err = db.UpdateTodo(todo.ID, TodoPatch{LabelIDs: []int64{home.ID}})
	if err != nil {
		t.Fatalf("failed to replace labels: %v", err)
	}
	if len(updated.Labels) != 1 || updated.Labels[0].ID != home.ID {
		t.Fatalf("expected label set [%d], got %+v", home.ID, updated.Labels)
	}

	// Replacing with a missing label must fail and keep the old set
	_, err = db.UpdateTodo(todo.ID, TodoPatch{LabelIDs: []int64{12345}})
	if !errors.Is(err, ErrLabelMissing) {
		t.Fatalf("expected ErrLabelMissing, got %v", err)
	}
	current, err := db.GetTodo(todo.ID)
	if err != nil {
		t.Fatalf("failed to get todo: %v", err)
	}
	if len(current.Labels) != 1 || current.Labels[0].ID != home.ID {
		t.Fatalf("label set should be unchanged after failed update, got %+v", current.Labels)
	}
}

func TestUpdateTodo_DueDates(t *testing.T) {
	db := newTestDB(t)

	todo, err := db.CreateTodo("due soon", nil, nil)
	if err != nil {
		t.Fatalf("failed to create todo: %v", err)
	}

	due := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	updated, err := db.UpdateTodo(todo.ID, TodoPatch{DueAt: &due})
	if err != nil {
		t.Fatalf("failed to set due date: %v", err)
	}
	if updated.DueAt == nil || !updated.DueAt.Equal(due) {
		t.Fatalf("expected due date %v, got %v", due, updated.DueAt)
	}

	updated, err = db.UpdateTodo(todo.ID, TodoPatch{ClearDue: true})
	if err != nil {
		t.Fatalf("failed to clear due date: %v", err)
	}
	if updated.DueAt != nil {
		t.Fatalf("expected cleared due date, got %v", updated.DueAt)
	}
}

func TestUpdateTodo_NotFound(t *testing.T) {
	db := newTestDB(t)

	text := "nope"
	_, err := db.UpdateTodo(1234, TodoPatch{Text: &text})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteTodo_RemovesAttachments(t *testing.T) {
	db := newTestDB(t)

	label := mustCreateLabel(t, db, "chores")
	todo, err := db.CreateTodo("mow lawn", nil, []int64{label.ID})
	if err != nil {
		t.Fatalf("failed to create todo: %v", err)
	}

	if err := db.DeleteTodo(todo.ID); err != nil {
		t.Fatalf("failed to delete todo: %v", err)
	}

	if _, err := db.GetTodo(todo.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	var attachments int
	if err := db.QueryRow(`SELECT COUNT(*) FROM todo_labels WHERE todo_id = ?`, todo.ID).Scan(&attachments); err != nil {
		t.Fatalf("failed to count attachments: %v", err)
	}
	if attachments != 0 {
		t.Fatalf("expected attachments removed, got %d", attachments)
	}

	// The label itself survives
	if _, err := db.GetLabel(label.ID); err != nil {
		t.Fatalf("label should still exist: %v", err)
	}

	if err := db.DeleteTodo(todo.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestListDueTodos_OnlyUnnotified(t *testing.T) {
	db := newTestDB(t)

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	overdue, err := db.CreateTodo("overdue", &past, nil)
	if err != nil {
		t.Fatalf("failed to create todo: %v", err)
	}
	if _, err := db.CreateTodo("not yet", &future, nil); err != nil {
		t.Fatalf("failed to create todo: %v", err)
	}
	if _, err := db.CreateTodo("no due date", nil, nil); err != nil {
		t.Fatalf("failed to create todo: %v", err)
	}

	due, err := db.ListDueTodos(time.Now())
	if err != nil {
		t.Fatalf("failed to list due todos: %v", err)
	}
	if len(due) != 1 || due[0].ID != overdue.ID {
		t.Fatalf("expected only the overdue todo, got %+v", due)
	}

	if err := db.MarkDueNotified(overdue.ID); err != nil {
		t.Fatalf("failed to mark notified: %v", err)
	}

	due, err = db.ListDueTodos(time.Now())
	if err != nil {
		t.Fatalf("failed to list due todos: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("expected no due todos after notification, got %d", len(due))
	}
}

func TestPurgeCompletedBefore(t *testing.T) {
	db := newTestDB(t)

	label := mustCreateLabel(t, db, "old")

	oldDone, err := db.CreateTodo("old and done", nil, []int64{label.ID})
	if err != nil {
		t.Fatalf("failed to create todo: %v", err)
	}
	recentDone, err := db.CreateTodo("recently done", nil, nil)
	if err != nil {
		t.Fatalf("failed to create todo: %v", err)
	}
	pending, err := db.CreateTodo("old but pending", nil, nil)
	if err != nil {
		t.Fatalf("failed to create todo: %v", err)
	}

	completed := true
	for _, id := range []int64{oldDone.ID, recentDone.ID} {
		if _, err := db.UpdateTodo(id, TodoPatch{Completed: &completed}); err != nil {
			t.Fatalf("failed to complete todo %d: %v", id, err)
		}
	}

	// Age the purge candidates
	aged := time.Now().Add(-90 * 24 * time.Hour)
	for _, id := range []int64{oldDone.ID, pending.ID} {
		if _, err := db.Exec(`UPDATE todos SET updated_at = ? WHERE id = ?`, aged, id); err != nil {
			t.Fatalf("failed to age todo %d: %v", id, err)
		}
	}

	purged, err := db.PurgeCompletedBefore(time.Now().Add(-30 * 24 * time.Hour))
	if err != nil {
		t.Fatalf("failed to purge: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 todo purged, got %d", purged)
	}

	if _, err := db.GetTodo(oldDone.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old completed todo should be gone, got %v", err)
	}
	if _, err := db.GetTodo(recentDone.ID); err != nil {
		t.Fatalf("recent completed todo should survive: %v", err)
	}
	if _, err := db.GetTodo(pending.ID); err != nil {
		t.Fatalf("pending todo should survive: %v", err)
	}

	var attachments int
	if err := db.QueryRow(`SELECT COUNT(*) FROM todo_labels WHERE todo_id = ?`, oldDone.ID).Scan(&attachments); err != nil {
		t.Fatalf("failed to count attachments: %v", err)
	}
	if attachments != 0 {
		t.Fatalf("expected purged todo attachments removed, got %d", attachments)
	}
}
