package importer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tasklight/tasklight/internal/database"
)

func newTestImporter(t *testing.T) (*database.DB, *Importer) {
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

	imp, err := New(db, nil, nil)
	if err != nil {
		t.Fatalf("failed to create importer: %v", err)
	}
	t.Cleanup(imp.Stop)

	return db, imp
}

func writeDropFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "drop.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write drop file: %v", err)
	}
	return path
}

func TestImportFile_CreatesTodosAndLabels(t *testing.T) {
	db, imp := newTestImporter(t)

	path := writeDropFile(t, `{
		"todos": [
			{"text": "buy milk", "labels": ["errands"]},
			{"text": "call dentist", "labels": ["errands", "health"]}
		]
	}`)

	imp.importFile(path)

	todos, err := db.ListTodos()
	if err != nil {
		t.Fatalf("failed to list todos: %v", err)
	}
	if len(todos) != 2 {
		t.Fatalf("expected 2 todos, got %d", len(todos))
	}

	labels, err := db.ListLabels()
	if err != nil {
		t.Fatalf("failed to list labels: %v", err)
	}
	if len(labels) != 2 {
		t.Fatalf("expected 2 labels (shared label reused), got %d", len(labels))
	}

	// The file is consumed on success
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected drop file to be removed, stat err: %v", err)
	}
}

func TestImportFile_RejectsMalformedJSON(t *testing.T) {
	db, imp := newTestImporter(t)

	path := writeDropFile(t, `{not json`)

	imp.importFile(path)

	todos, err := db.ListTodos()
	if err != nil {
		t.Fatalf("failed to list todos: %v", err)
	}
	if len(todos) != 0 {
		t.Fatalf("expected no todos, got %d", len(todos))
	}

	if _, err := os.Stat(path + ".err"); err != nil {
		t.Errorf("expected rejected file renamed with .err suffix: %v", err)
	}
}

func TestImportFile_RejectsInvalidText(t *testing.T) {
	db, imp := newTestImporter(t)

	path := writeDropFile(t, `{"todos": [{"text": "   "}]}`)

	imp.importFile(path)

	todos, err := db.ListTodos()
	if err != nil {
		t.Fatalf("failed to list todos: %v", err)
	}
	if len(todos) != 0 {
		t.Fatalf("expected no todos from invalid file, got %d", len(todos))
	}

	if _, err := os.Stat(path + ".err"); err != nil {
		t.Errorf("expected rejected file renamed with .err suffix: %v", err)
	}
}

func TestIsImportFile(t *testing.T) {
	if !isImportFile("/drop/todos.json") {
		t.Error("expected .json to be accepted")
	}
	if !isImportFile("/drop/TODOS.JSON") {
		t.Error("expected extension match to be case insensitive")
	}
	if isImportFile("/drop/todos.json.err") {
		t.Error("rejected files must not be re-imported")
	}
	if isImportFile("/drop/notes.txt") {
		t.Error("expected non-json to be ignored")
	}
}
