package database

import (
	"testing"
)

func TestMigrate_Idempotent(t *testing.T) {
	db := newTestDB(t)

	// newTestDB already migrated once; a second run must be a no-op
	if err := db.Migrate(); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}

	var version int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version); err != nil {
		t.Fatalf("failed to read schema version: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("expected schema version %d, got %d", len(migrations), version)
	}

	var applied int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&applied); err != nil {
		t.Fatalf("failed to count applied migrations: %v", err)
	}
	if applied != len(migrations) {
		t.Errorf("expected %d applied migrations, got %d", len(migrations), applied)
	}
}

func TestSplitSQLStatements(t *testing.T) {
	sql := `
		-- leading comment
		CREATE TABLE a (id INTEGER);

		CREATE INDEX idx_a ON a(id);
	`
	statements := splitSQLStatements(sql)
	if len(statements) != 2 {
		t.Fatalf("expected 2 statements, got %d: %v", len(statements), statements)
	}
}

func TestSettings_Defaults(t *testing.T) {
	db := newTestDB(t)

	if err := db.InitializeDefaults(); err != nil {
		t.Fatalf("failed to initialize defaults: %v", err)
	}

	val, err := db.GetSetting("maintenance.schedule")
	if err != nil {
		t.Fatalf("failed to get setting: %v", err)
	}
	if val != "0 3 * * *" {
		t.Errorf("expected default schedule, got %q", val)
	}

	// An operator-set value survives a second initialization
	if err := db.SetSetting("maintenance.schedule", "30 4 * * *"); err != nil {
		t.Fatalf("failed to set setting: %v", err)
	}
	if err := db.InitializeDefaults(); err != nil {
		t.Fatalf("failed to re-initialize defaults: %v", err)
	}
	val, err = db.GetSetting("maintenance.schedule")
	if err != nil {
		t.Fatalf("failed to get setting: %v", err)
	}
	if val != "30 4 * * *" {
		t.Errorf("expected custom schedule to survive, got %q", val)
	}
}
