package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Sentinel errors returned by the repository methods. Handlers map these
// to HTTP status codes.
var (
	// ErrNotFound is returned when a todo or label does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateLabel is returned when creating a label whose name is taken.
	ErrDuplicateLabel = errors.New("label already exists")
	// ErrLabelMissing is returned when a commit fails because a referenced
	// label id does not exist. The todo_labels foreign keys are deferred, so
	// this surfaces at commit time, not at insert time.
	ErrLabelMissing = errors.New("referenced label does not exist")
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
	path string
	mu   sync.Mutex
}

// New creates a new database connection
func New(path string) (*DB, error) {
	// WAL for concurrent reads; foreign_keys must be on for the deferred
	// constraints on todo_labels to be enforced at commit.
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite with WAL mode supports concurrent reads but serializes writes
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	log.Debug().Str("path", path).Msg("Database connection established")

	return &DB{
		DB:   db,
		path: path,
	}, nil
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// Transaction wraps a function in a database transaction
func (db *DB) Transaction(fn func(*sql.Tx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("Failed to rollback transaction")
		}
		return err
	}

	// Deferred foreign keys are only checked at COMMIT, and a COMMIT that
	// fails there leaves the transaction open on the connection where
	// database/sql can no longer roll it back. Verify before committing so
	// a violation still aborts the whole transaction.
	if err := checkDeferredForeignKeys(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("Failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// errDeferredFK marks a pending foreign key violation detected just before
// commit.
var errDeferredFK = errors.New("foreign key constraint violated")

// checkDeferredForeignKeys runs SQLite's foreign key check inside the open
// transaction, surfacing violations that deferred constraints would
// otherwise only raise from COMMIT itself.
func checkDeferredForeignKeys(tx *sql.Tx) error {
	var table, parent string
	var rowid sql.NullInt64
	var fkid int
	err := tx.QueryRow("PRAGMA foreign_key_check").Scan(&table, &rowid, &parent, &fkid)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run foreign key check: %w", err)
	}
	return fmt.Errorf("%w: %s references missing %s", errDeferredFK, table, parent)
}

// isForeignKeyViolation reports whether err is a foreign key constraint
// failure, either caught by the pre-commit check or raised by SQLite on an
// immediate constraint.
func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errDeferredFK) {
		return true
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
