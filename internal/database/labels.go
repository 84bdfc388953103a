package database

import (
	"database/sql"
	"fmt"
)

// Label represents a label that can be attached to todos
type Label struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CreateLabel inserts a new label. Creating a label whose name already
// exists returns ErrDuplicateLabel. The name check and the insert run in
// one transaction so concurrent creates of the same name cannot both pass
// the check.
func (db *DB) CreateLabel(name string) (*Label, error) {
	label := &Label{Name: name}
	err := db.Transaction(func(tx *sql.Tx) error {
		var existing int64
		err := tx.QueryRow(`SELECT id FROM labels WHERE name = ?`, name).Scan(&existing)
		if err == nil {
			return ErrDuplicateLabel
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("failed to check label name: %w", err)
		}

		result, err := tx.Exec(`INSERT INTO labels (name) VALUES (?)`, name)
		if err != nil {
			return fmt.Errorf("failed to insert label: %w", err)
		}
		label.ID, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get label id: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return label, nil
}

// GetOrCreateLabel returns the label with the given name, creating it if
// it does not exist. Used by the import watcher, which references labels
// by name rather than id.
func (db *DB) GetOrCreateLabel(name string) (*Label, error) {
	label := &Label{Name: name}
	err := db.Transaction(func(tx *sql.Tx) error {
		err := tx.QueryRow(`SELECT id FROM labels WHERE name = ?`, name).Scan(&label.ID)
		if err == nil {
			return nil
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("failed to check label name: %w", err)
		}

		result, err := tx.Exec(`INSERT INTO labels (name) VALUES (?)`, name)
		if err != nil {
			return fmt.Errorf("failed to insert label: %w", err)
		}
		label.ID, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get label id: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return label, nil
}

// GetLabel retrieves a label by id
func (db *DB) GetLabel(id int64) (*Label, error) {
	label := &Label{}
	err := db.QueryRow(`SELECT id, name FROM labels WHERE id = ?`, id).Scan(&label.ID, &label.Name)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get label: %w", err)
	}
	return label, nil
}

// GetLabelByName retrieves a label by name, returning nil if absent
func (db *DB) GetLabelByName(name string) (*Label, error) {
	label := &Label{}
	err := db.QueryRow(`SELECT id, name FROM labels WHERE name = ?`, name).Scan(&label.ID, &label.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get label by name: %w", err)
	}
	return label, nil
}

// ListLabels returns all labels ordered by id
func (db *DB) ListLabels() ([]*Label, error) {
	rows, err := db.Query(`SELECT id, name FROM labels ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}
	defer rows.Close()

	var labels []*Label
	for rows.Next() {
		label := &Label{}
		if err := rows.Scan(&label.ID, &label.Name); err != nil {
			return nil, fmt.Errorf("failed to scan label: %w", err)
		}
		labels = append(labels, label)
	}

	return labels, rows.Err()
}

// DeleteLabel removes a label, detaching it from any todos in the same
// transaction so no todo_labels row is left dangling at commit.
func (db *DB) DeleteLabel(id int64) error {
	return db.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM todo_labels WHERE label_id = ?`, id); err != nil {
			return fmt.Errorf("failed to detach label: %w", err)
		}

		result, err := tx.Exec(`DELETE FROM labels WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete label: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return ErrNotFound
		}
		return nil
	})
}
