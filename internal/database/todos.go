package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Todo represents a todo item with its attached labels
type Todo struct {
	ID          int64      `json:"id"`
	Text        string     `json:"text"`
	Completed   bool       `json:"completed"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	Labels      []Label    `json:"labels"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	dueNotified bool
}

// TodoPatch describes a partial update to a todo. Nil fields are left
// unchanged; a non-nil LabelIDs replaces the attached label set.
type TodoPatch struct {
	Text      *string
	Completed *bool
	DueAt     *time.Time
	ClearDue  bool
	LabelIDs  []int64
}

// CreateTodo inserts a todo and its label attachments in a single
// transaction. The todo_labels foreign keys are deferred, so the rows
// referencing the not-yet-committed todo are only checked at commit; a
// label id that does not exist fails the commit and is reported as
// ErrLabelMissing.
func (db *DB) CreateTodo(text string, dueAt *time.Time, labelIDs []int64) (*Todo, error) {
	var todoID int64

	err := db.Transaction(func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			INSERT INTO todos (text, completed, due_at) VALUES (?, false, ?)
		`, text, dueAt)
		if err != nil {
			return fmt.Errorf("failed to insert todo: %w", err)
		}

		todoID, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get todo id: %w", err)
		}

		return attachLabels(tx, todoID, labelIDs)
	})
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrLabelMissing
		}
		return nil, err
	}

	return db.GetTodo(todoID)
}

// GetTodo retrieves a todo by id, including its labels
func (db *DB) GetTodo(id int64) (*Todo, error) {
	todo := &Todo{}
	var dueAt sql.NullTime
	err := db.QueryRow(`
		SELECT id, text, completed, due_at, due_notified, created_at, updated_at
		FROM todos WHERE id = ?
	`, id).Scan(&todo.ID, &todo.Text, &todo.Completed, &dueAt, &todo.dueNotified, &todo.CreatedAt, &todo.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get todo: %w", err)
	}
	todo.DueAt = nullTimeToPtr(dueAt)

	labels, err := db.labelsForTodos([]int64{id})
	if err != nil {
		return nil, err
	}
	todo.Labels = labels[id]
	if todo.Labels == nil {
		todo.Labels = []Label{}
	}

	return todo, nil
}

// ListTodos returns all todos with their labels, newest first
func (db *DB) ListTodos() ([]*Todo, error) {
	rows, err := db.Query(`
		SELECT id, text, completed, due_at, due_notified, created_at, updated_at
		FROM todos ORDER BY id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}
	defer rows.Close()

	var todos []*Todo
	var ids []int64
	for rows.Next() {
		todo := &Todo{Labels: []Label{}}
		var dueAt sql.NullTime
		if err := rows.Scan(&todo.ID, &todo.Text, &todo.Completed, &dueAt, &todo.dueNotified, &todo.CreatedAt, &todo.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan todo: %w", err)
		}
		todo.DueAt = nullTimeToPtr(dueAt)
		todos = append(todos, todo)
		ids = append(ids, todo.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate todos: %w", err)
	}

	labels, err := db.labelsForTodos(ids)
	if err != nil {
		return nil, err
	}
	for _, todo := range todos {
		if l, ok := labels[todo.ID]; ok {
			todo.Labels = l
		}
	}

	return todos, nil
}

// UpdateTodo applies a partial update. When patch.LabelIDs is non-nil the
// attached label set is replaced inside the same transaction, again relying
// on commit-time constraint checks for the new attachments.
func (db *DB) UpdateTodo(id int64, patch TodoPatch) (*Todo, error) {
	err := db.Transaction(func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM todos WHERE id = ?`, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check todo: %w", err)
		}
		if exists == 0 {
			return ErrNotFound
		}

		if patch.Text != nil {
			if _, err := tx.Exec(`UPDATE todos SET text = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, *patch.Text, id); err != nil {
				return fmt.Errorf("failed to update todo text: %w", err)
			}
		}
		if patch.Completed != nil {
			if _, err := tx.Exec(`UPDATE todos SET completed = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, *patch.Completed, id); err != nil {
				return fmt.Errorf("failed to update todo completed: %w", err)
			}
		}
		if patch.DueAt != nil || patch.ClearDue {
			var due *time.Time
			if !patch.ClearDue {
				due = patch.DueAt
			}
			if _, err := tx.Exec(`UPDATE todos SET due_at = ?, due_notified = false, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, due, id); err != nil {
				return fmt.Errorf("failed to update todo due date: %w", err)
			}
		}

		if patch.LabelIDs != nil {
			if _, err := tx.Exec(`DELETE FROM todo_labels WHERE todo_id = ?`, id); err != nil {
				return fmt.Errorf("failed to clear todo labels: %w", err)
			}
			return attachLabels(tx, id, patch.LabelIDs)
		}

		return nil
	})
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrLabelMissing
		}
		return nil, err
	}

	return db.GetTodo(id)
}

// DeleteTodo removes a todo and its label attachments
func (db *DB) DeleteTodo(id int64) error {
	return db.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM todo_labels WHERE todo_id = ?`, id); err != nil {
			return fmt.Errorf("failed to detach todo labels: %w", err)
		}

		result, err := tx.Exec(`DELETE FROM todos WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete todo: %w", err)
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

// ListDueTodos returns incomplete todos whose due date has passed and that
// have not had a due notification yet.
func (db *DB) ListDueTodos(now time.Time) ([]*Todo, error) {
	rows, err := db.Query(`
		SELECT id, text, completed, due_at, due_notified, created_at, updated_at
		FROM todos
		WHERE completed = false AND due_notified = false AND due_at IS NOT NULL AND due_at <= ?
		ORDER BY due_at ASC
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due todos: %w", err)
	}
	defer rows.Close()

	var todos []*Todo
	for rows.Next() {
		todo := &Todo{Labels: []Label{}}
		var dueAt sql.NullTime
		if err := rows.Scan(&todo.ID, &todo.Text, &todo.Completed, &dueAt, &todo.dueNotified, &todo.CreatedAt, &todo.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan due todo: %w", err)
		}
		todo.DueAt = nullTimeToPtr(dueAt)
		todos = append(todos, todo)
	}

	return todos, rows.Err()
}

// MarkDueNotified records that a due notification was emitted for a todo
func (db *DB) MarkDueNotified(id int64) error {
	_, err := db.Exec(`UPDATE todos SET due_notified = true WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark todo notified: %w", err)
	}
	return nil
}

// PurgeCompletedBefore deletes completed todos last updated before cutoff,
// along with their label attachments. Returns the number of todos removed.
func (db *DB) PurgeCompletedBefore(cutoff time.Time) (int64, error) {
	var purged int64
	err := db.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			DELETE FROM todo_labels WHERE todo_id IN (
				SELECT id FROM todos WHERE completed = true AND updated_at < ?
			)
		`, cutoff); err != nil {
			return fmt.Errorf("failed to detach purged todo labels: %w", err)
		}

		result, err := tx.Exec(`DELETE FROM todos WHERE completed = true AND updated_at < ?`, cutoff)
		if err != nil {
			return fmt.Errorf("failed to purge todos: %w", err)
		}
		purged, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		return nil
	})
	return purged, err
}

// attachLabels inserts todo_labels rows for each label id. Runs inside an
// open transaction; validity of the label ids is only checked at commit.
func attachLabels(tx *sql.Tx, todoID int64, labelIDs []int64) error {
	if len(labelIDs) == 0 {
		return nil
	}

	stmt, err := tx.Prepare(`INSERT INTO todo_labels (todo_id, label_id) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare label attach: %w", err)
	}
	defer stmt.Close()

	for _, labelID := range labelIDs {
		if _, err := stmt.Exec(todoID, labelID); err != nil {
			return fmt.Errorf("failed to attach label %d: %w", labelID, err)
		}
	}

	return nil
}

// labelsForTodos fetches the labels attached to each of the given todo ids
func (db *DB) labelsForTodos(todoIDs []int64) (map[int64][]Label, error) {
	results := make(map[int64][]Label)
	if len(todoIDs) == 0 {
		return results, nil
	}

	placeholders, args := inPlaceholders(todoIDs)
	rows, err := db.Query(fmt.Sprintf(`
		SELECT tl.todo_id, l.id, l.name
		FROM todo_labels tl
		INNER JOIN labels l ON l.id = tl.label_id
		WHERE tl.todo_id IN (%s)
		ORDER BY tl.todo_id, l.id
	`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list todo labels: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var todoID int64
		var label Label
		if err := rows.Scan(&todoID, &label.ID, &label.Name); err != nil {
			return nil, fmt.Errorf("failed to scan todo label: %w", err)
		}
		results[todoID] = append(results[todoID], label)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate todo labels: %w", err)
	}

	return results, nil
}
