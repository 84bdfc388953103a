package database

import (
	"database/sql"
	"strings"
	"time"
)

// nullTimeToPtr converts a sql.NullTime to a pointer (nil if not valid)
func nullTimeToPtr(n sql.NullTime) *time.Time {
	if n.Valid {
		return &n.Time
	}
	return nil
}

// inPlaceholders builds a "?,?,?" placeholder list and the matching args
// slice for an IN clause over the given ids.
func inPlaceholders(ids []int64) (string, []any) {
	placeholders := strings.TrimRight(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return placeholders, args
}
