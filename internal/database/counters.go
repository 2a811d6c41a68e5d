package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// NextPrivateID returns the private id the next row inserted into table by
// userID should take. It does not reserve the id; IncPrivateID does that
// once the row has been written.
func (db *DB) NextPrivateID(ctx context.Context, table string, userID int64) (int64, error) {
	var maxID int64
	err := db.QueryRowContext(ctx, `
		SELECT max_id FROM private_counters WHERE table_name = ? AND user_id = ?
	`, table, userID).Scan(&maxID)
	if errors.Is(err, sql.ErrNoRows) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read private counter for %s: %w", table, err)
	}
	return maxID + 1, nil
}

// IncPrivateID bumps the private counter of (table, userID) by one.
func (db *DB) IncPrivateID(ctx context.Context, table string, userID int64) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO private_counters (table_name, user_id, max_id) VALUES (?, ?, 1)
		ON CONFLICT(table_name, user_id) DO UPDATE SET max_id = max_id + 1
	`, table, userID)
	if err != nil {
		return fmt.Errorf("failed to increment private counter for %s: %w", table, err)
	}
	return nil
}
