package store

import (
	"context"
	"database/sql"
	"errors"
)

// SetOOB writes a single out-of-band scoped key/value pair (collection
// sync cookies, aggregation engine bookkeeping, etc).
func (tx *Tx) SetOOB(ctx context.Context, scope, key, value string) error {
	_, err := tx.tx.ExecContext(ctx, `
		INSERT INTO oob(scope, key, value) VALUES (?, ?, ?)
		ON CONFLICT(scope, key) DO UPDATE SET value = excluded.value`, scope, key, value)
	return err
}

// DeleteOOB removes a single scoped key.
func (tx *Tx) DeleteOOB(ctx context.Context, scope, key string) error {
	_, err := tx.tx.ExecContext(ctx, `DELETE FROM oob WHERE scope = ? AND key = ?`, scope, key)
	return err
}

// GetOOB reads a single scoped key.
func (a *Adapter) GetOOB(ctx context.Context, scope, key string) (string, bool, error) {
	row := a.db.QueryRowContext(ctx, `SELECT value FROM oob WHERE scope = ? AND key = ?`, scope, key)
	var value string
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

// ListOOBKeys returns every key currently set within scope.
func (a *Adapter) ListOOBKeys(ctx context.Context, scope string) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT key FROM oob WHERE scope = ? ORDER BY key`, scope)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}
