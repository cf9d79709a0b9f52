package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/hazel-systems/contactstore/pkg/model"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("store: not found")

// InsertCollection inserts c and returns the assigned CollectionID. If c.ID
// is already set (a sentinel collection), that id is used verbatim.
func (tx *Tx) InsertCollection(ctx context.Context, c model.Collection) (model.CollectionID, error) {
	if c.ID != 0 {
		_, err := tx.tx.ExecContext(ctx, `
			INSERT INTO collections(id, name, aggregable, application_name, account_id, remote_path, read_only)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.Name, c.Aggregable, c.ApplicationName, c.AccountID, c.RemotePath, c.ReadOnly)
		return c.ID, err
	}
	res, err := tx.tx.ExecContext(ctx, `
		INSERT INTO collections(name, aggregable, application_name, account_id, remote_path, read_only)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.Name, c.Aggregable, c.ApplicationName, c.AccountID, c.RemotePath, c.ReadOnly)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return model.CollectionID(id), err
}

// DeleteCollection removes a collection by id. Callers must first remove
// (or reassign) its contacts; the schema's foreign key will reject an
// orphaning delete.
func (tx *Tx) DeleteCollection(ctx context.Context, id model.CollectionID) error {
	_, err := tx.tx.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, id)
	return err
}

// GetCollection reads one collection by id.
func (a *Adapter) GetCollection(ctx context.Context, id model.CollectionID) (model.Collection, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT id, name, aggregable, application_name, account_id, remote_path, read_only
		FROM collections WHERE id = ?`, id)
	return scanCollection(row)
}

// ListCollections returns every collection, ordered by id.
func (a *Adapter) ListCollections(ctx context.Context) ([]model.Collection, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, name, aggregable, application_name, account_id, remote_path, read_only
		FROM collections ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCollection(row rowScanner) (model.Collection, error) {
	var c model.Collection
	err := row.Scan(&c.ID, &c.Name, &c.Aggregable, &c.ApplicationName, &c.AccountID, &c.RemotePath, &c.ReadOnly)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Collection{}, ErrNotFound
	}
	return c, err
}
