package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/hazel-systems/contactstore/pkg/model"
)

// InsertContact creates a bare contact row (no details) in collection and
// returns the assigned ContactID.
func (tx *Tx) InsertContact(ctx context.Context, collection model.CollectionID, flags uint8) (model.ContactID, error) {
	res, err := tx.tx.ExecContext(ctx, `
		INSERT INTO contacts(collection_id, change_flags) VALUES (?, ?)`, collection, flags)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return model.ContactID(id), err
}

// SetContactChangeFlags overwrites a contact's change-flags byte.
func (tx *Tx) SetContactChangeFlags(ctx context.Context, id model.ContactID, flags uint8) error {
	_, err := tx.tx.ExecContext(ctx, `UPDATE contacts SET change_flags = ? WHERE id = ?`, flags, id)
	return err
}

// DeleteContact removes a contact row. Callers must delete its details and
// relationships first (or rely on the writer package to do so inside the
// same transaction).
func (tx *Tx) DeleteContact(ctx context.Context, id model.ContactID) error {
	_, err := tx.tx.ExecContext(ctx, `DELETE FROM contacts WHERE id = ?`, id)
	return err
}

// contactRow is the bare row shape, without details.
type contactRow struct {
	ID           model.ContactID
	CollectionID model.CollectionID
	ChangeFlags  uint8
}

// GetContactRow reads the bare contact row (no details attached).
func (a *Adapter) GetContactRow(ctx context.Context, id model.ContactID) (contactRow, error) {
	return scanContactRow(a.db.QueryRowContext(ctx, `SELECT id, collection_id, change_flags FROM contacts WHERE id = ?`, id))
}

// GetContactRow is the transaction-scoped counterpart of Adapter's. Callers
// reading a row they (or an earlier step in the same transaction) may have
// just written must use this instead of the Adapter method: a separate
// pooled connection cannot see another connection's uncommitted writes.
func (tx *Tx) GetContactRow(ctx context.Context, id model.ContactID) (contactRow, error) {
	return scanContactRow(tx.tx.QueryRowContext(ctx, `SELECT id, collection_id, change_flags FROM contacts WHERE id = ?`, id))
}

func scanContactRow(row *sql.Row) (contactRow, error) {
	var c contactRow
	err := row.Scan(&c.ID, &c.CollectionID, &c.ChangeFlags)
	if errors.Is(err, sql.ErrNoRows) {
		return contactRow{}, ErrNotFound
	}
	return c, err
}

// ListContactIDs returns every contact id in a collection, in insertion
// (rowid) order.
func (a *Adapter) ListContactIDs(ctx context.Context, collection model.CollectionID) ([]model.ContactID, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT id FROM contacts WHERE collection_id = ? ORDER BY id`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ContactID
	for rows.Next() {
		var id model.ContactID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListChangedContactIDs returns contact ids in collection whose
// change_flags is non-zero.
func (a *Adapter) ListChangedContactIDs(ctx context.Context, collection model.CollectionID) ([]model.ContactID, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id FROM contacts WHERE collection_id = ? AND change_flags != 0 ORDER BY id`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ContactID
	for rows.Next() {
		var id model.ContactID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
