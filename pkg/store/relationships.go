package store

import (
	"context"
	"database/sql"

	"github.com/hazel-systems/contactstore/pkg/model"
)

// InsertRelationship links first and second by typ. Idempotent: an
// existing identical row is left untouched.
func (tx *Tx) InsertRelationship(ctx context.Context, r model.Relationship) error {
	_, err := tx.tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO relationships(first_id, type, second_id) VALUES (?, ?, ?)`,
		r.First, r.Type, r.Second)
	return err
}

// DeleteRelationship removes one relationship triple.
func (tx *Tx) DeleteRelationship(ctx context.Context, r model.Relationship) error {
	_, err := tx.tx.ExecContext(ctx, `
		DELETE FROM relationships WHERE first_id = ? AND type = ? AND second_id = ?`,
		r.First, r.Type, r.Second)
	return err
}

// DeleteRelationshipsInvolving removes every relationship where contact
// appears as either end (used when a contact is deleted).
func (tx *Tx) DeleteRelationshipsInvolving(ctx context.Context, contact model.ContactID) error {
	_, err := tx.tx.ExecContext(ctx, `
		DELETE FROM relationships WHERE first_id = ? OR second_id = ?`, contact, contact)
	return err
}

// ListRelationshipsFrom returns every relationship with contact as the
// first element, restricted to typ when typ is non-empty.
func (a *Adapter) ListRelationshipsFrom(ctx context.Context, contact model.ContactID, typ string) ([]model.Relationship, error) {
	var rows *sql.Rows
	var err error
	if typ == "" {
		rows, err = a.db.QueryContext(ctx, `SELECT first_id, type, second_id FROM relationships WHERE first_id = ? ORDER BY second_id`, contact)
	} else {
		rows, err = a.db.QueryContext(ctx, `SELECT first_id, type, second_id FROM relationships WHERE first_id = ? AND type = ? ORDER BY second_id`, contact, typ)
	}
	if err != nil {
		return nil, err
	}
	return scanRelationships(rows)
}

// ListRelationshipsTo returns every relationship with contact as the
// second element (e.g. looking up an aggregate's own constituents would
// use ListRelationshipsFrom with AggregatesRelationshipType; looking up
// which aggregate a constituent belongs to uses this).
func (a *Adapter) ListRelationshipsTo(ctx context.Context, contact model.ContactID, typ string) ([]model.Relationship, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT first_id, type, second_id FROM relationships WHERE second_id = ? AND type = ? ORDER BY first_id`, contact, typ)
	if err != nil {
		return nil, err
	}
	return scanRelationships(rows)
}

func scanRelationships(rows *sql.Rows) ([]model.Relationship, error) {
	defer rows.Close()
	var out []model.Relationship
	for rows.Next() {
		var r model.Relationship
		if err := rows.Scan(&r.First, &r.Type, &r.Second); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
