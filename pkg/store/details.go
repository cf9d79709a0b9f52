package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"

	"github.com/hazel-systems/contactstore/pkg/model"
)

// encodeFields serializes a Detail's Fields map to JSON. FieldKey is an int
// type, so json.Marshal's native map-key handling (string keys only)
// cannot take the map directly; encode into a map[string]any first.
func encodeFields(fields map[model.FieldKey]any) (string, error) {
	if len(fields) == 0 {
		return "{}", nil
	}
	m := make(map[string]any, len(fields))
	for k, v := range fields {
		m[strconv.Itoa(int(k))] = v
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeFields(raw string) (map[model.FieldKey]any, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	fields := make(map[model.FieldKey]any, len(m))
	for k, v := range m {
		n, err := strconv.Atoi(k)
		if err != nil {
			return nil, err
		}
		// JSON numbers decode to float64; database ids round-trip through
		// FieldDatabaseID as int32, so normalize back.
		if f, ok := v.(float64); ok && f == float64(int32(f)) {
			v = int32(f)
		}
		fields[model.FieldKey(n)] = v
	}
	return fields, nil
}

// InsertDetail attaches a detail to contact and returns its assigned
// DetailID.
func (tx *Tx) InsertDetail(ctx context.Context, contact model.ContactID, d model.Detail, flags uint8) (int32, error) {
	raw, err := encodeFields(d.Fields)
	if err != nil {
		return 0, err
	}
	res, err := tx.tx.ExecContext(ctx, `
		INSERT INTO details(contact_id, type, fields_json, change_flags, database_id)
		VALUES (?, ?, ?, ?, ?)`, contact, d.Type, raw, flags, d.DatabaseID())
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return int32(id), err
}

// UpdateDetail overwrites an existing detail's fields in place, preserving
// its DetailID.
func (tx *Tx) UpdateDetail(ctx context.Context, detailID int32, d model.Detail, flags uint8) error {
	raw, err := encodeFields(d.Fields)
	if err != nil {
		return err
	}
	_, err = tx.tx.ExecContext(ctx, `
		UPDATE details SET type = ?, fields_json = ?, change_flags = ?, database_id = ? WHERE id = ?`,
		d.Type, raw, flags, d.DatabaseID(), detailID)
	return err
}

// DeleteDetail removes one detail row by id.
func (tx *Tx) DeleteDetail(ctx context.Context, detailID int32) error {
	_, err := tx.tx.ExecContext(ctx, `DELETE FROM details WHERE id = ?`, detailID)
	return err
}

// DeleteDetailsForContact removes every detail belonging to contact (used
// when a contact itself is deleted).
func (tx *Tx) DeleteDetailsForContact(ctx context.Context, contact model.ContactID) error {
	_, err := tx.tx.ExecContext(ctx, `DELETE FROM details WHERE contact_id = ?`, contact)
	return err
}

// ListDetails returns every detail attached to contact, in ascending
// detail-id (insertion) order.
func (a *Adapter) ListDetails(ctx context.Context, contact model.ContactID) ([]model.Detail, error) {
	return scanDetailList(a.db.QueryContext(ctx, `
		SELECT id, type, fields_json FROM details WHERE contact_id = ? ORDER BY id`, contact))
}

// ListDetails is the transaction-scoped counterpart of Adapter's, for
// callers that need to see details inserted earlier in the same open
// transaction (a separate pooled connection would not).
func (tx *Tx) ListDetails(ctx context.Context, contact model.ContactID) ([]model.Detail, error) {
	return scanDetailList(tx.tx.QueryContext(ctx, `
		SELECT id, type, fields_json FROM details WHERE contact_id = ? ORDER BY id`, contact))
}

func scanDetailList(rows *sql.Rows, err error) ([]model.Detail, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Detail
	for rows.Next() {
		var d model.Detail
		var raw string
		if err := rows.Scan(&d.DetailID, &d.Type, &raw); err != nil {
			return nil, err
		}
		fields, err := decodeFields(raw)
		if err != nil {
			return nil, err
		}
		d.Fields = fields
		out = append(out, d)
	}
	return out, rows.Err()
}

// DetailRow pairs a Detail with its persisted change-flags byte, for
// callers (the writer's conflict-resolution path) that need to inspect
// per-detail change state rather than just the detail's fields.
type DetailRow struct {
	Detail      model.Detail
	ChangeFlags uint8
}

// ListDetailsWithFlags is ListDetails plus each row's change_flags byte.
func (a *Adapter) ListDetailsWithFlags(ctx context.Context, contact model.ContactID) ([]DetailRow, error) {
	return scanDetailRows(a.db.QueryContext(ctx, `
		SELECT id, type, fields_json, change_flags FROM details WHERE contact_id = ? ORDER BY id`, contact))
}

// ListDetailsWithFlags is the transaction-scoped counterpart of Adapter's.
func (tx *Tx) ListDetailsWithFlags(ctx context.Context, contact model.ContactID) ([]DetailRow, error) {
	return scanDetailRows(tx.tx.QueryContext(ctx, `
		SELECT id, type, fields_json, change_flags FROM details WHERE contact_id = ? ORDER BY id`, contact))
}

func scanDetailRows(rows *sql.Rows, err error) ([]DetailRow, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DetailRow
	for rows.Next() {
		var dr DetailRow
		var raw string
		if err := rows.Scan(&dr.Detail.DetailID, &dr.Detail.Type, &raw, &dr.ChangeFlags); err != nil {
			return nil, err
		}
		fields, err := decodeFields(raw)
		if err != nil {
			return nil, err
		}
		dr.Detail.Fields = fields
		out = append(out, dr)
	}
	return out, rows.Err()
}

// ListDetailsByType restricts ListDetails to a single detail type, used by
// the reader's detail-type projections (FetchHint.DetailTypes, ReadDetails).
func (a *Adapter) ListDetailsByType(ctx context.Context, contact model.ContactID, t model.DetailType) ([]model.Detail, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, type, fields_json FROM details WHERE contact_id = ? AND type = ? ORDER BY id`, contact, t)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Detail
	for rows.Next() {
		var d model.Detail
		var raw string
		if err := rows.Scan(&d.DetailID, &d.Type, &raw); err != nil {
			return nil, err
		}
		fields, err := decodeFields(raw)
		if err != nil {
			return nil, err
		}
		d.Fields = fields
		out = append(out, d)
	}
	return out, rows.Err()
}
