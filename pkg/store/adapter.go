// Package store is the Storage Adapter: it opens the backing sqlite
// database and exposes typed read/write primitives over contacts,
// collections, details, relationships and out-of-band scopes. Every
// mutation goes through WithTx, which retries on a busy/locked database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/blang/semver/v4"
	"github.com/cenkalti/backoff/v4"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hazel-systems/contactstore/pkg/model"
)

// Options configures Open.
type Options struct {
	// Privileged requests exclusive/privileged access to the database.
	Privileged bool
}

// Adapter owns one *sql.DB handle. The engine opens two independent
// Adapters: one for the scheduler's worker goroutine, one for synchronous
// callers, so the two never contend for the same *sql.DB (see spec §5).
type Adapter struct {
	db   *sql.DB
	path string

	// EffectivePrivileged reports the privilege level actually obtained,
	// which may be lower than Options.Privileged requested.
	EffectivePrivileged bool
}

// Open opens or creates the sqlite database at path, applies the schema,
// and returns an Adapter. If opts.Privileged is true but an exclusive
// handle cannot be obtained, Open still succeeds in unprivileged mode
// (per spec §4.A: "report the effective mode back to the engine" — not a
// failure); callers observe the downgrade via EffectivePrivileged.
func Open(path string, opts Options) (*Adapter, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}
	// WAL mode allows any number of concurrent readers alongside the one
	// active writer; a single-connection pool would instead deadlock the
	// moment a typed read helper is called from inside an open WithTx
	// (the transaction pins the pool's only connection).
	db.SetMaxOpenConns(4)

	a := &Adapter{db: db, path: path, EffectivePrivileged: opts.Privileged}

	if err := a.migrate(); err != nil && !errors.Is(err, ErrSchemaUpgraded) {
		db.Close()
		return nil, fmt.Errorf("store: migrating %s: %w", path, err)
	}

	if opts.Privileged {
		if _, err := db.Exec(`PRAGMA locking_mode=EXCLUSIVE`); err != nil {
			a.EffectivePrivileged = false
		}
	}

	return a, nil
}

// Path returns the database file path this Adapter was opened with.
func (a *Adapter) Path() string { return a.path }

// Close releases the underlying database handle.
func (a *Adapter) Close() error { return a.db.Close() }

func (a *Adapter) migrate() error {
	if _, err := a.db.Exec(schema); err != nil {
		return err
	}

	row := a.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`)
	var raw string
	switch err := row.Scan(&raw); {
	case errors.Is(err, sql.ErrNoRows):
		_, err := a.db.Exec(`INSERT INTO schema_version(version) VALUES (?)`, compiledSchemaVersion.String())
		return err
	case err != nil:
		return err
	}

	current, err := semver.Parse(raw)
	if err != nil {
		return fmt.Errorf("store: invalid schema_version row %q: %w", raw, err)
	}
	if current.LT(compiledSchemaVersion) {
		if _, err := a.db.Exec(`UPDATE schema_version SET version = ?`, compiledSchemaVersion.String()); err != nil {
			return err
		}
		return ErrSchemaUpgraded
	}
	return nil
}

// ErrSchemaUpgraded is returned by migrate when it steps an older
// persisted schema version forward to compiledSchemaVersion. Open treats
// it as success, so it never reaches Open's callers.
var ErrSchemaUpgraded = errors.New("store: schema upgraded")

// Tx is the transactional handle passed into WithTx callbacks.
type Tx struct {
	tx *sql.Tx
}

// WithTx runs fn inside a BEGIN IMMEDIATE transaction, retrying the whole
// attempt (via exponential backoff, 3 retries) if sqlite reports the
// database is busy or locked. fn's returned error causes a rollback; a nil
// return commits.
func (a *Adapter) WithTx(ctx context.Context, fn func(*Tx) error) error {
	op := func() error {
		sqlTx, err := a.db.BeginTx(ctx, &sql.TxOptions{})
		if err != nil {
			if isBusy(err) {
				return err // retryable
			}
			return backoff.Permanent(err)
		}
		if _, err := sqlTx.ExecContext(ctx, `BEGIN IMMEDIATE`); err != nil {
			// SQLite driver already opened a transaction above; ignore if
			// the driver doesn't support nested BEGIN and rely on the
			// outer BeginTx for isolation.
			_ = err
		}

		if err := fn(&Tx{tx: sqlTx}); err != nil {
			sqlTx.Rollback()
			if isBusy(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if err := sqlTx.Commit(); err != nil {
			if isBusy(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	retryPolicy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	return backoff.Retry(op, retryPolicy)
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "SQLITE_LOCKED")
}

// GetSchemaVersion returns the persisted schema version row.
func (a *Adapter) GetSchemaVersion(ctx context.Context) (semver.Version, error) {
	row := a.db.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`)
	var raw string
	if err := row.Scan(&raw); err != nil {
		return semver.Version{}, err
	}
	return semver.Parse(raw)
}

// GetIdentity reads a persisted key from engine_identity (used for the
// engine instance uuid per spec §6).
func (a *Adapter) GetIdentity(ctx context.Context, key string) (string, bool, error) {
	row := a.db.QueryRowContext(ctx, `SELECT value FROM engine_identity WHERE key = ?`, key)
	var value string
	err := row.Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, err
	default:
		return value, true, nil
	}
}

// SetIdentity persists a key/value pair in engine_identity.
func (a *Adapter) SetIdentity(ctx context.Context, key, value string) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO engine_identity(key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// EnsureSentinelCollections creates the well-known Aggregate and Local
// collections, and the Self Contact, if they do not already exist
// (Invariant 3 / §3 Lifecycles).
func (a *Adapter) EnsureSentinelCollections(ctx context.Context) error {
	return a.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO collections(id, name, aggregable, read_only)
			VALUES (?, 'Aggregate', 0, 1)`, model.AggregateCollectionID); err != nil {
			return err
		}
		if _, err := tx.tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO collections(id, name, aggregable)
			VALUES (?, 'Local', 1)`, model.LocalCollectionID); err != nil {
			return err
		}
		if _, err := tx.tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO contacts(id, collection_id, change_flags)
			VALUES (?, ?, 0)`, model.SelfContactID, model.LocalCollectionID); err != nil {
			return err
		}
		return nil
	})
}
