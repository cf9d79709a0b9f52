package store

import "github.com/blang/semver/v4"

// schema is the forward-only DDL applied by migrate. Each statement is
// idempotent (CREATE TABLE/INDEX IF NOT EXISTS) so re-opening an existing
// database file is always safe, mirroring the raw embedded-SQL style used
// by sqlite-backed storage layers in the retrieval pack.
const schema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS engine_identity (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS collections (
	id               INTEGER PRIMARY KEY,
	name             TEXT NOT NULL UNIQUE,
	aggregable       INTEGER NOT NULL DEFAULT 0,
	application_name TEXT NOT NULL DEFAULT '',
	account_id       INTEGER NOT NULL DEFAULT 0,
	remote_path      TEXT NOT NULL DEFAULT '',
	read_only        INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS contacts (
	id            INTEGER PRIMARY KEY,
	collection_id INTEGER NOT NULL REFERENCES collections(id),
	change_flags  INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_contacts_collection ON contacts(collection_id);
CREATE INDEX IF NOT EXISTS idx_contacts_change_flags ON contacts(collection_id, change_flags);

CREATE TABLE IF NOT EXISTS details (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	contact_id  INTEGER NOT NULL REFERENCES contacts(id),
	type        INTEGER NOT NULL,
	fields_json TEXT NOT NULL DEFAULT '{}',
	change_flags INTEGER NOT NULL DEFAULT 0,
	database_id INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_details_contact ON details(contact_id);
CREATE INDEX IF NOT EXISTS idx_details_type ON details(type);
CREATE INDEX IF NOT EXISTS idx_details_database_id ON details(contact_id, database_id);

CREATE TABLE IF NOT EXISTS relationships (
	first_id  INTEGER NOT NULL,
	type      TEXT NOT NULL,
	second_id INTEGER NOT NULL,
	PRIMARY KEY (first_id, type, second_id)
);

CREATE INDEX IF NOT EXISTS idx_relationships_second ON relationships(second_id, type);

CREATE TABLE IF NOT EXISTS oob (
	scope TEXT NOT NULL,
	key   TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (scope, key)
);
`

// compiledSchemaVersion is the schema version this binary expects,
// compared against the persisted row with blang/semver; Open steps an
// older row forward to it. A bump does not by itself trigger aggregate
// regeneration: that runs only when the aggregate collection is empty
// while the local one is not (aggregate.Engine.NeedsRegeneration).
var compiledSchemaVersion = semver.MustParse("1.0.0")
