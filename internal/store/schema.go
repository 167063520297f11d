package store

// Timestamps are stored as unix nanoseconds so they compare and MAX() cleanly.

// RecordsSchema holds one row per canonical record.
const RecordsSchema = `
CREATE TABLE IF NOT EXISTS records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	primary_key TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	title_folded TEXT NOT NULL,
	subtitle TEXT NOT NULL DEFAULT '',
	authors TEXT NOT NULL DEFAULT '[]',
	genres TEXT NOT NULL DEFAULT '[]',
	description TEXT NOT NULL DEFAULT '',
	release_date TEXT NOT NULL DEFAULT '',
	cover_url TEXT NOT NULL DEFAULT '',
	cover_id INTEGER NOT NULL DEFAULT 0,
	supplementary_id TEXT NOT NULL DEFAULT '',
	rating_average TEXT NOT NULL DEFAULT '0',
	rating_count INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	modified_at INTEGER NOT NULL,
	version INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_records_title_folded ON records(title_folded);
`

// RecordKeysSchema maps every external key, primary or alias, to exactly one
// record. The primary key constraint is what keeps two records from claiming
// the same key.
const RecordKeysSchema = `
CREATE TABLE IF NOT EXISTS record_keys (
	key TEXT PRIMARY KEY NOT NULL,
	record_id INTEGER NOT NULL REFERENCES records(id) ON DELETE CASCADE,
	linked_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_record_keys_record_id ON record_keys(record_id);
`

// RecordAuthorsSchema indexes normalized author names for candidate lookups.
const RecordAuthorsSchema = `
CREATE TABLE IF NOT EXISTS record_authors (
	record_id INTEGER NOT NULL REFERENCES records(id) ON DELETE CASCADE,
	name_normalized TEXT NOT NULL,
	PRIMARY KEY (record_id, name_normalized)
);

CREATE INDEX IF NOT EXISTS idx_record_authors_name ON record_authors(name_normalized);
`

// AllSchemas is applied in order on Connect.
var AllSchemas = []string{
	RecordsSchema,
	RecordKeysSchema,
	RecordAuthorsSchema,
}
