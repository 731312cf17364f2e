package storage

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// Schema contains the SQL definitions for the SQLite backend. The database
// carries its schema version in PRAGMA user_version; migrations run
// sequentially on open so older database files are upgraded in place.

// currentSchemaVersion is the user_version a fully migrated database has.
const currentSchemaVersion = 2

// CreateUsersTableSQL creates the users table. The uuid is the stable
// external identifier; the integer id is what buckets reference.
const CreateUsersTableSQL = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    uuid TEXT NOT NULL UNIQUE,
    username TEXT NOT NULL DEFAULT '',
    created INTEGER NOT NULL,
    datastr TEXT NOT NULL DEFAULT '{}'
)`

// CreateBucketsTableSQL creates the buckets table. The surrogate key column
// is what events reference; hash_key is the deterministic identity exposed
// to callers and id is the human-chosen bucket id, unique per owner only.
const CreateBucketsTableSQL = `
CREATE TABLE IF NOT EXISTS buckets (
    key INTEGER PRIMARY KEY AUTOINCREMENT,
    hash_key TEXT NOT NULL UNIQUE,
    id TEXT NOT NULL,
    name TEXT,
    type TEXT NOT NULL,
    client TEXT NOT NULL,
    hostname TEXT NOT NULL,
    created INTEGER NOT NULL,
    owner_id INTEGER REFERENCES users(id)
)`

// CreateEventsTableSQL creates the events table. Timestamps and durations
// are stored as nanosecond integers already truncated to millisecond
// resolution; datastr holds the Snappy-compressed JSON payload.
// AUTOINCREMENT keeps event ids monotonic even across deletes.
const CreateEventsTableSQL = `
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    bucket_key INTEGER NOT NULL REFERENCES buckets(key) ON DELETE CASCADE,
    timestamp INTEGER NOT NULL,
    duration INTEGER NOT NULL,
    datastr BLOB NOT NULL
)`

// CreateSQLiteIndexesSQL creates the indexes backing the hot query paths.
var CreateSQLiteIndexesSQL = []string{
	// Index for time-range queries within a bucket
	`CREATE INDEX IF NOT EXISTS idx_events_bucket_time ON events(bucket_key, timestamp)`,

	// Index for owner-scoped bucket listings
	`CREATE INDEX IF NOT EXISTS idx_buckets_owner ON buckets(owner_id)`,
}

// AddBucketDataColumnSQL adds the opaque bucket document column introduced
// in schema version 2.
const AddBucketDataColumnSQL = `
ALTER TABLE buckets ADD COLUMN datastr TEXT NOT NULL DEFAULT '{}'`

// baseSchemaSQL returns the statements that build a version 1 database.
func baseSchemaSQL() []string {
	statements := []string{
		CreateUsersTableSQL,
		CreateBucketsTableSQL,
		CreateEventsTableSQL,
	}
	statements = append(statements, CreateSQLiteIndexesSQL...)
	return statements
}

// runSQLiteMigrations applies incremental schema migrations based on
// user_version. Safe to run on every open.
func runSQLiteMigrations(db *sql.DB, logger *slog.Logger) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	startVersion := version

	if version < 1 {
		for _, stmt := range baseSchemaSQL() {
			if _, err := db.Exec(stmt); err != nil {
				return fmt.Errorf("migrate to v1: %w", err)
			}
		}
		version = 1
	}

	if version < 2 {
		if _, err := db.Exec(AddBucketDataColumnSQL); err != nil {
			return fmt.Errorf("migrate to v2: %w", err)
		}
		version = 2
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	if startVersion != 0 && startVersion < currentSchemaVersion {
		logger.Info("migrated sqlite schema",
			"from_version", startVersion, "to_version", currentSchemaVersion)
	}

	return nil
}
