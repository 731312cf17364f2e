package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/GFPc/GFPS-AW-Server/internal/codec"
	apperrors "github.com/GFPc/GFPS-AW-Server/internal/errors"
	"github.com/GFPc/GFPS-AW-Server/pkg/models"
)

const insertEventSQL = `
INSERT INTO events (bucket_key, timestamp, duration, datastr)
VALUES (?, ?, ?, ?)`

const upsertEventSQL = `
INSERT INTO events (id, bucket_key, timestamp, duration, datastr)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    bucket_key = excluded.bucket_key,
    timestamp = excluded.timestamp,
    duration = excluded.duration,
    datastr = excluded.datastr`

const selectBucketColumns = `hash_key, id, name, type, client, hostname, created, owner_id, datastr`

// SQLiteBackend implements Backend on a single SQLite database file.
type SQLiteBackend struct {
	db     *sql.DB // Write connection (single writer)
	readDB *sql.DB // Read connection pool (concurrent readers)
	dbPath string
	opts   Options
	mu     sync.Mutex // Write-only lock (reads don't need this)

	insertEventStmt *sql.Stmt

	// hash_key -> buckets.key, refreshed on miss
	keyMu    sync.RWMutex
	keyCache map[string]int64
}

// NewSQLiteBackend opens (creating and migrating if needed) the database
// file at dbPath.
func NewSQLiteBackend(dbPath string, opts Options) (*SQLiteBackend, error) {
	opts = opts.withDefaults()

	// Write connection: single writer with WAL mode
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("storage: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // Single writer
	db.SetMaxIdleConns(1)

	// Migrations run on the write connection first: a read-only open of a
	// not-yet-created database file fails.
	if err := runSQLiteMigrations(db, opts.Logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: failed to migrate schema: %w", err)
	}

	// Read connection pool: concurrent readers via read-only mode
	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&mode=ro")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)

	insertStmt, err := db.Prepare(insertEventSQL)
	if err != nil {
		readDB.Close()
		db.Close()
		return nil, fmt.Errorf("storage: failed to prepare insert statement: %w", err)
	}

	return &SQLiteBackend{
		db:              db,
		readDB:          readDB,
		dbPath:          dbPath,
		opts:            opts,
		insertEventStmt: insertStmt,
		keyCache:        make(map[string]int64),
	}, nil
}

// bucketKey resolves a hash key to the bucket's surrogate key, consulting
// the database on cache miss.
func (s *SQLiteBackend) bucketKey(ctx context.Context, hashKey string) (int64, error) {
	s.keyMu.RLock()
	key, ok := s.keyCache[hashKey]
	s.keyMu.RUnlock()
	if ok {
		return key, nil
	}

	err := s.readDB.QueryRowContext(ctx,
		`SELECT key FROM buckets WHERE hash_key = ?`, hashKey,
	).Scan(&key)
	if err == sql.ErrNoRows {
		return 0, apperrors.NoSuchBucket(hashKey)
	}
	if err != nil {
		return 0, apperrors.BackendFailure("resolve bucket", hashKey, err)
	}

	s.keyMu.Lock()
	s.keyCache[hashKey] = key
	s.keyMu.Unlock()
	return key, nil
}

func (s *SQLiteBackend) cacheKey(hashKey string, key int64) {
	s.keyMu.Lock()
	s.keyCache[hashKey] = key
	s.keyMu.Unlock()
}

func (s *SQLiteBackend) evictKey(hashKey string) {
	s.keyMu.Lock()
	delete(s.keyCache, hashKey)
	s.keyMu.Unlock()
}

// Buckets returns metadata for every stored bucket, keyed by hash key.
func (s *SQLiteBackend) Buckets(ctx context.Context) (map[string]models.BucketMetadata, error) {
	rows, err := s.readDB.QueryContext(ctx, `SELECT `+selectBucketColumns+` FROM buckets`)
	if err != nil {
		return nil, apperrors.BackendFailure("list buckets", "", err)
	}
	defer rows.Close()

	buckets := make(map[string]models.BucketMetadata)
	for rows.Next() {
		meta, err := scanBucketRow(rows)
		if err != nil {
			return nil, apperrors.BackendFailure("list buckets", "", err)
		}
		buckets[meta.HashKey] = meta
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.BackendFailure("list buckets", "", err)
	}

	return buckets, nil
}

// CreateBucket stores a new bucket and returns its hash key.
func (s *SQLiteBackend) CreateBucket(ctx context.Context, meta models.BucketMetadata) (string, error) {
	hashKey := models.BucketHashKey(meta.ID, meta.OwnerID)

	datastr, err := codec.MarshalDocument(meta.Data)
	if err != nil {
		return "", apperrors.BackendFailure("create bucket", hashKey, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO buckets (hash_key, id, name, type, client, hostname, created, owner_id, datastr)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		hashKey, meta.ID, meta.Name, meta.Type, meta.Client, meta.Hostname,
		meta.Created.UTC().UnixNano(), meta.OwnerID, string(datastr),
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return "", apperrors.DuplicateBucket(hashKey, err)
		}
		return "", apperrors.BackendFailure("create bucket", hashKey, err)
	}

	if key, err := res.LastInsertId(); err == nil {
		s.cacheKey(hashKey, key)
	}

	return hashKey, nil
}

// UpdateBucket applies the set fields of upd to the bucket.
func (s *SQLiteBackend) UpdateBucket(ctx context.Context, hashKey string, upd models.BucketUpdate) error {
	var sets []string
	var args []any

	if upd.Type != nil {
		sets = append(sets, "type = ?")
		args = append(args, *upd.Type)
	}
	if upd.Client != nil {
		sets = append(sets, "client = ?")
		args = append(args, *upd.Client)
	}
	if upd.Hostname != nil {
		sets = append(sets, "hostname = ?")
		args = append(args, *upd.Hostname)
	}
	if upd.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *upd.Name)
	}
	if upd.Data != nil {
		datastr, err := codec.MarshalDocument(upd.Data)
		if err != nil {
			return apperrors.BackendFailure("update bucket", hashKey, err)
		}
		sets = append(sets, "datastr = ?")
		args = append(args, string(datastr))
	}

	if len(sets) == 0 {
		// Nothing to change, but the bucket must still exist.
		_, err := s.Metadata(ctx, hashKey)
		return err
	}

	args = append(args, hashKey)

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE buckets SET `+strings.Join(sets, ", ")+` WHERE hash_key = ?`, args...)
	if err != nil {
		return apperrors.BackendFailure("update bucket", hashKey, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.BackendFailure("update bucket", hashKey, err)
	}
	if n == 0 {
		return apperrors.NoSuchBucket(hashKey)
	}
	return nil
}

// DeleteBucket removes the bucket and all its events in one transaction.
func (s *SQLiteBackend) DeleteBucket(ctx context.Context, hashKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.BackendFailure("delete bucket", hashKey, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM events WHERE bucket_key IN (SELECT key FROM buckets WHERE hash_key = ?)`,
		hashKey,
	); err != nil {
		return apperrors.BackendFailure("delete bucket events", hashKey, err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM buckets WHERE hash_key = ?`, hashKey)
	if err != nil {
		return apperrors.BackendFailure("delete bucket", hashKey, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.BackendFailure("delete bucket", hashKey, err)
	}
	if n == 0 {
		return apperrors.NoSuchBucket(hashKey)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.BackendFailure("delete bucket", hashKey, err)
	}

	s.evictKey(hashKey)
	return nil
}

// Metadata returns the bucket's persisted fields.
func (s *SQLiteBackend) Metadata(ctx context.Context, hashKey string) (models.BucketMetadata, error) {
	row := s.readDB.QueryRowContext(ctx,
		`SELECT `+selectBucketColumns+` FROM buckets WHERE hash_key = ?`, hashKey)

	meta, err := scanBucketRow(row)
	if err == sql.ErrNoRows {
		return models.BucketMetadata{}, apperrors.NoSuchBucket(hashKey)
	}
	if err != nil {
		return models.BucketMetadata{}, apperrors.BackendFailure("get bucket metadata", hashKey, err)
	}
	return meta, nil
}

// InsertOne stores a single event and returns it with its id.
func (s *SQLiteBackend) InsertOne(ctx context.Context, hashKey string, event models.Event) (models.Event, error) {
	key, err := s.bucketKey(ctx, hashKey)
	if err != nil {
		return models.Event{}, err
	}

	e := normalizeEvent(event)
	payload, err := codec.EncodePayload(e.Data)
	if err != nil {
		return models.Event{}, apperrors.BackendFailure("encode event payload", hashKey, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID != 0 {
		if _, err := s.db.ExecContext(ctx, upsertEventSQL,
			e.ID, key, e.Timestamp.UnixNano(), int64(e.Duration), payload,
		); err != nil {
			return models.Event{}, apperrors.BackendFailure("upsert event", hashKey, err)
		}
		return e, nil
	}

	res, err := s.insertEventStmt.ExecContext(ctx,
		key, e.Timestamp.UnixNano(), int64(e.Duration), payload)
	if err != nil {
		return models.Event{}, apperrors.BackendFailure("insert event", hashKey, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Event{}, apperrors.BackendFailure("insert event", hashKey, err)
	}

	e.ID = id
	return e, nil
}

// InsertMany stores a batch of id-less events in one transaction.
func (s *SQLiteBackend) InsertMany(ctx context.Context, hashKey string, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}

	key, err := s.bucketKey(ctx, hashKey)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.BackendFailure("insert events", hashKey, err)
	}
	defer tx.Rollback()

	stmt := tx.StmtContext(ctx, s.insertEventStmt)
	defer stmt.Close()

	for _, event := range events {
		e := normalizeEvent(event)
		payload, err := codec.EncodePayload(e.Data)
		if err != nil {
			return apperrors.BackendFailure("encode event payload", hashKey, err)
		}
		if _, err := stmt.ExecContext(ctx,
			key, e.Timestamp.UnixNano(), int64(e.Duration), payload,
		); err != nil {
			return apperrors.BackendFailure("insert events", hashKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.BackendFailure("insert events", hashKey, err)
	}
	return nil
}

// GetEvent returns the event with the given id, or (nil, nil) if absent.
func (s *SQLiteBackend) GetEvent(ctx context.Context, hashKey string, eventID int64) (*models.Event, error) {
	key, err := s.bucketKey(ctx, hashKey)
	if err != nil {
		return nil, err
	}

	var id, ts, dur int64
	var payload []byte
	err = s.readDB.QueryRowContext(ctx,
		`SELECT id, timestamp, duration, datastr FROM events WHERE bucket_key = ? AND id = ?`,
		key, eventID,
	).Scan(&id, &ts, &dur, &payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.BackendFailure("get event", hashKey, err)
	}

	e, err := eventFromRow(id, ts, dur, payload)
	if err != nil {
		return nil, apperrors.BackendFailure("decode event payload", hashKey, err)
	}
	return &e, nil
}

// GetEvents returns events intersecting [start, end], newest first.
func (s *SQLiteBackend) GetEvents(ctx context.Context, hashKey string, limit int, start, end *time.Time) ([]models.Event, error) {
	key, err := s.bucketKey(ctx, hashKey)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, timestamp, duration, datastr FROM events WHERE bucket_key = ?`
	args := []any{key}
	if end != nil {
		query += ` AND timestamp <= ?`
		args = append(args, end.UnixNano())
	}
	if start != nil {
		query += ` AND timestamp + duration >= ?`
		args = append(args, start.UnixNano())
	}
	query += ` ORDER BY timestamp DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.BackendFailure("query events", hashKey, err)
	}
	defer rows.Close()

	events := make([]models.Event, 0)
	for rows.Next() {
		var id, ts, dur int64
		var payload []byte
		if err := rows.Scan(&id, &ts, &dur, &payload); err != nil {
			return nil, apperrors.BackendFailure("query events", hashKey, err)
		}
		e, err := eventFromRow(id, ts, dur, payload)
		if err != nil {
			return nil, apperrors.BackendFailure("decode event payload", hashKey, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.BackendFailure("query events", hashKey, err)
	}

	return events, nil
}

// EventCount counts events intersecting [start, end].
func (s *SQLiteBackend) EventCount(ctx context.Context, hashKey string, start, end *time.Time) (int64, error) {
	key, err := s.bucketKey(ctx, hashKey)
	if err != nil {
		return 0, err
	}

	query := `SELECT COUNT(*) FROM events WHERE bucket_key = ?`
	args := []any{key}
	if end != nil {
		query += ` AND timestamp <= ?`
		args = append(args, end.UnixNano())
	}
	if start != nil {
		query += ` AND timestamp + duration >= ?`
		args = append(args, start.UnixNano())
	}

	var count int64
	if err := s.readDB.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, apperrors.BackendFailure("count events", hashKey, err)
	}
	return count, nil
}

// DeleteEvent removes one event and reports whether a row was deleted.
func (s *SQLiteBackend) DeleteEvent(ctx context.Context, hashKey string, eventID int64) (bool, error) {
	key, err := s.bucketKey(ctx, hashKey)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM events WHERE bucket_key = ? AND id = ?`, key, eventID)
	if err != nil {
		return false, apperrors.BackendFailure("delete event", hashKey, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.BackendFailure("delete event", hashKey, err)
	}
	return n > 0, nil
}

// Replace overwrites timestamp, duration, and data of an existing event.
func (s *SQLiteBackend) Replace(ctx context.Context, hashKey string, eventID int64, event models.Event) error {
	key, err := s.bucketKey(ctx, hashKey)
	if err != nil {
		return err
	}

	e := normalizeEvent(event)
	payload, err := codec.EncodePayload(e.Data)
	if err != nil {
		return apperrors.BackendFailure("encode event payload", hashKey, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET timestamp = ?, duration = ?, datastr = ? WHERE bucket_key = ? AND id = ?`,
		e.Timestamp.UnixNano(), int64(e.Duration), payload, key, eventID)
	if err != nil {
		return apperrors.BackendFailure("replace event", hashKey, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.BackendFailure("replace event", hashKey, err)
	}
	if n == 0 {
		return apperrors.NoSuchEvent(hashKey, eventID)
	}
	return nil
}

// ReplaceLast overwrites the chronologically last event in the bucket.
func (s *SQLiteBackend) ReplaceLast(ctx context.Context, hashKey string, event models.Event) error {
	key, err := s.bucketKey(ctx, hashKey)
	if err != nil {
		return err
	}

	e := normalizeEvent(event)
	payload, err := codec.EncodePayload(e.Data)
	if err != nil {
		return apperrors.BackendFailure("encode event payload", hashKey, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE events SET timestamp = ?, duration = ?, datastr = ?
		WHERE id = (
			SELECT id FROM events WHERE bucket_key = ?
			ORDER BY timestamp DESC, id DESC LIMIT 1
		)`,
		e.Timestamp.UnixNano(), int64(e.Duration), payload, key)
	if err != nil {
		return apperrors.BackendFailure("replace last event", hashKey, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.BackendFailure("replace last event", hashKey, err)
	}
	if n == 0 {
		return apperrors.EmptyBucket(hashKey)
	}
	return nil
}

// CreateUser stores a new user and returns it with its assigned id.
func (s *SQLiteBackend) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	datastr, err := codec.MarshalDocument(user.Data)
	if err != nil {
		return models.User{}, apperrors.BackendFailure("create user", "", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (uuid, username, created, datastr) VALUES (?, ?, ?, ?)`,
		user.UUID, user.Username, user.Created.UTC().UnixNano(), string(datastr))
	if err != nil {
		return models.User{}, apperrors.BackendFailure("create user", "", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return models.User{}, apperrors.BackendFailure("create user", "", err)
	}

	user.ID = id
	return user, nil
}

// UpdateUser applies the set fields of upd to the user.
func (s *SQLiteBackend) UpdateUser(ctx context.Context, uuid string, upd models.UserUpdate) error {
	var sets []string
	var args []any

	if upd.Username != nil {
		sets = append(sets, "username = ?")
		args = append(args, *upd.Username)
	}
	if upd.Data != nil {
		datastr, err := codec.MarshalDocument(upd.Data)
		if err != nil {
			return apperrors.BackendFailure("update user", "", err)
		}
		sets = append(sets, "datastr = ?")
		args = append(args, string(datastr))
	}

	if len(sets) == 0 {
		u, err := s.GetUserByUUID(ctx, uuid)
		if err != nil {
			return err
		}
		if u == nil {
			return apperrors.NoSuchUser(uuid)
		}
		return nil
	}

	args = append(args, uuid)

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE uuid = ?`, args...)
	if err != nil {
		return apperrors.BackendFailure("update user", "", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.BackendFailure("update user", "", err)
	}
	if n == 0 {
		return apperrors.NoSuchUser(uuid)
	}
	return nil
}

// GetUserByUUID returns the user, or (nil, nil) if the uuid is unknown.
func (s *SQLiteBackend) GetUserByUUID(ctx context.Context, uuid string) (*models.User, error) {
	row := s.readDB.QueryRowContext(ctx,
		`SELECT id, uuid, username, created, datastr FROM users WHERE uuid = ?`, uuid)

	u, err := scanUserRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.BackendFailure("get user", "", err)
	}
	return &u, nil
}

// Users returns all stored users.
func (s *SQLiteBackend) Users(ctx context.Context) ([]models.User, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT id, uuid, username, created, datastr FROM users ORDER BY id`)
	if err != nil {
		return nil, apperrors.BackendFailure("list users", "", err)
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		u, err := scanUserRow(rows)
		if err != nil {
			return nil, apperrors.BackendFailure("list users", "", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.BackendFailure("list users", "", err)
	}

	return users, nil
}

// BucketsForOwner returns stats for buckets matching the selector. Event
// counts cover the stats window ending now.
func (s *SQLiteBackend) BucketsForOwner(ctx context.Context, sel models.OwnerSelector) (map[string]models.BucketStats, error) {
	query := `
		SELECT b.hash_key, b.id, b.name, b.type, b.client, b.hostname, b.created, b.owner_id, b.datastr,
		       COUNT(e.id)
		FROM buckets b
		LEFT JOIN events e ON e.bucket_key = b.key AND e.timestamp >= ? AND e.timestamp <= ?`
	args := []any{s.opts.StatsWindowStart.UnixNano(), time.Now().UTC().UnixNano()}

	switch {
	case sel.All:
		// All buckets regardless of owner
	case sel.OwnerID != nil:
		query += ` WHERE b.owner_id = ?`
		args = append(args, *sel.OwnerID)
	default:
		query += ` WHERE b.owner_id IS NULL`
	}
	query += ` GROUP BY b.key`

	rows, err := s.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.BackendFailure("list owner buckets", "", err)
	}
	defer rows.Close()

	stats := make(map[string]models.BucketStats)
	for rows.Next() {
		var name sql.NullString
		var owner sql.NullInt64
		var createdNano, count int64
		var datastr []byte
		var st models.BucketStats

		if err := rows.Scan(&st.HashKey, &st.ID, &name, &st.Type, &st.Client, &st.Hostname,
			&createdNano, &owner, &datastr, &count); err != nil {
			return nil, apperrors.BackendFailure("list owner buckets", "", err)
		}
		if err := fillBucketFields(&st.BucketMetadata, name, owner, createdNano, datastr); err != nil {
			return nil, apperrors.BackendFailure("list owner buckets", "", err)
		}

		st.EventsCount = count
		st.EstimatedSize = count * s.opts.EstimatedBytesPerEvent
		stats[st.HashKey] = st
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.BackendFailure("list owner buckets", "", err)
	}

	return stats, nil
}

// Close closes both database connections.
func (s *SQLiteBackend) Close() error {
	var firstErr error
	if s.insertEventStmt != nil {
		if err := s.insertEventStmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.readDB.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanBucketRow scans the selectBucketColumns column set.
func scanBucketRow(sc rowScanner) (models.BucketMetadata, error) {
	var meta models.BucketMetadata
	var name sql.NullString
	var owner sql.NullInt64
	var createdNano int64
	var datastr []byte

	if err := sc.Scan(&meta.HashKey, &meta.ID, &name, &meta.Type, &meta.Client,
		&meta.Hostname, &createdNano, &owner, &datastr); err != nil {
		return models.BucketMetadata{}, err
	}
	if err := fillBucketFields(&meta, name, owner, createdNano, datastr); err != nil {
		return models.BucketMetadata{}, err
	}
	return meta, nil
}

// fillBucketFields converts the nullable and encoded columns of a bucket row.
func fillBucketFields(meta *models.BucketMetadata, name sql.NullString, owner sql.NullInt64, createdNano int64, datastr []byte) error {
	if name.Valid {
		meta.Name = &name.String
	}
	if owner.Valid {
		meta.OwnerID = &owner.Int64
	}
	meta.Created = time.Unix(0, createdNano).UTC()

	data, err := codec.UnmarshalDocument(datastr)
	if err != nil {
		return err
	}
	meta.Data = data
	return nil
}

// scanUserRow scans an id, uuid, username, created, datastr column set.
func scanUserRow(sc rowScanner) (models.User, error) {
	var u models.User
	var createdNano int64
	var datastr []byte

	if err := sc.Scan(&u.ID, &u.UUID, &u.Username, &createdNano, &datastr); err != nil {
		return models.User{}, err
	}
	u.Created = time.Unix(0, createdNano).UTC()

	data, err := codec.UnmarshalDocument(datastr)
	if err != nil {
		return models.User{}, err
	}
	u.Data = data
	return u, nil
}

// eventFromRow builds an event from its stored columns.
func eventFromRow(id, tsNano, durNano int64, payload []byte) (models.Event, error) {
	data, err := codec.DecodePayload(payload)
	if err != nil {
		return models.Event{}, err
	}
	return models.Event{
		ID:        id,
		Timestamp: time.Unix(0, tsNano).UTC(),
		Duration:  time.Duration(durNano),
		Data:      data,
	}, nil
}

// isSQLiteUniqueViolation reports whether err is a UNIQUE constraint error.
func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
