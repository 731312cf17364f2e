package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GFPc/GFPS-AW-Server/internal/codec"
	apperrors "github.com/GFPc/GFPS-AW-Server/internal/errors"
	"github.com/GFPc/GFPS-AW-Server/pkg/models"
)

const pgConnectTimeout = 5 * time.Second

// pgSchemaSQL is the Postgres schema. Timestamps and durations are
// nanosecond integers truncated to millisecond resolution, matching the
// SQLite backend; documents are stored as JSONB.
var pgSchemaSQL = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
		uuid TEXT NOT NULL UNIQUE,
		username TEXT NOT NULL DEFAULT '',
		created BIGINT NOT NULL,
		data JSONB NOT NULL DEFAULT '{}'::jsonb
	)`,
	`CREATE TABLE IF NOT EXISTS buckets (
		key BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
		hash_key TEXT NOT NULL UNIQUE,
		id TEXT NOT NULL,
		name TEXT,
		type TEXT NOT NULL,
		client TEXT NOT NULL,
		hostname TEXT NOT NULL,
		created BIGINT NOT NULL,
		owner_id BIGINT REFERENCES users(id),
		data JSONB NOT NULL DEFAULT '{}'::jsonb
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
		bucket_key BIGINT NOT NULL REFERENCES buckets(key) ON DELETE CASCADE,
		timestamp BIGINT NOT NULL,
		duration BIGINT NOT NULL,
		data JSONB NOT NULL DEFAULT '{}'::jsonb
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_bucket_time ON events(bucket_key, timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_buckets_owner ON buckets(owner_id)`,
}

const pgInsertEventSQL = `
INSERT INTO events (bucket_key, timestamp, duration, data)
VALUES ($1, $2, $3, $4)
RETURNING id`

const pgUpsertEventSQL = `
INSERT INTO events (id, bucket_key, timestamp, duration, data)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
    bucket_key = EXCLUDED.bucket_key,
    timestamp = EXCLUDED.timestamp,
    duration = EXCLUDED.duration,
    data = EXCLUDED.data`

// pgAdvanceEventIDSQL keeps the identity sequence ahead of explicitly
// written ids so later auto-assigned ids cannot collide with them.
const pgAdvanceEventIDSQL = `
SELECT setval(pg_get_serial_sequence('events', 'id'),
       GREATEST((SELECT COALESCE(MAX(id), 1) FROM events), 1))`

const pgSelectBucketColumns = `hash_key, id, name, type, client, hostname, created, owner_id, data`

// PostgresBackend implements Backend on a PostgreSQL database via pgx.
type PostgresBackend struct {
	pool *pgxpool.Pool
	opts Options

	// hash_key -> buckets.key, refreshed on miss
	keyMu    sync.RWMutex
	keyCache map[string]int64
}

// NewPostgresBackend connects to PostgreSQL and ensures the schema exists.
func NewPostgresBackend(ctx context.Context, dsn string, maxConns int, opts Options) (*PostgresBackend, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parse postgres config: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pgConnectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping postgres: %w", err)
	}

	for _, stmt := range pgSchemaSQL {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("storage: create postgres schema: %w", err)
		}
	}

	return &PostgresBackend{
		pool:     pool,
		opts:     opts.withDefaults(),
		keyCache: make(map[string]int64),
	}, nil
}

func (p *PostgresBackend) bucketKey(ctx context.Context, hashKey string) (int64, error) {
	p.keyMu.RLock()
	key, ok := p.keyCache[hashKey]
	p.keyMu.RUnlock()
	if ok {
		return key, nil
	}

	err := p.pool.QueryRow(ctx,
		`SELECT key FROM buckets WHERE hash_key = $1`, hashKey,
	).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperrors.NoSuchBucket(hashKey)
	}
	if err != nil {
		return 0, apperrors.BackendFailure("resolve bucket", hashKey, err)
	}

	p.keyMu.Lock()
	p.keyCache[hashKey] = key
	p.keyMu.Unlock()
	return key, nil
}

func (p *PostgresBackend) evictKey(hashKey string) {
	p.keyMu.Lock()
	delete(p.keyCache, hashKey)
	p.keyMu.Unlock()
}

// Buckets returns metadata for every stored bucket, keyed by hash key.
func (p *PostgresBackend) Buckets(ctx context.Context) (map[string]models.BucketMetadata, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+pgSelectBucketColumns+` FROM buckets`)
	if err != nil {
		return nil, apperrors.BackendFailure("list buckets", "", err)
	}
	defer rows.Close()

	buckets := make(map[string]models.BucketMetadata)
	for rows.Next() {
		meta, err := scanPGBucket(rows)
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
func (p *PostgresBackend) CreateBucket(ctx context.Context, meta models.BucketMetadata) (string, error) {
	hashKey := models.BucketHashKey(meta.ID, meta.OwnerID)

	data, err := codec.MarshalDocument(meta.Data)
	if err != nil {
		return "", apperrors.BackendFailure("create bucket", hashKey, err)
	}

	var key int64
	err = p.pool.QueryRow(ctx, `
		INSERT INTO buckets (hash_key, id, name, type, client, hostname, created, owner_id, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING key`,
		hashKey, meta.ID, meta.Name, meta.Type, meta.Client, meta.Hostname,
		meta.Created.UTC().UnixNano(), meta.OwnerID, data,
	).Scan(&key)
	if err != nil {
		if isPGUniqueViolation(err) {
			return "", apperrors.DuplicateBucket(hashKey, err)
		}
		return "", apperrors.BackendFailure("create bucket", hashKey, err)
	}

	p.keyMu.Lock()
	p.keyCache[hashKey] = key
	p.keyMu.Unlock()

	return hashKey, nil
}

// UpdateBucket applies the set fields of upd to the bucket.
func (p *PostgresBackend) UpdateBucket(ctx context.Context, hashKey string, upd models.BucketUpdate) error {
	sets := make([]string, 0, 5)
	args := make([]any, 0, 6)

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.Type != nil {
		add("type", *upd.Type)
	}
	if upd.Client != nil {
		add("client", *upd.Client)
	}
	if upd.Hostname != nil {
		add("hostname", *upd.Hostname)
	}
	if upd.Name != nil {
		add("name", *upd.Name)
	}
	if upd.Data != nil {
		data, err := codec.MarshalDocument(upd.Data)
		if err != nil {
			return apperrors.BackendFailure("update bucket", hashKey, err)
		}
		add("data", data)
	}

	if len(sets) == 0 {
		// Nothing to change, but the bucket must still exist.
		_, err := p.Metadata(ctx, hashKey)
		return err
	}

	args = append(args, hashKey)
	query := fmt.Sprintf("UPDATE buckets SET %s WHERE hash_key = $%d",
		strings.Join(sets, ", "), len(args))

	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return apperrors.BackendFailure("update bucket", hashKey, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NoSuchBucket(hashKey)
	}
	return nil
}

// DeleteBucket removes the bucket; events go with it via the cascade.
func (p *PostgresBackend) DeleteBucket(ctx context.Context, hashKey string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM buckets WHERE hash_key = $1`, hashKey)
	if err != nil {
		return apperrors.BackendFailure("delete bucket", hashKey, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NoSuchBucket(hashKey)
	}

	p.evictKey(hashKey)
	return nil
}

// Metadata returns the bucket's persisted fields.
func (p *PostgresBackend) Metadata(ctx context.Context, hashKey string) (models.BucketMetadata, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+pgSelectBucketColumns+` FROM buckets WHERE hash_key = $1`, hashKey)

	meta, err := scanPGBucket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.BucketMetadata{}, apperrors.NoSuchBucket(hashKey)
	}
	if err != nil {
		return models.BucketMetadata{}, apperrors.BackendFailure("get bucket metadata", hashKey, err)
	}
	return meta, nil
}

// InsertOne stores a single event and returns it with its id.
func (p *PostgresBackend) InsertOne(ctx context.Context, hashKey string, event models.Event) (models.Event, error) {
	key, err := p.bucketKey(ctx, hashKey)
	if err != nil {
		return models.Event{}, err
	}

	e := normalizeEvent(event)
	data, err := codec.MarshalDocument(e.Data)
	if err != nil {
		return models.Event{}, apperrors.BackendFailure("encode event payload", hashKey, err)
	}

	if e.ID != 0 {
		if _, err := p.pool.Exec(ctx, pgUpsertEventSQL,
			e.ID, key, e.Timestamp.UnixNano(), int64(e.Duration), data); err != nil {
			return models.Event{}, apperrors.BackendFailure("upsert event", hashKey, err)
		}
		if _, err := p.pool.Exec(ctx, pgAdvanceEventIDSQL); err != nil {
			return models.Event{}, apperrors.BackendFailure("upsert event", hashKey, err)
		}
		return e, nil
	}

	var id int64
	if err := p.pool.QueryRow(ctx, pgInsertEventSQL,
		key, e.Timestamp.UnixNano(), int64(e.Duration), data).Scan(&id); err != nil {
		return models.Event{}, apperrors.BackendFailure("insert event", hashKey, err)
	}

	e.ID = id
	return e, nil
}

// InsertMany stores a batch of id-less events in one round trip.
func (p *PostgresBackend) InsertMany(ctx context.Context, hashKey string, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}

	key, err := p.bucketKey(ctx, hashKey)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, event := range events {
		e := normalizeEvent(event)
		data, err := codec.MarshalDocument(e.Data)
		if err != nil {
			return apperrors.BackendFailure("encode event payload", hashKey, err)
		}
		batch.Queue(`
			INSERT INTO events (bucket_key, timestamp, duration, data)
			VALUES ($1, $2, $3, $4)`,
			key, e.Timestamp.UnixNano(), int64(e.Duration), data)
	}

	br := p.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return apperrors.BackendFailure("insert events", hashKey, err)
		}
	}
	return nil
}

// GetEvent returns the event with the given id, or (nil, nil) if absent.
func (p *PostgresBackend) GetEvent(ctx context.Context, hashKey string, eventID int64) (*models.Event, error) {
	key, err := p.bucketKey(ctx, hashKey)
	if err != nil {
		return nil, err
	}

	var id, ts, dur int64
	var data []byte
	err = p.pool.QueryRow(ctx,
		`SELECT id, timestamp, duration, data FROM events WHERE bucket_key = $1 AND id = $2`,
		key, eventID,
	).Scan(&id, &ts, &dur, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.BackendFailure("get event", hashKey, err)
	}

	e, err := pgEventFromRow(id, ts, dur, data)
	if err != nil {
		return nil, apperrors.BackendFailure("decode event payload", hashKey, err)
	}
	return &e, nil
}

// GetEvents returns events intersecting [start, end], newest first.
func (p *PostgresBackend) GetEvents(ctx context.Context, hashKey string, limit int, start, end *time.Time) ([]models.Event, error) {
	key, err := p.bucketKey(ctx, hashKey)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, timestamp, duration, data FROM events WHERE bucket_key = $1`
	args := []any{key}
	if end != nil {
		args = append(args, end.UnixNano())
		query += fmt.Sprintf(` AND timestamp <= $%d`, len(args))
	}
	if start != nil {
		args = append(args, start.UnixNano())
		query += fmt.Sprintf(` AND timestamp + duration >= $%d`, len(args))
	}
	query += ` ORDER BY timestamp DESC, id DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.BackendFailure("query events", hashKey, err)
	}
	defer rows.Close()

	events := make([]models.Event, 0)
	for rows.Next() {
		var id, ts, dur int64
		var data []byte
		if err := rows.Scan(&id, &ts, &dur, &data); err != nil {
			return nil, apperrors.BackendFailure("query events", hashKey, err)
		}
		e, err := pgEventFromRow(id, ts, dur, data)
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
func (p *PostgresBackend) EventCount(ctx context.Context, hashKey string, start, end *time.Time) (int64, error) {
	key, err := p.bucketKey(ctx, hashKey)
	if err != nil {
		return 0, err
	}

	query := `SELECT COUNT(*) FROM events WHERE bucket_key = $1`
	args := []any{key}
	if end != nil {
		args = append(args, end.UnixNano())
		query += fmt.Sprintf(` AND timestamp <= $%d`, len(args))
	}
	if start != nil {
		args = append(args, start.UnixNano())
		query += fmt.Sprintf(` AND timestamp + duration >= $%d`, len(args))
	}

	var count int64
	if err := p.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, apperrors.BackendFailure("count events", hashKey, err)
	}
	return count, nil
}

// DeleteEvent removes one event and reports whether a row was deleted.
func (p *PostgresBackend) DeleteEvent(ctx context.Context, hashKey string, eventID int64) (bool, error) {
	key, err := p.bucketKey(ctx, hashKey)
	if err != nil {
		return false, err
	}

	tag, err := p.pool.Exec(ctx,
		`DELETE FROM events WHERE bucket_key = $1 AND id = $2`, key, eventID)
	if err != nil {
		return false, apperrors.BackendFailure("delete event", hashKey, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Replace overwrites timestamp, duration, and data of an existing event.
func (p *PostgresBackend) Replace(ctx context.Context, hashKey string, eventID int64, event models.Event) error {
	key, err := p.bucketKey(ctx, hashKey)
	if err != nil {
		return err
	}

	e := normalizeEvent(event)
	data, err := codec.MarshalDocument(e.Data)
	if err != nil {
		return apperrors.BackendFailure("encode event payload", hashKey, err)
	}

	tag, err := p.pool.Exec(ctx,
		`UPDATE events SET timestamp = $1, duration = $2, data = $3 WHERE bucket_key = $4 AND id = $5`,
		e.Timestamp.UnixNano(), int64(e.Duration), data, key, eventID)
	if err != nil {
		return apperrors.BackendFailure("replace event", hashKey, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NoSuchEvent(hashKey, eventID)
	}
	return nil
}

// ReplaceLast overwrites the chronologically last event in the bucket.
func (p *PostgresBackend) ReplaceLast(ctx context.Context, hashKey string, event models.Event) error {
	key, err := p.bucketKey(ctx, hashKey)
	if err != nil {
		return err
	}

	e := normalizeEvent(event)
	data, err := codec.MarshalDocument(e.Data)
	if err != nil {
		return apperrors.BackendFailure("encode event payload", hashKey, err)
	}

	tag, err := p.pool.Exec(ctx, `
		UPDATE events SET timestamp = $1, duration = $2, data = $3
		WHERE id = (
			SELECT id FROM events WHERE bucket_key = $4
			ORDER BY timestamp DESC, id DESC LIMIT 1
		)`,
		e.Timestamp.UnixNano(), int64(e.Duration), data, key)
	if err != nil {
		return apperrors.BackendFailure("replace last event", hashKey, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.EmptyBucket(hashKey)
	}
	return nil
}

// CreateUser stores a new user and returns it with its assigned id.
func (p *PostgresBackend) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	data, err := codec.MarshalDocument(user.Data)
	if err != nil {
		return models.User{}, apperrors.BackendFailure("create user", "", err)
	}

	var id int64
	err = p.pool.QueryRow(ctx, `
		INSERT INTO users (uuid, username, created, data)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		user.UUID, user.Username, user.Created.UTC().UnixNano(), data,
	).Scan(&id)
	if err != nil {
		return models.User{}, apperrors.BackendFailure("create user", "", err)
	}

	user.ID = id
	return user, nil
}

// UpdateUser applies the set fields of upd to the user.
func (p *PostgresBackend) UpdateUser(ctx context.Context, uuid string, upd models.UserUpdate) error {
	sets := make([]string, 0, 2)
	args := make([]any, 0, 3)

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.Username != nil {
		add("username", *upd.Username)
	}
	if upd.Data != nil {
		data, err := codec.MarshalDocument(upd.Data)
		if err != nil {
			return apperrors.BackendFailure("update user", "", err)
		}
		add("data", data)
	}

	if len(sets) == 0 {
		u, err := p.GetUserByUUID(ctx, uuid)
		if err != nil {
			return err
		}
		if u == nil {
			return apperrors.NoSuchUser(uuid)
		}
		return nil
	}

	args = append(args, uuid)
	query := fmt.Sprintf("UPDATE users SET %s WHERE uuid = $%d",
		strings.Join(sets, ", "), len(args))

	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return apperrors.BackendFailure("update user", "", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NoSuchUser(uuid)
	}
	return nil
}

// GetUserByUUID returns the user, or (nil, nil) if the uuid is unknown.
func (p *PostgresBackend) GetUserByUUID(ctx context.Context, uuid string) (*models.User, error) {
	var u models.User
	var createdNano int64
	var data []byte

	err := p.pool.QueryRow(ctx,
		`SELECT id, uuid, username, created, data FROM users WHERE uuid = $1`, uuid,
	).Scan(&u.ID, &u.UUID, &u.Username, &createdNano, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.BackendFailure("get user", "", err)
	}

	u.Created = time.Unix(0, createdNano).UTC()
	if u.Data, err = codec.UnmarshalDocument(data); err != nil {
		return nil, apperrors.BackendFailure("get user", "", err)
	}
	return &u, nil
}

// Users returns all stored users.
func (p *PostgresBackend) Users(ctx context.Context) ([]models.User, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, uuid, username, created, data FROM users ORDER BY id`)
	if err != nil {
		return nil, apperrors.BackendFailure("list users", "", err)
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		var u models.User
		var createdNano int64
		var data []byte
		if err := rows.Scan(&u.ID, &u.UUID, &u.Username, &createdNano, &data); err != nil {
			return nil, apperrors.BackendFailure("list users", "", err)
		}
		u.Created = time.Unix(0, createdNano).UTC()
		if u.Data, err = codec.UnmarshalDocument(data); err != nil {
			return nil, apperrors.BackendFailure("list users", "", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.BackendFailure("list users", "", err)
	}
	return users, nil
}

// BucketsForOwner returns stats for buckets matching the selector.
func (p *PostgresBackend) BucketsForOwner(ctx context.Context, sel models.OwnerSelector) (map[string]models.BucketStats, error) {
	query := `
		SELECT b.hash_key, b.id, b.name, b.type, b.client, b.hostname, b.created, b.owner_id, b.data,
		       COUNT(e.id)
		FROM buckets b
		LEFT JOIN events e ON e.bucket_key = b.key AND e.timestamp >= $1 AND e.timestamp <= $2`
	args := []any{p.opts.StatsWindowStart.UnixNano(), time.Now().UTC().UnixNano()}

	switch {
	case sel.All:
		// All buckets regardless of owner
	case sel.OwnerID != nil:
		args = append(args, *sel.OwnerID)
		query += fmt.Sprintf(` WHERE b.owner_id = $%d`, len(args))
	default:
		query += ` WHERE b.owner_id IS NULL`
	}
	query += ` GROUP BY b.key`

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.BackendFailure("list owner buckets", "", err)
	}
	defer rows.Close()

	stats := make(map[string]models.BucketStats)
	for rows.Next() {
		var st models.BucketStats
		var createdNano, count int64
		var data []byte

		if err := rows.Scan(&st.HashKey, &st.ID, &st.Name, &st.Type, &st.Client,
			&st.Hostname, &createdNano, &st.OwnerID, &data, &count); err != nil {
			return nil, apperrors.BackendFailure("list owner buckets", "", err)
		}
		st.Created = time.Unix(0, createdNano).UTC()
		if st.Data, err = codec.UnmarshalDocument(data); err != nil {
			return nil, apperrors.BackendFailure("list owner buckets", "", err)
		}

		st.EventsCount = count
		st.EstimatedSize = count * p.opts.EstimatedBytesPerEvent
		stats[st.HashKey] = st
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.BackendFailure("list owner buckets", "", err)
	}
	return stats, nil
}

// Close closes the connection pool.
func (p *PostgresBackend) Close() error {
	p.pool.Close()
	return nil
}

// scanPGBucket scans the pgSelectBucketColumns column set.
func scanPGBucket(row pgx.Row) (models.BucketMetadata, error) {
	var meta models.BucketMetadata
	var createdNano int64
	var data []byte

	if err := row.Scan(&meta.HashKey, &meta.ID, &meta.Name, &meta.Type, &meta.Client,
		&meta.Hostname, &createdNano, &meta.OwnerID, &data); err != nil {
		return models.BucketMetadata{}, err
	}
	meta.Created = time.Unix(0, createdNano).UTC()

	var err error
	if meta.Data, err = codec.UnmarshalDocument(data); err != nil {
		return models.BucketMetadata{}, err
	}
	return meta, nil
}

// pgEventFromRow builds an event from its stored columns.
func pgEventFromRow(id, tsNano, durNano int64, data []byte) (models.Event, error) {
	doc, err := codec.UnmarshalDocument(data)
	if err != nil {
		return models.Event{}, err
	}
	return models.Event{
		ID:        id,
		Timestamp: time.Unix(0, tsNano).UTC(),
		Duration:  time.Duration(durNano),
		Data:      doc,
	}, nil
}

// isPGUniqueViolation reports whether err is a unique constraint error.
func isPGUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
