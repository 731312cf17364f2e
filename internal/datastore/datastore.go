// Package datastore is the entry point of the event store. A Datastore
// wraps a storage backend with a bucket-handle cache, input validation,
// and the query normalization rules callers rely on.
//
// A Datastore keeps at most one live *Bucket per hash key. The cache is
// an identity map with no locking: a Datastore is not safe for concurrent
// use, and two Datastores over the same backend are independent observers
// whose caches may diverge. The backend stays authoritative either way.
package datastore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/GFPc/GFPS-AW-Server/internal/config"
	apperrors "github.com/GFPc/GFPS-AW-Server/internal/errors"
	"github.com/GFPc/GFPS-AW-Server/internal/storage"
	"github.com/GFPc/GFPS-AW-Server/pkg/models"
)

// DefaultInsertChunkSize bounds how many id-less events go into one
// backend batch during bulk insert.
const DefaultInsertChunkSize = 100

// Datastore is the bucket registry. Obtain handles through CreateBucket
// and Get; all other methods delegate to the backend directly.
type Datastore struct {
	backend   storage.Backend
	logger    *slog.Logger
	chunkSize int

	// hash key -> live handle
	buckets map[string]*Bucket
}

// Option configures a Datastore.
type Option func(*Datastore)

// WithLogger sets the logger used for non-fatal anomalies such as
// future-dated events. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(d *Datastore) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithInsertChunkSize sets the bulk-insert batch size.
func WithInsertChunkSize(n int) Option {
	return func(d *Datastore) {
		if n >= 1 {
			d.chunkSize = n
		}
	}
}

// New wraps an already constructed backend. The Datastore takes ownership:
// Close closes the backend.
func New(backend storage.Backend, opts ...Option) *Datastore {
	d := &Datastore{
		backend:   backend,
		logger:    slog.Default(),
		chunkSize: DefaultInsertChunkSize,
		buckets:   make(map[string]*Bucket),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Open resolves and validates the configuration, opens the backend it
// selects, and wraps it.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Datastore, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("datastore: invalid configuration: %w", err)
	}

	d := &Datastore{
		logger:  slog.Default(),
		buckets: make(map[string]*Bucket),
	}
	d.chunkSize = cfg.Datastore.InsertChunkSize
	if d.chunkSize < 1 {
		d.chunkSize = DefaultInsertChunkSize
	}
	for _, opt := range opts {
		opt(d)
	}

	backend, err := storage.Open(ctx, cfg, d.logger)
	if err != nil {
		return nil, err
	}
	d.backend = backend
	return d, nil
}

// CreateBucket persists a new bucket and returns its handle. A zero
// Created defaults to the current UTC instant. Returns DuplicateBucket if
// a bucket with the same id and owner already exists.
func (d *Datastore) CreateBucket(ctx context.Context, meta models.BucketMetadata) (*Bucket, error) {
	if meta.ID == "" {
		return nil, apperrors.InvalidArgument("bucket id is required")
	}
	if meta.Created.IsZero() {
		meta.Created = time.Now().UTC()
	}

	hashKey, err := d.backend.CreateBucket(ctx, meta)
	if err != nil {
		return nil, err
	}

	b := &Bucket{ds: d, hashKey: hashKey}
	d.buckets[hashKey] = b
	return b, nil
}

// Get returns the handle for an existing bucket. On cache miss the backend
// is consulted first, so a handle is never constructed for a bucket that
// does not exist. Returns NoSuchBucket for unknown hash keys.
func (d *Datastore) Get(ctx context.Context, hashKey string) (*Bucket, error) {
	if b, ok := d.buckets[hashKey]; ok {
		return b, nil
	}

	if _, err := d.backend.Metadata(ctx, hashKey); err != nil {
		return nil, err
	}

	b := &Bucket{ds: d, hashKey: hashKey}
	d.buckets[hashKey] = b
	return b, nil
}

// UpdateBucket applies the set fields of upd to the bucket. Returns
// NoSuchBucket for unknown hash keys.
func (d *Datastore) UpdateBucket(ctx context.Context, hashKey string, upd models.BucketUpdate) error {
	return d.backend.UpdateBucket(ctx, hashKey, upd)
}

// DeleteBucket drops the cached handle, then deletes the bucket and all
// its events. Returns NoSuchBucket for unknown hash keys.
func (d *Datastore) DeleteBucket(ctx context.Context, hashKey string) error {
	delete(d.buckets, hashKey)
	return d.backend.DeleteBucket(ctx, hashKey)
}

// Buckets returns metadata for every stored bucket, keyed by hash key.
func (d *Datastore) Buckets(ctx context.Context) (map[string]models.BucketMetadata, error) {
	return d.backend.Buckets(ctx)
}

// CreateUser persists a new user. An empty UUID gets a fresh random one; a
// zero Created defaults to the current UTC instant.
func (d *Datastore) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	if user.UUID == "" {
		user.UUID = uuid.NewString()
	}
	if user.Created.IsZero() {
		user.Created = time.Now().UTC()
	}
	return d.backend.CreateUser(ctx, user)
}

// UpdateUser applies the set fields of upd to the user. Returns NoSuchUser
// for unknown uuids.
func (d *Datastore) UpdateUser(ctx context.Context, uuid string, upd models.UserUpdate) error {
	return d.backend.UpdateUser(ctx, uuid, upd)
}

// GetUserByUUID returns the user, or (nil, nil) if the uuid is unknown.
func (d *Datastore) GetUserByUUID(ctx context.Context, uuid string) (*models.User, error) {
	return d.backend.GetUserByUUID(ctx, uuid)
}

// Users returns all stored users.
func (d *Datastore) Users(ctx context.Context) ([]models.User, error) {
	return d.backend.Users(ctx)
}

// BucketsForOwner returns stats for buckets matching the selector: each
// bucket's metadata plus an event count over the stats window and the size
// estimate derived from it.
func (d *Datastore) BucketsForOwner(ctx context.Context, sel models.OwnerSelector) (map[string]models.BucketStats, error) {
	return d.backend.BucketsForOwner(ctx, sel)
}

// Close drops all cached handles and closes the backend.
func (d *Datastore) Close() error {
	d.buckets = make(map[string]*Bucket)
	return d.backend.Close()
}
