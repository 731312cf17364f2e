// Package storage provides the pluggable persistence backends of the
// datastore. A Backend owns the physical schema and id assignment; the
// registry in internal/datastore layers caching, validation, and query
// normalization on top of this contract.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/GFPc/GFPS-AW-Server/internal/config"
	"github.com/GFPc/GFPS-AW-Server/pkg/models"
)

// Backend is the persistence contract every storage implementation must
// satisfy. All backends guarantee hash_key uniqueness, cascade deletion of a
// bucket's events, and monotonically increasing event ids within a bucket.
// Timestamps are normalized to millisecond resolution on store.
type Backend interface {
	// Buckets returns metadata for every stored bucket, keyed by hash key.
	Buckets(ctx context.Context) (map[string]models.BucketMetadata, error)

	// CreateBucket stores a new bucket and returns its hash key, which the
	// backend computes itself from the bucket id and owner. Returns
	// DuplicateBucket if the hash key already exists.
	CreateBucket(ctx context.Context, meta models.BucketMetadata) (string, error)

	// UpdateBucket applies the set fields of upd to the bucket. Returns
	// NoSuchBucket if the hash key is unknown.
	UpdateBucket(ctx context.Context, hashKey string, upd models.BucketUpdate) error

	// DeleteBucket removes the bucket and all its events. Returns
	// NoSuchBucket if the hash key is unknown.
	DeleteBucket(ctx context.Context, hashKey string) error

	// Metadata returns the bucket's persisted fields. Returns NoSuchBucket
	// if the hash key is unknown.
	Metadata(ctx context.Context, hashKey string) (models.BucketMetadata, error)

	// InsertOne stores a single event and returns it with its id. An event
	// that already carries an id is applied as an upsert under that id.
	InsertOne(ctx context.Context, hashKey string, event models.Event) (models.Event, error)

	// InsertMany stores a batch of id-less events.
	InsertMany(ctx context.Context, hashKey string, events []models.Event) error

	// GetEvent returns the event with the given id, or (nil, nil) if the
	// bucket has no such event.
	GetEvent(ctx context.Context, hashKey string, eventID int64) (*models.Event, error)

	// GetEvents returns events whose interval intersects [start, end],
	// newest first. A nil bound is unbounded on that side. A limit below
	// one means no limit.
	GetEvents(ctx context.Context, hashKey string, limit int, start, end *time.Time) ([]models.Event, error)

	// EventCount counts events whose interval intersects [start, end].
	EventCount(ctx context.Context, hashKey string, start, end *time.Time) (int64, error)

	// DeleteEvent removes one event and reports whether a row was deleted.
	// Deleting an absent id is not an error.
	DeleteEvent(ctx context.Context, hashKey string, eventID int64) (bool, error)

	// Replace overwrites timestamp, duration, and data of an existing
	// event. Returns NoSuchEvent if the id is absent.
	Replace(ctx context.Context, hashKey string, eventID int64, event models.Event) error

	// ReplaceLast overwrites the chronologically last event in the bucket.
	// Returns EmptyBucket if the bucket has no events.
	ReplaceLast(ctx context.Context, hashKey string, event models.Event) error

	// CreateUser stores a new user and returns it with its assigned id.
	CreateUser(ctx context.Context, user models.User) (models.User, error)

	// UpdateUser applies the set fields of upd to the user. Returns
	// NoSuchUser if the uuid is unknown.
	UpdateUser(ctx context.Context, uuid string, upd models.UserUpdate) error

	// GetUserByUUID returns the user, or (nil, nil) if the uuid is unknown.
	GetUserByUUID(ctx context.Context, uuid string) (*models.User, error)

	// Users returns all stored users.
	Users(ctx context.Context) ([]models.User, error)

	// BucketsForOwner returns metadata for buckets matching the selector,
	// augmented with an event count over the stats window and an estimated
	// size derived from it.
	BucketsForOwner(ctx context.Context, sel models.OwnerSelector) (map[string]models.BucketStats, error)

	// Close releases backend resources.
	Close() error
}

// Options carries the tunables shared by all backends.
type Options struct {
	// StatsWindowStart is the lower bound of the window BucketsForOwner
	// counts events over. The upper bound is always the current instant.
	StatsWindowStart time.Time

	// EstimatedBytesPerEvent converts an event count into the estimated
	// size BucketsForOwner reports.
	EstimatedBytesPerEvent int64

	// Logger receives backend lifecycle messages such as schema
	// migrations. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns the standard backend tunables.
func DefaultOptions() Options {
	return Options{
		StatsWindowStart:       time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		EstimatedBytesPerEvent: 150,
		Logger:                 slog.Default(),
	}
}

// withDefaults fills zero-valued fields with their defaults.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.StatsWindowStart.IsZero() {
		o.StatsWindowStart = def.StatsWindowStart
	}
	if o.EstimatedBytesPerEvent < 1 {
		o.EstimatedBytesPerEvent = def.EstimatedBytesPerEvent
	}
	if o.Logger == nil {
		o.Logger = def.Logger
	}
	return o
}

// Open builds the backend selected by the configuration. A nil logger means
// slog.Default(). The caller owns the returned backend and must Close it.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Backend, error) {
	opts := Options{
		StatsWindowStart:       cfg.StatsWindow(),
		EstimatedBytesPerEvent: cfg.Datastore.EstimatedBytesPerEvent,
		Logger:                 logger,
	}

	switch cfg.Storage.Type {
	case config.BackendSQLite:
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		return NewSQLiteBackend(cfg.Storage.SQLite.Path, opts)
	case config.BackendMemory:
		return NewMemoryBackend(opts), nil
	case config.BackendPostgres:
		return NewPostgresBackend(ctx, cfg.Storage.Postgres.DSN, cfg.Storage.Postgres.MaxConns, opts)
	default:
		return nil, fmt.Errorf("storage: unknown backend type %q", cfg.Storage.Type)
	}
}

// normalizeEvent truncates an event's timestamp and duration to the
// millisecond resolution the store guarantees, in UTC.
func normalizeEvent(e models.Event) models.Event {
	e.Timestamp = e.Timestamp.UTC().Truncate(time.Millisecond)
	e.Duration = e.Duration.Truncate(time.Millisecond)
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	return e
}
