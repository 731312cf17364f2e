// Package export builds portable snapshots of the whole store and ships
// them through an object-store sink. A snapshot is a single JSON document
// in the shape {"buckets": {hash_key: {metadata..., "events": [...]}}},
// optionally snappy-compressed. Import replays a snapshot through the
// registry, so imported data passes the same validation as live writes.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"

	"github.com/GFPc/GFPS-AW-Server/internal/datastore"
	"github.com/GFPc/GFPS-AW-Server/internal/objstore"
	"github.com/GFPc/GFPS-AW-Server/pkg/models"
)

// snapshotTimeLayout orders snapshot object names chronologically.
const snapshotTimeLayout = "20060102T150405Z"

// BucketSnapshot is one bucket's metadata together with all its events,
// newest first.
type BucketSnapshot struct {
	models.BucketMetadata
	Events []models.Event `json:"events"`
}

// Snapshot is the full exported state of a store, keyed by hash key.
type Snapshot struct {
	Buckets map[string]BucketSnapshot `json:"buckets"`
}

// Exporter writes snapshots of a Datastore to an object store and replays
// them back.
type Exporter struct {
	ds       *datastore.Datastore
	store    objstore.Store
	logger   *slog.Logger
	compress bool
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Exporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithCompression toggles snappy compression of exported documents.
func WithCompression(on bool) Option {
	return func(e *Exporter) {
		e.compress = on
	}
}

// NewExporter builds an Exporter over the given registry and sink.
func NewExporter(ds *datastore.Datastore, store objstore.Store, opts ...Option) *Exporter {
	e := &Exporter{
		ds:       ds,
		store:    store,
		logger:   slog.Default(),
		compress: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Snapshot reads every bucket and its full event history through the
// registry.
func (e *Exporter) Snapshot(ctx context.Context) (*Snapshot, error) {
	buckets, err := e.ds.Buckets(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: failed to list buckets: %w", err)
	}

	snap := &Snapshot{Buckets: make(map[string]BucketSnapshot, len(buckets))}
	for hashKey, meta := range buckets {
		handle, err := e.ds.Get(ctx, hashKey)
		if err != nil {
			return nil, fmt.Errorf("export: failed to open bucket %s: %w", hashKey, err)
		}
		events, err := handle.Get(ctx, -1, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("export: failed to read events of %s: %w", hashKey, err)
		}
		snap.Buckets[hashKey] = BucketSnapshot{
			BucketMetadata: meta,
			Events:         events,
		}
	}
	return snap, nil
}

// Export takes a snapshot, stages it to a temporary file, and uploads it
// under a fresh object name ("snapshot-<utc time>-<uuid>.json", with a
// .sz suffix when compressed). Names sort chronologically. Returns the
// object name.
func (e *Exporter) Export(ctx context.Context) (string, error) {
	snap, err := e.Snapshot(ctx)
	if err != nil {
		return "", err
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("export: failed to encode snapshot: %w", err)
	}

	objectName := fmt.Sprintf("snapshot-%s-%s.json",
		time.Now().UTC().Format(snapshotTimeLayout), uuid.NewString())
	if e.compress {
		raw = snappy.Encode(nil, raw)
		objectName += ".sz"
	}

	tmp, err := os.CreateTemp("", "gfps-aw-export-*")
	if err != nil {
		return "", fmt.Errorf("export: failed to stage snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return "", fmt.Errorf("export: failed to stage snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("export: failed to stage snapshot: %w", err)
	}

	if err := e.store.Upload(ctx, tmpPath, objectName); err != nil {
		return "", fmt.Errorf("export: failed to upload snapshot: %w", err)
	}

	var eventCount int
	for _, b := range snap.Buckets {
		eventCount += len(b.Events)
	}
	e.logger.Info("exported snapshot",
		"object", objectName,
		"buckets", len(snap.Buckets),
		"events", eventCount)

	return objectName, nil
}

// Import downloads a snapshot object and replays it: every bucket is
// created through the registry and its events are bulk-inserted through
// the handle. Events keep their exported ids, so re-importing over
// existing data overwrites rather than duplicates. Importing a bucket
// that already exists fails with DuplicateBucket.
func (e *Exporter) Import(ctx context.Context, objectName string) error {
	tmp, err := os.CreateTemp("", "gfps-aw-import-*")
	if err != nil {
		return fmt.Errorf("export: failed to stage download: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := e.store.Download(ctx, objectName, tmpPath); err != nil {
		return fmt.Errorf("export: failed to download snapshot: %w", err)
	}

	raw, err := os.ReadFile(tmpPath)
	if err != nil {
		return fmt.Errorf("export: failed to read snapshot: %w", err)
	}
	if strings.HasSuffix(objectName, ".sz") {
		raw, err = snappy.Decode(nil, raw)
		if err != nil {
			return fmt.Errorf("export: failed to decompress snapshot: %w", err)
		}
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return fmt.Errorf("export: failed to decode snapshot: %w", err)
	}

	return e.Restore(ctx, &snap)
}

// Restore replays an in-memory snapshot into the store.
func (e *Exporter) Restore(ctx context.Context, snap *Snapshot) error {
	var eventCount int
	for hashKey, bs := range snap.Buckets {
		handle, err := e.ds.CreateBucket(ctx, bs.BucketMetadata)
		if err != nil {
			return fmt.Errorf("export: failed to recreate bucket %s: %w", hashKey, err)
		}
		if err := handle.InsertMany(ctx, bs.Events); err != nil {
			return fmt.Errorf("export: failed to replay events of %s: %w", hashKey, err)
		}
		eventCount += len(bs.Events)
	}

	e.logger.Info("imported snapshot",
		"buckets", len(snap.Buckets),
		"events", eventCount)
	return nil
}

// LatestObject returns the most recent snapshot object (names sort
// chronologically), or ErrObjectNotFound if none exist.
func (e *Exporter) LatestObject(ctx context.Context) (string, error) {
	objects, err := e.store.ListObjects(ctx, "snapshot-")
	if err != nil {
		return "", fmt.Errorf("export: failed to list snapshots: %w", err)
	}
	if len(objects) == 0 {
		return "", objstore.ErrObjectNotFound
	}

	latest := objects[0]
	for _, o := range objects[1:] {
		if filepath.Base(o) > filepath.Base(latest) {
			latest = o
		}
	}
	return latest, nil
}
