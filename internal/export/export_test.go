package export

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/GFPc/GFPS-AW-Server/internal/datastore"
	apperrors "github.com/GFPc/GFPS-AW-Server/internal/errors"
	"github.com/GFPc/GFPS-AW-Server/internal/objstore"
	"github.com/GFPc/GFPS-AW-Server/internal/storage"
	"github.com/GFPc/GFPS-AW-Server/pkg/models"
)

func newTestStore(t *testing.T) *datastore.Datastore {
	t.Helper()
	ds := datastore.New(storage.NewMemoryBackend(storage.DefaultOptions()))
	t.Cleanup(func() { ds.Close() })
	return ds
}

func newTestSink(t *testing.T) objstore.Store {
	t.Helper()
	store, err := objstore.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local store: %v", err)
	}
	return store
}

// seedStore fills a store with two buckets and a few events, returning
// the hash keys.
func seedStore(t *testing.T, ds *datastore.Datastore) (string, string) {
	t.Helper()
	ctx := context.Background()

	window, err := ds.CreateBucket(ctx, models.BucketMetadata{
		ID:       "watcher-window_host",
		Type:     "currentwindow",
		Client:   "test-watcher",
		Hostname: "test-host",
		Created:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}
	afk, err := ds.CreateBucket(ctx, models.BucketMetadata{
		ID:       "watcher-afk_host",
		Type:     "afkstatus",
		Client:   "test-watcher",
		Hostname: "test-host",
		Created:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := window.Insert(ctx, models.Event{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Duration:  30 * time.Second,
			Data:      map[string]any{"app": "firefox", "title": "tab"},
		})
		if err != nil {
			t.Fatalf("failed to insert event: %v", err)
		}
	}
	if _, err := afk.Insert(ctx, models.Event{
		Timestamp: base,
		Duration:  time.Hour,
		Data:      map[string]any{"status": "afk"},
	}); err != nil {
		t.Fatalf("failed to insert event: %v", err)
	}

	return window.HashKey(), afk.HashKey()
}

func TestExporter_RoundTrip(t *testing.T) {
	ctx := context.Background()
	sink := newTestSink(t)

	src := newTestStore(t)
	windowKey, afkKey := seedStore(t, src)

	objectName, err := NewExporter(src, sink).Export(ctx)
	if err != nil {
		t.Fatalf("failed to export: %v", err)
	}
	if !strings.HasPrefix(objectName, "snapshot-") || !strings.HasSuffix(objectName, ".json.sz") {
		t.Errorf("unexpected object name: %s", objectName)
	}

	dst := newTestStore(t)
	if err := NewExporter(dst, sink).Import(ctx, objectName); err != nil {
		t.Fatalf("failed to import: %v", err)
	}

	buckets, err := dst.Buckets(ctx)
	if err != nil {
		t.Fatalf("failed to list buckets: %v", err)
	}
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(buckets))
	}
	if buckets[windowKey].Type != "currentwindow" {
		t.Errorf("bucket type mismatch: got %s", buckets[windowKey].Type)
	}

	// Events and their ids survive the round trip.
	srcWindow, err := src.Get(ctx, windowKey)
	if err != nil {
		t.Fatalf("failed to get source bucket: %v", err)
	}
	dstWindow, err := dst.Get(ctx, windowKey)
	if err != nil {
		t.Fatalf("failed to get imported bucket: %v", err)
	}

	srcEvents, err := srcWindow.Get(ctx, -1, nil, nil)
	if err != nil {
		t.Fatalf("failed to read source events: %v", err)
	}
	dstEvents, err := dstWindow.Get(ctx, -1, nil, nil)
	if err != nil {
		t.Fatalf("failed to read imported events: %v", err)
	}
	if len(dstEvents) != len(srcEvents) {
		t.Fatalf("event count mismatch: got %d, want %d", len(dstEvents), len(srcEvents))
	}
	for i := range srcEvents {
		if dstEvents[i].ID != srcEvents[i].ID {
			t.Errorf("event %d id mismatch: got %d, want %d", i, dstEvents[i].ID, srcEvents[i].ID)
		}
		if !dstEvents[i].Timestamp.Equal(srcEvents[i].Timestamp) {
			t.Errorf("event %d timestamp mismatch: got %v, want %v", i, dstEvents[i].Timestamp, srcEvents[i].Timestamp)
		}
		if dstEvents[i].Duration != srcEvents[i].Duration {
			t.Errorf("event %d duration mismatch: got %v, want %v", i, dstEvents[i].Duration, srcEvents[i].Duration)
		}
		if dstEvents[i].Data["app"] != srcEvents[i].Data["app"] {
			t.Errorf("event %d data mismatch: got %v, want %v", i, dstEvents[i].Data, srcEvents[i].Data)
		}
	}

	dstAfk, err := dst.Get(ctx, afkKey)
	if err != nil {
		t.Fatalf("failed to get imported afk bucket: %v", err)
	}
	count, err := dstAfk.Count(ctx, nil, nil)
	if err != nil {
		t.Fatalf("failed to count events: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 afk event, got %d", count)
	}
}

func TestExporter_UncompressedSnapshotIsPlainJSON(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	sink, err := objstore.NewLocalStore(dir)
	if err != nil {
		t.Fatalf("failed to create local store: %v", err)
	}

	src := newTestStore(t)
	seedStore(t, src)

	objectName, err := NewExporter(src, sink, WithCompression(false)).Export(ctx)
	if err != nil {
		t.Fatalf("failed to export: %v", err)
	}
	if !strings.HasSuffix(objectName, ".json") {
		t.Errorf("unexpected object name: %s", objectName)
	}

	raw, err := os.ReadFile(filepath.Join(dir, objectName))
	if err != nil {
		t.Fatalf("failed to read exported object: %v", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatalf("exported object is not plain JSON: %v", err)
	}
	if len(snap.Buckets) != 2 {
		t.Errorf("expected 2 buckets in document, got %d", len(snap.Buckets))
	}
	for _, bs := range snap.Buckets {
		if bs.ID == "" || bs.Type == "" {
			t.Errorf("bucket metadata missing in document: %+v", bs.BucketMetadata)
		}
	}
}

func TestExporter_ImportIntoPopulatedStoreFails(t *testing.T) {
	ctx := context.Background()
	sink := newTestSink(t)

	src := newTestStore(t)
	seedStore(t, src)

	objectName, err := NewExporter(src, sink).Export(ctx)
	if err != nil {
		t.Fatalf("failed to export: %v", err)
	}

	// The source store still holds the same buckets.
	err = NewExporter(src, sink).Import(ctx, objectName)
	if !errors.Is(err, apperrors.ErrDuplicateBucket) {
		t.Errorf("expected duplicate bucket error, got %v", err)
	}
}

func TestExporter_ImportMissingObject(t *testing.T) {
	sink := newTestSink(t)
	dst := newTestStore(t)

	err := NewExporter(dst, sink).Import(context.Background(), "snapshot-nope.json")
	if !errors.Is(err, objstore.ErrObjectNotFound) {
		t.Errorf("expected object not found error, got %v", err)
	}
}

func TestExporter_LatestObject(t *testing.T) {
	ctx := context.Background()
	sink := newTestSink(t)
	src := newTestStore(t)
	seedStore(t, src)

	exp := NewExporter(src, sink)

	_, err := exp.LatestObject(ctx)
	if !errors.Is(err, objstore.ErrObjectNotFound) {
		t.Fatalf("expected object not found error, got %v", err)
	}

	first, err := exp.Export(ctx)
	if err != nil {
		t.Fatalf("failed to export: %v", err)
	}
	latest, err := exp.LatestObject(ctx)
	if err != nil {
		t.Fatalf("failed to find latest snapshot: %v", err)
	}
	if latest != first {
		t.Errorf("latest mismatch: got %s, want %s", latest, first)
	}

	second, err := exp.Export(ctx)
	if err != nil {
		t.Fatalf("failed to export again: %v", err)
	}
	latest, err = exp.LatestObject(ctx)
	if err != nil {
		t.Fatalf("failed to find latest snapshot: %v", err)
	}
	if latest != first && latest != second {
		t.Errorf("latest is not one of the exports: %s", latest)
	}
}
