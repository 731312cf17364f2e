package datastore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/GFPc/GFPS-AW-Server/internal/config"
	apperrors "github.com/GFPc/GFPS-AW-Server/internal/errors"
	"github.com/GFPc/GFPS-AW-Server/pkg/models"
)

// fakeBackend counts calls and captures arguments so tests can verify
// what reaches the storage layer.
type fakeBackend struct {
	metadataCalls  int
	getEventsCalls int
	countCalls     int

	lastLimit int
	lastStart *time.Time
	lastEnd   *time.Time

	lastCountStart *time.Time
	lastCountEnd   *time.Time

	buckets map[string]models.BucketMetadata
	users   map[string]models.User

	// canned GetEvents result
	events []models.Event

	inserted []models.Event   // InsertOne arguments in call order
	batches  [][]models.Event // InsertMany arguments in call order

	nextID int64
	closed bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		buckets: make(map[string]models.BucketMetadata),
		users:   make(map[string]models.User),
		nextID:  1,
	}
}

func (f *fakeBackend) Buckets(ctx context.Context) (map[string]models.BucketMetadata, error) {
	out := make(map[string]models.BucketMetadata, len(f.buckets))
	for k, v := range f.buckets {
		out[k] = v
	}
	return out, nil
}

func (f *fakeBackend) CreateBucket(ctx context.Context, meta models.BucketMetadata) (string, error) {
	hashKey := models.BucketHashKey(meta.ID, meta.OwnerID)
	if _, ok := f.buckets[hashKey]; ok {
		return "", apperrors.DuplicateBucket(hashKey, nil)
	}
	meta.HashKey = hashKey
	f.buckets[hashKey] = meta
	return hashKey, nil
}

func (f *fakeBackend) UpdateBucket(ctx context.Context, hashKey string, upd models.BucketUpdate) error {
	if _, ok := f.buckets[hashKey]; !ok {
		return apperrors.NoSuchBucket(hashKey)
	}
	return nil
}

func (f *fakeBackend) DeleteBucket(ctx context.Context, hashKey string) error {
	if _, ok := f.buckets[hashKey]; !ok {
		return apperrors.NoSuchBucket(hashKey)
	}
	delete(f.buckets, hashKey)
	return nil
}

func (f *fakeBackend) Metadata(ctx context.Context, hashKey string) (models.BucketMetadata, error) {
	f.metadataCalls++
	meta, ok := f.buckets[hashKey]
	if !ok {
		return models.BucketMetadata{}, apperrors.NoSuchBucket(hashKey)
	}
	return meta, nil
}

func (f *fakeBackend) InsertOne(ctx context.Context, hashKey string, event models.Event) (models.Event, error) {
	if event.ID == 0 {
		event.ID = f.nextID
		f.nextID++
	}
	f.inserted = append(f.inserted, event)
	return event, nil
}

func (f *fakeBackend) InsertMany(ctx context.Context, hashKey string, events []models.Event) error {
	batch := make([]models.Event, len(events))
	copy(batch, events)
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeBackend) GetEvent(ctx context.Context, hashKey string, eventID int64) (*models.Event, error) {
	for _, e := range f.events {
		if e.ID == eventID {
			out := e
			return &out, nil
		}
	}
	return nil, nil
}

func (f *fakeBackend) GetEvents(ctx context.Context, hashKey string, limit int, start, end *time.Time) ([]models.Event, error) {
	f.getEventsCalls++
	f.lastLimit = limit
	f.lastStart = copyTime(start)
	f.lastEnd = copyTime(end)

	out := make([]models.Event, len(f.events))
	copy(out, f.events)
	return out, nil
}

func (f *fakeBackend) EventCount(ctx context.Context, hashKey string, start, end *time.Time) (int64, error) {
	f.countCalls++
	f.lastCountStart = copyTime(start)
	f.lastCountEnd = copyTime(end)
	return int64(len(f.events)), nil
}

func (f *fakeBackend) DeleteEvent(ctx context.Context, hashKey string, eventID int64) (bool, error) {
	return true, nil
}

func (f *fakeBackend) Replace(ctx context.Context, hashKey string, eventID int64, event models.Event) error {
	return nil
}

func (f *fakeBackend) ReplaceLast(ctx context.Context, hashKey string, event models.Event) error {
	return nil
}

func (f *fakeBackend) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	user.ID = f.nextID
	f.nextID++
	f.users[user.UUID] = user
	return user, nil
}

func (f *fakeBackend) UpdateUser(ctx context.Context, uuid string, upd models.UserUpdate) error {
	if _, ok := f.users[uuid]; !ok {
		return apperrors.NoSuchUser(uuid)
	}
	return nil
}

func (f *fakeBackend) GetUserByUUID(ctx context.Context, uuid string) (*models.User, error) {
	u, ok := f.users[uuid]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (f *fakeBackend) Users(ctx context.Context) ([]models.User, error) {
	out := make([]models.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeBackend) BucketsForOwner(ctx context.Context, sel models.OwnerSelector) (map[string]models.BucketStats, error) {
	return map[string]models.BucketStats{}, nil
}

func (f *fakeBackend) Close() error {
	f.closed = true
	return nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func newTestMeta(id string) models.BucketMetadata {
	return models.BucketMetadata{
		ID:       id,
		Type:     "currentwindow",
		Client:   "test-watcher",
		Hostname: "test-host",
		Created:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestDatastore_CreateBucketCachesHandle(t *testing.T) {
	backend := newFakeBackend()
	ds := New(backend)
	ctx := context.Background()

	b, err := ds.CreateBucket(ctx, newTestMeta("watcher-window_host"))
	if err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}
	if want := models.BucketHashKey("watcher-window_host", nil); b.HashKey() != want {
		t.Errorf("hash key mismatch: got %s, want %s", b.HashKey(), want)
	}

	// The freshly created bucket is already cached: Get must not consult
	// the backend.
	got, err := ds.Get(ctx, b.HashKey())
	if err != nil {
		t.Fatalf("failed to get bucket: %v", err)
	}
	if got != b {
		t.Errorf("expected the cached handle, got a different one")
	}
	if backend.metadataCalls != 0 {
		t.Errorf("expected 0 metadata calls, got %d", backend.metadataCalls)
	}
}

func TestDatastore_CreateBucketRequiresID(t *testing.T) {
	backend := newFakeBackend()
	ds := New(backend)

	_, err := ds.CreateBucket(context.Background(), models.BucketMetadata{Type: "currentwindow"})
	if !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Errorf("expected invalid argument error, got %v", err)
	}
	if len(backend.buckets) != 0 {
		t.Errorf("backend should not have been called")
	}
}

func TestDatastore_CreateBucketDefaultsCreated(t *testing.T) {
	backend := newFakeBackend()
	ds := New(backend)

	meta := newTestMeta("watcher-window_host")
	meta.Created = time.Time{}
	before := time.Now().UTC()

	b, err := ds.CreateBucket(context.Background(), meta)
	if err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	stored := backend.buckets[b.HashKey()]
	if stored.Created.Before(before) || stored.Created.After(time.Now().UTC()) {
		t.Errorf("created not defaulted to now: got %v", stored.Created)
	}
}

func TestDatastore_CreateBucketDuplicate(t *testing.T) {
	backend := newFakeBackend()
	ds := New(backend)
	ctx := context.Background()

	if _, err := ds.CreateBucket(ctx, newTestMeta("watcher-window_host")); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}
	_, err := ds.CreateBucket(ctx, newTestMeta("watcher-window_host"))
	if !errors.Is(err, apperrors.ErrDuplicateBucket) {
		t.Errorf("expected duplicate bucket error, got %v", err)
	}
}

func TestDatastore_GetLooksUpBeforeConstructing(t *testing.T) {
	backend := newFakeBackend()
	ds := New(backend)
	ctx := context.Background()

	// Unknown hash keys never yield a handle.
	_, err := ds.Get(ctx, "no-such-hash")
	if !errors.Is(err, apperrors.ErrNoSuchBucket) {
		t.Fatalf("expected no such bucket error, got %v", err)
	}
	if backend.metadataCalls != 1 {
		t.Errorf("expected 1 metadata call, got %d", backend.metadataCalls)
	}

	// A failed lookup leaves nothing cached: the next Get asks again.
	_, _ = ds.Get(ctx, "no-such-hash")
	if backend.metadataCalls != 2 {
		t.Errorf("expected 2 metadata calls, got %d", backend.metadataCalls)
	}

	// A bucket created by another registry over the same backend is
	// visible after a lookup, and the handle is cached.
	hashKey, err := backend.CreateBucket(ctx, newTestMeta("watcher-afk_host"))
	if err != nil {
		t.Fatalf("failed to seed bucket: %v", err)
	}
	b1, err := ds.Get(ctx, hashKey)
	if err != nil {
		t.Fatalf("failed to get bucket: %v", err)
	}
	b2, err := ds.Get(ctx, hashKey)
	if err != nil {
		t.Fatalf("failed to get bucket again: %v", err)
	}
	if b1 != b2 {
		t.Errorf("expected one live handle per hash key")
	}
	if backend.metadataCalls != 3 {
		t.Errorf("expected 3 metadata calls, got %d", backend.metadataCalls)
	}
}

func TestDatastore_DeleteBucketDropsHandle(t *testing.T) {
	backend := newFakeBackend()
	ds := New(backend)
	ctx := context.Background()

	b, err := ds.CreateBucket(ctx, newTestMeta("watcher-window_host"))
	if err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}
	if err := ds.DeleteBucket(ctx, b.HashKey()); err != nil {
		t.Fatalf("failed to delete bucket: %v", err)
	}

	_, err = ds.Get(ctx, b.HashKey())
	if !errors.Is(err, apperrors.ErrNoSuchBucket) {
		t.Errorf("expected no such bucket error after delete, got %v", err)
	}

	err = ds.DeleteBucket(ctx, b.HashKey())
	if !errors.Is(err, apperrors.ErrNoSuchBucket) {
		t.Errorf("expected no such bucket error on double delete, got %v", err)
	}
}

func TestDatastore_CreateUserDefaults(t *testing.T) {
	backend := newFakeBackend()
	ds := New(backend)

	before := time.Now().UTC()
	u, err := ds.CreateUser(context.Background(), models.User{Username: "alice"})
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	if u.ID < 1 {
		t.Errorf("expected assigned user id, got %d", u.ID)
	}
	if _, err := uuid.Parse(u.UUID); err != nil {
		t.Errorf("expected a generated uuid, got %q: %v", u.UUID, err)
	}
	if u.Created.Before(before) || u.Created.After(time.Now().UTC()) {
		t.Errorf("created not defaulted to now: got %v", u.Created)
	}

	// A provided uuid is kept.
	u2, err := ds.CreateUser(context.Background(), models.User{
		UUID: "9f3c1a30-0000-4000-8000-000000000001",
	})
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	if u2.UUID != "9f3c1a30-0000-4000-8000-000000000001" {
		t.Errorf("uuid overwritten: got %s", u2.UUID)
	}
}

func TestDatastore_CloseClosesBackend(t *testing.T) {
	backend := newFakeBackend()
	ds := New(backend)

	if err := ds.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}
	if !backend.closed {
		t.Errorf("backend not closed")
	}
}

func TestDatastore_OpenFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Storage.Type = config.BackendMemory

	ds, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to open datastore: %v", err)
	}
	defer ds.Close()

	ctx := context.Background()
	b, err := ds.CreateBucket(ctx, newTestMeta("watcher-window_host"))
	if err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}
	stored, err := b.Insert(ctx, models.Event{
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Duration:  time.Second,
		Data:      map[string]any{"app": "firefox"},
	})
	if err != nil {
		t.Fatalf("failed to insert event: %v", err)
	}
	got, err := b.GetByID(ctx, stored.ID)
	if err != nil {
		t.Fatalf("failed to get event: %v", err)
	}
	if got.Data["app"] != "firefox" {
		t.Errorf("data mismatch: got %v", got.Data)
	}
}

func TestDatastore_OpenRejectsBadConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Type = "etcd"

	_, err := Open(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected error for unknown backend type")
	}
}
