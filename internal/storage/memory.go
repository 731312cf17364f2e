package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/GFPc/GFPS-AW-Server/internal/codec"
	apperrors "github.com/GFPc/GFPS-AW-Server/internal/errors"
	"github.com/GFPc/GFPS-AW-Server/pkg/models"
)

// memoryBucket holds one bucket's metadata and events.
type memoryBucket struct {
	meta   models.BucketMetadata
	events map[int64]models.Event
}

// MemoryBackend implements Backend entirely in memory. Nothing survives
// Close; it exists for tests and throwaway stores. Documents are cloned on
// both store and read so callers never share map state with the backend.
type MemoryBackend struct {
	opts Options

	mu          sync.RWMutex
	buckets     map[string]*memoryBucket
	users       map[string]models.User // keyed by uuid
	nextEventID int64
	nextUserID  int64
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend(opts Options) *MemoryBackend {
	return &MemoryBackend{
		opts:        opts.withDefaults(),
		buckets:     make(map[string]*memoryBucket),
		users:       make(map[string]models.User),
		nextEventID: 1,
		nextUserID:  1,
	}
}

// Buckets returns metadata for every stored bucket, keyed by hash key.
func (m *MemoryBackend) Buckets(ctx context.Context) (map[string]models.BucketMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	buckets := make(map[string]models.BucketMetadata, len(m.buckets))
	for hashKey, b := range m.buckets {
		buckets[hashKey] = cloneBucketMeta(b.meta)
	}
	return buckets, nil
}

// CreateBucket stores a new bucket and returns its hash key.
func (m *MemoryBackend) CreateBucket(ctx context.Context, meta models.BucketMetadata) (string, error) {
	hashKey := models.BucketHashKey(meta.ID, meta.OwnerID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.buckets[hashKey]; exists {
		return "", apperrors.DuplicateBucket(hashKey, nil)
	}

	meta.HashKey = hashKey
	meta.Created = meta.Created.UTC()
	meta.Data = codec.CloneDocument(meta.Data)
	m.buckets[hashKey] = &memoryBucket{
		meta:   meta,
		events: make(map[int64]models.Event),
	}
	return hashKey, nil
}

// UpdateBucket applies the set fields of upd to the bucket.
func (m *MemoryBackend) UpdateBucket(ctx context.Context, hashKey string, upd models.BucketUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[hashKey]
	if !ok {
		return apperrors.NoSuchBucket(hashKey)
	}

	if upd.Type != nil {
		b.meta.Type = *upd.Type
	}
	if upd.Client != nil {
		b.meta.Client = *upd.Client
	}
	if upd.Hostname != nil {
		b.meta.Hostname = *upd.Hostname
	}
	if upd.Name != nil {
		name := *upd.Name
		b.meta.Name = &name
	}
	if upd.Data != nil {
		b.meta.Data = codec.CloneDocument(upd.Data)
	}
	return nil
}

// DeleteBucket removes the bucket and all its events.
func (m *MemoryBackend) DeleteBucket(ctx context.Context, hashKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.buckets[hashKey]; !ok {
		return apperrors.NoSuchBucket(hashKey)
	}
	delete(m.buckets, hashKey)
	return nil
}

// Metadata returns the bucket's persisted fields.
func (m *MemoryBackend) Metadata(ctx context.Context, hashKey string) (models.BucketMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.buckets[hashKey]
	if !ok {
		return models.BucketMetadata{}, apperrors.NoSuchBucket(hashKey)
	}
	return cloneBucketMeta(b.meta), nil
}

// InsertOne stores a single event and returns it with its id.
func (m *MemoryBackend) InsertOne(ctx context.Context, hashKey string, event models.Event) (models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[hashKey]
	if !ok {
		return models.Event{}, apperrors.NoSuchBucket(hashKey)
	}

	e := normalizeEvent(event)
	e.Data = codec.CloneDocument(e.Data)

	if e.ID == 0 {
		e.ID = m.nextEventID
		m.nextEventID++
	} else if e.ID >= m.nextEventID {
		m.nextEventID = e.ID + 1
	}

	b.events[e.ID] = e
	return cloneEvent(e), nil
}

// InsertMany stores a batch of id-less events.
func (m *MemoryBackend) InsertMany(ctx context.Context, hashKey string, events []models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[hashKey]
	if !ok {
		return apperrors.NoSuchBucket(hashKey)
	}

	for _, event := range events {
		e := normalizeEvent(event)
		e.Data = codec.CloneDocument(e.Data)
		e.ID = m.nextEventID
		m.nextEventID++
		b.events[e.ID] = e
	}
	return nil
}

// GetEvent returns the event with the given id, or (nil, nil) if absent.
func (m *MemoryBackend) GetEvent(ctx context.Context, hashKey string, eventID int64) (*models.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.buckets[hashKey]
	if !ok {
		return nil, apperrors.NoSuchBucket(hashKey)
	}

	e, ok := b.events[eventID]
	if !ok {
		return nil, nil
	}
	cp := cloneEvent(e)
	return &cp, nil
}

// GetEvents returns events intersecting [start, end], newest first.
func (m *MemoryBackend) GetEvents(ctx context.Context, hashKey string, limit int, start, end *time.Time) ([]models.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.buckets[hashKey]
	if !ok {
		return nil, apperrors.NoSuchBucket(hashKey)
	}

	matched := make([]models.Event, 0)
	for _, e := range b.events {
		if eventOverlaps(e, start, end) {
			matched = append(matched, e)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].Timestamp.After(matched[j].Timestamp)
		}
		return matched[i].ID > matched[j].ID
	})

	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	events := make([]models.Event, len(matched))
	for i, e := range matched {
		events[i] = cloneEvent(e)
	}
	return events, nil
}

// EventCount counts events intersecting [start, end].
func (m *MemoryBackend) EventCount(ctx context.Context, hashKey string, start, end *time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.buckets[hashKey]
	if !ok {
		return 0, apperrors.NoSuchBucket(hashKey)
	}

	var count int64
	for _, e := range b.events {
		if eventOverlaps(e, start, end) {
			count++
		}
	}
	return count, nil
}

// DeleteEvent removes one event and reports whether it existed.
func (m *MemoryBackend) DeleteEvent(ctx context.Context, hashKey string, eventID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[hashKey]
	if !ok {
		return false, apperrors.NoSuchBucket(hashKey)
	}

	if _, ok := b.events[eventID]; !ok {
		return false, nil
	}
	delete(b.events, eventID)
	return true, nil
}

// Replace overwrites timestamp, duration, and data of an existing event.
func (m *MemoryBackend) Replace(ctx context.Context, hashKey string, eventID int64, event models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[hashKey]
	if !ok {
		return apperrors.NoSuchBucket(hashKey)
	}
	if _, ok := b.events[eventID]; !ok {
		return apperrors.NoSuchEvent(hashKey, eventID)
	}

	e := normalizeEvent(event)
	e.Data = codec.CloneDocument(e.Data)
	e.ID = eventID
	b.events[eventID] = e
	return nil
}

// ReplaceLast overwrites the chronologically last event in the bucket.
func (m *MemoryBackend) ReplaceLast(ctx context.Context, hashKey string, event models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[hashKey]
	if !ok {
		return apperrors.NoSuchBucket(hashKey)
	}
	if len(b.events) == 0 {
		return apperrors.EmptyBucket(hashKey)
	}

	var last models.Event
	for _, e := range b.events {
		if last.ID == 0 || e.Timestamp.After(last.Timestamp) ||
			(e.Timestamp.Equal(last.Timestamp) && e.ID > last.ID) {
			last = e
		}
	}

	e := normalizeEvent(event)
	e.Data = codec.CloneDocument(e.Data)
	e.ID = last.ID
	b.events[last.ID] = e
	return nil
}

// CreateUser stores a new user and returns it with its assigned id.
func (m *MemoryBackend) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[user.UUID]; exists {
		return models.User{}, apperrors.BackendFailure("create user", "",
			fmt.Errorf("uuid %q already exists", user.UUID))
	}

	user.ID = m.nextUserID
	m.nextUserID++
	user.Created = user.Created.UTC()
	user.Data = codec.CloneDocument(user.Data)
	m.users[user.UUID] = user

	return cloneUser(user), nil
}

// UpdateUser applies the set fields of upd to the user.
func (m *MemoryBackend) UpdateUser(ctx context.Context, uuid string, upd models.UserUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[uuid]
	if !ok {
		return apperrors.NoSuchUser(uuid)
	}

	if upd.Username != nil {
		u.Username = *upd.Username
	}
	if upd.Data != nil {
		u.Data = codec.CloneDocument(upd.Data)
	}
	m.users[uuid] = u
	return nil
}

// GetUserByUUID returns the user, or (nil, nil) if the uuid is unknown.
func (m *MemoryBackend) GetUserByUUID(ctx context.Context, uuid string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[uuid]
	if !ok {
		return nil, nil
	}
	cp := cloneUser(u)
	return &cp, nil
}

// Users returns all stored users ordered by id.
func (m *MemoryBackend) Users(ctx context.Context) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, cloneUser(u))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// BucketsForOwner returns stats for buckets matching the selector.
func (m *MemoryBackend) BucketsForOwner(ctx context.Context, sel models.OwnerSelector) (map[string]models.BucketStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	windowStart := m.opts.StatsWindowStart
	windowEnd := time.Now().UTC()

	stats := make(map[string]models.BucketStats)
	for hashKey, b := range m.buckets {
		switch {
		case sel.All:
		case sel.OwnerID != nil:
			if b.meta.OwnerID == nil || *b.meta.OwnerID != *sel.OwnerID {
				continue
			}
		default:
			if b.meta.OwnerID != nil {
				continue
			}
		}

		var count int64
		for _, e := range b.events {
			if !e.Timestamp.Before(windowStart) && !e.Timestamp.After(windowEnd) {
				count++
			}
		}

		stats[hashKey] = models.BucketStats{
			BucketMetadata: cloneBucketMeta(b.meta),
			EventsCount:    count,
			EstimatedSize:  count * m.opts.EstimatedBytesPerEvent,
		}
	}
	return stats, nil
}

// Close releases nothing; the backend is memory only.
func (m *MemoryBackend) Close() error {
	return nil
}

// eventOverlaps reports whether the event's interval intersects [start, end].
// Nil bounds are unbounded.
func eventOverlaps(e models.Event, start, end *time.Time) bool {
	if end != nil && e.Timestamp.After(*end) {
		return false
	}
	if start != nil && e.End().Before(*start) {
		return false
	}
	return true
}

func cloneEvent(e models.Event) models.Event {
	e.Data = codec.CloneDocument(e.Data)
	return e
}

func cloneBucketMeta(meta models.BucketMetadata) models.BucketMetadata {
	if meta.Name != nil {
		name := *meta.Name
		meta.Name = &name
	}
	if meta.OwnerID != nil {
		owner := *meta.OwnerID
		meta.OwnerID = &owner
	}
	meta.Data = codec.CloneDocument(meta.Data)
	return meta
}

func cloneUser(u models.User) models.User {
	u.Data = codec.CloneDocument(u.Data)
	return u
}
