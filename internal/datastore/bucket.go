package datastore

import (
	"context"
	"time"

	apperrors "github.com/GFPc/GFPS-AW-Server/internal/errors"
	"github.com/GFPc/GFPS-AW-Server/pkg/models"
)

// Bucket is a live handle to one stored bucket. Handles are created by the
// registry only after the bucket is known to exist.
type Bucket struct {
	ds      *Datastore
	hashKey string
}

// HashKey returns the bucket's identity hash.
func (b *Bucket) HashKey() string {
	return b.hashKey
}

// Metadata returns the bucket's current persisted fields.
func (b *Bucket) Metadata(ctx context.Context) (models.BucketMetadata, error) {
	return b.ds.backend.Metadata(ctx, b.hashKey)
}

// Get returns events intersecting [start, end], newest first, at most
// limit of them. A nil bound is unbounded on that side; a negative limit
// is unbounded; limit 0 returns an empty slice without touching the
// backend.
//
// Query bounds are normalized to millisecond resolution before the
// backend sees them: start is truncated down, end is advanced to the next
// millisecond boundary so events ending exactly at a truncated end are
// not missed. Returned events are clipped to the normalized window; the
// stored intervals stay untouched.
func (b *Bucket) Get(ctx context.Context, limit int, start, end *time.Time) ([]models.Event, error) {
	if limit == 0 {
		return []models.Event{}, nil
	}

	if start != nil {
		s := floorToMillisecond(*start)
		start = &s
	}
	if end != nil {
		e := ceilToMillisecond(*end)
		end = &e
	}

	events, err := b.ds.backend.GetEvents(ctx, b.hashKey, limit, start, end)
	if err != nil {
		return nil, err
	}

	for i := range events {
		clipEvent(&events[i], start, end)
	}
	return events, nil
}

// GetByID returns one event by its id. Returns NoSuchEvent if the bucket
// has no event with that id.
func (b *Bucket) GetByID(ctx context.Context, eventID int64) (models.Event, error) {
	e, err := b.ds.backend.GetEvent(ctx, b.hashKey, eventID)
	if err != nil {
		return models.Event{}, err
	}
	if e == nil {
		return models.Event{}, apperrors.NoSuchEvent(b.hashKey, eventID)
	}
	return *e, nil
}

// Count counts events intersecting [start, end]. The bounds are passed to
// the backend as given, without the rounding or clipping Get applies.
func (b *Bucket) Count(ctx context.Context, start, end *time.Time) (int64, error) {
	return b.ds.backend.EventCount(ctx, b.hashKey, start, end)
}

// Insert stores one event and returns it with its assigned id. An event
// that already carries an id overwrites any stored event under that id.
func (b *Bucket) Insert(ctx context.Context, event models.Event) (models.Event, error) {
	if err := validateEvent(event); err != nil {
		return models.Event{}, err
	}
	b.warnIfFuture(event)
	return b.ds.backend.InsertOne(ctx, b.hashKey, event)
}

// InsertMany stores a batch of events. Events carrying an id are applied
// one at a time as upserts; id-less events are grouped into chunks of the
// configured size and inserted sequentially. A mid-batch failure surfaces
// as an error; chunks already applied stay applied.
func (b *Bucket) InsertMany(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}

	for _, e := range events {
		if err := validateEvent(e); err != nil {
			return err
		}
	}
	for _, e := range events {
		b.warnIfFuture(e)
	}

	fresh := make([]models.Event, 0, len(events))
	for _, e := range events {
		if e.ID != 0 {
			if _, err := b.ds.backend.InsertOne(ctx, b.hashKey, e); err != nil {
				return err
			}
			continue
		}
		fresh = append(fresh, e)
	}

	for start := 0; start < len(fresh); start += b.ds.chunkSize {
		end := start + b.ds.chunkSize
		if end > len(fresh) {
			end = len(fresh)
		}
		if err := b.ds.backend.InsertMany(ctx, b.hashKey, fresh[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes one event and reports whether anything was deleted.
// Deleting an absent id is not an error.
func (b *Bucket) Delete(ctx context.Context, eventID int64) (bool, error) {
	return b.ds.backend.DeleteEvent(ctx, b.hashKey, eventID)
}

// Replace overwrites timestamp, duration, and data of an existing event.
// Returns NoSuchEvent if the id is absent.
func (b *Bucket) Replace(ctx context.Context, eventID int64, event models.Event) error {
	if err := validateEvent(event); err != nil {
		return err
	}
	return b.ds.backend.Replace(ctx, b.hashKey, eventID, event)
}

// ReplaceLast overwrites the chronologically last event in the bucket.
// Returns EmptyBucket if the bucket has no events.
func (b *Bucket) ReplaceLast(ctx context.Context, event models.Event) error {
	if err := validateEvent(event); err != nil {
		return err
	}
	return b.ds.backend.ReplaceLast(ctx, b.hashKey, event)
}

// warnIfFuture logs a warning for events ending after the current instant.
// The event is stored regardless; the log flags clock skew or
// mis-specified durations without blocking ingestion.
func (b *Bucket) warnIfFuture(e models.Event) {
	now := time.Now().UTC()
	if e.End().After(now) {
		b.ds.logger.Warn("event ends in the future",
			"hash_key", b.hashKey,
			"ends_at", e.End().UTC(),
			"now", now)
	}
}

// validateEvent rejects events no backend should see.
func validateEvent(e models.Event) error {
	if e.Timestamp.IsZero() {
		return apperrors.InvalidArgument("event timestamp is required")
	}
	if e.Duration < 0 {
		return apperrors.InvalidArgument("event duration must be non-negative")
	}
	return nil
}

// floorToMillisecond drops sub-millisecond precision.
func floorToMillisecond(t time.Time) time.Time {
	return t.Truncate(time.Millisecond)
}

// ceilToMillisecond truncates to the millisecond and then advances by
// exactly one millisecond, always, carrying into seconds as needed.
func ceilToMillisecond(t time.Time) time.Time {
	return t.Truncate(time.Millisecond).Add(time.Millisecond)
}

// clipEvent trims the event's reported interval to [start, end]. Events
// come from an overlap query, so the clipped duration is never negative.
func clipEvent(e *models.Event, start, end *time.Time) {
	if start != nil && e.Timestamp.Before(*start) {
		origEnd := e.End()
		e.Timestamp = *start
		e.Duration = origEnd.Sub(*start)
	}
	if end != nil && e.End().After(*end) {
		e.Duration = end.Sub(e.Timestamp)
	}
}
