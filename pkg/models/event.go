// Package models provides the core data types of the GFPS-AW datastore:
// events, buckets, users, and the deterministic bucket identity hash.
package models

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// TimestampLayout is the wire format for event timestamps: RFC 3339 with
// millisecond precision, matching the resolution backends store.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Event is a single timestamped, duration-bearing record inside a bucket.
type Event struct {
	// ID is assigned by the backend on first persist. Zero means the
	// event has not been persisted yet.
	ID int64 `json:"id,omitempty"`

	// Timestamp is the UTC instant the event starts at. Backends
	// normalize it to millisecond resolution on store.
	Timestamp time.Time `json:"timestamp"`

	// Duration is the non-negative span the event occupies.
	Duration time.Duration `json:"duration"`

	// Data is the opaque payload document attached to the event.
	Data map[string]any `json:"data"`
}

// End returns the instant the event's occupied span ends,
// i.e. Timestamp + Duration.
func (e Event) End() time.Time {
	return e.Timestamp.Add(e.Duration)
}

// eventJSON is the serialized form of an Event: millisecond timestamps and
// duration expressed in seconds, the document format used by snapshots.
type eventJSON struct {
	ID        int64          `json:"id,omitempty"`
	Timestamp string         `json:"timestamp"`
	Duration  float64        `json:"duration"`
	Data      map[string]any `json:"data"`
}

// MarshalJSON encodes the event with a millisecond-precision UTC timestamp
// and the duration in seconds.
func (e Event) MarshalJSON() ([]byte, error) {
	data := e.Data
	if data == nil {
		data = map[string]any{}
	}
	return json.Marshal(eventJSON{
		ID:        e.ID,
		Timestamp: e.Timestamp.UTC().Format(TimestampLayout),
		Duration:  e.Duration.Seconds(),
		Data:      data,
	})
}

// UnmarshalJSON decodes an event, accepting any RFC 3339 timestamp precision.
func (e *Event) UnmarshalJSON(b []byte) error {
	var aux eventJSON
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	ts, err := time.Parse(time.RFC3339Nano, aux.Timestamp)
	if err != nil {
		return fmt.Errorf("models: failed to parse event timestamp: %w", err)
	}
	e.ID = aux.ID
	e.Timestamp = ts.UTC()
	e.Duration = time.Duration(math.Round(aux.Duration * float64(time.Second)))
	e.Data = aux.Data
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	return nil
}
