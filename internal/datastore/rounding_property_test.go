package datastore

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestProperty_BoundaryRounding validates the query-window normalization
// laws: the start bound never moves forward past the instant it was given,
// the end bound always moves strictly forward, and both land on exact
// millisecond boundaries so no event is excluded by spurious precision.
func TestProperty_BoundaryRounding(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	// Nanosecond offsets spanning 2001-2033
	instants := gen.Int64Range(1_000_000_000_000, 2_000_000_000_000).
		Map(func(ms int64) time.Time { return time.UnixMilli(ms).UTC() })
	subMillis := gen.Int64Range(0, 999_999)

	properties.Property("start floors onto a millisecond boundary at most 1ms back", prop.ForAll(
		func(base time.Time, extraNanos int64) bool {
			in := base.Add(time.Duration(extraNanos))
			out := floorToMillisecond(in)
			if out.After(in) {
				return false
			}
			if in.Sub(out) >= time.Millisecond {
				return false
			}
			return out.UnixNano()%int64(time.Millisecond) == 0
		},
		instants, subMillis,
	))

	properties.Property("floor is idempotent", prop.ForAll(
		func(base time.Time, extraNanos int64) bool {
			in := base.Add(time.Duration(extraNanos))
			once := floorToMillisecond(in)
			return floorToMillisecond(once).Equal(once)
		},
		instants, subMillis,
	))

	properties.Property("end advances strictly, by at most 1ms, onto a boundary", prop.ForAll(
		func(base time.Time, extraNanos int64) bool {
			in := base.Add(time.Duration(extraNanos))
			out := ceilToMillisecond(in)
			if !out.After(in) {
				return false
			}
			if out.Sub(in) > time.Millisecond {
				return false
			}
			return out.UnixNano()%int64(time.Millisecond) == 0
		},
		instants, subMillis,
	))

	properties.Property("an end already on a boundary advances exactly 1ms", prop.ForAll(
		func(base time.Time) bool {
			return ceilToMillisecond(base).Equal(base.Add(time.Millisecond))
		},
		instants,
	))

	properties.Property("normalization never shrinks the window", prop.ForAll(
		func(base time.Time, startNanos, spanMs, endNanos int64) bool {
			start := base.Add(time.Duration(startNanos))
			end := start.Add(time.Duration(spanMs) * time.Millisecond).Add(time.Duration(endNanos))
			normStart := floorToMillisecond(start)
			normEnd := ceilToMillisecond(end)
			return !normStart.After(start) && !normEnd.Before(end)
		},
		instants, subMillis, gen.Int64Range(0, 86_400_000), subMillis,
	))

	properties.TestingRun(t)
}
