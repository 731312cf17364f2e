package models

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"time"
)

// BucketMetadata holds the persisted fields of a bucket. The hash key is the
// only storage identity; the human-chosen ID is unique per owner only.
type BucketMetadata struct {
	// HashKey is the deterministic identity hash of (ID, OwnerID),
	// computed by the backend on create and stable for the bucket's
	// lifetime.
	HashKey string `json:"hash_key"`

	// ID is the human-chosen bucket id, e.g. "aw-watcher-window_myhost".
	ID string `json:"id"`

	// Type is the free-form category of the data source.
	Type string `json:"type"`

	// Client names the program that created the bucket.
	Client string `json:"client"`

	// Hostname records where the events were observed.
	Hostname string `json:"hostname"`

	// Created is the UTC instant the bucket was created.
	Created time.Time `json:"created"`

	// Name is an optional display label.
	Name *string `json:"name"`

	// Data is the opaque bucket document, never nil after a read.
	Data map[string]any `json:"data"`

	// OwnerID references the owning User, if any.
	OwnerID *int64 `json:"owner_id"`
}

// BucketUpdate is a sparse patch: only non-nil fields are applied, so
// "leave unchanged" and "set to empty" stay distinguishable.
type BucketUpdate struct {
	Type     *string
	Client   *string
	Hostname *string
	Name     *string

	// Data replaces the stored bucket document when non-nil.
	Data map[string]any
}

// BucketStats is bucket metadata augmented with the per-owner listing
// heuristics: an event count over the configured stats window and an
// estimated byte size derived from it.
type BucketStats struct {
	BucketMetadata

	EventsCount   int64 `json:"events_count"`
	EstimatedSize int64 `json:"estimated_size"`
}

// OwnerSelector picks which buckets an owner-scoped listing covers:
// every bucket, the buckets of one user, or the unowned buckets.
type OwnerSelector struct {
	All     bool
	OwnerID *int64
}

// AllOwners selects every bucket regardless of owner.
func AllOwners() OwnerSelector {
	return OwnerSelector{All: true}
}

// OwnedBy selects the buckets owned by the given user id.
func OwnedBy(ownerID int64) OwnerSelector {
	return OwnerSelector{OwnerID: &ownerID}
}

// Unowned selects the buckets that have no owner.
func Unowned() OwnerSelector {
	return OwnerSelector{}
}

// ownerNoneTag is hashed in place of the owner id for unowned buckets.
const ownerNoneTag = "none"

// BucketHashKey computes the deterministic identity hash for a bucket:
// the MD5 hex digest of the bucket id and the owner tag joined by a
// separator. The separator keeps distinct (id, owner) pairs from ever
// concatenating to the same input.
func BucketHashKey(bucketID string, ownerID *int64) string {
	tag := ownerNoneTag
	if ownerID != nil {
		tag = strconv.FormatInt(*ownerID, 10)
	}
	sum := md5.Sum([]byte(bucketID + ":" + tag))
	return hex.EncodeToString(sum[:])
}
