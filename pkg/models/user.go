package models

import "time"

// User is the optional multi-tenancy unit a bucket may belong to.
type User struct {
	// ID is assigned by the backend on create.
	ID int64 `json:"id"`

	// Username is a display name; it carries no uniqueness guarantee.
	Username string `json:"username"`

	// UUID is the stable external identifier, unique across users.
	UUID string `json:"uuid"`

	// Created is the UTC instant the user was created.
	Created time.Time `json:"created"`

	// Data is the opaque user document.
	Data map[string]any `json:"data"`
}

// UserUpdate is a sparse patch over a user record; nil fields are left
// unchanged.
type UserUpdate struct {
	Username *string

	// Data replaces the stored user document when non-nil.
	Data map[string]any
}
