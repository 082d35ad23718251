package userstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no user exists for the given id.
var ErrNotFound = errors.New("userstore: user not found")

// Store is the read-only document store contract consumed by the matching
// engine.
type Store interface {
	// GetByID fetches one user by external id, with credential fields
	// excluded. Returns ErrNotFound for unknown or malformed ids.
	GetByID(ctx context.Context, id string) (*User, error)

	// ListProfiles returns all users with only the profile fields needed
	// for embedding, in a stable store-defined order.
	ListProfiles(ctx context.Context) ([]User, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close(ctx context.Context) error
}
