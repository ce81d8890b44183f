package cachestore

import "context"

// Store defines the durable backing for cache entries. Implementations must
// be safe for concurrent use. Errors surfaced here are absorbed by the
// Manager; callers above the Manager never see them.
type Store interface {
	// Put upserts an entry keyed by its session id.
	Put(ctx context.Context, entry *Entry) error

	// Get retrieves an entry by session id. Returns ErrNotFound if absent.
	Get(ctx context.Context, sessionID string) (*Entry, error)

	// List returns all entries for the given client.
	List(ctx context.Context, clientID string) ([]*Entry, error)

	// Delete removes an entry. Returns ErrNotFound if absent.
	Delete(ctx context.Context, sessionID string) error

	// Ping probes store availability.
	Ping(ctx context.Context) error
}
