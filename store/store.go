// Package store persists session state. The SQLite implementation keeps a
// key-value table for snapshots and an append-only log of turns per
// session.
package store

import "context"

// Store is a key-value store with an append-only log per session.
type Store interface {
	// Put stores a value under a key, replacing any existing value.
	Put(ctx context.Context, key string, value []byte) error
	// Get returns the value for a key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Append adds an entry to a session's log.
	Append(ctx context.Context, sessionID string, entry []byte) error
	// ReadLog returns a session's log entries in append order.
	ReadLog(ctx context.Context, sessionID string) ([][]byte, error)

	Close() error
}
