// Copyright (c) 2025-2026 MagicFeedback SL.
// SPDX-License-Identifier: MIT

// Package storage abstracts the cross-reload persistence slot used by
// the deferred exit queue. In a browser this role is played by session
// storage; Go hosts inject whichever implementation matches their
// deployment, and tests use the in-memory store.
package storage

import (
	"context"
	"time"
)

// Store is a minimal key-value persistence capability.
// All implementations must be safe for concurrent use.
type Store interface {
	// Get retrieves a value. Returns ErrNotFound when the key is
	// absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value, replacing any existing one.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}

// Error represents an error type for store operations.
type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	// ErrNotFound indicates the key was not found or has expired.
	ErrNotFound Error = "storage: key not found"

	// ErrClosed indicates the store has been closed.
	ErrClosed Error = "storage: store closed"
)

// DefaultSessionTTL bounds how long a session-scoped entry may
// outlive its writer in stores that support expiration.
const DefaultSessionTTL = 12 * time.Hour
