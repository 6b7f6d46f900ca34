// Package store provides the ephemeral key-value storage used for
// in-flight WebAuthn ceremonies and pending TOTP enrollments. The
// interface is injected so the session core is testable without
// external services and so multi-instance deployments can share state
// through Redis instead of process memory.
package store

import (
	"context"
	"time"
)

// Store is a TTL-bounded key-value store for short-lived auth state.
type Store interface {
	// Set stores a value under key for at most ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns the value for key when present and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Take atomically removes and returns the value for key. Two
	// concurrent callers can never both receive the same value.
	Take(ctx context.Context, key string) ([]byte, bool, error)
	// Delete removes key.
	Delete(ctx context.Context, key string) error
}
