// Package state holds short-lived per-user records behind a TTL-capable
// key-value store.
package state

import (
	"context"
	"time"
)

// Store is a key-value store whose entries expire after a TTL.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Take returns and removes the entry in one step.
	Take(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Close() error
}
