package cache

import (
	"io"
	"time"
)

// KV defines the cache contract shared by Store and the daemon Client.
// Get and GetTTL return ErrNotFound for missing and expired keys.
// Implementations must be safe for concurrent use by multiple goroutines.
type KV interface {
	Get(key string) ([]byte, error)
	GetTTL(key string, ttl time.Duration) ([]byte, error)
	Put(key string, r io.Reader) error
}

var (
	_ KV = (*Store)(nil)
	_ KV = (*Client)(nil)
)
