package cache

import "time"

const (
	// MaxKeyLength is the longest accepted key, in bytes.
	MaxKeyLength = 1024
	// MaxBlobSize is the largest payload stored inline in the catalog.
	// Anything bigger goes to the spill store.
	MaxBlobSize = 32 * 1024
	// DefaultExpiry is used by Get when no TTL is given.
	DefaultExpiry = 86400 * time.Second
	// DefaultName is the instance name used when Options.Name is empty.
	DefaultName = "diskcachedb"
)

// placeholderSize marks a row reserved for a spill write that has not
// committed yet. Such rows are never returned as live.
const placeholderSize = -1

// Entry is one catalog row.
type Entry struct {
	ID        uint64
	Key       string
	Inline    []byte // nil iff the payload lives in the spill store
	Size      int64
	CreatedAt int64 // unix millis of the visible commit
	Version   uint64
}

// Live reports whether the row holds a committed payload.
func (e *Entry) Live() bool { return e.Size >= 0 }

// Spilled reports whether the payload is stored in a spill file.
func (e *Entry) Spilled() bool { return e.Inline == nil }

// expired reports whether the entry is at least ttl old at nowMillis, so
// a zero ttl hides every entry. A negative ttl never expires.
func (e *Entry) expired(nowMillis int64, ttl time.Duration) bool {
	if ttl < 0 {
		return false
	}
	return e.CreatedAt <= nowMillis-ttl.Milliseconds()
}
