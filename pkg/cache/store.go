package cache

import (
	"context"
	"time"
)

// Entry is the persisted state for one fingerprint.
type Entry struct {
	Key            string
	QueryText      string
	SerializedRows *string
	LastUpdated    *time.Time
	UseCount       int
}

// Store persists cache entries. Implementations must make IncrementCapped and SaveResult
// single atomic operations with respect to concurrent callers on the same key.
type Store interface {
	// Load returns the entry for key, or nil when there is none.
	Load(ctx context.Context, key string) (*Entry, error)

	// IncrementCapped creates the entry with a count of 1 when absent, otherwise raises its
	// count by one without exceeding limit. It returns the count after the update.
	IncrementCapped(ctx context.Context, key, queryText string, limit int) (int, error)

	// SaveResult stores rows and timestamp and pins the count at limit.
	SaveResult(ctx context.Context, key, queryText string, rows []byte, at time.Time, limit int) error
}
