package domain

import (
	"context"
	"time"
)

// ArchiveBucket holds month files of archived records. Objects are small
// enough to be read and replaced whole.
type ArchiveBucket interface {
	// Load returns the object at key or an error wrapping ErrNotFound.
	Load(ctx context.Context, key string) ([]byte, error)
	// Store creates or replaces the object at key.
	Store(ctx context.Context, key string, body []byte) error
}

// Archiver copies settled records to cold storage.
type Archiver interface {
	ArchivePredictions(ctx context.Context, before time.Time) (int64, error)
	ArchiveCoupons(ctx context.Context, before time.Time) (int64, error)
}
