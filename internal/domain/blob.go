package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobChecker confirms objects exist in object storage.
type BlobChecker interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver moves old delivery records from the database to cold storage.
type Archiver interface {
	ArchiveDeliveries(ctx context.Context, before time.Time) (int64, error)
}
