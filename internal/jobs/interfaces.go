package jobs

import (
	"context"
	"time"
)

// Store persists canonical job records keyed by ID with a unique signature.
type Store interface {
	// FindBySignature returns ErrNotFound when no record carries sig.
	FindBySignature(ctx context.Context, sig string) (Record, error)
	Get(ctx context.Context, id string) (Record, error)
	// Insert returns ErrDuplicate when the signature already exists.
	Insert(ctx context.Context, rec Record) error
	// Update replaces the mutable fields of the record with rec's signature.
	Update(ctx context.Context, rec Record) error
	List(ctx context.Context, q Query) ([]Record, error)
	EnsureIndexes(ctx context.Context) error
	Close(ctx context.Context) error
}

// RunStore persists ingest run metadata.
type RunStore interface {
	CreateRun(ctx context.Context, run Run) error
	UpdateRun(ctx context.Context, runID string, status RunStatus, errText string, counts map[Source]SourceCount) error
	GetRun(ctx context.Context, runID string) (Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]Run, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Fetcher performs a single HTTP exchange with a source API.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Queue provides enqueue/dequeue semantics for ingest runs.
type Queue interface {
	Enqueue(ctx context.Context, req RunRequest) error
	Dequeue(ctx context.Context) (RunRequest, error)
}

// Limiter throttles outbound calls per host.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Hasher computes digests for archive naming.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record and run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
