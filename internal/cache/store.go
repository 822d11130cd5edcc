package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Entry is the unit stored by every cache backend: an opaque serialized
// payload plus the tags it was written under and its lifetime bounds.
type Entry struct {
	Payload   json.RawMessage `json:"payload"`
	Tags      []string        `json:"tags,omitempty"`
	StoredAt  time.Time       `json:"storedAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// Store is the minimal surface the orchestrator needs from a cache backend.
// Implementations must be safe for concurrent use and must tolerate other
// gateway instances writing the same keys.
type Store interface {
	Lookup(ctx context.Context, key string) (Entry, bool, error)
	Store(ctx context.Context, key string, entry Entry) error
	Delete(ctx context.Context, key string) error
	Close(ctx context.Context) error
}

// TaggedStore is implemented by backends that can bulk-invalidate every
// entry carrying a tag. The orchestrator decides at construction time
// whether its backend supports tags; there is no per-call capability probe.
type TaggedStore interface {
	Store
	InvalidateTags(ctx context.Context, tags []string) (int64, error)
}
