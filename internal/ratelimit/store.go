package ratelimit

import (
	"context"
	"time"
)

// CounterStore maintains expiring per-identity counters. Implementations
// must be safe for concurrent use and must tolerate other gateway instances
// incrementing the same identities.
type CounterStore interface {
	// Incr bumps the counter for identity inside the current fixed window
	// and reports the count after the increment together with the moment
	// the window resets.
	Incr(ctx context.Context, identity string, window time.Duration) (int64, time.Time, error)
	// Peek reports the current count without incrementing. Identities with
	// no live window report zero.
	Peek(ctx context.Context, identity string) (int64, error)
	Close(ctx context.Context) error
}
