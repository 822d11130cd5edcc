package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/openleague/gateway/internal/metrics"
)

// Result carries a cached or freshly produced payload back to the caller
// along with the provenance the response envelope reports.
type Result struct {
	Payload   json.RawMessage
	FromCache bool
	ExpiresAt time.Time
}

// Producer computes the value for a cache miss.
type Producer func(ctx context.Context) (any, error)

// Orchestrator wraps expensive reads with read-through caching, tag
// registration, and graceful degradation. The cache is an optimization,
// never a correctness dependency: every store failure is logged and the
// producer runs directly.
type Orchestrator struct {
	store   Store
	tagged  TaggedStore
	group   singleflight.Group
	logger  *slog.Logger
	metrics *metrics.Recorder
}

// NewOrchestrator selects the backend's capability once at startup: when the
// store supports tagged invalidation the orchestrator uses it, otherwise
// tags degrade to plain key/TTL storage without erroring.
func NewOrchestrator(store Store, logger *slog.Logger, recorder *metrics.Recorder) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		store:   store,
		logger:  logger.With(slog.String("component", "cache_orchestrator")),
		metrics: recorder,
	}
	if tagged, ok := store.(TaggedStore); ok {
		o.tagged = tagged
	}
	return o
}

// Remember returns the cached payload for key when present, otherwise it
// invokes produce, stores the serialized result under key with the given
// tags and ttl, and returns it. Concurrent misses for the same key are
// collapsed into a single producer invocation.
func (o *Orchestrator) Remember(ctx context.Context, resource, key string, ttl time.Duration, tags []string, produce Producer) (Result, error) {
	if key == "" {
		return Result{}, errors.New("cache: remember requires a key")
	}
	if ttl <= 0 {
		return Result{}, fmt.Errorf("cache: remember requires a positive ttl, got %s", ttl)
	}
	if produce == nil {
		return Result{}, errors.New("cache: remember requires a producer")
	}

	if entry, ok := o.lookup(ctx, resource, key); ok {
		return Result{Payload: entry.Payload, FromCache: true, ExpiresAt: entry.ExpiresAt}, nil
	}

	value, err, _ := o.group.Do(key, func() (any, error) {
		// A concurrent leader may have stored the entry while this caller
		// queued behind the flight.
		if entry, ok := o.lookup(ctx, resource, key); ok {
			return Result{Payload: entry.Payload, FromCache: true, ExpiresAt: entry.ExpiresAt}, nil
		}

		produced, err := produce(ctx)
		if err != nil {
			return Result{}, err
		}
		payload, err := json.Marshal(produced)
		if err != nil {
			return Result{}, fmt.Errorf("cache: marshal produced value: %w", err)
		}

		now := time.Now().UTC()
		entry := Entry{
			Payload:   payload,
			StoredAt:  now,
			ExpiresAt: now.Add(ttl),
		}
		if o.tagged != nil {
			entry.Tags = append(entry.Tags[:0:0], tags...)
		}
		o.storeEntry(ctx, resource, key, entry)
		return Result{Payload: payload, FromCache: false, ExpiresAt: entry.ExpiresAt}, nil
	})
	if err != nil {
		return Result{}, err
	}
	return value.(Result), nil
}

// InvalidateByTags removes every entry carrying any of the given tags.
// It reports false, never an error, when the backend lacks tag support or
// the invalidation fails.
func (o *Orchestrator) InvalidateByTags(ctx context.Context, tags []string) bool {
	if len(tags) == 0 {
		return true
	}
	if o.tagged == nil {
		o.logger.Warn("tag invalidation unsupported by cache backend", slog.Any("tags", tags))
		return false
	}
	start := time.Now()
	removed, err := o.tagged.InvalidateTags(ctx, tags)
	if err != nil {
		o.metrics.ObserveCache("", metrics.CacheOperationInvalidate, metrics.CacheError, time.Since(start))
		o.logger.Error("tag invalidation failed", slog.Any("tags", tags), slog.Any("error", err))
		return false
	}
	o.metrics.ObserveCache("", metrics.CacheOperationInvalidate, metrics.CacheStored, time.Since(start))
	o.logger.Info("cache entries invalidated", slog.Any("tags", tags), slog.Int64("removed", removed))
	return true
}

// Close releases the underlying store.
func (o *Orchestrator) Close(ctx context.Context) error {
	return o.store.Close(ctx)
}

func (o *Orchestrator) lookup(ctx context.Context, resource, key string) (Entry, bool) {
	start := time.Now()
	entry, ok, err := o.store.Lookup(ctx, key)
	if err != nil {
		o.metrics.ObserveCache(resource, metrics.CacheOperationLookup, metrics.CacheError, time.Since(start))
		o.logger.Error("cache lookup failed, computing directly", slog.String("cache_key", key), slog.Any("error", err))
		return Entry{}, false
	}
	if !ok {
		o.metrics.ObserveCache(resource, metrics.CacheOperationLookup, metrics.CacheMiss, time.Since(start))
		return Entry{}, false
	}
	o.metrics.ObserveCache(resource, metrics.CacheOperationLookup, metrics.CacheHit, time.Since(start))
	return entry, true
}

func (o *Orchestrator) storeEntry(ctx context.Context, resource, key string, entry Entry) {
	start := time.Now()
	if err := o.store.Store(ctx, key, entry); err != nil {
		o.metrics.ObserveCache(resource, metrics.CacheOperationStore, metrics.CacheError, time.Since(start))
		o.logger.Error("cache store failed, serving uncached result", slog.String("cache_key", key), slog.Any("error", err))
		return
	}
	o.metrics.ObserveCache(resource, metrics.CacheOperationStore, metrics.CacheStored, time.Since(start))
}
