package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type failingStore struct{}

func (failingStore) Lookup(context.Context, string) (Entry, bool, error) {
	return Entry{}, false, errors.New("connection refused")
}

func (failingStore) Store(context.Context, string, Entry) error {
	return errors.New("connection refused")
}

func (failingStore) Delete(context.Context, string) error { return errors.New("connection refused") }
func (failingStore) Close(context.Context) error          { return nil }

type plainStore struct {
	inner TaggedStore
}

func (s plainStore) Lookup(ctx context.Context, key string) (Entry, bool, error) {
	return s.inner.Lookup(ctx, key)
}
func (s plainStore) Store(ctx context.Context, key string, entry Entry) error {
	return s.inner.Store(ctx, key, entry)
}
func (s plainStore) Delete(ctx context.Context, key string) error { return s.inner.Delete(ctx, key) }
func (s plainStore) Close(ctx context.Context) error              { return s.inner.Close(ctx) }

func TestRememberInvokesProducerOnce(t *testing.T) {
	o := NewOrchestrator(NewMemory(), nil, nil)
	ctx := context.Background()

	var calls int
	produce := func(context.Context) (any, error) {
		calls++
		return map[string]string{"name": "World Cup 2026"}, nil
	}

	first, err := o.Remember(ctx, "tournaments", "tournaments:detail:1", time.Minute, []string{"tournaments"}, produce)
	if err != nil {
		t.Fatalf("remember: %v", err)
	}
	if first.FromCache {
		t.Fatalf("first call must miss")
	}

	second, err := o.Remember(ctx, "tournaments", "tournaments:detail:1", time.Minute, []string{"tournaments"}, produce)
	if err != nil {
		t.Fatalf("remember again: %v", err)
	}
	if !second.FromCache {
		t.Fatalf("second call must hit")
	}
	if calls != 1 {
		t.Fatalf("expected one producer call, got %d", calls)
	}

	var decoded map[string]string
	if err := json.Unmarshal(second.Payload, &decoded); err != nil {
		t.Fatalf("decode cached payload: %v", err)
	}
	if decoded["name"] != "World Cup 2026" {
		t.Fatalf("unexpected payload: %v", decoded)
	}
}

func TestRememberAfterTagInvalidation(t *testing.T) {
	o := NewOrchestrator(NewMemory(), nil, nil)
	ctx := context.Background()

	var calls int
	produce := func(context.Context) (any, error) {
		calls++
		return calls, nil
	}

	if _, err := o.Remember(ctx, "tournaments", "tournaments:list", time.Minute, []string{"tournaments"}, produce); err != nil {
		t.Fatalf("remember: %v", err)
	}
	if !o.InvalidateByTags(ctx, []string{"tournaments"}) {
		t.Fatalf("expected tagged backend to invalidate")
	}
	result, err := o.Remember(ctx, "tournaments", "tournaments:list", time.Minute, []string{"tournaments"}, produce)
	if err != nil {
		t.Fatalf("remember after invalidate: %v", err)
	}
	if result.FromCache {
		t.Fatalf("expected recomputation after invalidation")
	}
	if calls != 2 {
		t.Fatalf("expected producer to run again, got %d calls", calls)
	}
}

func TestRememberSurvivesFailingStore(t *testing.T) {
	o := NewOrchestrator(failingStore{}, nil, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := o.Remember(ctx, "sports", "sports:list", time.Minute, nil, func(context.Context) (any, error) {
			return []string{"football"}, nil
		})
		if err != nil {
			t.Fatalf("remember with broken store: %v", err)
		}
		if result.FromCache {
			t.Fatalf("broken store can never produce a hit")
		}
		if string(result.Payload) != `["football"]` {
			t.Fatalf("unexpected payload: %s", result.Payload)
		}
	}
}

func TestRememberPropagatesProducerError(t *testing.T) {
	o := NewOrchestrator(NewMemory(), nil, nil)
	wantErr := errors.New("catalog offline")

	_, err := o.Remember(context.Background(), "venues", "venues:list", time.Minute, nil, func(context.Context) (any, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected producer error, got %v", err)
	}

	// A failed production must not poison the key.
	result, err := o.Remember(context.Background(), "venues", "venues:list", time.Minute, nil, func(context.Context) (any, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("remember after failure: %v", err)
	}
	if result.FromCache {
		t.Fatalf("error results must never be cached")
	}
}

func TestRememberValidatesArguments(t *testing.T) {
	o := NewOrchestrator(NewMemory(), nil, nil)
	ctx := context.Background()

	if _, err := o.Remember(ctx, "x", "", time.Minute, nil, func(context.Context) (any, error) { return 1, nil }); err == nil {
		t.Fatalf("expected empty key to be rejected")
	}
	if _, err := o.Remember(ctx, "x", "k", 0, nil, func(context.Context) (any, error) { return 1, nil }); err == nil {
		t.Fatalf("expected non-positive ttl to be rejected")
	}
	if _, err := o.Remember(ctx, "x", "k", time.Minute, nil, nil); err == nil {
		t.Fatalf("expected nil producer to be rejected")
	}
}

func TestInvalidateByTagsOnPlainStore(t *testing.T) {
	o := NewOrchestrator(plainStore{inner: NewMemory()}, nil, nil)
	ctx := context.Background()

	result, err := o.Remember(ctx, "tournaments", "tournaments:list", time.Minute, []string{"tournaments"}, func(context.Context) (any, error) {
		return 1, nil
	})
	if err != nil {
		t.Fatalf("remember: %v", err)
	}
	if result.FromCache {
		t.Fatalf("first call must miss")
	}

	// Tags are a no-op on plain stores: invalidation reports false and the
	// entry stays until TTL expiry.
	if o.InvalidateByTags(ctx, []string{"tournaments"}) {
		t.Fatalf("plain store must report unsupported invalidation")
	}
	result, err = o.Remember(ctx, "tournaments", "tournaments:list", time.Minute, []string{"tournaments"}, func(context.Context) (any, error) {
		return 2, nil
	})
	if err != nil {
		t.Fatalf("remember after no-op invalidate: %v", err)
	}
	if !result.FromCache {
		t.Fatalf("entry must survive unsupported invalidation")
	}
}

func TestRememberCollapsesConcurrentMisses(t *testing.T) {
	o := NewOrchestrator(NewMemory(), nil, nil)
	ctx := context.Background()

	var produced atomic.Int64
	release := make(chan struct{})
	produce := func(context.Context) (any, error) {
		produced.Add(1)
		<-release
		return "shared", nil
	}

	var wg sync.WaitGroup
	results := make([]Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := o.Remember(ctx, "search", "search:q", time.Minute, nil, produce)
			if err != nil {
				t.Errorf("remember: %v", err)
				return
			}
			results[i] = r
		}(i)
	}

	// Give every goroutine a chance to queue behind the flight.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := produced.Load(); got != 1 {
		t.Fatalf("expected a single shared production, got %d", got)
	}
	for i, r := range results {
		if string(r.Payload) != `"shared"` {
			t.Fatalf("result %d has payload %s", i, r.Payload)
		}
	}
}
