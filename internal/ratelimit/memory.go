package ratelimit

import (
	"context"
	"sync"
	"time"
)

type windowCounter struct {
	windowStart time.Time
	count       int64
	window      time.Duration
}

type memoryStore struct {
	mu      sync.Mutex
	windows map[string]*windowCounter
}

// NewMemoryStore builds the in-process counter store used when no shared
// Valkey instance is configured. Windows are aligned to fixed boundaries so
// every gateway worker agrees on when a window resets.
func NewMemoryStore() CounterStore {
	return &memoryStore{windows: make(map[string]*windowCounter)}
}

func (s *memoryStore) Incr(_ context.Context, identity string, window time.Duration) (int64, time.Time, error) {
	if window <= 0 {
		window = time.Second
	}
	now := time.Now()
	windowStart := now.Truncate(window)

	s.mu.Lock()
	defer s.mu.Unlock()
	counter := s.windows[identity]
	if counter == nil || !counter.windowStart.Equal(windowStart) {
		counter = &windowCounter{windowStart: windowStart, window: window}
		s.windows[identity] = counter
	}
	counter.count++
	return counter.count, windowStart.Add(window), nil
}

func (s *memoryStore) Peek(_ context.Context, identity string) (int64, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	counter := s.windows[identity]
	if counter == nil {
		return 0, nil
	}
	if !counter.windowStart.Equal(now.Truncate(counter.window)) {
		delete(s.windows, identity)
		return 0, nil
	}
	return counter.count, nil
}

func (s *memoryStore) Close(context.Context) error {
	return nil
}
