package cache

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	tags    map[string]map[string]struct{}
}

// NewMemory builds the in-process tagged store used when no shared Valkey
// instance is configured. Expired entries are collected lazily on lookup.
func NewMemory() TaggedStore {
	return &memoryStore{
		entries: make(map[string]Entry),
		tags:    make(map[string]map[string]struct{}),
	}
}

func (s *memoryStore) Lookup(_ context.Context, key string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	if time.Now().After(entry.ExpiresAt) {
		s.evict(key, entry)
		return Entry{}, false, nil
	}
	return cloneEntry(entry), true, nil
}

func (s *memoryStore) Store(_ context.Context, key string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now().UTC()
	}
	if previous, ok := s.entries[key]; ok {
		s.dropTagMemberships(key, previous)
	}
	s.entries[key] = cloneEntry(entry)
	for _, tag := range entry.Tags {
		members, ok := s.tags[tag]
		if !ok {
			members = make(map[string]struct{})
			s.tags[tag] = members
		}
		members[key] = struct{}{}
	}
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[key]; ok {
		s.evict(key, entry)
	}
	return nil
}

func (s *memoryStore) InvalidateTags(_ context.Context, tags []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for _, tag := range tags {
		members, ok := s.tags[tag]
		if !ok {
			continue
		}
		for key := range members {
			if entry, ok := s.entries[key]; ok {
				s.evict(key, entry)
				removed++
			}
		}
		delete(s.tags, tag)
	}
	return removed, nil
}

func (s *memoryStore) Close(_ context.Context) error {
	return nil
}

// evict removes the entry and its tag memberships. Callers hold the lock.
func (s *memoryStore) evict(key string, entry Entry) {
	delete(s.entries, key)
	s.dropTagMemberships(key, entry)
}

func (s *memoryStore) dropTagMemberships(key string, entry Entry) {
	for _, tag := range entry.Tags {
		members, ok := s.tags[tag]
		if !ok {
			continue
		}
		delete(members, key)
		if len(members) == 0 {
			delete(s.tags, tag)
		}
	}
}

func cloneEntry(in Entry) Entry {
	out := Entry{
		StoredAt:  in.StoredAt,
		ExpiresAt: in.ExpiresAt,
	}
	if len(in.Payload) > 0 {
		out.Payload = append(out.Payload[:0:0], in.Payload...)
	}
	if len(in.Tags) > 0 {
		out.Tags = append(out.Tags[:0:0], in.Tags...)
	}
	return out
}
