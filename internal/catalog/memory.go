package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// Snapshot is one immutable view of the catalog. Reloads swap the whole
// snapshot so readers never observe a half-applied fixture.
type Snapshot struct {
	Tournaments []Tournament
	Sports      []Sport
	Venues      []Venue
}

// IndexMatch is a structured-index hit with its relevance in [0,1].
type IndexMatch struct {
	Tournament Tournament
	Relevance  float64
}

// Index is the structured text-match capability a catalog may advertise.
// The search ranker treats its absence as "use the substring fallback".
type Index interface {
	SearchTournaments(ctx context.Context, query string) ([]IndexMatch, error)
}

type posting struct {
	position int
}

// Memory serves reads from an in-process snapshot and maintains a token
// index over tournament and sport names for the structured search tier.
type Memory struct {
	mu    sync.RWMutex
	snap  Snapshot
	index map[string][]posting
}

// NewMemory builds a reader over the given snapshot.
func NewMemory(snap Snapshot) *Memory {
	m := &Memory{}
	m.Replace(snap)
	return m
}

// Replace atomically swaps the snapshot and rebuilds the token index.
func (m *Memory) Replace(snap Snapshot) {
	index := make(map[string][]posting)
	for i, t := range snap.Tournaments {
		seen := make(map[string]struct{})
		for _, token := range Tokenize(t.Name + " " + t.SportName) {
			if _, dup := seen[token]; dup {
				continue
			}
			seen[token] = struct{}{}
			index[token] = append(index[token], posting{position: i})
		}
	}

	m.mu.Lock()
	m.snap = snap
	m.index = index
	m.mu.Unlock()
}

// Size reports the number of tournaments in the current snapshot.
func (m *Memory) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snap.Tournaments)
}

func (m *Memory) ListTournaments(_ context.Context, filter TournamentFilter) (TournamentPage, error) {
	m.mu.RLock()
	snap := m.snap
	m.mu.RUnlock()

	matched := make([]Tournament, 0, len(snap.Tournaments))
	for _, t := range snap.Tournaments {
		if filter.Matches(t) {
			matched = append(matched, t)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].StartDate.Equal(matched[j].StartDate) {
			return matched[i].StartDate.Before(matched[j].StartDate)
		}
		return matched[i].ID < matched[j].ID
	})

	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}

	start := (page - 1) * perPage
	if start > len(matched) {
		start = len(matched)
	}
	end := start + perPage
	if end > len(matched) {
		end = len(matched)
	}

	return TournamentPage{
		Items:   append([]Tournament(nil), matched[start:end]...),
		Total:   len(matched),
		Page:    page,
		PerPage: perPage,
	}, nil
}

func (m *Memory) GetTournament(_ context.Context, id int64) (Tournament, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.snap.Tournaments {
		if t.ID == id {
			return t, true, nil
		}
	}
	return Tournament{}, false, nil
}

func (m *Memory) ListSports(_ context.Context) ([]Sport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Sport(nil), m.snap.Sports...), nil
}

func (m *Memory) ListVenues(_ context.Context) ([]Venue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Venue(nil), m.snap.Venues...), nil
}

func (m *Memory) GetVenue(_ context.Context, id int64) (Venue, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, v := range m.snap.Venues {
		if v.ID == id {
			return v, true, nil
		}
	}
	return Venue{}, false, nil
}

// Tournaments exposes the full snapshot for the substring fallback tier.
func (m *Memory) Tournaments(_ context.Context) ([]Tournament, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Tournament(nil), m.snap.Tournaments...), nil
}

// SearchTournaments is the structured tier: it resolves each query token
// against the inverted index and scores candidates by the fraction of
// tokens they match. Results keep snapshot order so ties stay stable.
func (m *Memory) SearchTournaments(_ context.Context, query string) ([]IndexMatch, error) {
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	m.mu.RLock()
	snap := m.snap
	index := m.index
	m.mu.RUnlock()

	hits := make(map[int]int)
	for _, token := range tokens {
		for _, p := range index[token] {
			hits[p.position]++
		}
	}
	if len(hits) == 0 {
		return nil, nil
	}

	positions := make([]int, 0, len(hits))
	for pos := range hits {
		positions = append(positions, pos)
	}
	sort.Ints(positions)

	matches := make([]IndexMatch, 0, len(positions))
	for _, pos := range positions {
		matches = append(matches, IndexMatch{
			Tournament: snap.Tournaments[pos],
			Relevance:  float64(hits[pos]) / float64(len(tokens)),
		})
	}
	return matches, nil
}

// Tokenize splits text into lowercase alphanumeric words.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	out := fields[:0]
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
