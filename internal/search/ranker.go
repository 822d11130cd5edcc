package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/openleague/gateway/internal/catalog"
)

// Result is one ranked hit. Results are produced per request and never
// persisted.
type Result struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Name      string    `json:"name"`
	SportName string    `json:"sport_name,omitempty"`
	Status    string    `json:"status,omitempty"`
	StartDate time.Time `json:"start_date,omitzero"`
	Relevance float64   `json:"relevance"`
}

// Source supplies the substring fallback tier with the full local data set.
type Source interface {
	Tournaments(ctx context.Context) ([]catalog.Tournament, error)
}

// Ranker executes a two-tier text match over local tournaments: the
// structured index when the catalog advertises one, then a case-insensitive
// substring scan. Both tiers feed the same scoring rule so ranking does not
// depend on which tier produced a candidate.
type Ranker struct {
	source     Source
	index      catalog.Index
	maxResults int
	logger     *slog.Logger
}

// NewRanker builds a ranker. index may be nil, which pins every query to
// the fallback tier.
func NewRanker(source Source, index catalog.Index, maxResults int, logger *slog.Logger) *Ranker {
	if maxResults <= 0 {
		maxResults = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ranker{
		source:     source,
		index:      index,
		maxResults: maxResults,
		logger:     logger.With(slog.String("component", "search_ranker")),
	}
}

type candidate struct {
	tournament     catalog.Tournament
	indexRelevance float64
}

// Search sanitizes the query, gathers candidates, scores them, and returns
// the ranked head of the result set plus the total match count before
// truncation.
func (r *Ranker) Search(ctx context.Context, rawQuery string) ([]Result, int, error) {
	query := Sanitize(rawQuery)
	if query == "" {
		return nil, 0, nil
	}

	candidates, err := r.structuredTier(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	if len(candidates) == 0 {
		candidates, err = r.fallbackTier(ctx, query)
		if err != nil {
			return nil, 0, err
		}
	}
	if len(candidates) == 0 {
		return nil, 0, nil
	}

	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, Result{
			ID:        c.tournament.ID,
			Type:      "tournament",
			Name:      c.tournament.Name,
			SportName: c.tournament.SportName,
			Status:    c.tournament.Status,
			StartDate: c.tournament.StartDate,
			Relevance: Score(query, c.tournament.Name, c.tournament.SportName, c.indexRelevance),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Relevance > results[j].Relevance
	})

	total := len(results)
	if total > r.maxResults {
		results = results[:r.maxResults]
	}
	return results, total, nil
}

// structuredTier consults the index when present. Index errors are not
// request errors: they signal "use the fallback".
func (r *Ranker) structuredTier(ctx context.Context, query string) ([]candidate, error) {
	if r.index == nil {
		return nil, nil
	}
	matches, err := r.index.SearchTournaments(ctx, query)
	if err != nil {
		r.logger.Warn("structured index unavailable, using fallback", slog.Any("error", err))
		return nil, nil
	}
	candidates := make([]candidate, 0, len(matches))
	for _, m := range matches {
		candidates = append(candidates, candidate{tournament: m.Tournament, indexRelevance: m.Relevance})
	}
	return candidates, nil
}

// fallbackTier scans every tournament for a literal, case-insensitive
// substring of the query in the tournament or sport name. Matching is
// literal, so wildcard characters in user input carry no meaning here.
func (r *Ranker) fallbackTier(ctx context.Context, query string) ([]candidate, error) {
	tournaments, err := r.source.Tournaments(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(query)
	var candidates []candidate
	for _, t := range tournaments {
		if strings.Contains(strings.ToLower(t.Name), needle) || strings.Contains(strings.ToLower(t.SportName), needle) {
			candidates = append(candidates, candidate{tournament: t})
		}
	}
	return candidates, nil
}

// Score applies the deterministic relevance rule, identical for both match
// tiers:
//
//	exact full-name match            +100
//	name contains the full query      +50
//	each query word found in name     +10
//	sport name contains the query     +20
//	structured-index relevance       ×10, additive
func Score(query, name, sportName string, indexRelevance float64) float64 {
	loweredQuery := strings.ToLower(query)
	loweredName := strings.ToLower(name)

	var score float64
	if loweredName == loweredQuery {
		score += 100
	}
	if strings.Contains(loweredName, loweredQuery) {
		score += 50
	}
	for _, word := range strings.Fields(loweredQuery) {
		if strings.Contains(loweredName, word) {
			score += 10
		}
	}
	if sportName != "" && strings.Contains(strings.ToLower(sportName), loweredQuery) {
		score += 20
	}
	score += indexRelevance * 10
	return score
}
