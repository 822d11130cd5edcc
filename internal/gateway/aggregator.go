package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/openleague/gateway/internal/remote"
	"github.com/openleague/gateway/internal/search"
)

// MetaResult is the merged outcome of a meta-search: local tournaments plus
// the remote team and match categories. Remote items pass through as the
// downstream emitted them, re-sorted by their own relevance.
type MetaResult struct {
	Query       string            `json:"query"`
	Tournaments []search.Result   `json:"tournaments"`
	Teams       []json.RawMessage `json:"teams"`
	Matches     []json.RawMessage `json:"matches"`
	Total       int               `json:"total"`
}

type remotePayload struct {
	Results []json.RawMessage `json:"results"`
}

// Aggregator fans one query out to the local ranker and the remote domain
// services. Every branch runs concurrently under its own timeout and a
// failed branch contributes an empty category, never a failed request.
type Aggregator struct {
	ranker  *search.Ranker
	teams   *remote.Client
	matches *remote.Client
	logger  *slog.Logger
}

func NewAggregator(ranker *search.Ranker, teams, matches *remote.Client, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		ranker:  ranker,
		teams:   teams,
		matches: matches,
		logger:  logger.With(slog.String("component", "meta_search")),
	}
}

// SearchAll runs the fan-out. The only error it can return is a local
// ranker failure on the primary category; remote branches degrade to empty.
func (a *Aggregator) SearchAll(ctx context.Context, query string) (MetaResult, error) {
	result := MetaResult{
		Query:       search.Sanitize(query),
		Tournaments: []search.Result{},
		Teams:       []json.RawMessage{},
		Matches:     []json.RawMessage{},
	}

	var (
		rankErr error
		group   errgroup.Group
	)
	group.Go(func() error {
		hits, _, err := a.ranker.Search(ctx, query)
		if err != nil {
			rankErr = err
			return nil
		}
		if hits != nil {
			result.Tournaments = hits
		}
		return nil
	})
	group.Go(func() error {
		result.Teams = a.fetchCategory(ctx, a.teams, result.Query)
		return nil
	})
	group.Go(func() error {
		result.Matches = a.fetchCategory(ctx, a.matches, result.Query)
		return nil
	})
	_ = group.Wait()

	if rankErr != nil {
		return MetaResult{}, rankErr
	}
	result.Total = len(result.Tournaments) + len(result.Teams) + len(result.Matches)
	return result, nil
}

// fetchCategory calls one downstream and normalizes every failure mode to
// an empty slice. Items come back re-sorted by their relevance field so a
// downstream's ordering quirks never leak into the merged response.
func (a *Aggregator) fetchCategory(ctx context.Context, client *remote.Client, query string) []json.RawMessage {
	if client == nil || query == "" {
		return []json.RawMessage{}
	}

	call := client.Call(ctx, "/search", map[string]string{"q": query})
	if !call.OK {
		a.logger.Info("search category degraded to empty",
			slog.String("service", client.Name()),
			slog.Bool("unavailable", call.Unavailable))
		return []json.RawMessage{}
	}

	var payload remotePayload
	if err := json.Unmarshal(call.Data, &payload); err != nil {
		a.logger.Warn("search category payload not decodable",
			slog.String("service", client.Name()),
			slog.Any("error", err))
		return []json.RawMessage{}
	}
	if payload.Results == nil {
		return []json.RawMessage{}
	}

	sortByRelevance(payload.Results)
	return payload.Results
}

func sortByRelevance(items []json.RawMessage) {
	type scored struct {
		item  json.RawMessage
		score float64
	}
	ranked := make([]scored, len(items))
	for i, item := range items {
		var probe struct {
			Relevance float64 `json:"relevance"`
		}
		if err := json.Unmarshal(item, &probe); err == nil {
			ranked[i].score = probe.Relevance
		}
		ranked[i].item = item
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	for i := range ranked {
		items[i] = ranked[i].item
	}
}
