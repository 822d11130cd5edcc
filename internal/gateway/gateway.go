// Package gateway is the request-facing layer: it composes the rate
// limiter, cache orchestrator, search ranker, and meta-search aggregator
// into HTTP handlers with a uniform response envelope and CORS headers.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openleague/gateway/internal/cache"
	"github.com/openleague/gateway/internal/catalog"
	"github.com/openleague/gateway/internal/config"
	"github.com/openleague/gateway/internal/expr"
	"github.com/openleague/gateway/internal/metrics"
	"github.com/openleague/gateway/internal/ratelimit"
	"github.com/openleague/gateway/internal/remote"
	"github.com/openleague/gateway/internal/search"
)

var allowedStatuses = map[string]struct{}{
	"upcoming":  {},
	"live":      {},
	"completed": {},
	"cancelled": {},
}

// Catalog is the local read surface the gateway serves from. *catalog.Memory
// satisfies it; so would any future store-backed reader.
type Catalog interface {
	catalog.Reader
	Tournaments(ctx context.Context) ([]catalog.Tournament, error)
	Size() int
}

// Gateway holds every collaborator a handler needs. All fields are set at
// construction and never mutated, so handlers are safe for concurrent use.
type Gateway struct {
	cfg        config.Config
	logger     *slog.Logger
	metrics    *metrics.Recorder
	cache      *cache.Orchestrator
	limiter    *ratelimit.Limiter
	catalog    Catalog
	ranker     *search.Ranker
	aggregator *Aggregator
	featured   *expr.Selector
	teams      *remote.Client
	matches    *remote.Client
}

func New(cfg config.Config, logger *slog.Logger, recorder *metrics.Recorder, orchestrator *cache.Orchestrator, limiter *ratelimit.Limiter, cat Catalog, ranker *search.Ranker, aggregator *Aggregator, featured *expr.Selector, teams, matches *remote.Client) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "gateway")),
		metrics:    recorder,
		cache:      orchestrator,
		limiter:    limiter,
		catalog:    cat,
		ranker:     ranker,
		aggregator: aggregator,
		featured:   featured,
		teams:      teams,
		matches:    matches,
	}
}

// response is what a route handler hands back for envelope wrapping.
type response struct {
	message string
	result  cache.Result
}

type handlerFunc func(ctx context.Context, r *http.Request) (response, error)

// handle runs the shared request pipeline: CORS, preflight, rate limiting
// with quota headers, the route handler, and the envelope.
func (g *Gateway) handle(w http.ResponseWriter, r *http.Request, route string, fn handlerFunc) {
	start := time.Now()
	applyCORS(w.Header())

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	decision := g.limiter.Check(r.Context(), clientIP(r), route)
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	if !decision.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(decision.RetryAfter.Seconds())))
		writeError(w, rateLimitedError())
		g.metrics.ObserveRequest(route, http.StatusTooManyRequests, false, time.Since(start))
		return
	}

	resp, err := fn(r.Context(), r)
	if err != nil {
		gerr, ok := err.(*Error)
		if !ok {
			g.logger.Error("handler failed",
				slog.String("route", route),
				slog.String("client", clientIP(r)),
				slog.Any("error", err))
			gerr = internalError()
		} else if gerr.Kind == KindInternal || gerr.Kind == KindUnavailable {
			g.logger.Error("handler failed",
				slog.String("route", route),
				slog.String("client", clientIP(r)),
				slog.String("code", gerr.Code()))
		}
		writeError(w, gerr)
		g.metrics.ObserveRequest(route, gerr.Status(), false, time.Since(start))
		return
	}

	writeSuccess(w, resp.message, resp.result.Payload, resp.result.FromCache, resp.result.ExpiresAt)
	g.metrics.ObserveRequest(route, http.StatusOK, resp.result.FromCache, time.Since(start))
}

// ServeTournaments lists tournaments with optional status, sport and paging
// filters.
func (g *Gateway) ServeTournaments(w http.ResponseWriter, r *http.Request) {
	g.handle(w, r, "tournaments.list", func(ctx context.Context, r *http.Request) (response, error) {
		filter, params, err := parseListParams(r)
		if err != nil {
			return response{}, err
		}

		result, rememberErr := g.cache.Remember(ctx, "tournaments:list", cache.Key("tournaments:list", params), g.cfg.Server.Cache.TTL.List(), []string{"tournaments"}, func(ctx context.Context) (any, error) {
			return g.catalog.ListTournaments(ctx, filter)
		})
		if rememberErr != nil {
			return response{}, rememberErr
		}
		return response{message: "tournaments retrieved", result: result}, nil
	})
}

// tournamentDetail is the detail payload: the record plus counts enriched
// from the team and match services. Counts degrade to zero when a
// downstream cannot serve.
type tournamentDetail struct {
	catalog.Tournament
	TeamCount  int `json:"team_count"`
	MatchCount int `json:"match_count"`
}

// ServeTournamentDetail returns one tournament by id with enriched counts.
func (g *Gateway) ServeTournamentDetail(w http.ResponseWriter, r *http.Request, rawID string) {
	g.handle(w, r, "tournaments.detail", func(ctx context.Context, r *http.Request) (response, error) {
		id, err := parseID(rawID)
		if err != nil {
			return response{}, err
		}

		params := map[string]string{"id": strconv.FormatInt(id, 10)}
		tags := []string{"tournaments", fmt.Sprintf("tournament:%d", id)}
		result, rememberErr := g.cache.Remember(ctx, "tournaments:detail", cache.Key("tournaments:detail", params), g.cfg.Server.Cache.TTL.Detail(), tags, func(ctx context.Context) (any, error) {
			record, found, err := g.catalog.GetTournament(ctx, id)
			if err != nil {
				return nil, err
			}
			if !found {
				return nil, notFoundError(fmt.Sprintf("tournament %d not found", id))
			}
			detail := tournamentDetail{Tournament: record}
			detail.TeamCount, detail.MatchCount = g.fetchCounts(ctx, id)
			return detail, nil
		})
		if rememberErr != nil {
			return response{}, rememberErr
		}
		return response{message: "tournament retrieved", result: result}, nil
	})
}

// fetchCounts asks both downstreams for their per-tournament counts
// concurrently. Either failure degrades that count to zero.
func (g *Gateway) fetchCounts(ctx context.Context, tournamentID int64) (int, int) {
	params := map[string]string{"tournament_id": strconv.FormatInt(tournamentID, 10)}
	var teamCount, matchCount int

	var group errgroup.Group
	group.Go(func() error {
		teamCount = g.fetchCount(ctx, g.teams, params)
		return nil
	})
	group.Go(func() error {
		matchCount = g.fetchCount(ctx, g.matches, params)
		return nil
	})
	_ = group.Wait()
	return teamCount, matchCount
}

func (g *Gateway) fetchCount(ctx context.Context, client *remote.Client, params map[string]string) int {
	if client == nil {
		return 0
	}
	call := client.Call(ctx, "/count", params)
	if !call.OK {
		return 0
	}
	var payload struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(call.Data, &payload); err != nil {
		return 0
	}
	return payload.Count
}

// ServeFeatured returns the tournaments the configured selector expression
// picks out.
func (g *Gateway) ServeFeatured(w http.ResponseWriter, r *http.Request) {
	g.handle(w, r, "tournaments.featured", func(ctx context.Context, r *http.Request) (response, error) {
		result, err := g.cache.Remember(ctx, "tournaments:featured", cache.Key("tournaments:featured", nil), g.cfg.Server.Cache.TTL.List(), []string{"tournaments"}, func(ctx context.Context) (any, error) {
			all, err := g.catalog.Tournaments(ctx)
			if err != nil {
				return nil, err
			}
			now := time.Now().UTC()
			picked := make([]catalog.Tournament, 0, len(all))
			for _, t := range all {
				match, err := g.featured.Matches(t, now)
				if err != nil {
					g.logger.Warn("featured selector evaluation failed",
						slog.Int64("tournament_id", t.ID),
						slog.Any("error", err))
					continue
				}
				if match {
					picked = append(picked, t)
				}
			}
			return catalog.TournamentPage{Items: picked, Total: len(picked), Page: 1, PerPage: len(picked)}, nil
		})
		if err != nil {
			return response{}, err
		}
		return response{message: "featured tournaments retrieved", result: result}, nil
	})
}

// ServeUpcoming lists tournaments starting after now, soonest first.
func (g *Gateway) ServeUpcoming(w http.ResponseWriter, r *http.Request) {
	g.handle(w, r, "tournaments.upcoming", func(ctx context.Context, r *http.Request) (response, error) {
		filter, params, err := parsePagingParams(r)
		if err != nil {
			return response{}, err
		}

		result, rememberErr := g.cache.Remember(ctx, "tournaments:upcoming", cache.Key("tournaments:upcoming", params), g.cfg.Server.Cache.TTL.List(), []string{"tournaments"}, func(ctx context.Context) (any, error) {
			filter.StartAfter = time.Now().UTC()
			return g.catalog.ListTournaments(ctx, filter)
		})
		if rememberErr != nil {
			return response{}, rememberErr
		}
		return response{message: "upcoming tournaments retrieved", result: result}, nil
	})
}

// ServeSports lists the sport reference data.
func (g *Gateway) ServeSports(w http.ResponseWriter, r *http.Request) {
	g.handle(w, r, "sports.list", func(ctx context.Context, r *http.Request) (response, error) {
		result, err := g.cache.Remember(ctx, "sports", cache.Key("sports", nil), g.cfg.Server.Cache.TTL.Reference(), []string{"sports"}, func(ctx context.Context) (any, error) {
			return g.catalog.ListSports(ctx)
		})
		if err != nil {
			return response{}, err
		}
		return response{message: "sports retrieved", result: result}, nil
	})
}

// ServeVenues lists the venue reference data.
func (g *Gateway) ServeVenues(w http.ResponseWriter, r *http.Request) {
	g.handle(w, r, "venues.list", func(ctx context.Context, r *http.Request) (response, error) {
		result, err := g.cache.Remember(ctx, "venues", cache.Key("venues", nil), g.cfg.Server.Cache.TTL.Reference(), []string{"venues"}, func(ctx context.Context) (any, error) {
			return g.catalog.ListVenues(ctx)
		})
		if err != nil {
			return response{}, err
		}
		return response{message: "venues retrieved", result: result}, nil
	})
}

// ServeVenueDetail returns one venue by id.
func (g *Gateway) ServeVenueDetail(w http.ResponseWriter, r *http.Request, rawID string) {
	g.handle(w, r, "venues.detail", func(ctx context.Context, r *http.Request) (response, error) {
		id, err := parseID(rawID)
		if err != nil {
			return response{}, err
		}

		params := map[string]string{"id": strconv.FormatInt(id, 10)}
		tags := []string{"venues", fmt.Sprintf("venue:%d", id)}
		result, rememberErr := g.cache.Remember(ctx, "venues:detail", cache.Key("venues:detail", params), g.cfg.Server.Cache.TTL.Reference(), tags, func(ctx context.Context) (any, error) {
			venue, found, err := g.catalog.GetVenue(ctx, id)
			if err != nil {
				return nil, err
			}
			if !found {
				return nil, notFoundError(fmt.Sprintf("venue %d not found", id))
			}
			return venue, nil
		})
		if rememberErr != nil {
			return response{}, rememberErr
		}
		return response{message: "venue retrieved", result: result}, nil
	})
}

// searchPayload is the tournament-only search response body.
type searchPayload struct {
	Query   string          `json:"query"`
	Results []search.Result `json:"results"`
	Total   int             `json:"total"`
}

// ServeTournamentSearch runs the local two-tier ranked search.
func (g *Gateway) ServeTournamentSearch(w http.ResponseWriter, r *http.Request) {
	g.handle(w, r, "search.tournaments", func(ctx context.Context, r *http.Request) (response, error) {
		query, err := parseQuery(r)
		if err != nil {
			return response{}, err
		}

		params := map[string]string{"q": query}
		tags := []string{"search", "search:q:" + query}
		result, rememberErr := g.cache.Remember(ctx, "search:tournaments", cache.Key("search:tournaments", params), g.cfg.Server.Cache.TTL.Search(), tags, func(ctx context.Context) (any, error) {
			hits, total, err := g.ranker.Search(ctx, query)
			if err != nil {
				return nil, err
			}
			if hits == nil {
				hits = []search.Result{}
			}
			return searchPayload{Query: query, Results: hits, Total: total}, nil
		})
		if rememberErr != nil {
			return response{}, rememberErr
		}
		return response{message: "search completed", result: result}, nil
	})
}

// ServeMetaSearch fans the query out across tournaments, teams and matches.
func (g *Gateway) ServeMetaSearch(w http.ResponseWriter, r *http.Request) {
	g.handle(w, r, "search.all", func(ctx context.Context, r *http.Request) (response, error) {
		query, err := parseQuery(r)
		if err != nil {
			return response{}, err
		}

		params := map[string]string{"q": query}
		tags := []string{"search", "search:q:" + query}
		result, rememberErr := g.cache.Remember(ctx, "search:all", cache.Key("search:all", params), g.cfg.Server.Cache.TTL.Search(), tags, func(ctx context.Context) (any, error) {
			return g.aggregator.SearchAll(ctx, query)
		})
		if rememberErr != nil {
			return response{}, rememberErr
		}
		return response{message: "search completed", result: result}, nil
	})
}

// ServeHealth reports liveness plus the wiring the instance runs with. It
// bypasses rate limiting so probes cannot starve the quota.
func (g *Gateway) ServeHealth(w http.ResponseWriter, r *http.Request) {
	applyCORS(w.Header())
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	payload, err := json.Marshal(map[string]any{
		"status":        "ok",
		"cache_backend": g.cfg.Server.Cache.Backend,
		"tournaments":   g.catalog.Size(),
		"services": map[string]bool{
			"teams":   g.teams != nil && g.teams.Configured(),
			"matches": g.matches != nil && g.matches.Configured(),
		},
	})
	if err != nil {
		writeError(w, internalError())
		return
	}
	writeSuccess(w, "gateway healthy", payload, false, time.Time{})
}

// WriteNotFound emits the standard not-found envelope for unroutable paths.
func (g *Gateway) WriteNotFound(w http.ResponseWriter, message string) {
	applyCORS(w.Header())
	writeError(w, notFoundError(message))
}

// WriteMethodNotAllowed rejects non-GET verbs on read-only routes.
func (g *Gateway) WriteMethodNotAllowed(w http.ResponseWriter) {
	applyCORS(w.Header())
	writeJSON(w, http.StatusMethodNotAllowed, errorEnvelope{
		Success:   false,
		Message:   "method not allowed",
		ErrorCode: "method_not_allowed",
	})
}

// InvalidateCatalog drops every cached payload derived from catalog data.
// Called after a fixture reload.
func (g *Gateway) InvalidateCatalog(ctx context.Context) {
	g.cache.InvalidateByTags(ctx, []string{"tournaments", "sports", "venues", "search"})
}

func parseQuery(r *http.Request) (string, error) {
	raw := r.URL.Query().Get("q")
	query := search.Sanitize(raw)
	if query == "" {
		return "", validationError(map[string]string{"q": "a non-empty search query is required"})
	}
	return query, nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, validationError(map[string]string{"id": "must be a positive integer"})
	}
	return id, nil
}

// parseListParams validates status, sport_id and paging query parameters,
// returning both the filter and its canonical parameter map for cache
// keying.
func parseListParams(r *http.Request) (catalog.TournamentFilter, map[string]string, error) {
	filter, params, err := parsePagingParams(r)
	if err != nil {
		return catalog.TournamentFilter{}, nil, err
	}

	values := r.URL.Query()
	fields := map[string]string{}

	if status := values.Get("status"); status != "" {
		normalized := strings.ToLower(strings.TrimSpace(status))
		if _, ok := allowedStatuses[normalized]; !ok {
			fields["status"] = "must be one of upcoming, live, completed, cancelled"
		} else {
			filter.Status = normalized
			params["status"] = normalized
		}
	}
	if rawSport := values.Get("sport_id"); rawSport != "" {
		sportID, err := strconv.ParseInt(rawSport, 10, 64)
		if err != nil || sportID <= 0 {
			fields["sport_id"] = "must be a positive integer"
		} else {
			filter.SportID = sportID
			params["sport_id"] = rawSport
		}
	}

	if len(fields) > 0 {
		return catalog.TournamentFilter{}, nil, validationError(fields)
	}
	return filter, params, nil
}

func parsePagingParams(r *http.Request) (catalog.TournamentFilter, map[string]string, error) {
	values := r.URL.Query()
	fields := map[string]string{}
	var filter catalog.TournamentFilter
	params := map[string]string{}

	if rawPage := values.Get("page"); rawPage != "" {
		page, err := strconv.Atoi(rawPage)
		if err != nil || page < 1 {
			fields["page"] = "must be a positive integer"
		} else {
			filter.Page = page
			params["page"] = strconv.Itoa(page)
		}
	}
	if rawLimit := values.Get("limit"); rawLimit != "" {
		limit, err := strconv.Atoi(rawLimit)
		if err != nil || limit < 1 || limit > 100 {
			fields["limit"] = "must be between 1 and 100"
		} else {
			filter.PerPage = limit
			params["limit"] = strconv.Itoa(limit)
		}
	}

	if len(fields) > 0 {
		return catalog.TournamentFilter{}, nil, validationError(fields)
	}
	return filter, params, nil
}

// clientIP resolves the caller identity for rate limiting: the first
// X-Forwarded-For hop when present, otherwise the connection address.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if first, _, ok := strings.Cut(forwarded, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(forwarded)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
