package server

import (
	"fmt"
	"net/http"
	"strings"
)

// GatewayHTTP is the surface the router needs from the gateway. Keeping it
// an interface lets router tests run against a stub.
type GatewayHTTP interface {
	ServeTournaments(http.ResponseWriter, *http.Request)
	ServeTournamentDetail(http.ResponseWriter, *http.Request, string)
	ServeFeatured(http.ResponseWriter, *http.Request)
	ServeUpcoming(http.ResponseWriter, *http.Request)
	ServeSports(http.ResponseWriter, *http.Request)
	ServeVenues(http.ResponseWriter, *http.Request)
	ServeVenueDetail(http.ResponseWriter, *http.Request, string)
	ServeTournamentSearch(http.ResponseWriter, *http.Request)
	ServeMetaSearch(http.ResponseWriter, *http.Request)
	ServeHealth(http.ResponseWriter, *http.Request)
	WriteNotFound(http.ResponseWriter, string)
	WriteMethodNotAllowed(http.ResponseWriter)
}

// NewHandler wires URL dispatch for the public read surface. metricsHandler
// may be nil when the instance runs without a metrics endpoint.
func NewHandler(g GatewayHTTP, metricsHandler http.Handler) http.Handler {
	if g == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "gateway unavailable", http.StatusServiceUnavailable)
		})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodOptions {
			g.WriteMethodNotAllowed(w)
			return
		}

		parts := splitPath(r.URL.Path)
		switch {
		case len(parts) == 1 && (parts[0] == "healthz" || parts[0] == "health"):
			g.ServeHealth(w, r)
		case len(parts) == 1 && parts[0] == "metrics":
			if metricsHandler == nil {
				g.WriteNotFound(w, "metrics endpoint disabled")
				return
			}
			metricsHandler.ServeHTTP(w, r)
		case len(parts) == 1 && parts[0] == "tournaments":
			g.ServeTournaments(w, r)
		case len(parts) == 2 && parts[0] == "tournaments" && parts[1] == "featured":
			g.ServeFeatured(w, r)
		case len(parts) == 2 && parts[0] == "tournaments" && parts[1] == "upcoming":
			g.ServeUpcoming(w, r)
		case len(parts) == 2 && parts[0] == "tournaments":
			g.ServeTournamentDetail(w, r, parts[1])
		case len(parts) == 1 && parts[0] == "sports":
			g.ServeSports(w, r)
		case len(parts) == 1 && parts[0] == "venues":
			g.ServeVenues(w, r)
		case len(parts) == 2 && parts[0] == "venues":
			g.ServeVenueDetail(w, r, parts[1])
		case len(parts) == 1 && parts[0] == "search":
			g.ServeMetaSearch(w, r)
		case len(parts) == 2 && parts[0] == "search" && parts[1] == "tournaments":
			g.ServeTournamentSearch(w, r)
		default:
			g.WriteNotFound(w, fmt.Sprintf("no route for %s", r.URL.Path))
		}
	})
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
