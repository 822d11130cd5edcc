// Package catalog holds the gateway-local read model for tournaments,
// sports, and venues. The relational store that owns this data lives behind
// the admin services; the gateway only ever consumes a read snapshot.
package catalog

import (
	"context"
	"strings"
	"time"
)

// Tournament is the denormalized read view served by the public gateway.
type Tournament struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	SportID   int64     `json:"sport_id"`
	SportName string    `json:"sport_name"`
	VenueID   int64     `json:"venue_id"`
	Status    string    `json:"status"`
	Featured  bool      `json:"featured"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// Sport is a reference-data record.
type Sport struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Venue is a reference-data record.
type Venue struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	City     string `json:"city"`
	Capacity int    `json:"capacity"`
}

// TournamentFilter narrows a tournament listing.
type TournamentFilter struct {
	Status     string
	SportID    int64
	StartAfter time.Time
	Page       int
	PerPage    int
}

// TournamentPage is one page of a filtered listing plus the total match
// count before paging.
type TournamentPage struct {
	Items   []Tournament `json:"items"`
	Total   int          `json:"total"`
	Page    int          `json:"page"`
	PerPage int          `json:"per_page"`
}

// Reader is the narrow persistence surface the gateway consumes. The CRUD
// layer that owns writes is out of scope; anything implementing Reader can
// back the gateway.
type Reader interface {
	ListTournaments(ctx context.Context, filter TournamentFilter) (TournamentPage, error)
	GetTournament(ctx context.Context, id int64) (Tournament, bool, error)
	ListSports(ctx context.Context) ([]Sport, error)
	ListVenues(ctx context.Context) ([]Venue, error)
	GetVenue(ctx context.Context, id int64) (Venue, bool, error)
}

// Matches reports whether the tournament satisfies the filter, ignoring
// paging fields.
func (f TournamentFilter) Matches(t Tournament) bool {
	if f.Status != "" && !strings.EqualFold(f.Status, t.Status) {
		return false
	}
	if f.SportID != 0 && f.SportID != t.SportID {
		return false
	}
	if !f.StartAfter.IsZero() && t.StartDate.Before(f.StartAfter) {
		return false
	}
	return true
}
