package pagination

import "github.com/Sternrassler/flickr-search/pkg/photo"

// Phase is the pagination state of a query session.
type Phase int

const (
	// PhaseIdle has no results and nothing in flight.
	PhaseIdle Phase = iota

	// PhaseFetching is waiting for the first page of a query.
	PhaseFetching

	// PhaseLoaded has every page of the query.
	PhaseLoaded

	// PhaseHasMore has results and the API reported further pages.
	PhaseHasMore

	// PhaseFetchingMore is waiting for a further page.
	PhaseFetchingMore

	// PhaseFetchMoreFailed is waiting for a retry after a further page failed.
	PhaseFetchMoreFailed
)

var phaseNames = map[Phase]string{
	PhaseIdle:            "idle",
	PhaseFetching:        "fetching",
	PhaseLoaded:          "loaded",
	PhaseHasMore:         "has_more",
	PhaseFetchingMore:    "fetching_more",
	PhaseFetchMoreFailed: "fetch_more_failed",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown"
}

// HasMore reports whether the API has pages beyond those already loaded.
func (p Phase) HasMore() bool {
	switch p {
	case PhaseHasMore, PhaseFetchingMore, PhaseFetchMoreFailed:
		return true
	default:
		return false
	}
}

// LastFetchFailed reports whether the last further-page fetch failed.
func (p Phase) LastFetchFailed() bool {
	return p == PhaseFetchMoreFailed
}

// InFlight reports whether a fetch is outstanding.
func (p Phase) InFlight() bool {
	return p == PhaseFetching || p == PhaseFetchingMore
}

// State is a point-in-time copy of a controller's session.
type State struct {
	Phase Phase

	// Query is the active query, empty when none has run.
	Query string

	// Page is the next page RequestMore would fetch.
	Page int

	Items []photo.Item

	HasMore         bool
	LastFetchFailed bool
	InFlight        bool
}

func newState(phase Phase, query string, page int, items []photo.Item) State {
	cp := make([]photo.Item, len(items))
	copy(cp, items)
	return State{
		Phase:           phase,
		Query:           query,
		Page:            page,
		Items:           cp,
		HasMore:         phase.HasMore(),
		LastFetchFailed: phase.LastFetchFailed(),
		InFlight:        phase.InFlight(),
	}
}
