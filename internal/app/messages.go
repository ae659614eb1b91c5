package app

import (
	"github.com/burningmantech/ranger-transmissions/internal/search"
	"github.com/burningmantech/ranger-transmissions/internal/store"
)

// EventsLoadedMsg carries the catalog's events.
type EventsLoadedMsg struct {
	Events []store.Event
}

// TransmissionsLoadedMsg carries an unfiltered catalog listing for the
// active event.
type TransmissionsLoadedMsg struct {
	Transmissions []store.Transmission
}

// SearchResultsMsg carries the hits for a submitted search query.
type SearchResultsMsg struct {
	Query   string
	Results []search.Result
}

// QueryErrorMsg is sent when a catalog read or a search fails.
type QueryErrorMsg struct {
	Err error
}

// ClearTransientErrorMsg clears a transient error after a timeout.
type ClearTransientErrorMsg struct{}
