// Package research gathers destination intelligence for the planner.
// It defines the Provider contract, a fan-out engine that runs all
// registered providers concurrently with per-provider failure
// isolation, and the TrendScout discovery loop that broadens a query
// until social data turns up. Concrete providers cover the destination
// knowledge graph, place search, social trends, hotels, flights and
// weather.
package research

import (
	"context"
	"time"
)

// Result statuses reported by discovery operations.
const (
	StatusSuccess        = "success"
	StatusPartialSuccess = "partial_success"
)

// Query carries everything a provider may need for one research pass.
// Providers ignore the fields that do not apply to them; a provider
// that cannot act on the query at all returns no items and no error.
type Query struct {
	// Text is the raw user message for this turn.
	Text string

	// Destination is the resolved destination, when profiling found one.
	Destination string

	// Origin is the departure airport or city, when known. Flight
	// search skips the turn without it.
	Origin string

	Interests   []string
	BudgetLevel string
	GroupSize   int

	// CheckIn and CheckOut bound the stay. Zero values mean the dates
	// are not known yet; providers that need them fall back to their
	// own defaults.
	CheckIn  time.Time
	CheckOut time.Time
}

// Nights returns the stay length in nights, or 0 when dates are not set.
func (q Query) Nights() int {
	if q.CheckIn.IsZero() || q.CheckOut.IsZero() || !q.CheckOut.After(q.CheckIn) {
		return 0
	}
	return int(q.CheckOut.Sub(q.CheckIn).Hours() / 24)
}

// Item is one research finding. All providers normalize into this
// shape so synthesis can treat results uniformly.
type Item struct {
	Title       string                 `json:"title"`
	Description string                 `json:"description,omitempty"`
	Category    string                 `json:"category,omitempty"`
	Location    string                 `json:"location,omitempty"`
	Rating      float64                `json:"rating,omitempty"`
	Price       string                 `json:"price,omitempty"`
	URL         string                 `json:"url,omitempty"`
	Score       float64                `json:"score,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Context maps provider name to that provider's results for one
// research pass. A failed or panicking provider contributes an empty
// slice, never a missing key.
type Context map[string][]Item

// Items returns the results for a provider, or nil when it never ran.
func (c Context) Items(provider string) []Item {
	return c[provider]
}

// Total counts items across all providers.
func (c Context) Total() int {
	n := 0
	for _, items := range c {
		n += len(items)
	}
	return n
}

// Provider is one source of research results. Implementations must be
// safe for concurrent use; the engine fans out across all registered
// providers at once.
type Provider interface {
	// Name identifies the provider in results, logs and metrics.
	Name() string

	// Search runs one research pass. Returning an error (or
	// panicking) costs this provider its slot only; the engine
	// records an empty result and the other providers are unaffected.
	Search(ctx context.Context, q Query) ([]Item, error)
}
