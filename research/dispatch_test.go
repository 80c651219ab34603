package research

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripsmith-ai/tripsmith/core"
)

// mockDecider returns one canned reasoning reply.
type mockDecider struct {
	reply string
	err   error
	calls int
}

func (m *mockDecider) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &core.AIResponse{Content: m.reply}, nil
}

// capturingProvider records the query it was dispatched with.
type capturingProvider struct {
	name  string
	items []Item
	err   error

	calls int
	last  Query
}

func (p *capturingProvider) Name() string { return p.name }

func (p *capturingProvider) Search(ctx context.Context, q Query) ([]Item, error) {
	p.calls++
	p.last = q
	return p.items, p.err
}

func TestParseToolCall(t *testing.T) {
	tests := []struct {
		in   string
		want ToolCall
	}{
		{"search_hotels", ToolSearchHotels},
		{" Search_Hotels ", ToolSearchHotels},
		{"search_places", ToolSearchPlaces},
		{"SEARCH_PLACES", ToolSearchPlaces},
		{"book_flights", ToolUnknown},
		{"", ToolUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseToolCall(tt.in); got != tt.want {
				t.Errorf("ParseToolCall(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestToolCallString(t *testing.T) {
	assert.Equal(t, "search_hotels", ToolSearchHotels.String())
	assert.Equal(t, "search_places", ToolSearchPlaces.String())
	assert.Equal(t, "unknown", ToolUnknown.String())
	assert.Equal(t, "unknown", ToolCall(42).String())
}

func TestConciergeSearch_DispatchesHotels(t *testing.T) {
	ai := &mockDecider{reply: `{
		"service_type": "accommodation",
		"tool_call": "search_hotels",
		"arguments": {
			"location": "Paris",
			"checkin_date": "2026-09-10",
			"checkout_date": "2026-09-14",
			"budget_max": 200
		}
	}`}
	hotels := &capturingProvider{name: "hotels", items: []Item{{Title: "Grand Hotel Paris"}}}
	places := &capturingProvider{name: "places"}
	concierge := NewConcierge(ai, hotels, places, nil)

	items, err := concierge.Search(context.Background(), Query{Text: "somewhere nice to stay in Paris"})

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, hotels.calls)
	assert.Equal(t, 0, places.calls)
	assert.Equal(t, "Paris", hotels.last.Destination)
	assert.Equal(t, time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC), hotels.last.CheckIn)
	assert.Equal(t, time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC), hotels.last.CheckOut)
	assert.Equal(t, "moderate", hotels.last.BudgetLevel)
}

func TestConciergeSearch_DispatchesPlaces(t *testing.T) {
	ai := &mockDecider{reply: "```json\n" + `{
		"service_type": "restaurant",
		"tool_call": "search_places",
		"arguments": {
			"location": "Rome",
			"query": "vegan rooftop",
			"price_levels": [1, 2]
		}
	}` + "\n```"}
	hotels := &capturingProvider{name: "hotels"}
	places := &capturingProvider{name: "places", items: []Item{{Title: "Terrazza Verde"}}}
	concierge := NewConcierge(ai, hotels, places, nil)

	items, err := concierge.Search(context.Background(), Query{Text: "vegan dinner with a view"})

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 0, hotels.calls)
	assert.Equal(t, 1, places.calls)
	assert.Equal(t, "Rome", places.last.Destination)
	assert.Equal(t, "vegan rooftop", places.last.Text)
	assert.Equal(t, "moderate", places.last.BudgetLevel)
}

func TestConciergeSearch_UnknownToolFallsBackToPlaces(t *testing.T) {
	ai := &mockDecider{reply: `{
		"service_type": "flight",
		"tool_call": "book_flights",
		"arguments": {"location": "Madrid"}
	}`}
	hotels := &capturingProvider{name: "hotels"}
	places := &capturingProvider{name: "places", items: []Item{{Title: "Plaza Mayor"}}}
	concierge := NewConcierge(ai, hotels, places, nil)

	items, err := concierge.Search(context.Background(), Query{Text: "get me to Madrid"})

	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 0, hotels.calls)
	assert.Equal(t, 1, places.calls)
	// Arguments from the unknown tool still refine the query.
	assert.Equal(t, "Madrid", places.last.Destination)
}

func TestConciergeSearch_UnparseableDecisionFallsBack(t *testing.T) {
	ai := &mockDecider{reply: "I think you want a hotel."}
	hotels := &capturingProvider{name: "hotels"}
	places := &capturingProvider{name: "places"}
	concierge := NewConcierge(ai, hotels, places, nil)

	_, err := concierge.Search(context.Background(), Query{Text: "hotel in Oslo", Destination: "Oslo"})

	require.NoError(t, err)
	assert.Equal(t, 0, hotels.calls)
	assert.Equal(t, 1, places.calls)
	// The fallback runs with the original, unrefined query.
	assert.Equal(t, "hotel in Oslo", places.last.Text)
	assert.Equal(t, "Oslo", places.last.Destination)
}

func TestConciergeSearch_ReasoningErrorFallsBack(t *testing.T) {
	ai := &mockDecider{err: errors.New("reasoning offline")}
	hotels := &capturingProvider{name: "hotels"}
	places := &capturingProvider{name: "places", items: []Item{{Title: "fallback find"}}}
	concierge := NewConcierge(ai, hotels, places, nil)

	items, err := concierge.Search(context.Background(), Query{Text: "anything"})

	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, places.calls)
}

func TestConciergeSearch_PlacesErrorPropagates(t *testing.T) {
	ai := &mockDecider{err: errors.New("reasoning offline")}
	places := &capturingProvider{name: "places", err: errors.New("places down")}
	concierge := NewConcierge(ai, &capturingProvider{name: "hotels"}, places, nil)

	_, err := concierge.Search(context.Background(), Query{Text: "anything"})

	assert.Error(t, err)
}

func TestConciergeName(t *testing.T) {
	concierge := NewConcierge(&mockDecider{}, nil, nil, nil)
	assert.Equal(t, "concierge", concierge.Name())
}

func TestBudgetLevelFor(t *testing.T) {
	tests := []struct {
		name string
		args toolArguments
		want string
	}{
		{"cheap cap", toolArguments{BudgetMax: 80}, "budget"},
		{"mid cap", toolArguments{BudgetMax: 200}, "moderate"},
		{"exact boundary", toolArguments{BudgetMax: 300}, "moderate"},
		{"high cap", toolArguments{BudgetMax: 450}, "luxury"},
		{"low price levels", toolArguments{PriceLevels: []int{0, 1}}, "budget"},
		{"mid price levels", toolArguments{PriceLevels: []int{1, 2}}, "moderate"},
		{"high price levels", toolArguments{PriceLevels: []int{3, 4}}, "luxury"},
		{"nothing", toolArguments{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := budgetLevelFor(tt.args); got != tt.want {
				t.Errorf("budgetLevelFor() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRefineQuery_PartialArguments(t *testing.T) {
	original := Query{
		Text:        "romantic dinner",
		Destination: "Venice",
		BudgetLevel: "luxury",
		GroupSize:   2,
	}

	refined := refineQuery(original, toolArguments{Query: "canal-side trattoria"})

	assert.Equal(t, "canal-side trattoria", refined.Text)
	assert.Equal(t, "Venice", refined.Destination)
	assert.Equal(t, "luxury", refined.BudgetLevel)
	assert.Equal(t, 2, refined.GroupSize)
	assert.True(t, refined.CheckIn.IsZero())
}
