package planning

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripsmith-ai/tripsmith/research"
)

func fullResearchContext() research.Context {
	return research.Context{
		"destinations": {
			{Title: "National Museum", Category: "MUSEUM", Rating: 4.8},
			{Title: "Old Town", Category: "HISTORICAL", Rating: 4.5, Location: "City Center"},
		},
		"places": {
			{Title: "Harbor Market", Category: "market", Rating: 4.2},
			{Title: "Sea View Bistro", Category: "restaurant", Rating: 4.6},
			{Title: "Garden Cafe Kitchen", Category: "restaurant", Rating: 4.1},
		},
		"trends": {
			{Title: "Hidden rooftop pools", Category: "trend", Score: 92, Location: "Downtown"},
			{Title: "Mystery craze", Category: "trend", Score: 88},
		},
		"hotels": {
			{Title: "Grand Central Hotel", Category: "hotel", Rating: 8.9, Price: "210 USD", URL: "https://booking.example/grand"},
		},
		"flights": {
			{Title: "JFK to CDG", Category: "flight", Price: "350.00 USD", Description: "8h 30m, nonstop"},
		},
		"weather": {
			{Title: "2026-09-10: Sunny", Category: "weather"},
		},
	}
}

func TestBuild_AssemblesPlan(t *testing.T) {
	builder := NewItineraryBuilder(nil)
	start := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	q := research.Query{Text: "2 day trip", Destination: "Copenhagen", CheckIn: start}

	plan := builder.Build(NewProfile(), fullResearchContext(), q)

	require.NotNil(t, plan)
	assert.Equal(t, "2-Day Copenhagen Itinerary", plan.Title)
	assert.Equal(t, "Copenhagen", plan.Destination)
	require.Len(t, plan.Days, 2)

	day1 := plan.Days[0]
	assert.Equal(t, start, day1.Date)
	assert.Equal(t, 1, day1.DayNumber)
	// Priority order: the trend (score 92) leads, then the museum.
	require.Len(t, day1.Slots, 6)
	assert.Equal(t, "Hidden rooftop pools", day1.Slots[0].Activity)
	assert.Equal(t, "trending", day1.Slots[0].Kind)
	assert.Equal(t, "09:00", day1.Slots[0].Start)
	assert.Equal(t, "10:30", day1.Slots[0].End)
	assert.Equal(t, "National Museum", day1.Slots[1].Activity)
	assert.Equal(t, "11:00", day1.Slots[1].Start)

	lunch := day1.Slots[2]
	assert.Equal(t, "Lunch", lunch.Activity)
	assert.Equal(t, "meal", lunch.Kind)
	assert.Equal(t, "12:30", lunch.Start)
	assert.Equal(t, "Sea View Bistro", lunch.Location)
	assert.Equal(t, "Try local cuisine!", lunch.Notes)

	assert.Equal(t, "Old Town", day1.Slots[3].Activity)
	assert.Equal(t, "14:00", day1.Slots[3].Start)

	dinner := day1.Slots[len(day1.Slots)-1]
	assert.Equal(t, "Dinner", dinner.Activity)
	assert.Equal(t, "19:00", dinner.Start)
	assert.Equal(t, "Garden Cafe Kitchen", dinner.Location)

	assert.Equal(t, "Local Discoveries Day", day1.Theme)
	assert.Equal(t, 120, day1.TotalTravelTime)
	assert.Equal(t, 100.0, day1.EstimatedCost)

	// Everything schedulable fit on day one; day two is a shell.
	day2 := plan.Days[1]
	assert.Equal(t, start.AddDate(0, 0, 1), day2.Date)
	assert.Equal(t, 2, day2.DayNumber)
	assert.Len(t, day2.Slots, 2)
	assert.Equal(t, "Exploration Day", day2.Theme)

	require.NotNil(t, plan.Transport)
	assert.Equal(t, "flight", plan.Transport.Mode)
	assert.Equal(t, "JFK to CDG, 8h 30m, nonstop", plan.Transport.Summary)
	assert.Equal(t, "350.00 USD", plan.Transport.Price)

	require.NotNil(t, plan.Accommodation)
	assert.Equal(t, "Grand Central Hotel", plan.Accommodation.Name)
	assert.Equal(t, 8.9, plan.Accommodation.Rating)
	assert.Equal(t, "210 USD", plan.Accommodation.Price)

	assert.Contains(t, plan.Summary, "Copenhagen")
	assert.Contains(t, plan.Summary, "moderate")
	assert.NotEmpty(t, plan.Tips)
}

func TestBuild_EmptyResearchContext(t *testing.T) {
	builder := NewItineraryBuilder(nil)
	profile := NewProfile()
	profile.BudgetLevel = "luxury"

	plan := builder.Build(profile, research.Context{}, research.Query{Text: "somewhere nice"})

	require.Len(t, plan.Days, defaultTripDays)
	assert.Equal(t, "3-Day Itinerary", plan.Title)
	assert.Nil(t, plan.Transport)
	assert.Nil(t, plan.Accommodation)
	for _, day := range plan.Days {
		assert.Equal(t, "Exploration Day", day.Theme)
		require.Len(t, day.Slots, 2)
		assert.Equal(t, "Lunch", day.Slots[0].Activity)
		assert.Equal(t, "Local restaurant", day.Slots[0].Location)
		assert.Equal(t, "Dinner", day.Slots[1].Activity)
		assert.Equal(t, 200.0, day.EstimatedCost)
	}
}

func TestBuild_InterestBoostReordersActivities(t *testing.T) {
	rc := research.Context{
		"destinations": {
			{Title: "City Museum", Category: "MUSEUM", Rating: 4.0},
			{Title: "Observation Deck", Category: "viewpoint", Rating: 4.5},
		},
	}
	builder := NewItineraryBuilder(nil)

	neutral := builder.Build(NewProfile(), rc, research.Query{Text: "1 day"})
	assert.Equal(t, "Observation Deck", neutral.Days[0].Slots[0].Activity)

	cultural := NewProfile()
	cultural.Interests = []string{"cultural"}
	boosted := builder.Build(cultural, rc, research.Query{Text: "1 day"})
	assert.Equal(t, "City Museum", boosted.Days[0].Slots[0].Activity)
}

func TestBuild_LocationlessTrendSkipped(t *testing.T) {
	rc := research.Context{
		"trends": {{Title: "Nowhere in particular", Category: "trend", Score: 99}},
	}
	builder := NewItineraryBuilder(nil)

	plan := builder.Build(NewProfile(), rc, research.Query{Text: "1 day"})

	require.Len(t, plan.Days, 1)
	assert.Len(t, plan.Days[0].Slots, 2)
}

func TestBuild_OverflowSpillsToNextDay(t *testing.T) {
	items := make([]research.Item, 7)
	for i := range items {
		items[i] = research.Item{Title: string(rune('A' + i)), Category: "attraction", Rating: 4.0}
	}
	rc := research.Context{"destinations": items}
	builder := NewItineraryBuilder(nil)

	plan := builder.Build(NewProfile(), rc, research.Query{Text: "2 days"})

	require.Len(t, plan.Days, 2)
	assert.Len(t, plan.Days[0].Slots, 7, "five activities plus two meals")
	assert.Len(t, plan.Days[1].Slots, 4, "remaining two plus two meals")
}

func TestTakeDayActivities_TimeBound(t *testing.T) {
	pool := []*activity{
		{item: research.Item{Title: "Beach 1"}, kind: "beach", duration: 180},
		{item: research.Item{Title: "Beach 2"}, kind: "beach", duration: 180},
		{item: research.Item{Title: "Beach 3"}, kind: "beach", duration: 180},
		{item: research.Item{Title: "Quick stop"}, kind: "landmark", duration: 45},
	}

	selected := takeDayActivities(pool)

	require.Len(t, selected, 3)
	assert.Equal(t, "Beach 1", selected[0].item.Title)
	assert.Equal(t, "Beach 2", selected[1].item.Title)
	assert.Equal(t, "Quick stop", selected[2].item.Title, "the third beach exceeds the day, the short stop still fits")

	second := takeDayActivities(pool)
	require.Len(t, second, 1)
	assert.Equal(t, "Beach 3", second[0].item.Title)
}

func TestActivityKind(t *testing.T) {
	tests := []struct {
		item research.Item
		want string
	}{
		{research.Item{Category: "MUSEUM"}, "museum"},
		{research.Item{Category: "art_gallery"}, "museum"},
		{research.Item{Category: "NATURE"}, "park"},
		{research.Item{Category: "natural_feature"}, "park"},
		{research.Item{Category: "BEACH"}, "beach"},
		{research.Item{Title: "Sunset Beach", Category: "tourist_attraction"}, "beach"},
		{research.Item{Category: "church"}, "landmark"},
		{research.Item{Category: "HISTORICAL"}, "landmark"},
		{research.Item{Category: "RELIGIOUS"}, "landmark"},
		{research.Item{Category: "market"}, "shopping"},
		{research.Item{Category: "NIGHTLIFE"}, "nightlife"},
		{research.Item{Category: "cafe"}, "cafe"},
		{research.Item{Category: "trend"}, "trending"},
		{research.Item{Category: "lodging"}, "attraction"},
		{research.Item{}, "attraction"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, activityKind(tt.item), "%s/%s", tt.item.Category, tt.item.Title)
	}
}

func TestActivityPriority(t *testing.T) {
	t.Run("unrated items assume a middling rating", func(t *testing.T) {
		assert.Equal(t, 30.0, activityPriority(research.Item{}, "attraction", nil))
	})

	t.Run("rating scales the base", func(t *testing.T) {
		assert.Equal(t, 45.0, activityPriority(research.Item{Rating: 4.5}, "attraction", nil))
	})

	t.Run("interest boost", func(t *testing.T) {
		got := activityPriority(research.Item{Rating: 4.0}, "museum", []string{"cultural"})
		assert.Equal(t, 55.0, got)
	})

	t.Run("review volume boosts", func(t *testing.T) {
		heavy := research.Item{Rating: 4.0, Metadata: map[string]interface{}{"user_ratings_total": 1500}}
		assert.Equal(t, 50.0, activityPriority(heavy, "attraction", nil))

		medium := research.Item{Rating: 4.0, Metadata: map[string]interface{}{"user_ratings_total": float64(600)}}
		assert.Equal(t, 45.0, activityPriority(medium, "attraction", nil))
	})

	t.Run("capped at 100", func(t *testing.T) {
		loaded := research.Item{Rating: 9.8, Metadata: map[string]interface{}{"user_ratings_total": 5000}}
		assert.Equal(t, 100.0, activityPriority(loaded, "museum", []string{"cultural"}))
	})

	t.Run("trends ride their score", func(t *testing.T) {
		assert.Equal(t, 87.0, activityPriority(research.Item{Score: 87}, "trending", nil))
		assert.Equal(t, 50.0, activityPriority(research.Item{}, "trending", nil))
		assert.Equal(t, 100.0, activityPriority(research.Item{Score: 150}, "trending", nil))
	})
}

func TestDayTheme(t *testing.T) {
	mk := func(kinds ...string) []*activity {
		out := make([]*activity, len(kinds))
		for i, k := range kinds {
			out[i] = &activity{kind: k}
		}
		return out
	}

	tests := []struct {
		name  string
		kinds []*activity
		want  string
	}{
		{"empty", nil, "Exploration Day"},
		{"museums", mk("museum", "museum", "cafe"), "Culture & History Day"},
		{"beach", mk("beach", "attraction"), "Nature & Relaxation Day"},
		{"parks", mk("park", "park"), "Nature & Relaxation Day"},
		{"shopping", mk("shopping", "shopping"), "Shopping & Markets Day"},
		{"trending", mk("trending", "attraction"), "Local Discoveries Day"},
		{"mixed", mk("attraction", "landmark"), "Mixed Adventure Day"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dayTheme(tt.kinds))
		})
	}
}

func TestPlanTips(t *testing.T) {
	base := planTips(NewProfile())
	assert.Len(t, base, 3)

	dietary := NewProfile()
	dietary.DietaryRestrictions = []string{"vegan"}
	dietary.ReligiousRequirements = []string{"halal"}
	tips := planTips(dietary)
	require.Len(t, tips, 4)
	assert.Contains(t, tips[3], "vegan, halal")

	budget := NewProfile()
	budget.BudgetLevel = "budget"
	assert.Contains(t, planTips(budget)[3], "city pass")

	luxury := NewProfile()
	luxury.BudgetLevel = "luxury"
	assert.Contains(t, planTips(luxury)[3], "well in advance")
}
