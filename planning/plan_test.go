package planning

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripsmith-ai/tripsmith/research"
)

func TestPatchDates(t *testing.T) {
	start := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	plan := &Plan{Days: []DayPlan{
		{Date: time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC), DayNumber: 7},
		{DayNumber: 7},
		{Date: start.AddDate(0, 0, 30), DayNumber: -1},
		{},
	}}

	plan.PatchDates(start)

	require.Len(t, plan.Days, 4)
	for i, day := range plan.Days {
		assert.Equal(t, start.AddDate(0, 0, i), day.Date, "day %d date", i+1)
		assert.Equal(t, i+1, day.DayNumber, "day %d number", i+1)
	}
}

func TestPatchDates_NoDays(t *testing.T) {
	plan := &Plan{}
	plan.PatchDates(time.Now())
	assert.Empty(t, plan.Days)
}

func TestTripWindow_DaysFromMessage(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"plan a 5 day trip to Tokyo", 5},
		{"a 3-day getaway", 3},
		{"2 nights in Paris", 2},
		{"spend a week in Portugal", 7},
		{"10day adventure", 10},
		{"just somewhere warm", defaultTripDays},
	}
	for _, tt := range tests {
		window := TripWindow(research.Query{Text: tt.text})
		assert.Equal(t, tt.want, window.Days, tt.text)
	}
}

func TestTripWindow_DaysFromDates(t *testing.T) {
	checkIn := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	checkOut := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)

	window := TripWindow(research.Query{Text: "take me away", CheckIn: checkIn, CheckOut: checkOut})

	assert.Equal(t, 5, window.Days)
	assert.Equal(t, checkIn, window.Start)
}

func TestTripWindow_MessageCountWinsOverDates(t *testing.T) {
	checkIn := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	checkOut := time.Date(2026, 9, 20, 0, 0, 0, 0, time.UTC)

	window := TripWindow(research.Query{Text: "just 2 days of it", CheckIn: checkIn, CheckOut: checkOut})

	assert.Equal(t, 2, window.Days)
	assert.Equal(t, checkIn, window.Start)
}

func TestTripWindow_DefaultsToTomorrow(t *testing.T) {
	window := TripWindow(research.Query{Text: "surprise me"})

	assert.Equal(t, defaultTripDays, window.Days)
	tomorrow := time.Now().AddDate(0, 0, 1)
	assert.Equal(t, tomorrow.Year(), window.Start.Year())
	assert.Equal(t, tomorrow.YearDay(), window.Start.YearDay())
}

func TestTripWindow_IgnoresInvertedDates(t *testing.T) {
	checkIn := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
	checkOut := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)

	window := TripWindow(research.Query{CheckIn: checkIn, CheckOut: checkOut})

	assert.Equal(t, defaultTripDays, window.Days)
	assert.Equal(t, checkIn, window.Start)
}
