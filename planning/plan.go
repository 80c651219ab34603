package planning

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tripsmith-ai/tripsmith/research"
)

const defaultTripDays = 3

// TimeSlot is one scheduled block within a day.
type TimeSlot struct {
	Start    string `json:"start_time"`
	End      string `json:"end_time"`
	Kind     string `json:"activity_type"`
	Activity string `json:"activity"`
	Location string `json:"location,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// DayPlan is one day of the itinerary.
type DayPlan struct {
	Date            time.Time  `json:"date"`
	DayNumber       int        `json:"day_number"`
	Theme           string     `json:"theme,omitempty"`
	Slots           []TimeSlot `json:"time_slots"`
	TotalTravelTime int        `json:"total_travel_time"`
	EstimatedCost   float64    `json:"estimated_cost"`
}

// Transport is the suggested way of getting there.
type Transport struct {
	Mode    string `json:"mode"`
	Summary string `json:"summary"`
	Price   string `json:"price,omitempty"`
}

// Accommodation is the suggested place to stay.
type Accommodation struct {
	Name   string  `json:"name"`
	Rating float64 `json:"rating,omitempty"`
	Price  string  `json:"price,omitempty"`
	URL    string  `json:"url,omitempty"`
}

// Plan is the synthesized trip.
type Plan struct {
	Title         string         `json:"title"`
	Summary       string         `json:"summary"`
	Destination   string         `json:"destination"`
	Days          []DayPlan      `json:"days"`
	Transport     *Transport     `json:"transport,omitempty"`
	Accommodation *Accommodation `json:"accommodation,omitempty"`
	Tips          []string       `json:"tips,omitempty"`
}

// PatchDates rewrites day dates and numbers so they run strictly
// sequentially from start, whatever synthesis emitted.
func (p *Plan) PatchDates(start time.Time) {
	for i := range p.Days {
		p.Days[i].Date = start.AddDate(0, 0, i)
		p.Days[i].DayNumber = i + 1
	}
}

// Trip is the planning window synthesis fills.
type Trip struct {
	Start time.Time
	Days  int
}

var dayCountPattern = regexp.MustCompile(`(\d+)[\s-]*(?:day|night)`)

// TripWindow resolves the trip window from the query: an explicit day
// or night count in the message wins, then the check-in/check-out span,
// then three days starting tomorrow.
func TripWindow(q research.Query) Trip {
	days := daysFromText(q.Text)
	if days == 0 && !q.CheckIn.IsZero() && !q.CheckOut.IsZero() && q.CheckOut.After(q.CheckIn) {
		days = int(q.CheckOut.Sub(q.CheckIn).Hours()/24) + 1
	}
	if days <= 0 {
		days = defaultTripDays
	}

	start := q.CheckIn
	if start.IsZero() {
		start = time.Now().AddDate(0, 0, 1)
	}
	return Trip{Start: start, Days: days}
}

func daysFromText(text string) int {
	text = strings.ToLower(text)
	if m := dayCountPattern.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	if strings.Contains(text, "week") {
		return 7
	}
	return 0
}
