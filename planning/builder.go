package planning

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/tripsmith-ai/tripsmith/core"
	"github.com/tripsmith-ai/tripsmith/research"
	"github.com/tripsmith-ai/tripsmith/telemetry"
)

// Per-kind visit durations in minutes.
var activityDurations = map[string]int{
	"museum":     120,
	"attraction": 90,
	"landmark":   45,
	"cafe":       45,
	"shopping":   60,
	"park":       60,
	"beach":      180,
	"nightlife":  180,
	"trending":   90,
}

const (
	defaultActivityDuration = 60
	maxDailyActivities      = 5
	maxDailyMinutes         = 8 * 60
	slotBufferMinutes       = 30
)

// Interests boost the activity kinds they map to.
var interestKinds = map[string][]string{
	"cultural":  {"museum", "landmark"},
	"nature":    {"park", "beach"},
	"adventure": {"park", "attraction"},
	"culinary":  {"restaurant"},
}

// Daily cost estimate per budget level, USD.
var budgetDailyCosts = map[string]float64{
	"budget":   50,
	"moderate": 100,
	"luxury":   200,
}

// ItineraryBuilder synthesizes the research context into a day-by-day
// plan. The heuristics are deliberately simple: score everything
// against the profile, fill mornings and afternoons by priority with a
// transfer buffer between stops, anchor lunch and dinner, and theme
// each day by what ended up in it.
type ItineraryBuilder struct {
	logger core.Logger
}

// NewItineraryBuilder creates a builder.
func NewItineraryBuilder(logger core.Logger) *ItineraryBuilder {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cl, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cl.WithComponent("planner/planning")
	}
	return &ItineraryBuilder{logger: logger}
}

type activity struct {
	item     research.Item
	kind     string
	priority float64
	duration int
	used     bool
}

// Build assembles a plan from the profile and the fan-out results.
// It always returns a plan; with an empty research context the days
// are exploration shells carrying only the meal anchors.
func (b *ItineraryBuilder) Build(profile Profile, rc research.Context, q research.Query) *Plan {
	window := TripWindow(q)
	destination := strings.TrimSpace(q.Destination)
	if destination == "" {
		destination = strings.TrimSpace(profile.Destination)
	}

	activities, restaurants, flights, hotels := classifyResults(rc, profile.Interests)

	days := make([]DayPlan, 0, window.Days)
	for dayNum := 1; dayNum <= window.Days; dayNum++ {
		selected := takeDayActivities(activities)
		day := b.buildDay(window.Start.AddDate(0, 0, dayNum-1), dayNum, selected, restaurants, profile)
		days = append(days, day)
	}

	plan := &Plan{
		Title:         planTitle(window.Days, destination),
		Destination:   destination,
		Days:          days,
		Transport:     transportFrom(flights),
		Accommodation: accommodationFrom(hotels),
		Tips:          planTips(profile),
	}
	plan.Summary = planSummary(plan, profile)

	b.logger.Info("Itinerary synthesized", map[string]interface{}{
		"operation":   "itinerary_build",
		"destination": destination,
		"days":        window.Days,
		"activities":  len(activities),
	})
	telemetry.Counter("planning.itineraries.built", "module", telemetry.ModulePlanning)
	telemetry.Histogram("planning.itinerary.days", float64(window.Days), "module", telemetry.ModulePlanning)

	return plan
}

// classifyResults splits the research context into schedulable
// activities, restaurants for meal anchors, and the transport and
// accommodation candidates. Providers are walked in name order so the
// outcome does not depend on map iteration.
func classifyResults(rc research.Context, interests []string) (activities []*activity, restaurants, flights, hotels []research.Item) {
	names := make([]string, 0, len(rc))
	for name := range rc {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, item := range rc[name] {
			category := strings.ToLower(item.Category)
			switch {
			case category == "flight":
				flights = append(flights, item)
			case category == "hotel":
				hotels = append(hotels, item)
			case category == "weather":
				// Forecast stays in the raw data, it is not schedulable.
			case strings.Contains(category, "restaurant"):
				restaurants = append(restaurants, item)
			case category == "trend" && item.Location == "":
				// Trends without a concrete location cannot be scheduled.
			default:
				kind := activityKind(item)
				activities = append(activities, &activity{
					item:     item,
					kind:     kind,
					priority: activityPriority(item, kind, interests),
					duration: activityDuration(kind),
				})
			}
		}
	}

	sort.SliceStable(activities, func(i, j int) bool {
		return activities[i].priority > activities[j].priority
	})
	return activities, restaurants, flights, hotels
}

// takeDayActivities picks the next day's activities by priority,
// bounded by count and total visit time, and marks them consumed.
func takeDayActivities(activities []*activity) []*activity {
	var selected []*activity
	total := 0
	for _, a := range activities {
		if a.used {
			continue
		}
		if len(selected) >= maxDailyActivities {
			break
		}
		if total+a.duration > maxDailyMinutes {
			continue
		}
		a.used = true
		selected = append(selected, a)
		total += a.duration
	}
	return selected
}

func (b *ItineraryBuilder) buildDay(date time.Time, dayNumber int, selected []*activity, restaurants []research.Item, profile Profile) DayPlan {
	day := DayPlan{
		Date:            date,
		DayNumber:       dayNumber,
		Theme:           dayTheme(selected),
		TotalTravelTime: slotBufferMinutes * len(selected),
		EstimatedCost:   dailyCost(profile.BudgetLevel),
	}

	clock := 9 * 60

	morning := selected
	if len(morning) > 2 {
		morning = morning[:2]
	}
	for _, a := range morning {
		day.Slots = append(day.Slots, activitySlot(a, clock))
		clock += a.duration + slotBufferMinutes
	}

	day.Slots = append(day.Slots, TimeSlot{
		Start:    "12:30",
		End:      "14:00",
		Kind:     "meal",
		Activity: "Lunch",
		Location: restaurantName(restaurants, 0),
		Notes:    "Try local cuisine!",
	})
	clock = 14 * 60

	if len(selected) > 2 {
		for _, a := range selected[2:] {
			day.Slots = append(day.Slots, activitySlot(a, clock))
			clock += a.duration + slotBufferMinutes
		}
	}

	day.Slots = append(day.Slots, TimeSlot{
		Start:    "19:00",
		End:      "20:30",
		Kind:     "meal",
		Activity: "Dinner",
		Location: restaurantName(restaurants, 1),
	})

	return day
}

func activitySlot(a *activity, startMinutes int) TimeSlot {
	return TimeSlot{
		Start:    clockTime(startMinutes),
		End:      clockTime(startMinutes + a.duration),
		Kind:     a.kind,
		Activity: a.item.Title,
		Location: a.item.Location,
		Notes:    a.item.Description,
	}
}

func clockTime(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func restaurantName(restaurants []research.Item, index int) string {
	if index < len(restaurants) {
		return restaurants[index].Title
	}
	return "Local restaurant"
}

// activityKind buckets an item into a schedulable kind by its category.
func activityKind(item research.Item) string {
	category := strings.ToLower(item.Category)
	title := strings.ToLower(item.Title)
	switch {
	case strings.Contains(category, "museum") || strings.Contains(category, "art"):
		return "museum"
	case strings.Contains(category, "park") || strings.Contains(category, "natur"):
		return "park"
	case strings.Contains(category, "beach") || strings.Contains(title, "beach"):
		return "beach"
	case strings.Contains(category, "church") || strings.Contains(category, "temple") ||
		strings.Contains(category, "mosque") || strings.Contains(category, "histor") ||
		strings.Contains(category, "religio") || strings.Contains(category, "landmark"):
		return "landmark"
	case strings.Contains(category, "shop") || strings.Contains(category, "store") ||
		strings.Contains(category, "market"):
		return "shopping"
	case strings.Contains(category, "night"):
		return "nightlife"
	case strings.Contains(category, "cafe"):
		return "cafe"
	case strings.Contains(category, "trend"):
		return "trending"
	default:
		return "attraction"
	}
}

func activityDuration(kind string) int {
	if d, ok := activityDurations[kind]; ok {
		return d
	}
	return defaultActivityDuration
}

// activityPriority scores an item 0-100. Trends ride their vibe score;
// everything else starts from its rating with boosts for matching
// interests and heavy review volume.
func activityPriority(item research.Item, kind string, interests []string) float64 {
	if kind == "trending" {
		if item.Score > 0 {
			return math.Min(item.Score, 100)
		}
		return 50
	}

	rating := item.Rating
	if rating == 0 {
		rating = 3.0
	}
	score := rating * 10

	for _, interest := range interests {
		for _, boosted := range interestKinds[strings.ToLower(interest)] {
			if boosted == kind {
				score += 15
			}
		}
	}

	reviews := metadataInt(item.Metadata, "user_ratings_total")
	switch {
	case reviews > 1000:
		score += 10
	case reviews > 500:
		score += 5
	}

	return math.Min(score, 100)
}

func metadataInt(metadata map[string]interface{}, key string) int {
	switch v := metadata[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func dayTheme(selected []*activity) string {
	if len(selected) == 0 {
		return "Exploration Day"
	}

	counts := make(map[string]int)
	for _, a := range selected {
		counts[a.kind]++
	}

	switch {
	case counts["museum"] >= 2:
		return "Culture & History Day"
	case counts["park"] >= 2 || counts["beach"] >= 1:
		return "Nature & Relaxation Day"
	case counts["shopping"] >= 2:
		return "Shopping & Markets Day"
	case counts["trending"] > 0:
		return "Local Discoveries Day"
	default:
		return "Mixed Adventure Day"
	}
}

func dailyCost(budgetLevel string) float64 {
	if cost, ok := budgetDailyCosts[budgetLevel]; ok {
		return cost
	}
	return budgetDailyCosts["moderate"]
}

func transportFrom(flights []research.Item) *Transport {
	if len(flights) == 0 {
		return nil
	}
	best := flights[0]
	summary := best.Title
	if best.Description != "" {
		summary += ", " + best.Description
	}
	return &Transport{Mode: "flight", Summary: summary, Price: best.Price}
}

func accommodationFrom(hotels []research.Item) *Accommodation {
	if len(hotels) == 0 {
		return nil
	}
	best := hotels[0]
	return &Accommodation{
		Name:   best.Title,
		Rating: best.Rating,
		Price:  best.Price,
		URL:    best.URL,
	}
}

func planTitle(days int, destination string) string {
	if destination == "" {
		return fmt.Sprintf("%d-Day Itinerary", days)
	}
	return fmt.Sprintf("%d-Day %s Itinerary", days, destination)
}

func planSummary(plan *Plan, profile Profile) string {
	totalSlots := 0
	totalCost := 0.0
	for _, day := range plan.Days {
		totalSlots += len(day.Slots)
		totalCost += day.EstimatedCost
	}

	where := plan.Destination
	if where == "" {
		where = "your destination"
	}
	return fmt.Sprintf("%d days in %s on a %s budget: %d scheduled stops, estimated %.0f USD.",
		len(plan.Days), where, profile.BudgetLevel, totalSlots, totalCost)
}

func planTips(profile Profile) []string {
	tips := []string{
		"Book popular attractions in advance to avoid long queues",
		"Keep digital copies of all reservations and important documents",
		"Download offline maps for areas with limited connectivity",
	}

	dietary := append(append([]string{}, profile.DietaryRestrictions...), profile.ReligiousRequirements...)
	if len(dietary) > 0 {
		tips = append(tips, fmt.Sprintf("Look for restaurants catering to %s dietary needs", strings.Join(dietary, ", ")))
	}

	switch profile.BudgetLevel {
	case "budget":
		tips = append(tips, "Consider getting a city pass for discounted attraction entries")
	case "luxury":
		tips = append(tips, "Book restaurants and premium experiences well in advance")
	}

	return tips
}
