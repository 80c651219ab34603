// Package planning turns a conversation into a trip: it maintains the
// traveler profile across turns and synthesizes research results into
// a day-by-day itinerary.
//
// The profile is rebuilt from caller-supplied context on every request
// and merged with whatever the current message adds. Nothing in this
// package holds state between calls.
package planning

import (
	"encoding/json"
)

// Profile statuses reported by ProfileStep.Apply.
const (
	StatusGreeted        = "greeted"
	StatusProfileUpdated = "profile_updated"
	StatusParseFailed    = "parse_failed"
)

// Profile is a traveler's accumulated preferences. List fields merge
// as set unions across turns; scalar fields are last-write-wins.
type Profile struct {
	DietaryRestrictions   []string `json:"dietary_restrictions"`
	ReligiousRequirements []string `json:"religious_requirements"`
	Allergies             []string `json:"allergies"`
	AccessibilityNeeds    []string `json:"accessibility_needs"`
	Interests             []string `json:"interests"`
	LanguagePreferences   []string `json:"language_preferences"`
	BudgetLevel           string   `json:"budget_level"`
	TravelStyle           string   `json:"travel_style"`
	GroupSize             int      `json:"group_size"`
	Destination           string   `json:"destination,omitempty"`
}

// NewProfile returns a profile with the standard defaults.
func NewProfile() Profile {
	return Profile{
		DietaryRestrictions:   []string{},
		ReligiousRequirements: []string{},
		Allergies:             []string{},
		AccessibilityNeeds:    []string{},
		Interests:             []string{},
		LanguagePreferences:   []string{"English"},
		BudgetLevel:           "moderate",
		TravelStyle:           "balanced",
		GroupSize:             1,
	}
}

// Merge folds an update into the profile and returns the result. List
// fields union without duplicates, keeping first-seen order. Scalars
// take the update's value when it is set and keep the prior one when
// the update left it empty.
func (p Profile) Merge(update Profile) Profile {
	merged := p

	merged.DietaryRestrictions = unionStrings(p.DietaryRestrictions, update.DietaryRestrictions)
	merged.ReligiousRequirements = unionStrings(p.ReligiousRequirements, update.ReligiousRequirements)
	merged.Allergies = unionStrings(p.Allergies, update.Allergies)
	merged.AccessibilityNeeds = unionStrings(p.AccessibilityNeeds, update.AccessibilityNeeds)
	merged.Interests = unionStrings(p.Interests, update.Interests)
	merged.LanguagePreferences = unionStrings(p.LanguagePreferences, update.LanguagePreferences)

	if update.BudgetLevel != "" {
		merged.BudgetLevel = update.BudgetLevel
	}
	if update.TravelStyle != "" {
		merged.TravelStyle = update.TravelStyle
	}
	if update.GroupSize > 0 {
		merged.GroupSize = update.GroupSize
	}
	if update.Destination != "" {
		merged.Destination = update.Destination
	}
	return merged
}

// ParseProfile rebuilds a profile from a request-context value. It
// accepts a Profile, a *Profile, or the map shape a JSON transport
// delivers; anything else yields the defaults.
func ParseProfile(v interface{}) Profile {
	switch value := v.(type) {
	case Profile:
		return NewProfile().Merge(value)
	case *Profile:
		if value == nil {
			return NewProfile()
		}
		return NewProfile().Merge(*value)
	case map[string]interface{}:
		raw, err := json.Marshal(value)
		if err != nil {
			return NewProfile()
		}
		var parsed Profile
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return NewProfile()
		}
		return NewProfile().Merge(parsed)
	default:
		return NewProfile()
	}
}

// Extraction reports what a ProfileStep.Apply call did.
type Extraction struct {
	Changes   []string `json:"changes"`
	FollowUps []string `json:"follow_up_questions"`
	Status    string   `json:"status"`
}

func unionStrings(existing, add []string) []string {
	if len(add) == 0 {
		return existing
	}
	seen := make(map[string]bool, len(existing)+len(add))
	merged := make([]string, 0, len(existing)+len(add))
	for _, s := range existing {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		merged = append(merged, s)
	}
	for _, s := range add {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		merged = append(merged, s)
	}
	return merged
}
