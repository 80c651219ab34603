package planning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tripsmith-ai/tripsmith/core"
	"github.com/tripsmith-ai/tripsmith/reasoning"
	"github.com/tripsmith-ai/tripsmith/telemetry"
)

// greetings short-circuit profiling entirely. Matched against the
// lower-cased, trimmed input with trailing punctuation stripped.
var greetings = map[string]bool{
	"hi":             true,
	"hello":          true,
	"hey":            true,
	"yo":             true,
	"howdy":          true,
	"good morning":   true,
	"good afternoon": true,
	"good evening":   true,
}

const (
	greetingFollowUp  = "Hi there! Tell me about your dream trip and I'll start planning."
	parseFailFollowUp = "Could you provide more details about your trip?"
)

const profileExtractionPrompt = `Analyze the following user input and extract travel profile information.

User Input: %q

Current Profile State:
%s

Task:
1. Identify any NEW or UPDATED:
   - dietary_restrictions (e.g., vegetarian, vegan)
   - religious_requirements (e.g., halal, kosher)
   - allergies
   - budget_level (budget, moderate, luxury)
   - travel_style (adventure, relaxation, cultural, etc.)
   - group_size
   - interests
   - destination (the city or region the user wants to visit)
2. Merge with the Current Profile State.
3. Highlight what specifically changed.
4. Generate 1-2 relevant follow-up questions if critical info is missing.

Output JSON format ONLY:
{
    "profile": { ...complete profile object... },
    "changes": ["list of fields changed"],
    "follow_up_questions": ["question 1"]
}`

// ProfileStep extracts traveler preferences from a conversational turn.
// Greetings return immediately without consulting reasoning; everything
// else goes through an extraction prompt and merges per the Profile
// rules. Apply holds no state of its own, the prior profile comes from
// the caller each time.
type ProfileStep struct {
	reasoning core.AIClient
	logger    core.Logger
}

// NewProfileStep creates the profiling step.
func NewProfileStep(ai core.AIClient, logger core.Logger) *ProfileStep {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cl, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cl.WithComponent("planner/planning")
	}
	return &ProfileStep{reasoning: ai, logger: logger}
}

// Apply processes one turn of input against the prior profile. The
// returned error is non-nil only when the reasoning transport itself
// fails; unparseable reasoning output degrades to StatusParseFailed
// with the prior profile unchanged.
func (s *ProfileStep) Apply(ctx context.Context, rawInput string, prior Profile) (Profile, Extraction, error) {
	if isGreeting(rawInput) {
		s.logger.Debug("Greeting short-circuit, skipping extraction", map[string]interface{}{
			"operation": "profile_apply",
		})
		telemetry.Counter("planning.profile.applies",
			"module", telemetry.ModulePlanning, "status", StatusGreeted)
		return prior, Extraction{
			Changes:   []string{},
			FollowUps: []string{greetingFollowUp},
			Status:    StatusGreeted,
		}, nil
	}

	priorJSON, err := json.MarshalIndent(prior, "", "  ")
	if err != nil {
		priorJSON = []byte("{}")
	}

	resp, err := s.reasoning.GenerateResponse(ctx, fmt.Sprintf(profileExtractionPrompt, rawInput, priorJSON), nil)
	if err != nil {
		telemetry.Counter("planning.profile.applies",
			"module", telemetry.ModulePlanning, "status", "error")
		return prior, Extraction{}, fmt.Errorf("profile extraction failed: %w", err)
	}

	var payload struct {
		Profile   Profile  `json:"profile"`
		Changes   []string `json:"changes"`
		FollowUps []string `json:"follow_up_questions"`
	}
	if err := reasoning.ParseJSON(resp.Content, &payload); err != nil {
		s.logger.Warn("Unparseable profile extraction, keeping prior profile", map[string]interface{}{
			"operation": "profile_apply",
			"error":     err.Error(),
		})
		telemetry.Counter("planning.profile.applies",
			"module", telemetry.ModulePlanning, "status", StatusParseFailed)
		return prior, Extraction{
			Changes:   []string{},
			FollowUps: []string{parseFailFollowUp},
			Status:    StatusParseFailed,
		}, nil
	}

	merged := prior.Merge(payload.Profile)
	s.logger.Info("Profile updated", map[string]interface{}{
		"operation": "profile_apply",
		"changes":   payload.Changes,
	})
	telemetry.Counter("planning.profile.applies",
		"module", telemetry.ModulePlanning, "status", StatusProfileUpdated)

	return merged, Extraction{
		Changes:   payload.Changes,
		FollowUps: payload.FollowUps,
		Status:    StatusProfileUpdated,
	}, nil
}

// isGreeting reports whether the input is a bare salutation.
func isGreeting(input string) bool {
	normalized := strings.ToLower(strings.TrimSpace(input))
	normalized = strings.TrimRight(normalized, "!?.,")
	normalized = strings.TrimSpace(normalized)
	return greetings[normalized]
}
