package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tripsmith-ai/tripsmith/core"
	"github.com/tripsmith-ai/tripsmith/reasoning"
)

// ToolCall is the closed set of tools the concierge can dispatch to.
type ToolCall int

const (
	// ToolUnknown covers anything the reasoning service emits outside
	// the known set. Dispatch treats it as a place search.
	ToolUnknown ToolCall = iota
	ToolSearchHotels
	ToolSearchPlaces
)

func (t ToolCall) String() string {
	switch t {
	case ToolSearchHotels:
		return "search_hotels"
	case ToolSearchPlaces:
		return "search_places"
	default:
		return "unknown"
	}
}

// ParseToolCall maps a reasoning tool name onto the closed ToolCall
// set. Unrecognized names map to ToolUnknown rather than an error.
func ParseToolCall(name string) ToolCall {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "search_hotels":
		return ToolSearchHotels
	case "search_places":
		return ToolSearchPlaces
	default:
		return ToolUnknown
	}
}

const conciergePrompt = `You are a luxury travel concierge.
User Query: "%s"
User Profile: %s

Task:
1. Determine if the user wants "accommodation", "restaurant", or "attraction".
2. Decide which tool to use:
   - "search_hotels" for detailed lodging queries.
   - "search_places" for restaurants, attractions, or general queries.
3. Extract arguments.

Output JSON ONLY:
{
    "service_type": "accommodation",
    "tool_call": "search_hotels",
    "arguments": {
        "location": "Paris",
        "checkin_date": "YYYY-MM-DD",
        "checkout_date": "YYYY-MM-DD",
        "budget_max": 200
    }
}
OR
{
    "service_type": "restaurant",
    "tool_call": "search_places",
    "arguments": {
        "location": "Paris",
        "query": "vegan rooftop",
        "price_levels": [1, 2]
    }
}`

// toolDecision is the reasoning wire format for a dispatch decision.
type toolDecision struct {
	ServiceType string        `json:"service_type"`
	Tool        string        `json:"tool_call"`
	Arguments   toolArguments `json:"arguments"`
}

type toolArguments struct {
	Location     string  `json:"location"`
	Query        string  `json:"query"`
	CheckinDate  string  `json:"checkin_date"`
	CheckoutDate string  `json:"checkout_date"`
	BudgetMax    float64 `json:"budget_max"`
	PriceLevels  []int   `json:"price_levels"`
}

// Concierge routes service queries to the right downstream provider.
// One reasoning call classifies the request and extracts arguments;
// the tool name is then narrowed to the closed ToolCall set and the
// matching provider runs with a refined query. Every failure mode of
// the decision step, and any unrecognized tool, falls back to a place
// search so the pass still produces something useful.
type Concierge struct {
	reasoning core.AIClient
	hotels    Provider
	places    Provider
	logger    core.Logger
}

// NewConcierge wires the concierge to its reasoning client and the two
// providers it dispatches between.
func NewConcierge(ai core.AIClient, hotels, places Provider, logger core.Logger) *Concierge {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cl, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cl.WithComponent("planner/research")
	}
	return &Concierge{
		reasoning: ai,
		hotels:    hotels,
		places:    places,
		logger:    logger,
	}
}

// Name implements Provider.
func (c *Concierge) Name() string { return "concierge" }

// Search implements Provider.
func (c *Concierge) Search(ctx context.Context, q Query) ([]Item, error) {
	decision, err := c.decide(ctx, q)
	if err != nil {
		c.logger.Warn("Concierge decision failed, defaulting to place search", map[string]interface{}{
			"operation": "concierge_dispatch",
			"error":     err.Error(),
		})
		return c.places.Search(ctx, q)
	}

	tool := ParseToolCall(decision.Tool)
	refined := refineQuery(q, decision.Arguments)

	c.logger.Debug("Concierge dispatching", map[string]interface{}{
		"operation":    "concierge_dispatch",
		"service_type": decision.ServiceType,
		"tool":         tool.String(),
		"location":     refined.Destination,
	})

	switch tool {
	case ToolSearchHotels:
		return c.hotels.Search(ctx, refined)
	default:
		return c.places.Search(ctx, refined)
	}
}

func (c *Concierge) decide(ctx context.Context, q Query) (*toolDecision, error) {
	profile := map[string]interface{}{}
	if q.Destination != "" {
		profile["destination"] = q.Destination
	}
	if len(q.Interests) > 0 {
		profile["interests"] = q.Interests
	}
	if q.BudgetLevel != "" {
		profile["budget"] = q.BudgetLevel
	}
	if q.GroupSize > 0 {
		profile["group_size"] = q.GroupSize
	}
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		profileJSON = []byte("{}")
	}

	resp, err := c.reasoning.GenerateResponse(ctx, fmt.Sprintf(conciergePrompt, q.Text, profileJSON), nil)
	if err != nil {
		return nil, fmt.Errorf("concierge reasoning failed: %w", err)
	}

	var decision toolDecision
	if err := reasoning.ParseJSON(resp.Content, &decision); err != nil {
		return nil, fmt.Errorf("concierge decision unparseable: %w", err)
	}
	return &decision, nil
}

// refineQuery folds the extracted arguments back into the query the
// downstream provider sees. Absent arguments leave the original values
// in place.
func refineQuery(q Query, args toolArguments) Query {
	if loc := strings.TrimSpace(args.Location); loc != "" {
		q.Destination = loc
	}
	if text := strings.TrimSpace(args.Query); text != "" {
		q.Text = text
	}
	if d, err := time.Parse("2006-01-02", args.CheckinDate); err == nil {
		q.CheckIn = d
	}
	if d, err := time.Parse("2006-01-02", args.CheckoutDate); err == nil {
		q.CheckOut = d
	}
	if level := budgetLevelFor(args); level != "" {
		q.BudgetLevel = level
	}
	return q
}

// budgetLevelFor coarsens numeric budget arguments into the profile
// budget vocabulary. Zero arguments return "" so the caller keeps the
// existing level.
func budgetLevelFor(args toolArguments) string {
	if args.BudgetMax > 0 {
		switch {
		case args.BudgetMax < 100:
			return "budget"
		case args.BudgetMax <= 300:
			return "moderate"
		default:
			return "luxury"
		}
	}
	if len(args.PriceLevels) == 0 {
		return ""
	}
	max := 0
	for _, l := range args.PriceLevels {
		if l > max {
			max = l
		}
	}
	switch {
	case max <= 1:
		return "budget"
	case max <= 2:
		return "moderate"
	default:
		return "luxury"
	}
}

var _ Provider = (*Concierge)(nil)
