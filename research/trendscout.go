package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tripsmith-ai/tripsmith/core"
	"github.com/tripsmith-ai/tripsmith/reasoning"
	"github.com/tripsmith-ai/tripsmith/telemetry"
)

const defaultDiscoveryLocation = "Global"

const broadeningPrompt = `The user is searching for travel trends in '%s', but we found ZERO social media results.
We need a BROADER, more popular related location to search instead.

Examples:
- "SoHo, NY" -> "New York City"
- "Shibuya Crossing" -> "Tokyo"
- "Small Village in Italy" -> "Tuscany"

Return ONLY the new location name. Nothing else.`

const trendSynthesisPrompt = `You are a cool travel trend spotter.
Location: %s

Social Media Posts:
%s

Trending Hashtags:
%s

Task:
1. Identify the top 3 specific activities or locations that are "viral" right now.
2. Give each a "Vibe Score" (1-100).
3. Explain why it is trending (e.g., "Featured in Emily in Paris", "TikTok sunset spot").

Output JSON ONLY:
{
    "trends": [
        {
            "title": "Name of activity/place",
            "trend_score": 95,
            "description": "Why it is cool...",
            "extracted_locations": ["Location Name"]
        }
    ],
    "overall_vibe": "Chill",
    "keywords": ["aesthetic", "coffee"]
}`

// Hashtag is one trending tag with its post volume.
type Hashtag struct {
	Tag   string `json:"hashtag"`
	Count int    `json:"count"`
}

// Post is one social media post about a location.
type Post struct {
	Title    string   `json:"title"`
	URL      string   `json:"url"`
	Hashtags []string `json:"hashtags,omitempty"`
}

// SocialSource supplies the raw social signals TrendScout works from.
type SocialSource interface {
	TrendingHashtags(ctx context.Context, location string) ([]Hashtag, error)
	TravelPosts(ctx context.Context, location string) ([]Post, error)
}

// Discovery is the outcome of one broadening discovery loop.
type Discovery struct {
	// Query is the location that was actually searched. When the loop
	// broadened, this is the last broadened location, not the one the
	// caller asked for.
	Query string `json:"query"`

	Items    []Item `json:"items"`
	RawCount int    `json:"raw_count"`
	Attempts int    `json:"attempts"`

	// Status is StatusSuccess when trends were found, otherwise
	// StatusPartialSuccess. Discovery never fails outright.
	Status string `json:"status"`
}

// TrendScout finds what is currently trending for a location. When a
// location is too narrow to have any social signal, it asks the
// reasoning service for a broader one and retries, up to maxAttempts
// passes. It never returns an error: exhausting the loop yields an
// empty partial-success Discovery.
type TrendScout struct {
	social      SocialSource
	reasoning   core.AIClient
	maxAttempts int
	logger      core.Logger
}

// NewTrendScout creates a trend scout. maxAttempts comes from
// cfg.MaxAttempts, defaulting to 3 when unset.
func NewTrendScout(social SocialSource, ai core.AIClient, cfg core.ResearchConfig, logger core.Logger) *TrendScout {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cl, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cl.WithComponent("planner/research")
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &TrendScout{
		social:      social,
		reasoning:   ai,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Name implements Provider.
func (t *TrendScout) Name() string { return "trends" }

// Search implements Provider by running the discovery loop for the
// query's destination. It never errors; a dry discovery contributes an
// empty slot to the research context.
func (t *TrendScout) Search(ctx context.Context, q Query) ([]Item, error) {
	d := t.Discover(ctx, q.Destination)
	return d.Items, nil
}

// Discover runs the broadening loop for a location. Each pass fetches
// hashtags and posts, broadens the location when both come back empty,
// and otherwise synthesizes a trend report. An empty synthesis also
// broadens. The loop stops after maxAttempts passes; the final pass
// never broadens since there is nothing left to retry with.
func (t *TrendScout) Discover(ctx context.Context, initialQuery string) Discovery {
	location := strings.TrimSpace(initialQuery)
	if location == "" {
		location = defaultDiscoveryLocation
	}

	var items []Item
	rawCount := 0
	attempt := 0

	for attempt < t.maxAttempts {
		attempt++
		t.logger.Debug("Trend discovery attempt", map[string]interface{}{
			"operation":    "trend_discovery",
			"attempt":      attempt,
			"max_attempts": t.maxAttempts,
			"location":     location,
		})

		hashtags, posts := t.fetchSocial(ctx, location)
		rawCount = len(posts)

		if len(hashtags) == 0 && len(posts) == 0 {
			t.logger.Warn("No social data found, broadening search", map[string]interface{}{
				"operation": "trend_discovery",
				"location":  location,
				"attempt":   attempt,
			})
			location = t.broaden(ctx, location, attempt)
			continue
		}

		items = t.synthesize(ctx, location, hashtags, posts)
		if len(items) > 0 {
			break
		}

		t.logger.Warn("Trend synthesis returned no trends, broadening search", map[string]interface{}{
			"operation": "trend_discovery",
			"location":  location,
			"attempt":   attempt,
		})
		location = t.broaden(ctx, location, attempt)
	}

	status := StatusSuccess
	if len(items) == 0 {
		status = StatusPartialSuccess
		items = []Item{}
	}

	t.logger.Info("Trend discovery complete", map[string]interface{}{
		"operation": "trend_discovery_complete",
		"status":    status,
		"attempts":  attempt,
		"trends":    len(items),
		"location":  location,
	})
	telemetry.Counter("research.trends.discoveries",
		"module", telemetry.ModuleResearch, "status", status)

	return Discovery{
		Query:    location,
		Items:    items,
		RawCount: rawCount,
		Attempts: attempt,
		Status:   status,
	}
}

// fetchSocial pulls hashtags and posts for a location. Any error or
// panic empties both so the loop treats the pass as a miss.
func (t *TrendScout) fetchSocial(ctx context.Context, location string) (hashtags []Hashtag, posts []Post) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Social fetch panicked", map[string]interface{}{
				"operation": "social_fetch",
				"location":  location,
				"panic":     fmt.Sprintf("%v", r),
			})
			hashtags, posts = nil, nil
		}
	}()

	hashtags, err := t.social.TrendingHashtags(ctx, location)
	if err != nil {
		t.logger.Error("Failed to fetch social data", map[string]interface{}{
			"operation": "social_fetch",
			"location":  location,
			"error":     err.Error(),
		})
		return nil, nil
	}

	posts, err = t.social.TravelPosts(ctx, location)
	if err != nil {
		t.logger.Error("Failed to fetch social data", map[string]interface{}{
			"operation": "social_fetch",
			"location":  location,
			"error":     err.Error(),
		})
		return nil, nil
	}

	return hashtags, posts
}

// broaden asks the reasoning service for a more popular related
// location. On the final attempt it returns the location unchanged
// without a reasoning call, because the loop has no pass left to use
// the broader term. Reasoning failures also keep the location as is.
func (t *TrendScout) broaden(ctx context.Context, location string, attempt int) string {
	if attempt >= t.maxAttempts {
		return location
	}

	resp, err := t.reasoning.GenerateResponse(ctx, fmt.Sprintf(broadeningPrompt, location), nil)
	if err != nil {
		t.logger.Warn("Broadening query failed, keeping location", map[string]interface{}{
			"operation": "broaden_query",
			"location":  location,
			"error":     err.Error(),
		})
		return location
	}

	broadened := strings.Trim(strings.TrimSpace(resp.Content), `"'`)
	if broadened == "" {
		return location
	}

	t.logger.Info("Broadening search location", map[string]interface{}{
		"operation": "broaden_query",
		"from":      location,
		"to":        broadened,
		"attempt":   attempt,
	})
	return broadened
}

// trendReport is the synthesis wire format.
type trendReport struct {
	Trends []struct {
		Title              string   `json:"title"`
		TrendScore         float64  `json:"trend_score"`
		Description        string   `json:"description"`
		ExtractedLocations []string `json:"extracted_locations"`
	} `json:"trends"`
	OverallVibe string   `json:"overall_vibe"`
	Keywords    []string `json:"keywords"`
}

// synthesize turns raw social data into trend items. Reasoning or
// parse failures return nil so the loop can broaden and retry.
func (t *TrendScout) synthesize(ctx context.Context, location string, hashtags []Hashtag, posts []Post) []Item {
	if len(posts) > 10 {
		posts = posts[:10]
	}
	postsJSON, err := json.Marshal(posts)
	if err != nil {
		postsJSON = []byte("[]")
	}
	hashtagsJSON, err := json.Marshal(hashtags)
	if err != nil {
		hashtagsJSON = []byte("[]")
	}

	prompt := fmt.Sprintf(trendSynthesisPrompt, location, postsJSON, hashtagsJSON)
	resp, err := t.reasoning.GenerateResponse(ctx, prompt, nil)
	if err != nil {
		t.logger.Error("Trend synthesis failed", map[string]interface{}{
			"operation": "trend_synthesis",
			"location":  location,
			"error":     err.Error(),
		})
		return nil
	}

	var report trendReport
	if err := reasoning.ParseJSON(resp.Content, &report); err != nil {
		t.logger.Error("Failed to parse trend synthesis", map[string]interface{}{
			"operation": "trend_synthesis",
			"location":  location,
			"error":     err.Error(),
		})
		return nil
	}

	items := make([]Item, 0, len(report.Trends))
	for _, tr := range report.Trends {
		item := Item{
			Title:       tr.Title,
			Description: tr.Description,
			Category:    "trend",
			Score:       tr.TrendScore,
		}
		if len(tr.ExtractedLocations) > 0 {
			item.Location = tr.ExtractedLocations[0]
			item.Metadata = map[string]interface{}{
				"extracted_locations": tr.ExtractedLocations,
			}
		}
		if report.OverallVibe != "" {
			if item.Metadata == nil {
				item.Metadata = map[string]interface{}{}
			}
			item.Metadata["overall_vibe"] = report.OverallVibe
		}
		items = append(items, item)
	}
	return items
}

var _ Provider = (*TrendScout)(nil)
