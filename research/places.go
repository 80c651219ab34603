package research

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tripsmith-ai/tripsmith/core"
	"github.com/tripsmith-ai/tripsmith/telemetry"
)

const placesDefaultBaseURL = "https://maps.googleapis.com/maps/api/place"

// PlacesProvider searches restaurants, attractions and other points of
// interest through the Google Places text search API.
type PlacesProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     core.Logger
}

// NewPlacesProvider creates a place search provider. An empty baseURL
// selects the public Places endpoint.
func NewPlacesProvider(apiKey, baseURL string, logger core.Logger) *PlacesProvider {
	if baseURL == "" {
		baseURL = placesDefaultBaseURL
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cl, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cl.WithComponent("planner/research")
	}
	client := telemetry.NewTracedHTTPClient(nil)
	client.Timeout = 15 * time.Second
	return &PlacesProvider{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: client,
		logger:     logger,
	}
}

// Name implements Provider.
func (p *PlacesProvider) Name() string { return "places" }

// placesResponse is the text search wire format.
type placesResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		Name             string   `json:"name"`
		PlaceID          string   `json:"place_id"`
		FormattedAddress string   `json:"formatted_address"`
		Vicinity         string   `json:"vicinity"`
		Rating           float64  `json:"rating"`
		UserRatingsTotal int      `json:"user_ratings_total"`
		PriceLevel       int      `json:"price_level"`
		Types            []string `json:"types"`
	} `json:"results"`
}

// Search implements Provider.
func (p *PlacesProvider) Search(ctx context.Context, q Query) ([]Item, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("places API key not set: %w", core.ErrMissingConfiguration)
	}

	params := url.Values{}
	params.Set("query", buildPlacesQuery(q))
	params.Set("key", p.apiKey)
	applyPriceBounds(params, q.BudgetLevel)

	endpoint := p.baseURL + "/textsearch/json?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create places request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("places request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("places API returned status %d: %w", resp.StatusCode, core.ErrRequestFailed)
	}

	var body placesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to parse places response: %w", err)
	}
	if body.Status != "OK" && body.Status != "ZERO_RESULTS" {
		return nil, fmt.Errorf("places API status %s (%s): %w", body.Status, body.ErrorMessage, core.ErrRequestFailed)
	}

	items := make([]Item, 0, len(body.Results))
	for _, r := range body.Results {
		item := Item{
			Title:    r.Name,
			Location: r.FormattedAddress,
			Rating:   r.Rating,
			Price:    strings.Repeat("$", r.PriceLevel),
		}
		if item.Location == "" {
			item.Location = r.Vicinity
		}
		if len(r.Types) > 0 {
			item.Category = r.Types[0]
		}
		if r.PlaceID != "" {
			item.URL = "https://www.google.com/maps/place/?q=place_id:" + r.PlaceID
			item.Metadata = map[string]interface{}{
				"place_id":           r.PlaceID,
				"user_ratings_total": r.UserRatingsTotal,
			}
		}
		items = append(items, item)
	}

	p.logger.Debug("Place search complete", map[string]interface{}{
		"operation": "place_search",
		"query":     params.Get("query"),
		"results":   len(items),
	})
	return items, nil
}

// buildPlacesQuery assembles the text search query from whatever the
// turn provides, anchoring it to the destination when one is known.
func buildPlacesQuery(q Query) string {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		text = strings.Join(q.Interests, " ")
	}
	if text == "" {
		text = "things to do"
	}
	dest := strings.TrimSpace(q.Destination)
	if dest != "" && !strings.Contains(strings.ToLower(text), strings.ToLower(dest)) {
		text = text + " in " + dest
	}
	return text
}

// applyPriceBounds translates the profile budget level into the price
// band parameters the Places API understands (levels 0 to 4).
func applyPriceBounds(params url.Values, budgetLevel string) {
	switch budgetLevel {
	case "budget":
		params.Set("maxprice", "1")
	case "moderate":
		params.Set("maxprice", "2")
	case "luxury":
		params.Set("minprice", "3")
	}
}

var _ Provider = (*PlacesProvider)(nil)
