package research

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tripsmith-ai/tripsmith/core"
	"github.com/tripsmith-ai/tripsmith/telemetry"
)

const (
	bookingDefaultBaseURL = "https://booking-com15.p.rapidapi.com"
	bookingHost           = "booking-com15.p.rapidapi.com"
	maxHotelResults       = 5
)

// HotelsProvider searches accommodation through the Booking.com
// RapidAPI gateway. The search is a two-step process: resolve the
// location to a destination ID, then fetch properties for it. Without
// an API key, or when the gateway has nothing for the location, a
// small static set keeps the plan populated.
type HotelsProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     core.Logger
}

// NewHotelsProvider creates a hotel search provider. An empty baseURL
// selects the public RapidAPI gateway.
func NewHotelsProvider(apiKey, baseURL string, logger core.Logger) *HotelsProvider {
	if baseURL == "" {
		baseURL = bookingDefaultBaseURL
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cl, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cl.WithComponent("planner/research")
	}
	client := telemetry.NewTracedHTTPClient(nil)
	client.Timeout = 15 * time.Second
	return &HotelsProvider{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: client,
		logger:     logger,
	}
}

// Name implements Provider.
func (h *HotelsProvider) Name() string { return "hotels" }

// connected reports whether a usable API key is configured.
func (h *HotelsProvider) connected() bool {
	return h.apiKey != "" && !strings.Contains(h.apiKey, "placeholder")
}

// Search implements Provider.
func (h *HotelsProvider) Search(ctx context.Context, q Query) ([]Item, error) {
	location := strings.TrimSpace(q.Destination)
	if location == "" {
		return nil, nil
	}

	if !h.connected() {
		h.logger.Debug("Booking API key not set, using static hotels", map[string]interface{}{
			"operation": "hotel_search",
			"location":  location,
		})
		return staticHotels(location), nil
	}

	destID, searchType, err := h.resolveDestination(ctx, location)
	if err != nil {
		return nil, err
	}
	if destID == "" {
		h.logger.Warn("Could not resolve location, using static hotels", map[string]interface{}{
			"operation": "hotel_search",
			"location":  location,
		})
		return staticHotels(location), nil
	}

	items, err := h.fetchProperties(ctx, destID, searchType, q)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		h.logger.Warn("No hotels found, using static hotels", map[string]interface{}{
			"operation": "hotel_search",
			"location":  location,
			"dest_id":   destID,
		})
		return staticHotels(location), nil
	}
	return items, nil
}

// destinationResponse is the location resolution wire format.
type destinationResponse struct {
	Data []struct {
		DestID     string `json:"dest_id"`
		SearchType string `json:"search_type"`
	} `json:"data"`
}

func (h *HotelsProvider) resolveDestination(ctx context.Context, location string) (string, string, error) {
	params := url.Values{"query": {location}}
	var body destinationResponse
	if err := h.get(ctx, "/api/v1/hotels/searchDestination", params, &body); err != nil {
		return "", "", fmt.Errorf("location resolution failed: %w", err)
	}
	if len(body.Data) == 0 {
		return "", "", nil
	}
	return body.Data[0].DestID, body.Data[0].SearchType, nil
}

// propertiesResponse is the hotel search wire format.
type propertiesResponse struct {
	Data struct {
		Hotels []struct {
			Property struct {
				Name           string   `json:"name"`
				ReviewScore    float64  `json:"reviewScore"`
				WishlistName   string   `json:"wishlistName"`
				CountryCode    string   `json:"countryCode"`
				PhotoURLs      []string `json:"photoUrls"`
				PriceBreakdown struct {
					GrossPrice struct {
						Value float64 `json:"value"`
					} `json:"grossPrice"`
				} `json:"priceBreakdown"`
			} `json:"property"`
		} `json:"hotels"`
	} `json:"data"`
}

func (h *HotelsProvider) fetchProperties(ctx context.Context, destID, searchType string, q Query) ([]Item, error) {
	checkin := q.CheckIn
	if checkin.IsZero() {
		checkin = time.Now().AddDate(0, 0, 1)
	}
	checkout := q.CheckOut
	if !checkout.After(checkin) {
		checkout = checkin.AddDate(0, 0, 3)
	}
	adults := q.GroupSize
	if adults <= 0 {
		adults = 2
	}

	params := url.Values{
		"dest_id":        {destID},
		"search_type":    {searchType},
		"arrival_date":   {checkin.Format("2006-01-02")},
		"departure_date": {checkout.Format("2006-01-02")},
		"adults":         {strconv.Itoa(adults)},
		"room_qty":       {"1"},
		"currency_code":  {"USD"},
		"sort_order":     {"popularity"},
	}

	var body propertiesResponse
	if err := h.get(ctx, "/api/v1/hotels/searchHotels", params, &body); err != nil {
		return nil, fmt.Errorf("hotel search failed: %w", err)
	}

	hotels := body.Data.Hotels
	if len(hotels) > maxHotelResults {
		hotels = hotels[:maxHotelResults]
	}

	items := make([]Item, 0, len(hotels))
	for _, hot := range hotels {
		prop := hot.Property
		item := Item{
			Title:    prop.Name,
			Category: "hotel",
			Rating:   prop.ReviewScore,
			Location: prop.WishlistName,
			URL:      bookingLink(prop.CountryCode, prop.Name),
		}
		if item.Location == "" {
			item.Location = q.Destination
		}
		if v := prop.PriceBreakdown.GrossPrice.Value; v > 0 {
			item.Price = fmt.Sprintf("%.0f USD", v)
		}
		if len(prop.PhotoURLs) > 0 {
			item.Metadata = map[string]interface{}{"thumbnail": prop.PhotoURLs[0]}
		}
		items = append(items, item)
	}
	return items, nil
}

func (h *HotelsProvider) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	endpoint := h.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create booking request: %w", err)
	}
	req.Header.Set("x-rapidapi-key", h.apiKey)
	req.Header.Set("x-rapidapi-host", bookingHost)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("booking request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("booking API returned status %d: %w", resp.StatusCode, core.ErrRequestFailed)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse booking response: %w", err)
	}
	return nil
}

func bookingLink(countryCode, name string) string {
	if countryCode == "" {
		countryCode = "us"
	}
	slug := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "-"))
	return fmt.Sprintf("https://www.booking.com/hotel/%s/%s.html", strings.ToLower(countryCode), slug)
}

// staticHotels is the offline result set. It covers the three budget
// tiers so downstream synthesis always has something to recommend.
func staticHotels(location string) []Item {
	return []Item{
		{
			Title:    "Grand Hotel " + location,
			Category: "hotel",
			Price:    "$200/night",
			Rating:   4.5,
			Location: "City Center",
			URL:      "https://booking.com/mock1",
		},
		{
			Title:    location + " Budget Inn",
			Category: "hotel",
			Price:    "$85/night",
			Rating:   3.8,
			Location: "Near Station",
			URL:      "https://booking.com/mock2",
		},
		{
			Title:    "Luxury Resort & Spa",
			Category: "hotel",
			Price:    "$450/night",
			Rating:   4.9,
			Location: "Seaside",
			URL:      "https://booking.com/mock3",
		},
	}
}

var _ Provider = (*HotelsProvider)(nil)
