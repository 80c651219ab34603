package research

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tripsmith-ai/tripsmith/core"
	"github.com/tripsmith-ai/tripsmith/telemetry"
)

const (
	amadeusDefaultBaseURL = "https://test.api.amadeus.com"
	maxFlightOffers       = 5
)

var iataCode = regexp.MustCompile(`^[A-Z]{3}$`)

// FlightsProvider prices routes through the Amadeus flight offers
// API. It only acts when both ends of the route are IATA airport
// codes; city-name queries are silently skipped so the fan-out is not
// polluted with misses. OAuth tokens are cached until shortly before
// expiry.
type FlightsProvider struct {
	clientID     string
	clientSecret string
	baseURL      string
	httpClient   *http.Client
	logger       core.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewFlightsProvider creates a flight search provider. An empty
// baseURL selects the Amadeus test environment.
func NewFlightsProvider(clientID, clientSecret, baseURL string, logger core.Logger) *FlightsProvider {
	if baseURL == "" {
		baseURL = amadeusDefaultBaseURL
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cl, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cl.WithComponent("planner/research")
	}
	client := telemetry.NewTracedHTTPClient(nil)
	client.Timeout = 20 * time.Second
	return &FlightsProvider{
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   client,
		logger:       logger,
	}
}

// Name implements Provider.
func (f *FlightsProvider) Name() string { return "flights" }

// Search implements Provider.
func (f *FlightsProvider) Search(ctx context.Context, q Query) ([]Item, error) {
	origin := strings.ToUpper(strings.TrimSpace(q.Origin))
	dest := strings.ToUpper(strings.TrimSpace(q.Destination))
	if !iataCode.MatchString(origin) || !iataCode.MatchString(dest) {
		f.logger.Debug("Flight search skipped, route is not airport codes", map[string]interface{}{
			"operation":   "flight_search",
			"origin":      q.Origin,
			"destination": q.Destination,
		})
		return nil, nil
	}

	if f.clientID == "" || f.clientSecret == "" {
		return nil, fmt.Errorf("amadeus credentials not set: %w", core.ErrMissingConfiguration)
	}

	token, err := f.token(ctx)
	if err != nil {
		return nil, err
	}

	departure := q.CheckIn
	if departure.IsZero() {
		departure = time.Now().AddDate(0, 0, 30)
	}
	adults := q.GroupSize
	if adults <= 0 {
		adults = 1
	}

	params := url.Values{
		"originLocationCode":      {origin},
		"destinationLocationCode": {dest},
		"departureDate":           {departure.Format("2006-01-02")},
		"adults":                  {strconv.Itoa(adults)},
		"max":                     {strconv.Itoa(maxFlightOffers)},
	}
	if !q.CheckOut.IsZero() && q.CheckOut.After(departure) {
		params.Set("returnDate", q.CheckOut.Format("2006-01-02"))
	}

	endpoint := f.baseURL + "/v2/shopping/flight-offers?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create flight offers request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("flight offers request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// Token may have been revoked server side. Drop it so the
		// next pass re-authenticates.
		f.mu.Lock()
		f.accessToken = ""
		f.mu.Unlock()
		return nil, fmt.Errorf("amadeus rejected token: %w", core.ErrRequestFailed)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("amadeus returned status %d: %w", resp.StatusCode, core.ErrRequestFailed)
	}

	var body flightOffersResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to parse flight offers: %w", err)
	}

	items := make([]Item, 0, len(body.Data))
	for _, offer := range body.Data {
		price, _ := strconv.ParseFloat(offer.Price.Total, 64)
		confidence, recommendation := priceConfidence(price)

		item := Item{
			Title:    origin + " to " + dest,
			Category: "flight",
			Price:    offer.Price.Total + " " + offer.Price.Currency,
			Metadata: map[string]interface{}{
				"confidence":     confidence,
				"recommendation": recommendation,
				"departure_date": departure.Format("2006-01-02"),
			},
		}
		if len(offer.ValidatingAirlineCodes) > 0 {
			item.Metadata["carrier"] = offer.ValidatingAirlineCodes[0]
		}
		if len(offer.Itineraries) > 0 {
			it := offer.Itineraries[0]
			item.Description = describeItinerary(it.Duration, len(it.Segments))
		}
		items = append(items, item)
	}

	f.logger.Debug("Flight search complete", map[string]interface{}{
		"operation": "flight_search",
		"route":     origin + "-" + dest,
		"offers":    len(items),
	})
	return items, nil
}

// flightOffersResponse is the offers wire format. Amadeus transports
// prices as strings.
type flightOffersResponse struct {
	Data []struct {
		Price struct {
			Total    string `json:"total"`
			Currency string `json:"currency"`
		} `json:"price"`
		Itineraries []struct {
			Duration string `json:"duration"`
			Segments []struct {
				CarrierCode string `json:"carrierCode"`
			} `json:"segments"`
		} `json:"itineraries"`
		ValidatingAirlineCodes []string `json:"validatingAirlineCodes"`
	} `json:"data"`
}

type amadeusTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// token returns a cached OAuth token, re-authenticating when the
// cached one is within 30 seconds of expiry.
func (f *FlightsProvider) token(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.accessToken != "" && time.Now().Before(f.tokenExpiry.Add(-30*time.Second)) {
		return f.accessToken, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {f.clientID},
		"client_secret": {f.clientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		f.baseURL+"/v1/security/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("amadeus auth request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("amadeus auth returned status %d: %w", resp.StatusCode, core.ErrRequestFailed)
	}

	var body amadeusTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to parse amadeus token: %w", err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("amadeus auth returned no token: %w", core.ErrRequestFailed)
	}

	f.accessToken = body.AccessToken
	f.tokenExpiry = time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	return f.accessToken, nil
}

// priceConfidence scores an offer the way a consultant would read it.
func priceConfidence(price float64) (string, string) {
	switch {
	case price <= 0:
		return "Unknown", "Price unavailable for this offer."
	case price < 400:
		return "Great Deal", "Book now! This is an excellent price."
	case price > 800:
		return "High Price", "Consider flexible dates for better prices."
	default:
		return "Fair Price", "Price is average for this route."
	}
}

// describeItinerary renders an ISO 8601 duration and segment count as
// a short human line, e.g. "8h 30m, nonstop".
func describeItinerary(isoDuration string, segments int) string {
	d := strings.TrimPrefix(isoDuration, "PT")
	d = strings.ReplaceAll(d, "H", "h ")
	d = strings.ReplaceAll(d, "M", "m")
	d = strings.TrimSpace(strings.ToLower(d))

	stops := "nonstop"
	switch {
	case segments == 2:
		stops = "1 stop"
	case segments > 2:
		stops = fmt.Sprintf("%d stops", segments-1)
	}

	if d == "" {
		return stops
	}
	return d + ", " + stops
}

var _ Provider = (*FlightsProvider)(nil)
