package research

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/tripsmith-ai/tripsmith/core"
	"github.com/tripsmith-ai/tripsmith/telemetry"
)

const (
	weatherDefaultBaseURL = "https://api.openweathermap.org/data/2.5"

	// The free forecast tier covers five days of 3-hourly readings.
	maxForecastDays     = 5
	readingsPerDay      = 8
	defaultForecastDays = 5
)

// WeatherProvider summarizes the multi-day forecast for a destination
// through OpenWeatherMap. Without an API key it produces a
// deterministic static forecast seeded from the city name, so plans
// stay reproducible in development.
type WeatherProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     core.Logger
}

// NewWeatherProvider creates a weather provider. An empty baseURL
// selects the public OpenWeatherMap endpoint.
func NewWeatherProvider(apiKey, baseURL string, logger core.Logger) *WeatherProvider {
	if baseURL == "" {
		baseURL = weatherDefaultBaseURL
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cl, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cl.WithComponent("planner/research")
	}
	client := telemetry.NewTracedHTTPClient(nil)
	client.Timeout = 10 * time.Second
	return &WeatherProvider{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: client,
		logger:     logger,
	}
}

// Name implements Provider.
func (w *WeatherProvider) Name() string { return "weather" }

// connected reports whether a usable API key is configured.
func (w *WeatherProvider) connected() bool {
	return w.apiKey != "" && !strings.Contains(w.apiKey, "your_")
}

// Search implements Provider.
func (w *WeatherProvider) Search(ctx context.Context, q Query) ([]Item, error) {
	city := strings.TrimSpace(q.Destination)
	if city == "" {
		return nil, nil
	}
	days := forecastDays(q)

	if !w.connected() {
		w.logger.Debug("Weather API key not set, using static forecast", map[string]interface{}{
			"operation": "weather_forecast",
			"city":      city,
		})
		return staticForecast(city, days), nil
	}

	params := url.Values{
		"q":     {city},
		"appid": {w.apiKey},
		"units": {"metric"},
		"cnt":   {strconv.Itoa(days * readingsPerDay)},
	}
	endpoint := w.baseURL + "/forecast?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create forecast request: %w", err)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forecast request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather API returned status %d: %w", resp.StatusCode, core.ErrRequestFailed)
	}

	var body forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to parse forecast: %w", err)
	}

	items := aggregateForecast(body, days)
	w.logger.Debug("Weather forecast complete", map[string]interface{}{
		"operation": "weather_forecast",
		"city":      city,
		"days":      len(items),
	})
	return items, nil
}

// forecastDays derives how many days to forecast from the stay dates,
// clamped to what the API tier allows.
func forecastDays(q Query) int {
	days := q.Nights()
	if days == 0 {
		days = defaultForecastDays
	}
	if days < 1 {
		days = 1
	}
	if days > maxForecastDays {
		days = maxForecastDays
	}
	return days
}

// forecastResponse is the 3-hourly forecast wire format.
type forecastResponse struct {
	City struct {
		Name    string `json:"name"`
		Country string `json:"country"`
	} `json:"city"`
	List []struct {
		DtTxt string `json:"dt_txt"`
		Main  struct {
			Temp     float64 `json:"temp"`
			Humidity float64 `json:"humidity"`
		} `json:"main"`
		Weather []struct {
			Description string `json:"description"`
		} `json:"weather"`
		Wind struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
	} `json:"list"`
}

// aggregateForecast folds 3-hourly readings into one item per day.
func aggregateForecast(body forecastResponse, days int) []Item {
	location := body.City.Name
	if body.City.Country != "" {
		location += ", " + body.City.Country
	}

	order := make([]string, 0, days)
	byDate := make(map[string][]int)
	for i, r := range body.List {
		date, _, ok := strings.Cut(r.DtTxt, " ")
		if !ok || date == "" {
			continue
		}
		if _, seen := byDate[date]; !seen {
			order = append(order, date)
		}
		byDate[date] = append(byDate[date], i)
	}
	if len(order) > days {
		order = order[:days]
	}

	items := make([]Item, 0, len(order))
	for _, date := range order {
		idxs := byDate[date]

		tempMin, tempMax := body.List[idxs[0]].Main.Temp, body.List[idxs[0]].Main.Temp
		humiditySum, windMax := 0.0, 0.0
		condCounts := map[string]int{}
		condition := ""
		for _, i := range idxs {
			r := body.List[i]
			if r.Main.Temp < tempMin {
				tempMin = r.Main.Temp
			}
			if r.Main.Temp > tempMax {
				tempMax = r.Main.Temp
			}
			humiditySum += r.Main.Humidity
			if r.Wind.Speed > windMax {
				windMax = r.Wind.Speed
			}
			if len(r.Weather) > 0 {
				desc := r.Weather[0].Description
				condCounts[desc]++
				if condition == "" || condCounts[desc] > condCounts[condition] {
					condition = desc
				}
			}
		}

		condition = capitalizeFirst(condition)
		windKmh := windMax * 3.6
		humidityAvg := int(math.Round(humiditySum / float64(len(idxs))))
		advisory := weatherAdvisory(condition, tempMax)

		items = append(items, forecastItem(date, location, condition, tempMin, tempMax, humidityAvg, windKmh, advisory))
	}
	return items
}

func forecastItem(date, location, condition string, tempMin, tempMax float64, humidityAvg int, windKmh float64, advisory string) Item {
	desc := fmt.Sprintf("%.1f to %.1f C, humidity %d%%, wind up to %.1f km/h", tempMin, tempMax, humidityAvg, windKmh)
	if advisory != "" {
		desc += ". " + advisory
	}
	item := Item{
		Title:       date + ": " + condition,
		Description: desc,
		Category:    "weather",
		Location:    location,
		Metadata: map[string]interface{}{
			"date":         date,
			"condition":    condition,
			"temp_min_c":   round1(tempMin),
			"temp_max_c":   round1(tempMax),
			"humidity_avg": humidityAvg,
			"wind_kmh":     round1(windKmh),
		},
	}
	if advisory != "" {
		item.Metadata["advisory"] = advisory
	}
	return item
}

// weatherAdvisory returns a short advisory when conditions warrant
// one, otherwise "".
func weatherAdvisory(condition string, tempC float64) string {
	cond := strings.ToLower(condition)
	switch {
	case strings.Contains(cond, "thunder"):
		return "Thunderstorms expected, consider indoor alternatives."
	case strings.Contains(cond, "snow") && tempC < 0:
		return "Heavy snow and sub-zero temperatures, dress in layers."
	case strings.Contains(cond, "rain") || strings.Contains(cond, "drizzle"):
		return "Rain in the forecast, bring an umbrella."
	case tempC > 35:
		return "Extreme heat, stay hydrated and seek shade mid-day."
	case tempC < -10:
		return "Extreme cold, limit outdoor exposure."
	}
	return ""
}

var staticConditions = []string{"Sunny", "Partly cloudy", "Cloudy", "Light rain", "Overcast"}

// staticForecast builds a deterministic forecast from the city name,
// starting tomorrow. The same city always gets the same weather.
func staticForecast(city string, days int) []Item {
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(city)))
	seed := int(h.Sum32())

	items := make([]Item, 0, days)
	for i := 0; i < days; i++ {
		condition := staticConditions[(seed+i)%len(staticConditions)]
		tempBase := float64(18 + seed%12 - i)
		tempMin := tempBase - 4 + float64(i%3)
		tempMax := tempBase + 5 - float64(i%2)
		humidity := 55 + (seed+i)%30
		windKmh := float64(8 + (seed+i)%20)
		date := time.Now().AddDate(0, 0, i+1).Format("2006-01-02")
		advisory := weatherAdvisory(condition, tempMax)

		items = append(items, forecastItem(date, city, condition, tempMin, tempMax, humidity, windKmh, advisory))
	}
	return items
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

var _ Provider = (*WeatherProvider)(nil)
