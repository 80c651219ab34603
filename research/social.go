package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/tripsmith-ai/tripsmith/core"
	"github.com/tripsmith-ai/tripsmith/telemetry"
)

const (
	apifyDefaultBaseURL = "https://api.apify.com"

	// Actor IDs in REST path form (owner~actor).
	instagramScraperActor = "apify~instagram-scraper"
	tiktokScraperActor    = "clockworks~tiktok-scraper"

	travelPostLimit = 5
	hashtagLimit    = 10
)

// ApifySource fetches social signals through Apify scraper actors.
// Hashtags come from the Instagram scraper, travel posts from the
// TikTok scraper. Without an API token both methods return a small
// canned signal, which keeps the trend loop alive in development.
//
// ApifySource implements SocialSource.
type ApifySource struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     core.Logger
}

// NewApifySource creates a social source. An empty baseURL selects the
// public Apify API.
func NewApifySource(token, baseURL string, logger core.Logger) *ApifySource {
	if baseURL == "" {
		baseURL = apifyDefaultBaseURL
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cl, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cl.WithComponent("planner/research")
	}
	client := telemetry.NewTracedHTTPClient(nil)
	client.Timeout = 60 * time.Second
	return &ApifySource{
		token:      token,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: client,
		logger:     logger,
	}
}

// connected reports whether a usable API token is configured.
func (s *ApifySource) connected() bool {
	return s.token != "" && !strings.Contains(s.token, "placeholder")
}

// apifyHashtagItem is one hashtag record from the Instagram scraper.
type apifyHashtagItem struct {
	Name       string `json:"name"`
	PostsCount int    `json:"postsCount"`
}

// TrendingHashtags implements SocialSource.
func (s *ApifySource) TrendingHashtags(ctx context.Context, location string) ([]Hashtag, error) {
	if !s.connected() {
		return []Hashtag{{Tag: "#" + tagify(location) + "vibes", Count: 5000}}, nil
	}

	input := map[string]interface{}{
		"search":       location,
		"searchType":   "hashtag",
		"resultsLimit": hashtagLimit,
	}
	var out []apifyHashtagItem
	if err := s.runActor(ctx, instagramScraperActor, input, &out); err != nil {
		return nil, err
	}

	hashtags := make([]Hashtag, 0, len(out))
	for _, item := range out {
		if item.Name == "" {
			continue
		}
		tag := item.Name
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		hashtags = append(hashtags, Hashtag{Tag: tag, Count: item.PostsCount})
	}
	return hashtags, nil
}

// apifyPostItem is one post record from the TikTok scraper.
type apifyPostItem struct {
	Text        string `json:"text"`
	WebVideoURL string `json:"webVideoUrl"`
	Hashtags    []struct {
		Name string `json:"name"`
	} `json:"hashtags"`
}

// TravelPosts implements SocialSource.
func (s *ApifySource) TravelPosts(ctx context.Context, location string) ([]Post, error) {
	query := location + " travel guide"
	if !s.connected() {
		return []Post{{
			Title:    "Viral " + query,
			URL:      "http://mock.url/content.jpg",
			Hashtags: []string{"#viral"},
		}}, nil
	}

	input := map[string]interface{}{
		"searchQueries":  []string{query},
		"resultsPerPage": travelPostLimit,
	}
	var out []apifyPostItem
	if err := s.runActor(ctx, tiktokScraperActor, input, &out); err != nil {
		return nil, err
	}

	posts := make([]Post, 0, len(out))
	for _, item := range out {
		post := Post{
			Title: item.Text,
			URL:   item.WebVideoURL,
		}
		for _, h := range item.Hashtags {
			if h.Name == "" {
				continue
			}
			tag := h.Name
			if !strings.HasPrefix(tag, "#") {
				tag = "#" + tag
			}
			post.Hashtags = append(post.Hashtags, tag)
		}
		posts = append(posts, post)
	}
	return posts, nil
}

// runActor starts an actor synchronously and decodes its dataset items.
func (s *ApifySource) runActor(ctx context.Context, actor string, input interface{}, out interface{}) error {
	payload, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("failed to encode actor input: %w", err)
	}

	params := url.Values{"token": {s.token}}
	endpoint := fmt.Sprintf("%s/v2/acts/%s/run-sync-get-dataset-items?%s", s.baseURL, actor, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create actor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("actor run failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("actor %s returned status %d: %w", actor, resp.StatusCode, core.ErrRequestFailed)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse actor output: %w", err)
	}

	s.logger.Debug("Apify actor run complete", map[string]interface{}{
		"operation":   "actor_run",
		"actor":       actor,
		"duration_ms": time.Since(started).Milliseconds(),
	})
	return nil
}

// tagify reduces a location to hashtag form: lowercase alphanumerics
// only.
func tagify(location string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(location) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var _ SocialSource = (*ApifySource)(nil)
