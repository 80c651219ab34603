package research

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripsmith-ai/tripsmith/core"
)

// mockSocial serves canned signals keyed by location.
type mockSocial struct {
	hashtags map[string][]Hashtag
	posts    map[string][]Post
	err      error
	panicOn  string

	searched []string
}

func (m *mockSocial) TrendingHashtags(ctx context.Context, location string) ([]Hashtag, error) {
	m.searched = append(m.searched, location)
	if m.panicOn != "" && location == m.panicOn {
		panic("scraper exploded")
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.hashtags[location], nil
}

func (m *mockSocial) TravelPosts(ctx context.Context, location string) ([]Post, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.posts[location], nil
}

// mockReasoner discriminates broadening prompts from synthesis prompts
// so tests can count and script each independently.
type mockReasoner struct {
	broadenReplies []string
	broadenErr     error
	broadenCalls   int

	synthReplies []string
	synthCalls   int
}

func (m *mockReasoner) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	if strings.Contains(prompt, "ZERO social media results") {
		m.broadenCalls++
		if m.broadenErr != nil {
			return nil, m.broadenErr
		}
		reply := ""
		if len(m.broadenReplies) > 0 {
			reply = m.broadenReplies[0]
			m.broadenReplies = m.broadenReplies[1:]
		}
		return &core.AIResponse{Content: reply}, nil
	}

	m.synthCalls++
	reply := ""
	if len(m.synthReplies) > 0 {
		reply = m.synthReplies[0]
		m.synthReplies = m.synthReplies[1:]
	}
	return &core.AIResponse{Content: reply}, nil
}

const trendsJSON = `{
  "trends": [
    {"title": "Golden Pavilion at dawn", "trend_score": 92, "description": "Sunrise photo spot all over feeds", "extracted_locations": ["Kinkaku-ji"]},
    {"title": "Nishiki Market street food", "trend_score": 85, "description": "Skewer stalls going viral", "extracted_locations": []}
  ],
  "overall_vibe": "Serene",
  "keywords": ["temples", "street food"]
}`

func kyotoSignals() *mockSocial {
	return &mockSocial{
		hashtags: map[string][]Hashtag{
			"Kyoto": {{Tag: "#kyoto", Count: 12000}},
		},
		posts: map[string][]Post{
			"Kyoto": {
				{Title: "Kyoto hidden temples", URL: "https://example.com/1"},
				{Title: "Kyoto street food crawl", URL: "https://example.com/2"},
			},
		},
	}
}

func TestTrendScoutDiscover_FirstPassSuccess(t *testing.T) {
	social := kyotoSignals()
	ai := &mockReasoner{synthReplies: []string{trendsJSON}}
	scout := NewTrendScout(social, ai, testResearchConfig(), nil)

	d := scout.Discover(context.Background(), "Kyoto")

	assert.Equal(t, StatusSuccess, d.Status)
	assert.Equal(t, "Kyoto", d.Query)
	assert.Equal(t, 1, d.Attempts)
	assert.Equal(t, 2, d.RawCount)
	assert.Equal(t, 0, ai.broadenCalls)
	require.Len(t, d.Items, 2)
	assert.Equal(t, "Golden Pavilion at dawn", d.Items[0].Title)
	assert.Equal(t, "trend", d.Items[0].Category)
	assert.Equal(t, 92.0, d.Items[0].Score)
	assert.Equal(t, "Kinkaku-ji", d.Items[0].Location)
	assert.Equal(t, "Serene", d.Items[0].Metadata["overall_vibe"])
}

func TestTrendScoutDiscover_BroadensThenSucceeds(t *testing.T) {
	social := &mockSocial{
		hashtags: map[string][]Hashtag{"Tokyo": {{Tag: "#tokyo", Count: 90000}}},
		posts:    map[string][]Post{"Tokyo": {{Title: "Tokyo at night"}}},
	}
	ai := &mockReasoner{
		broadenReplies: []string{"Tokyo"},
		synthReplies:   []string{trendsJSON},
	}
	scout := NewTrendScout(social, ai, testResearchConfig(), nil)

	d := scout.Discover(context.Background(), "Shibuya Crossing")

	assert.Equal(t, StatusSuccess, d.Status)
	assert.Equal(t, "Tokyo", d.Query)
	assert.Equal(t, 2, d.Attempts)
	assert.Equal(t, 1, ai.broadenCalls)
	assert.Equal(t, []string{"Shibuya Crossing", "Tokyo"}, social.searched)
	assert.NotEmpty(t, d.Items)
}

func TestTrendScoutDiscover_ExhaustsAttempts(t *testing.T) {
	social := &mockSocial{}
	ai := &mockReasoner{broadenReplies: []string{"Region A", "Region B", "Region C"}}
	scout := NewTrendScout(social, ai, testResearchConfig(), nil)

	d := scout.Discover(context.Background(), "Nowhere Hamlet")

	assert.Equal(t, StatusPartialSuccess, d.Status)
	assert.Equal(t, 3, d.Attempts)
	require.NotNil(t, d.Items)
	assert.Len(t, d.Items, 0)
	assert.Equal(t, 0, d.RawCount)
	// The final attempt never consults the broadener: there is no pass
	// left that could use the broader location.
	assert.Equal(t, 2, ai.broadenCalls)
	assert.Equal(t, "Region B", d.Query)
	assert.Equal(t, []string{"Nowhere Hamlet", "Region A", "Region B"}, social.searched)
	assert.Equal(t, 0, ai.synthCalls)
}

func TestTrendScoutDiscover_SocialErrorTreatedAsEmpty(t *testing.T) {
	social := &mockSocial{err: errors.New("scraper quota exceeded")}
	ai := &mockReasoner{broadenReplies: []string{"Paris", "France"}}
	scout := NewTrendScout(social, ai, testResearchConfig(), nil)

	d := scout.Discover(context.Background(), "Le Marais")

	assert.Equal(t, StatusPartialSuccess, d.Status)
	assert.Equal(t, 3, d.Attempts)
	assert.Len(t, d.Items, 0)
	assert.Equal(t, 2, ai.broadenCalls)
}

func TestTrendScoutDiscover_SocialPanicTreatedAsEmpty(t *testing.T) {
	social := &mockSocial{
		panicOn:  "Shibuya Crossing",
		hashtags: map[string][]Hashtag{"Tokyo": {{Tag: "#tokyo", Count: 90000}}},
		posts:    map[string][]Post{"Tokyo": {{Title: "Tokyo at night"}}},
	}
	ai := &mockReasoner{
		broadenReplies: []string{"Tokyo"},
		synthReplies:   []string{trendsJSON},
	}
	scout := NewTrendScout(social, ai, testResearchConfig(), nil)

	d := scout.Discover(context.Background(), "Shibuya Crossing")

	assert.Equal(t, StatusSuccess, d.Status)
	assert.Equal(t, 2, d.Attempts)
	assert.Equal(t, "Tokyo", d.Query)
}

func TestTrendScoutDiscover_EmptySynthesisBroadens(t *testing.T) {
	social := &mockSocial{
		hashtags: map[string][]Hashtag{
			"Brooklyn":      {{Tag: "#brooklyn", Count: 800}},
			"New York City": {{Tag: "#nyc", Count: 200000}},
		},
		posts: map[string][]Post{
			"Brooklyn":      {{Title: "Brooklyn coffee"}},
			"New York City": {{Title: "NYC rooftops"}},
		},
	}
	ai := &mockReasoner{
		broadenReplies: []string{"New York City"},
		synthReplies:   []string{`{"trends": []}`, trendsJSON},
	}
	scout := NewTrendScout(social, ai, testResearchConfig(), nil)

	d := scout.Discover(context.Background(), "Brooklyn")

	assert.Equal(t, StatusSuccess, d.Status)
	assert.Equal(t, "New York City", d.Query)
	assert.Equal(t, 2, d.Attempts)
	assert.Equal(t, 1, ai.broadenCalls)
	assert.Equal(t, 2, ai.synthCalls)
}

func TestTrendScoutDiscover_UnparseableSynthesisBroadens(t *testing.T) {
	social := &mockSocial{
		hashtags: map[string][]Hashtag{
			"Brooklyn":      {{Tag: "#brooklyn", Count: 800}},
			"New York City": {{Tag: "#nyc", Count: 200000}},
		},
		posts: map[string][]Post{
			"Brooklyn":      {{Title: "Brooklyn coffee"}},
			"New York City": {{Title: "NYC rooftops"}},
		},
	}
	ai := &mockReasoner{
		broadenReplies: []string{"New York City"},
		synthReplies:   []string{"honestly the vibes are great", trendsJSON},
	}
	scout := NewTrendScout(social, ai, testResearchConfig(), nil)

	d := scout.Discover(context.Background(), "Brooklyn")

	assert.Equal(t, StatusSuccess, d.Status)
	assert.Equal(t, 2, d.Attempts)
	assert.Equal(t, 1, ai.broadenCalls)
}

func TestTrendScoutDiscover_BroadeningFailureKeepsLocation(t *testing.T) {
	social := &mockSocial{}
	ai := &mockReasoner{broadenErr: errors.New("reasoning offline")}
	scout := NewTrendScout(social, ai, testResearchConfig(), nil)

	d := scout.Discover(context.Background(), "Atlantis")

	assert.Equal(t, StatusPartialSuccess, d.Status)
	assert.Equal(t, "Atlantis", d.Query)
	assert.Equal(t, []string{"Atlantis", "Atlantis", "Atlantis"}, social.searched)
}

func TestTrendScoutDiscover_StripsQuotesFromBroadenedLocation(t *testing.T) {
	social := &mockSocial{}
	ai := &mockReasoner{broadenReplies: []string{`"Tokyo"`, "Japan"}}
	scout := NewTrendScout(social, ai, testResearchConfig(), nil)

	scout.Discover(context.Background(), "Shibuya Crossing")

	require.GreaterOrEqual(t, len(social.searched), 2)
	assert.Equal(t, "Tokyo", social.searched[1])
}

func TestTrendScoutDiscover_DefaultLocation(t *testing.T) {
	social := &mockSocial{}
	ai := &mockReasoner{}
	scout := NewTrendScout(social, ai, testResearchConfig(), nil)

	scout.Discover(context.Background(), "   ")

	require.NotEmpty(t, social.searched)
	assert.Equal(t, "Global", social.searched[0])
}

func TestTrendScoutSearch_NeverErrors(t *testing.T) {
	scout := NewTrendScout(&mockSocial{}, &mockReasoner{}, testResearchConfig(), nil)

	items, err := scout.Search(context.Background(), Query{Destination: "Nowhere"})

	assert.NoError(t, err)
	assert.NotNil(t, items)
	assert.Len(t, items, 0)
	assert.Equal(t, "trends", scout.Name())
}

func TestTrendScoutDiscover_PostsCappedAtTen(t *testing.T) {
	posts := make([]Post, 15)
	for i := range posts {
		posts[i] = Post{Title: "post"}
	}
	social := &mockSocial{
		hashtags: map[string][]Hashtag{"Kyoto": {{Tag: "#kyoto", Count: 100}}},
		posts:    map[string][]Post{"Kyoto": posts},
	}
	ai := &mockReasoner{synthReplies: []string{trendsJSON}}
	scout := NewTrendScout(social, ai, testResearchConfig(), nil)

	d := scout.Discover(context.Background(), "Kyoto")

	// RawCount reflects everything fetched even though synthesis only
	// sees the first ten posts.
	assert.Equal(t, 15, d.RawCount)
	assert.Equal(t, StatusSuccess, d.Status)
}
