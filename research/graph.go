package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/tripsmith-ai/tripsmith/core"
	"github.com/tripsmith-ai/tripsmith/resilience"
)

const graphResultLimit = 10

// categoryKeywords maps words in the message and interests onto the
// category labels the destination graph is modeled with. Order is the
// match priority.
var categoryKeywords = []struct {
	keyword  string
	category string
}{
	{"museum", "MUSEUM"},
	{"art", "MUSEUM"},
	{"history", "HISTORICAL"},
	{"historical", "HISTORICAL"},
	{"ancient", "HISTORICAL"},
	{"beach", "BEACH"},
	{"coast", "BEACH"},
	{"ocean", "BEACH"},
	{"mountain", "MOUNTAIN"},
	{"hiking", "MOUNTAIN"},
	{"nature", "NATURE"},
	{"park", "NATURE"},
	{"wildlife", "NATURE"},
	{"food", "CULINARY"},
	{"restaurant", "CULINARY"},
	{"cuisine", "CULINARY"},
	{"nightlife", "NIGHTLIFE"},
	{"bar", "NIGHTLIFE"},
	{"club", "NIGHTLIFE"},
	{"shopping", "SHOPPING"},
	{"market", "SHOPPING"},
	{"temple", "RELIGIOUS"},
	{"church", "RELIGIOUS"},
	{"mosque", "RELIGIOUS"},
	{"spiritual", "RELIGIOUS"},
}

// budgetPriceRanges maps profile budget levels onto the graph's price
// tier property.
var budgetPriceRanges = map[string][]string{
	"budget":   {"$"},
	"moderate": {"$", "$$"},
	"luxury":   {"$$", "$$$"},
}

const popularDestinationsQuery = `
MATCH (d:Destination)
RETURN d.name AS name, d.category AS category, d.rating AS rating,
       d.description AS description
ORDER BY d.rating DESC, d.popularity DESC
LIMIT $limit`

// GraphProvider answers destination queries from the Neo4j knowledge
// graph. Destinations carry a category, rating and price tier and hang
// off regions via IN_REGION, so one parameterized match covers
// category, region and budget filtering.
type GraphProvider struct {
	cfg    core.Neo4jConfig
	driver neo4j.DriverWithContext
	logger core.Logger
}

// NewGraphProvider creates a destination graph provider. Connect must
// be called before the first search.
func NewGraphProvider(cfg core.Neo4jConfig, logger core.Logger) *GraphProvider {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cl, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cl.WithComponent("planner/research")
	}
	return &GraphProvider{cfg: cfg, logger: logger}
}

// Connect establishes the driver and verifies connectivity, retrying
// with backoff so a graph that is still starting up does not fail the
// whole assembly.
func (g *GraphProvider) Connect(ctx context.Context) error {
	if g.cfg.URI == "" {
		return fmt.Errorf("neo4j URI not set: %w", core.ErrMissingConfiguration)
	}

	driver, err := neo4j.NewDriverWithContext(
		g.cfg.URI,
		neo4j.BasicAuth(g.cfg.Username, g.cfg.Password, ""),
		func(c *neo4j.Config) {
			c.MaxConnectionPoolSize = 25
			c.ConnectionAcquisitionTimeout = 30 * time.Second
		},
	)
	if err != nil {
		return fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if err := resilience.Retry(ctx, resilience.DefaultRetryConfig(), func() error {
		return driver.VerifyConnectivity(ctx)
	}); err != nil {
		_ = driver.Close(ctx)
		return fmt.Errorf("failed to connect to neo4j at %s: %w", g.cfg.URI, err)
	}

	g.driver = driver
	g.logger.Info("Connected to destination graph", map[string]interface{}{
		"operation": "graph_connect",
		"uri":       g.cfg.URI,
		"database":  g.cfg.Database,
	})
	return nil
}

// Close releases the driver.
func (g *GraphProvider) Close(ctx context.Context) error {
	if g.driver == nil {
		return nil
	}
	err := g.driver.Close(ctx)
	g.driver = nil
	return err
}

// Name implements Provider.
func (g *GraphProvider) Name() string { return "destinations" }

// Search implements Provider. Filters are derived from the query: any
// matched category keywords, the destination as a region filter, and
// the budget level as a price tier band. With no filters at all it
// falls back to the overall most popular destinations.
func (g *GraphProvider) Search(ctx context.Context, q Query) ([]Item, error) {
	if g.driver == nil {
		return nil, fmt.Errorf("destination graph: %w", core.ErrNotInitialized)
	}

	categories := matchCategories(q)
	cypher, params := destinationQuery(categories, strings.TrimSpace(q.Destination), q.BudgetLevel)

	items, err := g.query(ctx, cypher, params)
	if err != nil {
		return nil, err
	}

	g.logger.Debug("Destination graph search complete", map[string]interface{}{
		"operation":  "graph_search",
		"categories": categories,
		"results":    len(items),
	})
	return items, nil
}

func (g *GraphProvider) query(ctx context.Context, cypher string, params map[string]any) ([]Item, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: g.cfg.Database})
	defer session.Close(ctx)

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("graph query failed: %w", err)
	}
	return itemsFromRecords(records.([]*neo4j.Record)), nil
}

// destinationQuery assembles the parameterized match for the given
// filters. An empty filter set selects the popularity query instead.
func destinationQuery(categories []string, location, budget string) (string, map[string]any) {
	params := map[string]any{"limit": graphResultLimit}
	var conditions []string

	if len(categories) > 0 {
		conditions = append(conditions, "d.category IN $categories")
		params["categories"] = categories
	}
	if location != "" {
		conditions = append(conditions, "(r.name CONTAINS $location OR d.name CONTAINS $location)")
		params["location"] = location
	}
	if ranges, ok := budgetPriceRanges[budget]; ok {
		conditions = append(conditions, "d.price_range IN $price_ranges")
		params["price_ranges"] = ranges
	}

	if len(conditions) == 0 {
		return popularDestinationsQuery, params
	}

	cypher := fmt.Sprintf(`
MATCH (d:Destination)
OPTIONAL MATCH (d)-[:IN_REGION]->(r:Region)
WHERE %s
RETURN d.name AS name, d.category AS category, d.rating AS rating,
       d.description AS description, r.name AS region
ORDER BY d.rating DESC
LIMIT $limit`, strings.Join(conditions, " AND "))
	return cypher, params
}

// matchCategories scans the interests and message for category
// keywords, first match per category wins.
func matchCategories(q Query) []string {
	seen := make(map[string]bool)
	var categories []string
	scan := func(text string) {
		text = strings.ToLower(text)
		for _, kc := range categoryKeywords {
			if strings.Contains(text, kc.keyword) && !seen[kc.category] {
				seen[kc.category] = true
				categories = append(categories, kc.category)
			}
		}
	}
	for _, interest := range q.Interests {
		scan(interest)
	}
	scan(q.Text)
	return categories
}

// itemsFromRecords converts raw graph records into research items.
// Ratings may be stored as integers or floats.
func itemsFromRecords(records []*neo4j.Record) []Item {
	items := make([]Item, 0, len(records))
	for _, rec := range records {
		m := rec.AsMap()
		item := Item{}
		if v, ok := m["name"].(string); ok {
			item.Title = v
		}
		if v, ok := m["category"].(string); ok {
			item.Category = v
		}
		if v, ok := m["description"].(string); ok {
			item.Description = v
		}
		if v, ok := m["region"].(string); ok {
			item.Location = v
		}
		switch v := m["rating"].(type) {
		case float64:
			item.Rating = v
		case int64:
			item.Rating = float64(v)
		}
		if item.Title == "" {
			continue
		}
		items = append(items, item)
	}
	return items
}

var _ Provider = (*GraphProvider)(nil)
