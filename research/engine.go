package research

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tripsmith-ai/tripsmith/core"
	"github.com/tripsmith-ai/tripsmith/resilience"
	"github.com/tripsmith-ai/tripsmith/telemetry"
)

// Engine fans a query out to every registered provider and fans the
// results back in. Each provider runs in its own goroutine behind its
// own circuit breaker; one provider failing, timing out or panicking
// never disturbs the others and never fails the research pass itself.
type Engine struct {
	mu        sync.RWMutex
	providers []Provider
	breakers  map[string]core.CircuitBreaker
	cache     core.Memory

	breakerCfg      core.CircuitBreakerConfig
	providerTimeout time.Duration
	maxConcurrency  int
	cacheEnabled    bool
	cacheTTL        time.Duration

	logger    core.Logger
	telemetry core.Telemetry
}

// NewEngine creates a research engine. Providers are added with
// Register. A nil logger is replaced with a no-op logger.
func NewEngine(cfg core.ResearchConfig, logger core.Logger, tel core.Telemetry) *Engine {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cl, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cl.WithComponent("planner/research")
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &Engine{
		providers:       make([]Provider, 0, 8),
		breakers:        make(map[string]core.CircuitBreaker),
		breakerCfg:      cfg.Breaker,
		providerTimeout: cfg.ProviderTimeout,
		cacheEnabled:    cfg.CacheEnabled,
		cacheTTL:        cacheTTL,
		logger:          logger,
		telemetry:       tel,
	}
}

// SetResponseCache attaches a TTL store for provider responses. It
// only takes effect when the research configuration enables caching;
// successful searches are then reused for identical queries until
// they expire. Broadened retries change the query and miss naturally.
func (e *Engine) SetResponseCache(store core.Memory) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = store
}

// SetMaxConcurrency bounds how many providers run at once. Zero or
// negative restores the default, which is one goroutine per provider.
func (e *Engine) SetMaxConcurrency(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.maxConcurrency = n
}

// Register adds a provider to the fan-out set. When circuit breaking
// is enabled each provider gets its own breaker so a flapping source
// is shed without touching the healthy ones.
func (e *Engine) Register(p Provider) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.providers = append(e.providers, p)
	if e.breakerCfg.Enabled {
		e.breakers[p.Name()] = resilience.NewCircuitBreaker(core.CircuitBreakerParams{
			Name:      "research." + p.Name(),
			Config:    e.breakerCfg,
			Logger:    e.logger,
			Telemetry: e.telemetry,
		})
	}
	e.logger.Debug("Research provider registered", map[string]interface{}{
		"operation": "provider_register",
		"provider":  p.Name(),
		"breaker":   e.breakerCfg.Enabled,
	})
}

// Providers returns the names of the registered providers in
// registration order.
func (e *Engine) Providers() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, len(e.providers))
	for i, p := range e.providers {
		names[i] = p.Name()
	}
	return names
}

// Research runs every registered provider against the query and
// collects their results. The returned Context always has one entry
// per provider: failures and panics show up as empty slices, so
// callers can tell "ran and found nothing" apart from "not registered"
// but never have to handle a research-level error.
func (e *Engine) Research(ctx context.Context, q Query) Context {
	e.mu.RLock()
	providers := make([]Provider, len(e.providers))
	copy(providers, e.providers)
	limit := e.maxConcurrency
	e.mu.RUnlock()

	if limit <= 0 || limit > len(providers) {
		limit = len(providers)
	}

	results := make(Context, len(providers))
	for _, p := range providers {
		results[p.Name()] = []Item{}
	}
	if len(providers) == 0 {
		return results
	}

	started := time.Now()
	e.logger.Debug("Starting research fan-out", map[string]interface{}{
		"operation":       "research_fanout",
		"providers":       len(providers),
		"max_concurrency": limit,
		"destination":     q.Destination,
	})

	semaphore := make(chan struct{}, limit)
	var resultsMutex sync.Mutex
	var wg sync.WaitGroup

	for _, p := range providers {
		wg.Add(1)
		go func(p Provider) {
			semaphore <- struct{}{}

			defer func() {
				<-semaphore
				if r := recover(); r != nil {
					e.logger.Error("Research provider panicked", map[string]interface{}{
						"operation": "provider_search",
						"provider":  p.Name(),
						"panic":     fmt.Sprintf("%v", r),
						"stack":     string(debug.Stack()),
					})
					telemetry.Counter("research.provider.panics",
						"module", telemetry.ModuleResearch, "provider", p.Name())
				}
				wg.Done()
			}()

			items := e.searchProvider(ctx, p, q)
			resultsMutex.Lock()
			results[p.Name()] = items
			resultsMutex.Unlock()
		}(p)
	}

	wg.Wait()

	durationMs := time.Since(started).Milliseconds()
	e.logger.Info("Research fan-out complete", map[string]interface{}{
		"operation":   "research_fanout_complete",
		"providers":   len(providers),
		"total_items": results.Total(),
		"duration_ms": durationMs,
	})
	telemetry.Histogram("research.fanout.duration", float64(durationMs),
		"module", telemetry.ModuleResearch)

	return results
}

// searchProvider runs one provider under its timeout and breaker.
// Errors are logged and converted to an empty result.
func (e *Engine) searchProvider(ctx context.Context, p Provider, q Query) []Item {
	started := time.Now()

	if e.providerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.providerTimeout)
		defer cancel()
	}

	e.mu.RLock()
	cb := e.breakers[p.Name()]
	cache := e.cache
	e.mu.RUnlock()

	key := e.cacheKey(p.Name(), q)
	if key != "" && cache != nil {
		if cached, ok := e.cachedResponse(ctx, cache, key); ok {
			e.countCache(p.Name(), "hit")
			return cached
		}
		e.countCache(p.Name(), "miss")
	}

	var items []Item
	search := func() error {
		var err error
		items, err = p.Search(ctx, q)
		return err
	}

	var err error
	if cb != nil {
		err = cb.Execute(ctx, search)
	} else {
		err = search()
	}

	durationMs := time.Since(started).Milliseconds()
	status := "success"
	if err != nil {
		status = "error"
		items = nil
		e.logger.Warn("Research provider failed", map[string]interface{}{
			"operation":   "provider_search",
			"provider":    p.Name(),
			"error":       err.Error(),
			"duration_ms": durationMs,
		})
	} else {
		e.logger.Debug("Research provider complete", map[string]interface{}{
			"operation":   "provider_search",
			"provider":    p.Name(),
			"items":       len(items),
			"duration_ms": durationMs,
		})
	}

	telemetry.Counter("research.provider.searches",
		"module", telemetry.ModuleResearch, "provider", p.Name(), "status", status)
	telemetry.Histogram("research.provider.duration", float64(durationMs),
		"module", telemetry.ModuleResearch, "provider", p.Name())

	if items == nil {
		items = []Item{}
	}
	if err == nil && key != "" && cache != nil {
		e.storeResponse(ctx, cache, key, items)
	}
	return items
}

// cacheKey builds the response cache key for one provider search, or
// returns "" when caching is off or the query has no destination. The
// key covers every field a provider folds into its request, so two
// turns only share an entry when they would fetch the same thing.
func (e *Engine) cacheKey(provider string, q Query) string {
	if !e.cacheEnabled {
		return ""
	}
	dest := strings.ToLower(strings.TrimSpace(q.Destination))
	if dest == "" {
		return ""
	}
	parts := []string{
		dest,
		strings.ToLower(strings.Join(q.Interests, ",")),
		q.BudgetLevel,
		strconv.Itoa(q.GroupSize),
		q.CheckIn.Format("2006-01-02"),
		q.CheckOut.Format("2006-01-02"),
	}
	return "research:" + provider + ":" + strings.Join(parts, "|")
}

// cachedResponse loads a cached search result. Any store error or an
// undecodable entry reads as a miss.
func (e *Engine) cachedResponse(ctx context.Context, cache core.Memory, key string) ([]Item, bool) {
	raw, err := cache.Get(ctx, key)
	if err != nil || raw == "" {
		return nil, false
	}
	var items []Item
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		e.logger.Warn("Dropping undecodable research cache entry", map[string]interface{}{
			"operation": "research_cache",
			"key":       key,
			"error":     err.Error(),
		})
		return nil, false
	}
	return items, true
}

// storeResponse caches a successful search result for cacheTTL.
func (e *Engine) storeResponse(ctx context.Context, cache core.Memory, key string, items []Item) {
	data, err := json.Marshal(items)
	if err != nil {
		return
	}
	if err := cache.Set(ctx, key, string(data), e.cacheTTL); err != nil {
		e.logger.Debug("Research cache write failed", map[string]interface{}{
			"operation": "research_cache",
			"key":       key,
			"error":     err.Error(),
		})
	}
}

func (e *Engine) countCache(provider, result string) {
	telemetry.Counter("research.cache.lookups",
		"module", telemetry.ModuleResearch, "provider", provider, "result", result)
}
