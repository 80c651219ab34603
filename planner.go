// Package tripsmith assembles the trip planning runtime from its
// submodules and exposes the operations a host process needs: running
// conversational turns, persisting itineraries, polling background
// tasks, and serving the latest plan for a session.
//
// Programs that only need a slice of the planner should import the
// submodules directly:
//   - github.com/tripsmith-ai/tripsmith/core - configuration, logging, task contracts
//   - github.com/tripsmith-ai/tripsmith/orchestration - the turn loop and task subsystem
//   - github.com/tripsmith-ai/tripsmith/research - the provider fan-out
package tripsmith

import (
	"context"
	"fmt"

	"github.com/tripsmith-ai/tripsmith/core"
	"github.com/tripsmith-ai/tripsmith/internal/session"
	"github.com/tripsmith-ai/tripsmith/media"
	"github.com/tripsmith-ai/tripsmith/orchestration"
	"github.com/tripsmith-ai/tripsmith/planning"
	"github.com/tripsmith-ai/tripsmith/reasoning"
	"github.com/tripsmith-ai/tripsmith/research"
	"github.com/tripsmith-ai/tripsmith/resilience"
	"github.com/tripsmith-ai/tripsmith/storage"
	"github.com/tripsmith-ai/tripsmith/telemetry"
)

// Planner is the assembled runtime. Construct it with New, run turns
// with Run, and release its connections with Close. All methods are
// safe for concurrent use.
type Planner struct {
	cfg    *core.Config
	logger core.Logger

	orchestrator *orchestration.Orchestrator
	itineraries  storage.ItineraryStore
	tasks        core.TaskStore
	workers      core.TaskWorker
	cache        orchestration.SessionPlanCache
	sessions     *session.Manager

	telemetry  *telemetry.Provider
	graph      *research.GraphProvider
	concepts   *media.GeminiConcepts
	tasksRedis *core.RedisClient
	cacheRedis *core.RedisClient
}

// New assembles a planner from the configuration. A nil cfg loads
// defaults and environment overrides via core.NewConfig. Subsystems
// the configuration enables must come up for New to succeed, with one
// exception: the advisory plan cache degrades to absent when its
// Redis is unreachable, because every read through it falls back to
// the itinerary store anyway.
func New(ctx context.Context, cfg *core.Config) (*Planner, error) {
	if cfg == nil {
		loaded, err := core.NewConfig()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := core.NewProductionLogger(cfg.Logging, cfg.Development, cfg.Name)
	p := &Planner{
		cfg:      cfg,
		logger:   logger,
		sessions: session.NewManager(0, logger),
	}

	assembled := false
	defer func() {
		if !assembled {
			_ = p.Close(context.Background())
		}
	}()

	var tel core.Telemetry
	if cfg.Telemetry.Enabled {
		provider, err := telemetry.NewProvider(ctx, cfg.Telemetry, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		p.telemetry = provider
		tel = provider
		if tl, ok := logger.(interface{ SetTelemetry(core.Telemetry) }); ok {
			tl.SetTelemetry(provider)
		}
	}

	ai, err := buildReasoning(cfg, logger, tel)
	if err != nil {
		return nil, err
	}

	if err := p.buildStorage(ctx); err != nil {
		return nil, err
	}

	engine := p.buildResearch(ctx, ai, tel)

	executor, err := p.buildTasks(ctx, tel)
	if err != nil {
		return nil, err
	}

	p.buildPlanCache()

	p.orchestrator = orchestration.NewOrchestrator(orchestration.OrchestratorOptions{
		Profiler:    planning.NewProfileStep(ai, logger),
		Research:    engine,
		Builder:     planning.NewItineraryBuilder(logger),
		Executor:    executor,
		Cache:       p.cache,
		Itineraries: p.itineraries,
		Logger:      logger,
	})

	logger.Info("Planner assembled", map[string]interface{}{
		"operation": "planner_new",
		"task_mode": cfg.Tasks.Mode,
		"storage":   cfg.Storage.Provider,
		"providers": engine.Providers(),
		"media":     executor != nil,
		"cache":     p.cache != nil,
	})

	assembled = true
	return p, nil
}

// buildReasoning creates the reasoning client. With reasoning disabled
// or mocked for development the canned client serves instead, so the
// profile step always has something to call.
func buildReasoning(cfg *core.Config, logger core.Logger, tel core.Telemetry) (core.AIClient, error) {
	reasoningCfg := cfg.Reasoning
	if !reasoningCfg.Enabled || cfg.Development.MockReasoning {
		reasoningCfg.Provider = "mock"
	}
	ai, err := reasoning.FromConfig(reasoningCfg, logger, tel)
	if err != nil {
		return nil, fmt.Errorf("failed to create reasoning client: %w", err)
	}
	return ai, nil
}

// buildStorage selects the itinerary store. Anything but "postgres"
// falls back to the in-memory store.
func (p *Planner) buildStorage(ctx context.Context) error {
	switch p.cfg.Storage.Provider {
	case "postgres":
		store, err := storage.NewPostgresStore(ctx, p.cfg.Storage.PostgresDSN, p.logger)
		if err != nil {
			return fmt.Errorf("failed to open itinerary storage: %w", err)
		}
		p.itineraries = store
	default:
		if p.cfg.Storage.Provider != "" && p.cfg.Storage.Provider != "memory" {
			p.logger.Warn("Unknown storage provider, using in-memory store", map[string]interface{}{
				"operation": "planner_new",
				"provider":  p.cfg.Storage.Provider,
			})
		}
		p.itineraries = storage.NewMemoryStore(p.logger)
	}
	return nil
}

// buildResearch assembles the fan-out engine. Weather, hotels, and
// trends always register because they carry their own static
// fallbacks; places and flights only register with credentials; the
// destination graph registers when it connects, and stays out of the
// set with a warning when it does not.
func (p *Planner) buildResearch(ctx context.Context, ai core.AIClient, tel core.Telemetry) *research.Engine {
	cfg := p.cfg.Research
	keys := cfg.Providers

	engine := research.NewEngine(cfg, p.logger, tel)
	if cfg.CacheEnabled {
		engine.SetResponseCache(core.NewMemoryStore())
	}

	if cfg.Neo4j.URI != "" {
		graph := research.NewGraphProvider(cfg.Neo4j, p.logger)
		if err := graph.Connect(ctx); err != nil {
			p.logger.Warn("Destination graph unavailable, researching without it", map[string]interface{}{
				"operation": "planner_new",
				"uri":       cfg.Neo4j.URI,
				"error":     err.Error(),
			})
		} else {
			p.graph = graph
			engine.Register(graph)
		}
	}

	var places research.Provider
	if keys.PlacesAPIKey != "" {
		pp := research.NewPlacesProvider(keys.PlacesAPIKey, "", p.logger)
		places = pp
		engine.Register(pp)
	}

	hotels := research.NewHotelsProvider(keys.HotelsAPIKey, "", p.logger)
	engine.Register(hotels)

	if keys.FlightsClientID != "" && keys.FlightsClientSecret != "" {
		engine.Register(research.NewFlightsProvider(keys.FlightsClientID, keys.FlightsClientSecret, "", p.logger))
	}

	engine.Register(research.NewWeatherProvider(keys.WeatherAPIKey, "", p.logger))

	social := research.NewApifySource(keys.ApifyToken, "", p.logger)
	engine.Register(research.NewTrendScout(social, ai, cfg, p.logger))

	if places != nil {
		engine.Register(research.NewConcierge(ai, hotels, places, p.logger))
	}

	return engine
}

// buildTasks wires the background task subsystem for the configured
// mode and returns the executor the orchestrator submits through. The
// executor is nil when media is off: with nothing able to handle a
// media task, enqueuing one would only park it until its TTL.
func (p *Planner) buildTasks(ctx context.Context, tel core.Telemetry) (core.Executor, error) {
	director, err := p.buildDirector(ctx)
	if err != nil {
		return nil, err
	}

	if p.cfg.Tasks.Mode == orchestration.ExecutorModeQueue {
		tasksRedis, err := core.NewRedisClient(core.RedisClientOptions{
			RedisURL:  p.cfg.Redis.URL,
			DB:        core.RedisDBTasks,
			Namespace: "tripsmith:tasks",
			Logger:    p.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect task subsystem: %w", err)
		}
		p.tasksRedis = tasksRedis

		store := orchestration.NewRedisTaskStore(tasksRedis.Client(), p.cfg.Tasks, p.logger)
		queue := orchestration.NewRedisTaskQueue(tasksRedis.Client(), p.cfg.Tasks, p.logger)
		queue.SetBreaker(resilience.NewCircuitBreaker(core.CircuitBreakerParams{
			Name:      "tasks.enqueue",
			Logger:    p.logger,
			Telemetry: tel,
		}))
		pool := orchestration.NewWorkerPool(queue, store, p.cfg.Tasks, p.logger)
		p.tasks = store
		p.workers = pool

		if director == nil {
			return nil, nil
		}
		handler := orchestration.NewMediaTaskHandler(director, p.itineraries, p.logger)
		if err := pool.RegisterHandler(orchestration.TaskTypeMediaGenerate, handler); err != nil {
			return nil, err
		}
		return orchestration.NewQueueExecutor(store, queue, p.logger), nil
	}

	store := orchestration.NewMemoryTaskStore(p.logger)
	p.tasks = store

	if director == nil {
		return nil, nil
	}
	local := orchestration.NewLocalExecutor(store, p.cfg.Tasks, p.logger)
	handler := orchestration.NewMediaTaskHandler(director, p.itineraries, p.logger)
	if err := local.RegisterHandler(orchestration.TaskTypeMediaGenerate, handler); err != nil {
		return nil, err
	}
	return local, nil
}

// buildDirector creates the media pipeline, or nil when media is off.
// The concept model shares the reasoning key unless media has its own.
func (p *Planner) buildDirector(ctx context.Context) (*media.Director, error) {
	if !p.cfg.Media.Enabled {
		return nil, nil
	}

	apiKey := p.cfg.Media.APIKey
	if apiKey == "" {
		apiKey = p.cfg.Reasoning.APIKey
	}
	if apiKey == "" {
		p.logger.Warn("Media enabled without an API key, disabling media", map[string]interface{}{
			"operation": "planner_new",
		})
		return nil, nil
	}

	concepts, err := media.NewGeminiConcepts(ctx, apiKey, p.cfg.Media.ConceptModel, p.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create concept generator: %w", err)
	}
	p.concepts = concepts

	var assets media.AssetStore
	if p.cfg.Media.Assets.Provider == "s3" {
		s3Store, err := media.NewS3AssetStore(ctx, p.cfg.Media.Assets, p.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open asset store: %w", err)
		}
		assets = s3Store
	} else {
		assets = media.NewNoopAssetStore(p.logger)
	}

	images := media.NewImagenClient(apiKey, "", p.cfg.Media, p.logger)
	videos := media.NewVeoClient(apiKey, "", p.cfg.Media, p.logger)
	return media.NewDirector(concepts, images, videos, assets, p.logger), nil
}

// buildPlanCache attaches the advisory session plan cache. A cache
// Redis that will not connect is logged and skipped, never fatal.
func (p *Planner) buildPlanCache() {
	if !p.cfg.Cache.Enabled || p.cfg.Redis.URL == "" {
		return
	}

	cacheRedis, err := core.NewRedisClient(core.RedisClientOptions{
		RedisURL:  p.cfg.Redis.URL,
		DB:        core.RedisDBSessions,
		Namespace: "tripsmith:sessions",
		Logger:    p.logger,
	})
	if err != nil {
		p.logger.Warn("Plan cache unavailable, continuing without it", map[string]interface{}{
			"operation": "planner_new",
			"error":     err.Error(),
		})
		return
	}
	p.cacheRedis = cacheRedis
	p.cache = orchestration.NewPlanCache(cacheRedis.Client(), p.cfg.Cache, p.logger)
}

// Run processes one conversational turn. The request context follows
// Orchestrator.Run. When it names a session, the profile remembered
// for that session fills in a missing "profile" entry, and the profile
// the turn produces is remembered for the next one. An explicit
// "profile" in the request always wins over the remembered state.
func (p *Planner) Run(ctx context.Context, message string, reqCtx map[string]interface{}) (*orchestration.Response, error) {
	sessionID, _ := reqCtx["session_id"].(string)
	if sessionID != "" {
		if _, supplied := reqCtx["profile"]; !supplied {
			if profile, ok := p.sessions.Profile(sessionID); ok {
				withProfile := make(map[string]interface{}, len(reqCtx)+1)
				for k, v := range reqCtx {
					withProfile[k] = v
				}
				withProfile["profile"] = profile
				reqCtx = withProfile
			}
		}
	}

	resp, err := p.orchestrator.Run(ctx, message, reqCtx)
	if err == nil && sessionID != "" && resp.Profile != nil {
		p.sessions.Remember(sessionID, *resp.Profile)
	}
	return resp, err
}

// EndSession drops the remembered profile for a session, so the next
// turn starts from a clean slate. Saved itineraries and cached plans
// are untouched.
func (p *Planner) EndSession(sessionID string) {
	p.sessions.Forget(sessionID)
}

// LatestPlan returns the newest plan for a session, from the advisory
// cache when possible and the itinerary store otherwise.
func (p *Planner) LatestPlan(ctx context.Context, sessionID string) (*planning.Plan, error) {
	return p.orchestrator.LatestPlan(ctx, sessionID)
}

// TaskStatus returns the current record of a background task, or
// core.ErrTaskNotFound for ids that were never submitted or whose
// records have expired.
func (p *Planner) TaskStatus(ctx context.Context, taskID string) (*core.Task, error) {
	return p.tasks.Get(ctx, taskID)
}

// SaveItinerary persists an itinerary and keeps the session plan
// cache in step with it.
func (p *Planner) SaveItinerary(ctx context.Context, itin *storage.Itinerary) error {
	if itin == nil {
		return fmt.Errorf("itinerary is required")
	}
	if err := p.itineraries.Save(ctx, itin); err != nil {
		return err
	}
	if p.cache != nil && itin.SessionID != "" && itin.Plan != nil {
		p.cache.Set(ctx, itin.SessionID, itin.Plan)
	}
	return nil
}

// StartWorkers runs the task worker pool until ctx is cancelled or
// StopWorkers is called. It blocks, so callers that also serve
// requests run it on its own goroutine. Local task mode has no pool
// to start; handlers run in-process as tasks are submitted.
func (p *Planner) StartWorkers(ctx context.Context) error {
	if p.workers == nil {
		return fmt.Errorf("worker pool requires queue task mode: %w", core.ErrInvalidConfiguration)
	}
	return p.workers.Start(ctx)
}

// StopWorkers drains the worker pool. A planner without a pool, or
// with one that never started, returns nil.
func (p *Planner) StopWorkers(ctx context.Context) error {
	if p.workers == nil {
		return nil
	}
	return p.workers.Stop(ctx)
}

// Close stops the workers and releases every connection the planner
// holds. The first error wins but shutdown always runs to the end.
func (p *Planner) Close(ctx context.Context) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if p.workers != nil {
		keep(p.workers.Stop(ctx))
	}
	if p.tasksRedis != nil {
		keep(p.tasksRedis.Close())
	}
	if p.cacheRedis != nil {
		keep(p.cacheRedis.Close())
	}
	if p.graph != nil {
		keep(p.graph.Close(ctx))
	}
	if p.concepts != nil {
		keep(p.concepts.Close())
	}
	if p.itineraries != nil {
		keep(p.itineraries.Close())
	}
	if p.telemetry != nil {
		keep(p.telemetry.Shutdown(ctx))
	}
	return firstErr
}
