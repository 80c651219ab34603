// Package orchestration runs one conversational turn end to end:
// profile the message, decide whether planning should happen at all,
// fan research out across the providers, synthesize the itinerary,
// and hand media rendering to the background task subsystem. The
// package also owns that subsystem: the Redis task store and queue,
// the worker pool, the in-process executor, and the advisory session
// plan cache.
package orchestration

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tripsmith-ai/tripsmith/core"
	"github.com/tripsmith-ai/tripsmith/media"
	"github.com/tripsmith-ai/tripsmith/planning"
	"github.com/tripsmith-ai/tripsmith/research"
	"github.com/tripsmith-ai/tripsmith/storage"
	"github.com/tripsmith-ai/tripsmith/telemetry"
)

// Agent labels on responses. The profiler answers conversational
// turns; the optimizer answers full planning passes.
const (
	AgentProfiler  = "profiler"
	AgentOptimizer = "optimizer"
)

// StatusSuccess marks a full planning pass. Early returns carry the
// profiling status instead.
const StatusSuccess = "success"

const (
	defaultDestination = "Paris"
	fallbackPrompt     = "Tell me more about your trip!"
)

// tripIntentKeywords open the research gate, matched as
// case-insensitive substrings of the raw message.
var tripIntentKeywords = []string{"plan", "itinerary", "go to", "trip", "book", "schedule"}

// Response is the outcome of one orchestration turn.
type Response struct {
	// Agent names the step that produced the message: AgentProfiler
	// for early returns, AgentOptimizer for a full pass.
	Agent string `json:"agent"`

	// Status is StatusSuccess for a full pass. Early returns carry the
	// profiling status: greeted, profile_updated, or parse_failed.
	Status string `json:"status"`

	Message string            `json:"message"`
	Profile *planning.Profile `json:"profile,omitempty"`

	// Data carries the itinerary and the media placeholder on a full
	// pass, and any follow-up questions on an early return.
	Data map[string]interface{} `json:"data,omitempty"`

	// MediaTaskID is the polling handle for background media
	// rendering, present only when a task was actually enqueued.
	MediaTaskID string `json:"media_task_id,omitempty"`
}

// OrchestratorOptions wires an Orchestrator. Profiler, Research, and
// Builder are required; everything else is optional and disables its
// feature when nil.
type OrchestratorOptions struct {
	Profiler *planning.ProfileStep
	Research *research.Engine
	Builder  *planning.ItineraryBuilder

	// Executor runs media rendering in the background. Nil disables
	// media and responses carry no task handle.
	Executor core.Executor

	// Cache is the advisory session plan cache.
	Cache SessionPlanCache

	// Itineraries is the authoritative store LatestPlan falls back to
	// on a cache miss.
	Itineraries storage.ItineraryStore

	// DefaultDestination seeds research when neither the profile nor
	// the request context resolves one. Defaults to "Paris".
	DefaultDestination string

	Logger core.Logger
}

// Orchestrator coordinates the profiling, research, synthesis, and
// media steps of a turn. Only profiling is fatal: a turn with a
// broken provider, a failed enqueue, or a dead cache still answers.
type Orchestrator struct {
	profiler    *planning.ProfileStep
	research    *research.Engine
	builder     *planning.ItineraryBuilder
	executor    core.Executor
	cache       SessionPlanCache
	itineraries storage.ItineraryStore

	fallbackDestination string
	logger              core.Logger
}

// NewOrchestrator creates an orchestrator from its options.
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cl, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cl.WithComponent("planner/orchestration")
	}
	fallback := strings.TrimSpace(opts.DefaultDestination)
	if fallback == "" {
		fallback = defaultDestination
	}
	return &Orchestrator{
		profiler:            opts.Profiler,
		research:            opts.Research,
		builder:             opts.Builder,
		executor:            opts.Executor,
		cache:               opts.Cache,
		itineraries:         opts.Itineraries,
		fallbackDestination: fallback,
		logger:              logger,
	}
}

// Run processes one user turn. The request context carries optional
// hints: "profile" (prior profile), "session_id", "destination",
// "origin", "check_in", "check_out" (YYYY-MM-DD), and
// "reference_image". Profiling is the only step whose failure aborts
// the turn.
func (o *Orchestrator) Run(ctx context.Context, message string, reqCtx map[string]interface{}) (resp *Response, err error) {
	started := time.Now()
	if reqCtx == nil {
		reqCtx = map[string]interface{}{}
	}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Turn panicked", map[string]interface{}{
				"operation": "orchestrator_run",
				"panic":     fmt.Sprintf("%v", r),
				"stack":     string(debug.Stack()),
			})
			o.countRun("panic")
			resp, err = nil, fmt.Errorf("orchestration panic: %v", r)
		}
	}()

	o.logger.Info("Processing turn", map[string]interface{}{
		"operation":      "orchestrator_run",
		"message_length": len(message),
	})

	prior := planning.ParseProfile(reqCtx["profile"])
	profile, extraction, err := o.profiler.Apply(ctx, message, prior)
	if err != nil {
		o.countRun("error")
		return nil, fmt.Errorf("profiling failed: %w", err)
	}

	if !shouldResearch(message, profile) {
		telemetry.AddSpanEvent(ctx, "orchestrator.early_return")
		o.logger.Debug("No trip intent, returning profiler response", map[string]interface{}{
			"operation": "orchestrator_run",
			"status":    extraction.Status,
		})
		o.countRun(extraction.Status)
		return earlyResponse(profile, extraction), nil
	}

	query := o.buildQuery(message, profile, reqCtx)
	o.logger.Info("Trip intent detected, starting research", map[string]interface{}{
		"operation":   "orchestrator_run",
		"destination": query.Destination,
	})

	researchCtx := o.research.Research(ctx, query)

	plan := o.builder.Build(profile, researchCtx, query)
	plan.PatchDates(planning.TripWindow(query).Start)

	resp = &Response{
		Agent:   AgentOptimizer,
		Status:  StatusSuccess,
		Message: plan.Summary,
		Profile: &profile,
		Data:    map[string]interface{}{"itinerary": plan},
	}

	if taskID := o.enqueueMedia(ctx, plan, profile, reqCtx); taskID != "" {
		resp.MediaTaskID = taskID
		resp.Data["media"] = map[string]interface{}{
			"status":  string(core.TaskStatusGenerating),
			"task_id": taskID,
		}
	}

	if sessionID := contextString(reqCtx, "session_id"); sessionID != "" && o.cache != nil {
		o.cache.Set(ctx, sessionID, plan)
	}

	o.logger.Info("Turn complete", map[string]interface{}{
		"operation":   "orchestrator_run",
		"destination": plan.Destination,
		"days":        len(plan.Days),
		"duration_ms": time.Since(started).Milliseconds(),
	})
	o.countRun(StatusSuccess)
	telemetry.Histogram("orchestration.run.duration_ms", float64(time.Since(started).Milliseconds()),
		"module", telemetry.ModuleOrchestration,
	)
	return resp, nil
}

// LatestPlan returns the newest plan for a session. The advisory
// cache answers first; misses read through to the itinerary store and
// re-prime the cache. With nothing in either place it reports
// core.ErrPlanNotFound.
func (o *Orchestrator) LatestPlan(ctx context.Context, sessionID string) (*planning.Plan, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}

	if o.cache != nil {
		if plan, ok := o.cache.Get(ctx, sessionID); ok {
			return plan, nil
		}
	}

	if o.itineraries == nil {
		return nil, core.ErrPlanNotFound
	}
	itin, err := o.itineraries.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if itin.Plan == nil {
		return nil, core.ErrPlanNotFound
	}

	if o.cache != nil {
		o.cache.Set(ctx, sessionID, itin.Plan)
	}
	return itin.Plan, nil
}

// shouldResearch is the gate between chatting and planning. A turn
// proceeds to research when the message signals trip intent or when
// profiling has already resolved a destination.
func shouldResearch(message string, profile planning.Profile) bool {
	if strings.TrimSpace(profile.Destination) != "" {
		return true
	}
	lowered := strings.ToLower(message)
	for _, keyword := range tripIntentKeywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

// earlyResponse answers a turn that never reached research: the first
// extracted change if there is one, otherwise the first follow-up
// question, otherwise a generic prompt for more detail.
func earlyResponse(profile planning.Profile, extraction planning.Extraction) *Response {
	message := firstNonEmpty(extraction.Changes)
	if message == "" {
		message = firstNonEmpty(extraction.FollowUps)
	}
	if message == "" {
		message = fallbackPrompt
	}

	resp := &Response{
		Agent:   AgentProfiler,
		Status:  extraction.Status,
		Message: message,
		Profile: &profile,
	}
	if len(extraction.FollowUps) > 0 {
		resp.Data = map[string]interface{}{"follow_up_questions": extraction.FollowUps}
	}
	return resp
}

// buildQuery assembles the research query for a turn. The destination
// resolves profile first, then the request context, then the
// configured fallback.
func (o *Orchestrator) buildQuery(message string, profile planning.Profile, reqCtx map[string]interface{}) research.Query {
	destination := strings.TrimSpace(profile.Destination)
	if destination == "" {
		destination = contextString(reqCtx, "destination")
	}
	if destination == "" {
		destination = o.fallbackDestination
	}
	return research.Query{
		Text:        message,
		Destination: destination,
		Origin:      contextString(reqCtx, "origin"),
		Interests:   profile.Interests,
		BudgetLevel: profile.BudgetLevel,
		GroupSize:   profile.GroupSize,
		CheckIn:     contextDate(reqCtx, "check_in"),
		CheckOut:    contextDate(reqCtx, "check_out"),
	}
}

// enqueueMedia schedules background media rendering for the plan and
// returns the task id, or "" when media is disabled or submission
// failed. Enqueue problems, panics included, degrade the response,
// never the turn.
func (o *Orchestrator) enqueueMedia(ctx context.Context, plan *planning.Plan, profile planning.Profile, reqCtx map[string]interface{}) (taskID string) {
	if o.executor == nil {
		return ""
	}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Media submission panicked, responding without media", map[string]interface{}{
				"operation": "media_enqueue",
				"panic":     fmt.Sprintf("%v", r),
			})
			o.countEnqueue("panic")
			taskID = ""
		}
	}()

	taskID = uuid.NewString()
	req := media.Request{
		TaskID:            taskID,
		Summary:           plan.Summary,
		Profile:           profileFields(profile),
		ReferenceImageURL: contextString(reqCtx, "reference_image"),
	}

	task := core.NewTask(taskID, TaskTypeMediaGenerate, req.Input())
	trace := telemetry.GetTraceContext(ctx)
	task.SetTraceContext(trace.TraceID, trace.SpanID)

	if err := o.executor.Submit(ctx, task); err != nil {
		o.logger.Warn("Media task submission failed, responding without media", map[string]interface{}{
			"operation": "media_enqueue",
			"task_id":   taskID,
			"error":     err.Error(),
		})
		o.countEnqueue("error")
		return ""
	}

	o.logger.Info("Media task enqueued", map[string]interface{}{
		"operation": "media_enqueue",
		"task_id":   taskID,
		"mode":      o.executor.Mode(),
	})
	o.countEnqueue("success")
	return taskID
}

func (o *Orchestrator) countRun(status string) {
	telemetry.Counter("orchestration.runs",
		"module", telemetry.ModuleOrchestration,
		"status", status,
	)
}

func (o *Orchestrator) countEnqueue(status string) {
	telemetry.Counter("orchestration.media.enqueues",
		"module", telemetry.ModuleOrchestration,
		"status", status,
	)
}

// profileFields flattens a profile into the loose map shape the media
// pipeline prompts with.
func profileFields(profile planning.Profile) map[string]interface{} {
	data, err := json.Marshal(profile)
	if err != nil {
		return nil
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}
	return fields
}

func firstNonEmpty(values []string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func contextString(reqCtx map[string]interface{}, key string) string {
	if v, ok := reqCtx[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func contextDate(reqCtx map[string]interface{}, key string) time.Time {
	raw := contextString(reqCtx, key)
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
