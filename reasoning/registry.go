// Package reasoning provides the planner's client for the reasoning
// service. Providers register themselves at init time and NewClient
// selects one explicitly or by scanning the environment.
//
// The rest of the planner treats the reasoning service as an opaque
// text-in text-out collaborator behind core.AIClient. Prompt
// construction and response interpretation belong to the callers;
// this package owns transport, rate-limit retry, and provider
// selection.
package reasoning

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tripsmith-ai/tripsmith/core"
	"github.com/tripsmith-ai/tripsmith/telemetry"
)

// ProviderFactory creates reasoning clients for a specific backend.
// Implementations register themselves via MustRegister in an init
// function so that importing the package is enough to make the
// provider selectable.
type ProviderFactory interface {
	// Name returns the unique provider name used in configuration.
	Name() string

	// Description returns a human-readable provider description.
	Description() string

	// Create builds a client from the resolved configuration.
	Create(config *Config) core.AIClient

	// DetectEnvironment reports whether the provider can run with the
	// current process environment and with what selection priority.
	DetectEnvironment() (priority int, available bool)
}

// ProviderRegistry manages registered provider factories.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]ProviderFactory
}

var registry = &ProviderRegistry{
	providers: make(map[string]ProviderFactory),
}

// Register adds a provider factory to the registry. It fails on nil
// factories, empty names, and duplicate registrations.
func Register(factory ProviderFactory) error {
	if factory == nil {
		return fmt.Errorf("cannot register nil provider factory: %w", core.ErrInvalidConfiguration)
	}

	name := factory.Name()
	if name == "" {
		return fmt.Errorf("cannot register provider with empty name: %w", core.ErrInvalidConfiguration)
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	if _, exists := registry.providers[name]; exists {
		return fmt.Errorf("reasoning provider %q: %w", name, core.ErrAlreadyRegistered)
	}

	registry.providers[name] = factory
	return nil
}

// MustRegister registers a provider factory and panics on failure.
// Intended for init functions where a registration error is a
// programming mistake rather than a runtime condition.
func MustRegister(factory ProviderFactory) {
	if err := Register(factory); err != nil {
		panic(fmt.Sprintf("reasoning: %v", err))
	}
}

// GetProvider returns the factory registered under name.
func GetProvider(name string) (ProviderFactory, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	factory, exists := registry.providers[name]
	return factory, exists
}

// ListProviders returns the names of all registered providers in
// sorted order.
func ListProviders() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	names := make([]string, 0, len(registry.providers))
	for name := range registry.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProviderInfo describes a registered provider and its current
// availability.
type ProviderInfo struct {
	Name        string
	Description string
	Priority    int
	Available   bool
}

// GetProviderInfo returns descriptions of all registered providers,
// sorted by detection priority (highest first) and then by name.
func GetProviderInfo() []ProviderInfo {
	registry.mu.RLock()
	factories := make([]ProviderFactory, 0, len(registry.providers))
	for _, factory := range registry.providers {
		factories = append(factories, factory)
	}
	registry.mu.RUnlock()

	infos := make([]ProviderInfo, 0, len(factories))
	for _, factory := range factories {
		priority, available := factory.DetectEnvironment()
		infos = append(infos, ProviderInfo{
			Name:        factory.Name(),
			Description: factory.Description(),
			Priority:    priority,
			Available:   available,
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Priority != infos[j].Priority {
			return infos[i].Priority > infos[j].Priority
		}
		return infos[i].Name < infos[j].Name
	})

	return infos
}

// detectBestProvider scans all registered providers and returns the
// available one with the highest priority. Ties break alphabetically
// so detection is deterministic.
func detectBestProvider(logger core.Logger) (string, error) {
	start := time.Now()

	registry.mu.RLock()
	factories := make([]ProviderFactory, 0, len(registry.providers))
	for _, factory := range registry.providers {
		factories = append(factories, factory)
	}
	registry.mu.RUnlock()

	type candidate struct {
		name     string
		priority int
	}
	var candidates []candidate

	for _, factory := range factories {
		priority, available := factory.DetectEnvironment()
		if logger != nil {
			logger.Debug("Reasoning provider detection check", map[string]interface{}{
				"operation": "provider_detection",
				"provider":  factory.Name(),
				"available": available,
				"priority":  priority,
			})
		}
		if available {
			candidates = append(candidates, candidate{name: factory.Name(), priority: priority})
		}
	}

	if len(candidates) == 0 {
		telemetry.Counter("reasoning.provider.detection",
			"module", telemetry.ModuleReasoning,
			"status", "no_providers")
		return "", fmt.Errorf("no reasoning provider detected in environment: %w", core.ErrProviderUnavailable)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].priority != candidates[j].priority {
			return candidates[i].priority > candidates[j].priority
		}
		return candidates[i].name < candidates[j].name
	})

	selected := candidates[0].name

	telemetry.Counter("reasoning.provider.detection",
		"module", telemetry.ModuleReasoning,
		"status", "success")
	telemetry.Histogram("reasoning.provider.detection.duration_ms",
		float64(time.Since(start).Milliseconds()),
		"module", telemetry.ModuleReasoning)
	telemetry.Counter("reasoning.provider.selected",
		"module", telemetry.ModuleReasoning,
		"provider", selected)

	return selected, nil
}
