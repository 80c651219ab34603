package core

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of the Memory interface.
// Entries may carry a TTL; expired entries behave as absent and are
// dropped lazily on access.
type MemoryStore struct {
	mu     sync.RWMutex
	store  map[string]memoryEntry
	logger Logger
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// NewMemoryStore returns an empty store that logs nowhere until
// SetLogger is called.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		store:  make(map[string]memoryEntry),
		logger: &NoOpLogger{},
	}
}

// SetLogger routes the store's debug logging to the given logger,
// scoped to the planner/memory component.
func (m *MemoryStore) SetLogger(logger Logger) {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	m.logger = createComponentLogger(logger, "planner/memory")
}

// Get retrieves a value from memory.
// Missing and expired keys return "" with no error.
func (m *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	entry, exists := m.store[key]
	m.mu.RUnlock()

	if !exists {
		m.logger.Debug("Cache miss", map[string]interface{}{
			"operation": "cache_get",
			"key":       key,
		})
		return "", nil
	}

	if entry.expired(time.Now()) {
		m.mu.Lock()
		delete(m.store, key)
		m.mu.Unlock()
		m.logger.Debug("Cache entry expired", map[string]interface{}{
			"operation":  "cache_get",
			"key":        key,
			"expired_at": entry.expiresAt.Format(time.RFC3339),
		})
		return "", nil
	}

	m.logger.Debug("Cache hit", map[string]interface{}{
		"operation": "cache_get",
		"key":       key,
	})
	return entry.value, nil
}

// Set writes the value, replacing any prior entry. A positive ttl turns
// into an absolute expiry; zero or negative means the entry never ages out.
func (m *MemoryStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	m.mu.Lock()
	m.store[key] = entry
	m.mu.Unlock()

	logFields := map[string]interface{}{
		"operation":  "cache_set",
		"key":        key,
		"value_size": len(value),
		"has_ttl":    ttl > 0,
	}
	if ttl > 0 {
		logFields["ttl"] = ttl.String()
	}
	m.logger.Debug("Cache set", logFields)
	return nil
}

// Delete drops the key whether or not it was present.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	_, existed := m.store[key]
	delete(m.store, key)
	m.mu.Unlock()

	m.logger.Debug("Cache delete", map[string]interface{}{
		"operation": "cache_delete",
		"key":       key,
		"existed":   existed,
	})
	return nil
}

// Exists reports whether the key holds a live entry, without touching
// expired ones.
func (m *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	entry, exists := m.store[key]
	m.mu.RUnlock()

	return exists && !entry.expired(time.Now()), nil
}

// Len returns the number of stored entries, including not yet
// collected expired ones. Used by tests and debug endpoints.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store)
}
