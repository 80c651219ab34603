package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/tripsmith-ai/tripsmith/core"
)

// MemoryStore is the in-memory ItineraryStore used in development and
// tests. Records are cloned on the way in and out so callers never
// share state with the store.
type MemoryStore struct {
	mu        sync.RWMutex
	bySession map[string]*Itinerary
	nextID    int64
	logger    core.Logger
}

var _ ItineraryStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger core.Logger) *MemoryStore {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cl, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cl.WithComponent("planner/storage")
	}
	return &MemoryStore{
		bySession: make(map[string]*Itinerary),
		logger:    logger,
	}
}

// Save inserts or replaces the session's itinerary. The id and create
// time of an existing record survive the replace.
func (s *MemoryStore) Save(_ context.Context, itin *Itinerary) error {
	if itin.SessionID == "" {
		return fmt.Errorf("itinerary session id is required")
	}
	itin.MediaStatus = defaultMediaStatus(itin)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := s.bySession[itin.SessionID]; ok {
		itin.ID = existing.ID
		itin.CreatedAt = existing.CreatedAt
	} else {
		s.nextID++
		itin.ID = s.nextID
		itin.CreatedAt = now
	}
	itin.UpdatedAt = now

	s.bySession[itin.SessionID] = cloneItinerary(itin)

	s.logger.Debug("Itinerary saved", map[string]interface{}{
		"operation":    "storage_save",
		"session_id":   itin.SessionID,
		"media_status": itin.MediaStatus,
	})
	return nil
}

// GetBySession returns a copy of the session's itinerary or
// core.ErrPlanNotFound.
func (s *MemoryStore) GetBySession(_ context.Context, sessionID string) (*Itinerary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	itin, ok := s.bySession[sessionID]
	if !ok {
		return nil, fmt.Errorf("no itinerary for session %s: %w", sessionID, core.ErrPlanNotFound)
	}
	return cloneItinerary(itin), nil
}

// AttachMediaByTask completes the media fields on whichever record
// carries taskID. No match is a success.
func (s *MemoryStore) AttachMediaByTask(_ context.Context, taskID string, media MediaAttachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sessionID, itin := range s.bySession {
		if itin.MediaTaskID != taskID {
			continue
		}
		itin.PosterURL = media.PosterURL
		itin.VideoURL = media.VideoURL
		itin.MediaStatus = MediaCompleted
		itin.CreativeAssets = media.Assets
		itin.UpdatedAt = time.Now().UTC()
		s.bySession[sessionID] = cloneItinerary(itin)
		return nil
	}

	s.logger.Debug("No itinerary found for media task", map[string]interface{}{
		"operation": "storage_attach_media",
		"task_id":   taskID,
	})
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

// cloneItinerary deep-copies a record through its JSON form.
func cloneItinerary(itin *Itinerary) *Itinerary {
	data, err := json.Marshal(itin)
	if err != nil {
		copied := *itin
		return &copied
	}
	var out Itinerary
	if err := json.Unmarshal(data, &out); err != nil {
		copied := *itin
		return &copied
	}
	return &out
}
