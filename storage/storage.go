// Package storage persists finished itineraries keyed by session and
// applies the media back-fill that background tasks produce. Saves are
// whole-record replaces; the media attach is idempotent and keyed by
// the task id the orchestrator minted at enqueue time.
package storage

import (
	"context"
	"time"

	"github.com/tripsmith-ai/tripsmith/planning"
)

// Media back-fill states for a stored itinerary.
const (
	MediaPending    = "pending"
	MediaGenerating = "generating"
	MediaCompleted  = "completed"
	MediaFailed     = "failed"
)

// Itinerary is one stored trip plan for a session, including the
// creative asset fields that are filled in after the fact.
type Itinerary struct {
	ID             int64                  `json:"id"`
	SessionID      string                 `json:"session_id"`
	Destination    string                 `json:"destination"`
	Summary        string                 `json:"summary"`
	Plan           *planning.Plan         `json:"plan,omitempty"`
	CreativeAssets map[string]interface{} `json:"creative_assets,omitempty"`
	PosterURL      string                 `json:"poster_url,omitempty"`
	VideoURL       string                 `json:"video_url,omitempty"`
	MediaStatus    string                 `json:"media_status"`
	MediaTaskID    string                 `json:"media_task_id,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// MediaAttachment is the finished media result applied to whichever
// itinerary carries the matching task id.
type MediaAttachment struct {
	PosterURL string
	VideoURL  string
	Assets    map[string]interface{}
}

// ItineraryStore persists itineraries. Save replaces the session's
// record wholesale. AttachMediaByTask marks the matching record
// completed and succeeds when no record matches, so redelivered or
// orphaned tasks stay harmless.
type ItineraryStore interface {
	Save(ctx context.Context, itin *Itinerary) error
	GetBySession(ctx context.Context, sessionID string) (*Itinerary, error)
	AttachMediaByTask(ctx context.Context, taskID string, media MediaAttachment) error
	Close() error
}

// defaultMediaStatus derives the initial media state for a record
// about to be saved: a pending task id means assets are on the way.
func defaultMediaStatus(itin *Itinerary) string {
	if itin.MediaStatus != "" {
		return itin.MediaStatus
	}
	if itin.MediaTaskID != "" {
		return MediaGenerating
	}
	return MediaPending
}
