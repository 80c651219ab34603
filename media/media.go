// Package media renders the visual preview for a finished trip plan: a
// cinematic poster and a short teaser video. The pipeline runs inside
// background tasks, never on the request path.
//
// The flow is concept → poster → video. A reasoning call turns the plan
// summary into generation prompts, the poster is rendered from the
// poster prompt, and the video is rendered from the video prompt using
// a reference image when one is available. The caller's uploaded image
// wins over the generated poster as that reference. Rendered bytes are
// written to the asset store and referenced by URL from then on.
//
// Video rendering is a long-running operation on the backend; polling
// is bounded by the configured ceiling so a stuck render fails the task
// instead of hanging a worker.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// StatusSuccess marks a finished production run. Individual assets may
// still be empty when their rendering step degraded.
const StatusSuccess = "success"

// Request is the input to one production run, carried as task input
// across the queue boundary.
type Request struct {
	// TaskID keys the stored assets so a redelivered task overwrites
	// its own objects instead of accumulating duplicates.
	TaskID string `json:"task_id"`

	// Summary is the itinerary narrative the concept is derived from.
	Summary string `json:"summary"`

	// Profile is the traveler profile, serialized into the concept
	// prompt for tone and audience.
	Profile map[string]interface{} `json:"profile,omitempty"`

	// ReferenceImageURL points at a caller-uploaded image. When set and
	// fetchable it anchors the video instead of the generated poster.
	ReferenceImageURL string `json:"reference_image,omitempty"`
}

// Input converts the request to a task input map.
func (r Request) Input() map[string]interface{} {
	return map[string]interface{}{
		"task_id":         r.TaskID,
		"summary":         r.Summary,
		"profile":         r.Profile,
		"reference_image": r.ReferenceImageURL,
	}
}

// ParseRequest rebuilds a Request from task input.
func ParseRequest(input map[string]interface{}) (Request, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return Request{}, fmt.Errorf("failed to encode task input: %w", err)
	}
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, fmt.Errorf("failed to decode task input: %w", err)
	}
	return req, nil
}

// assetBase returns the object key base for this request's assets.
func (r Request) assetBase() string {
	if r.TaskID != "" {
		return "tasks/" + r.TaskID
	}
	return "adhoc/" + strconv.FormatInt(time.Now().Unix(), 10)
}

// Concept is the creative brief produced by reasoning: one prompt per
// asset plus an overall mood tag.
type Concept struct {
	PosterPrompt string `json:"poster_prompt"`
	VideoPrompt  string `json:"video_prompt"`
	Mood         string `json:"mood"`
}

// Assets is the production result stored on the completed task.
type Assets struct {
	PosterURL string `json:"poster_url"`
	VideoURL  string `json:"video_url"`
	Mood      string `json:"mood,omitempty"`
	Status    string `json:"status"`
}

// Result converts the assets to a task result map.
func (a Assets) Result() map[string]interface{} {
	return map[string]interface{}{
		"poster_url": a.PosterURL,
		"video_url":  a.VideoURL,
		"mood":       a.Mood,
		"status":     a.Status,
	}
}

// Artifact is a rendered asset before it reaches the store.
type Artifact struct {
	Data []byte
	MIME string
}

// ConceptGenerator derives the creative brief from a request.
type ConceptGenerator interface {
	Concept(ctx context.Context, req Request) (Concept, error)
}

// ImageGenerator renders a still image from a prompt.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (*Artifact, error)
}

// VideoGenerator renders a short video from a prompt. A nil reference
// selects text-to-video; otherwise the reference image anchors the
// first frame.
type VideoGenerator interface {
	Generate(ctx context.Context, prompt string, reference *Artifact) (*Artifact, error)
}

// AssetStore persists rendered artifacts and returns the URL clients
// use to fetch them.
type AssetStore interface {
	Store(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// extensionFor maps an artifact MIME type to an object key extension.
func extensionFor(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "video/mp4":
		return ".mp4"
	default:
		return ""
	}
}
