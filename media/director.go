package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tripsmith-ai/tripsmith/core"
	"github.com/tripsmith-ai/tripsmith/telemetry"
)

const referenceFetchTimeout = 30 * time.Second

// Director runs the creative pipeline for one task: concept, poster,
// video, asset upload. A concept failure aborts the run (the task
// system decides whether to retry); rendering and upload failures
// degrade to an empty URL for that asset only.
type Director struct {
	concepts ConceptGenerator
	images   ImageGenerator
	videos   VideoGenerator
	assets   AssetStore
	client   *http.Client
	logger   core.Logger
}

// NewDirector creates a Director over the given pipeline stages.
func NewDirector(concepts ConceptGenerator, images ImageGenerator, videos VideoGenerator, assets AssetStore, logger core.Logger) *Director {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cl, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cl.WithComponent("planner/media")
	}

	client := telemetry.NewTracedHTTPClient(nil)
	client.Timeout = referenceFetchTimeout

	return &Director{
		concepts: concepts,
		images:   images,
		videos:   videos,
		assets:   assets,
		client:   client,
		logger:   logger,
	}
}

// Produce renders the poster and video for a plan.
// It always returns assets on success, even when every rendering step
// degraded; only a failed concept call is an error.
func (d *Director) Produce(ctx context.Context, req Request) (*Assets, error) {
	started := time.Now()

	d.logger.Info("Starting media production", map[string]interface{}{
		"operation":   "media_produce",
		"task_id":     req.TaskID,
		"summary_len": len(req.Summary),
		"has_upload":  req.ReferenceImageURL != "",
	})

	concept, err := d.concepts.Concept(ctx, req)
	if err != nil {
		telemetry.Counter("media.produce.total",
			"module", telemetry.ModuleMedia,
			"status", "error")
		return nil, fmt.Errorf("concept generation failed: %w", err)
	}
	fillConceptDefaults(&concept, req.Summary)

	poster := d.renderPoster(ctx, concept.PosterPrompt)
	posterURL := d.storeArtifact(ctx, req.assetBase()+"/poster", poster)

	reference := poster
	if req.ReferenceImageURL != "" {
		if uploaded, err := d.fetchReference(ctx, req.ReferenceImageURL); err != nil {
			d.logger.Warn("Reference image unavailable, using generated poster", map[string]interface{}{
				"operation": "media_reference_fetch",
				"task_id":   req.TaskID,
				"url":       req.ReferenceImageURL,
				"error":     err.Error(),
			})
		} else {
			reference = uploaded
		}
	}

	video := d.renderVideo(ctx, concept.VideoPrompt, reference)
	videoURL := d.storeArtifact(ctx, req.assetBase()+"/video", video)

	assets := &Assets{
		PosterURL: posterURL,
		VideoURL:  videoURL,
		Mood:      concept.Mood,
		Status:    StatusSuccess,
	}

	d.logger.Info("Media production finished", map[string]interface{}{
		"operation":   "media_produce",
		"task_id":     req.TaskID,
		"poster":      posterURL != "",
		"video":       videoURL != "",
		"mood":        concept.Mood,
		"duration_ms": time.Since(started).Milliseconds(),
	})
	telemetry.Counter("media.produce.total",
		"module", telemetry.ModuleMedia,
		"status", "success")
	telemetry.Histogram("media.produce.duration_ms", float64(time.Since(started).Milliseconds()),
		"module", telemetry.ModuleMedia)

	return assets, nil
}

func (d *Director) renderPoster(ctx context.Context, prompt string) *Artifact {
	poster, err := d.images.Generate(ctx, prompt)
	if err != nil {
		d.logger.Warn("Poster rendering failed", map[string]interface{}{
			"operation": "media_render",
			"kind":      "poster",
			"error":     err.Error(),
		})
		return nil
	}
	return poster
}

func (d *Director) renderVideo(ctx context.Context, prompt string, reference *Artifact) *Artifact {
	video, err := d.videos.Generate(ctx, prompt, reference)
	if err != nil {
		d.logger.Warn("Video rendering failed", map[string]interface{}{
			"operation": "media_render",
			"kind":      "video",
			"image_ref": reference != nil,
			"error":     err.Error(),
		})
		return nil
	}
	return video
}

// storeArtifact uploads an artifact and returns its URL, or "" when
// there is nothing to store or the upload failed.
func (d *Director) storeArtifact(ctx context.Context, keyBase string, artifact *Artifact) string {
	if artifact == nil || len(artifact.Data) == 0 {
		return ""
	}
	url, err := d.assets.Store(ctx, keyBase+extensionFor(artifact.MIME), artifact.Data, artifact.MIME)
	if err != nil {
		d.logger.Warn("Asset upload failed", map[string]interface{}{
			"operation": "media_store",
			"key":       keyBase,
			"error":     err.Error(),
		})
		return ""
	}
	return url
}

func (d *Director) fetchReference(ctx context.Context, url string) (*Artifact, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reference image: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reference image returned status %d: %w", resp.StatusCode, core.ErrRequestFailed)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference image: %w", err)
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "image/png"
	}
	return &Artifact{Data: data, MIME: mime}, nil
}

// fillConceptDefaults backfills prompts the concept call left empty
// with ones derived from the itinerary summary.
func fillConceptDefaults(concept *Concept, summary string) {
	stub := summaryStub(summary)
	if concept.PosterPrompt == "" {
		concept.PosterPrompt = "Travel poster for " + stub
	}
	if concept.VideoPrompt == "" {
		concept.VideoPrompt = "Cinematic video of " + stub
	}
}

func summaryStub(summary string) string {
	runes := []rune(summary)
	if len(runes) > 20 {
		return string(runes[:20])
	}
	return summary
}
