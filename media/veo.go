package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tripsmith-ai/tripsmith/core"
	"github.com/tripsmith-ai/tripsmith/telemetry"
)

const (
	videoAspectRatio     = "16:9"
	videoDurationSeconds = 8
	videoRequestTimeout  = 2 * time.Minute

	defaultPollInterval = 10 * time.Second
	defaultPollTimeout  = 5 * time.Minute
)

// VeoClient renders teaser videos through the Veo long-running predict
// API. Rendering takes minutes; the operation is polled at a fixed
// interval up to a hard ceiling, after which the render counts as
// failed rather than leaving a worker blocked.
type VeoClient struct {
	client       *http.Client
	baseURL      string
	apiKey       string
	model        string
	pollInterval time.Duration
	pollTimeout  time.Duration
	logger       core.Logger
}

// NewVeoClient creates a Veo client. An empty baseURL selects the
// public API endpoint.
func NewVeoClient(apiKey, baseURL string, cfg core.MediaConfig, logger core.Logger) *VeoClient {
	if baseURL == "" {
		baseURL = GenerativeLanguageBaseURL
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cl, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cl.WithComponent("planner/media")
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}

	client := telemetry.NewTracedHTTPClient(nil)
	client.Timeout = videoRequestTimeout

	return &VeoClient{
		client:       client,
		baseURL:      baseURL,
		apiKey:       apiKey,
		model:        cfg.VideoModel,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
		logger:       logger,
	}
}

// Wire types for the long-running predict API.

type veoRequest struct {
	Instances  []veoInstance `json:"instances"`
	Parameters veoParameters `json:"parameters"`
}

type veoInstance struct {
	Prompt string    `json:"prompt"`
	Image  *veoImage `json:"image,omitempty"`
}

type veoImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType"`
}

type veoParameters struct {
	AspectRatio     string `json:"aspectRatio,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
}

type veoOperation struct {
	Name     string             `json:"name"`
	Done     bool               `json:"done"`
	Error    *veoStatus         `json:"error,omitempty"`
	Response *veoOperationReply `json:"response,omitempty"`
}

type veoStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type veoOperationReply struct {
	GenerateVideoResponse veoVideoResponse `json:"generateVideoResponse"`
}

type veoVideoResponse struct {
	GeneratedSamples []veoSample `json:"generatedSamples"`
}

type veoSample struct {
	Video veoVideo `json:"video"`
}

type veoVideo struct {
	URI string `json:"uri"`
}

// Generate renders one video. A non-nil reference image anchors the
// first frame (image-to-video); nil renders from the prompt alone.
func (c *VeoClient) Generate(ctx context.Context, prompt string, reference *Artifact) (*Artifact, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("video API key not configured: %w", core.ErrMissingConfiguration)
	}

	started := time.Now()

	op, err := c.startRender(ctx, prompt, reference)
	if err != nil {
		c.recordOutcome("error")
		return nil, err
	}

	deadline := time.Now().Add(c.pollTimeout)
	for !op.Done {
		if time.Now().After(deadline) {
			c.logger.Error("Video render timed out", map[string]interface{}{
				"operation": "media_video",
				"model":     c.model,
				"name":      op.Name,
				"timeout":   c.pollTimeout.String(),
			})
			c.recordOutcome("timeout")
			return nil, fmt.Errorf("video render exceeded %s: %w", c.pollTimeout, core.ErrTimeout)
		}

		c.logger.Debug("Waiting for video render", map[string]interface{}{
			"operation": "media_video",
			"name":      op.Name,
			"elapsed":   time.Since(started).Round(time.Second).String(),
		})

		select {
		case <-ctx.Done():
			c.recordOutcome("canceled")
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}

		op, err = c.fetchOperation(ctx, op.Name)
		if err != nil {
			c.recordOutcome("error")
			return nil, err
		}
	}

	if op.Error != nil {
		c.recordOutcome("error")
		return nil, fmt.Errorf("video render failed: %s: %w", op.Error.Message, core.ErrRequestFailed)
	}
	if op.Response == nil || len(op.Response.GenerateVideoResponse.GeneratedSamples) == 0 {
		c.recordOutcome("empty")
		return nil, fmt.Errorf("video render completed but returned no videos")
	}

	video, err := c.download(ctx, op.Response.GenerateVideoResponse.GeneratedSamples[0].Video.URI)
	if err != nil {
		c.recordOutcome("error")
		return nil, err
	}

	c.logger.Info("Video rendered", map[string]interface{}{
		"operation":   "media_video",
		"model":       c.model,
		"image_ref":   reference != nil,
		"bytes":       len(video.Data),
		"duration_ms": time.Since(started).Milliseconds(),
	})
	c.recordOutcome("success")
	telemetry.Histogram("media.video.duration_ms", float64(time.Since(started).Milliseconds()),
		"module", telemetry.ModuleMedia,
		"model", c.model)

	return video, nil
}

// startRender submits the render and returns the initial operation
// state, which may already be done.
func (c *VeoClient) startRender(ctx context.Context, prompt string, reference *Artifact) (*veoOperation, error) {
	instance := veoInstance{Prompt: prompt}
	if reference != nil && len(reference.Data) > 0 {
		instance.Image = &veoImage{
			BytesBase64Encoded: base64.StdEncoding.EncodeToString(reference.Data),
			MimeType:           reference.MIME,
		}
	}

	reqBody := veoRequest{
		Instances:  []veoInstance{instance},
		Parameters: veoParameters{AspectRatio: videoAspectRatio, DurationSeconds: videoDurationSeconds},
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:predictLongRunning?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	op, err := c.doOperation(req)
	if err != nil {
		return nil, err
	}
	if op.Name == "" && !op.Done {
		return nil, fmt.Errorf("video render returned no operation name")
	}
	return op, nil
}

func (c *VeoClient) fetchOperation(ctx context.Context, name string) (*veoOperation, error) {
	url := fmt.Sprintf("%s/%s?key=%s", c.baseURL, name, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.doOperation(req)
}

func (c *VeoClient) doOperation(req *http.Request) (*veoOperation, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("video request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Video operation call failed", map[string]interface{}{
			"operation":   "media_video",
			"model":       c.model,
			"status_code": resp.StatusCode,
		})
		return nil, fmt.Errorf("video API returned status %d: %w", resp.StatusCode, core.ErrRequestFailed)
	}

	var op veoOperation
	if err := json.Unmarshal(body, &op); err != nil {
		return nil, fmt.Errorf("failed to parse operation: %w", err)
	}
	return &op, nil
}

// download fetches the rendered file referenced by the operation.
func (c *VeoClient) download(ctx context.Context, uri string) (*Artifact, error) {
	if uri == "" {
		return nil, fmt.Errorf("video render returned an empty file uri")
	}

	sep := "?"
	if strings.Contains(uri, "?") {
		sep = "&"
	}
	req, err := http.NewRequestWithContext(ctx, "GET", uri+sep+"key="+c.apiKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("video download failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("video download returned status %d: %w", resp.StatusCode, core.ErrRequestFailed)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read video bytes: %w", err)
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "video/mp4"
	}
	return &Artifact{Data: data, MIME: mime}, nil
}

func (c *VeoClient) recordOutcome(status string) {
	telemetry.Counter("media.video.total",
		"module", telemetry.ModuleMedia,
		"model", c.model,
		"status", status)
}
