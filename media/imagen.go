package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tripsmith-ai/tripsmith/core"
	"github.com/tripsmith-ai/tripsmith/telemetry"
)

// GenerativeLanguageBaseURL is the default endpoint for the image and
// video rendering models.
const GenerativeLanguageBaseURL = "https://generativelanguage.googleapis.com/v1beta"

const (
	imageAspectRatio = "16:9"
	imageTimeout     = 2 * time.Minute
)

// ImagenClient renders posters through the Imagen predict API.
type ImagenClient struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
	logger  core.Logger
}

// NewImagenClient creates an Imagen client. An empty baseURL selects
// the public API endpoint.
func NewImagenClient(apiKey, baseURL string, cfg core.MediaConfig, logger core.Logger) *ImagenClient {
	if baseURL == "" {
		baseURL = GenerativeLanguageBaseURL
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cl, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cl.WithComponent("planner/media")
	}

	client := telemetry.NewTracedHTTPClient(nil)
	client.Timeout = imageTimeout

	return &ImagenClient{
		client:  client,
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   cfg.ImageModel,
		logger:  logger,
	}
}

// Wire types for the predict API.

type imagenRequest struct {
	Instances  []imagenInstance `json:"instances"`
	Parameters imagenParameters `json:"parameters"`
}

type imagenInstance struct {
	Prompt string `json:"prompt"`
}

type imagenParameters struct {
	SampleCount int    `json:"sampleCount"`
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type imagenResponse struct {
	Predictions []imagenPrediction `json:"predictions"`
}

type imagenPrediction struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType"`
}

// Generate renders one image for the prompt.
func (c *ImagenClient) Generate(ctx context.Context, prompt string) (*Artifact, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("image API key not configured: %w", core.ErrMissingConfiguration)
	}

	started := time.Now()

	reqBody := imagenRequest{
		Instances:  []imagenInstance{{Prompt: prompt}},
		Parameters: imagenParameters{SampleCount: 1, AspectRatio: imageAspectRatio},
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:predict?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.recordOutcome("error")
		return nil, fmt.Errorf("image request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.recordOutcome("error")
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Image rendering failed", map[string]interface{}{
			"operation":   "media_image",
			"model":       c.model,
			"status_code": resp.StatusCode,
		})
		c.recordOutcome("error")
		return nil, fmt.Errorf("image API returned status %d: %w", resp.StatusCode, core.ErrRequestFailed)
	}

	var parsed imagenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.recordOutcome("error")
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(parsed.Predictions) == 0 || parsed.Predictions[0].BytesBase64Encoded == "" {
		c.recordOutcome("empty")
		return nil, fmt.Errorf("no image in predict response")
	}

	data, err := base64.StdEncoding.DecodeString(parsed.Predictions[0].BytesBase64Encoded)
	if err != nil {
		c.recordOutcome("error")
		return nil, fmt.Errorf("failed to decode image bytes: %w", err)
	}

	mime := parsed.Predictions[0].MimeType
	if mime == "" {
		mime = "image/png"
	}

	c.logger.Info("Image rendered", map[string]interface{}{
		"operation":   "media_image",
		"model":       c.model,
		"bytes":       len(data),
		"duration_ms": time.Since(started).Milliseconds(),
	})
	c.recordOutcome("success")
	telemetry.Histogram("media.image.duration_ms", float64(time.Since(started).Milliseconds()),
		"module", telemetry.ModuleMedia,
		"model", c.model)

	return &Artifact{Data: data, MIME: mime}, nil
}

func (c *ImagenClient) recordOutcome(status string) {
	telemetry.Counter("media.image.total",
		"module", telemetry.ModuleMedia,
		"model", c.model,
		"status", status)
}
