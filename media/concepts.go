package media

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/tripsmith-ai/tripsmith/core"
	"github.com/tripsmith-ai/tripsmith/telemetry"
)

const conceptMaxOutputTokens = 1024

const conceptPrompt = `You are a visionary film director for travel commercials.

Itinerary Summary: %q
User Context: %s

Task:
1. Create a prompt for a "Cinematic Travel Poster" that captures the essence of this trip.
2. Create a prompt for a "Teaser Video" (8 seconds) that shows the highlight of the trip.

Output JSON ONLY:
{
    "poster_prompt": "A high-resolution, sunlight-drenched shot of...",
    "video_prompt": "Drone shot flying over...",
    "mood": "Adventurous/Relaxing/Luxury"
}`

// conceptSchema constrains the model to the Concept shape.
var conceptSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"poster_prompt": {Type: genai.TypeString},
		"video_prompt":  {Type: genai.TypeString},
		"mood":          {Type: genai.TypeString},
	},
	Required: []string{"poster_prompt", "video_prompt", "mood"},
}

// GeminiConcepts generates creative briefs with Gemini in JSON response
// mode. An unusable reply degrades to an empty concept (the director
// backfills prompts from the summary); only transport failures are
// errors.
type GeminiConcepts struct {
	client *genai.Client
	model  string
	logger core.Logger
}

// NewGeminiConcepts creates a concept generator. The model name should
// be a text model; image and video rendering have their own clients.
func NewGeminiConcepts(ctx context.Context, apiKey, model string, logger core.Logger) (*GeminiConcepts, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("media API key not configured: %w", core.ErrMissingConfiguration)
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cl, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cl.WithComponent("planner/media")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiConcepts{
		client: client,
		model:  model,
		logger: logger,
	}, nil
}

// Close releases the underlying client connection.
func (g *GeminiConcepts) Close() error {
	return g.client.Close()
}

// Concept asks the model for a creative brief.
func (g *GeminiConcepts) Concept(ctx context.Context, req Request) (Concept, error) {
	model := g.client.GenerativeModel(g.model)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = conceptSchema
	model.SetTemperature(0.7)
	model.SetMaxOutputTokens(conceptMaxOutputTokens)

	started := time.Now()
	resp, err := model.GenerateContent(ctx, genai.Text(buildConceptPrompt(req)))
	if err != nil {
		g.logger.Error("Concept generation failed", map[string]interface{}{
			"operation": "media_concept",
			"model":     g.model,
			"error":     err.Error(),
		})
		telemetry.Counter("media.concept.total",
			"module", telemetry.ModuleMedia,
			"status", "error")
		return Concept{}, fmt.Errorf("concept request failed: %w", err)
	}

	concept, err := decodeConcept(resp)
	if err != nil {
		g.logger.Warn("Concept reply unusable, falling back to default prompts", map[string]interface{}{
			"operation": "media_concept",
			"model":     g.model,
			"error":     err.Error(),
		})
		telemetry.Counter("media.concept.total",
			"module", telemetry.ModuleMedia,
			"status", "parse_failed")
		return Concept{}, nil
	}

	g.logger.Debug("Concept generated", map[string]interface{}{
		"operation":   "media_concept",
		"model":       g.model,
		"mood":        concept.Mood,
		"duration_ms": time.Since(started).Milliseconds(),
	})
	telemetry.Counter("media.concept.total",
		"module", telemetry.ModuleMedia,
		"status", "success")

	return concept, nil
}

func buildConceptPrompt(req Request) string {
	profileJSON := "{}"
	if len(req.Profile) > 0 {
		if data, err := json.Marshal(req.Profile); err == nil {
			profileJSON = string(data)
		}
	}
	return fmt.Sprintf(conceptPrompt, req.Summary, profileJSON)
}

// decodeConcept extracts the Concept JSON from a model response.
func decodeConcept(resp *genai.GenerateContentResponse) (Concept, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return Concept{}, fmt.Errorf("empty concept response")
	}

	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return Concept{}, fmt.Errorf("unexpected concept part type %T", resp.Candidates[0].Content.Parts[0])
	}

	var concept Concept
	if err := json.Unmarshal([]byte(text), &concept); err != nil {
		return Concept{}, fmt.Errorf("failed to parse concept: %w", err)
	}
	return concept, nil
}
