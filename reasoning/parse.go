package reasoning

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StripJSONFences removes Markdown code fences around a JSON payload.
// Reasoning output frequently wraps JSON in ```json blocks even when
// the prompt asks for bare JSON.
func StripJSONFences(text string) string {
	clean := strings.ReplaceAll(text, "```json", "")
	clean = strings.ReplaceAll(clean, "```", "")
	return strings.TrimSpace(clean)
}

// ParseJSON strips code fences from a reasoning response and
// unmarshals the remaining payload into v.
func ParseJSON(text string, v interface{}) error {
	clean := StripJSONFences(text)
	if clean == "" {
		return fmt.Errorf("empty reasoning payload")
	}
	if err := json.Unmarshal([]byte(clean), v); err != nil {
		return fmt.Errorf("failed to parse reasoning JSON: %w", err)
	}
	return nil
}
