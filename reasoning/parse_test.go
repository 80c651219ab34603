package reasoning

import (
	"strings"
	"testing"
)

func TestStripJSONFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "json fence",
			input: "```json\n{\"destination\": \"Lisbon\"}\n```",
			want:  `{"destination": "Lisbon"}`,
		},
		{
			name:  "bare fence",
			input: "```\n{\"destination\": \"Lisbon\"}\n```",
			want:  `{"destination": "Lisbon"}`,
		},
		{
			name:  "no fence",
			input: `{"destination": "Lisbon"}`,
			want:  `{"destination": "Lisbon"}`,
		},
		{
			name:  "surrounding whitespace",
			input: "  \n{\"a\": 1}\n  ",
			want:  `{"a": 1}`,
		},
		{
			name:  "empty",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripJSONFences(tt.input); got != tt.want {
				t.Errorf("StripJSONFences() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseJSON(t *testing.T) {
	type payload struct {
		Destination string   `json:"destination"`
		Interests   []string `json:"interests"`
	}

	t.Run("fenced object", func(t *testing.T) {
		var p payload
		err := ParseJSON("```json\n{\"destination\": \"Kyoto\", \"interests\": [\"food\"]}\n```", &p)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Destination != "Kyoto" || len(p.Interests) != 1 {
			t.Errorf("unexpected payload: %+v", p)
		}
	})

	t.Run("plain object", func(t *testing.T) {
		var p payload
		if err := ParseJSON(`{"destination": "Kyoto"}`, &p); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Destination != "Kyoto" {
			t.Errorf("unexpected payload: %+v", p)
		}
	})

	t.Run("empty payload", func(t *testing.T) {
		var p payload
		err := ParseJSON("```json\n```", &p)
		if err == nil {
			t.Fatal("expected error for empty payload")
		}
		if !strings.Contains(err.Error(), "empty reasoning payload") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("conversational text", func(t *testing.T) {
		var p payload
		err := ParseJSON("Sure! Here is the plan you asked for.", &p)
		if err == nil {
			t.Fatal("expected error for non-JSON text")
		}
		if !strings.Contains(err.Error(), "failed to parse reasoning JSON") {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
