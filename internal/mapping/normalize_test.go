package mapping

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  any
	}{
		{
			name:  "nil becomes empty map",
			input: nil,
			want:  map[string]any{},
		},
		{
			name:  "tool result with JSON object text",
			input: mcp.NewToolResultText(`{"title":"Go","tags":["a"]}`),
			want:  map[string]any{"title": "Go", "tags": []any{"a"}},
		},
		{
			name:  "tool result with plain text",
			input: mcp.NewToolResultText("hi there"),
			want:  map[string]any{"result": "hi there"},
		},
		{
			name: "serialized tool result",
			input: map[string]any{
				"content": []any{
					map[string]any{"type": "image", "data": "...", "mimeType": "image/png"},
					map[string]any{"type": "text", "text": "hello"},
				},
			},
			want: map[string]any{"result": "hello"},
		},
		{
			name:  "custom node output unwraps",
			input: map[string]any{"input": map[string]any{"a": 1}, "routing_key": "next"},
			want:  map[string]any{"a": 1},
		},
		{
			name:  "map with extra keys is not custom output",
			input: map[string]any{"input": 1, "routing_key": "x", "other": 2},
			want:  map[string]any{"input": 1, "routing_key": "x", "other": 2},
		},
		{
			name:  "content that is not a typed list stays",
			input: map[string]any{"content": "plain"},
			want:  map[string]any{"content": "plain"},
		},
		{
			name:  "scalar passes through",
			input: "text",
			want:  "text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestNormalize_ResourceResultBecomesMap(t *testing.T) {
	res := &mcp.ReadResourceResult{
		Contents: []mcp.ResourceContents{
			mcp.TextResourceContents{URI: "file:///a", MIMEType: "text/plain", Text: "body"},
		},
	}

	out, ok := Normalize(res).(map[string]any)
	if assert.True(t, ok) {
		contents, ok := out["contents"].([]any)
		if assert.True(t, ok) && assert.Len(t, contents, 1) {
			assert.Equal(t, "body", contents[0].(map[string]any)["text"])
		}
	}
}
