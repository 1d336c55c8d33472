package mapping

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

// Normalize turns an upstream node output into the value the next node sees.
//
//   - custom node output {"input": x, "routing_key": k} unwraps to x
//   - tool results, typed or in their JSON map form, flatten to the first text
//     item: a JSON object text decodes to that object, other text becomes
//     {"result": text}
//   - prompt and resource results become their generic JSON map
//   - nil becomes an empty map; any other value is returned as is
func Normalize(v any) any {
	switch r := v.(type) {
	case nil:
		return map[string]any{}
	case *mcp.CallToolResult:
		if r == nil {
			return map[string]any{}
		}
		return flattenToolResult(*r)
	case mcp.CallToolResult:
		return flattenToolResult(r)
	case *mcp.GetPromptResult, *mcp.ReadResourceResult, mcp.GetPromptResult, mcp.ReadResourceResult:
		return genericMap(v)
	case map[string]any:
		if isCustomOutput(r) {
			return Normalize(r["input"])
		}
		if items, ok := contentItems(r); ok {
			for _, item := range items {
				if item["type"] == "text" {
					if text, ok := item["text"].(string); ok {
						return flattenText(text)
					}
				}
			}
		}
		return r
	default:
		return v
	}
}

func isCustomOutput(m map[string]any) bool {
	if len(m) != 2 {
		return false
	}
	_, hasInput := m["input"]
	_, hasKey := m["routing_key"]
	return hasInput && hasKey
}

// contentItems recognises the serialised CallToolResult shape: a content array
// whose elements all carry a string type.
func contentItems(m map[string]any) ([]map[string]any, bool) {
	raw, ok := m["content"].([]any)
	if !ok {
		return nil, false
	}
	items := make([]map[string]any, 0, len(raw))
	for _, el := range raw {
		item, ok := el.(map[string]any)
		if !ok {
			return nil, false
		}
		if _, ok := item["type"].(string); !ok {
			return nil, false
		}
		items = append(items, item)
	}
	return items, true
}

func flattenToolResult(r mcp.CallToolResult) any {
	for _, c := range r.Content {
		if tc, ok := mcp.AsTextContent(c); ok {
			return flattenText(tc.Text)
		}
		if tc, ok := c.(*mcp.TextContent); ok && tc != nil {
			return flattenText(tc.Text)
		}
	}
	return genericMap(r)
}

func flattenText(text string) any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err == nil && obj != nil {
		return obj
	}
	return map[string]any{"result": text}
}

func genericMap(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return v
	}
	return m
}
