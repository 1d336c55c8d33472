package testing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"mcptape/internal/mapping"
	"mcptape/internal/registry"
)

// CallOutcome is what a test call produced.
type CallOutcome struct {
	Response any
	Latency  time.Duration
	Err      error
}

// LatencyMs returns the latency in fractional milliseconds.
func (o CallOutcome) LatencyMs() float64 {
	return float64(o.Latency) / float64(time.Millisecond)
}

// Validate checks an outcome against the expectations of a test. Checks run
// in order (call error, schema, keywords, latency) and the first failing check
// decides the verdict; later checks are not reported. A response object with a
// top-level "error" key counts as a call error.
func Validate(res CallOutcome, tc TestCase, schemas *SchemaRegistry) (string, []string) {
	if res.Err != nil {
		return registry.StatusFail, []string{"Error: " + res.Err.Error()}
	}
	if msg, ok := errorPayload(res.Response); ok {
		return registry.StatusFail, []string{"Error: " + msg}
	}

	normalized := mapping.Normalize(res.Response)

	if name := tc.ExpectedSchema; name != "" {
		if schemas == nil {
			schemas = NewSchemaRegistry()
		}
		schema, ok := schemas.Lookup(name)
		if !ok {
			return registry.StatusFail, []string{fmt.Sprintf("Unknown schema '%s'", name)}
		}
		if err := validateAgainst(schema, normalized); err != nil {
			return registry.StatusFail, []string{"Schema validation failed: " + err.Error()}
		}
	}

	if len(tc.ExpectedKeywords) > 0 {
		raw := strings.ToLower(jsonText(res.Response))
		flat := strings.ToLower(jsonText(normalized))
		var missing []string
		for _, kw := range tc.ExpectedKeywords {
			needle := strings.ToLower(kw)
			if !strings.Contains(raw, needle) && !strings.Contains(flat, needle) {
				missing = append(missing, kw)
			}
		}
		if len(missing) > 0 {
			return registry.StatusFail, []string{"Missing keywords: " + strings.Join(missing, ", ")}
		}
	}

	if limit := tc.ExpectedMetrics.MaxLatencyMs; limit != nil {
		if ms := res.LatencyMs(); ms > *limit {
			return registry.StatusFail, []string{fmt.Sprintf("Latency %.1f > %g", ms, *limit)}
		}
	}

	return registry.StatusPass, nil
}

// jsonText serializes v without HTML escaping so keywords containing <, >
// or & still match.
func jsonText(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return buf.String()
}

// errorPayload reports the "error" value of a response object.
func errorPayload(v any) (string, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	e, ok := m["error"]
	if !ok {
		return "", false
	}
	if s, ok := e.(string); ok {
		return s, true
	}
	return strings.TrimSpace(jsonText(e)), true
}
