package mapping

import (
	"context"
	"errors"
	"sort"
	"sync"

	"mcptape/internal/errdefs"
	"mcptape/pkg/logging"
)

// Strategy names how a Mapper chose the forwarded keys.
type Strategy string

const (
	StrategyExplicit    Strategy = "explicit"
	StrategyAuto        Strategy = "auto"
	StrategyFallback    Strategy = "fallback"
	StrategyPassthrough Strategy = "passthrough"
)

// Decision records what a Map call did.
type Decision struct {
	Strategy  Strategy
	Forwarded []string
	Missing   []string
	Reason    string
}

// Mapper filters the output of an upstream node down to the input of one tool.
// A Mapper belongs to a single node; it fetches the tool schema at most once.
type Mapper struct {
	Tool     string
	Explicit []string
	Source   SchemaSource

	mu        sync.Mutex
	fetched   bool
	schema    ToolSchema
	schemaErr error
}

// Map normalizes upstream and selects the keys to forward: an explicit
// allow-list when one is set, otherwise the intersection with the tool schema,
// otherwise everything.
func (m *Mapper) Map(ctx context.Context, upstream any) (any, Decision) {
	normalized := Normalize(upstream)
	data, ok := normalized.(map[string]any)
	if !ok {
		d := Decision{Strategy: StrategyPassthrough, Reason: "upstream is not an object"}
		logging.Debug("Mapper", "%s: passing %T through unfiltered", m.Tool, normalized)
		return normalized, d
	}

	var (
		out map[string]any
		d   Decision
	)
	if m.Explicit != nil {
		out, d = m.explicit(data)
	} else {
		out, d = m.auto(ctx, data)
	}
	logging.Debug("Mapper", "%s: %s mapping forwarded %v", m.Tool, d.Strategy, d.Forwarded)
	return out, d
}

func (m *Mapper) explicit(data map[string]any) (map[string]any, Decision) {
	d := Decision{Strategy: StrategyExplicit}
	out := make(map[string]any, len(m.Explicit))
	for _, key := range m.Explicit {
		v, ok := data[key]
		if !ok {
			d.Missing = append(d.Missing, key)
			continue
		}
		out[key] = v
		d.Forwarded = append(d.Forwarded, key)
	}
	if len(d.Missing) > 0 {
		logging.Warn("Mapper", "%s: explicit parameters missing from upstream output: %v", m.Tool, d.Missing)
	}
	return out, d
}

func (m *Mapper) auto(ctx context.Context, data map[string]any) (map[string]any, Decision) {
	schema, err := m.toolSchema(ctx)
	if err != nil {
		logging.Warn("Mapper", "%s: no schema available, forwarding all fields: %v", m.Tool, err)
		return forwardAll(data, Decision{Strategy: StrategyFallback, Reason: err.Error()})
	}

	d := Decision{Strategy: StrategyAuto}
	out := make(map[string]any)
	for key, v := range data {
		if schema.Has(key) {
			out[key] = v
			d.Forwarded = append(d.Forwarded, key)
		}
	}
	sort.Strings(d.Forwarded)

	if len(out) == 0 && len(data) > 0 {
		logging.Warn("Mapper", "%s: no upstream field matches the tool schema, forwarding all fields", m.Tool)
		d.Reason = "no field matched the schema"
		return forwardAll(data, d)
	}

	for _, req := range schema.Required {
		if _, ok := out[req]; !ok {
			d.Missing = append(d.Missing, req)
		}
	}
	if len(d.Missing) > 0 {
		logging.Warn("Mapper", "%s: required parameters missing: %v", m.Tool, d.Missing)
	}
	return out, d
}

func (m *Mapper) toolSchema(ctx context.Context) (ToolSchema, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.fetched {
		if m.Source == nil {
			m.schemaErr = errdefs.Discovery("tool schema", errors.New("no schema source configured"))
		} else {
			m.schema, m.schemaErr = m.Source.ToolSchema(ctx, m.Tool)
		}
		m.fetched = true
	}
	return m.schema, m.schemaErr
}

func forwardAll(data map[string]any, d Decision) (map[string]any, Decision) {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
		d.Forwarded = append(d.Forwarded, k)
	}
	sort.Strings(d.Forwarded)
	return out, d
}
