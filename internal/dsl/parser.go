// Package dsl parses the workflow edge notation.
//
// One edge per line:
//
//	fetch                               implicit edge fetch >> complete
//	fetch >> extract                    unconditional edge
//	check - 'miss' >> fetch[query]      conditional edge with explicit params
//	scrape[url,title] >> store          source-side params (used when target has none)
//
// Params are the field names forwarded to the target node. When both sides carry
// params the target side wins.
package dsl

import (
	"fmt"
	"regexp"
	"strings"

	"mcptape/internal/errdefs"
	"mcptape/pkg/logging"
)

// Terminal is the sentinel target of an implicit edge. It is never a node.
const Terminal = "complete"

// Edge is one parsed workflow line.
type Edge struct {
	Source string
	Action string
	Target string
	Params []string
}

// Conditional reports whether the edge only fires on a matching routing key.
func (e Edge) Conditional() bool {
	return e.Action != ""
}

// String renders the edge back into canonical DSL form.
func (e Edge) String() string {
	if e.Target == Terminal && e.Action == "" {
		return e.Source + formatParams(e.Params)
	}
	var b strings.Builder
	b.WriteString(e.Source)
	if e.Action != "" {
		fmt.Fprintf(&b, " - '%s'", e.Action)
	}
	b.WriteString(" >> ")
	b.WriteString(e.Target)
	b.WriteString(formatParams(e.Params))
	return b.String()
}

func formatParams(params []string) string {
	if len(params) == 0 {
		return ""
	}
	return "[" + strings.Join(params, ",") + "]"
}

const (
	namePattern   = `[A-Za-z_][A-Za-z0-9_]*`
	paramsPattern = `(?:\[\s*([^\]]*?)\s*\])?`
)

var (
	edgeRe = regexp.MustCompile(`^(` + namePattern + `)\s*` + paramsPattern +
		`(?:\s*-\s*['"]([A-Za-z0-9_]+)['"])?\s*>>\s*(` + namePattern + `)\s*` + paramsPattern + `$`)
	bareRe  = regexp.MustCompile(`^(` + namePattern + `)\s*` + paramsPattern + `$`)
	paramRe = regexp.MustCompile(`^` + namePattern + `$`)
)

// Parse turns workflow lines into edges. Any non-blank, non-comment line that
// matches no grammar form is a configuration error.
func Parse(lines []string) ([]Edge, error) {
	edges, dropped, err := parse(lines)
	if err != nil {
		return nil, err
	}
	if len(dropped) > 0 {
		return nil, errdefs.Configurationf("line %d: unrecognised workflow line %q", dropped[0].Number, dropped[0].Text)
	}
	return edges, nil
}

// DroppedLine is a line ParseLenient could not match.
type DroppedLine struct {
	Number int
	Text   string
}

// ParseLenient behaves like Parse but skips unmatched lines and returns them.
func ParseLenient(lines []string) ([]Edge, []DroppedLine, error) {
	edges, dropped, err := parse(lines)
	for _, d := range dropped {
		logging.Warn("DSL", "Dropping unrecognised workflow line %d: %q", d.Number, d.Text)
	}
	return edges, dropped, err
}

func parse(lines []string) ([]Edge, []DroppedLine, error) {
	var edges []Edge
	var dropped []DroppedLine

	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if m := edgeRe.FindStringSubmatch(line); m != nil {
			sourceParams, err := splitParams(m[2], i+1)
			if err != nil {
				return nil, nil, err
			}
			targetParams, err := splitParams(m[5], i+1)
			if err != nil {
				return nil, nil, err
			}
			params := targetParams
			if params == nil {
				params = sourceParams
			}
			edges = append(edges, Edge{Source: m[1], Action: m[3], Target: m[4], Params: params})
			continue
		}

		if m := bareRe.FindStringSubmatch(line); m != nil {
			params, err := splitParams(m[2], i+1)
			if err != nil {
				return nil, nil, err
			}
			edges = append(edges, Edge{Source: m[1], Target: Terminal, Params: params})
			continue
		}

		dropped = append(dropped, DroppedLine{Number: i + 1, Text: line})
	}

	logging.Debug("DSL", "Parsed %d edges from %d lines", len(edges), len(lines))
	return edges, dropped, nil
}

// splitParams returns nil when the bracket group is absent or empty.
func splitParams(group string, lineNo int) ([]string, error) {
	if strings.TrimSpace(group) == "" {
		return nil, nil
	}
	parts := strings.Split(group, ",")
	params := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if !paramRe.MatchString(p) {
			return nil, errdefs.Configurationf("line %d: invalid parameter name %q", lineNo, p)
		}
		params = append(params, p)
	}
	return params, nil
}

// OrderedNodes lists every distinct node name in first-seen order. The terminal
// sentinel is never included.
func OrderedNodes(edges []Edge) []string {
	var nodes []string
	seen := make(map[string]bool)
	add := func(name string) {
		if name == Terminal || seen[name] {
			return
		}
		seen[name] = true
		nodes = append(nodes, name)
	}
	for _, e := range edges {
		add(e.Source)
		add(e.Target)
	}
	return nodes
}

// StartNode returns the single node that is a source and never a target. When no
// node or more than one node qualifies, the first edge's source is used.
func StartNode(edges []Edge) (string, error) {
	if len(edges) == 0 {
		return "", errdefs.Configurationf("no workflow edges found")
	}

	targets := make(map[string]bool)
	for _, e := range edges {
		targets[e.Target] = true
	}

	var candidates []string
	seen := make(map[string]bool)
	for _, e := range edges {
		if !targets[e.Source] && !seen[e.Source] {
			seen[e.Source] = true
			candidates = append(candidates, e.Source)
		}
	}

	if len(candidates) == 1 {
		return candidates[0], nil
	}
	if len(candidates) > 1 {
		logging.Debug("DSL", "Multiple entry nodes %v, using first edge source %s", candidates, edges[0].Source)
	}
	return edges[0].Source, nil
}

// NodeParams returns the explicit params for a node: those of the first edge
// that targets it with params, or, for a node that is never targeted, those
// declared on its bare line. nil means the node is auto-mapped.
func NodeParams(edges []Edge, name string) []string {
	for _, e := range edges {
		if e.Target == name && len(e.Params) > 0 {
			return e.Params
		}
	}
	for _, e := range edges {
		if e.Source == name && e.Target == Terminal && len(e.Params) > 0 {
			return e.Params
		}
	}
	return nil
}
