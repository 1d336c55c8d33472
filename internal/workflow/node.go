package workflow

import (
	"context"
	"maps"
)

// NodeKind is the closed set of node variants a graph can hold.
type NodeKind string

const (
	ToolNode       NodeKind = "tool"
	ValidationNode NodeKind = "validation"
	RoutingNode    NodeKind = "routing"
	TransformNode  NodeKind = "transform"
)

// Custom reports whether the kind is user logic rather than a protocol call.
func (k NodeKind) Custom() bool {
	return k != ToolNode
}

// Routing keys with a fixed meaning.
const (
	// DefaultRoute and the empty string both select the unconditional edge.
	DefaultRoute = "default"
	// ErrorRoute is returned by failing custom nodes and by tool nodes with
	// an on_error route.
	ErrorRoute = "error"
)

// PrevOutputKey is the shared state cursor pointing at the last output.
const PrevOutputKey = "_prev_output_key"

// Node is one step of a graph. The runner calls Prepare, Execute and Finalize
// in that order. Only Finalize may change shared state; the string it returns
// is the routing key that selects the next edge.
type Node interface {
	Name() string
	Kind() NodeKind
	Prepare(ctx context.Context, shared *SharedState) (any, error)
	Execute(ctx context.Context, input any) (any, error)
	Finalize(shared *SharedState, input, result any) (string, error)
}

// NodeSpec describes a built node and its unconditional successor.
type NodeSpec struct {
	Name           string
	Kind           NodeKind
	Next           string
	ExplicitParams []string
}

// SharedState is the mapping threaded through a single run. It is not safe
// for concurrent use.
type SharedState struct {
	values map[string]any
}

// NewSharedState returns a state seeded with a copy of initial.
func NewSharedState(initial map[string]any) *SharedState {
	values := make(map[string]any, len(initial))
	maps.Copy(values, initial)
	return &SharedState{values: values}
}

func InputKey(node string) string  { return node + "_input" }
func OutputKey(node string) string { return node + "_output" }

func (s *SharedState) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

func (s *SharedState) Set(key string, v any) {
	s.values[key] = v
}

// Values returns a shallow copy of the state.
func (s *SharedState) Values() map[string]any {
	return maps.Clone(s.values)
}

// Input finds the input of a node: its own "{node}_input" entry, else the
// output the cursor points at, else an empty object.
func (s *SharedState) Input(node string) any {
	if v, ok := s.values[InputKey(node)]; ok {
		return v
	}
	if key, ok := s.values[PrevOutputKey].(string); ok && key != "" {
		if v, ok := s.values[key]; ok {
			return v
		}
	}
	return map[string]any{}
}

// StoreOutput writes the output of a node and moves the cursor to it.
func (s *SharedState) StoreOutput(node string, v any) {
	key := OutputKey(node)
	s.values[key] = v
	s.values[PrevOutputKey] = key
}

// Output returns the value the cursor points at.
func (s *SharedState) Output() (any, bool) {
	key, ok := s.values[PrevOutputKey].(string)
	if !ok {
		return nil, false
	}
	v, ok := s.values[key]
	return v, ok
}
