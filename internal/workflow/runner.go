package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mcptape/pkg/logging"
)

// Step is one visited node.
type Step struct {
	Node       string        `json:"node"`
	Kind       NodeKind      `json:"kind"`
	RoutingKey string        `json:"routing_key"`
	Duration   time.Duration `json:"duration"`
}

// RunTrace records the path a run took.
type RunTrace struct {
	RunID    string        `json:"run_id"`
	Workflow string        `json:"workflow"`
	Steps    []Step        `json:"steps"`
	Last     string        `json:"last"`
	Duration time.Duration `json:"duration"`
}

// Runner drives a graph one node at a time.
type Runner struct {
	// OnStep, when set, is called after every finalized node.
	OnStep func(Step)
}

// Run executes the graph from its start node until a node's routing key
// matches no edge. There is no cycle detection; ctx is checked between nodes.
func (r *Runner) Run(ctx context.Context, g *Graph, shared *SharedState) (*RunTrace, error) {
	trace := &RunTrace{RunID: uuid.NewString(), Workflow: g.Name()}
	start := time.Now()
	defer func() { trace.Duration = time.Since(start) }()

	current := g.Start()
	for current != "" {
		if err := ctx.Err(); err != nil {
			return trace, fmt.Errorf("workflow %s interrupted before %s: %w", g.Name(), current, err)
		}
		node, ok := g.Node(current)
		if !ok {
			return trace, fmt.Errorf("workflow %s: node %s is not part of the graph", g.Name(), current)
		}

		stepStart := time.Now()
		key, err := runNode(ctx, node, shared)
		if err != nil {
			return trace, err
		}
		step := Step{Node: current, Kind: node.Kind(), RoutingKey: key, Duration: time.Since(stepStart)}
		trace.Steps = append(trace.Steps, step)
		trace.Last = current
		if r.OnStep != nil {
			r.OnStep(step)
		}

		next, ok := g.Successor(current, key)
		if !ok {
			logging.Debug("Runner", "%s returned %q with no matching edge, stopping", current, key)
			break
		}
		logging.Debug("Runner", "%s -[%s]-> %s", current, key, next)
		current = next
	}

	logging.Info("Runner", "Workflow %s finished at %s after %d steps", g.Name(), trace.Last, len(trace.Steps))
	return trace, nil
}

func runNode(ctx context.Context, node Node, shared *SharedState) (string, error) {
	input, err := node.Prepare(ctx, shared)
	if err != nil {
		return "", fmt.Errorf("prepare %s: %w", node.Name(), err)
	}
	result, err := node.Execute(ctx, input)
	if err != nil {
		return "", err
	}
	key, err := node.Finalize(shared, input, result)
	if err != nil {
		return "", fmt.Errorf("finalize %s: %w", node.Name(), err)
	}
	return key, nil
}

// RunDefinition builds def and runs it with input as the start node's input.
// A nil input uses the definition's initial_input.
func (r *Runner) RunDefinition(ctx context.Context, def Definition, factory *NodeFactory, deps Deps, input any) (*RunTrace, *SharedState, error) {
	g, err := Build(ctx, def, factory, deps)
	if err != nil {
		return nil, nil, err
	}
	if input == nil {
		input = def.InitialInput
	}
	shared := NewSharedState(nil)
	if input != nil {
		shared.Set(InputKey(g.Start()), input)
	}
	trace, err := r.Run(ctx, g, shared)
	return trace, shared, err
}
