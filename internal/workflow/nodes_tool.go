package workflow

import (
	"context"
	"errors"
	"fmt"

	"mcptape/internal/errdefs"
	"mcptape/internal/mapping"
	"mcptape/internal/registry"
	"mcptape/internal/tape"
	"mcptape/pkg/logging"
)

// ToolStep calls one protocol entity with the mapped output of the previous
// node.
type ToolStep struct {
	name    string
	entity  registry.Category
	target  string
	mapper  *mapping.Mapper
	invoker *tape.Invoker
	opts    tape.Options
	onError bool
}

// toolFailure is what Execute hands to Finalize when a failure is routed.
type toolFailure struct {
	err error
}

func (n *ToolStep) Name() string   { return n.name }
func (n *ToolStep) Kind() NodeKind { return ToolNode }

// Target returns the category and name of the called entity.
func (n *ToolStep) Target() (registry.Category, string) {
	return n.entity, n.target
}

func (n *ToolStep) Prepare(ctx context.Context, shared *SharedState) (any, error) {
	input, decision := n.mapper.Map(ctx, shared.Input(n.name))
	if decision.Reason != "" {
		logging.Debug("Graph", "%s: %s (%s)", n.name, decision.Strategy, decision.Reason)
	}
	return input, nil
}

func (n *ToolStep) Execute(ctx context.Context, input any) (any, error) {
	call, err := n.call(input)
	if err == nil {
		var out tape.Outcome
		out, err = n.invoker.Invoke(ctx, call, n.opts)
		if err == nil {
			logging.Debug("Graph", "%s: %s %s answered in %s (%s)", n.name, n.entity, call.Name, out.Latency, out.Mode)
			return out.Response, nil
		}
	}
	if n.onError {
		logging.Warn("Graph", "%s failed, routing to %q: %v", n.name, ErrorRoute, err)
		return toolFailure{err: err}, nil
	}
	return nil, fmt.Errorf("node %s: %w", n.name, err)
}

func (n *ToolStep) call(input any) (tape.Call, error) {
	args, ok := input.(map[string]any)
	if !ok && input != nil {
		return tape.Call{}, errdefs.Permanent("call "+n.target, errdefs.CauseValidation,
			fmt.Errorf("%s needs an object input, got %T", n.entity, input))
	}
	if args == nil {
		args = map[string]any{}
	}

	call := tape.Call{Category: n.entity, Name: n.target, Arguments: args}
	if n.entity == registry.CategoryResources {
		if uri, ok := args["uri"].(string); ok && uri != "" {
			call.Name = uri
		}
		call.Arguments = nil
	}
	return call, nil
}

func (n *ToolStep) Finalize(shared *SharedState, _, result any) (string, error) {
	if f, ok := result.(toolFailure); ok {
		shared.StoreOutput(n.name, map[string]any{
			"error": map[string]any{
				"type":    errorType(f.err),
				"message": f.err.Error(),
			},
		})
		return ErrorRoute, nil
	}
	shared.StoreOutput(n.name, result)
	return "", nil
}

// errorType names a failure the way error routing nodes expect.
func errorType(err error) string {
	if errors.Is(err, registry.ErrMockNotFound) {
		return "MockNotFoundError"
	}
	switch errdefs.CauseOf(err) {
	case errdefs.CauseTimeout:
		return "TimeoutError"
	case errdefs.CauseConnection:
		return "ConnectionError"
	case errdefs.CauseIO:
		return "IOError"
	case errdefs.CauseValidation:
		return "ValidationError"
	case errdefs.CauseTool:
		return "ToolError"
	}
	return "Error"
}
