package workflow

import (
	"context"
	"slices"

	"mcptape/pkg/logging"
)

// ValidateFunc inspects a node input and returns a route.
type ValidateFunc func(input any) (string, error)

// RouteFunc picks a route for a node input.
type RouteFunc func(input any) (string, error)

// TransformFunc reshapes a node input.
type TransformFunc func(input any) (any, error)

// routedOutput is the output shape of validation and routing nodes.
func routedOutput(input any, key string) map[string]any {
	return map[string]any{"input": input, "routing_key": key}
}

// ValidationStep routes on the result of a validate function. A route outside
// AllowedRoutes becomes DefaultRoute; a failing validate routes to "error".
type ValidationStep struct {
	name          string
	validate      ValidateFunc
	AllowedRoutes []string
	DefaultRoute  string
}

func NewValidationStep(name string, fn ValidateFunc, allowed []string, defaultRoute string) *ValidationStep {
	if defaultRoute == "" {
		defaultRoute = DefaultRoute
	}
	return &ValidationStep{name: name, validate: fn, AllowedRoutes: allowed, DefaultRoute: defaultRoute}
}

func (n *ValidationStep) Name() string   { return n.name }
func (n *ValidationStep) Kind() NodeKind { return ValidationNode }

func (n *ValidationStep) Prepare(_ context.Context, shared *SharedState) (any, error) {
	return shared.Input(n.name), nil
}

func (n *ValidationStep) Execute(_ context.Context, input any) (any, error) {
	key, err := n.validate(input)
	if err != nil {
		logging.Error("Graph", err, "Validation failed in %s", n.name)
		return ErrorRoute, nil
	}
	if len(n.AllowedRoutes) > 0 && !slices.Contains(n.AllowedRoutes, key) {
		logging.Warn("Graph", "Invalid route %q from %s, using %q", key, n.name, n.DefaultRoute)
		return n.DefaultRoute, nil
	}
	return key, nil
}

func (n *ValidationStep) Finalize(shared *SharedState, input, result any) (string, error) {
	key, _ := result.(string)
	shared.StoreOutput(n.name, routedOutput(input, key))
	return key, nil
}

// RoutingStep routes on the result of a route function; a failing route
// function routes to "error".
type RoutingStep struct {
	name  string
	route RouteFunc
}

func NewRoutingStep(name string, fn RouteFunc) *RoutingStep {
	return &RoutingStep{name: name, route: fn}
}

func (n *RoutingStep) Name() string   { return n.name }
func (n *RoutingStep) Kind() NodeKind { return RoutingNode }

func (n *RoutingStep) Prepare(_ context.Context, shared *SharedState) (any, error) {
	return shared.Input(n.name), nil
}

func (n *RoutingStep) Execute(_ context.Context, input any) (any, error) {
	key, err := n.route(input)
	if err != nil {
		logging.Error("Graph", err, "Routing failed in %s", n.name)
		return ErrorRoute, nil
	}
	return key, nil
}

func (n *RoutingStep) Finalize(shared *SharedState, input, result any) (string, error) {
	key, _ := result.(string)
	shared.StoreOutput(n.name, routedOutput(input, key))
	return key, nil
}

// TransformStep reshapes its input and always follows Next. When the
// transform fails the input is passed on unchanged.
type TransformStep struct {
	name      string
	transform TransformFunc
	Next      string
}

func NewTransformStep(name string, fn TransformFunc, next string) *TransformStep {
	if next == "" {
		next = DefaultRoute
	}
	return &TransformStep{name: name, transform: fn, Next: next}
}

func (n *TransformStep) Name() string   { return n.name }
func (n *TransformStep) Kind() NodeKind { return TransformNode }

func (n *TransformStep) Prepare(_ context.Context, shared *SharedState) (any, error) {
	return shared.Input(n.name), nil
}

func (n *TransformStep) Execute(_ context.Context, input any) (any, error) {
	out, err := n.transform(input)
	if err != nil {
		logging.Error("Graph", err, "Transform failed in %s, passing input through", n.name)
		return input, nil
	}
	return out, nil
}

func (n *TransformStep) Finalize(shared *SharedState, _, result any) (string, error) {
	shared.StoreOutput(n.name, result)
	return n.Next, nil
}
