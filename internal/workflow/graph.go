package workflow

import (
	"context"
	"slices"

	"mcptape/internal/dsl"
	"mcptape/internal/errdefs"
	"mcptape/internal/mapping"
	"mcptape/internal/registry"
	"mcptape/internal/tape"
	"mcptape/pkg/logging"
)

// ToolCatalog lists the tools a server offers.
type ToolCatalog interface {
	ToolNames(ctx context.Context) ([]string, error)
}

// Deps are the collaborators tool nodes need. Catalog and Schemas may be nil.
type Deps struct {
	Invoker *tape.Invoker
	Schemas mapping.SchemaSource
	Catalog ToolCatalog
	Options tape.Options
}

// Graph is a built workflow: instantiated nodes plus their wiring.
type Graph struct {
	name          string
	start         string
	order         []string
	nodes         map[string]Node
	specs         map[string]NodeSpec
	edges         []dsl.Edge
	unconditional map[string]string
	conditional   map[string]map[string]string
}

// Build parses the workflow lines, resolves every node and wires the edges.
// Custom nodes come from the factory name table, extended with the
// definition's nodes section; every other name is a tool node and must be in
// the catalog when one is available.
func Build(ctx context.Context, def Definition, factory *NodeFactory, deps Deps) (*Graph, error) {
	edges, err := dsl.Parse(def.Workflow)
	if err != nil {
		return nil, err
	}
	start, err := dsl.StartNode(edges)
	if err != nil {
		return nil, err
	}
	if factory == nil {
		factory = DefaultNodeFactory()
	}
	factory = factory.Clone()

	toolConfigs := make(map[string]NodeConfig)
	for name, cfg := range def.Nodes {
		if cfg.Type != "" {
			if err := factory.Map(name, cfg.Type, cfg.Params); err != nil {
				return nil, err
			}
			continue
		}
		toolConfigs[name] = cfg
	}

	g := &Graph{
		name:          def.Name,
		start:         start,
		order:         dsl.OrderedNodes(edges),
		nodes:         make(map[string]Node),
		specs:         make(map[string]NodeSpec),
		edges:         edges,
		unconditional: make(map[string]string),
		conditional:   make(map[string]map[string]string),
	}

	var catalog map[string]bool
	catalogLoaded := false

	for _, name := range g.order {
		var node Node
		switch {
		case factory.Mapped(name) && !isToolConfig(toolConfigs, name):
			node, err = factory.Create(name)
			if err != nil {
				return nil, err
			}
		default:
			cfg, declared := toolConfigs[name]
			if !declared {
				if !catalogLoaded {
					catalog = loadCatalog(ctx, deps.Catalog)
					catalogLoaded = true
				}
				if catalog != nil && !catalog[name] {
					return nil, errdefs.Configurationf("workflow %s: node %s is neither a custom node nor a tool of the server", def.Name, name)
				}
			}
			node, err = newToolStep(name, cfg, dsl.NodeParams(edges, name), slices.Contains(def.OnError, name), deps)
			if err != nil {
				return nil, err
			}
		}
		g.nodes[name] = node
	}

	for _, e := range edges {
		if e.Target == dsl.Terminal {
			continue
		}
		if e.Action == "" {
			if prev, ok := g.unconditional[e.Source]; ok && prev != e.Target {
				logging.Warn("Graph", "%s already continues to %s, ignoring edge to %s", e.Source, prev, e.Target)
				continue
			}
			g.unconditional[e.Source] = e.Target
			continue
		}
		if g.conditional[e.Source] == nil {
			g.conditional[e.Source] = make(map[string]string)
		}
		g.conditional[e.Source][e.Action] = e.Target
	}

	for _, name := range g.order {
		g.specs[name] = NodeSpec{
			Name:           name,
			Kind:           g.nodes[name].Kind(),
			Next:           g.unconditional[name],
			ExplicitParams: dsl.NodeParams(edges, name),
		}
	}

	logging.Info("Graph", "Built workflow %s: %d nodes, start %s", def.Name, len(g.order), start)
	return g, nil
}

func isToolConfig(configs map[string]NodeConfig, name string) bool {
	_, ok := configs[name]
	return ok
}

// loadCatalog returns nil when no catalog is available, which lets every
// unmapped name through as a tool.
func loadCatalog(ctx context.Context, c ToolCatalog) map[string]bool {
	if c == nil {
		logging.Debug("Graph", "No tool catalog, treating unmapped nodes as tools")
		return nil
	}
	names, err := c.ToolNames(ctx)
	if err != nil {
		logging.Warn("Graph", "Could not list server tools, treating unmapped nodes as tools: %v", err)
		return nil
	}
	catalog := make(map[string]bool, len(names))
	for _, n := range names {
		catalog[n] = true
	}
	return catalog
}

func newToolStep(name string, cfg NodeConfig, explicit []string, onError bool, deps Deps) (*ToolStep, error) {
	entity, err := cfg.EntityCategory()
	if err != nil {
		return nil, errdefs.Configuration("node "+name, err)
	}
	target := name
	if cfg.Name != "" {
		target = cfg.Name
	}
	invoker := deps.Invoker
	if invoker == nil {
		invoker = &tape.Invoker{}
	}
	var source mapping.SchemaSource
	if entity == registry.CategoryTools {
		source = deps.Schemas
	}
	return &ToolStep{
		name:    name,
		entity:  entity,
		target:  target,
		mapper:  &mapping.Mapper{Tool: target, Explicit: explicit, Source: source},
		invoker: invoker,
		opts:    deps.Options,
		onError: onError,
	}, nil
}

// Name is the workflow name.
func (g *Graph) Name() string { return g.name }

// Start is the entry node.
func (g *Graph) Start() string { return g.start }

// Node returns a node by name.
func (g *Graph) Node(name string) (Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Nodes lists the node specs in first-seen order.
func (g *Graph) Nodes() []NodeSpec {
	out := make([]NodeSpec, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.specs[name])
	}
	return out
}

// Edges returns the parsed edges, terminal edges included.
func (g *Graph) Edges() []dsl.Edge {
	return slices.Clone(g.edges)
}

// Successor picks the next node for a routing key: an exact action match
// first, then the unconditional edge for "" and "default".
func (g *Graph) Successor(name, routingKey string) (string, bool) {
	if next, ok := g.conditional[name][routingKey]; ok {
		return next, true
	}
	if routingKey == "" || routingKey == DefaultRoute {
		next, ok := g.unconditional[name]
		return next, ok
	}
	return "", false
}
