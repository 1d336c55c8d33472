package workflow

import (
	"fmt"
	"maps"
	"sort"

	"mcptape/internal/errdefs"
)

// NodeConstructor builds a custom node from its name and params.
type NodeConstructor func(name string, params map[string]any) (Node, error)

type binding struct {
	typeName string
	params   map[string]any
}

// NodeFactory resolves node names to custom node types through an explicit
// name table. Names that are not in the table are not custom nodes.
type NodeFactory struct {
	types    map[string]NodeConstructor
	bindings map[string]binding
}

// NewNodeFactory returns a factory with no types registered.
func NewNodeFactory() *NodeFactory {
	return &NodeFactory{
		types:    make(map[string]NodeConstructor),
		bindings: make(map[string]binding),
	}
}

// DefaultNodeFactory returns a factory holding the built-in types, each
// mapped under its type name and its alias.
func DefaultNodeFactory() *NodeFactory {
	f := NewNodeFactory()
	registerBuiltins(f)
	return f
}

// Register adds a custom type. The type name and every alias are mapped to it
// with no params.
func (f *NodeFactory) Register(typeName string, ctor NodeConstructor, aliases ...string) error {
	if typeName == "" || ctor == nil {
		return fmt.Errorf("node type needs a name and a constructor")
	}
	if _, exists := f.types[typeName]; exists {
		return fmt.Errorf("node type %s is already registered", typeName)
	}
	f.types[typeName] = ctor
	for _, name := range append([]string{typeName}, aliases...) {
		f.bindings[name] = binding{typeName: typeName}
	}
	return nil
}

func (f *NodeFactory) mustRegister(typeName string, ctor NodeConstructor, aliases ...string) {
	if err := f.Register(typeName, ctor, aliases...); err != nil {
		panic(err)
	}
}

// Map binds a node name to a registered type with params.
func (f *NodeFactory) Map(nodeName, typeName string, params map[string]any) error {
	if _, ok := f.types[typeName]; !ok {
		return errdefs.Configurationf("node %s: unknown node type %q (registered: %v)", nodeName, typeName, f.Types())
	}
	f.bindings[nodeName] = binding{typeName: typeName, params: params}
	return nil
}

// Mapped reports whether a node name resolves to a custom type.
func (f *NodeFactory) Mapped(nodeName string) bool {
	_, ok := f.bindings[nodeName]
	return ok
}

// Create builds the custom node mapped under nodeName.
func (f *NodeFactory) Create(nodeName string) (Node, error) {
	m, ok := f.bindings[nodeName]
	if !ok {
		return nil, errdefs.Configurationf("node %s is not mapped to a custom type", nodeName)
	}
	params := m.params
	if params == nil {
		params = map[string]any{}
	}
	node, err := f.types[m.typeName](nodeName, params)
	if err != nil {
		if errdefs.IsConfiguration(err) {
			return nil, err
		}
		return nil, errdefs.Configuration("create node "+nodeName, err)
	}
	return node, nil
}

// Types lists the registered type names.
func (f *NodeFactory) Types() []string {
	names := make([]string, 0, len(f.types))
	for name := range f.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns an independent copy of the factory.
func (f *NodeFactory) Clone() *NodeFactory {
	return &NodeFactory{
		types:    maps.Clone(f.types),
		bindings: maps.Clone(f.bindings),
	}
}
