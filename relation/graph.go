package relation

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/syssam/rom"
	"github.com/syssam/rom/ast"
	"github.com/syssam/rom/mapper"
)

// Graph is a root node with nodes loaded from the root's result. Each node
// is called with the loaded root; the results are nested by the graph mapper
// when auto mapping is enabled.
type Graph struct {
	root  Node
	nodes []Node
}

// NodeFunc transforms a graph node.
type NodeFunc func(Node) (Node, error)

// NewGraph returns the graph of root and nodes.
func NewGraph(root Node, nodes ...Node) *Graph {
	return &Graph{root: root, nodes: slices.Clone(nodes)}
}

// Root returns the root node.
func (g *Graph) Root() Node { return g.root }

// Nodes returns a copy of the graph nodes.
func (g *Graph) Nodes() []Node { return slices.Clone(g.nodes) }

// Name returns the root name.
func (g *Graph) Name() *Name { return g.root.Name() }

// Meta returns the root meta.
func (g *Graph) Meta() ast.Meta { return g.root.Meta() }

// Relation returns the relation of the root.
func (g *Graph) Relation() *Relation { return g.root.Relation() }

// AutoMap reports whether results are mapped.
func (g *Graph) AutoMap() bool { return g.Relation().AutoMap() }

func (g *Graph) with(fn func(*options)) Node {
	return &Graph{root: g.root.with(fn), nodes: g.nodes}
}

// ToAST describes the root with the nodes appended to its header.
func (g *Graph) ToAST() ast.Relation {
	return graphAST(g.root, g.nodes)
}

func graphAST(root Node, nodes []Node) ast.Relation {
	r := root.ToAST()
	r.Header = slices.Clone(r.Header)
	for _, n := range nodes {
		r.Header = append(r.Header, n.ToAST())
	}
	return r
}

// Mapper returns the compiled mapper of the graph.
func (g *Graph) Mapper() (*mapper.Compiled, error) {
	rel := g.Relation()
	return compile(rel.Mappers(), g.ToAST(), rel.opts)
}

// Call materializes the root with args and every node with the loaded root.
// When the root is empty the nodes are not called.
func (g *Graph) Call(ctx context.Context, args ...any) (*Loaded, error) {
	return g.call(ctx, g, args)
}

func (g *Graph) call(ctx context.Context, self Node, args []any) (*Loaded, error) {
	root := g.root.with(func(o *options) { o.autoStruct = false })
	left, err := root.Call(ctx, args...)
	if err != nil {
		return nil, err
	}
	right := make([]*Loaded, len(g.nodes))
	for i, n := range g.nodes {
		if left.Empty() {
			right[i] = NewLoaded(n, nil)
			continue
		}
		if right[i], err = n.Call(ctx, left); err != nil {
			return nil, fmt.Errorf("rom: load %s of %s: %w", n.Name().Key(), g.root.Name(), err)
		}
	}
	slog.Debug("relation graph loaded",
		"root", g.root.Name().String(),
		"nodes", len(g.nodes),
		"tuples", left.Len(),
	)
	raw := NewLoaded(self, []any{left, right})
	if !g.AutoMap() {
		return raw, nil
	}
	m, err := g.Mapper()
	if err != nil {
		return nil, err
	}
	collection, err := m.MapInput(raw.input())
	if err != nil {
		return nil, fmt.Errorf("rom: map %s: %w", g.root.Name(), err)
	}
	return NewLoaded(self, collection), nil
}

// Graph returns a new graph with nodes appended.
func (g *Graph) Graph(nodes ...Node) *Graph {
	return &Graph{root: g.root, nodes: append(slices.Clone(g.nodes), nodes...)}
}

// WithNodes returns a new graph with the nodes replaced.
func (g *Graph) WithNodes(nodes ...Node) *Graph {
	return NewGraph(g.root, nodes...)
}

// Node returns a new graph where the node at the dotted path, such as
// "tasks.tags", is replaced by fn's result. Intermediate nodes must be graphs.
func (g *Graph) Node(path string, fn NodeFunc) (*Graph, error) {
	nodes, err := replaceNode(g.nodes, strings.Split(path, "."), fn)
	if err != nil {
		return nil, err
	}
	return NewGraph(g.root, nodes...), nil
}

// Combine returns a combined graph with the nodes resolved from args appended.
func (g *Graph) Combine(args ...any) (*Combined, error) {
	nodes, err := combineNodes(g.root, args)
	if err != nil {
		return nil, err
	}
	return newCombined(g.root, append(slices.Clone(g.nodes), nodes...)), nil
}

// Pipe returns the composition of g with right.
func (g *Graph) Pipe(right any) (*Composite, error) {
	return NewComposite(g, right)
}

// MapWith pipes g through the named mappers of its registry.
func (g *Graph) MapWith(names ...string) (*Composite, error) {
	return mapWith(g, g.Relation().Mappers(), names)
}

// String implements fmt.Stringer.
func (g *Graph) String() string {
	return graphString(g.root, g.nodes)
}

func graphString(root Node, nodes []Node) string {
	keys := make([]string, len(nodes))
	for i, n := range nodes {
		keys[i] = n.Name().Key()
	}
	return fmt.Sprintf("%s[%s]", root.Name(), strings.Join(keys, ","))
}

type nodeReplacer interface {
	replace(path []string, fn NodeFunc) (Node, error)
}

func (g *Graph) replace(path []string, fn NodeFunc) (Node, error) {
	return g.Node(strings.Join(path, "."), fn)
}

func replaceNode(nodes []Node, path []string, fn NodeFunc) ([]Node, error) {
	idx := slices.IndexFunc(nodes, func(n Node) bool { return n.Name().Key() == path[0] })
	if idx < 0 {
		return nil, rom.NewArgumentError("node", "graph has no node %q", path[0])
	}
	var (
		replaced Node
		err      error
	)
	if len(path) == 1 {
		replaced, err = fn(nodes[idx])
	} else {
		r, ok := nodes[idx].(nodeReplacer)
		if !ok {
			return nil, rom.NewArgumentError("node", "node %q is not a graph", path[0])
		}
		replaced, err = r.replace(path[1:], fn)
	}
	if err != nil {
		return nil, err
	}
	if replaced == nil {
		return nil, rom.NewArgumentError("node", "node %q replaced with nil", path[0])
	}
	out := slices.Clone(nodes)
	out[idx] = replaced
	return out, nil
}

// Combined is the graph built by Combine. Besides loading it can compile the
// command graph persisting nested input of the same shape.
type Combined struct {
	Graph
}

func newCombined(root Node, nodes []Node) *Combined {
	return &Combined{Graph: Graph{root: root, nodes: slices.Clone(nodes)}}
}

// Call materializes the combined graph.
func (c *Combined) Call(ctx context.Context, args ...any) (*Loaded, error) {
	return c.call(ctx, c, args)
}

func (c *Combined) with(fn func(*options)) Node {
	return newCombined(c.root.with(fn), c.nodes)
}

// Combine returns a new combined graph with the nodes resolved from args
// appended.
func (c *Combined) Combine(args ...any) (*Combined, error) {
	return c.Graph.Combine(args...)
}

// Node returns a new combined graph where the node at the dotted path is
// replaced by fn's result.
func (c *Combined) Node(path string, fn NodeFunc) (*Combined, error) {
	nodes, err := replaceNode(c.nodes, strings.Split(path, "."), fn)
	if err != nil {
		return nil, err
	}
	return newCombined(c.root, nodes), nil
}

func (c *Combined) replace(path []string, fn NodeFunc) (Node, error) {
	return c.Node(strings.Join(path, "."), fn)
}

// As returns c renamed to alias.
func (c *Combined) As(alias string) *Combined {
	return As(c, alias).(*Combined)
}

// Pipe returns the composition of c with right.
func (c *Combined) Pipe(right any) (*Composite, error) {
	return NewComposite(c, right)
}

// WithStructNamespace returns c hydrating every level into the structs of ns.
func (c *Combined) WithStructNamespace(ns *mapper.Namespace) *Combined {
	return withNamespace(c, ns).(*Combined)
}

func withNamespace(n Node, ns *mapper.Namespace) Node {
	set := func(o *options) { o.namespace = ns }
	switch n := n.(type) {
	case *Combined:
		nodes := make([]Node, len(n.nodes))
		for i, child := range n.nodes {
			nodes[i] = withNamespace(child, ns)
		}
		return newCombined(n.root.with(set), nodes)
	case *Graph:
		nodes := make([]Node, len(n.nodes))
		for i, child := range n.nodes {
			nodes[i] = withNamespace(child, ns)
		}
		return NewGraph(n.root.with(set), nodes...)
	default:
		return n.with(set)
	}
}

// Command compiles the command graph of type typ ("create", "update" or
// "delete") for the shape of c. The result cardinality defaults to one.
func (c *Combined) Command(typ string, result ast.CombineType) (CommandNode, error) {
	reg := c.Relation().Registry()
	if reg == nil || reg.Commands() == nil {
		return nil, fmt.Errorf("%w: %s has no command compiler", rom.ErrNotImplemented, c.Name())
	}
	if result == "" {
		result = ast.One
	}
	return reg.Commands().CompileCommand(c.ToAST(), typ, result)
}

// String implements fmt.Stringer.
func (c *Combined) String() string {
	return graphString(c.root, c.nodes)
}
