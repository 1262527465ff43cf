package relation

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/syssam/rom"
	"github.com/syssam/rom/ast"
	"github.com/syssam/rom/mapper"
)

// Wrap is a root node whose tuples have the attributes of its wrapped nodes
// inlined. It is materialized by a single joined read of the root dataset,
// which must implement Joiner.
type Wrap struct {
	root  Node
	nodes []Node
}

// NewWrap returns root with nodes wrapped. Nodes are expected to be marked
// with Wrapped.
func NewWrap(root Node, nodes ...Node) *Wrap {
	return &Wrap{root: root, nodes: slices.Clone(nodes)}
}

// Root returns the root node.
func (w *Wrap) Root() Node { return w.root }

// Nodes returns a copy of the wrapped nodes.
func (w *Wrap) Nodes() []Node { return slices.Clone(w.nodes) }

// Name returns the root name.
func (w *Wrap) Name() *Name { return w.root.Name() }

// Meta returns the root meta.
func (w *Wrap) Meta() ast.Meta { return w.root.Meta() }

// Relation returns the relation of the root.
func (w *Wrap) Relation() *Relation { return w.root.Relation() }

func (w *Wrap) with(fn func(*options)) Node {
	return &Wrap{root: w.root.with(fn), nodes: w.nodes}
}

// ToAST describes the root with the wrapped nodes appended to its header.
func (w *Wrap) ToAST() ast.Relation { return graphAST(w.root, w.nodes) }

// Call joins the wrapped datasets into the root and materializes the result.
func (w *Wrap) Call(ctx context.Context, args ...any) (*Loaded, error) {
	base, err := resolve(w.root, args)
	if err != nil {
		return nil, err
	}
	joined := base.dataset
	for _, n := range w.nodes {
		j, ok := joined.(Joiner)
		if !ok {
			return nil, fmt.Errorf("%w: dataset of %s cannot join %s", rom.ErrNotImplemented, base.Name(), n.Name())
		}
		meta := n.Meta()
		joined = j.Join(n.Relation().Dataset(), meta.Keys, meta.CombineName)
	}
	l, err := base.WithDataset(joined).WithAutoStruct(false).Call(ctx)
	if err != nil {
		return nil, err
	}
	if !base.AutoMap() {
		return NewLoaded(w, l.Collection()), nil
	}
	m, err := compile(base.Mappers(), w.ToAST(), base.opts)
	if err != nil {
		return nil, err
	}
	collection, err := m.MapInput(mapper.Input{Tuples: l.Tuples()})
	if err != nil {
		return nil, fmt.Errorf("rom: map %s: %w", base.Name(), err)
	}
	return NewLoaded(w, collection), nil
}

// Wrap returns a new wrap with the nodes resolved from args appended.
func (w *Wrap) Wrap(args ...any) (*Wrap, error) {
	nodes, err := wrapNodes(w.root.Relation(), args)
	if err != nil {
		return nil, err
	}
	return &Wrap{root: w.root, nodes: append(slices.Clone(w.nodes), nodes...)}, nil
}

// String implements fmt.Stringer.
func (w *Wrap) String() string {
	return "wrap " + graphString(w.root, w.nodes)
}

// resolve returns the relation a root node reads from once args are applied.
func resolve(root Node, args []any) (*Relation, error) {
	switch n := root.(type) {
	case *Relation:
		if len(args) > 0 {
			return nil, rom.NewArgumentError(n.Name().String(), "relation takes no arguments, got %d", len(args))
		}
		return n, nil
	case *Curried:
		applied, err := n.Curry(args...)
		if err != nil {
			return nil, err
		}
		r, ok := applied.(*Relation)
		if !ok {
			return nil, rom.NewArgumentError(n.View(), "curried view needs %d arguments", n.Arity())
		}
		return r, nil
	default:
		return nil, &rom.UnsupportedRelationError{Type: fmt.Sprintf("%T", root)}
	}
}

// Wrapped marks n as a node inlined into its parent under name, joined by
// keys mapping parent attributes to attributes of n.
func Wrapped(n Node, name string, keys map[string]string, fromAssoc bool) Node {
	return n.with(func(o *options) {
		o.meta.Wrap = true
		o.meta.WrapFromAssoc = fromAssoc
		o.meta.CombineType = ast.One
		o.meta.CombineName = name
		o.meta.Keys = maps.Clone(keys)
		o.autoMap = false
		o.autoStruct = false
		o.name = o.name.As(name)
	})
}

// Wrap returns r with the nodes resolved from args wrapped: association
// names, relation Nodes or CombineOpts of name to Node/Pair.
func (r *Relation) Wrap(args ...any) (*Wrap, error) {
	nodes, err := wrapNodes(r, args)
	if err != nil {
		return nil, err
	}
	return NewWrap(r, nodes...), nil
}

// WrapParent wraps each named parent node, keyed by the foreign key of r
// referencing it.
func (r *Relation) WrapParent(opts CombineOpts) (*Wrap, error) {
	nodes := make([]Node, 0, len(opts))
	for _, name := range slices.Sorted(maps.Keys(opts)) {
		n, ok := opts[name].(Node)
		if !ok {
			return nil, &rom.UnsupportedRelationError{Type: fmt.Sprintf("%T", opts[name])}
		}
		nodes = append(nodes, Wrapped(n, name, InferCombineKeys(n.Relation(), r, Parent), false))
	}
	return NewWrap(r, nodes...), nil
}

func wrapNodes(source *Relation, args []any) ([]Node, error) {
	var nodes []Node
	for _, arg := range args {
		switch a := arg.(type) {
		case string:
			assoc, target, err := source.Association(a)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, Wrapped(target, a, assoc.CombineKeys(source, target), true))
		case *Composite:
			return nil, &rom.UnsupportedRelationError{Type: fmt.Sprintf("%T", a)}
		case Node:
			nodes = append(nodes, Wrapped(a, CombineTupleKey(a, ast.One), combineKeys(source, a), false))
		case CombineOpts:
			for _, name := range slices.Sorted(maps.Keys(a)) {
				switch entry := a[name].(type) {
				case Pair:
					nodes = append(nodes, Wrapped(entry.Node, name, entry.Keys, false))
				case *Composite:
					return nil, &rom.UnsupportedRelationError{Type: fmt.Sprintf("%T", entry)}
				case Node:
					nodes = append(nodes, Wrapped(entry, name, combineKeys(source, entry), false))
				default:
					return nil, &rom.UnsupportedRelationError{Type: fmt.Sprintf("%T", entry)}
				}
			}
		default:
			return nil, &rom.UnsupportedRelationError{Type: fmt.Sprintf("%T", arg)}
		}
	}
	return nodes, nil
}
