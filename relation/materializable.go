package relation

import (
	"context"
	"fmt"
	"iter"

	"github.com/syssam/rom"
	"github.com/syssam/rom/ast"
	"github.com/syssam/rom/mapper"
)

// Materializable is anything that can be called to produce a Loaded result:
// relations, curried relations, graphs, wraps and composites.
type Materializable interface {
	Call(ctx context.Context, args ...any) (*Loaded, error)
}

// Node is a Materializable that can take part in a relation graph, either as
// its root or as one of its nodes. Composites are materializable but are not
// nodes.
type Node interface {
	Materializable
	// Name returns the name of the underlying relation.
	Name() *Name
	// Meta returns the combine and wrap flags of the node.
	Meta() ast.Meta
	// ToAST describes the shape of the node.
	ToAST() ast.Relation
	// Relation returns the relation the node reads from.
	Relation() *Relation

	with(fn func(*options)) Node
}

// options are the per-node settings shared by every Node kind. Graphs, wraps
// and curried relations keep them on their root relation.
type options struct {
	name       *Name
	autoMap    bool
	autoStruct bool
	namespace  *mapper.Namespace
	meta       ast.Meta
}

// WithAutoMap returns n with graph mapping toggled.
func WithAutoMap(n Node, enabled bool) Node {
	return n.with(func(o *options) { o.autoMap = enabled })
}

// WithAutoStruct returns n with struct hydration toggled.
func WithAutoStruct(n Node, enabled bool) Node {
	return n.with(func(o *options) { o.autoStruct = enabled })
}

// WithMeta returns n with meta replacing its combine and wrap flags.
func WithMeta(n Node, meta ast.Meta) Node {
	return n.with(func(o *options) {
		ds := o.meta.Dataset
		o.meta = meta.Clone()
		if o.meta.Dataset == "" {
			o.meta.Dataset = ds
		}
	})
}

// As returns n renamed to alias.
func As(n Node, alias string) Node {
	return n.with(func(o *options) {
		o.name = o.name.As(alias)
		o.meta.Alias = alias
	})
}

// ToA materializes m and returns its collection.
func ToA(ctx context.Context, m Materializable, args ...any) ([]any, error) {
	l, err := m.Call(ctx, args...)
	if err != nil {
		return nil, err
	}
	return l.ToA(), nil
}

// Each returns a sequence over the collection of m. Every iteration
// materializes m again; a failed materialization yields a single error.
func Each(ctx context.Context, m Materializable, args ...any) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		l, err := m.Call(ctx, args...)
		if err != nil {
			yield(nil, err)
			return
		}
		for v := range l.Each() {
			if !yield(v, nil) {
				return
			}
		}
	}
}

// One materializes m and returns its single element, or nil when empty.
func One(ctx context.Context, m Materializable, args ...any) (any, error) {
	l, err := m.Call(ctx, args...)
	if err != nil {
		return nil, err
	}
	return l.One()
}

// Only materializes m and returns its single element. Any other count is an
// error.
func Only(ctx context.Context, m Materializable, args ...any) (any, error) {
	l, err := m.Call(ctx, args...)
	if err != nil {
		return nil, err
	}
	return l.Only()
}

// Build returns a graph of root and nodes. Values that cannot take part in a
// graph, such as composites, are rejected.
func Build(root Materializable, nodes ...Materializable) (*Graph, error) {
	r, ok := root.(Node)
	if !ok {
		return nil, &rom.UnsupportedRelationError{Type: fmt.Sprintf("%T", root)}
	}
	ns := make([]Node, len(nodes))
	for i, m := range nodes {
		n, ok := m.(Node)
		if !ok {
			return nil, &rom.UnsupportedRelationError{Type: fmt.Sprintf("%T", m)}
		}
		ns[i] = n
	}
	return NewGraph(r, ns...), nil
}

func label(m any) string {
	if n, ok := m.(interface{ Name() *Name }); ok {
		return n.Name().String()
	}
	return fmt.Sprintf("%T", m)
}
