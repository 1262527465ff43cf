package mapper

import (
	"fmt"
	"strings"

	"github.com/syssam/rom"
	"github.com/syssam/rom/ast"
	"github.com/syssam/rom/contrib/dataloader"
)

// Option configures a compiled mapper.
type Option func(*Compiled)

// WithNamespace hydrates mapped tuples into the struct types of ns.
func WithNamespace(ns *Namespace) Option {
	return func(c *Compiled) {
		c.namespace = ns
		c.structs = ns != nil
	}
}

// WithStructs toggles struct hydration. It has no effect without a namespace.
func WithStructs(enabled bool) Option {
	return func(c *Compiled) {
		c.structs = enabled && c.namespace != nil
	}
}

// Compiled is a mapper built from a relation AST.
type Compiled struct {
	node      ast.Relation
	namespace *Namespace
	structs   bool
}

// Compile builds a mapper from the AST of a relation or relation graph.
func Compile(node ast.Relation, opts ...Option) (*Compiled, error) {
	c := newCompiled(node, opts...)
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func newCompiled(node ast.Relation, opts ...Option) *Compiled {
	c := &Compiled{node: node}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Compiled) validate() error {
	var err error
	ast.Walk(c.node, func(r ast.Relation) bool {
		if err != nil {
			return false
		}
		if r.Meta.Combined() && r.Key() == "" {
			err = fmt.Errorf("mapper: combined node %q has no combine name", r.Name)
		}
		return true
	})
	return err
}

// AST returns the tree the mapper was compiled from.
func (c *Compiled) AST() ast.Relation { return c.node }

// Map implements Mapper for flat collections of tuples.
func (c *Compiled) Map(collection []any) ([]any, error) {
	tuples, ok := rom.AsTuples(collection)
	if !ok {
		return nil, fmt.Errorf("mapper: %s: collection does not hold tuples", c.node.Name)
	}
	return c.MapInput(Input{Tuples: tuples})
}

// MapInput maps the raw result of a relation graph.
func (c *Compiled) MapInput(in Input) ([]any, error) {
	tuples, err := c.transform(c.node, in)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(tuples))
	for i, t := range tuples {
		out[i] = t
	}
	if !c.structs {
		return out, nil
	}
	return c.namespace.HydrateAll(c.node, tuples)
}

// transform nests every combined node under its parent and folds every
// wrapped node into a nested tuple.
func (c *Compiled) transform(node ast.Relation, in Input) ([]rom.Tuple, error) {
	tuples := make([]rom.Tuple, len(in.Tuples))
	for i, t := range in.Tuples {
		tuples[i] = t.Clone()
	}
	var combined, wrapped []ast.Relation
	for _, n := range node.Nodes() {
		switch {
		case n.Meta.Wrap:
			wrapped = append(wrapped, n)
		case n.Meta.Combined():
			combined = append(combined, n)
		}
	}
	if len(in.Nodes) > 0 && len(in.Nodes) != len(combined) {
		return nil, fmt.Errorf("mapper: %s: got %d node results for %d combined nodes", node.Name, len(in.Nodes), len(combined))
	}
	// Without node results the tuples are taken to be nested already.
	for i, child := range combined {
		if len(in.Nodes) == 0 {
			break
		}
		children, err := c.transform(child, in.Nodes[i])
		if err != nil {
			return nil, fmt.Errorf("mapper: %s.%s: %w", node.Name, child.Key(), err)
		}
		nest(tuples, child, children)
	}
	for _, w := range wrapped {
		for _, t := range tuples {
			unwrap(t, w)
		}
	}
	return tuples, nil
}

// nest attaches children to parents matching parent[source] == child[target].
func nest(parents []rom.Tuple, node ast.Relation, children []rom.Tuple) {
	pairs := node.Meta.KeyPairs()
	groups := make([][]rom.Tuple, len(parents))
	if len(pairs) == 0 {
		for i := range groups {
			groups[i] = children
		}
	} else {
		keys := make([]string, len(parents))
		for i, parent := range parents {
			keys[i] = joinKey(parent, pairs, func(p ast.KeyPair) string { return p.Source })
		}
		groups = dataloader.OrderGroupsByKeys(keys, dataloader.GroupByKey(children, func(t rom.Tuple) string {
			return joinKey(t, pairs, func(p ast.KeyPair) string { return p.Target })
		}))
	}
	for i, parent := range parents {
		group := groups[i]
		if node.Meta.CombineType == ast.One {
			if len(group) > 0 {
				parent[node.Key()] = group[0]
			} else {
				parent[node.Key()] = nil
			}
			continue
		}
		if group == nil {
			group = []rom.Tuple{}
		}
		parent[node.Key()] = group
	}
}

// joinKey renders the join values of t so that values of different numeric
// types coming from different datasets compare equal.
func joinKey(t rom.Tuple, pairs []ast.KeyPair, attr func(ast.KeyPair) string) string {
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = fmt.Sprint(t[attr(p)])
	}
	return strings.Join(parts, "\x00")
}

// unwrap moves the prefixed attributes of a wrapped node into a nested tuple.
// A wrapped tuple whose attributes are all nil is stored as nil. Tuples
// without any prefixed attribute are folded already and left as is.
func unwrap(t rom.Tuple, node ast.Relation) {
	nested := make(rom.Tuple)
	found, present := false, false
	for _, a := range node.Attributes() {
		v, ok := t[a.Key()]
		if !ok {
			continue
		}
		found = true
		delete(t, a.Key())
		nested[a.Name] = v
		if v != nil {
			present = true
		}
	}
	if !found {
		return
	}
	if !present {
		t[node.Key()] = nil
		return
	}
	t[node.Key()] = nested
}
