package relation

import (
	"fmt"
	"maps"
	"slices"

	"github.com/go-openapi/inflect"

	"github.com/syssam/rom"
	"github.com/syssam/rom/ast"
)

// KeyType selects the direction of inferred combine keys.
type KeyType string

// Key directions.
const (
	// Children keys map the source primary key to the target foreign key.
	Children KeyType = "children"
	// Parent keys map the target foreign key to the source primary key.
	Parent KeyType = "parent"
)

// CombineOpts configures Combine. The keys "one" and "many" take a relation
// Node, a Pair, or a nested CombineOpts of name to Node/Pair; any other key
// names an association whose target is combined with the value as nested
// combine arguments.
type CombineOpts map[string]any

// Pair is a node with explicit combine keys.
type Pair struct {
	Node Node
	Keys map[string]string
}

type combineEntry struct {
	name string
	node Node
	keys map[string]string
	typ  ast.CombineType
}

// Combine returns the graph of r and the nodes resolved from args. Arguments
// are association names (string or []string), relation Nodes combined as
// children, or CombineOpts.
//
//	users.Combine("tasks")
//	users.Combine(relation.CombineOpts{"tasks": "tags"})
//	users.Combine(relation.CombineOpts{"many": relation.CombineOpts{"todos": tasks}})
func (r *Relation) Combine(args ...any) (*Combined, error) {
	nodes, err := combineNodes(r, args)
	if err != nil {
		return nil, err
	}
	return newCombined(r, nodes), nil
}

// Combine returns the graph of c and the nodes resolved from args.
func (c *Curried) Combine(args ...any) (*Combined, error) {
	nodes, err := combineNodes(c, args)
	if err != nil {
		return nil, err
	}
	return newCombined(c, nodes), nil
}

// Graph returns the graph of r and nodes.
func (r *Relation) Graph(nodes ...Node) *Graph {
	return NewGraph(r, nodes...)
}

// CombineChildren combines each named node as a many child.
func (r *Relation) CombineChildren(opts CombineOpts) (*Combined, error) {
	return r.Combine(CombineOpts{string(ast.Many): opts})
}

// CombineParents combines each named node as a one parent, keyed by the
// foreign key of r referencing it.
func (r *Relation) CombineParents(opts CombineOpts) (*Combined, error) {
	parents := make(CombineOpts, len(opts))
	for _, name := range slices.Sorted(maps.Keys(opts)) {
		switch v := opts[name].(type) {
		case Node:
			parents[name] = Pair{Node: v, Keys: InferCombineKeys(v.Relation(), r, Parent)}
		case Pair:
			parents[name] = v
		default:
			return nil, rom.NewArgumentError("combine_parents", "unsupported parent %T for %q", v, name)
		}
	}
	return r.Combine(CombineOpts{string(ast.One): parents})
}

// InferCombineKeys returns the conventional keys between source and target.
// Parent keys map target's foreign key to source's primary key, children
// keys map source's primary key to target's foreign key.
func InferCombineKeys(source, target *Relation, typ KeyType) map[string]string {
	if typ == Parent {
		return map[string]string{target.ForeignKey(source.Name().Relation()): source.PrimaryKey()}
	}
	return map[string]string{source.PrimaryKey(): target.ForeignKey(source.Name().Relation())}
}

// CombineTupleKey returns the key a node is nested under for the given
// cardinality: the singular relation name for one, the relation name for many.
func CombineTupleKey(n Node, typ ast.CombineType) string {
	name := n.Name().Relation()
	if typ == ast.One {
		return inflect.Singularize(name)
	}
	return name
}

// CombinedNode marks n as a node combined under name with keys. The node is
// renamed to name and loses auto mapping and struct hydration; the graph
// maps and hydrates the whole tree.
func CombinedNode(n Node, name string, keys map[string]string, typ ast.CombineType) Node {
	return n.with(func(o *options) {
		o.meta.CombineType = typ
		o.meta.CombineName = name
		o.meta.Keys = maps.Clone(keys)
		o.meta.Wrap = false
		o.autoMap = false
		o.autoStruct = false
		o.name = o.name.As(name)
		o.meta.Alias = name
	})
}

func combineNodes(source Node, args []any) ([]Node, error) {
	var entries []combineEntry
	for _, arg := range args {
		es, err := combineArg(source, arg)
		if err != nil {
			return nil, err
		}
		entries = append(entries, es...)
	}
	nodes := make([]Node, len(entries))
	for i, e := range entries {
		nodes[i] = CombinedNode(e.node, e.name, e.keys, e.typ)
	}
	return nodes, nil
}

func combineArg(source Node, arg any) ([]combineEntry, error) {
	switch a := arg.(type) {
	case string:
		e, err := combineAssoc(source, a, nil)
		if err != nil {
			return nil, err
		}
		return []combineEntry{e}, nil
	case []string:
		out := make([]combineEntry, 0, len(a))
		for _, name := range a {
			e, err := combineAssoc(source, name, nil)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		return out, nil
	case *Composite:
		return nil, &rom.UnsupportedRelationError{Type: fmt.Sprintf("%T", a)}
	case Node:
		e, err := combineRelation(source, CombineTupleKey(a, ast.Many), a, nil, ast.Many)
		if err != nil {
			return nil, err
		}
		return []combineEntry{e}, nil
	case CombineOpts:
		var out []combineEntry
		for _, key := range slices.Sorted(maps.Keys(a)) {
			var (
				es  []combineEntry
				err error
			)
			switch key {
			case string(ast.One), string(ast.Many):
				es, err = combineTyped(source, ast.CombineType(key), a[key])
			default:
				var e combineEntry
				e, err = combineAssoc(source, key, a[key])
				es = []combineEntry{e}
			}
			if err != nil {
				return nil, err
			}
			out = append(out, es...)
		}
		return out, nil
	default:
		return nil, &rom.UnsupportedRelationError{Type: fmt.Sprintf("%T", arg)}
	}
}

// combineTyped resolves the value of a "one" or "many" option.
func combineTyped(source Node, typ ast.CombineType, v any) ([]combineEntry, error) {
	switch v := v.(type) {
	case CombineOpts:
		out := make([]combineEntry, 0, len(v))
		for _, name := range slices.Sorted(maps.Keys(v)) {
			var (
				e   combineEntry
				err error
			)
			switch entry := v[name].(type) {
			case Pair:
				e, err = combineRelation(source, name, entry.Node, entry.Keys, typ)
			case *Composite:
				err = &rom.UnsupportedRelationError{Type: fmt.Sprintf("%T", entry)}
			case Node:
				e, err = combineRelation(source, name, entry, nil, typ)
			default:
				err = &rom.UnsupportedRelationError{Type: fmt.Sprintf("%T", entry)}
			}
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		return out, nil
	case Pair:
		e, err := combineRelation(source, CombineTupleKey(v.Node, typ), v.Node, v.Keys, typ)
		if err != nil {
			return nil, err
		}
		return []combineEntry{e}, nil
	case *Composite:
		return nil, &rom.UnsupportedRelationError{Type: fmt.Sprintf("%T", v)}
	case Node:
		e, err := combineRelation(source, CombineTupleKey(v, typ), v, nil, typ)
		if err != nil {
			return nil, err
		}
		return []combineEntry{e}, nil
	default:
		return nil, &rom.UnsupportedRelationError{Type: fmt.Sprintf("%T", v)}
	}
}

// combineRelation combines a bare node. Without explicit keys the keys come
// from an association of the source targeting the node, then from the
// node's own meta, then from the naming convention.
func combineRelation(source Node, name string, target Node, keys map[string]string, typ ast.CombineType) (combineEntry, error) {
	if keys == nil {
		keys = combineKeys(source.Relation(), target)
	}
	return combineEntry{name: name, node: preload(target, keys), keys: keys, typ: typ}, nil
}

// preload curries plain relations, and graphs or wraps rooted at one, with
// the preload view so that they load from their parent.
func preload(n Node, keys map[string]string) Node {
	switch n := n.(type) {
	case *Relation:
		return n.Preload(keys)
	case *Combined:
		if r, ok := n.root.(*Relation); ok {
			return newCombined(r.Preload(keys), n.nodes)
		}
	case *Graph:
		if r, ok := n.root.(*Relation); ok {
			return NewGraph(r.Preload(keys), n.nodes...)
		}
	case *Wrap:
		if r, ok := n.root.(*Relation); ok {
			return NewWrap(r.Preload(keys), n.nodes...)
		}
	}
	return n
}

func combineKeys(source *Relation, target Node) map[string]string {
	for _, a := range source.Schema().Associations() {
		if a.TargetName() == target.Name().Relation() {
			return a.CombineKeys(source, target.Relation())
		}
	}
	if keys := target.Meta().Keys; len(keys) > 0 {
		return maps.Clone(keys)
	}
	return InferCombineKeys(source, target.Relation(), Children)
}

// combineAssoc combines the association name of source. A non-nil nested
// value is combined onto the association target first.
func combineAssoc(source Node, name string, nested any) (combineEntry, error) {
	src := source.Relation()
	assoc, target, err := src.Association(name)
	if err != nil {
		if !rom.IsNoMethod(err) || src.Registry() == nil {
			return combineEntry{}, err
		}
		// Not an association: combine the registered relation as children.
		rel, ferr := src.Registry().Fetch(name)
		if ferr != nil {
			return combineEntry{}, rom.NewArgumentError("combine", "%s has no association or relation %q", src.Name(), name)
		}
		assoc, target = Association{Name: name, Type: OneToMany}, rel
	}
	keys := assoc.CombineKeys(src, target)
	var node Node = target.Preload(keys)
	if assoc.View != "" {
		if node, err = target.View(assoc.View); err != nil {
			return combineEntry{}, err
		}
	}
	if nested != nil {
		if node, err = combineNested(node, nested); err != nil {
			return combineEntry{}, fmt.Errorf("rom: combine %s.%s: %w", src.Name(), name, err)
		}
	}
	return combineEntry{name: name, node: node, keys: keys, typ: assoc.Result()}, nil
}

func combineNested(node Node, nested any) (Node, error) {
	var args []any
	switch v := nested.(type) {
	case []any:
		args = v
	case []string:
		for _, s := range v {
			args = append(args, s)
		}
	default:
		args = []any{v}
	}
	switch n := node.(type) {
	case *Relation:
		return n.Combine(args...)
	case *Curried:
		return n.Combine(args...)
	case *Combined:
		return n.Combine(args...)
	case *Graph:
		return n.Combine(args...)
	default:
		return nil, &rom.UnsupportedRelationError{Type: fmt.Sprintf("%T", node)}
	}
}
