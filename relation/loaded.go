package relation

import (
	"context"
	"iter"
	"reflect"
	"slices"

	"github.com/syssam/rom"
	"github.com/syssam/rom/mapper"
)

// Loaded is the materialized result of a Materializable: the source it was
// produced by and the collection of tuples, structs or, for unmapped graphs,
// the raw graph result.
type Loaded struct {
	source     Materializable
	collection []any
	mappers    *mapper.Registry
}

// NewLoaded returns the result of source holding collection.
func NewLoaded(source Materializable, collection []any) *Loaded {
	l := &Loaded{source: source, collection: collection}
	if s, ok := source.(Node); ok {
		l.mappers = s.Relation().Mappers()
	}
	if l.collection == nil {
		l.collection = []any{}
	}
	return l
}

// Source returns the materializable that produced the result.
func (l *Loaded) Source() Materializable { return l.source }

// Mappers returns the mapper registry of the source.
func (l *Loaded) Mappers() *mapper.Registry { return l.mappers }

// Call returns l. It makes loaded results usable wherever a Materializable
// is expected.
func (l *Loaded) Call(context.Context, ...any) (*Loaded, error) { return l, nil }

// Collection returns the underlying collection.
func (l *Loaded) Collection() []any { return l.collection }

// ToA returns a copy of the collection.
func (l *Loaded) ToA() []any { return slices.Clone(l.collection) }

// Each returns a sequence over the collection. The sequence can be ranged
// over more than once.
func (l *Loaded) Each() iter.Seq[any] {
	return func(yield func(any) bool) {
		for _, v := range l.collection {
			if !yield(v) {
				return
			}
		}
	}
}

// Len returns the size of the collection.
func (l *Loaded) Len() int { return len(l.collection) }

// Empty reports whether the collection holds no elements.
func (l *Loaded) Empty() bool { return len(l.collection) == 0 }

// New returns a result of the same source holding collection.
func (l *Loaded) New(collection []any) *Loaded {
	if collection == nil {
		collection = []any{}
	}
	return &Loaded{source: l.source, collection: collection, mappers: l.mappers}
}

// One returns the single element of the collection, or nil when it is empty.
// More than one element is a TupleCountMismatchError.
func (l *Loaded) One() (any, error) {
	switch len(l.collection) {
	case 0:
		return nil, nil
	case 1:
		return l.collection[0], nil
	default:
		return nil, rom.NewTupleCountMismatchError(label(l.source), len(l.collection))
	}
}

// Only returns the single element of the collection. An empty collection or
// more than one element is a TupleCountMismatchError.
func (l *Loaded) Only() (any, error) {
	if len(l.collection) != 1 {
		return nil, rom.NewTupleCountMismatchError(label(l.source), len(l.collection))
	}
	return l.collection[0], nil
}

// Tuples returns the tuple elements of the collection.
func (l *Loaded) Tuples() []rom.Tuple {
	out := make([]rom.Tuple, 0, len(l.collection))
	for _, v := range l.collection {
		if t, ok := rom.AsTuple(v); ok {
			out = append(out, t)
		}
	}
	return out
}

// Pluck returns the values of attr across the collection. Struct elements
// are read through their rom tags or underscored field names.
func (l *Loaded) Pluck(attr string) []any {
	out := make([]any, 0, len(l.collection))
	for _, v := range l.collection {
		if t, ok := rom.AsTuple(v); ok {
			out = append(out, t[attr])
			continue
		}
		out = append(out, structField(v, attr))
	}
	return out
}

// PrimaryKeys returns the primary key values of the collection.
func (l *Loaded) PrimaryKeys() []any {
	pk := DefaultPrimaryKey
	if s, ok := l.source.(Node); ok {
		pk = s.Relation().PrimaryKey()
	}
	return l.Pluck(pk)
}

// Graph returns the raw parts of an unmapped graph result.
func (l *Loaded) Graph() (root *Loaded, nodes []*Loaded, ok bool) {
	if len(l.collection) != 2 {
		return nil, nil, false
	}
	root, ok = l.collection[0].(*Loaded)
	if !ok {
		return nil, nil, false
	}
	nodes, ok = l.collection[1].([]*Loaded)
	if !ok {
		return nil, nil, false
	}
	return root, nodes, true
}

// MapWith maps the collection through the named mappers of the source
// registry, in order.
func (l *Loaded) MapWith(names ...string) (*Loaded, error) {
	collection := l.collection
	for _, name := range names {
		m, err := lookupMapper(l.mappers, name)
		if err != nil {
			return nil, err
		}
		if collection, err = m.Map(collection); err != nil {
			return nil, err
		}
	}
	return l.New(collection), nil
}

// input converts a raw graph result to mapper input.
func (l *Loaded) input() mapper.Input {
	if root, nodes, ok := l.Graph(); ok {
		in := mapper.Input{Tuples: root.Tuples(), Nodes: make([]mapper.Input, len(nodes))}
		for i, n := range nodes {
			in.Nodes[i] = n.input()
		}
		return in
	}
	return mapper.Input{Tuples: l.Tuples()}
}

func lookupMapper(reg *mapper.Registry, name string) (mapper.Mapper, error) {
	if reg == nil {
		return nil, rom.NewArgumentError("map_with", "no mapper registry for %q", name)
	}
	m, ok := reg.Get(name)
	if !ok {
		return nil, rom.NewArgumentError("map_with", "mapper %q is not registered", name)
	}
	return m, nil
}

func structField(v any, attr string) any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}
	rt := rv.Type()
	for i := range rt.NumField() {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		if mapper.FieldKey(sf) == attr {
			return rv.Field(i).Interface()
		}
	}
	return nil
}
