// Package relation implements relations and relation graphs.
//
// A Relation wraps an adapter Dataset together with its schema, views and
// options. Relations are immutable: restricting, renaming or toggling options
// returns a new relation. Relations compose into graphs (Combine, Graph),
// wraps (Wrap) and pipelines (Pipe, MapWith); all of them are Materializable
// and produce a Loaded result when called.
//
//	users, _ := reg.Fetch("users")
//	g, err := users.Combine("tasks")
//	loaded, err := g.Call(ctx)
//	for u := range loaded.Each() {
//	    fmt.Println(u.(rom.Tuple)["tasks"])
//	}
package relation

import (
	"context"
	"fmt"
	"slices"

	"github.com/syssam/rom"
	"github.com/syssam/rom/ast"
	"github.com/syssam/rom/contrib/dataloader"
	"github.com/syssam/rom/mapper"
)

// ByPK is the name of the built-in view restricting a relation by primary key.
const ByPK = "by_pk"

// Relation is a named, restrictable dataset with a schema.
type Relation struct {
	def      Definition
	dataset  Dataset
	registry *Registry
	opts     options
	// view and viewArgs record the last applied view.
	view     string
	viewArgs []any
}

// New returns a relation that is not registered anywhere. It is mostly
// useful for adapters and tests; applications define relations through a
// Registry.
func New(def Definition, ds Dataset) (*Relation, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &Relation{
		def:     def,
		dataset: ds,
		opts: options{
			name:       NewName(def.name, def.DatasetName(), ""),
			autoMap:    true,
			autoStruct: def.autoStruct,
			meta:       ast.Meta{Dataset: def.DatasetName()},
		},
	}, nil
}

func (r *Relation) clone() *Relation {
	c := *r
	c.opts.meta = r.opts.meta.Clone()
	c.viewArgs = slices.Clone(r.viewArgs)
	return &c
}

// Name returns the relation name.
func (r *Relation) Name() *Name { return r.opts.name }

// Meta returns the combine and wrap flags.
func (r *Relation) Meta() ast.Meta { return r.opts.meta.Clone() }

// Relation returns r.
func (r *Relation) Relation() *Relation { return r }

// Definition returns the definition the relation was built from.
func (r *Relation) Definition() Definition { return r.def }

// Schema returns the relation schema.
func (r *Relation) Schema() *Schema { return r.def.schema }

// Adapter returns the adapter identifier.
func (r *Relation) Adapter() string { return r.def.adapter }

// Dataset returns the underlying dataset.
func (r *Relation) Dataset() Dataset { return r.dataset }

// Registry returns the registry the relation was defined in, or nil.
func (r *Relation) Registry() *Registry { return r.registry }

// Mappers returns the mapper registry of the relation.
func (r *Relation) Mappers() *mapper.Registry {
	if r.registry == nil {
		return nil
	}
	return r.registry.Mappers()
}

// PrimaryKey returns the primary key attribute.
func (r *Relation) PrimaryKey() string { return r.def.schema.PrimaryKey() }

// ForeignKey returns the attribute of r referencing relation.
func (r *Relation) ForeignKey(relation string) string {
	return r.def.schema.ForeignKey(relation)
}

// AutoMap reports whether graphs rooted at r map their results.
func (r *Relation) AutoMap() bool { return r.opts.autoMap }

// AutoStruct reports whether results are hydrated into structs.
func (r *Relation) AutoStruct() bool { return r.opts.autoStruct }

// Namespace returns the struct namespace used for hydration.
func (r *Relation) Namespace() *mapper.Namespace { return r.opts.namespace }

// ViewName returns the last applied view and its arguments.
func (r *Relation) ViewName() (string, []any) {
	return r.view, slices.Clone(r.viewArgs)
}

func (r *Relation) with(fn func(*options)) Node {
	return r.withOpts(fn)
}

func (r *Relation) withOpts(fn func(*options)) *Relation {
	c := r.clone()
	fn(&c.opts)
	return c
}

// WithAutoMap returns r with graph mapping toggled.
func (r *Relation) WithAutoMap(enabled bool) *Relation {
	return r.withOpts(func(o *options) { o.autoMap = enabled })
}

// WithAutoStruct returns r with struct hydration toggled.
func (r *Relation) WithAutoStruct(enabled bool) *Relation {
	return r.withOpts(func(o *options) { o.autoStruct = enabled })
}

// WithNamespace returns r hydrating into the structs of ns.
func (r *Relation) WithNamespace(ns *mapper.Namespace) *Relation {
	return r.withOpts(func(o *options) { o.namespace = ns })
}

// As returns r renamed to alias.
func (r *Relation) As(alias string) *Relation {
	return As(r, alias).(*Relation)
}

// WithDataset returns r reading from ds.
func (r *Relation) WithDataset(ds Dataset) *Relation {
	c := r.clone()
	c.dataset = ds
	return c
}

// Where restricts r to tuples matching cond.
func (r *Relation) Where(cond rom.Tuple) *Relation {
	return r.WithDataset(r.dataset.Where(cond))
}

// In restricts r to tuples whose attr is one of values.
func (r *Relation) In(attr string, values []any) *Relation {
	return r.WithDataset(r.dataset.In(attr, values))
}

// Order orders r by attrs. Datasets that cannot order are returned as is.
func (r *Relation) Order(attrs ...string) *Relation {
	o, ok := r.dataset.(Orderer)
	if !ok {
		return r
	}
	return r.WithDataset(o.Order(attrs...))
}

// ByPK restricts r to the tuple with primary key pk.
func (r *Relation) ByPK(pk any) *Relation {
	c := r.Where(rom.Tuple{r.PrimaryKey(): pk})
	c.view, c.viewArgs = ByPK, []any{pk}
	return c
}

// Views returns the names of the views of r, sorted.
func (r *Relation) Views() []string {
	names := make([]string, 0, len(r.def.views)+1)
	names = append(names, ByPK)
	for name := range r.def.views {
		if name != ByPK {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

func (r *Relation) lookupView(name string) (View, error) {
	if v, ok := r.def.view(name); ok {
		return v, nil
	}
	if name == ByPK {
		return View{Name: ByPK, Arity: 1, Fn: func(r *Relation, args ...any) (*Relation, error) {
			return r.ByPK(args[0]), nil
		}}, nil
	}
	return View{}, rom.NewNoMethodError(r.Name().String(), name)
}

// View invokes the named view. With all of its arguments it returns the
// restricted *Relation, with fewer it returns a *Curried waiting for the rest.
func (r *Relation) View(name string, args ...any) (Node, error) {
	v, err := r.lookupView(name)
	if err != nil {
		return nil, err
	}
	switch {
	case len(args) > v.Arity:
		return nil, rom.NewArgumentError(name, "view takes %d arguments, got %d", v.Arity, len(args))
	case len(args) == v.Arity:
		return r.apply(v, args)
	default:
		return &Curried{relation: r, view: v, curryArgs: slices.Clone(args)}, nil
	}
}

// Apply invokes the named view with all of its arguments.
func (r *Relation) Apply(name string, args ...any) (*Relation, error) {
	v, err := r.lookupView(name)
	if err != nil {
		return nil, err
	}
	if len(args) != v.Arity {
		return nil, rom.NewArgumentError(name, "view takes %d arguments, got %d", v.Arity, len(args))
	}
	return r.apply(v, args)
}

func (r *Relation) apply(v View, args []any) (*Relation, error) {
	res, err := v.Fn(r, args...)
	if err != nil {
		return nil, fmt.Errorf("rom: %s.%s: %w", r.Name(), v.Name, err)
	}
	if res == r {
		res = r.clone()
	}
	res.view, res.viewArgs = v.Name, slices.Clone(args)
	return res, nil
}

// Call materializes the relation. Plain relations take no arguments.
func (r *Relation) Call(ctx context.Context, args ...any) (*Loaded, error) {
	if len(args) > 0 {
		return nil, rom.NewArgumentError(r.Name().String(), "relation takes no arguments, got %d", len(args))
	}
	tuples, err := r.dataset.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("rom: fetch %s: %w", r.Name(), err)
	}
	collection := make([]any, len(tuples))
	for i, t := range tuples {
		collection[i] = t
	}
	if r.opts.autoStruct && r.opts.namespace != nil {
		m, err := r.compile()
		if err != nil {
			return nil, err
		}
		if collection, err = m.Map(collection); err != nil {
			return nil, err
		}
	}
	return NewLoaded(r, collection), nil
}

// Count returns the number of tuples of the relation.
func (r *Relation) Count(ctx context.Context) (int, error) {
	return r.dataset.Count(ctx)
}

// ToAST describes the relation. Wrapped relations alias their attributes
// with the wrap name.
func (r *Relation) ToAST() ast.Relation {
	meta := r.opts.meta.Clone()
	meta.Alias = r.Name().Alias()
	prefix := ""
	if meta.Wrap {
		prefix = meta.CombineName
	}
	return ast.Relation{
		Name:   r.Name().Relation(),
		Header: r.def.schema.header(prefix),
		Meta:   meta,
	}
}

// Mapper returns the compiled mapper of the relation.
func (r *Relation) Mapper() (*mapper.Compiled, error) {
	return r.compile()
}

func (r *Relation) compile() (*mapper.Compiled, error) {
	return compile(r.Mappers(), r.ToAST(), r.opts)
}

func compile(reg *mapper.Registry, node ast.Relation, o options) (*mapper.Compiled, error) {
	opts := []mapper.Option{mapper.WithNamespace(o.namespace), mapper.WithStructs(o.autoStruct)}
	if reg == nil {
		return mapper.Compile(node, opts...)
	}
	return reg.Compile(node, opts...)
}

// Pipe returns the composition of r with right, a Materializable or a
// mapper.Mapper receiving the result of r.
func (r *Relation) Pipe(right any) (*Composite, error) {
	return NewComposite(r, right)
}

// MapWith pipes r through the named mappers of its registry, in order.
func (r *Relation) MapWith(names ...string) (*Composite, error) {
	return mapWith(r, r.Mappers(), names)
}

// Preload returns r curried with the preload view: called with a parent
// Loaded, it restricts r to the tuples whose target keys match the parent's
// source keys.
func (r *Relation) Preload(keys map[string]string) *Curried {
	pairs := ast.Meta{Keys: keys}.KeyPairs()
	return &Curried{relation: r, view: View{
		Name:  "preload",
		Arity: 1,
		Fn: func(r *Relation, args ...any) (*Relation, error) {
			parent, err := asLoaded(args[0])
			if err != nil {
				return nil, err
			}
			for _, p := range pairs {
				r = r.In(p.Target, distinct(parent.Pluck(p.Source)))
			}
			return r, nil
		},
	}}
}

// Association returns the relation node materializing the association name
// of r for the given combine keys.
func (r *Relation) Association(name string) (Association, *Relation, error) {
	assoc, ok := r.Schema().Association(name)
	if !ok {
		return Association{}, nil, rom.NewNoMethodError(r.Name().String(), name)
	}
	if r.registry == nil {
		return Association{}, nil, rom.NewArgumentError(name, "relation %s is not registered", r.Name())
	}
	target, err := r.registry.Fetch(assoc.TargetName())
	if err != nil {
		return Association{}, nil, err
	}
	return assoc, target, nil
}

// String implements fmt.Stringer.
func (r *Relation) String() string {
	if r.view == "" {
		return r.Name().String()
	}
	return fmt.Sprintf("%s.%s%v", r.Name(), r.view, r.viewArgs)
}

func asLoaded(v any) (*Loaded, error) {
	switch v := v.(type) {
	case *Loaded:
		return v, nil
	case []rom.Tuple, []any, rom.Tuple, map[string]any:
		tuples, ok := rom.AsTuples(v)
		if !ok {
			break
		}
		collection := make([]any, len(tuples))
		for i, t := range tuples {
			collection[i] = t
		}
		return NewLoaded(nil, collection), nil
	}
	return nil, rom.NewArgumentError("preload", "cannot preload from %T", v)
}

// distinct drops nil and duplicate values. Values are compared by their
// printed form so keys of different integer types collapse.
func distinct(values []any) []any {
	values = slices.DeleteFunc(values, func(v any) bool { return v == nil })
	key := func(v any) string { return fmt.Sprint(v) }
	return dataloader.OrderByKeysNoError(dataloader.UniqueKeys(values, key), values, key)
}
