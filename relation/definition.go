package relation

import (
	"maps"

	"github.com/syssam/rom"
)

// ViewFunc implements a named view of a relation. It receives the relation
// the view is invoked on and exactly as many arguments as the view's arity.
type ViewFunc func(r *Relation, args ...any) (*Relation, error)

// View is a named, fixed-arity query method exposed by a relation.
type View struct {
	Name  string
	Arity int
	Fn    ViewFunc
}

// Definition is the immutable configuration of a relation. Every With method
// returns a modified copy.
//
//	users := relation.Define("users").
//	    WithAdapter(dialect.Memory).
//	    WithSchema(relation.NewSchema(
//	        relation.Attribute{Name: "id", PrimaryKey: true},
//	        relation.Attribute{Name: "name"},
//	    )).
//	    WithView("by_name", 1, func(r *relation.Relation, args ...any) (*relation.Relation, error) {
//	        return r.Where(rom.Tuple{"name": args[0]}), nil
//	    })
type Definition struct {
	name       string
	dataset    string
	adapter    string
	schema     *Schema
	views      map[string]View
	autoStruct bool
}

// Define starts the definition of the relation registered under name.
func Define(name string) Definition {
	return Definition{name: name}
}

// Name returns the registration key.
func (d Definition) Name() string { return d.name }

// DatasetName returns the dataset name, defaulting to the relation name.
func (d Definition) DatasetName() string {
	if d.dataset != "" {
		return d.dataset
	}
	return d.name
}

// Adapter returns the adapter identifier.
func (d Definition) Adapter() string { return d.adapter }

// Schema returns the relation schema.
func (d Definition) Schema() *Schema { return d.schema }

// WithDataset sets the dataset name.
func (d Definition) WithDataset(name string) Definition {
	d.dataset = name
	return d
}

// WithAdapter sets the adapter identifier.
func (d Definition) WithAdapter(adapter string) Definition {
	d.adapter = adapter
	return d
}

// WithSchema sets the relation schema.
func (d Definition) WithSchema(s *Schema) Definition {
	d.schema = s
	return d
}

// WithAutoStruct enables struct hydration by default.
func (d Definition) WithAutoStruct(enabled bool) Definition {
	d.autoStruct = enabled
	return d
}

// WithView adds a view.
func (d Definition) WithView(name string, arity int, fn ViewFunc) Definition {
	views := maps.Clone(d.views)
	if views == nil {
		views = make(map[string]View)
	}
	views[name] = View{Name: name, Arity: arity, Fn: fn}
	d.views = views
	return d
}

// Extend returns the definition of a child relation: the parent's settings
// and views with the child's non-zero settings and views applied on top.
func (d Definition) Extend(child Definition) Definition {
	out := d
	out.name = child.name
	out.dataset = child.dataset
	if out.dataset == "" {
		out.dataset = d.dataset
	}
	if child.adapter != "" {
		out.adapter = child.adapter
	}
	if child.schema != nil {
		out.schema = child.schema
	}
	out.autoStruct = d.autoStruct || child.autoStruct
	out.views = maps.Clone(d.views)
	if out.views == nil {
		out.views = make(map[string]View, len(child.views))
	}
	maps.Copy(out.views, child.views)
	return out
}

// Validate checks that the definition can produce a relation.
func (d Definition) Validate() error {
	if d.adapter == "" {
		return &rom.MissingAdapterIdentifierError{Relation: d.name}
	}
	if d.schema == nil {
		return &rom.MissingSchemaError{Relation: d.name}
	}
	return nil
}

func (d Definition) view(name string) (View, bool) {
	v, ok := d.views[name]
	return v, ok
}
