package command

import (
	"context"
	"sync"

	"github.com/syssam/rom"
	"github.com/syssam/rom/ast"
	"github.com/syssam/rom/relation"
)

// Type is the kind of a command.
type Type string

// Command types.
const (
	Create Type = "create"
	Update Type = "update"
	Delete Type = "delete"
)

// ParseType returns the command type named s.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case Create, Update, Delete:
		return t, nil
	default:
		return "", rom.NewArgumentError("command", "unknown command type %q", s)
	}
}

// Result is the cardinality of a command result.
type Result = ast.CombineType

// Result cardinalities.
const (
	One  = ast.One
	Many = ast.Many
)

// Executor persists tuples for a command against the dataset of rel. Create
// receives the tuples to insert, Update a single tuple of attributes and
// Delete none. Executors return the affected tuples.
type Executor interface {
	Execute(ctx context.Context, rel *relation.Relation, tuples []rom.Tuple) ([]rom.Tuple, error)
}

// The ExecutorFunc type is an adapter to allow the use of ordinary
// functions as Executor.
type ExecutorFunc func(context.Context, *relation.Relation, []rom.Tuple) ([]rom.Tuple, error)

// Execute calls f(ctx, rel, tuples).
func (f ExecutorFunc) Execute(ctx context.Context, rel *relation.Relation, tuples []rom.Tuple) ([]rom.Tuple, error) {
	return f(ctx, rel, tuples)
}

// Writer is implemented by datasets able to persist tuples. The memory and
// SQL datasets implement it.
type Writer interface {
	Insert(ctx context.Context, tuples []rom.Tuple) ([]rom.Tuple, error)
	Update(ctx context.Context, attrs rom.Tuple) ([]rom.Tuple, error)
	Delete(ctx context.Context) ([]rom.Tuple, error)
}

// Registry resolves command executors by adapter and command type.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]map[Type]Executor
}

// NewRegistry returns an empty executor registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]map[Type]Executor)}
}

// Register sets the executor of typ for adapter.
func (r *Registry) Register(adapter string, typ Type, e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.executors[adapter] == nil {
		r.executors[adapter] = make(map[Type]Executor)
	}
	r.executors[adapter][typ] = e
}

// RegisterWriter registers executors for all command types of adapter that
// write through the relation dataset's Writer implementation.
func (r *Registry) RegisterWriter(adapter string) {
	r.Register(adapter, Create, ExecutorFunc(insert))
	r.Register(adapter, Update, ExecutorFunc(update))
	r.Register(adapter, Delete, ExecutorFunc(remove))
}

// Lookup returns the executor of typ for adapter.
func (r *Registry) Lookup(adapter string, typ Type) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[adapter][typ]
	if !ok {
		return nil, &rom.AdapterNotPresentError{Adapter: adapter, Type: string(typ)}
	}
	return e, nil
}

func writer(rel *relation.Relation) (Writer, error) {
	w, ok := rel.Dataset().(Writer)
	if !ok {
		return nil, rom.NewArgumentError(rel.Name().String(), "dataset %T is read-only", rel.Dataset())
	}
	return w, nil
}

func insert(ctx context.Context, rel *relation.Relation, tuples []rom.Tuple) ([]rom.Tuple, error) {
	w, err := writer(rel)
	if err != nil {
		return nil, err
	}
	return w.Insert(ctx, tuples)
}

func update(ctx context.Context, rel *relation.Relation, tuples []rom.Tuple) ([]rom.Tuple, error) {
	w, err := writer(rel)
	if err != nil {
		return nil, err
	}
	var attrs rom.Tuple
	if len(tuples) > 0 {
		attrs = tuples[0]
	}
	return w.Update(ctx, attrs)
}

func remove(ctx context.Context, rel *relation.Relation, _ []rom.Tuple) ([]rom.Tuple, error) {
	w, err := writer(rel)
	if err != nil {
		return nil, err
	}
	return w.Delete(ctx)
}
