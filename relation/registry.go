package relation

import (
	"context"
	"slices"
	"sync"

	"github.com/syssam/rom"
	"github.com/syssam/rom/ast"
	"github.com/syssam/rom/mapper"
)

// CommandNode is a compiled command or command graph.
type CommandNode interface {
	Call(ctx context.Context, args ...any) (any, error)
}

// CommandCompiler builds the command graph matching a relation graph.
// Package repository provides the implementation.
type CommandCompiler interface {
	CompileCommand(node ast.Relation, typ string, result ast.CombineType) (CommandNode, error)
}

// Registry holds the relations of an application. Relations resolve their
// association targets through the registry they were defined in.
type Registry struct {
	mu        sync.RWMutex
	relations map[string]*Relation
	commands  CommandCompiler
	mappers   *mapper.Registry
	namespace *mapper.Namespace
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithMappers sets the mapper registry shared by all relations.
func WithMappers(m *mapper.Registry) RegistryOption {
	return func(r *Registry) { r.mappers = m }
}

// WithNamespace sets the default struct namespace of all relations.
func WithNamespace(ns *mapper.Namespace) RegistryOption {
	return func(r *Registry) { r.namespace = ns }
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{relations: make(map[string]*Relation)}
	for _, opt := range opts {
		opt(r)
	}
	if r.mappers == nil {
		r.mappers = mapper.NewRegistry()
	}
	return r
}

// Define validates the definition, builds the relation over ds and registers it.
func (r *Registry) Define(def Definition, ds Dataset) (*Relation, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	rel := &Relation{
		def:      def,
		dataset:  ds,
		registry: r,
		opts: options{
			name:       NewName(def.name, def.DatasetName(), ""),
			autoMap:    true,
			autoStruct: def.autoStruct,
			namespace:  r.namespace,
			meta:       ast.Meta{Dataset: def.DatasetName()},
		},
	}
	if err := r.Register(rel); err != nil {
		return nil, err
	}
	return rel, nil
}

// Register adds a relation under its name key.
func (r *Registry) Register(rel *Relation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := rel.Name().Key()
	if _, ok := r.relations[key]; ok {
		return &rom.RelationAlreadyDefinedError{Name: key}
	}
	r.relations[key] = rel
	return nil
}

// Get returns the relation registered under name.
func (r *Registry) Get(name string) (*Relation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rel, ok := r.relations[name]
	return rel, ok
}

// Fetch returns the relation registered under name or an error.
func (r *Registry) Fetch(name string) (*Relation, error) {
	rel, ok := r.Get(name)
	if !ok {
		return nil, rom.NewArgumentError("registry", "relation %q is not registered", name)
	}
	return rel, nil
}

// Names returns the registered relation names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.relations))
	for name := range r.relations {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// UseCommands installs the command compiler used by combined relations.
func (r *Registry) UseCommands(c CommandCompiler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = c
}

// Commands returns the installed command compiler, or nil.
func (r *Registry) Commands() CommandCompiler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.commands
}

// Mappers returns the mapper registry.
func (r *Registry) Mappers() *mapper.Registry { return r.mappers }

// Namespace returns the default struct namespace.
func (r *Registry) Namespace() *mapper.Namespace { return r.namespace }
