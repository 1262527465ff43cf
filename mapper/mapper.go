// Package mapper turns materialized tuples into nested tuples and Go structs.
//
// Mappers are compiled from the AST of a relation graph (package ast): every
// combined node is joined to its parent by the node's keys and nested under its
// combine name, every wrapped node has its prefixed attributes folded into a
// single nested tuple. When a Namespace is configured, the resulting tuples
// are hydrated into the Go struct types registered for each relation.
//
//	m, err := mapper.Compile(graph.ToAST(), mapper.WithNamespace(ns))
//	users, err := m.MapInput(mapper.Input{Tuples: users, Nodes: []mapper.Input{{Tuples: tasks}}})
package mapper

import (
	"fmt"
	"sync"

	"github.com/syssam/rom"
	"github.com/syssam/rom/ast"
)

// Mapper transforms a materialized collection.
type Mapper interface {
	Map(collection []any) ([]any, error)
}

// Func type is an adapter which allows the use of ordinary functions as mappers.
type Func func(collection []any) ([]any, error)

// Map returns f(collection).
func (f Func) Map(collection []any) ([]any, error) {
	return f(collection)
}

// TupleFunc builds a mapper applying fn to every tuple of a collection.
// Elements that are not tuples are passed through.
func TupleFunc(fn func(rom.Tuple) (rom.Tuple, error)) Mapper {
	return Func(func(collection []any) ([]any, error) {
		out := make([]any, len(collection))
		for i, v := range collection {
			t, ok := rom.AsTuple(v)
			if !ok {
				out[i] = v
				continue
			}
			mapped, err := fn(t)
			if err != nil {
				return nil, err
			}
			out[i] = mapped
		}
		return out, nil
	})
}

// Input is the raw result of a relation graph: the root tuples and, in the
// order of the combined nodes of the AST, the raw results of every node.
type Input struct {
	Tuples []rom.Tuple
	Nodes  []Input
}

// Registry holds named mappers and memoizes compiled ones.
type Registry struct {
	mu       sync.RWMutex
	mappers  map[string]Mapper
	compiled sync.Map // string -> *Compiled
}

// NewRegistry returns an empty mapper registry.
func NewRegistry() *Registry {
	return &Registry{mappers: make(map[string]Mapper)}
}

// Register adds a named mapper, replacing a previous one with the same name.
func (r *Registry) Register(name string, m Mapper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mappers[name] = m
}

// Get returns the mapper registered under name.
func (r *Registry) Get(name string) (Mapper, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.mappers[name]
	return m, ok
}

// Compile returns the compiled mapper for the AST, compiling it at most once
// per distinct tree and options.
func (r *Registry) Compile(node ast.Relation, opts ...Option) (*Compiled, error) {
	c := newCompiled(node, opts...)
	key := fmt.Sprintf("%v|%s|%t", node, c.namespace.Name(), c.structs)
	if v, ok := r.compiled.Load(key); ok {
		return v.(*Compiled), nil
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	v, _ := r.compiled.LoadOrStore(key, c)
	return v.(*Compiled), nil
}
