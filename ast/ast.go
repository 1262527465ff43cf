// Package ast defines the tree describing the shape of a relation graph.
//
// Every relation, graph and wrap exposes its shape as a Relation node whose
// header holds the relation's own attributes followed by the nested relation
// nodes of its combined or wrapped children. The tree is the only contract
// between relation graphs and mapper/command compilation: mappers are compiled
// from it (see package mapper) and command graphs mirror it (see package
// repository).
package ast

import (
	"maps"
	"slices"
)

// Node is the marker interface for all AST nodes.
type Node interface {
	astNode()
}

// CombineType is the cardinality of a combined node.
type CombineType string

// Combine cardinalities.
const (
	One  CombineType = "one"
	Many CombineType = "many"
)

// String implements fmt.Stringer.
func (c CombineType) String() string { return string(c) }

// Meta carries the combine/wrap flags of a relation node.
type Meta struct {
	// Dataset is the name of the underlying dataset.
	Dataset string
	// Alias is the alias the relation was renamed to, if any.
	Alias string
	// CombineType is set on combined nodes.
	CombineType CombineType
	// CombineName is the key under which the node is nested in its parent.
	CombineName string
	// Keys maps parent (source) attributes to child (target) attributes.
	Keys map[string]string
	// Wrap marks nodes whose attributes are inlined into the parent tuple.
	Wrap bool
	// WrapFromAssoc is set when the wrap was derived from an association.
	WrapFromAssoc bool
}

// Clone returns a deep copy of the meta.
func (m Meta) Clone() Meta {
	m.Keys = maps.Clone(m.Keys)
	return m
}

// Combined reports whether the node is nested as a combine child.
func (m Meta) Combined() bool { return m.CombineType != "" && !m.Wrap }

// KeyPair is a single source/target join pair.
type KeyPair struct {
	Source string
	Target string
}

// KeyPairs returns the join keys sorted by source attribute.
func (m Meta) KeyPairs() []KeyPair {
	pairs := make([]KeyPair, 0, len(m.Keys))
	for _, src := range slices.Sorted(maps.Keys(m.Keys)) {
		pairs = append(pairs, KeyPair{Source: src, Target: m.Keys[src]})
	}
	return pairs
}

// Attribute is a single attribute of a relation header.
type Attribute struct {
	// Name is the attribute name in the dataset.
	Name string
	// Alias is the name the attribute carries in materialized tuples, if it
	// differs from Name (wrapped attributes are prefixed).
	Alias string
	// PrimaryKey marks primary key attributes.
	PrimaryKey bool
}

func (Attribute) astNode() {}

// Key returns the name under which the attribute appears in tuples.
func (a Attribute) Key() string {
	if a.Alias != "" {
		return a.Alias
	}
	return a.Name
}

// Relation describes a relation and its nested nodes.
type Relation struct {
	// Name is the registration key of the relation.
	Name string
	// Header holds Attribute and nested Relation nodes in order.
	Header []Node
	// Meta carries combine and wrap flags.
	Meta Meta
}

func (Relation) astNode() {}

// Attributes returns the attribute nodes of the header.
func (r Relation) Attributes() []Attribute {
	var out []Attribute
	for _, n := range r.Header {
		if a, ok := n.(Attribute); ok {
			out = append(out, a)
		}
	}
	return out
}

// Nodes returns the nested relation nodes of the header.
func (r Relation) Nodes() []Relation {
	var out []Relation
	for _, n := range r.Header {
		if rel, ok := n.(Relation); ok {
			out = append(out, rel)
		}
	}
	return out
}

// Key returns the name under which the node is nested in its parent.
func (r Relation) Key() string {
	if r.Meta.CombineName != "" {
		return r.Meta.CombineName
	}
	if r.Meta.Alias != "" {
		return r.Meta.Alias
	}
	return r.Name
}

// Walk visits r and every nested relation depth-first. Returning false from
// fn stops descending into the visited node.
func Walk(r Relation, fn func(Relation) bool) {
	if !fn(r) {
		return
	}
	for _, n := range r.Nodes() {
		Walk(n, fn)
	}
}
