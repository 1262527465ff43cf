package relation

import (
	"sync"
)

// Name identifies a relation by its registration key, the dataset it reads
// from and an optional alias. Names are canonical: NewName returns the same
// *Name for the same arguments, so names can be compared by identity.
type Name struct {
	relation string
	dataset  string
	alias    string
}

type nameKey struct{ relation, dataset, alias string }

var names sync.Map // nameKey -> *Name

// NewName returns the canonical name for the relation. The dataset defaults
// to the relation name.
func NewName(relation, dataset, alias string) *Name {
	if dataset == "" {
		dataset = relation
	}
	key := nameKey{relation, dataset, alias}
	if n, ok := names.Load(key); ok {
		return n.(*Name)
	}
	n, _ := names.LoadOrStore(key, &Name{relation: relation, dataset: dataset, alias: alias})
	return n.(*Name)
}

// As returns the name renamed to alias. The receiver is not modified.
func (n *Name) As(alias string) *Name {
	return NewName(n.relation, n.dataset, alias)
}

// Relation returns the registration key of the relation.
func (n *Name) Relation() string { return n.relation }

// Dataset returns the underlying dataset name.
func (n *Name) Dataset() string { return n.dataset }

// Alias returns the alias, or an empty string.
func (n *Name) Alias() string { return n.alias }

// Aliased reports whether the name carries an alias.
func (n *Name) Aliased() bool { return n.alias != "" }

// Key returns the alias if set, otherwise the relation name.
func (n *Name) Key() string {
	if n.alias != "" {
		return n.alias
	}
	return n.relation
}

// Equal reports whether both names have the same relation, dataset and key.
func (n *Name) Equal(other *Name) bool {
	if n == other {
		return true
	}
	if n == nil || other == nil {
		return false
	}
	return n.relation == other.relation && n.dataset == other.dataset && n.Key() == other.Key()
}

// String renders "rel", "rel on ds" or "rel on ds as alias".
func (n *Name) String() string {
	switch {
	case n.Aliased():
		return n.relation + " on " + n.dataset + " as " + n.alias
	case n.relation != n.dataset:
		return n.relation + " on " + n.dataset
	default:
		return n.relation
	}
}
