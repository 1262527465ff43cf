package relation

import (
	"slices"

	"github.com/go-openapi/inflect"

	"github.com/syssam/rom/ast"
)

// DefaultPrimaryKey is the primary key of schemas that declare none.
const DefaultPrimaryKey = "id"

// Attribute describes a single schema attribute.
type Attribute struct {
	Name       string
	PrimaryKey bool
	// ForeignKey names the relation the attribute references.
	ForeignKey string
}

// AssociationType is the kind of an association.
type AssociationType string

// Association kinds.
const (
	ManyToOne AssociationType = "many_to_one"
	OneToMany AssociationType = "one_to_many"
	OneToOne  AssociationType = "one_to_one"
)

// Association links two relations by their keys.
type Association struct {
	// Name is the key the associated tuples are nested under.
	Name string
	Type AssociationType
	// Target is the registration key of the associated relation. It
	// defaults to Name.
	Target string
	// ForeignKey overrides the conventional foreign key attribute.
	ForeignKey string
	// View is an optional view of the target receiving the parent tuples;
	// without it the target is preloaded by its combine keys.
	View string
}

// TargetName returns the registration key of the associated relation.
func (a Association) TargetName() string {
	if a.Target != "" {
		return a.Target
	}
	return a.Name
}

// Result returns the cardinality of the associated tuples.
func (a Association) Result() ast.CombineType {
	if a.Type == OneToMany {
		return ast.Many
	}
	return ast.One
}

// Parent reports whether the associated relation is the parent side.
func (a Association) Parent() bool { return a.Type == ManyToOne }

// CombineKeys returns the keys joining source tuples with target tuples.
// Parent associations map the source foreign key to the target primary key,
// child associations map the source primary key to the target foreign key.
func (a Association) CombineKeys(source, target *Relation) map[string]string {
	if a.Parent() {
		fk := a.ForeignKey
		if fk == "" {
			fk = source.ForeignKey(target.Name().Relation())
		}
		return map[string]string{fk: target.PrimaryKey()}
	}
	fk := a.ForeignKey
	if fk == "" {
		fk = target.ForeignKey(source.Name().Relation())
	}
	return map[string]string{source.PrimaryKey(): fk}
}

// Schema describes the attributes and associations of a relation.
type Schema struct {
	attrs  []Attribute
	assocs []Association
}

// NewSchema returns a schema with the given attributes.
func NewSchema(attrs ...Attribute) *Schema {
	return &Schema{attrs: slices.Clone(attrs)}
}

// Associate returns a copy of the schema with the associations added.
func (s *Schema) Associate(assocs ...Association) *Schema {
	out := &Schema{}
	if s != nil {
		out.attrs = slices.Clone(s.attrs)
		out.assocs = slices.Clone(s.assocs)
	}
	out.assocs = append(out.assocs, assocs...)
	return out
}

// Attributes returns the schema attributes.
func (s *Schema) Attributes() []Attribute {
	if s == nil {
		return nil
	}
	return slices.Clone(s.attrs)
}

// AttributeNames returns the attribute names in declaration order.
func (s *Schema) AttributeNames() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.attrs))
	for i, a := range s.attrs {
		out[i] = a.Name
	}
	return out
}

// Has reports whether the schema declares the attribute.
func (s *Schema) Has(name string) bool {
	return slices.Contains(s.AttributeNames(), name)
}

// PrimaryKey returns the first primary key attribute, or DefaultPrimaryKey.
func (s *Schema) PrimaryKey() string {
	if s != nil {
		for _, a := range s.attrs {
			if a.PrimaryKey {
				return a.Name
			}
		}
	}
	return DefaultPrimaryKey
}

// ForeignKey returns the attribute referencing relation. Without a declared
// reference the conventional name is used ("users" -> "user_id").
func (s *Schema) ForeignKey(relation string) string {
	if s != nil {
		for _, a := range s.attrs {
			if a.ForeignKey == relation {
				return a.Name
			}
		}
	}
	return inflect.ForeignKey(relation)
}

// Association returns the association with the given name.
func (s *Schema) Association(name string) (Association, bool) {
	if s == nil {
		return Association{}, false
	}
	for _, a := range s.assocs {
		if a.Name == name {
			return a, true
		}
	}
	return Association{}, false
}

// Associations returns all declared associations.
func (s *Schema) Associations() []Association {
	if s == nil {
		return nil
	}
	return slices.Clone(s.assocs)
}

// header renders the attributes as AST nodes, aliased with prefix.
func (s *Schema) header(prefix string) []ast.Node {
	if s == nil {
		return nil
	}
	out := make([]ast.Node, len(s.attrs))
	for i, a := range s.attrs {
		attr := ast.Attribute{Name: a.Name, PrimaryKey: a.PrimaryKey}
		if prefix != "" {
			attr.Alias = prefix + "_" + a.Name
		}
		out[i] = attr
	}
	return out
}
