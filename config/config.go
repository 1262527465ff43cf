// Package config loads rom setups from YAML.
//
//	defaults:
//	  struct_namespace: app
//	  slow_query_threshold: 200ms
//	gateways:
//	  default:
//	    adapter: sqlite3
//	    source: "file:app.db"
//	relations:
//	  users:
//	    attributes: [id, name]
//	    associations:
//	      - {name: tasks, type: one_to_many}
//	  tasks:
//	    primary_key: id
//	    attributes:
//	      - id
//	      - {name: user_id, foreign_key: users}
//	      - title
//
// Relations use the gateway named "default" unless they name another one.
// Views are code and are added to the loaded definitions with
// Definition.WithView before defining them.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/syssam/rom"
	"github.com/syssam/rom/dialect"
	"github.com/syssam/rom/relation"
)

// DefaultGateway is the gateway of relations naming none.
const DefaultGateway = "default"

// Config is the root of a configuration file.
type Config struct {
	Defaults  Defaults            `yaml:"defaults,omitempty"`
	Gateways  map[string]Gateway  `yaml:"gateways,omitempty"`
	Relations map[string]Relation `yaml:"relations,omitempty"`
}

// Defaults holds the settings shared by all relations.
type Defaults struct {
	AutoStruct         bool     `yaml:"auto_struct,omitempty"`
	StructNamespace    string   `yaml:"struct_namespace,omitempty"`
	SlowQueryThreshold Duration `yaml:"slow_query_threshold,omitempty"`
	// Debug logs every SQL statement.
	Debug bool `yaml:"debug,omitempty"`
}

// Gateway configures a storage adapter.
type Gateway struct {
	Adapter string `yaml:"adapter"`
	// Source is the data source name of SQL adapters.
	Source string `yaml:"source,omitempty"`
}

// Relation configures a relation definition.
type Relation struct {
	Gateway      string        `yaml:"gateway,omitempty"`
	Dataset      string        `yaml:"dataset,omitempty"`
	PrimaryKey   string        `yaml:"primary_key,omitempty"`
	Attributes   []Attribute   `yaml:"attributes,omitempty"`
	Associations []Association `yaml:"associations,omitempty"`
	// Extends names a relation whose attributes and associations are
	// inherited. Own entries override inherited ones by name.
	Extends    string `yaml:"extends,omitempty"`
	AutoStruct *bool  `yaml:"auto_struct,omitempty"`
}

// Attribute configures a schema attribute. A plain string is the
// attribute name.
type Attribute struct {
	Name       string `yaml:"name"`
	PrimaryKey bool   `yaml:"primary_key,omitempty"`
	ForeignKey string `yaml:"foreign_key,omitempty"`
}

// UnmarshalYAML implements yaml.Unmarshaler for Attribute.
func (a *Attribute) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*a = Attribute{Name: node.Value}
		return nil
	case yaml.MappingNode:
		type plain Attribute
		return node.Decode((*plain)(a))
	default:
		return fmt.Errorf("config: line %d: expected attribute name or mapping", node.Line)
	}
}

// Association configures a relation association.
type Association struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Target     string `yaml:"target,omitempty"`
	ForeignKey string `yaml:"foreign_key,omitempty"`
	View       string `yaml:"view,omitempty"`
}

// Duration is a time.Duration decoded from strings such as "250ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	v, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("config: line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

// Load decodes and validates a configuration.
func Load(r io.Reader) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadFile loads the configuration file at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Load(bytes.NewReader(data))
}

var (
	adapters     = []string{dialect.Memory, dialect.SQLite, dialect.Postgres, dialect.MySQL}
	associations = []relation.AssociationType{relation.ManyToOne, relation.OneToMany, relation.OneToOne}
)

// Validate reports the first inconsistency of the configuration.
func (c *Config) Validate() error {
	for _, name := range slices.Sorted(maps.Keys(c.Gateways)) {
		if gw := c.Gateways[name]; !slices.Contains(adapters, gw.Adapter) {
			return rom.NewArgumentError("gateway "+name, "unsupported adapter %q", gw.Adapter)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(c.Relations)) {
		rel := c.Relations[name]
		if _, ok := c.Gateways[c.gatewayName(rel)]; !ok {
			return &rom.MissingAdapterIdentifierError{Relation: name}
		}
		if rel.Extends != "" {
			if _, ok := c.Relations[rel.Extends]; !ok {
				return rom.NewArgumentError(name, "extends unknown relation %q", rel.Extends)
			}
		}
		for _, a := range rel.Associations {
			if !slices.Contains(associations, relation.AssociationType(a.Type)) {
				return rom.NewArgumentError(name, "association %s: unknown type %q", a.Name, a.Type)
			}
		}
	}
	if _, err := c.order(); err != nil {
		return err
	}
	return nil
}

func (c *Config) gatewayName(rel Relation) string {
	if rel.Gateway != "" {
		return rel.Gateway
	}
	return DefaultGateway
}

// Adapter returns the adapter of the relation's gateway.
func (c *Config) Adapter(name string) string {
	return c.Gateways[c.gatewayName(c.Relations[name])].Adapter
}

// Definition returns the definition of the named relation with its
// inherited attributes and associations resolved.
func (c *Config) Definition(name string) (relation.Definition, error) {
	rel, ok := c.Relations[name]
	if !ok {
		return relation.Definition{}, rom.NewArgumentError(name, "relation is not configured")
	}
	def := relation.Define(name).WithAdapter(c.Adapter(name)).WithAutoStruct(c.Defaults.AutoStruct)
	if rel.Dataset != "" {
		def = def.WithDataset(rel.Dataset)
	}
	if rel.AutoStruct != nil {
		def = def.WithAutoStruct(*rel.AutoStruct)
	}
	attrs, assocs := c.inherit(name)
	if len(attrs) == 0 {
		return def, nil
	}
	schema := make([]relation.Attribute, len(attrs))
	for i, a := range attrs {
		schema[i] = relation.Attribute{
			Name:       a.Name,
			PrimaryKey: a.PrimaryKey || a.Name == rel.PrimaryKey,
			ForeignKey: a.ForeignKey,
		}
	}
	s := relation.NewSchema(schema...)
	for _, a := range assocs {
		s = s.Associate(relation.Association{
			Name:       a.Name,
			Type:       relation.AssociationType(a.Type),
			Target:     a.Target,
			ForeignKey: a.ForeignKey,
			View:       a.View,
		})
	}
	return def.WithSchema(s), nil
}

// inherit merges the attributes and associations of the relation's
// ancestors, nearest last.
func (c *Config) inherit(name string) ([]Attribute, []Association) {
	var chain []Relation
	for n := name; n != ""; n = c.Relations[n].Extends {
		chain = append(chain, c.Relations[n])
	}
	var (
		attrs  []Attribute
		assocs []Association
	)
	for _, rel := range slices.Backward(chain) {
		for _, a := range rel.Attributes {
			if i := slices.IndexFunc(attrs, func(b Attribute) bool { return b.Name == a.Name }); i >= 0 {
				attrs[i] = a
				continue
			}
			attrs = append(attrs, a)
		}
		for _, a := range rel.Associations {
			if i := slices.IndexFunc(assocs, func(b Association) bool { return b.Name == a.Name }); i >= 0 {
				assocs[i] = a
				continue
			}
			assocs = append(assocs, a)
		}
	}
	return attrs, assocs
}

// order returns the relation names sorted, rejecting inheritance cycles.
func (c *Config) order() ([]string, error) {
	names := slices.Sorted(maps.Keys(c.Relations))
	for _, name := range names {
		seen := map[string]bool{}
		for n := name; n != ""; n = c.Relations[n].Extends {
			if seen[n] {
				return nil, rom.NewArgumentError(name, "inheritance cycle through %q", n)
			}
			seen[n] = true
		}
	}
	return names, nil
}
