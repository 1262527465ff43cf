package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/syssam/rom/command"
	"github.com/syssam/rom/dialect"
	"github.com/syssam/rom/dialect/memory"
	"github.com/syssam/rom/dialect/sql"
	"github.com/syssam/rom/mapper"
	"github.com/syssam/rom/relation"
	"github.com/syssam/rom/repository"
)

// Option configures Open.
type Option func(*options)

type options struct {
	gateways map[string]relation.Gateway
	defs     map[string][]func(relation.Definition) relation.Definition
	logger   *slog.Logger
}

// WithGateway uses gw for the named gateway instead of opening it.
func WithGateway(name string, gw relation.Gateway) Option {
	return func(o *options) {
		o.gateways[name] = gw
	}
}

// WithDefinition applies fn to the loaded definition of the named relation
// before it is defined. It is how views are attached.
func WithDefinition(name string, fn func(relation.Definition) relation.Definition) Option {
	return func(o *options) {
		o.defs[name] = append(o.defs[name], fn)
	}
}

// WithLogger sets the logger of the setup.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Setup is an opened configuration.
type Setup struct {
	Repository *repository.Repository
	Gateways   map[string]relation.Gateway
	// Namespace holds the structs of auto_struct relations. It is nil
	// unless defaults.struct_namespace is set.
	Namespace *mapper.Namespace
	closers   []func() error
}

// Relation returns the named relation.
func (s *Setup) Relation(name string) (*relation.Relation, error) {
	return s.Repository.Relation(name)
}

// Close closes the SQL connections opened by the setup.
func (s *Setup) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// Open opens the gateways and defines every configured relation.
func (c *Config) Open(ctx context.Context, opts ...Option) (_ *Setup, err error) {
	o := &options{
		gateways: map[string]relation.Gateway{},
		defs:     map[string][]func(relation.Definition) relation.Definition{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	s := &Setup{Gateways: map[string]relation.Gateway{}}
	defer func() {
		if err != nil {
			err = errors.Join(err, s.Close())
		}
	}()
	for _, name := range slices.Sorted(maps.Keys(c.Gateways)) {
		gw, ok := o.gateways[name]
		if !ok {
			if gw, err = c.openGateway(s, name); err != nil {
				return nil, err
			}
		}
		s.Gateways[name] = gw
	}

	var ropts []relation.RegistryOption
	if c.Defaults.StructNamespace != "" {
		s.Namespace = mapper.NewNamespace(c.Defaults.StructNamespace)
		ropts = append(ropts, relation.WithNamespace(s.Namespace))
	}
	rels := relation.NewRegistry(ropts...)
	cmds := command.NewRegistry()
	memory.Register(cmds)
	sql.Register(cmds)
	s.Repository = repository.New(rels, cmds)

	names, err := c.order()
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		def, err := c.Definition(name)
		if err != nil {
			return nil, err
		}
		for _, fn := range o.defs[name] {
			def = fn(def)
		}
		rel := c.Relations[name]
		gw := s.Gateways[c.gatewayName(rel)]
		if pk, ok := gw.(interface{ PrimaryKey(string, string) }); ok && rel.PrimaryKey != "" {
			pk.PrimaryKey(def.DatasetName(), rel.PrimaryKey)
		}
		ds, err := gw.Dataset(def.DatasetName())
		if err != nil {
			return nil, fmt.Errorf("config: relation %s: %w", name, err)
		}
		if _, err := rels.Define(def, ds); err != nil {
			return nil, err
		}
	}
	o.logger.InfoContext(ctx, "rom setup opened", "gateways", len(s.Gateways), "relations", len(names))
	return s, nil
}

func (c *Config) openGateway(s *Setup, name string) (relation.Gateway, error) {
	gw := c.Gateways[name]
	if gw.Adapter == dialect.Memory {
		return memory.NewGateway(), nil
	}
	drv, err := sql.Open(gw.Adapter, gw.Source)
	if err != nil {
		return nil, fmt.Errorf("config: gateway %s: %w", name, err)
	}
	s.closers = append(s.closers, drv.Close)
	var d dialect.Driver = drv
	if t := time.Duration(c.Defaults.SlowQueryThreshold); t > 0 {
		d = sql.NewStatsDriver(d, sql.WithSlowThreshold(t), sql.WithSlowQueryLog())
	}
	if c.Defaults.Debug {
		d = sql.NewDebugDriver(d)
	}
	return sql.NewGateway(d), nil
}
