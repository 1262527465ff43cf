// Package command implements mutation commands and command graphs.
//
// A Command creates, updates or deletes the tuples of a relation through the
// executor registered for the relation's adapter. Commands are immutable:
// currying or restricting returns a new command. Commands compose into
// pipelines (Pipe, MapWith) and graphs (Combine) that persist nested input,
// passing each parent's result to its children.
//
//	create, err := command.Build(reg, command.Create, users, command.WithResult(command.One))
//	user, err := create.Call(ctx, rom.Tuple{"name": "Jane"})
package command

import (
	"context"
	"fmt"
	"slices"

	"github.com/syssam/rom"
	"github.com/syssam/rom/mapper"
	"github.com/syssam/rom/relation"
)

// Node is a command, a command pipeline or a command graph.
type Node interface {
	Call(ctx context.Context, args ...any) (any, error)
	Result() Result
}

// Hook transforms the tuples of a command before or after execution. Before
// hooks receive the parent tuples the command was called with, if any.
type Hook func(ctx context.Context, tuples []rom.Tuple, parents []rom.Tuple) ([]rom.Tuple, error)

// Command is a single create, update or delete operation bound to a relation.
type Command struct {
	typ       Type
	relation  *relation.Relation
	result    Result
	exec      Executor
	validator Validator
	input     func(rom.Tuple) (rom.Tuple, error)
	// associate maps parent attributes to the child attributes they set.
	associate map[string]string
	before    []Hook
	after     []Hook
	curryArgs []any
}

// Option configures a Command.
type Option func(*Command)

// WithResult sets the result cardinality. Commands return many by default.
func WithResult(r Result) Option {
	return func(c *Command) { c.result = r }
}

// WithValidator validates every input tuple.
func WithValidator(v Validator) Option {
	return func(c *Command) { c.validator = v }
}

// WithInput replaces the input function. By default input tuples are
// projected onto the attributes of the relation schema.
func WithInput(fn func(rom.Tuple) (rom.Tuple, error)) Option {
	return func(c *Command) { c.input = fn }
}

// WithAssociation sets child attributes from the parent tuple the command is
// called with: keys map parent attributes to child attributes.
func WithAssociation(keys map[string]string) Option {
	return func(c *Command) { c.associate = keys }
}

// Before appends hooks run before execution.
func Before(hooks ...Hook) Option {
	return func(c *Command) { c.before = append(slices.Clone(c.before), hooks...) }
}

// After appends hooks run after execution.
func After(hooks ...Hook) Option {
	return func(c *Command) { c.after = append(slices.Clone(c.after), hooks...) }
}

// Build returns a command of typ for rel using the executor registered for
// the relation's adapter.
func Build(reg *Registry, typ Type, rel *relation.Relation, opts ...Option) (*Command, error) {
	exec, err := reg.Lookup(rel.Adapter(), typ)
	if err != nil {
		return nil, err
	}
	return New(typ, rel, exec, opts...), nil
}

// New returns a command of typ for rel running exec.
func New(typ Type, rel *relation.Relation, exec Executor, opts ...Option) *Command {
	c := &Command{typ: typ, relation: rel, result: Many, exec: exec}
	for _, opt := range opts {
		opt(c)
	}
	if c.input == nil {
		c.input = schemaInput(rel.Schema())
	}
	return c
}

func schemaInput(s *relation.Schema) func(rom.Tuple) (rom.Tuple, error) {
	attrs := s.AttributeNames()
	return func(t rom.Tuple) (rom.Tuple, error) {
		if len(attrs) == 0 {
			return t.Clone(), nil
		}
		return t.Project(attrs...), nil
	}
}

func (c *Command) clone() *Command {
	cc := *c
	cc.curryArgs = slices.Clone(c.curryArgs)
	return &cc
}

// Type returns the command type.
func (c *Command) Type() Type { return c.typ }

// Relation returns the relation the command writes to.
func (c *Command) Relation() *relation.Relation { return c.relation }

// Result returns the result cardinality.
func (c *Command) Result() Result { return c.result }

// CurryArgs returns the curried arguments.
func (c *Command) CurryArgs() []any { return slices.Clone(c.curryArgs) }

// Associations returns the parent to child key mapping.
func (c *Command) Associations() map[string]string { return c.associate }

// With returns a copy of c with opts applied.
func (c *Command) With(opts ...Option) *Command {
	cc := c.clone()
	for _, opt := range opts {
		opt(cc)
	}
	return cc
}

// Call executes the command with the curried arguments followed by args.
// Create takes the input tuple(s) and optionally the parent tuple(s), update
// takes the attributes and optionally the parent tuple(s), delete takes
// nothing. Result one returns the first tuple or nil, many returns all.
func (c *Command) Call(ctx context.Context, args ...any) (any, error) {
	all := append(slices.Clone(c.curryArgs), args...)
	if c.typ == Update || c.typ == Delete {
		if err := c.AssertTupleCount(ctx); err != nil {
			return nil, err
		}
	}
	tuples, err := c.execute(ctx, all)
	if err != nil {
		return nil, err
	}
	if c.result == One {
		if len(tuples) == 0 {
			return nil, nil
		}
		return tuples[0], nil
	}
	if tuples == nil {
		tuples = []rom.Tuple{}
	}
	return tuples, nil
}

type ctxKey struct{}

// FromContext returns the command executing in ctx. Hooks and executors
// run with it set.
func FromContext(ctx context.Context) (*Command, bool) {
	c, ok := ctx.Value(ctxKey{}).(*Command)
	return c, ok
}

func (c *Command) execute(ctx context.Context, args []any) ([]rom.Tuple, error) {
	ctx = context.WithValue(ctx, ctxKey{}, c)
	var (
		input   []rom.Tuple
		parents []rom.Tuple
		err     error
	)
	if c.typ != Delete {
		if len(args) == 0 {
			return nil, rom.NewArgumentError(c.String(), "missing input")
		}
		if input, err = c.prepare(args[0]); err != nil {
			return nil, err
		}
		if len(args) > 1 {
			var ok bool
			if parents, ok = rom.AsTuples(args[1]); !ok {
				return nil, rom.NewArgumentError(c.String(), "unsupported parent %T", args[1])
			}
		}
		input = c.associateTuples(input, parents)
		if c.typ == Update && len(input) > 1 {
			return nil, rom.NewArgumentError(c.String(), "update takes one tuple of attributes, got %d", len(input))
		}
	}
	for _, h := range c.before {
		if input, err = h(ctx, input, parents); err != nil {
			return nil, err
		}
	}
	if c.validator != nil {
		for _, t := range input {
			if err := c.validator.Validate(t); err != nil {
				return nil, rom.NewValidationError(c.relation.Name().String(), err)
			}
		}
	}
	out, err := c.exec.Execute(ctx, c.relation, input)
	if err != nil {
		return nil, err
	}
	for _, h := range c.after {
		if out, err = h(ctx, out, parents); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *Command) prepare(v any) ([]rom.Tuple, error) {
	tuples, ok := rom.AsTuples(v)
	if !ok {
		return nil, rom.NewArgumentError(c.String(), "unsupported input %T", v)
	}
	out := make([]rom.Tuple, len(tuples))
	for i, t := range tuples {
		p, err := c.input(t)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

// associateTuples sets the associated keys of every tuple from every parent.
func (c *Command) associateTuples(tuples, parents []rom.Tuple) []rom.Tuple {
	if len(c.associate) == 0 || len(parents) == 0 {
		return tuples
	}
	out := make([]rom.Tuple, 0, len(tuples)*len(parents))
	for _, t := range tuples {
		for _, p := range parents {
			a := t.Clone()
			for src, tgt := range c.associate {
				a[tgt] = p[src]
			}
			out = append(out, a)
		}
	}
	return out
}

// AssertTupleCount fails with a TupleCountMismatchError when a result one
// command targets more than one tuple.
func (c *Command) AssertTupleCount(ctx context.Context) error {
	if c.result != One {
		return nil
	}
	n, err := c.relation.Count(ctx)
	if err != nil {
		return err
	}
	if n > 1 {
		return rom.NewTupleCountMismatchError(c.String(), n)
	}
	return nil
}

// Curry returns c with args curried. An *InputEvaluator as the first
// argument of an uncurried command makes it a Lazy command; a RestrictFunc
// may follow the evaluator.
func (c *Command) Curry(args ...any) (Node, error) {
	if len(c.curryArgs) == 0 && len(args) > 0 {
		if ev, ok := args[0].(*InputEvaluator); ok {
			var restrict RestrictFunc
			if len(args) > 1 {
				if restrict, ok = args[1].(RestrictFunc); !ok {
					return nil, rom.NewArgumentError(c.String(), "unsupported lazy argument %T", args[1])
				}
			}
			return NewLazy(c, ev, restrict), nil
		}
	}
	if len(args) == 0 {
		return c, nil
	}
	cc := c.clone()
	cc.curryArgs = append(cc.curryArgs, args...)
	return cc, nil
}

// Restrict returns c writing to the relation restricted by the named view.
func (c *Command) Restrict(view string, args ...any) (*Command, error) {
	rel, err := c.relation.Apply(view, args...)
	if err != nil {
		return nil, err
	}
	cc := c.clone()
	cc.relation = rel
	return cc, nil
}

// Where returns c writing to the relation restricted by cond.
func (c *Command) Where(cond rom.Tuple) *Command {
	cc := c.clone()
	cc.relation = c.relation.Where(cond)
	return cc
}

// Pipe returns c piped into right, a Node or a mapper.Mapper.
func (c *Command) Pipe(right any) (*Composite, error) {
	return NewComposite(c, right)
}

// MapWith returns c piped into m.
func (c *Command) MapWith(m mapper.Mapper) *Composite {
	return &Composite{left: c, right: m}
}

// Combine returns the graph of c and nodes.
func (c *Command) Combine(nodes ...Node) *Graph {
	return NewGraph(c, nodes...)
}

// String implements fmt.Stringer.
func (c *Command) String() string {
	return fmt.Sprintf("%s[%s]", c.typ, c.relation)
}
