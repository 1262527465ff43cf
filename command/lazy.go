package command

import (
	"context"

	"github.com/syssam/rom"
)

// RestrictFunc returns the command persisting a single child tuple of a lazy
// update or delete, typically restricted by the tuple's primary key. parent
// is nil when the command is not called with a parent row.
type RestrictFunc func(cmd *Command, parent, tuple rom.Tuple) (*Command, error)

// Lazy is a command whose input is extracted from the input of a command
// graph at call time. When called with the parent rows produced by the
// parent command, the input of every parent row is evaluated and persisted
// separately.
type Lazy struct {
	command   *Command
	evaluator *InputEvaluator
	restrict  RestrictFunc
}

// NewLazy returns cmd evaluated lazily by ev. restrict may be nil, in which
// case updates and deletes run against the relation of cmd as is.
func NewLazy(cmd *Command, ev *InputEvaluator, restrict RestrictFunc) *Lazy {
	return &Lazy{command: cmd, evaluator: ev, restrict: restrict}
}

// Command returns the wrapped command.
func (l *Lazy) Command() *Command { return l.command }

// Evaluator returns the input evaluator.
func (l *Lazy) Evaluator() *InputEvaluator { return l.evaluator }

// Result returns the cardinality of the wrapped command.
func (l *Lazy) Result() Result { return l.command.Result() }

// Call evaluates the command input from args[0], the graph input. An
// optional last argument holds the parent result.
func (l *Lazy) Call(ctx context.Context, args ...any) (any, error) {
	if len(args) == 0 {
		return nil, rom.NewArgumentError(l.String(), "missing graph input")
	}
	input, rest := args[0], args[1:]
	var parent any
	if len(rest) > 0 {
		parent = rest[len(rest)-1]
	}
	if rows, ok := parentRows(parent); ok {
		return l.callRows(ctx, input, rows)
	}
	children, err := l.evaluator.Eval(input, -1)
	if err != nil {
		return nil, err
	}
	if l.command.Type() == Create {
		return l.command.Call(ctx, append([]any{children}, rest...)...)
	}
	parentTuple, _ := rom.AsTuple(parent)
	if items, ok := children.([]rom.Tuple); ok {
		out := []rom.Tuple{}
		for _, item := range items {
			res, err := l.callOne(ctx, parentTuple, item, rest)
			if err != nil {
				return nil, err
			}
			out = appendResult(out, res)
		}
		return out, nil
	}
	if items, ok := children.([]any); ok {
		tuples, ok := rom.AsTuples(items)
		if !ok {
			return nil, rom.NewArgumentError(l.String(), "input at %q is not a collection of tuples", l.evaluator.Path())
		}
		out := []rom.Tuple{}
		for _, item := range tuples {
			res, err := l.callOne(ctx, parentTuple, item, rest)
			if err != nil {
				return nil, err
			}
			out = appendResult(out, res)
		}
		return out, nil
	}
	item, ok := rom.AsTuple(children)
	if !ok {
		return nil, rom.NewArgumentError(l.String(), "input at %q is not a tuple", l.evaluator.Path())
	}
	return l.callOne(ctx, parentTuple, item, rest)
}

// callRows evaluates and persists the input of every parent row.
func (l *Lazy) callRows(ctx context.Context, input any, rows []rom.Tuple) (any, error) {
	out := []rom.Tuple{}
	for i, parent := range rows {
		children, err := l.evaluator.Eval(input, i)
		if err != nil {
			return nil, err
		}
		if l.command.Type() == Create {
			res, err := l.command.Call(ctx, children, parent)
			if err != nil {
				return nil, err
			}
			out = appendResult(out, res)
			continue
		}
		items, ok := rom.AsTuples(children)
		if !ok {
			return nil, rom.NewArgumentError(l.String(), "input at %q is not a collection of tuples", l.evaluator.Path())
		}
		for _, item := range items {
			res, err := l.callOne(ctx, parent, item, []any{parent})
			if err != nil {
				return nil, err
			}
			out = appendResult(out, res)
		}
	}
	return out, nil
}

// callOne runs the restricted command for a single update or delete tuple.
func (l *Lazy) callOne(ctx context.Context, parent, item rom.Tuple, rest []any) (any, error) {
	cmd := l.command
	if l.restrict != nil {
		var err error
		if cmd, err = l.restrict(l.command, parent, item); err != nil {
			return nil, err
		}
	}
	if cmd.Type() == Delete {
		return cmd.Call(ctx)
	}
	return cmd.Call(ctx, append([]any{item}, rest...)...)
}

// String implements fmt.Stringer.
func (l *Lazy) String() string {
	return "lazy " + l.command.String() + " at " + l.evaluator.Path()
}

// parentRows reports whether the parent result is a collection of rows.
func parentRows(v any) ([]rom.Tuple, bool) {
	switch v := v.(type) {
	case []rom.Tuple:
		return v, true
	case []any:
		return rom.AsTuples(v)
	default:
		return nil, false
	}
}

func appendResult(out []rom.Tuple, res any) []rom.Tuple {
	switch res := res.(type) {
	case rom.Tuple:
		return append(out, res)
	case []rom.Tuple:
		return append(out, res...)
	}
	return out
}
