package relation

import (
	"context"
	"fmt"
	"slices"

	"github.com/syssam/rom"
	"github.com/syssam/rom/ast"
)

// Curried is a relation with a partially applied view. It materializes once
// the remaining view arguments are supplied, either through Curry or as
// arguments to Call.
type Curried struct {
	relation  *Relation
	view      View
	curryArgs []any
}

// Name returns the name of the underlying relation.
func (c *Curried) Name() *Name { return c.relation.Name() }

// Meta returns the combine and wrap flags of the underlying relation.
func (c *Curried) Meta() ast.Meta { return c.relation.Meta() }

// ToAST describes the underlying relation.
func (c *Curried) ToAST() ast.Relation { return c.relation.ToAST() }

// Relation returns the relation the view is applied to.
func (c *Curried) Relation() *Relation { return c.relation }

// View returns the name of the curried view.
func (c *Curried) View() string { return c.view.Name }

// Arity returns the number of arguments the view takes.
func (c *Curried) Arity() int { return c.view.Arity }

// CurryArgs returns the arguments supplied so far.
func (c *Curried) CurryArgs() []any { return slices.Clone(c.curryArgs) }

func (c *Curried) with(fn func(*options)) Node {
	return c.rewrap(c.relation.withOpts(fn))
}

func (c *Curried) rewrap(r *Relation) *Curried {
	return &Curried{relation: r, view: c.view, curryArgs: slices.Clone(c.curryArgs)}
}

// Curry supplies further view arguments. Once all arguments are known the
// applied *Relation is returned, otherwise a new *Curried.
func (c *Curried) Curry(args ...any) (Node, error) {
	all := append(slices.Clone(c.curryArgs), args...)
	switch {
	case len(all) == 0:
		return nil, rom.NewArgumentError(c.view.Name, "curry needs at least one argument")
	case len(args) == 0:
		return c, nil
	case len(all) > c.view.Arity:
		return nil, rom.NewArgumentError(c.view.Name, "view takes %d arguments, got %d", c.view.Arity, len(all))
	case len(all) == c.view.Arity:
		return c.relation.apply(c.view, all)
	default:
		return &Curried{relation: c.relation, view: c.view, curryArgs: all}, nil
	}
}

// Call applies the view with the curried and given arguments and
// materializes the result. The arguments must complete the view's arity;
// missing ones are an ArgumentError. Use Curry to apply arguments
// partially.
func (c *Curried) Call(ctx context.Context, args ...any) (*Loaded, error) {
	all := append(slices.Clone(c.curryArgs), args...)
	if len(all) != c.view.Arity {
		return nil, rom.NewArgumentError(c.view.Name, "curried view takes %d arguments, got %d", c.view.Arity, len(all))
	}
	r, err := c.relation.apply(c.view, all)
	if err != nil {
		return nil, err
	}
	return r.Call(ctx)
}

// Forward invokes fn on the underlying relation. Relation results are curried
// again with the same view and arguments; a curried result is a NoMethodError
// since views cannot be curried twice. Any other result is returned as is.
func (c *Curried) Forward(method string, fn func(*Relation) (any, error)) (any, error) {
	res, err := fn(c.relation)
	if err != nil {
		return nil, err
	}
	switch res := res.(type) {
	case *Curried:
		return nil, rom.NewNoMethodError(c.String(), method)
	case *Relation:
		return c.rewrap(res), nil
	default:
		return res, nil
	}
}

// Where restricts the underlying relation.
func (c *Curried) Where(cond rom.Tuple) *Curried {
	return c.rewrap(c.relation.Where(cond))
}

// Order orders the underlying relation.
func (c *Curried) Order(attrs ...string) *Curried {
	return c.rewrap(c.relation.Order(attrs...))
}

// As returns c renamed to alias.
func (c *Curried) As(alias string) *Curried {
	return As(c, alias).(*Curried)
}

// Pipe returns the composition of c with right.
func (c *Curried) Pipe(right any) (*Composite, error) {
	return NewComposite(c, right)
}

// String implements fmt.Stringer.
func (c *Curried) String() string {
	return fmt.Sprintf("%s.%s%v (curried %d/%d)", c.relation.Name(), c.view.Name, c.curryArgs, len(c.curryArgs), c.view.Arity)
}
