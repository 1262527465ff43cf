package command

import (
	"context"
	"fmt"

	"github.com/syssam/rom"
	"github.com/syssam/rom/mapper"
)

// Composite pipes the result of a command into another command or a mapper.
type Composite struct {
	left  Node
	right any // Node or mapper.Mapper
}

// NewComposite returns left piped into right.
func NewComposite(left Node, right any) (*Composite, error) {
	switch right.(type) {
	case Node, mapper.Mapper:
		return &Composite{left: left, right: right}, nil
	default:
		return nil, &rom.UnsupportedRelationError{Type: fmt.Sprintf("%T", right)}
	}
}

// Left returns the producing command.
func (c *Composite) Left() Node { return c.left }

// Right returns the consumer.
func (c *Composite) Right() any { return c.right }

// Result returns the cardinality of the producing command.
func (c *Composite) Result() Result { return c.left.Result() }

// Call calls left with args and passes its response to right. A single
// tuple produced by a result one command is passed as is to commands and
// as a one element collection to mappers, whose first result is returned.
// A result one graph passes its response and returns the first element of
// right's response.
func (c *Composite) Call(ctx context.Context, args ...any) (any, error) {
	resp, err := c.left.Call(ctx, args...)
	if err != nil {
		return nil, err
	}
	one := c.left.Result() == One
	switch {
	case one && !isGraph(c.left):
		switch right := c.right.(type) {
		case *Command:
			return right.Call(ctx, resp)
		case *Composite:
			return right.Call(ctx, resp)
		}
		out, err := c.callRight(ctx, []any{resp})
		if err != nil {
			return nil, err
		}
		return first(out), nil
	case one:
		out, err := c.callRight(ctx, resp)
		if err != nil {
			return nil, err
		}
		return first(out), nil
	default:
		return c.callRight(ctx, resp)
	}
}

func (c *Composite) callRight(ctx context.Context, input any) (any, error) {
	switch right := c.right.(type) {
	case Node:
		return right.Call(ctx, input)
	case mapper.Mapper:
		return right.Map(collection(input))
	}
	return nil, &rom.UnsupportedRelationError{Type: fmt.Sprintf("%T", c.right)}
}

// Pipe appends right to the pipeline.
func (c *Composite) Pipe(right any) (*Composite, error) {
	return NewComposite(c, right)
}

// MapWith returns c piped into m.
func (c *Composite) MapWith(m mapper.Mapper) *Composite {
	return &Composite{left: c, right: m}
}

func isGraph(n Node) bool {
	_, ok := n.(*Graph)
	return ok
}

// collection normalizes a command response to a mapper collection.
func collection(v any) []any {
	switch v := v.(type) {
	case nil:
		return []any{}
	case []any:
		return v
	case []rom.Tuple:
		out := make([]any, len(v))
		for i, t := range v {
			out[i] = t
		}
		return out
	default:
		return []any{v}
	}
}

func first(v any) any {
	switch v := v.(type) {
	case []any:
		if len(v) == 0 {
			return nil
		}
		return v[0]
	case []rom.Tuple:
		if len(v) == 0 {
			return nil
		}
		return v[0]
	default:
		return v
	}
}
