package relation

import (
	"context"
	"fmt"

	"github.com/syssam/rom"
	"github.com/syssam/rom/mapper"
)

// Composite pipes the result of a materializable into a mapper or another
// materializable. Composites cannot be graph nodes.
type Composite struct {
	left  Materializable
	right any // mapper.Mapper or Materializable
}

// NewComposite returns left piped into right.
func NewComposite(left Materializable, right any) (*Composite, error) {
	switch right.(type) {
	case mapper.Mapper, Materializable:
	default:
		return nil, &rom.UnsupportedRelationError{Type: fmt.Sprintf("%T", right)}
	}
	return &Composite{left: left, right: right}, nil
}

// Left returns the producing side.
func (c *Composite) Left() Materializable { return c.left }

// Right returns the consuming side.
func (c *Composite) Right() any { return c.right }

// Call materializes left with args and feeds the result to right.
func (c *Composite) Call(ctx context.Context, args ...any) (*Loaded, error) {
	l, err := c.left.Call(ctx, args...)
	if err != nil {
		return nil, err
	}
	switch right := c.right.(type) {
	case Materializable:
		return right.Call(ctx, l)
	case mapper.Mapper:
		collection, err := right.Map(l.Collection())
		if err != nil {
			return nil, err
		}
		return l.New(collection), nil
	}
	return nil, &rom.UnsupportedRelationError{Type: fmt.Sprintf("%T", c.right)}
}

// Pipe appends right to the pipeline.
func (c *Composite) Pipe(right any) (*Composite, error) {
	return NewComposite(c, right)
}

// MapWith appends the named mappers of reg to the pipeline.
func (c *Composite) MapWith(reg *mapper.Registry, names ...string) (*Composite, error) {
	return mapWith(c, reg, names)
}

func mapWith(left Materializable, reg *mapper.Registry, names []string) (*Composite, error) {
	if len(names) == 0 {
		return nil, rom.NewArgumentError("map_with", "no mapper names given")
	}
	var c *Composite
	for _, name := range names {
		m, err := lookupMapper(reg, name)
		if err != nil {
			return nil, err
		}
		if c, err = NewComposite(left, m); err != nil {
			return nil, err
		}
		left = c
	}
	return c, nil
}
