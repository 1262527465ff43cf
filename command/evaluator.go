package command

import (
	"slices"
	"strings"

	"github.com/syssam/rom"
)

// InputEvaluator extracts the input of a nested command from the input of
// the whole graph by a dotted path, such as "user.tasks".
type InputEvaluator struct {
	path    []string
	exclude []string
}

// NewInputEvaluator returns an evaluator for path. Excluded keys, the keys
// of nested nodes, are stripped from the extracted tuples.
func NewInputEvaluator(path string, exclude ...string) *InputEvaluator {
	return &InputEvaluator{path: strings.Split(path, "."), exclude: slices.Clone(exclude)}
}

// Path returns the dotted path.
func (e *InputEvaluator) Path() string { return strings.Join(e.path, ".") }

// Eval returns the value at the path of input. A non-negative index selects
// the element of the collection found at the parent path before reading the
// last key, which is how children of one parent row out of many are found.
func (e *InputEvaluator) Eval(input any, index int) (any, error) {
	var (
		v   any
		err error
	)
	if index < 0 {
		v, err = e.dig(input, e.path)
	} else {
		v, err = e.digIndex(input, index)
	}
	if err != nil {
		return nil, err
	}
	return e.strip(v), nil
}

func (e *InputEvaluator) digIndex(input any, index int) (any, error) {
	parent, err := e.dig(input, e.path[:len(e.path)-1])
	if err != nil {
		return nil, err
	}
	rows, ok := rom.AsTuples(parent)
	if !ok || index >= len(rows) {
		return nil, &rom.KeyMissingError{Path: e.path, Key: e.path[len(e.path)-1]}
	}
	key := e.path[len(e.path)-1]
	v, ok := rows[index][key]
	if !ok {
		return nil, &rom.KeyMissingError{Path: e.path, Key: key}
	}
	return v, nil
}

func (e *InputEvaluator) dig(input any, path []string) (any, error) {
	v := input
	for _, key := range path {
		t, ok := rom.AsTuple(v)
		if !ok {
			return nil, &rom.KeyMissingError{Path: e.path, Key: key}
		}
		if v, ok = t[key]; !ok {
			return nil, &rom.KeyMissingError{Path: e.path, Key: key}
		}
	}
	return v, nil
}

func (e *InputEvaluator) strip(v any) any {
	if len(e.exclude) == 0 {
		return v
	}
	if t, ok := rom.AsTuple(v); ok {
		return e.stripTuple(t)
	}
	if tuples, ok := rom.AsTuples(v); ok {
		out := make([]rom.Tuple, len(tuples))
		for i, t := range tuples {
			out[i] = e.stripTuple(t)
		}
		return out
	}
	return v
}

func (e *InputEvaluator) stripTuple(t rom.Tuple) rom.Tuple {
	out := t.Clone()
	for _, k := range e.exclude {
		delete(out, k)
	}
	return out
}
