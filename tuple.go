// Package rom provides the shared value and error types of the rom data
// access layer: tuples, the error taxonomy and the result cache contract.
//
// Relations, graphs and materialization live in package relation; commands
// and command graphs in package command; mapper compilation in package mapper.
package rom

import "maps"

// Tuple is a single row as produced by a dataset: attribute name to value.
type Tuple map[string]any

// Clone returns a shallow copy of the tuple.
func (t Tuple) Clone() Tuple {
	if t == nil {
		return nil
	}
	return maps.Clone(t)
}

// Project returns a new tuple holding only the given attributes. Missing
// attributes are skipped.
func (t Tuple) Project(attrs ...string) Tuple {
	out := make(Tuple, len(attrs))
	for _, a := range attrs {
		if v, ok := t[a]; ok {
			out[a] = v
		}
	}
	return out
}

// Merge returns a copy of t with the values of other applied on top.
func (t Tuple) Merge(other Tuple) Tuple {
	out := make(Tuple, len(t)+len(other))
	maps.Copy(out, t)
	maps.Copy(out, other)
	return out
}

// AsTuple converts map-like values to a Tuple.
func AsTuple(v any) (Tuple, bool) {
	switch v := v.(type) {
	case Tuple:
		return v, true
	case map[string]any:
		return Tuple(v), true
	default:
		return nil, false
	}
}

// AsTuples converts slices of map-like values to a slice of tuples. A single
// map-like value is returned as a one element slice.
func AsTuples(v any) ([]Tuple, bool) {
	switch v := v.(type) {
	case nil:
		return nil, true
	case []Tuple:
		return v, true
	case Tuple, map[string]any:
		t, _ := AsTuple(v)
		return []Tuple{t}, true
	case []map[string]any:
		out := make([]Tuple, len(v))
		for i := range v {
			out[i] = Tuple(v[i])
		}
		return out, true
	case []any:
		out := make([]Tuple, 0, len(v))
		for _, e := range v {
			t, ok := AsTuple(e)
			if !ok {
				return nil, false
			}
			out = append(out, t)
		}
		return out, true
	default:
		return nil, false
	}
}
