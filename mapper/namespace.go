package mapper

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-openapi/inflect"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/syssam/rom"
	"github.com/syssam/rom/ast"
)

// MaxHydrationDepth is the maximum nesting depth for struct hydration.
const MaxHydrationDepth = 16

// TagName is the struct tag read when hydrating structs.
const TagName = "rom"

var title = cases.Title(language.Und)

// Namespace resolves relation names to the Go struct types tuples are
// hydrated into. Types are looked up by explicit registration first, then by
// the conventional struct name of the relation ("users" -> "User").
type Namespace struct {
	name   string
	mu     sync.RWMutex
	byRel  map[string]reflect.Type
	byName map[string]reflect.Type
}

// NewNamespace returns an empty namespace.
func NewNamespace(name string) *Namespace {
	return &Namespace{
		name:   name,
		byRel:  make(map[string]reflect.Type),
		byName: make(map[string]reflect.Type),
	}
}

// Name returns the namespace name. A nil namespace has an empty name.
func (n *Namespace) Name() string {
	if n == nil {
		return ""
	}
	return n.name
}

// Register adds the struct type of prototype under its Go type name.
func (n *Namespace) Register(prototypes ...any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range prototypes {
		typ, err := structType(p)
		if err != nil {
			return err
		}
		n.byName[typ.Name()] = typ
	}
	return nil
}

// RegisterAs adds the struct type of prototype for the given relation name.
func (n *Namespace) RegisterAs(relation string, prototype any) error {
	typ, err := structType(prototype)
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.byRel[relation] = typ
	return nil
}

func structType(prototype any) (reflect.Type, error) {
	typ := reflect.TypeOf(prototype)
	for typ != nil && typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ == nil || typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("mapper: %T is not a struct", prototype)
	}
	return typ, nil
}

// StructName returns the conventional struct name of a relation:
// "users" -> "User", "task_tags" -> "TaskTag".
func StructName(relation string) string {
	parts := strings.Split(inflect.Singularize(relation), "_")
	for i, p := range parts {
		parts[i] = title.String(p)
	}
	return strings.Join(parts, "")
}

// Lookup returns the struct type for the relation.
func (n *Namespace) Lookup(relation string) (reflect.Type, bool) {
	if n == nil {
		return nil, false
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	if typ, ok := n.byRel[relation]; ok {
		return typ, true
	}
	typ, ok := n.byName[StructName(relation)]
	return typ, ok
}

// HydrateAll hydrates every tuple with the struct type of node. Tuples of a
// relation with no registered type are returned unchanged.
func (n *Namespace) HydrateAll(node ast.Relation, tuples []rom.Tuple) ([]any, error) {
	out := make([]any, len(tuples))
	typ, ok := n.Lookup(node.Name)
	for i, t := range tuples {
		if !ok {
			out[i] = t
			continue
		}
		v, err := n.hydrate(typ, node, t, 0)
		if err != nil {
			return nil, err
		}
		out[i] = v.Interface()
	}
	return out, nil
}

// Hydrate populates a new value of the struct type registered for the node.
func (n *Namespace) Hydrate(node ast.Relation, t rom.Tuple) (any, error) {
	typ, ok := n.Lookup(node.Name)
	if !ok {
		return nil, fmt.Errorf("mapper: no struct registered for %q in namespace %q", node.Name, n.Name())
	}
	v, err := n.hydrate(typ, node, t, 0)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// hydrate returns a pointer to a new typ populated from t.
func (n *Namespace) hydrate(typ reflect.Type, node ast.Relation, t rom.Tuple, depth int) (reflect.Value, error) {
	if depth > MaxHydrationDepth {
		return reflect.Value{}, fmt.Errorf("mapper: hydration depth exceeded maximum of %d", MaxHydrationDepth)
	}
	ptr := reflect.New(typ)
	v := ptr.Elem()
	children := make(map[string]ast.Relation)
	for _, c := range node.Nodes() {
		children[c.Key()] = c
	}
	for i := range typ.NumField() {
		sf := typ.Field(i)
		if !sf.IsExported() {
			continue
		}
		key := FieldKey(sf)
		if key == "-" {
			continue
		}
		val, ok := t[key]
		if !ok || val == nil {
			continue
		}
		field := v.Field(i)
		if child, ok := children[key]; ok {
			if err := n.setNested(field, child, val, depth); err != nil {
				return reflect.Value{}, fmt.Errorf("mapper: %s.%s: %w", typ.Name(), sf.Name, err)
			}
			continue
		}
		if err := setValue(field, val); err != nil {
			return reflect.Value{}, fmt.Errorf("mapper: %s.%s: %w", typ.Name(), sf.Name, err)
		}
	}
	return ptr, nil
}

// FieldKey returns the tuple attribute a struct field is mapped to: the name
// of its rom tag, or the underscored field name.
func FieldKey(sf reflect.StructField) string {
	if tag, ok := sf.Tag.Lookup(TagName); ok {
		name, _, _ := strings.Cut(tag, ",")
		if name != "" {
			return name
		}
	}
	return inflect.Underscore(sf.Name)
}

// setNested assigns a combined or wrapped child: slices of tuples for many,
// a single tuple for one and wrap.
func (n *Namespace) setNested(field reflect.Value, child ast.Relation, val any, depth int) error {
	switch val := val.(type) {
	case []rom.Tuple:
		if field.Kind() != reflect.Slice {
			return fmt.Errorf("cannot assign %d tuples to %s", len(val), field.Type())
		}
		slice := reflect.MakeSlice(field.Type(), len(val), len(val))
		for i, t := range val {
			elem, err := n.nestedStruct(field.Type().Elem(), child, t, depth)
			if err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
			slice.Index(i).Set(elem)
		}
		field.Set(slice)
		return nil
	case rom.Tuple:
		elem, err := n.nestedStruct(field.Type(), child, val, depth)
		if err != nil {
			return err
		}
		field.Set(elem)
		return nil
	default:
		return setValue(field, val)
	}
}

// nestedStruct hydrates t into target, which is a struct or pointer to struct
// type. Tuple and map targets receive the tuple as is.
func (n *Namespace) nestedStruct(target reflect.Type, child ast.Relation, t rom.Tuple, depth int) (reflect.Value, error) {
	base := target
	if base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	if base.Kind() != reflect.Struct {
		rv := reflect.ValueOf(t)
		if rv.Type().ConvertibleTo(target) {
			return rv.Convert(target), nil
		}
		return reflect.Value{}, fmt.Errorf("cannot assign tuple to %s", target)
	}
	ptr, err := n.hydrate(base, child, t, depth+1)
	if err != nil {
		return reflect.Value{}, err
	}
	if target.Kind() == reflect.Pointer {
		return ptr, nil
	}
	return ptr.Elem(), nil
}

// setValue assigns a scalar, converting between numeric kinds as datasets
// return int64 where structs declare int.
func setValue(field reflect.Value, val any) error {
	rv := reflect.ValueOf(val)
	target := field.Type()
	if target.Kind() == reflect.Pointer {
		elem, err := convert(rv, target.Elem())
		if err != nil {
			return err
		}
		ptr := reflect.New(target.Elem())
		ptr.Elem().Set(elem)
		field.Set(ptr)
		return nil
	}
	conv, err := convert(rv, target)
	if err != nil {
		return err
	}
	field.Set(conv)
	return nil
}

func convert(rv reflect.Value, target reflect.Type) (reflect.Value, error) {
	switch {
	case rv.Type().AssignableTo(target):
		return rv, nil
	case rv.Kind() == reflect.String && target.Kind() != reflect.String:
		return reflect.Value{}, fmt.Errorf("cannot convert %s to %s", rv.Type(), target)
	case isNumber(rv.Kind()) && target.Kind() == reflect.String:
		return reflect.Value{}, fmt.Errorf("cannot convert %s to %s", rv.Type(), target)
	case rv.Type().ConvertibleTo(target):
		return rv.Convert(target), nil
	default:
		return reflect.Value{}, fmt.Errorf("cannot convert %s to %s", rv.Type(), target)
	}
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
