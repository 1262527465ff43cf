// Package memory implements an in-memory gateway of datasets.
//
// Datasets are restricted copies of a shared table: restricting never
// modifies the table, writing through a dataset modifies the tuples matching
// its restrictions. Tables are safe for concurrent use.
//
//	gw := memory.NewGateway()
//	gw.Seed("users", rom.Tuple{"id": 1, "name": "Jane"})
//	ds, _ := gw.Dataset("users")
//	users, err := rels.Define(relation.Define("users").WithAdapter(dialect.Memory).WithSchema(schema), ds)
package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/syssam/rom"
	"github.com/syssam/rom/command"
	"github.com/syssam/rom/dialect"
	"github.com/syssam/rom/relation"
)

// Register registers the memory command executors in reg.
func Register(reg *command.Registry) {
	reg.RegisterWriter(dialect.Memory)
}

// Gateway holds named tables.
type Gateway struct {
	mu     sync.RWMutex
	tables map[string]*table
}

// NewGateway returns an empty gateway.
func NewGateway() *Gateway {
	return &Gateway{tables: make(map[string]*table)}
}

// Dataset returns the dataset of the named table, creating an empty table
// with primary key "id" if needed.
func (g *Gateway) Dataset(name string) (relation.Dataset, error) {
	return &Dataset{table: g.table(name)}, nil
}

// PrimaryKey sets the primary key attribute of the named table.
func (g *Gateway) PrimaryKey(name, pk string) {
	t := g.table(name)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pk = pk
}

// Seed inserts tuples into the named table.
func (g *Gateway) Seed(name string, tuples ...rom.Tuple) error {
	_, err := g.table(name).insert(tuples)
	return err
}

// Tables returns the table names, sorted.
func (g *Gateway) Tables() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.tables))
	for name := range g.tables {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (g *Gateway) table(name string) *table {
	g.mu.RLock()
	t, ok := g.tables[name]
	g.mu.RUnlock()
	if ok {
		return t
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if t, ok := g.tables[name]; ok {
		return t
	}
	t = &table{name: name, pk: relation.DefaultPrimaryKey}
	g.tables[name] = t
	return t
}

type table struct {
	mu   sync.RWMutex
	name string
	pk   string
	rows []rom.Tuple
	seq  int64
}

func (t *table) insert(tuples []rom.Tuple) ([]rom.Tuple, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rows := make([]rom.Tuple, 0, len(tuples))
	seq := t.seq
	for _, in := range tuples {
		row := in.Clone()
		if row == nil {
			row = rom.Tuple{}
		}
		if id, ok := row[t.pk]; ok && id != nil {
			if n, ok := toInt64(id); ok && n > seq {
				seq = n
			}
			dup := func(r rom.Tuple) bool { return Equal(r[t.pk], id) }
			if slices.ContainsFunc(t.rows, dup) || slices.ContainsFunc(rows, dup) {
				return nil, rom.NewConstraintError(
					fmt.Sprintf("duplicate %s.%s %v", t.name, t.pk, id),
					nil,
				)
			}
		}
		rows = append(rows, row)
	}
	out := make([]rom.Tuple, len(rows))
	for i, row := range rows {
		if id, ok := row[t.pk]; !ok || id == nil {
			seq++
			row[t.pk] = seq
		}
		out[i] = row.Clone()
	}
	t.seq = seq
	t.rows = append(t.rows, rows...)
	return out, nil
}

// Predicate reports whether a tuple belongs to a dataset.
type Predicate func(rom.Tuple) bool

type join struct {
	other  relation.Dataset
	keys   map[string]string
	prefix string
}

// Dataset is a restricted view of a table.
type Dataset struct {
	table  *table
	preds  []Predicate
	order  []string
	joins  []join
	keys   []string
	opaque bool
}

func (d *Dataset) clone() *Dataset {
	return &Dataset{
		table:  d.table,
		preds:  slices.Clone(d.preds),
		order:  slices.Clone(d.order),
		joins:  slices.Clone(d.joins),
		keys:   slices.Clone(d.keys),
		opaque: d.opaque,
	}
}

// Name returns the table name.
func (d *Dataset) Name() string { return d.table.name }

// Filter returns d restricted by p. Filtered datasets have no cache key.
func (d *Dataset) Filter(p Predicate) *Dataset {
	c := d.filter(p, "")
	c.opaque = true
	return c
}

func (d *Dataset) filter(p Predicate, key string) *Dataset {
	c := d.clone()
	c.preds = append(c.preds, p)
	c.keys = append(c.keys, key)
	return c
}

// Where implements relation.Dataset.
func (d *Dataset) Where(cond rom.Tuple) relation.Dataset {
	cond = cond.Clone()
	keys := make([]string, 0, len(cond))
	for _, k := range slices.Sorted(maps.Keys(cond)) {
		keys = append(keys, fmt.Sprintf("%s=%#v", k, cond[k]))
	}
	return d.filter(func(t rom.Tuple) bool {
		for k, v := range cond {
			if !Equal(t[k], v) {
				return false
			}
		}
		return true
	}, "where "+strings.Join(keys, ","))
}

// In implements relation.Dataset.
func (d *Dataset) In(attr string, values []any) relation.Dataset {
	values = slices.Clone(values)
	return d.filter(func(t rom.Tuple) bool {
		return slices.ContainsFunc(values, func(v any) bool { return Equal(t[attr], v) })
	}, fmt.Sprintf("%s in %#v", attr, values))
}

// Order implements relation.Orderer.
func (d *Dataset) Order(attrs ...string) relation.Dataset {
	c := d.clone()
	c.order = slices.Clone(attrs)
	return c
}

// Join implements relation.Joiner. Tuples without a matching tuple in other
// are dropped.
func (d *Dataset) Join(other relation.Dataset, keys map[string]string, prefix string) relation.Dataset {
	c := d.clone()
	c.joins = append(c.joins, join{other: other, keys: keys, prefix: prefix})
	return c
}

// CacheKey implements relation.Keyer. Datasets restricted by Filter, or
// joined to datasets without a key, report false.
func (d *Dataset) CacheKey() (string, bool) {
	if d.opaque {
		return "", false
	}
	parts := append([]string{d.table.name}, d.keys...)
	if len(d.order) > 0 {
		parts = append(parts, "order "+strings.Join(d.order, ","))
	}
	for _, j := range d.joins {
		k, ok := j.other.(relation.Keyer)
		if !ok {
			return "", false
		}
		other, ok := k.CacheKey()
		if !ok {
			return "", false
		}
		parts = append(parts, fmt.Sprintf("join (%s) on %v as %s", other, j.keys, j.prefix))
	}
	return strings.Join(parts, " "), true
}

// Fetch implements relation.Dataset.
func (d *Dataset) Fetch(ctx context.Context) ([]rom.Tuple, error) {
	rows := d.rows()
	for _, j := range d.joins {
		var err error
		if rows, err = j.apply(ctx, rows); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// Count implements relation.Dataset.
func (d *Dataset) Count(ctx context.Context) (int, error) {
	if len(d.joins) > 0 {
		rows, err := d.Fetch(ctx)
		if err != nil {
			return 0, err
		}
		return len(rows), nil
	}
	d.table.mu.RLock()
	defer d.table.mu.RUnlock()
	n := 0
	for _, r := range d.table.rows {
		if d.match(r) {
			n++
		}
	}
	return n, nil
}

// Insert implements command.Writer.
func (d *Dataset) Insert(_ context.Context, tuples []rom.Tuple) ([]rom.Tuple, error) {
	return d.table.insert(tuples)
}

// Update implements command.Writer.
func (d *Dataset) Update(_ context.Context, attrs rom.Tuple) ([]rom.Tuple, error) {
	d.table.mu.Lock()
	defer d.table.mu.Unlock()
	out := []rom.Tuple{}
	for i, r := range d.table.rows {
		if !d.match(r) {
			continue
		}
		d.table.rows[i] = r.Merge(attrs)
		out = append(out, d.table.rows[i].Clone())
	}
	return out, nil
}

// Delete implements command.Writer.
func (d *Dataset) Delete(context.Context) ([]rom.Tuple, error) {
	d.table.mu.Lock()
	defer d.table.mu.Unlock()
	var (
		out  = []rom.Tuple{}
		keep = make([]rom.Tuple, 0, len(d.table.rows))
	)
	for _, r := range d.table.rows {
		if d.match(r) {
			out = append(out, r)
			continue
		}
		keep = append(keep, r)
	}
	d.table.rows = keep
	return out, nil
}

func (d *Dataset) match(t rom.Tuple) bool {
	for _, p := range d.preds {
		if !p(t) {
			return false
		}
	}
	return true
}

func (d *Dataset) rows() []rom.Tuple {
	d.table.mu.RLock()
	out := make([]rom.Tuple, 0, len(d.table.rows))
	for _, r := range d.table.rows {
		if d.match(r) {
			out = append(out, r.Clone())
		}
	}
	d.table.mu.RUnlock()
	if len(d.order) > 0 {
		slices.SortStableFunc(out, func(a, b rom.Tuple) int {
			for _, attr := range d.order {
				if c := Compare(a[attr], b[attr]); c != 0 {
					return c
				}
			}
			return 0
		})
	}
	return out
}

func (j join) apply(ctx context.Context, rows []rom.Tuple) ([]rom.Tuple, error) {
	others, err := j.other.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]rom.Tuple, 0, len(rows))
	for _, r := range rows {
		i := slices.IndexFunc(others, func(o rom.Tuple) bool {
			for src, tgt := range j.keys {
				if !Equal(r[src], o[tgt]) {
					return false
				}
			}
			return true
		})
		if i < 0 {
			continue
		}
		for k, v := range others[i] {
			r[j.prefix+"_"+k] = v
		}
		out = append(out, r)
	}
	return out, nil
}

// Equal reports whether two attribute values are equal. Numbers compare by
// value regardless of their Go type.
func Equal(a, b any) bool {
	if x, ok := toFloat64(a); ok {
		y, ok := toFloat64(b)
		return ok && x == y
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// Compare orders attribute values: nil first, then numbers by value, then
// strings. Other values compare by their formatted representation.
func Compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if x, ok := toFloat64(a); ok {
		if y, ok := toFloat64(b); ok {
			return cmp.Compare(x, y)
		}
	}
	if x, ok := a.(string); ok {
		if y, ok := b.(string); ok {
			return cmp.Compare(x, y)
		}
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat64(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}

func toInt64(v any) (int64, bool) {
	f, ok := toFloat64(v)
	if !ok || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}
