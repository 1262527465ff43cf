package sql

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/syssam/rom"
	"github.com/syssam/rom/command"
	"github.com/syssam/rom/contrib/dataloader"
	"github.com/syssam/rom/dialect"
	"github.com/syssam/rom/dialect/sql/sqlgraph"
	"github.com/syssam/rom/relation"
)

// Register registers the SQL command executors in reg for every SQL dialect.
func Register(reg *command.Registry) {
	for _, name := range []string{dialect.SQLite, dialect.Postgres, dialect.MySQL} {
		reg.RegisterWriter(name)
	}
}

// Gateway provides the tables of a database as datasets.
type Gateway struct {
	drv     dialect.ExecQuerier
	dialect string
	tables  *tables
}

type tables struct {
	mu      sync.RWMutex
	pks     map[string]string
	columns map[string][]string
}

// NewGateway returns a gateway running its statements through drv.
func NewGateway(drv dialect.Driver) *Gateway {
	return &Gateway{
		drv:     drv,
		dialect: drv.Dialect(),
		tables: &tables{
			pks:     make(map[string]string),
			columns: make(map[string][]string),
		},
	}
}

// Dialect returns the dialect of the gateway.
func (g *Gateway) Dialect() string { return g.dialect }

// Tx starts a transaction and returns a gateway whose datasets run their
// statements in it. The caller commits or rolls back the returned Tx.
func (g *Gateway) Tx(ctx context.Context) (*Gateway, dialect.Tx, error) {
	drv, ok := g.drv.(dialect.Driver)
	if !ok {
		return nil, nil, errors.New("dialect/sql: gateway already runs in a transaction")
	}
	tx, err := drv.Tx(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("dialect/sql: begin transaction: %w", err)
	}
	return &Gateway{drv: tx, dialect: g.dialect, tables: g.tables}, tx, nil
}

// PrimaryKey sets the primary key column of table. Tables default to "id".
func (g *Gateway) PrimaryKey(table, pk string) {
	g.tables.mu.Lock()
	defer g.tables.mu.Unlock()
	g.tables.pks[table] = pk
}

func (g *Gateway) primaryKey(table string) string {
	g.tables.mu.RLock()
	defer g.tables.mu.RUnlock()
	if pk, ok := g.tables.pks[table]; ok {
		return pk
	}
	return relation.DefaultPrimaryKey
}

// Dataset returns the dataset of all rows of the named table.
func (g *Gateway) Dataset(name string) (relation.Dataset, error) {
	if !isValidIdentifier(name) {
		return nil, rom.NewArgumentError(name, "invalid table name")
	}
	return &Dataset{gw: g, table: name}, nil
}

// columns returns the columns of table, reading them once from an empty
// result set.
func (g *Gateway) columns(ctx context.Context, table string) ([]string, error) {
	g.tables.mu.RLock()
	columns, ok := g.tables.columns[table]
	g.tables.mu.RUnlock()
	if ok {
		return columns, nil
	}
	query, args := Dialect(g.dialect).Select().From(table).Where(False()).Query()
	rows := &Rows{}
	if err := g.drv.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	g.tables.mu.Lock()
	g.tables.columns[table] = columns
	g.tables.mu.Unlock()
	return columns, nil
}

func (g *Gateway) query(ctx context.Context, q Querier) ([]rom.Tuple, error) {
	query, args := q.Query()
	rows := &Rows{}
	if err := g.drv.Query(ctx, query, args, rows); err != nil {
		return nil, sqlgraph.WrapConstraint(err)
	}
	tuples, err := scanTuples(rows)
	if err != nil {
		return nil, sqlgraph.WrapConstraint(err)
	}
	return tuples, nil
}

func (g *Gateway) exec(ctx context.Context, q Querier) (Result, error) {
	query, args := q.Query()
	var res Result
	if err := g.drv.Exec(ctx, query, args, &res); err != nil {
		return nil, sqlgraph.WrapConstraint(err)
	}
	return res, nil
}

// returning reports whether the dialect supports "RETURNING *".
func (g *Gateway) returning() bool {
	return g.dialect == dialect.Postgres || g.dialect == dialect.SQLite
}

func scanTuples(rows *Rows) ([]rom.Tuple, error) {
	defer rows.Close()
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []rom.Tuple{}
	for rows.Next() {
		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("dialect/sql: scan: %w", err)
		}
		t := make(rom.Tuple, len(columns))
		for i, c := range columns {
			if b, ok := values[i].([]byte); ok {
				values[i] = string(b)
			}
			t[c] = values[i]
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type cond struct {
	attr   string
	values []any
	in     bool
}

func (c cond) predicate(qualifier string) Predicate {
	col := qualify(qualifier, c.attr)
	if c.in {
		return In(col, c.values...)
	}
	return EQ(col, c.values[0])
}

func (c cond) String() string {
	if c.in {
		return fmt.Sprintf("%s in %#v", c.attr, c.values)
	}
	return fmt.Sprintf("%s=%#v", c.attr, c.values[0])
}

func qualify(qualifier, col string) string {
	if qualifier == "" {
		return col
	}
	return qualifier + "." + col
}

type join struct {
	other  *Dataset
	keys   map[string]string
	prefix string
}

// Dataset is a restricted view of a table. Datasets are immutable: Where,
// In, Order and Join return new datasets.
type Dataset struct {
	gw    *Gateway
	table string
	conds []cond
	order []string
	joins []join
	err   error
}

func (d *Dataset) clone() *Dataset {
	return &Dataset{
		gw:    d.gw,
		table: d.table,
		conds: slices.Clone(d.conds),
		order: slices.Clone(d.order),
		joins: slices.Clone(d.joins),
		err:   d.err,
	}
}

// Name returns the table name.
func (d *Dataset) Name() string { return d.table }

// Where implements relation.Dataset.
func (d *Dataset) Where(attrs rom.Tuple) relation.Dataset {
	c := d.clone()
	for _, attr := range slices.Sorted(maps.Keys(attrs)) {
		c.conds = append(c.conds, newCond(attr, false, attrs[attr]))
	}
	return c
}

// In implements relation.Dataset.
func (d *Dataset) In(attr string, values []any) relation.Dataset {
	c := d.clone()
	c.conds = append(c.conds, newCond(attr, true, slices.Clone(values)...))
	return c
}

func newCond(attr string, in bool, values ...any) cond {
	return cond{attr: attr, values: values, in: in}
}

// Order implements relation.Orderer.
func (d *Dataset) Order(attrs ...string) relation.Dataset {
	c := d.clone()
	c.order = slices.Clone(attrs)
	return c
}

// Join implements relation.Joiner with an inner join. other must be a
// dataset of the same database without joins of its own.
func (d *Dataset) Join(other relation.Dataset, keys map[string]string, prefix string) relation.Dataset {
	c := d.clone()
	o, ok := other.(*Dataset)
	switch {
	case !ok:
		c.err = rom.NewArgumentError(d.table, "cannot join dataset %T", other)
	case o.gw.tables != d.gw.tables:
		c.err = rom.NewArgumentError(d.table, "cannot join %s of another database", o.table)
	case len(o.joins) > 0:
		c.err = rom.NewArgumentError(d.table, "cannot join %s with joins", o.table)
	default:
		c.joins = append(c.joins, join{other: o, keys: maps.Clone(keys), prefix: prefix})
	}
	return c
}

// CacheKey implements relation.Keyer. Datasets with a failed join report
// false.
func (d *Dataset) CacheKey() (string, bool) {
	if d.err != nil {
		return "", false
	}
	parts := []string{d.table}
	for _, c := range d.conds {
		parts = append(parts, c.String())
	}
	if len(d.order) > 0 {
		parts = append(parts, "order "+strings.Join(d.order, ","))
	}
	for _, j := range d.joins {
		other, _ := j.other.CacheKey()
		parts = append(parts, fmt.Sprintf("join (%s) on %v as %s", other, j.keys, j.prefix))
	}
	return strings.Join(parts, " "), true
}

// Fetch implements relation.Dataset.
func (d *Dataset) Fetch(ctx context.Context) ([]rom.Tuple, error) {
	s, err := d.selector(ctx, false)
	if err != nil {
		return nil, err
	}
	return d.gw.query(ctx, s)
}

// Count implements relation.Dataset.
func (d *Dataset) Count(ctx context.Context) (int, error) {
	s, err := d.selector(ctx, true)
	if err != nil {
		return 0, err
	}
	query, args := s.Query()
	rows := &Rows{}
	if err := d.gw.drv.Query(ctx, query, args, rows); err != nil {
		return 0, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("dialect/sql: count %s: no rows", d.table)
	}
	var n int
	if err := rows.Scan(&n); err != nil {
		return 0, fmt.Errorf("dialect/sql: count %s: %w", d.table, err)
	}
	return n, rows.Err()
}

func (d *Dataset) predicates(qualifier string) []Predicate {
	preds := make([]Predicate, len(d.conds))
	for i, c := range d.conds {
		preds[i] = c.predicate(qualifier)
	}
	return preds
}

func (d *Dataset) selector(ctx context.Context, count bool) (*Selector, error) {
	if d.err != nil {
		return nil, d.err
	}
	s := Dialect(d.gw.dialect).Select().From(d.table)
	if count {
		s.Count()
	}
	if len(d.joins) == 0 {
		return s.Where(d.predicates("")...).OrderBy(d.order...), nil
	}
	const base = "t0"
	s.As(base).Where(d.predicates(base)...)
	if !count {
		s.AppendSelect(base + ".*")
	}
	for i, j := range d.joins {
		alias := "t" + strconv.Itoa(i+1)
		on := make([]Predicate, 0, len(j.keys))
		for _, src := range slices.Sorted(maps.Keys(j.keys)) {
			on = append(on, ColumnsEQ(qualify(base, src), qualify(alias, j.keys[src])))
		}
		s.Join(j.other.table, alias, And(on...)).Where(j.other.predicates(alias)...)
		if count {
			continue
		}
		columns, err := d.gw.columns(ctx, j.other.table)
		if err != nil {
			return nil, fmt.Errorf("dialect/sql: columns of %s: %w", j.other.table, err)
		}
		for _, col := range columns {
			s.AppendSelectAs(qualify(alias, col), j.prefix+"_"+col)
		}
	}
	for _, attr := range d.order {
		s.OrderBy(qualify(base, attr))
	}
	return s, nil
}

func (d *Dataset) writable() error {
	if d.err != nil {
		return d.err
	}
	if len(d.joins) > 0 {
		return rom.NewArgumentError(d.table, "cannot write through a joined dataset")
	}
	return nil
}

// Insert implements command.Writer. Rows are inserted one statement at a
// time and returned as stored, including generated columns.
func (d *Dataset) Insert(ctx context.Context, tuples []rom.Tuple) ([]rom.Tuple, error) {
	if err := d.writable(); err != nil {
		return nil, err
	}
	if d.gw.returning() {
		out := make([]rom.Tuple, 0, len(tuples))
		for _, t := range tuples {
			rows, err := d.gw.query(ctx, d.insert(t).Returning())
			if err != nil {
				return nil, err
			}
			if len(rows) != 1 {
				return nil, fmt.Errorf("dialect/sql: insert into %s returned %d rows", d.table, len(rows))
			}
			out = append(out, rows[0])
		}
		return out, nil
	}
	if len(tuples) == 0 {
		return []rom.Tuple{}, nil
	}
	pk := d.gw.primaryKey(d.table)
	ids := make([]any, len(tuples))
	for i, t := range tuples {
		res, err := d.gw.exec(ctx, d.insert(t))
		if err != nil {
			return nil, err
		}
		id, ok := t[pk]
		if !ok || id == nil {
			if id, err = res.LastInsertId(); err != nil {
				return nil, fmt.Errorf("dialect/sql: insert into %s: last insert id: %w", d.table, err)
			}
		}
		ids[i] = id
	}
	rows, errs, err := d.reload(ctx, pk, ids)
	if err != nil {
		return nil, err
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("dialect/sql: inserted rows of %s: %w", d.table, err)
	}
	return rows, nil
}

func (d *Dataset) insert(t rom.Tuple) *InsertBuilder {
	ins := Dialect(d.gw.dialect).Insert(d.table)
	for _, k := range slices.Sorted(maps.Keys(t)) {
		ins.Set(k, t[k])
	}
	return ins
}

// reload reads the rows of the table with the primary keys ids, in the order
// of ids. errs[i] is dataloader.ErrNotFound when the row of ids[i] is gone.
func (d *Dataset) reload(ctx context.Context, pk string, ids []any) ([]rom.Tuple, []error, error) {
	rows, err := d.gw.query(ctx, Dialect(d.gw.dialect).Select().From(d.table).Where(In(pk, ids...)))
	if err != nil {
		return nil, nil, err
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = fmt.Sprint(id)
	}
	rows, errs := dataloader.OrderByKeys(keys, rows, func(t rom.Tuple) string { return fmt.Sprint(t[pk]) })
	return rows, errs, nil
}

// Update implements command.Writer. It returns the updated rows.
func (d *Dataset) Update(ctx context.Context, attrs rom.Tuple) ([]rom.Tuple, error) {
	if err := d.writable(); err != nil {
		return nil, err
	}
	if len(attrs) == 0 {
		return d.Fetch(ctx)
	}
	upd := Dialect(d.gw.dialect).Update(d.table).Where(d.predicates("")...)
	for _, k := range slices.Sorted(maps.Keys(attrs)) {
		upd.Set(k, attrs[k])
	}
	if d.gw.returning() {
		return d.gw.query(ctx, upd.Returning())
	}
	// The update may change the restricted columns; read the keys first.
	pk := d.gw.primaryKey(d.table)
	matched, err := d.gw.query(ctx, Dialect(d.gw.dialect).Select(pk).From(d.table).Where(d.predicates("")...))
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return []rom.Tuple{}, nil
	}
	if _, err := d.gw.exec(ctx, upd); err != nil {
		return nil, err
	}
	ids := make([]any, len(matched))
	for i, t := range matched {
		ids[i] = t[pk]
	}
	rows, errs, err := d.reload(ctx, pk, ids)
	if err != nil {
		return nil, err
	}
	// Rows deleted since the keys were read are dropped.
	out := make([]rom.Tuple, 0, len(rows))
	for i, row := range rows {
		if errs[i] == nil {
			out = append(out, row)
		}
	}
	return out, nil
}

// Delete implements command.Writer. It returns the deleted rows.
func (d *Dataset) Delete(ctx context.Context) ([]rom.Tuple, error) {
	if err := d.writable(); err != nil {
		return nil, err
	}
	del := Dialect(d.gw.dialect).Delete(d.table).Where(d.predicates("")...)
	if d.gw.returning() {
		return d.gw.query(ctx, del.Returning())
	}
	rows, err := d.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := d.gw.exec(ctx, del); err != nil {
		return nil, err
	}
	return rows, nil
}

var (
	_ relation.Gateway = (*Gateway)(nil)
	_ relation.Dataset = (*Dataset)(nil)
	_ relation.Joiner  = (*Dataset)(nil)
	_ relation.Orderer = (*Dataset)(nil)
	_ relation.Keyer   = (*Dataset)(nil)
	_ command.Writer   = (*Dataset)(nil)
)
