package sql

import (
	"strconv"
	"strings"

	"github.com/syssam/rom/dialect"
)

// Querier wraps the basic Query method that is implemented
// by the different builders in this file.
type Querier interface {
	// Query returns the query representation of the element
	// and its arguments (if any).
	Query() (string, []any)
}

// Builder is the base query builder. It writes the statement text and
// collects its arguments, quoting identifiers and numbering placeholders
// according to its dialect.
type Builder struct {
	sb      strings.Builder
	args    []any
	dialect string
}

// Dialect returns the dialect of the builder.
func (b *Builder) Dialect() string { return b.dialect }

// WriteString writes s to the builder as is.
func (b *Builder) WriteString(s string) *Builder {
	b.sb.WriteString(s)
	return b
}

// WriteByte writes c to the builder.
func (b *Builder) WriteByte(c byte) *Builder {
	b.sb.WriteByte(c)
	return b
}

// Pad writes a space.
func (b *Builder) Pad() *Builder { return b.WriteByte(' ') }

// Ident writes the quoted identifier s. Qualified identifiers ("t.c") are
// quoted part by part and "*" is written as is.
func (b *Builder) Ident(s string) *Builder {
	for i, part := range strings.Split(s, ".") {
		if i > 0 {
			b.WriteByte('.')
		}
		if part == "*" {
			b.WriteByte('*')
			continue
		}
		b.WriteString(b.Quote(part))
	}
	return b
}

// IdentComma writes the identifiers separated by commas.
func (b *Builder) IdentComma(s ...string) *Builder {
	for i, ident := range s {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(ident)
	}
	return b
}

// Quote quotes a single identifier part.
func (b *Builder) Quote(ident string) string {
	q := `"`
	if b.dialect == dialect.MySQL {
		q = "`"
	}
	return q + strings.ReplaceAll(ident, q, q+q) + q
}

// Arg writes a placeholder and records its argument.
func (b *Builder) Arg(a any) *Builder {
	b.args = append(b.args, a)
	if b.dialect == dialect.Postgres {
		return b.WriteString("$" + strconv.Itoa(len(b.args)))
	}
	return b.WriteByte('?')
}

// Args writes comma separated placeholders for the arguments.
func (b *Builder) Args(a ...any) *Builder {
	for i, arg := range a {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Arg(arg)
	}
	return b
}

// Wrap writes f's output in parentheses.
func (b *Builder) Wrap(f func(*Builder)) *Builder {
	b.WriteByte('(')
	f(b)
	return b.WriteByte(')')
}

// Query implements the Querier interface.
func (b *Builder) Query() (string, []any) {
	return b.sb.String(), b.args
}

// Predicate writes a boolean condition to a builder.
type Predicate func(*Builder)

// EQ returns a "column = value" predicate. A nil value is compared with
// IS NULL.
func EQ(col string, v any) Predicate {
	return func(b *Builder) {
		b.Ident(col)
		if v == nil {
			b.WriteString(" IS NULL")
			return
		}
		b.WriteString(" = ").Arg(v)
	}
}

// In returns a "column IN (values)" predicate. An empty list of values
// matches nothing.
func In(col string, values ...any) Predicate {
	return func(b *Builder) {
		if len(values) == 0 {
			False()(b)
			return
		}
		b.Ident(col).WriteString(" IN ").Wrap(func(b *Builder) { b.Args(values...) })
	}
}

// False returns a predicate matching nothing.
func False() Predicate {
	return func(b *Builder) {
		b.WriteString("1 = 0")
	}
}

// ColumnsEQ returns a "left = right" predicate of two columns.
func ColumnsEQ(left, right string) Predicate {
	return func(b *Builder) {
		b.Ident(left).WriteString(" = ").Ident(right)
	}
}

// And joins the predicates with AND.
func And(preds ...Predicate) Predicate {
	return func(b *Builder) {
		for i, p := range preds {
			if i > 0 {
				b.WriteString(" AND ")
			}
			p(b)
		}
	}
}

// DialectBuilder prefixes all root builders with the same dialect.
type DialectBuilder struct {
	dialect string
}

// Dialect creates a new DialectBuilder with the given dialect name.
func Dialect(name string) *DialectBuilder {
	return &DialectBuilder{dialect: name}
}

// Select returns a Selector of the given columns.
//
//	Dialect(dialect.Postgres).
//		Select("id", "name").
//		From("users").
//		Where(EQ("name", "Jane"))
func (d *DialectBuilder) Select(columns ...string) *Selector {
	return &Selector{dialect: d.dialect, columns: columns}
}

// Insert returns an InsertBuilder for the table.
func (d *DialectBuilder) Insert(table string) *InsertBuilder {
	return &InsertBuilder{dialect: d.dialect, table: table}
}

// Update returns an UpdateBuilder for the table.
func (d *DialectBuilder) Update(table string) *UpdateBuilder {
	return &UpdateBuilder{dialect: d.dialect, table: table}
}

// Delete returns a DeleteBuilder for the table.
func (d *DialectBuilder) Delete(table string) *DeleteBuilder {
	return &DeleteBuilder{dialect: d.dialect, table: table}
}

type selection struct {
	column, as string
}

type joinClause struct {
	table, as string
	on        Predicate
}

// Selector is a builder for the SELECT statement.
type Selector struct {
	dialect   string
	columns   []string
	aliased   []selection
	table, as string
	joins     []joinClause
	where     []Predicate
	order     []string
	count     bool
}

// From sets the source table of the selector.
func (s *Selector) From(table string) *Selector {
	s.table = table
	return s
}

// As sets the alias of the source table.
func (s *Selector) As(alias string) *Selector {
	s.as = alias
	return s
}

// AppendSelect appends columns to the selection.
func (s *Selector) AppendSelect(columns ...string) *Selector {
	s.columns = append(s.columns, columns...)
	return s
}

// AppendSelectAs appends a column selected under an alias.
func (s *Selector) AppendSelectAs(column, as string) *Selector {
	s.aliased = append(s.aliased, selection{column: column, as: as})
	return s
}

// Join appends an inner join of table under alias as.
func (s *Selector) Join(table, as string, on Predicate) *Selector {
	s.joins = append(s.joins, joinClause{table: table, as: as, on: on})
	return s
}

// Where appends predicates combined with AND.
func (s *Selector) Where(preds ...Predicate) *Selector {
	s.where = append(s.where, preds...)
	return s
}

// OrderBy appends ascending order columns.
func (s *Selector) OrderBy(columns ...string) *Selector {
	s.order = append(s.order, columns...)
	return s
}

// Count turns the selector into a "SELECT COUNT(*)" statement.
func (s *Selector) Count() *Selector {
	s.count = true
	return s
}

// Query implements the Querier interface.
func (s *Selector) Query() (string, []any) {
	b := &Builder{dialect: s.dialect}
	b.WriteString("SELECT ")
	switch {
	case s.count:
		b.WriteString("COUNT(*)")
	case len(s.columns) == 0 && len(s.aliased) == 0:
		b.WriteByte('*')
	default:
		b.IdentComma(s.columns...)
		for i, sel := range s.aliased {
			if i > 0 || len(s.columns) > 0 {
				b.WriteString(", ")
			}
			b.Ident(sel.column).WriteString(" AS ").Ident(sel.as)
		}
	}
	b.WriteString(" FROM ").Ident(s.table)
	if s.as != "" {
		b.WriteString(" AS ").Ident(s.as)
	}
	for _, j := range s.joins {
		b.WriteString(" JOIN ").Ident(j.table).WriteString(" AS ").Ident(j.as).WriteString(" ON ")
		j.on(b)
	}
	writeWhere(b, s.where)
	if len(s.order) > 0 && !s.count {
		b.WriteString(" ORDER BY ").IdentComma(s.order...)
	}
	return b.Query()
}

// InsertBuilder is a builder for the INSERT statement of a single row.
type InsertBuilder struct {
	dialect   string
	table     string
	columns   []string
	values    []any
	returning bool
}

// Set appends a column value.
func (i *InsertBuilder) Set(column string, v any) *InsertBuilder {
	i.columns = append(i.columns, column)
	i.values = append(i.values, v)
	return i
}

// Returning appends "RETURNING *" to the statement.
func (i *InsertBuilder) Returning() *InsertBuilder {
	i.returning = true
	return i
}

// Query implements the Querier interface.
func (i *InsertBuilder) Query() (string, []any) {
	b := &Builder{dialect: i.dialect}
	b.WriteString("INSERT INTO ").Ident(i.table)
	switch {
	case len(i.columns) > 0:
		b.Pad().Wrap(func(b *Builder) { b.IdentComma(i.columns...) })
		b.WriteString(" VALUES ").Wrap(func(b *Builder) { b.Args(i.values...) })
	case i.dialect == dialect.MySQL:
		b.WriteString(" () VALUES ()")
	default:
		b.WriteString(" DEFAULT VALUES")
	}
	writeReturning(b, i.returning)
	return b.Query()
}

// UpdateBuilder is a builder for the UPDATE statement.
type UpdateBuilder struct {
	dialect   string
	table     string
	columns   []string
	values    []any
	where     []Predicate
	returning bool
}

// Set appends a column assignment.
func (u *UpdateBuilder) Set(column string, v any) *UpdateBuilder {
	u.columns = append(u.columns, column)
	u.values = append(u.values, v)
	return u
}

// Where appends predicates combined with AND.
func (u *UpdateBuilder) Where(preds ...Predicate) *UpdateBuilder {
	u.where = append(u.where, preds...)
	return u
}

// Returning appends "RETURNING *" to the statement.
func (u *UpdateBuilder) Returning() *UpdateBuilder {
	u.returning = true
	return u
}

// Query implements the Querier interface.
func (u *UpdateBuilder) Query() (string, []any) {
	b := &Builder{dialect: u.dialect}
	b.WriteString("UPDATE ").Ident(u.table).WriteString(" SET ")
	for i, c := range u.columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(c).WriteString(" = ").Arg(u.values[i])
	}
	writeWhere(b, u.where)
	writeReturning(b, u.returning)
	return b.Query()
}

// DeleteBuilder is a builder for the DELETE statement.
type DeleteBuilder struct {
	dialect   string
	table     string
	where     []Predicate
	returning bool
}

// Where appends predicates combined with AND.
func (d *DeleteBuilder) Where(preds ...Predicate) *DeleteBuilder {
	d.where = append(d.where, preds...)
	return d
}

// Returning appends "RETURNING *" to the statement.
func (d *DeleteBuilder) Returning() *DeleteBuilder {
	d.returning = true
	return d
}

// Query implements the Querier interface.
func (d *DeleteBuilder) Query() (string, []any) {
	b := &Builder{dialect: d.dialect}
	b.WriteString("DELETE FROM ").Ident(d.table)
	writeWhere(b, d.where)
	writeReturning(b, d.returning)
	return b.Query()
}

func writeWhere(b *Builder, preds []Predicate) {
	if len(preds) > 0 {
		b.WriteString(" WHERE ")
		And(preds...)(b)
	}
}

func writeReturning(b *Builder, returning bool) {
	if returning {
		b.WriteString(" RETURNING *")
	}
}
