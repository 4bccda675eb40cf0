// Package sqlbuild renders structured, parameterized SELECT queries.
// Values are always bound; identifiers come only from code.
package sqlbuild

import (
	"slices"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Column is one output expression.
type Column struct {
	Expr  string
	Alias string
}

// Name returns the name the column is addressable by in an outer query.
func (c Column) Name() string {
	if c.Alias != "" {
		return c.Alias
	}
	return c.Expr
}

// JoinKind selects the join flavor.
type JoinKind string

const (
	InnerJoin JoinKind = "JOIN"
	LeftJoin  JoinKind = "LEFT JOIN"
)

// Join is one joined table.
type Join struct {
	Kind  JoinKind
	Table string
	Alias string
	On    Pred
}

// Order is one ORDER BY term.
type Order struct {
	Expr string
	Desc bool
}

// Dedup collapses rows sharing Partition to the first one by Latest.
type Dedup struct {
	Partition []string
	Latest    []Order
}

// Select is an immutable query description. Modifier methods return a copy.
type Select struct {
	Columns   []Column
	From      string
	FromAlias string
	Joins     []Join
	Where     []Pred
	GroupBy   []string
	Having    []Pred
	Dedup     *Dedup
	OrderBy   []Order
	Limit     int
	Offset    int
}

// AndWhere returns a copy with p added to the WHERE conjunction.
func (q Select) AndWhere(p ...Pred) Select {
	q.Where = append(slices.Clip(q.Where), p...)
	return q
}

// AndHaving returns a copy with p added to the HAVING conjunction.
func (q Select) AndHaving(p ...Pred) Select {
	q.Having = append(slices.Clip(q.Having), p...)
	return q
}

// WithDedup returns a copy that keeps one row per partition.
func (q Select) WithDedup(d Dedup) Select {
	q.Dedup = &d
	return q
}

// OrderedBy returns a copy whose ordering is replaced by orders.
func (q Select) OrderedBy(orders ...Order) Select {
	q.OrderBy = slices.Clone(orders)
	return q
}

// Paged returns a copy limited to one page.
func (q Select) Paged(limit, offset int) Select {
	q.Limit, q.Offset = limit, offset
	return q
}

// SQL renders the query with ? placeholders.
func (q Select) SQL() (string, []any) {
	var b builder
	if q.Dedup == nil {
		q.renderPlain(&b)
		q.renderOrderAndPage(&b)
		return b.sb.String(), b.args
	}

	b.write("SELECT ")
	for i, c := range q.Columns {
		if i > 0 {
			b.write(", ")
		}
		b.write("deduped.", c.Name())
	}
	b.write(" FROM (")
	q.renderSelectList(&b)
	b.write(", ROW_NUMBER() OVER (PARTITION BY ", strings.Join(q.Dedup.Partition, ", "))
	if len(q.Dedup.Latest) > 0 {
		b.write(" ORDER BY ")
		renderOrders(&b, q.Dedup.Latest)
	}
	b.write(") AS dedup_rank")
	q.renderBody(&b)
	b.write(") deduped WHERE deduped.dedup_rank = 1")
	q.renderOrderAndPage(&b)
	return b.sb.String(), b.args
}

// CountSQL renders a query counting the rows SQL would return without
// paging. Grouped and deduplicated queries count distinct keys.
func (q Select) CountSQL() (string, []any) {
	var b builder
	var key []string
	switch {
	case q.Dedup != nil:
		key = q.Dedup.Partition
	case len(q.GroupBy) > 0:
		key = q.GroupBy
	}
	if len(key) == 0 {
		b.write("SELECT COUNT(*)")
		q.renderBody(&b)
		return b.sb.String(), b.args
	}
	b.write("SELECT COUNT(*) FROM (SELECT DISTINCT ", strings.Join(key, ", "))
	q.renderBody(&b)
	b.write(") counted")
	return b.sb.String(), b.args
}

// Rebind converts ? placeholders to the driver's bind style.
func Rebind(driverName, query string) string {
	return sqlx.Rebind(sqlx.BindType(driverName), query)
}

func (q Select) renderPlain(b *builder) {
	q.renderSelectList(b)
	q.renderBody(b)
}

func (q Select) renderSelectList(b *builder) {
	b.write("SELECT ")
	if len(q.Columns) == 0 {
		b.write("1")
	}
	for i, c := range q.Columns {
		if i > 0 {
			b.write(", ")
		}
		b.write(c.Expr)
		if c.Alias != "" {
			b.write(" AS ", c.Alias)
		}
	}
}

func (q Select) renderBody(b *builder) {
	b.write(" FROM ", q.From)
	if q.FromAlias != "" {
		b.write(" ", q.FromAlias)
	}
	for _, j := range q.Joins {
		kind := j.Kind
		if kind == "" {
			kind = InnerJoin
		}
		b.write(" ", string(kind), " ", j.Table)
		if j.Alias != "" {
			b.write(" ", j.Alias)
		}
		if j.On != nil {
			b.write(" ON ")
			j.On.render(b)
		}
	}
	if len(q.Where) > 0 {
		b.write(" WHERE ")
		renderConjunction(b, q.Where)
	}
	if len(q.GroupBy) > 0 {
		b.write(" GROUP BY ", strings.Join(q.GroupBy, ", "))
	}
	if len(q.Having) > 0 {
		b.write(" HAVING ")
		renderConjunction(b, q.Having)
	}
}

func (q Select) renderOrderAndPage(b *builder) {
	if len(q.OrderBy) > 0 {
		b.write(" ORDER BY ")
		renderOrders(b, q.OrderBy)
	}
	if q.Limit > 0 {
		b.write(" LIMIT ")
		b.bind(q.Limit)
		b.write(" OFFSET ")
		b.bind(q.Offset)
	}
}

func renderConjunction(b *builder, preds []Pred) {
	for i, p := range preds {
		if i > 0 {
			b.write(" AND ")
		}
		p.render(b)
	}
}

func renderOrders(b *builder, orders []Order) {
	for i, o := range orders {
		if i > 0 {
			b.write(", ")
		}
		b.write(o.Expr)
		if o.Desc {
			b.write(" DESC")
		} else {
			b.write(" ASC")
		}
	}
}

type builder struct {
	sb   strings.Builder
	args []any
}

func (b *builder) write(parts ...string) {
	for _, p := range parts {
		b.sb.WriteString(p)
	}
}

func (b *builder) bind(v any) {
	b.sb.WriteByte('?')
	b.args = append(b.args, v)
}
