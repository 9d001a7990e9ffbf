package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/edgeflare/restless/pkg/schema"
	"github.com/edgeflare/restless/pkg/store"
	"github.com/spf13/cast"
)

// Resolver finds the entity a relation points at.
type Resolver interface {
	Lookup(name string) (*schema.Entity, bool)
}

type BuildOption func(*Query)

// WithMaxLimit caps the number of rows a query returns. Zero means no cap.
func WithMaxLimit(n int) BuildOption {
	return func(q *Query) { q.maxLimit = n }
}

// Query is a compiled, lazily executed search over one entity. It holds no
// database state; every method renders and runs fresh SQL on the Conn given.
type Query struct {
	entity   *schema.Entity
	model    *store.Model
	dialect  store.Dialect
	where    predicate
	order    []orderTerm
	limit    *int
	offset   *int
	single   bool
	maxLimit int
}

type orderTerm struct {
	column, dir, nulls string
}

const rootAlias = "t0"

// Build validates spec against e and compiles it. Unknown fields and
// operators are reported before anything is executed.
func Build(reg Resolver, st *store.Store, e *schema.Entity, spec Spec, opts ...BuildOption) (*Query, error) {
	q := &Query{
		entity:  e,
		model:   st.Model(e),
		dialect: st.Dialect(),
		single:  bool(spec.Single),
	}
	for _, opt := range opts {
		opt(q)
	}

	c := &compiler{reg: reg, st: st}
	where, err := c.all(e, spec.Filters, true)
	if err != nil {
		return nil, err
	}
	if len(spec.Filters) > 0 {
		q.where = where
	}

	sawPK := false
	for _, o := range spec.OrderBy {
		if !e.HasColumn(o.Field) {
			return nil, &schema.UnknownFieldError{Entity: e.Name, Field: o.Field}
		}
		dir, nulls, err := o.sql()
		if err != nil {
			return nil, err
		}
		q.order = append(q.order, orderTerm{o.Field, dir, nulls})
		sawPK = sawPK || o.Field == e.PrimaryKey
	}
	if !sawPK {
		// stable pagination
		q.order = append(q.order, orderTerm{column: e.PrimaryKey, dir: "ASC"})
	}

	for name, v := range map[string]*int{"limit": spec.Limit, "offset": spec.Offset} {
		if v != nil && *v < 0 {
			return nil, fmt.Errorf("%w: negative %s", ErrDecode, name)
		}
	}
	q.limit, q.offset = spec.Limit, spec.Offset
	if q.maxLimit > 0 && (q.limit == nil || *q.limit > q.maxLimit) {
		q.limit = &q.maxLimit
	}
	return q, nil
}

// Single reports whether exactly one result was requested.
func (q *Query) Single() bool { return q.single }

func (q *Query) Entity() *schema.Entity { return q.entity }

// Offset returns the requested offset, zero when unset.
func (q *Query) Offset() int {
	if q.offset == nil {
		return 0
	}
	return *q.offset
}

// SQL renders the SELECT statement and its arguments.
func (q *Query) SQL() (string, []any) {
	a := store.NewArgs(q.dialect)
	return q.render(a, q.dialect.Quote(rootAlias)+".*", true, q.limit), a.Values
}

func (q *Query) render(a *store.Args, selectList string, paginate bool, limit *int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s AS %s", selectList, q.model.Table(), q.dialect.Quote(rootAlias))

	if q.where != nil {
		r := &renderer{args: a, dialect: q.dialect}
		sb.WriteString(" WHERE ")
		sb.WriteString(q.where.sql(r, rootAlias))
	}
	if !paginate {
		return sb.String()
	}

	terms := make([]string, len(q.order))
	for i, o := range q.order {
		terms[i] = fmt.Sprintf("%s %s%s", q.dialect.Quote(rootAlias, o.column), o.dir, o.nulls)
	}
	sb.WriteString(" ORDER BY ")
	sb.WriteString(strings.Join(terms, ", "))

	switch {
	case limit != nil:
		sb.WriteString(" LIMIT " + a.Add(*limit))
	case q.offset != nil:
		sb.WriteString(" LIMIT " + q.dialect.NoLimit())
	}
	if q.offset != nil {
		sb.WriteString(" OFFSET " + a.Add(*q.offset))
	}
	return sb.String()
}

func (q *Query) pk() string {
	return q.dialect.Quote(rootAlias, q.entity.PrimaryKey)
}

func (q *Query) fetch(ctx context.Context, conn store.Conn, limit *int) ([]store.Record, error) {
	a := store.NewArgs(q.dialect)
	query := q.render(a, q.dialect.Quote(rootAlias)+".*", true, limit)
	rows, err := conn.QueryContext(ctx, query, a.Values...)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", q.entity.Name, err)
	}
	return store.ScanRecords(rows)
}

// All returns every matching row in order.
func (q *Query) All(ctx context.Context, conn store.Conn) ([]store.Record, error) {
	return q.fetch(ctx, conn, q.limit)
}

// One returns the only matching row: ErrNoResult when there is none and
// ErrMultipleResults when there are several.
func (q *Query) One(ctx context.Context, conn store.Conn) (store.Record, error) {
	limit := 2
	if q.limit != nil && *q.limit < limit {
		limit = *q.limit
	}
	recs, err := q.fetch(ctx, conn, &limit)
	if err != nil {
		return nil, err
	}
	switch len(recs) {
	case 0:
		return nil, ErrNoResult
	case 1:
		return recs[0], nil
	default:
		return nil, ErrMultipleResults
	}
}

// Count returns the number of rows matching the filters, ignoring ordering
// and pagination.
func (q *Query) Count(ctx context.Context, conn store.Conn) (int64, error) {
	a := store.NewArgs(q.dialect)
	query := q.render(a, "COUNT(*)", false, nil)
	var n any
	if err := conn.QueryRowContext(ctx, query, a.Values...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", q.entity.Name, err)
	}
	return cast.ToInt64E(n)
}

// IDs returns the primary keys of the matching rows in order.
func (q *Query) IDs(ctx context.Context, conn store.Conn) ([]any, error) {
	a := store.NewArgs(q.dialect)
	query := q.render(a, q.pk(), true, q.limit)
	rows, err := conn.QueryContext(ctx, query, a.Values...)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", q.entity.Name, err)
	}
	defer rows.Close()

	ids := []any{}
	for rows.Next() {
		var id any
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		if b, ok := id.([]byte); ok {
			id = string(b)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateAll sets values on every matching row in a single statement and
// returns the number of rows changed.
func (q *Query) UpdateAll(ctx context.Context, conn store.Conn, values map[string]any) (int64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	a := store.NewArgs(q.dialect)
	set, err := q.model.SetClause(a, values)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s IN (%s)",
		q.model.Table(), set, q.dialect.Quote(q.entity.PrimaryKey), q.render(a, q.pk(), true, q.limit))
	return q.exec(ctx, conn, query, a.Values)
}

func (q *Query) exec(ctx context.Context, conn store.Conn, query string, args []any) (int64, error) {
	res, err := conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, q.dialect.Translate(err)
	}
	return res.RowsAffected()
}
