package search

import (
	"fmt"
	"strings"

	"github.com/edgeflare/restless/pkg/schema"
	"github.com/edgeflare/restless/pkg/store"
	"github.com/spf13/cast"
)

type renderer struct {
	args    *store.Args
	dialect store.Dialect
}

func (r *renderer) col(alias, name string) string {
	return r.dialect.Quote(alias, name)
}

type predicate interface {
	sql(r *renderer, alias string) string
}

type comparePred struct {
	column, op string
	val        any
}

func (p comparePred) sql(r *renderer, alias string) string {
	return fmt.Sprintf("%s %s %s", r.col(alias, p.column), p.op, r.args.Add(p.val))
}

type likePred struct {
	column string
	ilike  bool
	val    string
}

func (p likePred) sql(r *renderer, alias string) string {
	op := "LIKE"
	if p.ilike {
		op = r.dialect.ILike()
	}
	return fmt.Sprintf("%s %s %s", r.col(alias, p.column), op, r.args.Add(p.val))
}

type columnsPred struct {
	left, op, right string
}

func (p columnsPred) sql(r *renderer, alias string) string {
	return fmt.Sprintf("%s %s %s", r.col(alias, p.left), p.op, r.col(alias, p.right))
}

type nullPred struct {
	column string
	not    bool
}

func (p nullPred) sql(r *renderer, alias string) string {
	if p.not {
		return r.col(alias, p.column) + " IS NOT NULL"
	}
	return r.col(alias, p.column) + " IS NULL"
}

type inPred struct {
	column string
	vals   []any
	not    bool
}

func (p inPred) sql(r *renderer, alias string) string {
	switch {
	case len(p.vals) == 0 && p.not:
		return "1 = 1"
	case len(p.vals) == 0:
		return "1 = 0"
	case p.not:
		return fmt.Sprintf("%s NOT IN (%s)", r.col(alias, p.column), r.args.List(p.vals))
	default:
		return fmt.Sprintf("%s IN (%s)", r.col(alias, p.column), r.args.List(p.vals))
	}
}

type groupPred struct {
	or    bool
	items []predicate
}

func (p groupPred) sql(r *renderer, alias string) string {
	if len(p.items) == 0 {
		if p.or {
			return "1 = 0"
		}
		return "1 = 1"
	}
	parts := make([]string, len(p.items))
	for i, item := range p.items {
		parts[i] = "(" + item.sql(r, alias) + ")"
	}
	sep := " AND "
	if p.or {
		sep = " OR "
	}
	return strings.Join(parts, sep)
}

type notPred struct {
	inner predicate
}

func (p notPred) sql(r *renderer, alias string) string {
	return "NOT (" + p.inner.sql(r, alias) + ")"
}

// existsPred correlates a related table through a relation's columns.
type existsPred struct {
	table         string
	local, remote string
	inner         predicate
}

const relatedAlias = "t1"

func (p existsPred) sql(r *renderer, alias string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "EXISTS (SELECT 1 FROM %s AS %s WHERE %s = %s",
		p.table, r.dialect.Quote(relatedAlias), r.col(relatedAlias, p.remote), r.col(alias, p.local))
	if p.inner != nil {
		sb.WriteString(" AND (" + p.inner.sql(r, relatedAlias) + ")")
	}
	sb.WriteString(")")
	return sb.String()
}

type compiler struct {
	reg Resolver
	st  *store.Store
}

// all ANDs filters together. allowRelations is false inside has/any.
func (c *compiler) all(e *schema.Entity, filters []Filter, allowRelations bool) (predicate, error) {
	g := groupPred{}
	for _, f := range filters {
		p, err := c.filter(e, f, allowRelations)
		if err != nil {
			return nil, err
		}
		g.items = append(g.items, p)
	}
	if len(g.items) == 1 {
		return g.items[0], nil
	}
	return g, nil
}

func (c *compiler) filter(e *schema.Entity, f Filter, allowRelations bool) (predicate, error) {
	switch {
	case f.Or != nil:
		g := groupPred{or: true}
		for _, sub := range f.Or {
			p, err := c.filter(e, sub, allowRelations)
			if err != nil {
				return nil, err
			}
			g.items = append(g.items, p)
		}
		return g, nil
	case f.And != nil:
		return c.all(e, f.And, allowRelations)
	case f.Not != nil:
		p, err := c.filter(e, *f.Not, allowRelations)
		if err != nil {
			return nil, err
		}
		return notPred{p}, nil
	}

	if f.Name == "" {
		return nil, fmt.Errorf("%w: filter without name", ErrDecode)
	}
	op, err := ParseOperator(f.Op)
	if err != nil {
		return nil, err
	}

	if op == OpHas || op == OpAny {
		if !allowRelations {
			return nil, fmt.Errorf("%w: %s filters cannot be nested", ErrDecode, op)
		}
		return c.related(e, f)
	}

	col, ok := e.Column(f.Name)
	if !ok {
		return nil, &schema.UnknownFieldError{Entity: e.Name, Field: f.Name}
	}

	if f.Field != "" {
		sqlOp, ok := comparisons[op]
		if !ok {
			return nil, fmt.Errorf("%w: %s cannot compare two fields", ErrDecode, op)
		}
		if !e.HasColumn(f.Field) {
			return nil, &schema.UnknownFieldError{Entity: e.Name, Field: f.Field}
		}
		return columnsPred{left: col.Name, op: sqlOp, right: f.Field}, nil
	}

	switch op {
	case OpIsNull:
		return nullPred{column: col.Name}, nil
	case OpIsNotNull:
		return nullPred{column: col.Name, not: true}, nil
	case OpLike, OpILike:
		s, err := cast.ToStringE(f.Val)
		if err != nil || f.Val == nil {
			return nil, fmt.Errorf("%w: %s needs a string", ErrDecode, op)
		}
		return likePred{column: col.Name, ilike: op == OpILike, val: s}, nil
	case OpIn, OpNotIn:
		items, ok := f.Val.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s needs a list", ErrDecode, op)
		}
		vals := make([]any, len(items))
		for i, item := range items {
			if vals[i], err = coerce(col, item); err != nil {
				return nil, err
			}
		}
		return inPred{column: col.Name, vals: vals, not: op == OpNotIn}, nil
	}

	if f.Val == nil {
		switch op {
		case OpEq:
			return nullPred{column: col.Name}, nil
		case OpNeq:
			return nullPred{column: col.Name, not: true}, nil
		}
		return nil, fmt.Errorf("%w: %s needs a value", ErrDecode, op)
	}
	val, err := coerce(col, f.Val)
	if err != nil {
		return nil, err
	}
	return comparePred{column: col.Name, op: comparisons[op], val: val}, nil
}

func (c *compiler) related(e *schema.Entity, f Filter) (predicate, error) {
	rel, ok := e.Relation(f.Name)
	if !ok {
		return nil, &schema.UnknownFieldError{Entity: e.Name, Field: f.Name}
	}
	target, ok := c.reg.Lookup(rel.Target)
	if !ok {
		return nil, &schema.UnknownFieldError{Entity: e.Name, Field: f.Name}
	}

	p := existsPred{
		table:  c.st.Model(target).Table(),
		local:  rel.LocalColumn,
		remote: rel.RemoteColumn,
	}
	nested, err := decodeNested(f.Val)
	if err != nil {
		return nil, err
	}
	if nested != nil {
		if p.inner, err = c.filter(target, *nested, false); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func coerce(col schema.Column, v any) (any, error) {
	out, err := store.Coerce(col, v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, col.Name, err)
	}
	return out, nil
}
