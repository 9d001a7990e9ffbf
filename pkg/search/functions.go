package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/edgeflare/restless/pkg/schema"
	"github.com/edgeflare/restless/pkg/store"
	"github.com/spf13/cast"
)

var aggregates = map[string]string{
	"sum":            "SUM(%s)",
	"avg":            "AVG(%s)",
	"count":          "COUNT(%s)",
	"min":            "MIN(%s)",
	"max":            "MAX(%s)",
	"count_distinct": "COUNT(DISTINCT %s)",
}

type UnsupportedFunctionError struct {
	Name string
}

func (e *UnsupportedFunctionError) Error() string {
	return fmt.Sprintf("unsupported function %q", e.Name)
}

// Evaluate computes every function in a single SELECT over e, restricted to
// the rows of scope when it is not nil. Results are keyed "<name>__<field>".
// An empty function list or a nil entity yields an empty map.
func Evaluate(ctx context.Context, conn store.Conn, st *store.Store, e *schema.Entity, fns []Function, scope *Query) (map[string]any, error) {
	result := make(map[string]any, len(fns))
	if e == nil || len(fns) == 0 {
		return result, nil
	}

	d := st.Dialect()
	exprs := make([]string, len(fns))
	numeric := make([]bool, len(fns))
	for i, fn := range fns {
		tmpl, ok := aggregates[strings.ToLower(fn.Name)]
		if !ok {
			return nil, &UnsupportedFunctionError{Name: fn.Name}
		}
		col, ok := e.Column(fn.Field)
		if !ok {
			return nil, &schema.UnknownFieldError{Entity: e.Name, Field: fn.Field}
		}
		exprs[i] = fmt.Sprintf(tmpl, d.Quote(col.Name))

		switch strings.ToLower(fn.Name) {
		case "min", "max":
			k := col.Kind()
			numeric[i] = k == schema.KindInteger || k == schema.KindFloat
		default:
			numeric[i] = true
		}
	}

	a := store.NewArgs(d)
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(exprs, ", "), st.Model(e).Table())
	if scope != nil {
		query += fmt.Sprintf(" WHERE %s IN (%s)", d.Quote(e.PrimaryKey), scope.render(a, scope.pk(), true, scope.limit))
	}

	values := make([]any, len(fns))
	ptrs := make([]any, len(fns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := conn.QueryRowContext(ctx, query, a.Values...).Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", e.Name, err)
	}

	for i, fn := range fns {
		v := values[i]
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		if numeric[i] {
			v = normalizeNumber(v)
		}
		result[fn.Name+"__"+fn.Field] = v
	}
	return result, nil
}

// normalizeNumber turns numeric strings, as some drivers return NUMERIC, into
// int64 or float64.
func normalizeNumber(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if n, err := cast.ToInt64E(s); err == nil {
		return n
	}
	if f, err := cast.ToFloat64E(s); err == nil {
		return f
	}
	return v
}
