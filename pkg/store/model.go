package store

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/edgeflare/restless/pkg/schema"
)

// Args collects bind arguments in the order their placeholders are written.
type Args struct {
	dialect Dialect
	Values  []any
}

func NewArgs(d Dialect) *Args {
	return &Args{dialect: d}
}

// Add appends v and returns its placeholder.
func (a *Args) Add(v any) string {
	a.Values = append(a.Values, v)
	return a.dialect.Placeholder(len(a.Values))
}

// List appends every value and returns the comma separated placeholders.
func (a *Args) List(vs []any) string {
	ph := make([]string, len(vs))
	for i, v := range vs {
		ph[i] = a.Add(v)
	}
	return strings.Join(ph, ", ")
}

type Option func(*Store)

// WithValidator registers v for the named entity.
func WithValidator(entity string, v Validator) Option {
	return func(s *Store) {
		s.validators[entity] = append(s.validators[entity], v)
	}
}

// Store hands out models bound to one dialect and the registered validators.
type Store struct {
	dialect    Dialect
	validators map[string][]Validator
}

func New(d Dialect, opts ...Option) *Store {
	s := &Store{dialect: d, validators: make(map[string][]Validator)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Dialect() Dialect { return s.dialect }

func (s *Store) Model(e *schema.Entity) *Model {
	return &Model{Entity: e, dialect: s.dialect, validators: s.validators[e.Name]}
}

// Model performs single-table operations for one entity. Every method takes
// the Conn to run on, normally the request's transaction.
type Model struct {
	Entity     *schema.Entity
	dialect    Dialect
	validators []Validator
}

func (m *Model) Dialect() Dialect { return m.dialect }

// Table returns the quoted, schema-qualified table name.
func (m *Model) Table() string {
	return m.dialect.Quote(m.Entity.Schema, m.Entity.Table.Name)
}

func (m *Model) col(name string) string {
	return m.dialect.Quote(name)
}

// CoerceID converts a raw primary key, typically a path segment.
func (m *Model) CoerceID(raw any) (any, error) {
	col, _ := m.Entity.Column(m.Entity.PrimaryKey)
	id, err := Coerce(col, raw)
	if err != nil || id == nil {
		return nil, fmt.Errorf("%w: invalid %s %v", ErrNotFound, m.Entity.PrimaryKey, raw)
	}
	return id, nil
}

// Validate runs the registered validators over already coerced values.
func (m *Model) Validate(ctx context.Context, op Operation, values map[string]any) error {
	for _, v := range m.validators {
		if err := v.Validate(ctx, m.Entity, op, values); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the row with the given primary key or ErrNotFound.
func (m *Model) Get(ctx context.Context, conn Conn, id any) (Record, error) {
	recs, err := m.SelectIn(ctx, conn, m.Entity.PrimaryKey, []any{id})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%s %v: %w", m.Entity.Name, id, ErrNotFound)
	}
	return recs[0], nil
}

// Count returns how many rows match every attribute.
func (m *Model) Count(ctx context.Context, conn Conn, attrs map[string]any) (int64, error) {
	a := NewArgs(m.dialect)
	where, err := m.whereEq(a, attrs)
	if err != nil {
		return 0, err
	}
	var n int64
	err = conn.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", m.Table(), where), a.Values...).Scan(&n)
	return n, err
}

// Find returns the first row, by primary key, matching every attribute.
func (m *Model) Find(ctx context.Context, conn Conn, attrs map[string]any) (Record, error) {
	a := NewArgs(m.dialect)
	where, err := m.whereEq(a, attrs)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s ORDER BY %s LIMIT 1",
		m.Table(), where, m.col(m.Entity.PrimaryKey))

	rows, err := conn.QueryContext(ctx, query, a.Values...)
	if err != nil {
		return nil, err
	}
	recs, err := ScanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%s matching %v: %w", m.Entity.Name, attrs, ErrNotFound)
	}
	return recs[0], nil
}

// MaxInList bounds the values bound in one IN list. SQLite allows 32766
// parameters per statement and Postgres 65535.
const MaxInList = 1000

// SelectIn returns the rows whose column holds one of values, ordered by
// primary key within each batch of MaxInList values.
func (m *Model) SelectIn(ctx context.Context, conn Conn, column string, values []any) ([]Record, error) {
	if !m.Entity.HasColumn(column) {
		return nil, &schema.UnknownFieldError{Entity: m.Entity.Name, Field: column}
	}
	var out []Record
	for batch := range slices.Chunk(values, MaxInList) {
		a := NewArgs(m.dialect)
		query := fmt.Sprintf("SELECT * FROM %s WHERE %s IN (%s) ORDER BY %s",
			m.Table(), m.col(column), a.List(batch), m.col(m.Entity.PrimaryKey))

		rows, err := conn.QueryContext(ctx, query, a.Values...)
		if err != nil {
			return nil, err
		}
		recs, err := ScanRecords(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// Create validates and inserts values, returning the new primary key.
func (m *Model) Create(ctx context.Context, conn Conn, values map[string]any) (any, error) {
	values, err := CoerceValues(m.Entity, values)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(ctx, OpCreate, values); err != nil {
		return nil, err
	}

	a := NewArgs(m.dialect)
	var query string
	if len(values) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s", m.Table(), m.col(m.Entity.PrimaryKey))
	} else {
		cols := slices.Sorted(maps.Keys(values))
		quoted := make([]string, len(cols))
		placeholders := make([]string, len(cols))
		for i, c := range cols {
			quoted[i] = m.col(c)
			placeholders[i] = a.Add(values[c])
		}
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
			m.Table(), strings.Join(quoted, ", "), strings.Join(placeholders, ", "), m.col(m.Entity.PrimaryKey))
	}

	var id any
	if err := conn.QueryRowContext(ctx, query, a.Values...).Scan(&id); err != nil {
		return nil, m.dialect.Translate(err)
	}
	if b, ok := id.([]byte); ok {
		id = string(b)
	}
	return id, nil
}

// GetOrCreate returns the primary key of the first row matching attrs,
// inserting one when none exists.
func (m *Model) GetOrCreate(ctx context.Context, conn Conn, attrs map[string]any) (id any, created bool, err error) {
	coerced, err := CoerceValues(m.Entity, attrs)
	if err != nil {
		return nil, false, err
	}
	rec, err := m.Find(ctx, conn, coerced)
	switch {
	case err == nil:
		return rec[m.Entity.PrimaryKey], false, nil
	case !errors.Is(err, ErrNotFound):
		return nil, false, err
	}

	id, err = m.Create(ctx, conn, attrs)
	if err != nil {
		return nil, false, err
	}
	return id, true, nil
}

// UpdateWhere sets values on every row matching where and returns the
// number of rows changed. Values are coerced but not validated.
func (m *Model) UpdateWhere(ctx context.Context, conn Conn, values, where map[string]any) (int64, error) {
	if len(where) == 0 {
		return 0, errors.New("no WHERE conditions provided")
	}
	a := NewArgs(m.dialect)
	set, err := m.SetClause(a, values)
	if err != nil {
		return 0, err
	}
	cond, err := m.whereEq(a, where)
	if err != nil {
		return 0, err
	}
	return m.exec(ctx, conn, fmt.Sprintf("UPDATE %s SET %s WHERE %s", m.Table(), set, cond), a.Values)
}

// UpdateIDs sets values on the rows with the given primary keys, in
// batches of MaxInList ids.
func (m *Model) UpdateIDs(ctx context.Context, conn Conn, ids []any, values map[string]any) (int64, error) {
	if len(ids) == 0 || len(values) == 0 {
		return 0, nil
	}
	var total int64
	for batch := range slices.Chunk(ids, MaxInList) {
		a := NewArgs(m.dialect)
		set, err := m.SetClause(a, values)
		if err != nil {
			return 0, err
		}
		query := fmt.Sprintf("UPDATE %s SET %s WHERE %s IN (%s)",
			m.Table(), set, m.col(m.Entity.PrimaryKey), a.List(batch))
		n, err := m.exec(ctx, conn, query, a.Values)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// Delete removes the row with the given primary key and reports whether it existed.
func (m *Model) Delete(ctx context.Context, conn Conn, id any) (bool, error) {
	a := NewArgs(m.dialect)
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", m.Table(), m.col(m.Entity.PrimaryKey), a.Add(id))
	n, err := m.exec(ctx, conn, query, a.Values)
	return n > 0, err
}

// SetClause coerces values and renders them as "col = ?, ...".
func (m *Model) SetClause(a *Args, values map[string]any) (string, error) {
	if len(values) == 0 {
		return "", errors.New("no values to set")
	}
	values, err := CoerceValues(m.Entity, values)
	if err != nil {
		return "", err
	}
	cols := slices.Sorted(maps.Keys(values))
	set := make([]string, len(cols))
	for i, c := range cols {
		set[i] = fmt.Sprintf("%s = %s", m.col(c), a.Add(values[c]))
	}
	return strings.Join(set, ", "), nil
}

func (m *Model) whereEq(a *Args, attrs map[string]any) (string, error) {
	if len(attrs) == 0 {
		return "1 = 1", nil
	}
	values, err := CoerceValues(m.Entity, attrs)
	if err != nil {
		return "", err
	}
	cols := slices.Sorted(maps.Keys(values))
	conds := make([]string, len(cols))
	for i, c := range cols {
		if values[c] == nil {
			conds[i] = m.col(c) + " IS NULL"
			continue
		}
		conds[i] = fmt.Sprintf("%s = %s", m.col(c), a.Add(values[c]))
	}
	return strings.Join(conds, " AND "), nil
}

func (m *Model) exec(ctx context.Context, conn Conn, query string, args []any) (int64, error) {
	res, err := conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, m.dialect.Translate(err)
	}
	return res.RowsAffected()
}
