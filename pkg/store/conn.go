// Package store is the persistence layer behind the REST resources: SQL
// dialects, per-entity models, transactions and the translation of
// constraint violations into validation errors.
package store

import (
	"context"
	"database/sql"
)

// Conn abstracts *sql.DB, *sql.Conn and *sql.Tx so that every operation can
// run inside the transaction of the request that issued it.
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ Conn = (*sql.DB)(nil)
	_ Conn = (*sql.Conn)(nil)
	_ Conn = (*sql.Tx)(nil)
)

// Record is one row keyed by column name.
type Record map[string]any

// ScanRecords reads every row into a Record. Byte slices are copied into strings.
func ScanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var records []Record
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		rec := make(Record, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				rec[col] = string(b)
				continue
			}
			rec[col] = values[i]
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
