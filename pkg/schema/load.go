package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Postgres reflects the given schemas through information_schema.
// With no schemas, "public" is used.
func Postgres(db Querier, schemas ...string) LoadFunc {
	if len(schemas) == 0 {
		schemas = []string{"public"}
	}
	return func(ctx context.Context) ([]Table, error) {
		var tables []Table
		for _, s := range schemas {
			if isSystem(s) {
				continue
			}
			st, err := loadPostgresSchema(ctx, db, s)
			if err != nil {
				return nil, fmt.Errorf("load schema %s: %w", s, err)
			}
			tables = append(tables, st...)
		}
		return tables, nil
	}
}

func loadPostgresSchema(ctx context.Context, db Querier, schema string) ([]Table, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT table_schema, table_name, 'TABLE'::text AS table_type
			FROM information_schema.tables
			WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		UNION ALL
		SELECT table_schema, table_name, 'VIEW'::text AS table_type
			FROM information_schema.views
			WHERE table_schema = $1
		ORDER BY table_schema, table_name`, schema)
	if err != nil {
		return nil, err
	}

	var tables []Table
	for rows.Next() {
		var t Table
		if err := rows.Scan(&t.Schema, &t.Name, &t.Type); err != nil {
			rows.Close()
			return nil, err
		}
		tables = append(tables, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// the table cursor is closed before the per-table queries so a
	// single-connection pool does not block
	for i := range tables {
		t := &tables[i]
		if t.Columns, t.PrimaryKeys, err = queryPostgresColumns(ctx, db, t.Schema, t.Name); err != nil {
			return nil, fmt.Errorf("query columns %s: %w", t.fullName(), err)
		}
		if t.Type != TypeTable {
			continue
		}
		if t.ForeignKeys, err = queryPostgresForeignKeys(ctx, db, t.Schema, t.Name); err != nil {
			return nil, fmt.Errorf("query foreign keys %s: %w", t.fullName(), err)
		}
	}
	return tables, nil
}

func queryPostgresColumns(ctx context.Context, db Querier, schema, table string) ([]Column, []string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES',
			EXISTS (
				SELECT 1 FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage kcu
					ON tc.constraint_name = kcu.constraint_name
					AND tc.table_schema = kcu.table_schema
				WHERE tc.constraint_type = 'PRIMARY KEY'
					AND tc.table_schema = $1
					AND tc.table_name = $2
					AND kcu.column_name = c.column_name
			) AS is_primary_key,
			c.column_default IS NOT NULL OR c.is_identity = 'YES' AS has_default
		FROM information_schema.columns c
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position`, schema, table)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var cols []Column
	var pkeys []string
	for rows.Next() {
		var col Column
		if err := rows.Scan(&col.Name, &col.DataType, &col.IsNullable, &col.IsPrimaryKey, &col.HasDefault); err != nil {
			return nil, nil, err
		}
		cols = append(cols, col)
		if col.IsPrimaryKey {
			pkeys = append(pkeys, col.Name)
		}
	}
	return cols, pkeys, rows.Err()
}

func queryPostgresForeignKeys(ctx context.Context, db Querier, schema, table string) ([]ForeignKey, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT
			kcu.column_name,
			ccu.table_schema,
			ccu.table_name,
			ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.constraint_schema = tc.constraint_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_schema = $1
			AND tc.table_name = $2
		ORDER BY kcu.column_name`, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fkeys []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.Column, &fk.ReferencedSchema, &fk.ReferencedTable, &fk.ReferencedColumn); err != nil {
			return nil, err
		}
		fkeys = append(fkeys, fk)
	}
	return fkeys, rows.Err()
}

func isSystem(schema string) bool {
	switch schema {
	case "information_schema", "pg_catalog", "pg_toast":
		return true
	default:
		return strings.HasPrefix(schema, "pg_temp_") || strings.HasPrefix(schema, "pg_toast_temp_")
	}
}

// SQLiteSchema is the schema name SQLite gives the primary database.
const SQLiteSchema = "main"

// SQLite reflects the main database through sqlite_master and the
// table_info / foreign_key_list pragmas.
func SQLite(db Querier) LoadFunc {
	return func(ctx context.Context) ([]Table, error) {
		rows, err := db.QueryContext(ctx, `
			SELECT name, type FROM sqlite_master
			WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
			ORDER BY name`)
		if err != nil {
			return nil, err
		}

		var tables []Table
		for rows.Next() {
			var name, typ string
			if err := rows.Scan(&name, &typ); err != nil {
				rows.Close()
				return nil, err
			}
			t := Table{Schema: SQLiteSchema, Name: name, Type: TypeTable}
			if typ == "view" {
				t.Type = TypeView
			}
			tables = append(tables, t)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}

		for i := range tables {
			t := &tables[i]
			if t.Columns, t.PrimaryKeys, err = querySQLiteColumns(ctx, db, t.Name); err != nil {
				return nil, fmt.Errorf("table_info %s: %w", t.Name, err)
			}
			if t.ForeignKeys, err = querySQLiteForeignKeys(ctx, db, t.Name); err != nil {
				return nil, fmt.Errorf("foreign_key_list %s: %w", t.Name, err)
			}
		}
		return tables, nil
	}
}

func querySQLiteColumns(ctx context.Context, db Querier, table string) ([]Column, []string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var cols []Column
	var pkeys []string
	for rows.Next() {
		var (
			col     Column
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&col.Name, &col.DataType, &notNull, &dflt, &pk); err != nil {
			return nil, nil, err
		}
		col.IsPrimaryKey = pk > 0
		col.IsNullable = notNull == 0 && !col.IsPrimaryKey
		col.HasDefault = dflt.Valid
		cols = append(cols, col)
		if col.IsPrimaryKey {
			pkeys = append(pkeys, col.Name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	// an INTEGER PRIMARY KEY aliases the rowid and is assigned on insert
	if len(pkeys) == 1 {
		for i := range cols {
			if cols[i].IsPrimaryKey && strings.EqualFold(cols[i].DataType, "integer") {
				cols[i].HasDefault = true
			}
		}
	}
	return cols, pkeys, nil
}

func querySQLiteForeignKeys(ctx context.Context, db Querier, table string) ([]ForeignKey, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT "from", "table", "to" FROM pragma_foreign_key_list(?) ORDER BY id, seq`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fkeys []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		var to sql.NullString
		if err := rows.Scan(&fk.Column, &fk.ReferencedTable, &to); err != nil {
			return nil, err
		}
		fk.ReferencedSchema = SQLiteSchema
		fk.ReferencedColumn = to.String
		fkeys = append(fkeys, fk)
	}
	return fkeys, rows.Err()
}
