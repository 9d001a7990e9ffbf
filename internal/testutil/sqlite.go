// Package testutil provides database fixtures for package tests.
package testutil

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// PeopleSchema is the person/computer fixture used across the test suites.
var PeopleSchema = []string{
	`CREATE TABLE person (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		age INTEGER,
		other REAL,
		birth_date DATE
	)`,
	`CREATE TABLE computer (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		vendor TEXT,
		purchase_time DATETIME,
		owner_id INTEGER REFERENCES person(id)
	)`,
}

// SQLite opens a file-backed SQLite database in a temporary directory with
// foreign keys enforced, and applies ddl.
func SQLite(t testing.TB, ddl ...string) *sql.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		filepath.Join(t.TempDir(), "test.db"))
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	for _, stmt := range ddl {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	return db
}

// Seed inserts rows into table and returns the generated ids in order.
func Seed(t testing.TB, db *sql.DB, table string, rows ...map[string]any) []int64 {
	t.Helper()

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		cols := make([]string, 0, len(row))
		for c := range row {
			cols = append(cols, c)
		}
		slices.Sort(cols)

		args := make([]any, len(cols))
		quoted := make([]string, len(cols))
		for i, c := range cols {
			args[i] = row[c]
			quoted[i] = fmt.Sprintf("%q", c)
		}
		query := fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)", table,
			strings.Join(quoted, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))

		res, err := db.Exec(query, args...)
		require.NoError(t, err)
		id, err := res.LastInsertId()
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of rows in table matching the optional where clause.
func Count(t testing.TB, db *sql.DB, table, where string, args ...any) int {
	t.Helper()

	query := fmt.Sprintf("SELECT COUNT(*) FROM %q", table)
	if where != "" {
		query += " WHERE " + where
	}
	var n int
	require.NoError(t, db.QueryRow(query, args...).Scan(&n))
	return n
}

// SeedPeople inserts n person rows named p1..pn, all with the given age, in
// one statement.
func SeedPeople(t testing.TB, db *sql.DB, n, age int) {
	t.Helper()

	_, err := db.Exec(`WITH RECURSIVE seq(n) AS (SELECT 1 UNION ALL SELECT n + 1 FROM seq WHERE n < ?)
		INSERT INTO person (name, age) SELECT 'p' || n, ? FROM seq`, n, age)
	require.NoError(t, err)
}
