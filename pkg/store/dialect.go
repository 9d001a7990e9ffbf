package store

import (
	"cmp"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Dialect captures what differs between the supported databases.
type Dialect interface {
	Name() string
	// Placeholder returns the bind parameter for the n-th (1-based) argument.
	Placeholder(n int) string
	// Quote quotes and joins identifier parts, e.g. schema and table.
	Quote(parts ...string) string
	// ILike is the case-insensitive LIKE operator.
	ILike() string
	// NoLimit is the LIMIT value meaning "all rows".
	NoLimit() string
	// Translate converts constraint violations into *ValidationError and
	// returns any other error unchanged.
	Translate(err error) error
	// Retryable reports whether a transaction failing with err may be retried.
	Retryable(err error) bool
}

var (
	Postgres Dialect = postgres{}
	SQLite   Dialect = sqlite{}
)

// DialectFor returns the dialect for a database/sql driver name.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "pgx", "postgres", "postgresql":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

func quoteIdent(parts ...string) string {
	return pgx.Identifier(parts).Sanitize()
}

type postgres struct{}

func (postgres) Name() string { return "postgres" }
func (postgres) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }
func (postgres) Quote(parts ...string) string { return quoteIdent(parts...) }
func (postgres) ILike() string { return "ILIKE" }
func (postgres) NoLimit() string { return "ALL" }

var pgKeyDetail = regexp.MustCompile(`Key \(([^)]+)\)=`)

// https://www.postgresql.org/docs/current/errcodes-appendix.html
func (postgres) Translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch {
	case pgErr.Code == "23502": // not_null_violation
		return newValidationError(fieldOr(pgErr.ColumnName), msgPresence)
	case pgErr.Code == "23505": // unique_violation
		return newValidationError(detailFields(pgErr.Detail), msgUnique)
	case pgErr.Code == "23503": // foreign_key_violation
		return newValidationError(detailFields(pgErr.Detail), msgForeignKey)
	case pgErr.Code == "23514": // check_violation
		return newValidationError(cmp.Or(pgErr.ColumnName, pgErr.ConstraintName, NonFieldKey), msgCheck)
	case strings.HasPrefix(pgErr.Code, "22"): // data_exception
		return newValidationError(fieldOr(pgErr.ColumnName), pgErr.Message)
	default:
		return err
	}
}

func (postgres) Retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func detailFields(detail string) string {
	if m := pgKeyDetail.FindStringSubmatch(detail); m != nil {
		return m[1]
	}
	return NonFieldKey
}

func fieldOr(column string) string {
	if column == "" {
		return NonFieldKey
	}
	return column
}

type sqlite struct{}

func (sqlite) Name() string { return "sqlite" }
func (sqlite) Placeholder(int) string { return "?" }
func (sqlite) Quote(parts ...string) string { return quoteIdent(parts...) }
func (sqlite) ILike() string { return "LIKE" }
func (sqlite) NoLimit() string { return "-1" }

// e.g. "constraint failed: NOT NULL constraint failed: person.name (1299)"
var sqliteConstraint = regexp.MustCompile(`(NOT NULL|UNIQUE|CHECK|FOREIGN KEY) constraint failed(?:: ([^()]+))?`)

func (sqlite) Translate(err error) error {
	if err == nil {
		return nil
	}
	m := sqliteConstraint.FindStringSubmatch(err.Error())
	if m == nil {
		if strings.Contains(err.Error(), "datatype mismatch") {
			return newValidationError(NonFieldKey, "datatype mismatch")
		}
		return err
	}

	field := NonFieldKey
	if detail := strings.TrimSpace(m[2]); detail != "" {
		var cols []string
		for _, part := range strings.Split(detail, ",") {
			part = strings.TrimSpace(part)
			if i := strings.LastIndex(part, "."); i >= 0 {
				part = part[i+1:]
			}
			cols = append(cols, part)
		}
		field = strings.Join(cols, ", ")
	}

	switch m[1] {
	case "NOT NULL":
		return newValidationError(field, msgPresence)
	case "UNIQUE":
		return newValidationError(field, msgUnique)
	case "FOREIGN KEY":
		return newValidationError(field, msgForeignKey)
	default:
		return newValidationError(field, msgCheck)
	}
}

func (sqlite) Retryable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
