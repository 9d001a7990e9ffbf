package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Config struct {
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"maxOpenConns"`
}

// DB is a connection pool paired with its dialect.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open opens and pings the database. SQLite connections get foreign keys
// enforced and a busy timeout.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	d, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	driver, dsn := "pgx", cfg.DSN
	if d == SQLite {
		driver, dsn = "sqlite", sqliteDSN(cfg.DSN)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.Name(), err)
	}

	switch {
	case d == SQLite && strings.Contains(dsn, ":memory:"):
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	case cfg.MaxOpenConns > 0:
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.Name(), err)
	}
	return &DB{DB: db, Dialect: d}, nil
}

func sqliteDSN(dsn string) string {
	var params []string
	if !strings.Contains(dsn, "foreign_keys") {
		params = append(params, "_pragma=foreign_keys(1)")
	}
	if !strings.Contains(dsn, "busy_timeout") {
		params = append(params, "_pragma=busy_timeout(5000)")
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}
