// Package sqldb holds the small amount of SQL plumbing shared by the
// SQLite- and PostgreSQL-backed stores.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect identifies the SQL flavour a store speaks.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// ErrUnknownDialect is returned for dialects other than sqlite and postgres.
var ErrUnknownDialect = errors.New("sqldb: unknown dialect")

// ParseDialect maps a backend name to a dialect.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDialect, name)
	}
}

// DriverName returns the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

// Rebind rewrites '?' placeholders into the dialect's native form.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// PoolConfig tunes the connection pool.
type PoolConfig struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
}

// Open opens and pings a database for the dialect.
func Open(ctx context.Context, d Dialect, dsn string, pool PoolConfig) (*sql.DB, error) {
	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("sqldb: open %s: %w", d, err)
	}

	if d == SQLite {
		// A single writer keeps SQLite from returning SQLITE_BUSY under
		// concurrent inserts. An in-memory database lives only as long as its
		// connection, so the pool settings are ignored and the connection
		// is never recycled.
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		if pool.MaxOpen > 0 {
			db.SetMaxOpenConns(pool.MaxOpen)
		}
		if pool.MaxIdle > 0 {
			db.SetMaxIdleConns(pool.MaxIdle)
		}
		if pool.MaxLifetime > 0 {
			db.SetConnMaxLifetime(pool.MaxLifetime)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqldb: ping %s: %w", d, err)
	}
	return db, nil
}

// IsUniqueViolation reports whether err is a primary-key or unique constraint
// failure on either supported driver.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
