package store

import (
	"fmt"
	"strings"
)

// Dialect selects the SQL flavor the store speaks. Queries are written
// with `?` placeholders and rebound for PostgreSQL.
type Dialect int

const (
	// SQLite is the default embedded backend.
	SQLite Dialect = iota
	// Postgres is used when the database URL carries a postgres scheme.
	Postgres
)

// String returns the dialect name.
func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgres"
	default:
		return "sqlite"
	}
}

// DriverName returns the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	switch d {
	case Postgres:
		return "pgx"
	default:
		return "sqlite3"
	}
}

// Rebind converts `?` placeholders to `$n` for PostgreSQL. SQLite
// queries pass through unchanged.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// orderByLastUsedDesc returns the ORDER BY clause for recency queries:
// most recently used first, never-used (NULL last_used_at) rows last.
func (d Dialect) orderByLastUsedDesc() string {
	if d == Postgres {
		return "ORDER BY last_used_at DESC NULLS LAST"
	}
	return "ORDER BY last_used_at IS NULL, last_used_at DESC"
}

// timestampType returns the column type for timestamps.
func (d Dialect) timestampType() string {
	if d == Postgres {
		return "TIMESTAMPTZ"
	}
	return "TIMESTAMP"
}

// DialectForURL infers the dialect from a database URL. Anything that
// is not a postgres URL is treated as a SQLite path or DSN.
func DialectForURL(url string) Dialect {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return Postgres
	}
	return SQLite
}
