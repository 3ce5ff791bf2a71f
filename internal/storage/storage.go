package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dialect identifies the SQL flavour behind a *sql.DB.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// TimeFormat is fixed-width so stored timestamps compare lexicographically.
const TimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// ErrUnavailable marks errors caused by the backing database. Callers treat
// it as retryable.
var ErrUnavailable = errors.New("storage unavailable")

// Unavailable wraps err so errors.Is(err, ErrUnavailable) holds.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// FormatTime renders t in UTC using TimeFormat.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime parses a stored timestamp. Zero time on malformed input.
func ParseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ParseNullTime returns nil for NULL or malformed timestamps.
func ParseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}

// Rebind rewrites '?' placeholders into the dialect's native form.
// Placeholders inside single-quoted literals are left alone.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Open opens the configured backend and bootstraps the schema.
func Open(ctx context.Context, driver, path, dsn string) (*sql.DB, Dialect, error) {
	switch Dialect(strings.ToLower(driver)) {
	case "", DialectSQLite:
		db, err := OpenSQLite(ctx, path)
		return db, DialectSQLite, err
	case DialectPostgres:
		db, err := OpenPostgres(ctx, dsn)
		return db, DialectPostgres, err
	default:
		return nil, "", fmt.Errorf("unsupported storage driver %q", driver)
	}
}

// Bootstrap creates tables/indexes if missing. The statements are portable
// across SQLite and Postgres.
func Bootstrap(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	return nil
}
