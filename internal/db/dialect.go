package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// Supported driver names, as registered with database/sql.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Dialect captures the few SQL differences between the supported backends.
type Dialect struct {
	Driver string
}

// DialectFor returns the dialect of a driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case DriverSQLite, DriverPostgres, DriverMySQL:
		return Dialect{Driver: driver}, nil
	}
	return Dialect{}, fmt.Errorf("unsupported database driver %q", driver)
}

// Rebind rewrites "?" placeholders into the driver's form. Question marks
// inside quoted literals are left alone.
func (d Dialect) Rebind(query string) string {
	if d.Driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	quoted := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'':
			quoted = !quoted
			b.WriteByte(ch)
		case ch == '?' && !quoted:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// InsensitiveLike returns the case-insensitive LIKE operator.
func (d Dialect) InsensitiveLike() string {
	if d.Driver == DriverPostgres {
		return "ILIKE"
	}
	return "LIKE"
}

func (d Dialect) autoID() string {
	switch d.Driver {
	case DriverPostgres:
		return "BIGSERIAL PRIMARY KEY"
	case DriverMySQL:
		return "BIGINT AUTO_INCREMENT PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

func (d Dialect) longText() string {
	if d.Driver == DriverMySQL {
		return "LONGTEXT"
	}
	return "TEXT"
}

// isDuplicate reports whether err is a unique constraint violation.
func (d Dialect) isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key value")
}

// querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// insert runs an INSERT and returns the new row id.
func (d Dialect) insert(ctx context.Context, q querier, query string, args ...any) (int64, error) {
	if d.Driver == DriverPostgres {
		var id int64
		err := q.QueryRowContext(ctx, d.Rebind(query+" RETURNING id"), args...).Scan(&id)
		return id, err
	}
	res, err := q.ExecContext(ctx, d.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
