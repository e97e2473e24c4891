package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
)

// DB is a mail store connection pool together with its dialect.
type DB struct {
	pool    *sql.DB
	dialect Dialect
}

// Open connects to the store. For SQLite, dsn is a file path or ":memory:".
func Open(driver, dsn string) (*DB, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// every connection to ":memory:" is a separate database
		if dsn == ":memory:" {
			sqlDB.SetMaxOpenConns(1)
		}
		if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DB{pool: sqlDB, dialect: dialect}, nil
}

// SetMaxOpenConns limits the pool size. SQLite in-memory stores stay at one.
func (db *DB) SetMaxOpenConns(n int) {
	if n > 0 && !(db.dialect.Driver == DriverSQLite && db.pool.Stats().MaxOpenConnections == 1) {
		db.pool.SetMaxOpenConns(n)
	}
}

func (db *DB) Dialect() Dialect { return db.dialect }

func (db *DB) Close() error {
	return db.pool.Close()
}

// Store returns a query executor backed by the whole pool.
func (db *DB) Store() *Store {
	return &Store{q: db.pool, dialect: db.dialect}
}

// Session reserves a single connection for one mailbox command. The caller
// must Close it.
func (db *DB) Session(ctx context.Context) (*Session, error) {
	conn, err := db.pool.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return &Session{Store: Store{q: conn, dialect: db.dialect}, conn: conn}, nil
}

func (db *DB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.pool.ExecContext(ctx, db.dialect.Rebind(query), args...)
}

func (db *DB) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return db.pool.QueryRowContext(ctx, db.dialect.Rebind(query), args...)
}

func (db *DB) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.pool.QueryContext(ctx, db.dialect.Rebind(query), args...)
}

// Store executes search queries written with "?" placeholders.
type Store struct {
	q       querier
	dialect Dialect
}

func (s *Store) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.q.QueryContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *Store) InsensitiveLike() string {
	return s.dialect.InsensitiveLike()
}

// Session is a Store pinned to one connection.
type Session struct {
	Store
	conn *sql.Conn
}

func (s *Session) Close() error {
	return s.conn.Close()
}
