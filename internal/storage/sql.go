package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const defaultSQLitePath = "catalog.db"

type sqlDialect struct {
	driver string
	create string
	get    string
	upsert string
	delete string
}

var (
	sqliteDialect = sqlDialect{
		driver: "sqlite",
		create: `CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
		get:    `SELECT value FROM kv WHERE key = ?`,
		upsert: `INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		delete: `DELETE FROM kv WHERE key = ?`,
	}
	postgresDialect = sqlDialect{
		driver: "pgx",
		create: `CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
		get:    `SELECT value FROM kv WHERE key = $1`,
		upsert: `INSERT INTO kv (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		delete: `DELETE FROM kv WHERE key = $1`,
	}
)

// SQL stores keys in a single two-column table through database/sql.
type SQL struct {
	db      *sql.DB
	dialect sqlDialect
	closed  atomic.Bool
}

// NewSQLite opens (creating if needed) a SQLite database file. An empty path uses catalog.db
// in the working directory; ":memory:" keeps data in process.
func NewSQLite(ctx context.Context, path string) (*SQL, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = defaultSQLitePath
	}
	s, err := openSQL(ctx, sqliteDialect, path)
	if err != nil {
		return nil, err
	}
	// a single connection keeps ":memory:" databases coherent and serialises writers
	s.db.SetMaxOpenConns(1)
	return s, nil
}

// NewPostgres connects to PostgreSQL using a pgx connection string.
func NewPostgres(ctx context.Context, dsn string) (*SQL, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("storage: postgres dsn is required")
	}
	return openSQL(ctx, postgresDialect, dsn)
}

func openSQL(ctx context.Context, dialect sqlDialect, dsn string) (*SQL, error) {
	db, err := sql.Open(dialect.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", dialect.driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping %s: %w", dialect.driver, err)
	}
	if _, err := db.ExecContext(ctx, dialect.create); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: create kv table: %w", err)
	}
	return &SQL{db: db, dialect: dialect}, nil
}

// Get implements KV.
func (s *SQL) Get(ctx context.Context, key string) (string, bool, error) {
	if s.closed.Load() {
		return "", false, ErrClosed
	}
	var value string
	err := s.db.QueryRowContext(ctx, s.dialect.get, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("storage: get %q: %w", key, err)
	}
	return value, true, nil
}

// Set implements KV.
func (s *SQL) Set(ctx context.Context, key, value string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.upsert, key, value); err != nil {
		return fmt.Errorf("storage: set %q: %w", key, err)
	}
	return nil
}

// Delete implements KV.
func (s *SQL) Delete(ctx context.Context, key string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.delete, key); err != nil {
		return fmt.Errorf("storage: delete %q: %w", key, err)
	}
	return nil
}

// Ping implements KV.
func (s *SQL) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.db.PingContext(ctx)
}

// Close implements KV.
func (s *SQL) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}
