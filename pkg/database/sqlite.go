package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

type SQLiteDB struct {
	DB *sql.DB
}

// NewSQLiteDB opens (creating if needed) a SQLite database at path.
//
// The handle is limited to a single connection: SQLite allows one writer,
// and funnelling every transaction through one connection turns lock
// contention into queueing instead of SQLITE_BUSY errors.
func NewSQLiteDB(ctx context.Context, path string) (*SQLiteDB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	return &SQLiteDB{DB: conn}, nil
}

// Close closes the database handle
func (db *SQLiteDB) Close() error {
	if db.DB == nil {
		return nil
	}
	return db.DB.Close()
}

// Health checks the database handle
func (db *SQLiteDB) Health(ctx context.Context) error {
	return db.DB.PingContext(ctx)
}
