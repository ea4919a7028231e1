package provisional

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"runtime"

	_ "github.com/mattn/go-sqlite3"
)

const (
	sqliteCreateTable = `CREATE TABLE IF NOT EXISTS provisional_kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL
	)`
	sqliteGet    = `SELECT value FROM provisional_kv WHERE key = ?`
	sqliteSet    = `INSERT INTO provisional_kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	sqliteRemove = `DELETE FROM provisional_kv WHERE key = ?`
)

// SQLiteKV keeps the provisional data in a local file, it survives restarts of a single instance
type SQLiteKV struct {
	db *sql.DB
}

func NewSQLiteKV(ctx context.Context, path string) (*SQLiteKV, error) {
	db, err := sql.Open("sqlite3", buildConnectionString(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err = db.ExecContext(ctx, sqliteCreateTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return &SQLiteKV{db: db}, nil
}

func buildConnectionString(path string) string {
	params := "?cache=shared&mode=rwc&_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000"
	if runtime.GOOS == "darwin" {
		params += "&_fullfsync=1"
	}
	return "file:" + path + params
}

func (s *SQLiteKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, sqliteGet, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *SQLiteKV) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, sqliteSet, key, value)
	return err
}

func (s *SQLiteKV) Remove(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, sqliteRemove, key)
	return err
}

func (s *SQLiteKV) Close() error {
	return s.db.Close()
}
