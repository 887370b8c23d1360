package kvstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is the SQLite-backed key-value store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite store at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db}

	if err := store.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database tables: %w", err)
	}

	return store, nil
}

// initTables initializes database tables
func (s *SQLiteStore) initTables() error {
	queries := []string{
		// expires_at is unix nanoseconds, 0 means no expiry
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			expires_at INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_kv_expires_at ON kv(expires_at)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute SQL: %s, error: %w", query, err)
		}
	}

	return nil
}

// Get returns the value for key, treating expired entries as missing.
func (s *SQLiteStore) Get(key string) (string, bool, error) {
	var value string
	var expiresAt int64
	err := s.db.QueryRow(
		"SELECT value, expires_at FROM kv WHERE key = ?",
		key,
	).Scan(&value, &expiresAt)

	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get key %s: %w", key, err)
	}

	if expiresAt > 0 && expiresAt <= time.Now().UnixNano() {
		// Lazy expiry: drop the stale row so sweeps stay cheap
		_, _ = s.db.Exec("DELETE FROM kv WHERE key = ? AND expires_at = ?", key, expiresAt)
		return "", false, nil
	}

	return value, true, nil
}

// Set stores value under key with an optional TTL.
func (s *SQLiteStore) Set(key, value string, ttl time.Duration) error {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl).UnixNano()
	}

	_, err := s.db.Exec(
		`INSERT INTO kv (key, value, expires_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value,
			expires_at = excluded.expires_at, updated_at = excluded.updated_at`,
		key, value, expiresAt, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *SQLiteStore) Delete(key string) error {
	if _, err := s.db.Exec("DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Incr atomically increments the integer stored at key.
func (s *SQLiteStore) Incr(key string) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current int64
	var raw string
	var expiresAt int64
	err = tx.QueryRow("SELECT value, expires_at FROM kv WHERE key = ?", key).Scan(&raw, &expiresAt)
	switch {
	case err == sql.ErrNoRows:
		current = 0
	case err != nil:
		return 0, fmt.Errorf("failed to read counter %s: %w", key, err)
	default:
		if expiresAt > 0 && expiresAt <= time.Now().UnixNano() {
			current = 0
		} else if current, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return 0, fmt.Errorf("counter %s holds non-integer value %q", key, raw)
		}
	}

	next := current + 1
	_, err = tx.Exec(
		`INSERT INTO kv (key, value, expires_at, updated_at) VALUES (?, ?, 0, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value,
			expires_at = 0, updated_at = excluded.updated_at`,
		key, strconv.FormatInt(next, 10), time.Now(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to write counter %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit counter %s: %w", key, err)
	}
	return next, nil
}

// Sweep removes expired entries.
func (s *SQLiteStore) Sweep() (int, error) {
	res, err := s.db.Exec(
		"DELETE FROM kv WHERE expires_at > 0 AND expires_at <= ?",
		time.Now().UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired keys: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
