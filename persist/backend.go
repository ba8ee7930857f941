package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// Backend is a string key-value store.
type Backend interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

var ErrQuotaExceeded = errors.New("storage quota exceeded")

// MemoryBackend keeps records in process memory.
type MemoryBackend struct {
	data     map[string]string
	maxBytes int
	mu       sync.RWMutex
}

// MemoryOption configures a MemoryBackend.
type MemoryOption func(*MemoryBackend)

// WithQuota caps the total size of stored values in bytes. Writes that would
// exceed it fail with ErrQuotaExceeded.
func WithQuota(bytes int) MemoryOption {
	return func(m *MemoryBackend) {
		m.maxBytes = bytes
	}
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend(opts ...MemoryOption) *MemoryBackend {
	m := &MemoryBackend{data: make(map[string]string)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryBackend) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	val, ok := m.data[key]
	m.mu.RUnlock()
	return val, ok, nil
}

func (m *MemoryBackend) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxBytes > 0 {
		total := len(value)
		for k, v := range m.data {
			if k != key {
				total += len(v)
			}
		}
		if total > m.maxBytes {
			return ErrQuotaExceeded
		}
	}
	m.data[key] = value
	return nil
}

func (m *MemoryBackend) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Close() error {
	return nil
}

// SQLiteBackend stores records in a single table of a SQLite database.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite creates or opens the database at path.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	const schema = `CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

func (s *SQLiteBackend) Get(ctx context.Context, key string) (string, bool, error) {
	var val string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return val, true, nil
}

func (s *SQLiteBackend) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, strftime('%s','now'))
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteBackend) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}
