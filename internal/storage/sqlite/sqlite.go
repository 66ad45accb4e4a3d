// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/settlewise/internal/notify"
	"github.com/mmynk/settlewise/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	db       *sql.DB
	notifier notify.Notifier
}

// New creates a new SQLiteStore with the given database path and an
// in-process change notifier.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithNotifier(dbPath, notify.NewHub())
}

// NewWithNotifier creates a SQLiteStore that publishes change events to n.
// It creates the parent directories and runs migrations automatically.
func NewWithNotifier(dbPath string, n notify.Notifier) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Foreign keys and busy timeout are per-connection pragmas, so they go
	// in the DSN rather than a one-off Exec.
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers anyway; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db, notifier: n}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Subscribe registers onChange for committed writes to groupID.
func (s *SQLiteStore) Subscribe(groupID string, onChange func(storage.Change)) (func(), error) {
	return s.notifier.Subscribe(groupID, onChange)
}

// publish announces a committed write. Failures are logged, not returned:
// the write itself already succeeded.
func (s *SQLiteStore) publish(ctx context.Context, change storage.Change) {
	if err := s.notifier.Publish(ctx, change); err != nil {
		slog.Warn("Failed to publish change", "group_id", change.GroupID, "kind", change.Kind, "error", err)
	}
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	result := "?"
	for i := 1; i < n; i++ {
		result += ", ?"
	}
	return result
}
