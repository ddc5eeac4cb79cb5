// SQLite-backed conversation store.
package session

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/andesbank/leadflow/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists conversations in a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite store with the given DSN. The DSN is a file
// path; its directory is created when missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(phone string) (*models.Conversation, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM conversations WHERE phone = ?`, phone).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore Get failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query conversation for %s: %w", phone, err)
	}
	var conv models.Conversation
	if err := conv.FromJSON(data); err != nil {
		return nil, fmt.Errorf("failed to decode conversation for %s: %w", phone, err)
	}
	return &conv, nil
}

func (s *SQLiteStore) Put(conv *models.Conversation) error {
	if conv == nil || conv.Phone == "" {
		return fmt.Errorf("conversation phone is required")
	}
	data, err := conv.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to encode conversation for %s: %w", conv.Phone, err)
	}
	_, err = s.db.Exec(`INSERT INTO conversations (phone, step, data, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(phone) DO UPDATE SET step = excluded.step, data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
		conv.Phone, string(conv.Step), data)
	if err != nil {
		slog.Error("SQLiteStore Put failed", "error", err, "phone", conv.Phone)
		return fmt.Errorf("failed to upsert conversation for %s: %w", conv.Phone, err)
	}
	slog.Debug("SQLiteStore Put succeeded", "phone", conv.Phone, "step", conv.Step)
	return nil
}

func (s *SQLiteStore) Delete(phone string) error {
	_, err := s.db.Exec(`DELETE FROM conversations WHERE phone = ?`, phone)
	if err != nil {
		slog.Error("SQLiteStore Delete failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to delete conversation for %s: %w", phone, err)
	}
	return nil
}

func (s *SQLiteStore) Count() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count conversations: %w", err)
	}
	return count, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
