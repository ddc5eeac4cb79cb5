// PostgreSQL-backed conversation store.
package session

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "embed"

	"github.com/andesbank/leadflow/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists conversations in PostgreSQL for multi-instance
// deployments.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgreSQL migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Get(phone string) (*models.Conversation, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM conversations WHERE phone = $1`, phone).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore Get failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query conversation for %s: %w", phone, err)
	}
	var conv models.Conversation
	if err := conv.FromJSON(data); err != nil {
		return nil, fmt.Errorf("failed to decode conversation for %s: %w", phone, err)
	}
	return &conv, nil
}

func (s *PostgresStore) Put(conv *models.Conversation) error {
	if conv == nil || conv.Phone == "" {
		return fmt.Errorf("conversation phone is required")
	}
	data, err := conv.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to encode conversation for %s: %w", conv.Phone, err)
	}
	_, err = s.db.Exec(`INSERT INTO conversations (phone, step, data, updated_at) VALUES ($1, $2, $3, NOW())
		ON CONFLICT(phone) DO UPDATE SET step = EXCLUDED.step, data = EXCLUDED.data, updated_at = NOW()`,
		conv.Phone, string(conv.Step), data)
	if err != nil {
		slog.Error("PostgresStore Put failed", "error", err, "phone", conv.Phone)
		return fmt.Errorf("failed to upsert conversation for %s: %w", conv.Phone, err)
	}
	slog.Debug("PostgresStore Put succeeded", "phone", conv.Phone, "step", conv.Step)
	return nil
}

func (s *PostgresStore) Delete(phone string) error {
	_, err := s.db.Exec(`DELETE FROM conversations WHERE phone = $1`, phone)
	if err != nil {
		slog.Error("PostgresStore Delete failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to delete conversation for %s: %w", phone, err)
	}
	return nil
}

func (s *PostgresStore) Count() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count conversations: %w", err)
	}
	return count, nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
