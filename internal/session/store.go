// Package session provides storage backends for LeadFlow conversation state.
//
// The Store interface is deliberately narrow: the conversation engine reads a
// record, mutates it and writes it back under its own per-phone lock, so the
// store only needs keyed CRUD plus a count for health reporting.
package session

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/andesbank/leadflow/internal/models"
)

// Store defines the storage interface for conversation records keyed by
// normalized phone number.
type Store interface {
	// Get returns the conversation for the phone, or (nil, nil) when absent.
	Get(phone string) (*models.Conversation, error)
	// Put inserts or replaces the conversation for its phone.
	Put(conv *models.Conversation) error
	// Delete removes the conversation for the phone. Deleting a missing
	// record is not an error.
	Delete(phone string) error
	// Count returns the number of active conversations.
	Count() (int, error)
	// Close releases backend resources.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType determines whether a DSN points at PostgreSQL or SQLite.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite"
}

// InMemoryStore keeps conversations in a map. It is the default backend and
// the one used throughout the tests.
type InMemoryStore struct {
	mu    sync.RWMutex
	convs map[string]*models.Conversation
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	slog.Debug("InMemoryStore created")
	return &InMemoryStore{convs: make(map[string]*models.Conversation)}
}

// Get returns the conversation for the phone, or nil when absent.
func (s *InMemoryStore) Get(phone string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.convs[phone]
	if !ok {
		return nil, nil
	}
	// Return a copy so callers cannot mutate shared state outside Put.
	cp := *conv
	return &cp, nil
}

// Put inserts or replaces the conversation.
func (s *InMemoryStore) Put(conv *models.Conversation) error {
	if conv == nil || conv.Phone == "" {
		return fmt.Errorf("conversation phone is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *conv
	s.convs[conv.Phone] = &cp
	slog.Debug("InMemoryStore Put succeeded", "phone", conv.Phone, "step", conv.Step)
	return nil
}

// Delete removes the conversation for the phone.
func (s *InMemoryStore) Delete(phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convs, phone)
	slog.Debug("InMemoryStore Delete succeeded", "phone", phone)
	return nil
}

// Count returns the number of active conversations.
func (s *InMemoryStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.convs), nil
}

// Close is a no-op for the in-memory backend.
func (s *InMemoryStore) Close() error {
	return nil
}
