// Package storage persists alert state and notification history
// between invocations.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/good-yellow-bee/kafkawatch/internal/alerting"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// History records one notification that was sent.
type History struct {
	ID        string
	Subject   string
	Severity  string
	Reason    string
	Kind      string
	Message   string
	SentAt    time.Time
	CreatedAt time.Time
}

// Storage is the main interface for database operations.
type Storage interface {
	// Open initializes the database connection.
	Open() error
	// Close closes the database connection.
	Close() error
	// Migrate runs database migrations.
	Migrate() error

	// Repository accessors
	AlertState() AlertStateRepository
	History() HistoryRepository
}

// AlertStateRepository defines operations on persisted alert state.
type AlertStateRepository interface {
	// Load returns all persisted entries keyed by subject. An empty
	// database yields an empty map, not an error.
	Load(ctx context.Context) (map[string]alerting.Entry, error)
	Get(ctx context.Context, subject string) (alerting.Entry, error)
	Upsert(ctx context.Context, entry alerting.Entry) error
	Delete(ctx context.Context, subject string) error
}

// HistoryRepository defines operations on notification history.
type HistoryRepository interface {
	Create(ctx context.Context, h *History) error
	List(ctx context.Context, limit, offset int) ([]*History, int64, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
