// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/arcai/arc-server/internal/domain"
)

// ErrNotFound is returned when no record exists for the requested key.
// For conversations this means the user was never registered: records are
// created at registration time, not lazily by the command pipeline.
var ErrNotFound = errors.New("store: not found")

// Repository defines the interface for persisting conversation memory and
// task records.
type Repository interface {
	// GetConversation retrieves a user's full conversation record including
	// key facts. Returns ErrNotFound if the user has no record.
	GetConversation(ctx context.Context, userID string) (*domain.ConversationRecord, error)

	// CreateConversation creates an empty conversation record for a user.
	// No-op if the record already exists.
	CreateConversation(ctx context.Context, userID string) error

	// LoadRecent returns the last n history turns for a user in original
	// (oldest first) order. Returns ErrNotFound if the user has no record.
	LoadRecent(ctx context.Context, userID string, n int) ([]domain.Turn, error)

	// AppendTurn atomically appends one history entry for a user.
	// Returns ErrNotFound if the user has no record.
	AppendTurn(ctx context.Context, userID, role, content string) error

	// SetKeyFact stores or replaces a long-lived fact for a user.
	SetKeyFact(ctx context.Context, userID, key, value string) error

	// GetKeyFacts returns all key facts for a user.
	GetKeyFacts(ctx context.Context, userID string) (map[string]string, error)

	// CreateTask persists a new task record. The record's ID must be set.
	CreateTask(ctx context.Context, task *domain.TaskRecord) error

	// CompleteTask marks a task completed at the given time.
	CompleteTask(ctx context.Context, taskID string, at time.Time) error

	// DueTasks returns tasks with scheduled_time <= now that are not yet
	// completed, oldest first.
	DueTasks(ctx context.Context, now time.Time) ([]*domain.TaskRecord, error)

	// TasksForUser returns all task records for a user, newest first.
	TasksForUser(ctx context.Context, userID string) ([]*domain.TaskRecord, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
