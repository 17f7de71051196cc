package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/arcai/arc-server/internal/domain"
	"github.com/arcai/arc-server/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db       *sql.DB
	appendMu sync.Mutex // Mutex for history appends to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS conversations (
		user_id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversation_turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL REFERENCES conversations(user_id),
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		ts INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_user ON conversation_turns(user_id, id);

	CREATE TABLE IF NOT EXISTS key_facts (
		user_id TEXT NOT NULL REFERENCES conversations(user_id),
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (user_id, key)
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		action_type TEXT NOT NULL,
		title TEXT NOT NULL,
		details TEXT,
		scheduled_time INTEGER NOT NULL,
		is_completed INTEGER NOT NULL DEFAULT 0,
		completed_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(scheduled_time) WHERE is_completed = 0;
	CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetConversation retrieves a user's conversation record including key facts.
func (s *SQLiteStore) GetConversation(ctx context.Context, userID string) (*domain.ConversationRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, created_at, updated_at FROM conversations WHERE user_id = ?`, userID)

	var rec domain.ConversationRecord
	var createdAt, updatedAt int64
	err := row.Scan(&rec.UserID, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation row: %w", err)
	}
	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.UpdatedAt = time.Unix(updatedAt, 0)

	rec.History, err = s.loadTurns(ctx, userID, 0)
	if err != nil {
		return nil, err
	}
	rec.KeyFacts, err = s.GetKeyFacts(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateConversation creates an empty conversation record for a user.
func (s *SQLiteStore) CreateConversation(ctx context.Context, userID string) error {
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (user_id, created_at, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO NOTHING`, userID, now, now)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

// LoadRecent returns the last n history turns in original order.
func (s *SQLiteStore) LoadRecent(ctx context.Context, userID string, n int) ([]domain.Turn, error) {
	if err := s.conversationExists(ctx, userID); err != nil {
		return nil, err
	}
	return s.loadTurns(ctx, userID, n)
}

// loadTurns fetches turns for a user, limited to the most recent n when n > 0,
// always returned oldest first.
func (s *SQLiteStore) loadTurns(ctx context.Context, userID string, n int) ([]domain.Turn, error) {
	query := `SELECT role, content, ts FROM conversation_turns WHERE user_id = ? ORDER BY id`
	args := []interface{}{userID}
	if n > 0 {
		// Take the newest n rows, then flip back to insertion order.
		query = `SELECT role, content, ts FROM (
			SELECT id, role, content, ts FROM conversation_turns
			WHERE user_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id`
		args = append(args, n)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("Failed to close turns rows", "error", closeErr)
		}
	}()

	var turns []domain.Turn
	for rows.Next() {
		var t domain.Turn
		var ts int64
		if err := rows.Scan(&t.Role, &t.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		t.Timestamp = time.Unix(ts, 0)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return turns, nil
}

// AppendTurn atomically appends one history entry for a user.
func (s *SQLiteStore) AppendTurn(ctx context.Context, userID, role, content string) error {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	if err := s.conversationExists(ctx, userID); err != nil {
		return err
	}

	now := time.Now().Unix()
	insert := func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO conversation_turns (user_id, role, content, ts) VALUES (?, ?, ?, ?)`,
			userID, role, content, now)
		return err
	}

	err := insert()
	if shared.IsSQLiteConflictError(err) {
		slog.Warn("AppendTurn hit SQLite contention, retrying once", "user_id", userID)
		err = insert()
	}
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE user_id = ?`, now, userID); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) conversationExists(ctx context.Context, userID string) error {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM conversations WHERE user_id = ?`, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check conversation: %w", err)
	}
	return nil
}

// SetKeyFact stores or replaces a long-lived fact for a user.
func (s *SQLiteStore) SetKeyFact(ctx context.Context, userID, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO key_facts (user_id, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(user_id, key) DO UPDATE SET value = excluded.value`,
		userID, key, value)
	if err != nil {
		return fmt.Errorf("set key fact: %w", err)
	}
	return nil
}

// GetKeyFacts returns all key facts for a user.
func (s *SQLiteStore) GetKeyFacts(ctx context.Context, userID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM key_facts WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query key facts: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("Failed to close key facts rows", "error", closeErr)
		}
	}()

	facts := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan key fact row: %w", err)
		}
		facts[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate key facts: %w", err)
	}
	return facts, nil
}

// CreateTask persists a new task record.
func (s *SQLiteStore) CreateTask(ctx context.Context, task *domain.TaskRecord) error {
	if task.ID == "" {
		return fmt.Errorf("create task: missing id")
	}

	var completedAt interface{}
	if task.CompletedAt != nil {
		completedAt = task.CompletedAt.Unix()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, user_id, action_type, title, details, scheduled_time, is_completed, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.UserID, string(task.ActionType), task.Title, task.Details,
		task.ScheduledTime.Unix(), boolToInt(task.IsCompleted), completedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// CompleteTask marks a task completed at the given time.
func (s *SQLiteStore) CompleteTask(ctx context.Context, taskID string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET is_completed = 1, completed_at = ? WHERE id = ? AND is_completed = 0`,
		at.Unix(), taskID)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("CompleteTask affected 0 rows", "task_id", taskID)
	}
	return nil
}

// DueTasks returns pending tasks whose scheduled time has passed, oldest first.
func (s *SQLiteStore) DueTasks(ctx context.Context, now time.Time) ([]*domain.TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, action_type, title, details, scheduled_time, is_completed, completed_at
		 FROM tasks WHERE is_completed = 0 AND scheduled_time <= ? ORDER BY scheduled_time`,
		now.Unix())
	if err != nil {
		return nil, fmt.Errorf("query due tasks: %w", err)
	}
	return scanTasks(rows)
}

// TasksForUser returns all task records for a user, newest first.
func (s *SQLiteStore) TasksForUser(ctx context.Context, userID string) ([]*domain.TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, action_type, title, details, scheduled_time, is_completed, completed_at
		 FROM tasks WHERE user_id = ? ORDER BY scheduled_time DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query user tasks: %w", err)
	}
	return scanTasks(rows)
}

func scanTasks(rows *sql.Rows) ([]*domain.TaskRecord, error) {
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("Failed to close task rows", "error", closeErr)
		}
	}()

	var tasks []*domain.TaskRecord
	for rows.Next() {
		var t domain.TaskRecord
		var actionType, details sql.NullString
		var scheduled int64
		var completed int
		var completedAt sql.NullInt64

		if err := rows.Scan(&t.ID, &t.UserID, &actionType, &t.Title, &details,
			&scheduled, &completed, &completedAt); err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}

		t.ActionType = domain.ActionType(actionType.String)
		t.Details = details.String
		t.ScheduledTime = time.Unix(scheduled, 0)
		t.IsCompleted = completed != 0
		if completedAt.Valid {
			at := time.Unix(completedAt.Int64, 0)
			t.CompletedAt = &at
		}
		tasks = append(tasks, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
