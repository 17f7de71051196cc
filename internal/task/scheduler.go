package task

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/arcai/arc-server/internal/domain"
	"github.com/arcai/arc-server/internal/store"
)

// Notifier delivers a fired reminder to its owner, typically over the user's
// live connection. A nil notifier logs only.
type Notifier func(task *domain.TaskRecord)

// Scheduler executes reminder tasks at their scheduled time. Each reminder
// gets an in-process one-shot timer; a periodic reconciliation sweep over the
// persisted records backstops timers lost to a restart and any timer drift.
// Fired tasks are marked completed, so a task notifies at most once per
// process and the sweep converges after restarts.
type Scheduler struct {
	repo     store.Repository
	notify   Notifier
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	fired  map[string]bool
}

// NewScheduler creates a reminder scheduler. interval controls the
// reconciliation sweep cadence.
func NewScheduler(repo store.Repository, notify Notifier, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		repo:     repo,
		notify:   notify,
		interval: interval,
		logger:   logger,
		timers:   make(map[string]*time.Timer),
		fired:    make(map[string]bool),
	}
}

// Schedule registers a one-shot trigger for a task. The trigger fires no
// earlier than the task's scheduled time.
func (s *Scheduler) Schedule(task *domain.TaskRecord) {
	delay := time.Until(task.ScheduledTime)
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fired[task.ID] || task.IsCompleted {
		return
	}
	if _, exists := s.timers[task.ID]; exists {
		return
	}
	s.timers[task.ID] = time.AfterFunc(delay, func() {
		s.fire(task)
	})
	s.logger.Debug("Reminder trigger registered", "task_id", task.ID, "delay", delay)
}

// Run starts the reconciliation sweep and blocks until ctx is cancelled.
// The first sweep runs immediately, re-deriving pending triggers from
// persisted records after a restart.
func (s *Scheduler) Run(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.stopTimers()
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep fires every persisted pending task whose scheduled time has passed.
func (s *Scheduler) sweep(ctx context.Context) {
	due, err := s.repo.DueTasks(ctx, time.Now())
	if err != nil {
		s.logger.Error("Reminder sweep failed", "error", err)
		return
	}
	for _, task := range due {
		s.fire(task)
	}
}

// fire notifies the task's owner and marks the record completed. Idempotent
// within one process.
func (s *Scheduler) fire(task *domain.TaskRecord) {
	s.mu.Lock()
	if s.fired[task.ID] {
		s.mu.Unlock()
		return
	}
	s.fired[task.ID] = true
	if t, ok := s.timers[task.ID]; ok {
		t.Stop()
		delete(s.timers, task.ID)
	}
	s.mu.Unlock()

	s.logger.Info("Reminder fired", "task_id", task.ID, "user_id", task.UserID, "title", task.Title)
	if s.notify != nil {
		s.notify(task)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.repo.CompleteTask(ctx, task.ID, time.Now()); err != nil {
		s.logger.Error("Failed to mark reminder completed", "task_id", task.ID, "error", err)
	}
}

func (s *Scheduler) stopTimers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
