package domain

import (
	"time"
)

// ActionType classifies a durable task record. Closed set, unlike intent
// actions.
type ActionType string

const (
	ActionTypeReminder  ActionType = "REMINDER"
	ActionTypeSendEmail ActionType = "SEND_EMAIL"
	ActionTypeOpenLink  ActionType = "OPEN_LINK"
	ActionTypeMock      ActionType = "MOCK_ACTION"
)

// TaskRecord is a durable record of a requested side effect, possibly
// scheduled for future execution. Created by the dispatcher, completed by the
// scheduler, never auto-deleted.
type TaskRecord struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	ActionType    ActionType `json:"action_type"`
	Title         string     `json:"title"`
	Details       string     `json:"details,omitempty"`
	ScheduledTime time.Time  `json:"scheduled_time"`
	IsCompleted   bool       `json:"is_completed"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// Due reports whether the task should have fired by now and has not been
// marked completed.
func (t *TaskRecord) Due(now time.Time) bool {
	return !t.IsCompleted && !t.ScheduledTime.After(now)
}
