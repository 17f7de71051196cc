package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/arcai/arc-server/internal/domain"
	"github.com/arcai/arc-server/internal/store"
	"github.com/google/uuid"
)

// reminderHandler persists a REMINDER task record and registers its delayed
// trigger.
type reminderHandler struct {
	repo  store.Repository
	sched *Scheduler
}

func (h *reminderHandler) Handle(ctx context.Context, intent domain.StructuredIntent, userID string) string {
	title := intent.Arg("title")
	rawTime := intent.Arg("time")
	if title == "" || rawTime == "" {
		return "Error: Reminder details incomplete."
	}

	when, err := ParseScheduledTime(rawTime, time.Now())
	if err != nil {
		slog.Warn("Reminder time did not parse", "user_id", userID, "raw", rawTime, "error", err)
		return fmt.Sprintf("Error: Could not understand the reminder time %q.", rawTime)
	}

	rec := &domain.TaskRecord{
		ID:            uuid.NewString(),
		UserID:        userID,
		ActionType:    domain.ActionTypeReminder,
		Title:         title,
		Details:       "Scheduled for time: " + rawTime,
		ScheduledTime: when,
	}
	if err := h.repo.CreateTask(ctx, rec); err != nil {
		slog.Error("Failed to persist reminder task", "user_id", userID, "error", err)
		return "FAILURE: Could not schedule task due to database error."
	}

	if h.sched != nil {
		h.sched.Schedule(rec)
	}

	slog.Info("Reminder scheduled", "user_id", userID, "task_id", rec.ID, "scheduled_time", when)
	return fmt.Sprintf("SUCCESS: Reminder titled %q has been scheduled for future execution.", title)
}

// infoQuery covers read-only data actions. The classifier's own text_response
// carries the answer; this summary is an audit confirmation only.
func infoQuery(_ context.Context, _ domain.StructuredIntent, _ string) string {
	return "INFO: AI handled conversational query."
}

// mockHandler simulates system and external API actions. No real external
// system is invoked.
type mockHandler struct{}

func (h *mockHandler) Handle(_ context.Context, intent domain.StructuredIntent, userID string) string {
	args, err := json.Marshal(intent.Args)
	if err != nil {
		args = []byte("{}")
	}
	slog.Info("Simulated action", "user_id", userID, "action", intent.Action, "args", string(args))
	return fmt.Sprintf("SUCCESS: Simulated %s action.", intent.Action)
}
