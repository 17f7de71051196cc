// Package task interprets structured intents into side effects and schedules
// delayed reminder execution.
package task

import (
	"context"
	"fmt"

	"github.com/arcai/arc-server/internal/domain"
	"github.com/arcai/arc-server/internal/store"
)

// ActionHandler performs (or simulates) the side effect for one action
// string. Handlers never return errors: every outcome is a user-facing
// summary string.
type ActionHandler interface {
	Handle(ctx context.Context, intent domain.StructuredIntent, userID string) string
}

// ActionHandlerFunc adapts a function to the ActionHandler interface.
type ActionHandlerFunc func(ctx context.Context, intent domain.StructuredIntent, userID string) string

// Handle calls f.
func (f ActionHandlerFunc) Handle(ctx context.Context, intent domain.StructuredIntent, userID string) string {
	return f(ctx, intent, userID)
}

// Dispatcher routes structured intents to the registered handler for their
// action string. Unknown actions fall through to a not-recognized summary;
// nothing below this boundary panics past it.
type Dispatcher struct {
	handlers map[string]ActionHandler
	fallback ActionHandler
}

// NewDispatcher creates a dispatcher with the default handler set: durable
// reminder scheduling plus the simulated and read-only actions.
func NewDispatcher(repo store.Repository, sched *Scheduler) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[string]ActionHandler),
		fallback: ActionHandlerFunc(unrecognized),
	}

	d.Register(domain.ActionScheduleReminder, &reminderHandler{repo: repo, sched: sched})
	d.Register(domain.ActionGetWeather, ActionHandlerFunc(infoQuery))
	d.Register(domain.ActionAnswerQuestion, ActionHandlerFunc(infoQuery))
	d.Register(domain.ActionSendMessage, &mockHandler{})
	d.Register(domain.ActionOpenApp, &mockHandler{})
	return d
}

// Register installs a handler for an action string, replacing any existing
// one. Production integrations substitute handlers here without touching the
// branching logic.
func (d *Dispatcher) Register(action string, h ActionHandler) {
	d.handlers[action] = h
}

// Dispatch executes the side effect implied by the intent and returns a
// result summary. Conversational intents short-circuit with no side effect.
func (d *Dispatcher) Dispatch(ctx context.Context, intent domain.StructuredIntent, userID string) string {
	if intent.Intent == domain.IntentConversation {
		return "INFO: No task executed for conversational input."
	}

	h, ok := d.handlers[intent.Action]
	if !ok {
		h = d.fallback
	}
	return h.Handle(ctx, intent, userID)
}

func unrecognized(_ context.Context, intent domain.StructuredIntent, _ string) string {
	return fmt.Sprintf("ERROR: Task action %q not recognized.", intent.Action)
}
