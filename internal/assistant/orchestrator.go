// Package assistant composes memory, classification, and task dispatch into
// the per-command processing pipeline.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/arcai/arc-server/internal/classifier"
	"github.com/arcai/arc-server/internal/domain"
	"github.com/arcai/arc-server/internal/store"
)

const msgMemoryNotFound = "I could not find your assistant memory. Your account may not be fully set up; please contact support."

// Dispatcher executes the side effect implied by a structured intent and
// returns a result summary.
type Dispatcher interface {
	Dispatch(ctx context.Context, intent domain.StructuredIntent, userID string) string
}

// Response is one outbound response chunk. The pipeline emits exactly one,
// final, per command; the shape leaves room for incremental streaming.
type Response struct {
	Chunk   string                  `json:"chunk"`
	IsFinal bool                    `json:"isFinal"`
	Intent  domain.StructuredIntent `json:"intent"`
}

// Orchestrator runs the end-to-end flow for one command: load context,
// classify, dispatch, persist, respond. It never fails to produce a response.
type Orchestrator struct {
	repo         store.Repository
	classifier   classifier.Classifier
	dispatcher   Dispatcher
	contextTurns int
}

// New creates an orchestrator. contextTurns bounds how much trailing history
// is fed to the classifier.
func New(repo store.Repository, cls classifier.Classifier, disp Dispatcher, contextTurns int) *Orchestrator {
	return &Orchestrator{
		repo:         repo,
		classifier:   cls,
		dispatcher:   disp,
		contextTurns: contextTurns,
	}
}

// Process handles one command for an authenticated user and returns the
// single response chunk to emit. Every failure mode resolves to a readable
// chunk; nothing escapes as an error.
func (o *Orchestrator) Process(ctx context.Context, userID, command string) Response {
	history, err := o.repo.LoadRecent(ctx, userID, o.contextTurns)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// The record is created at registration; its absence is a setup
			// problem for this user, not a transient fault.
			slog.Error("Conversation record missing for authenticated user", "user_id", userID)
		} else {
			slog.Error("Failed to load conversation context", "user_id", userID, "error", err)
		}
		return errorResponse(msgMemoryNotFound)
	}

	intent := o.classifier.Classify(ctx, command, history)

	chunk := intent.TextResponse
	if intent.NeedsDispatch() {
		summary := o.dispatcher.Dispatch(ctx, intent, userID)
		chunk = fmt.Sprintf("[Task Status: %s] %s", summary, intent.TextResponse)
	}

	// One user turn per processed command; the assistant turn only lands on a
	// non-error classification, so classifier failures never pollute context.
	if err := o.repo.AppendTurn(ctx, userID, domain.RoleUser, command); err != nil {
		slog.Warn("Failed to persist user turn", "user_id", userID, "error", err)
	} else if !intent.IsError() {
		if err := o.repo.AppendTurn(ctx, userID, domain.RoleAssistant, chunk); err != nil {
			slog.Warn("Failed to persist assistant turn", "user_id", userID, "error", err)
		}
	}

	return Response{Chunk: chunk, IsFinal: true, Intent: intent}
}

func errorResponse(text string) Response {
	return Response{
		Chunk:   text,
		IsFinal: true,
		Intent: domain.StructuredIntent{
			Intent:       domain.IntentError,
			Action:       "memory_not_found",
			TextResponse: text,
		},
	}
}
