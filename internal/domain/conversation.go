// Package domain contains core domain types for the ARC assistant server.
package domain

import (
	"time"
)

// Turn roles. History entries alternate logically between the two, but the
// store does not enforce alternation.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one entry in a user's conversation history.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationRecord is the per-user rolling memory: a bounded-read history
// plus longer-lived key facts. One record per user, created at registration.
type ConversationRecord struct {
	UserID    string            `json:"user_id"`
	History   []Turn            `json:"history"`
	KeyFacts  map[string]string `json:"key_facts"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// RecentTurns returns the last n turns in original order.
func (c *ConversationRecord) RecentTurns(n int) []Turn {
	if n >= len(c.History) {
		return c.History
	}
	return c.History[len(c.History)-n:]
}
