// Package domain contains core domain types for the coach application.
package domain

import (
	"time"
)

// Role identifies the author of a chat message.
type Role string

const (
	// RoleSystem marks the coaching instruction that seeds every conversation.
	RoleSystem Role = "system"
	// RoleUser marks a learner message.
	RoleUser Role = "user"
	// RoleAssistant marks a coach reply.
	RoleAssistant Role = "assistant"
)

// Message is a single role-tagged entry in a coaching conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ConversationRecord is the persisted conversation for one user identity.
// The message list is owned by the store; the orchestrator works on a
// transient copy during a turn and replaces the record wholesale.
type ConversationRecord struct {
	ID        string    `json:"id"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversation seeds a fresh conversation with the system instruction.
func NewConversation(id, systemPrompt string, now time.Time) *ConversationRecord {
	return &ConversationRecord{
		ID:        id,
		Messages:  []Message{{Role: RoleSystem, Content: systemPrompt}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Visible returns the messages without the leading system instruction,
// which is never shown to the learner.
func (c *ConversationRecord) Visible() []Message {
	if len(c.Messages) > 0 && c.Messages[0].Role == RoleSystem {
		return c.Messages[1:]
	}
	return c.Messages
}
