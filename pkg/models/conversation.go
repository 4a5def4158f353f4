// Package models defines the conversation data model shared across the
// deliberation engine, the title service, and the persistence adapter.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Conversation is the unit of persistence: one record per conversation,
// owned by the store. Soft-delete invariant: Deleted implies DeletedAt set;
// restoring clears both.
type Conversation struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	CreatedAt time.Time  `json:"created_at"`
	Deleted   bool       `json:"deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	Messages  []Message  `json:"messages"`
}

// Message is a single turn in a conversation. Assistant messages carry the
// full deliberation trace that produced them.
type Message struct {
	Role         Role                `json:"role"`
	Content      string              `json:"content"`
	CreatedAt    time.Time           `json:"created_at"`
	Deliberation *DeliberationRecord `json:"deliberation,omitempty"`
}

// NewConversation creates a conversation with a fresh id and the placeholder
// title derived from it.
func NewConversation() *Conversation {
	id := uuid.New().String()
	return &Conversation{
		ID:        id,
		Title:     PlaceholderTitle(id),
		CreatedAt: time.Now().UTC(),
		Messages:  []Message{},
	}
}

// UserMessageCount returns the number of user messages in the conversation.
func (c *Conversation) UserMessageCount() int {
	n := 0
	for _, m := range c.Messages {
		if m.Role == RoleUser {
			n++
		}
	}
	return n
}
