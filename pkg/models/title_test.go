package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsGenericTitle(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		generic bool
	}{
		{"placeholder form", "Conversation a3f8c2d1", true},
		{"legacy literal", "New Conversation", true},
		{"generated title", "Installing Docker on Ubuntu", false},
		{"placeholder with uppercase hex", "Conversation A3F8C2D1", false},
		{"placeholder too short", "Conversation a3f8c2", false},
		{"placeholder too long", "Conversation a3f8c2d1e9", false},
		{"placeholder with non-hex", "Conversation z3f8c2d1", false},
		{"prefix only", "Conversation ", false},
		{"empty", "", false},
		{"placeholder embedded in sentence", "My Conversation a3f8c2d1 notes", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.generic, IsGenericTitle(tt.title))
		})
	}
}

func TestPlaceholderTitle(t *testing.T) {
	title := PlaceholderTitle("a3f8c2d1-0000-4000-8000-000000000000")
	assert.Equal(t, "Conversation a3f8c2d1", title)
	assert.True(t, IsGenericTitle(title))
}

func TestNewConversationHasPlaceholderTitle(t *testing.T) {
	conv := NewConversation()
	assert.True(t, IsGenericTitle(conv.Title))
	assert.NotEmpty(t, conv.ID)
	assert.False(t, conv.Deleted)
	assert.Nil(t, conv.DeletedAt)
}

func TestUserMessageCount(t *testing.T) {
	conv := NewConversation()
	assert.Equal(t, 0, conv.UserMessageCount())
	conv.Messages = append(conv.Messages,
		Message{Role: RoleUser, Content: "hi"},
		Message{Role: RoleAssistant, Content: "hello"},
		Message{Role: RoleUser, Content: "again"},
	)
	assert.Equal(t, 2, conv.UserMessageCount())
}
