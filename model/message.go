package model

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleSystem and RoleTool only ever appear in outbound requests, never in
	// a conversation's persisted message list.
	RoleSystem Role = "system"
	RoleTool   Role = "tool"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}

// Message represents a chat message in the conversation
type Message struct {
	ID        string     `json:"id"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`

	// ToolCallID links a RoleTool message to the call it answers.
	ToolCallID string `json:"toolCallId,omitempty"`
}

// NewMessage builds a message with a fresh id and the current timestamp.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// ToolCall is a request from the model to invoke a named tool.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult is the outcome of executing a ToolCall, sent back on the next request.
type ToolResult struct {
	ToolCallID string `json:"toolCallId"`
	Name       string `json:"name"`
	Content    string `json:"content"`
	IsError    bool   `json:"isError,omitempty"`
}
