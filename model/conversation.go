package model

import (
	"strings"
	"time"
)

// titleMaxRunes is the number of characters kept when deriving a title from
// the first user message.
const titleMaxRunes = 20

// DefaultConversationTitle is used until the first user message arrives.
const DefaultConversationTitle = "New Chat"

// Conversation is an ordered message list plus the model selection and
// per-conversation generation overrides.
type Conversation struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	TitleLocked bool      `json:"titleLocked,omitempty"`
	Messages    []Message `json:"messages"`
	ProviderID  string    `json:"providerId"`
	ModelID     string    `json:"modelId"`

	// Overrides. Zero values defer to the default GenerationSettings.
	SystemPrompt string   `json:"systemPrompt,omitempty"`
	MaxTurns     int      `json:"maxTurns,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    int      `json:"maxTokens,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LastMessage returns the tail message, if any.
func (c *Conversation) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// LastUserMessage returns the most recent user message and its index, or -1.
func (c *Conversation) LastUserMessage() (Message, int) {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleUser {
			return c.Messages[i], i
		}
	}
	return Message{}, -1
}

// HasUserMessage reports whether any user message has been recorded.
func (c *Conversation) HasUserMessage() bool {
	_, idx := c.LastUserMessage()
	return idx >= 0
}

// DeriveTitle builds a conversation title from the first user message: the
// first 20 characters, with "..." appended when the text was longer.
func DeriveTitle(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	if content == "" {
		return DefaultConversationTitle
	}
	runes := []rune(content)
	if len(runes) > titleMaxRunes {
		return string(runes[:titleMaxRunes]) + "..."
	}
	return content
}

// GenerationSettings are the default parameters applied to every request
// unless the conversation overrides them.
type GenerationSettings struct {
	SystemPrompt string   `json:"systemPrompt"`
	MaxTurns     int      `json:"maxTurns"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    int      `json:"maxTokens,omitempty"`
	TopP         *float64 `json:"topP,omitempty"`
	Stream       bool     `json:"stream"`
}

// DefaultGenerationSettings returns the settings used before the user changes anything.
func DefaultGenerationSettings() GenerationSettings {
	return GenerationSettings{
		MaxTurns: 10,
		Stream:   true,
	}
}

// Resolve merges conversation overrides on top of the defaults.
func (s GenerationSettings) Resolve(c *Conversation) GenerationSettings {
	out := s
	if c == nil {
		return out
	}
	if c.SystemPrompt != "" {
		out.SystemPrompt = c.SystemPrompt
	}
	if c.MaxTurns > 0 {
		out.MaxTurns = c.MaxTurns
	}
	if c.Temperature != nil {
		out.Temperature = c.Temperature
	}
	if c.MaxTokens > 0 {
		out.MaxTokens = c.MaxTokens
	}
	return out
}

// ChatStatus is the lifecycle state of the in-flight request.
type ChatStatus string

const (
	StatusIdle      ChatStatus = "idle"
	StatusLoading   ChatStatus = "loading"
	StatusStreaming ChatStatus = "streaming"
	StatusSuccess   ChatStatus = "success"
	StatusError     ChatStatus = "error"
)

// Busy reports whether a request is currently outstanding.
func (s ChatStatus) Busy() bool {
	return s == StatusLoading || s == StatusStreaming
}

// CanTransition reports whether moving from s to next is allowed.
//
//	idle|success|error -> loading
//	loading   -> streaming | success | error | idle
//	streaming -> success | error | idle
//
// A terminal state never moves back to idle on its own; a new request is the
// only way out.
func (s ChatStatus) CanTransition(next ChatStatus) bool {
	switch s {
	case StatusIdle, StatusSuccess, StatusError:
		return next == StatusLoading
	case StatusLoading:
		return next == StatusStreaming || next == StatusSuccess || next == StatusError || next == StatusIdle
	case StatusStreaming:
		return next == StatusSuccess || next == StatusError || next == StatusIdle
	}
	return false
}
