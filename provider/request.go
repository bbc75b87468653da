package provider

import (
	"strings"

	"chatdesk/model"
)

// Request is the vendor-neutral shape every adapter starts from.
type Request struct {
	// SystemPrompt is injected by each adapter in its own way: a top-level
	// field for Anthropic, a leading system message elsewhere.
	SystemPrompt string

	// Messages holds user, assistant and tool messages, already truncated.
	Messages []model.Message
}

// BuildRequest applies the request policy shared by all vendors:
//
//   - system messages in the history are folded into the system prompt,
//     after ChatOptions.SystemPrompt
//   - tool-use guidance is added when tools are offered
//   - assistant messages with neither text nor tool calls are dropped
//   - the history is truncated to ChatOptions.MaxTurns turns
//   - pending tool results are appended after the last user turn
func BuildRequest(messages []model.Message, opts model.ChatOptions) Request {
	var system []string
	if s := strings.TrimSpace(opts.SystemPrompt); s != "" {
		system = append(system, s)
	}

	history := make([]model.Message, 0, len(messages)+len(opts.ToolResults))
	for _, m := range messages {
		switch {
		case m.Role == model.RoleSystem:
			if s := strings.TrimSpace(m.Content); s != "" {
				system = append(system, s)
			}
		case m.Role == model.RoleAssistant && m.Content == "" && len(m.ToolCalls) == 0:
			continue
		default:
			history = append(history, m)
		}
	}

	if g := toolGuidance(opts.Tools); g != "" {
		system = append(system, g)
	}

	history = model.TruncateHistory(history, opts.MaxTurns)

	for _, r := range opts.ToolResults {
		content := r.Content
		if r.IsError && !strings.HasPrefix(content, "Error") {
			content = "Error: " + content
		}
		history = append(history, model.Message{
			Role:       model.RoleTool,
			Content:    content,
			ToolCallID: r.ToolCallID,
		})
	}

	return Request{
		SystemPrompt: strings.Join(system, "\n\n"),
		Messages:     history,
	}
}

// resolveBaseURL falls back to the catalog default when no override is set.
func resolveBaseURL(providerID, override string) string {
	if override = strings.TrimSpace(override); override != "" {
		return strings.TrimRight(override, "/")
	}
	return DefaultBaseURL(providerID)
}
