package provider

import (
	"encoding/json"
	"strings"

	"chatdesk/config"
	"chatdesk/model"

	"github.com/google/uuid"
	"github.com/kaptinlin/jsonrepair"
	"github.com/ollama/ollama/api"
)

// ParseToolArguments parses a tool call's JSON arguments. Models sometimes
// emit slightly broken JSON (trailing commas, unquoted keys, truncated
// objects); those are repaired before giving up and returning an empty map.
func ParseToolArguments(argsJSON string) map[string]any {
	argsJSON = strings.TrimSpace(argsJSON)
	if argsJSON == "" {
		return map[string]any{}
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &args); err == nil && args != nil {
		return args
	}

	repaired, err := jsonrepair.JSONRepair(argsJSON)
	if err != nil {
		if config.Debug {
			config.DebugLog.Debugf("[Provider] could not repair tool arguments: %v", err)
		}
		return map[string]any{}
	}
	if err := json.Unmarshal([]byte(repaired), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}

// toolCallID returns id, or a fresh one when the vendor did not supply one.
func toolCallID(id string) string {
	if id != "" {
		return id
	}
	return "call_" + uuid.New().String()
}

// toOllamaMessages converts history to Ollama's message type. Ollama accepts
// the system prompt as a leading system message.
func toOllamaMessages(req Request) []api.Message {
	result := make([]api.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		result = append(result, api.Message{Role: string(model.RoleSystem), Content: req.SystemPrompt})
	}
	for _, msg := range req.Messages {
		result = append(result, api.Message{
			Role:      string(msg.Role),
			Content:   msg.Content,
			ToolCalls: toOllamaToolCalls(msg.ToolCalls),
		})
	}
	return result
}

// fromOllamaToolCalls converts Ollama tool calls to model.ToolCall.
// Returns nil for empty input.
func fromOllamaToolCalls(calls []api.ToolCall) []model.ToolCall {
	if len(calls) == 0 {
		return nil
	}

	result := make([]model.ToolCall, len(calls))
	for i, call := range calls {
		result[i] = model.ToolCall{
			ID:        toolCallID(""),
			Name:      call.Function.Name,
			Arguments: map[string]any(call.Function.Arguments),
		}
	}
	return result
}

func toOllamaToolCalls(calls []model.ToolCall) []api.ToolCall {
	if len(calls) == 0 {
		return nil
	}

	result := make([]api.ToolCall, len(calls))
	for i, call := range calls {
		result[i] = api.ToolCall{
			Function: api.ToolCallFunction{
				Name:      call.Name,
				Arguments: call.Arguments,
			},
		}
	}
	return result
}

// marshalArguments encodes tool-call arguments as the JSON string the
// OpenAI wire format carries.
func marshalArguments(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
