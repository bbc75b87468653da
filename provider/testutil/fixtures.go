package testutil

import (
	"strconv"
	"time"

	"chatdesk/model"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// Exchange is a short user/assistant/user history ending on a pending
// question.
func Exchange() []model.Message {
	now := time.Now()
	return []model.Message{
		{ID: "m1", Role: model.RoleUser, Content: "What is a goroutine?", Timestamp: now},
		{ID: "m2", Role: model.RoleAssistant, Content: "A lightweight thread managed by the Go runtime.", Timestamp: now},
		{ID: "m3", Role: model.RoleUser, Content: "How many can I start?", Timestamp: now},
	}
}

func SingleUserMessage(content string) []model.Message {
	return []model.Message{{ID: "u1", Role: model.RoleUser, Content: content, Timestamp: time.Now()}}
}

// Turns builds n user/assistant pairs "q1"/"a1" ... "qn"/"an".
func Turns(n int) []model.Message {
	msgs := make([]model.Message, 0, 2*n)
	for i := 1; i <= n; i++ {
		msgs = append(msgs,
			model.Message{Role: model.RoleUser, Content: "q" + strconv.Itoa(i)},
			model.Message{Role: model.RoleAssistant, Content: "a" + strconv.Itoa(i)},
		)
	}
	return msgs
}

// Tools returns get_weather(location) and calculate(expression).
func Tools() []mcptypes.Tool {
	return []mcptypes.Tool{
		tool("get_weather", "Get the current weather for a location", "location", "City name, e.g. Paris"),
		tool("calculate", "Evaluate an arithmetic expression", "expression", "Expression such as 2+2"),
	}
}

func tool(name, description, param, paramDescription string) mcptypes.Tool {
	return mcptypes.Tool{
		Name:        name,
		Description: description,
		InputSchema: mcptypes.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				param: map[string]any{"type": "string", "description": paramDescription},
			},
			Required: []string{param},
		},
	}
}

// ChatOptions returns options with a model and key set.
func ChatOptions(modelID string) model.ChatOptions {
	return model.ChatOptions{Model: modelID, APIKey: "sk-test-key-1234"}
}
