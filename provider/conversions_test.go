package provider

import (
	"encoding/json"
	"strings"
	"testing"

	"chatdesk/model"
)

func TestParseToolArguments(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[string]any
	}{
		{
			name:  "empty",
			input: "",
			want:  map[string]any{},
		},
		{
			name:  "valid object",
			input: `{"location":"Paris","days":3}`,
			want:  map[string]any{"location": "Paris", "days": float64(3)},
		},
		{
			name:  "trailing comma repaired",
			input: `{"location":"Paris",}`,
			want:  map[string]any{"location": "Paris"},
		},
		{
			name:  "truncated object repaired",
			input: `{"location":"Paris"`,
			want:  map[string]any{"location": "Paris"},
		},
		{
			name:  "not an object",
			input: `[1,2,3]`,
			want:  map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseToolArguments(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("key %q: got %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestToolCallID(t *testing.T) {
	if got := toolCallID("call_abc"); got != "call_abc" {
		t.Errorf("existing id should be kept, got %q", got)
	}

	a, b := toolCallID(""), toolCallID("")
	if !strings.HasPrefix(a, "call_") {
		t.Errorf("generated id should start with call_, got %q", a)
	}
	if a == b {
		t.Error("generated ids should be unique")
	}
}

func TestToOllamaMessages(t *testing.T) {
	req := Request{
		SystemPrompt: "Be brief.",
		Messages: []model.Message{
			{Role: model.RoleUser, Content: "Hello"},
			{
				Role:      model.RoleAssistant,
				Content:   "",
				ToolCalls: []model.ToolCall{{ID: "c1", Name: "get_weather", Arguments: map[string]any{"location": "Paris"}}},
			},
			{Role: model.RoleTool, Content: "18C", ToolCallID: "c1"},
		},
	}

	got := toOllamaMessages(req)

	if len(got) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(got))
	}
	if got[0].Role != "system" || got[0].Content != "Be brief." {
		t.Errorf("system prompt should lead, got %+v", got[0])
	}
	if len(got[2].ToolCalls) != 1 || got[2].ToolCalls[0].Function.Name != "get_weather" {
		t.Errorf("tool calls not converted: %+v", got[2].ToolCalls)
	}
	if got[2].ToolCalls[0].Function.Arguments["location"] != "Paris" {
		t.Errorf("tool arguments not converted: %+v", got[2].ToolCalls[0].Function.Arguments)
	}
	if got[3].Role != "tool" {
		t.Errorf("tool role: got %q", got[3].Role)
	}
}

func TestToOllamaMessagesNoSystemPrompt(t *testing.T) {
	got := toOllamaMessages(Request{Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}}})
	if len(got) != 1 || got[0].Role != "user" {
		t.Errorf("unexpected messages: %+v", got)
	}
}

func TestFromOllamaToolCallsEmpty(t *testing.T) {
	if got := fromOllamaToolCalls(nil); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestToolCallRoundTripThroughOllama(t *testing.T) {
	original := []model.ToolCall{{ID: "c1", Name: "calculate", Arguments: map[string]any{"expression": "2+2"}}}

	back := fromOllamaToolCalls(toOllamaToolCalls(original))

	if len(back) != 1 || back[0].Name != "calculate" || back[0].Arguments["expression"] != "2+2" {
		t.Errorf("unexpected tool calls: %+v", back)
	}
	if back[0].ID == "" {
		t.Error("Ollama does not send ids; one should be generated")
	}
}

func TestMarshalArguments(t *testing.T) {
	if got := marshalArguments(nil); got != "{}" {
		t.Errorf("nil args: got %q", got)
	}

	got := marshalArguments(map[string]any{"a": 1})
	var decoded map[string]any
	if err := json.Unmarshal([]byte(got), &decoded); err != nil {
		t.Fatalf("invalid JSON %q: %v", got, err)
	}
	if decoded["a"] != float64(1) {
		t.Errorf("unexpected decoded args: %v", decoded)
	}
}

func TestToolCallBuffer(t *testing.T) {
	idx0, idx1 := 0, 1
	b := newToolCallBuffer()

	b.add(wireToolCall{Index: &idx1, ID: "call_b", Function: wireToolFunction{Name: "second", Arguments: `{"x":`}})
	b.add(wireToolCall{Index: &idx0, ID: "call_a", Function: wireToolFunction{Name: "first", Arguments: `{}`}})
	b.add(wireToolCall{Index: &idx1, Function: wireToolFunction{Arguments: `1}`}})

	calls := b.drain()
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0].Name != "first" || calls[1].Name != "second" {
		t.Errorf("calls should be in index order: %+v", calls)
	}
	if calls[1].ID != "call_b" || calls[1].Arguments["x"] != float64(1) {
		t.Errorf("fragments not joined: %+v", calls[1])
	}
	if len(b.drain()) != 0 {
		t.Error("drain should reset the buffer")
	}
}

func TestToolCallBufferWithoutIndex(t *testing.T) {
	b := newToolCallBuffer()

	b.add(wireToolCall{ID: "call_a", Function: wireToolFunction{Name: "lookup", Arguments: `{"q":`}})
	b.add(wireToolCall{Function: wireToolFunction{Arguments: `"go"}`}})
	b.add(wireToolCall{ID: "call_b", Function: wireToolFunction{Name: "fetch", Arguments: `{"n":`}})
	b.add(wireToolCall{Function: wireToolFunction{Arguments: `2}`}})

	calls := b.drain()
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d: %+v", len(calls), calls)
	}
	if calls[0].ID != "call_a" || calls[0].Arguments["q"] != "go" {
		t.Errorf("continuation not joined to the first call: %+v", calls[0])
	}
	if calls[1].ID != "call_b" || calls[1].Arguments["n"] != float64(2) {
		t.Errorf("continuation not joined to the second call: %+v", calls[1])
	}

	// After a drain, numbering starts over.
	b.add(wireToolCall{ID: "call_c", Function: wireToolFunction{Name: "again"}})
	if calls := b.drain(); len(calls) != 1 || calls[0].ID != "call_c" {
		t.Errorf("unexpected calls after reset: %+v", calls)
	}
}

func TestToolCallBufferMixedIndex(t *testing.T) {
	idx0 := 0
	b := newToolCallBuffer()

	b.add(wireToolCall{Index: &idx0, ID: "call_a", Function: wireToolFunction{Name: "lookup", Arguments: `{"q":`}})
	b.add(wireToolCall{Function: wireToolFunction{Arguments: `"go"}`}})

	calls := b.drain()
	if len(calls) != 1 || calls[0].Arguments["q"] != "go" {
		t.Errorf("index-less fragment should continue the last call: %+v", calls)
	}
}
