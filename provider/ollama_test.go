package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"chatdesk/model"
	"chatdesk/provider/testutil"

	"github.com/ollama/ollama/api"
)

func newOllamaServer(t *testing.T, chat func(req api.ChatRequest, w http.ResponseWriter)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chat":
			var req api.ChatRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode request: %v", err)
			}
			w.Header().Set("Content-Type", "application/x-ndjson")
			chat(req, w)
		case "/api/tags":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"models":[{"name":"llama3.1:latest","model":"llama3.1:latest"},{"name":"qwen2.5:7b","model":"qwen2.5:7b"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestOllamaStreamMessage(t *testing.T) {
	var got api.ChatRequest
	server := newOllamaServer(t, func(req api.ChatRequest, w http.ResponseWriter) {
		got = req
		fmt.Fprintln(w, `{"model":"llama3.1","message":{"role":"assistant","content":"Hello"},"done":false}`)
		fmt.Fprintln(w, `{"model":"llama3.1","message":{"role":"assistant","content":" world"},"done":false}`)
		fmt.Fprintln(w, `{"model":"llama3.1","message":{"role":"assistant","content":""},"done":true,"prompt_eval_count":7,"eval_count":2}`)
	})

	temp := 0.2
	svc := NewOllamaChatService(server.Client())
	opts := model.ChatOptions{
		Model:        "llama3.1",
		BaseURL:      server.URL,
		SystemPrompt: "Be brief.",
		Temperature:  &temp,
		MaxTokens:    128,
	}

	var events []model.StreamEvent
	for ev := range svc.StreamMessage(context.Background(), testutil.SingleUserMessage("Hi"), opts) {
		events = append(events, ev)
	}

	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %v", kinds(events))
	}
	if events[1].Delta != "Hello" || events[2].Delta != " world" {
		t.Errorf("deltas: %q %q", events[1].Delta, events[2].Delta)
	}
	if events[3].Kind != model.EventFinished || events[3].Usage == nil || events[3].Usage.InputTokens != 7 {
		t.Errorf("finish event: %+v", events[3])
	}

	if got.Stream == nil || !*got.Stream {
		t.Error("stream flag should be set")
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Errorf("messages: %+v", got.Messages)
	}
	if got.Options["num_predict"] != float64(128) || got.Options["temperature"] != 0.2 {
		t.Errorf("options: %v", got.Options)
	}
}

func TestOllamaToolsOnlyForCapableModels(t *testing.T) {
	var got api.ChatRequest
	server := newOllamaServer(t, func(req api.ChatRequest, w http.ResponseWriter) {
		got = req
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"ok"},"done":true}`)
	})
	svc := NewOllamaChatService(server.Client())

	tests := []struct {
		model     string
		wantTools bool
	}{
		{"llama3.1:8b", true},
		{"qwen2.5-coder:latest", true},
		{"gemma2:9b", false},
		{"llama3:8b", false},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			opts := model.ChatOptions{Model: tt.model, BaseURL: server.URL, Tools: testutil.Tools()}
			if _, err := model.Collect(svc.StreamMessage(context.Background(), testutil.SingleUserMessage("Hi"), opts)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if hasTools := len(got.Tools) > 0; hasTools != tt.wantTools {
				t.Errorf("tools sent: got %v, want %v", hasTools, tt.wantTools)
			}
		})
	}
}

func TestOllamaStreamToolCall(t *testing.T) {
	server := newOllamaServer(t, func(req api.ChatRequest, w http.ResponseWriter) {
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"get_weather","arguments":{"location":"Paris"}}}]},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true}`)
	})

	svc := NewOllamaChatService(server.Client())
	opts := model.ChatOptions{Model: "llama3.1", BaseURL: server.URL, Tools: testutil.Tools()}

	resp, err := model.Collect(svc.StreamMessage(context.Background(), testutil.SingleUserMessage("weather?"), opts))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "get_weather" {
		t.Fatalf("tool calls: %+v", resp.ToolCalls)
	}
	if resp.ToolCalls[0].Arguments["location"] != "Paris" {
		t.Errorf("arguments: %v", resp.ToolCalls[0].Arguments)
	}
}

func TestOllamaSendMessage(t *testing.T) {
	server := newOllamaServer(t, func(req api.ChatRequest, w http.ResponseWriter) {
		if req.Stream == nil || *req.Stream {
			t.Error("SendMessage should disable streaming")
		}
		fmt.Fprintln(w, `{"model":"llama3.1","message":{"role":"assistant","content":"Hi there"},"done":true,"prompt_eval_count":3,"eval_count":4}`)
	})

	svc := NewOllamaChatService(server.Client())
	resp, err := svc.SendMessage(context.Background(), testutil.SingleUserMessage("Hi"), model.ChatOptions{Model: "llama3.1", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "Hi there" || resp.Usage.OutputTokens != 4 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestOllamaRequiresModel(t *testing.T) {
	svc := NewOllamaChatService(nil)
	_, err := svc.SendMessage(context.Background(), testutil.SingleUserMessage("Hi"), model.ChatOptions{})
	if _, ok := err.(*model.ConfigurationError); !ok {
		t.Errorf("expected ConfigurationError, got %v", err)
	}
}

func TestOllamaModelService(t *testing.T) {
	server := newOllamaServer(t, func(api.ChatRequest, http.ResponseWriter) {})
	svc := NewOllamaModelService(server.Client())
	ctx := context.Background()

	models := svc.FetchModels(ctx, "", server.URL)
	if len(models) != 2 || models[0].ID != "llama3.1:latest" {
		t.Errorf("models: %+v", models)
	}
	if !svc.TestConnection(ctx, "", server.URL) {
		t.Error("reachable server should pass the connection test")
	}
}

func TestOllamaUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	svc := NewOllamaModelService(nil)
	if got := svc.FetchModels(context.Background(), "", url); len(got) != 0 {
		t.Errorf("expected empty list, got %v", got)
	}
	if svc.TestConnection(context.Background(), "", url) {
		t.Error("closed server should fail the connection test")
	}
}
