package model

import (
	"errors"
	"testing"
	"unicode/utf8"
)

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", ""},
		{"abc", "****"},
		{"abcdefg", "****"},
		{"abcdefgh", "abcd****efgh"},
		{"sk-ant-REDACTED", "sk-a****wxyz"},
		{"ключ-доступа-éèê", "ключ****-éèê"},
		{"日本語キー", "****"},
		{"sk-€€€€€€€€", "sk-€****€€€€"},
	}

	for _, tt := range tests {
		got := MaskAPIKey(tt.key)
		if got != tt.want {
			t.Errorf("MaskAPIKey(%q): got %q, want %q", tt.key, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("MaskAPIKey(%q) produced invalid UTF-8: %q", tt.key, got)
		}
	}
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"short", "Hello", "Hello"},
		{"exactly twenty", "12345678901234567890", "12345678901234567890"},
		{"long", "Explain goroutines and channels please", "Explain goroutines a..."},
		{"newlines folded", "line one\nline two", "line one line two"},
		{"blank", "   \n ", DefaultConversationTitle},
		{"multibyte", "こんにちは世界、今日はいい天気ですね。散歩に行きましょう", "こんにちは世界、今日はいい天気ですね。散..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveTitle(tt.content); got != tt.want {
				t.Errorf("DeriveTitle: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChatStatusTransitions(t *testing.T) {
	allowed := map[ChatStatus][]ChatStatus{
		StatusIdle:      {StatusLoading},
		StatusSuccess:   {StatusLoading},
		StatusError:     {StatusLoading},
		StatusLoading:   {StatusStreaming, StatusSuccess, StatusError, StatusIdle},
		StatusStreaming: {StatusSuccess, StatusError, StatusIdle},
	}
	all := []ChatStatus{StatusIdle, StatusLoading, StatusStreaming, StatusSuccess, StatusError}

	for from, targets := range allowed {
		ok := make(map[ChatStatus]bool)
		for _, to := range targets {
			ok[to] = true
		}
		for _, to := range all {
			if got := from.CanTransition(to); got != ok[to] {
				t.Errorf("%s -> %s: got %v, want %v", from, to, got, ok[to])
			}
		}
	}
}

func TestGenerationSettingsResolve(t *testing.T) {
	temp := 0.2
	defaults := GenerationSettings{SystemPrompt: "be brief", MaxTurns: 10, MaxTokens: 512, Stream: true}

	got := defaults.Resolve(&Conversation{SystemPrompt: "be verbose", Temperature: &temp})
	if got.SystemPrompt != "be verbose" {
		t.Errorf("SystemPrompt: got %q, want %q", got.SystemPrompt, "be verbose")
	}
	if got.MaxTurns != 10 || got.MaxTokens != 512 {
		t.Errorf("defaults not kept: got %+v", got)
	}
	if got.Temperature == nil || *got.Temperature != temp {
		t.Errorf("Temperature override lost")
	}
	if !defaults.Resolve(nil).Stream {
		t.Errorf("Resolve(nil) should return defaults")
	}
}

func TestCollect(t *testing.T) {
	boom := errors.New("boom")
	seq := func(yield func(StreamEvent) bool) {
		for _, ev := range []StreamEvent{
			Started(),
			ContentDelta("Hel"),
			ContentDelta("lo"),
			ToolCallEvent(ToolCall{ID: "1", Name: "search"}),
			Failed(boom),
		} {
			if !yield(ev) {
				return
			}
		}
	}

	resp, err := Collect(seq)
	if !errors.Is(err, boom) {
		t.Fatalf("err: got %v, want %v", err, boom)
	}
	if resp.Content != "Hello" {
		t.Errorf("Content: got %q, want %q", resp.Content, "Hello")
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "search" {
		t.Errorf("ToolCalls: got %+v", resp.ToolCalls)
	}
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("connection reset")

	var target *StreamTransportError
	err := error(&StreamTransportError{ProviderID: "openai", Err: cause})
	if !errors.As(err, &target) || !errors.Is(err, cause) {
		t.Errorf("StreamTransportError should unwrap to its cause")
	}

	req := &ProviderRequestError{ProviderID: "anthropic", StatusCode: 401, Message: "invalid x-api-key"}
	want := "anthropic request failed (HTTP 401): invalid x-api-key"
	if req.Error() != want {
		t.Errorf("Error(): got %q, want %q", req.Error(), want)
	}
}
