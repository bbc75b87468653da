package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"sort"
	"strings"

	"chatdesk/config"
	"chatdesk/model"
)

// maxErrorBodySize caps how much of a non-2xx body is read into an error.
const maxErrorBodySize = 64 * 1024

// CompatibleChatService speaks the OpenAI chat-completions wire format
// directly over HTTP: JSON request, "data: {json}" SSE frames terminated by
// "data: [DONE]". It serves OpenRouter and DeepSeek, which accept Bearer
// auth and emit choices[0].delta.content / choices[0].delta.tool_calls.
//
// Frames that fail to decode or carry no content are skipped rather than
// failing the stream; an in-band {"error": {...}} frame fails it.
type CompatibleChatService struct {
	id         string
	httpClient *http.Client
	headers    map[string]string
}

// NewOpenRouterChatService creates the OpenRouter adapter. OpenRouter uses
// the HTTP-Referer and X-Title headers for app attribution.
func NewOpenRouterChatService(httpClient *http.Client) *CompatibleChatService {
	return NewCompatibleChatService(IDOpenRouter, httpClient, map[string]string{
		"HTTP-Referer": "https://github.com/chatdesk/chatdesk",
		"X-Title":      "chatdesk",
	})
}

// NewDeepSeekChatService creates the DeepSeek adapter.
func NewDeepSeekChatService(httpClient *http.Client) *CompatibleChatService {
	return NewCompatibleChatService(IDDeepSeek, httpClient, nil)
}

// NewCompatibleChatService creates an adapter for any OpenAI-compatible
// vendor registered in the catalog under id.
func NewCompatibleChatService(id string, httpClient *http.Client, headers map[string]string) *CompatibleChatService {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &CompatibleChatService{id: id, httpClient: httpClient, headers: headers}
}

func (s *CompatibleChatService) ProviderID() string { return s.id }

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	Tools       []wireTool    `json:"tools,omitempty"`
	Stream      bool          `json:"stream"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    *string        `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	Index    *int             `json:"index,omitempty"`
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type,omitempty"`
	Function wireToolFunction `json:"function"`
}

type wireToolFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type wireError struct {
	Message string `json:"message"`
	Code    any    `json:"code,omitempty"`
}

type wireUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

// wireResponse covers both a streamed chunk (Delta) and a full completion (Message).
type wireResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content   string         `json:"content"`
			ToolCalls []wireToolCall `json:"tool_calls"`
		} `json:"delta"`
		Message struct {
			Content   string         `json:"content"`
			ToolCalls []wireToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *wireUsage `json:"usage"`
	Error *wireError `json:"error"`
}

func (s *CompatibleChatService) buildRequest(messages []model.Message, opts model.ChatOptions, stream bool) (*wireRequest, error) {
	if opts.APIKey == "" {
		return nil, &model.ConfigurationError{ProviderID: s.id, Reason: model.ReasonMissingAPIKey}
	}
	if opts.Model == "" {
		return nil, &model.ConfigurationError{ProviderID: s.id, Reason: model.ReasonNoModel}
	}

	req := BuildRequest(messages, opts)
	return &wireRequest{
		Model:       opts.Model,
		Messages:    toWireMessages(req),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		TopP:        opts.TopP,
		Tools:       toWireTools(opts.Tools),
		Stream:      stream,
	}, nil
}

// post sends the request and returns the response with its body open. Non-2xx
// responses are consumed and returned as *model.ProviderRequestError.
func (s *CompatibleChatService) post(ctx context.Context, opts model.ChatOptions, body *wireRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	url := resolveBaseURL(s.id, opts.BaseURL) + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+opts.APIKey)
	if body.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, &model.ProviderRequestError{
			ProviderID: s.id,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(raw, resp.Status),
		}
	}
	return resp, nil
}

// errorMessage extracts {"error":{"message":...}} from a vendor error body,
// falling back to the raw body or the HTTP status text.
func errorMessage(raw []byte, status string) string {
	var body struct {
		Error *wireError `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != nil && body.Error.Message != "" {
		return body.Error.Message
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		return text
	}
	return status
}

// SendMessage implements model.ChatService.SendMessage.
func (s *CompatibleChatService) SendMessage(ctx context.Context, messages []model.Message, opts model.ChatOptions) (*model.ChatResponse, error) {
	body, err := s.buildRequest(messages, opts, false)
	if err != nil {
		return nil, err
	}

	resp, err := s.post(ctx, opts, body)
	if err != nil {
		return nil, requestError(s.id, err)
	}
	defer resp.Body.Close()

	var completion wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, requestError(s.id, fmt.Errorf("error decoding response: %w", err))
	}
	if completion.Error != nil {
		return nil, &model.ProviderRequestError{ProviderID: s.id, StatusCode: resp.StatusCode, Message: completion.Error.Message}
	}

	out := &model.ChatResponse{ModelID: completion.Model}
	if completion.Usage != nil {
		out.Usage = model.Usage{
			InputTokens:  completion.Usage.PromptTokens,
			OutputTokens: completion.Usage.CompletionTokens,
		}
	}
	if len(completion.Choices) > 0 {
		msg := completion.Choices[0].Message
		out.Content = msg.Content
		for _, tc := range msg.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{
				ID:        toolCallID(tc.ID),
				Name:      tc.Function.Name,
				Arguments: ParseToolArguments(tc.Function.Arguments),
			})
		}
	}
	return out, nil
}

// StreamMessage implements model.ChatService.StreamMessage.
func (s *CompatibleChatService) StreamMessage(ctx context.Context, messages []model.Message, opts model.ChatOptions) iter.Seq[model.StreamEvent] {
	body, err := s.buildRequest(messages, opts, true)
	if err != nil {
		return failedStream(ctx, s.id, err)
	}

	return newStream(ctx, s.id, func(ctx context.Context, emit emitFunc) (*model.Usage, error) {
		resp, err := s.post(ctx, opts, body)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		reader := newSSEReader(resp.Body)
		calls := newToolCallBuffer()
		var usage *model.Usage

		for {
			payload, err := reader.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, err
			}

			var chunk wireResponse
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				if config.Debug {
					config.DebugLog.Debugf("[Provider] %s: skipping malformed frame: %v", s.id, err)
				}
				continue
			}
			if chunk.Error != nil {
				return nil, fmt.Errorf("vendor reported error: %s", chunk.Error.Message)
			}
			if chunk.Usage != nil {
				usage = &model.Usage{
					InputTokens:  chunk.Usage.PromptTokens,
					OutputTokens: chunk.Usage.CompletionTokens,
				}
			}
			if len(chunk.Choices) == 0 {
				continue
			}

			choice := chunk.Choices[0]
			if !emit(model.ContentDelta(choice.Delta.Content)) {
				return nil, nil
			}
			for _, tc := range choice.Delta.ToolCalls {
				calls.add(tc)
			}
			if choice.FinishReason != nil {
				for _, call := range calls.drain() {
					if !emit(model.ToolCallEvent(call)) {
						return nil, nil
					}
				}
			}
		}

		// Some servers end the stream without a finish_reason.
		for _, call := range calls.drain() {
			if !emit(model.ToolCallEvent(call)) {
				return nil, nil
			}
		}
		return usage, nil
	})
}

// TestConnection lists models with the given key.
func (s *CompatibleChatService) TestConnection(ctx context.Context, apiKey, baseURL string) bool {
	return openAICompatiblePing(ctx, s.httpClient, s.id, apiKey, baseURL)
}

// toolCallBuffer assembles streamed tool-call fragments. The first fragment
// for an index carries id and name; later ones append to arguments. A
// fragment without an index continues the last call, unless it brings an id
// of its own.
type toolCallBuffer struct {
	byIndex map[int]*partialToolCall
	last    int
	next    int
}

type partialToolCall struct {
	id   string
	name string
	args strings.Builder
}

func newToolCallBuffer() *toolCallBuffer {
	return &toolCallBuffer{byIndex: make(map[int]*partialToolCall)}
}

func (b *toolCallBuffer) add(tc wireToolCall) {
	idx := b.last
	switch {
	case tc.Index != nil:
		idx = *tc.Index
	case len(b.byIndex) == 0:
		idx = b.next
	case tc.ID != "" && b.byIndex[b.last].id != "" && b.byIndex[b.last].id != tc.ID:
		idx = b.next
	}
	b.last = idx
	if idx >= b.next {
		b.next = idx + 1
	}

	p, ok := b.byIndex[idx]
	if !ok {
		p = &partialToolCall{}
		b.byIndex[idx] = p
	}
	if tc.ID != "" {
		p.id = tc.ID
	}
	if tc.Function.Name != "" {
		p.name = tc.Function.Name
	}
	p.args.WriteString(tc.Function.Arguments)
}

// drain returns the buffered calls in index order and resets the buffer.
func (b *toolCallBuffer) drain() []model.ToolCall {
	if len(b.byIndex) == 0 {
		return nil
	}
	indexes := make([]int, 0, len(b.byIndex))
	for i := range b.byIndex {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	out := make([]model.ToolCall, 0, len(indexes))
	for _, i := range indexes {
		p := b.byIndex[i]
		if p.name == "" {
			continue
		}
		out = append(out, model.ToolCall{
			ID:        toolCallID(p.id),
			Name:      p.name,
			Arguments: ParseToolArguments(p.args.String()),
		})
	}
	b.byIndex = make(map[int]*partialToolCall)
	b.last, b.next = 0, 0
	return out
}

// toWireMessages converts history to wire messages with the system prompt
// as a leading system message.
func toWireMessages(req Request) []wireMessage {
	result := make([]wireMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		result = append(result, wireMessage{Role: string(model.RoleSystem), Content: strPtr(req.SystemPrompt)})
	}

	for _, msg := range req.Messages {
		wm := wireMessage{Role: string(msg.Role), Content: strPtr(msg.Content)}
		switch msg.Role {
		case model.RoleAssistant:
			if msg.Content == "" && len(msg.ToolCalls) > 0 {
				wm.Content = nil
			}
			for _, tc := range msg.ToolCalls {
				wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: wireToolFunction{
						Name:      tc.Name,
						Arguments: marshalArguments(tc.Arguments),
					},
				})
			}
		case model.RoleTool:
			wm.ToolCallID = msg.ToolCallID
		}
		result = append(result, wm)
	}
	return result
}

func strPtr(s string) *string { return &s }
