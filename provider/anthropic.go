package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"strings"

	"chatdesk/config"
	"chatdesk/model"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// defaultAnthropicMaxTokens is sent when no limit is configured; the
// Messages API requires max_tokens on every request.
const defaultAnthropicMaxTokens = 4096

// AnthropicChatService talks to the Messages API through the official SDK.
// The SDK sends the x-api-key and anthropic-version headers and parses the
// named SSE events (message_start, content_block_delta, ...).
type AnthropicChatService struct {
	httpClient *http.Client
}

// NewAnthropicChatService creates the Anthropic adapter. A nil client uses
// http.DefaultClient.
func NewAnthropicChatService(httpClient *http.Client) *AnthropicChatService {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &AnthropicChatService{httpClient: httpClient}
}

func (s *AnthropicChatService) ProviderID() string { return IDAnthropic }

func (s *AnthropicChatService) client(apiKey, baseURL string) anthropic.Client {
	return anthropic.NewClient(
		option.WithBaseURL(resolveBaseURL(IDAnthropic, baseURL)),
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(s.httpClient),
		option.WithMaxRetries(0),
	)
}

func (s *AnthropicChatService) params(messages []model.Message, opts model.ChatOptions) (anthropic.MessageNewParams, error) {
	if opts.APIKey == "" {
		return anthropic.MessageNewParams{}, &model.ConfigurationError{ProviderID: IDAnthropic, Reason: model.ReasonMissingAPIKey}
	}
	if opts.Model == "" {
		return anthropic.MessageNewParams{}, &model.ConfigurationError{ProviderID: IDAnthropic, Reason: model.ReasonNoModel}
	}

	req := BuildRequest(messages, opts)

	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(opts.Model),
		Messages:  toAnthropicMessages(req.Messages),
		MaxTokens: maxTokens,
	}
	// Anthropic takes the system prompt as a top-level field, not a message.
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if opts.Temperature != nil {
		params.Temperature = anthropic.Float(*opts.Temperature)
	}
	if opts.TopP != nil {
		params.TopP = anthropic.Float(*opts.TopP)
	}
	if tools := toAnthropicTools(opts.Tools); len(tools) > 0 {
		params.Tools = tools
	}
	return params, nil
}

// SendMessage implements model.ChatService.SendMessage.
func (s *AnthropicChatService) SendMessage(ctx context.Context, messages []model.Message, opts model.ChatOptions) (*model.ChatResponse, error) {
	params, err := s.params(messages, opts)
	if err != nil {
		return nil, err
	}

	client := s.client(opts.APIKey, opts.BaseURL)
	msg, err := client.Messages.New(ctx, params)
	if err != nil {
		return nil, requestError(IDAnthropic, err)
	}

	var b strings.Builder
	var toolCalls []model.ToolCall
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			b.WriteString(v.Text)
		case anthropic.ToolUseBlock:
			toolCalls = append(toolCalls, anthropicToolCall(v))
		}
	}

	return &model.ChatResponse{
		Content:   b.String(),
		ToolCalls: toolCalls,
		ModelID:   string(msg.Model),
		Usage: model.Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}, nil
}

// StreamMessage implements model.ChatService.StreamMessage.
func (s *AnthropicChatService) StreamMessage(ctx context.Context, messages []model.Message, opts model.ChatOptions) iter.Seq[model.StreamEvent] {
	params, err := s.params(messages, opts)
	if err != nil {
		return failedStream(ctx, IDAnthropic, err)
	}

	return newStream(ctx, IDAnthropic, func(ctx context.Context, emit emitFunc) (*model.Usage, error) {
		client := s.client(opts.APIKey, opts.BaseURL)
		stream := client.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		// The accumulated message gives us complete tool_use blocks, whose
		// JSON input arrives in fragments.
		msg := anthropic.Message{}

		for stream.Next() {
			event := stream.Current()
			if err := msg.Accumulate(event); err != nil {
				return nil, fmt.Errorf("error accumulating message: %w", err)
			}

			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if d, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok {
					if !emit(model.ContentDelta(d.Text)) {
						return nil, nil
					}
				}
			case anthropic.ContentBlockStopEvent:
				idx := int(ev.Index)
				if idx < 0 || idx >= len(msg.Content) {
					continue
				}
				if tu, ok := msg.Content[idx].AsAny().(anthropic.ToolUseBlock); ok {
					if !emit(model.ToolCallEvent(anthropicToolCall(tu))) {
						return nil, nil
					}
				}
			}
		}

		if err := stream.Err(); err != nil {
			return nil, err
		}

		if config.Debug {
			config.DebugLog.Debugf("[Provider] anthropic stream done: model=%s stop=%s in=%d out=%d",
				msg.Model, msg.StopReason, msg.Usage.InputTokens, msg.Usage.OutputTokens)
		}

		return &model.Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		}, nil
	})
}

// TestConnection lists a single model; Anthropic has no ping endpoint.
func (s *AnthropicChatService) TestConnection(ctx context.Context, apiKey, baseURL string) bool {
	if apiKey == "" {
		return false
	}
	client := s.client(apiKey, baseURL)
	_, err := client.Models.List(ctx, anthropic.ModelListParams{Limit: anthropic.Int(1)})
	if err != nil {
		if config.Debug {
			config.DebugLog.Debugf("[Provider] anthropic connection test failed (key %s): %v", model.MaskAPIKey(apiKey), err)
		}
		return false
	}
	return true
}

// toAnthropicMessages converts history to Anthropic message params.
// Consecutive tool results are grouped into one user message of
// tool_result blocks, as the Messages API requires.
func toAnthropicMessages(messages []model.Message) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(messages))

	var results []anthropic.ContentBlockParamUnion
	flush := func() {
		if len(results) > 0 {
			result = append(result, anthropic.NewUserMessage(results...))
			results = nil
		}
	}

	for _, msg := range messages {
		switch msg.Role {
		case model.RoleTool:
			results = append(results, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))

		case model.RoleAssistant:
			flush()
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				args := tc.Arguments
				if args == nil {
					args = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, args, tc.Name))
			}
			result = append(result, anthropic.NewAssistantMessage(blocks...))

		default:
			flush()
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	flush()

	return result
}

func anthropicToolCall(block anthropic.ToolUseBlock) model.ToolCall {
	args := map[string]any{}
	if len(block.Input) > 0 {
		if err := json.Unmarshal(block.Input, &args); err != nil {
			args = ParseToolArguments(string(block.Input))
		}
	}
	return model.ToolCall{
		ID:        toolCallID(block.ID),
		Name:      block.Name,
		Arguments: args,
	}
}
