package provider

import (
	"context"
	"iter"
	"net/http"

	"chatdesk/config"
	"chatdesk/model"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIChatService talks to the Chat Completions API through the official
// SDK, which sends the Authorization: Bearer header.
type OpenAIChatService struct {
	httpClient *http.Client
}

// NewOpenAIChatService creates the OpenAI adapter. A nil client uses
// http.DefaultClient.
func NewOpenAIChatService(httpClient *http.Client) *OpenAIChatService {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OpenAIChatService{httpClient: httpClient}
}

func (s *OpenAIChatService) ProviderID() string { return IDOpenAI }

func (s *OpenAIChatService) client(apiKey, baseURL string) openai.Client {
	return openai.NewClient(
		option.WithBaseURL(resolveBaseURL(IDOpenAI, baseURL)),
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(s.httpClient),
		option.WithMaxRetries(0),
	)
}

func (s *OpenAIChatService) params(messages []model.Message, opts model.ChatOptions) (openai.ChatCompletionNewParams, error) {
	if opts.APIKey == "" {
		return openai.ChatCompletionNewParams{}, &model.ConfigurationError{ProviderID: IDOpenAI, Reason: model.ReasonMissingAPIKey}
	}
	if opts.Model == "" {
		return openai.ChatCompletionNewParams{}, &model.ConfigurationError{ProviderID: IDOpenAI, Reason: model.ReasonNoModel}
	}

	req := BuildRequest(messages, opts)

	params := openai.ChatCompletionNewParams{
		Messages: toOpenAIMessages(req),
		Model:    openai.ChatModel(opts.Model),
	}
	if opts.Temperature != nil {
		params.Temperature = openai.Float(*opts.Temperature)
	}
	if opts.TopP != nil {
		params.TopP = openai.Float(*opts.TopP)
	}
	if opts.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
	}
	if tools := toOpenAITools(opts.Tools); len(tools) > 0 {
		params.Tools = tools
	}
	return params, nil
}

// SendMessage implements model.ChatService.SendMessage.
func (s *OpenAIChatService) SendMessage(ctx context.Context, messages []model.Message, opts model.ChatOptions) (*model.ChatResponse, error) {
	params, err := s.params(messages, opts)
	if err != nil {
		return nil, err
	}

	client := s.client(opts.APIKey, opts.BaseURL)
	completion, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, requestError(IDOpenAI, err)
	}

	resp := &model.ChatResponse{
		ModelID: completion.Model,
		Usage: model.Usage{
			InputTokens:  completion.Usage.PromptTokens,
			OutputTokens: completion.Usage.CompletionTokens,
		},
	}
	if len(completion.Choices) > 0 {
		msg := completion.Choices[0].Message
		resp.Content = msg.Content
		for _, tc := range msg.ToolCalls {
			resp.ToolCalls = append(resp.ToolCalls, model.ToolCall{
				ID:        toolCallID(tc.ID),
				Name:      tc.Function.Name,
				Arguments: ParseToolArguments(tc.Function.Arguments),
			})
		}
	}
	return resp, nil
}

// StreamMessage implements model.ChatService.StreamMessage.
func (s *OpenAIChatService) StreamMessage(ctx context.Context, messages []model.Message, opts model.ChatOptions) iter.Seq[model.StreamEvent] {
	params, err := s.params(messages, opts)
	if err != nil {
		return failedStream(ctx, IDOpenAI, err)
	}
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	return newStream(ctx, IDOpenAI, func(ctx context.Context, emit emitFunc) (*model.Usage, error) {
		client := s.client(opts.APIKey, opts.BaseURL)
		stream := client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		acc := openai.ChatCompletionAccumulator{}
		var usage *model.Usage

		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)

			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				if !emit(model.ContentDelta(chunk.Choices[0].Delta.Content)) {
					return nil, nil
				}
			}

			if tool, ok := acc.JustFinishedToolCall(); ok {
				call := model.ToolCall{
					ID:        toolCallID(tool.ID),
					Name:      tool.Name,
					Arguments: ParseToolArguments(tool.Arguments),
				}
				if !emit(model.ToolCallEvent(call)) {
					return nil, nil
				}
			}

			if chunk.Usage.TotalTokens > 0 {
				usage = &model.Usage{
					InputTokens:  chunk.Usage.PromptTokens,
					OutputTokens: chunk.Usage.CompletionTokens,
				}
			}
		}

		if err := stream.Err(); err != nil {
			return nil, err
		}

		if config.Debug {
			config.DebugLog.Debugf("[Provider] openai stream done: model=%s", acc.Model)
		}
		return usage, nil
	})
}

// TestConnection lists models with the given key.
func (s *OpenAIChatService) TestConnection(ctx context.Context, apiKey, baseURL string) bool {
	return openAICompatiblePing(ctx, s.httpClient, IDOpenAI, apiKey, baseURL)
}

// toOpenAIMessages converts history to SDK message params, with the system
// prompt as a leading system message.
func toOpenAIMessages(req Request) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		result = append(result, openai.SystemMessage(req.SystemPrompt))
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case model.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				result = append(result, openai.AssistantMessage(msg.Content))
				continue
			}
			asst := openai.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				asst.Content.OfString = openai.String(msg.Content)
			}
			for _, tc := range msg.ToolCalls {
				asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: marshalArguments(tc.Arguments),
						},
					},
				})
			}
			result = append(result, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})

		case model.RoleTool:
			result = append(result, openai.ToolMessage(msg.Content, msg.ToolCallID))

		default:
			result = append(result, openai.UserMessage(msg.Content))
		}
	}

	return result
}
