package provider

import (
	"context"
	"errors"
	"iter"
	"net/http"
	"strings"

	"chatdesk/config"
	"chatdesk/model"
	"chatdesk/ollama"

	"github.com/ollama/ollama/api"
)

// errStopStream is returned from the chunk callback when the consumer has
// gone away; it never reaches the caller.
var errStopStream = errors.New("stream stopped by consumer")

// OllamaChatService talks to a local Ollama server. No API key is needed.
//
// Tools are only offered to model families known to support Ollama's tools
// API; others get the plain conversation.
type OllamaChatService struct {
	httpClient *http.Client
}

func NewOllamaChatService(httpClient *http.Client) *OllamaChatService {
	return &OllamaChatService{httpClient: httpClient}
}

func (s *OllamaChatService) ProviderID() string { return IDOllama }

func (s *OllamaChatService) request(messages []model.Message, opts model.ChatOptions) (*api.ChatRequest, error) {
	if opts.Model == "" {
		return nil, &model.ConfigurationError{ProviderID: IDOllama, Reason: model.ReasonNoModel}
	}

	req := BuildRequest(messages, opts)
	chatReq := &api.ChatRequest{
		Model:    opts.Model,
		Messages: toOllamaMessages(req),
	}
	if len(opts.Tools) > 0 && ollama.ModelSupportsToolCalling(opts.Model) {
		chatReq.Tools = toOllamaTools(opts.Tools)
	}

	options := map[string]any{}
	if opts.Temperature != nil {
		options["temperature"] = *opts.Temperature
	}
	if opts.TopP != nil {
		options["top_p"] = *opts.TopP
	}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}
	if len(options) > 0 {
		chatReq.Options = options
	}
	return chatReq, nil
}

func (s *OllamaChatService) client(baseURL string) (*ollama.Client, error) {
	return ollama.NewClient(resolveBaseURL(IDOllama, baseURL), s.httpClient)
}

// SendMessage implements model.ChatService.SendMessage.
func (s *OllamaChatService) SendMessage(ctx context.Context, messages []model.Message, opts model.ChatOptions) (*model.ChatResponse, error) {
	req, err := s.request(messages, opts)
	if err != nil {
		return nil, err
	}
	client, err := s.client(opts.BaseURL)
	if err != nil {
		return nil, &model.ConfigurationError{ProviderID: IDOllama, Reason: err.Error()}
	}

	var b strings.Builder
	out := &model.ChatResponse{ModelID: opts.Model}
	err = client.Chat(ctx, req, false, func(resp api.ChatResponse) error {
		b.WriteString(resp.Message.Content)
		out.ToolCalls = append(out.ToolCalls, fromOllamaToolCalls(resp.Message.ToolCalls)...)
		if resp.Done {
			out.Usage = model.Usage{
				InputTokens:  int64(resp.Metrics.PromptEvalCount),
				OutputTokens: int64(resp.Metrics.EvalCount),
			}
		}
		return nil
	})
	if err != nil {
		return nil, requestError(IDOllama, err)
	}
	out.Content = b.String()
	return out, nil
}

// StreamMessage implements model.ChatService.StreamMessage.
func (s *OllamaChatService) StreamMessage(ctx context.Context, messages []model.Message, opts model.ChatOptions) iter.Seq[model.StreamEvent] {
	req, err := s.request(messages, opts)
	if err != nil {
		return failedStream(ctx, IDOllama, err)
	}

	return newStream(ctx, IDOllama, func(ctx context.Context, emit emitFunc) (*model.Usage, error) {
		client, err := s.client(opts.BaseURL)
		if err != nil {
			return nil, err
		}

		var usage *model.Usage
		err = client.Chat(ctx, req, true, func(resp api.ChatResponse) error {
			if !emit(model.ContentDelta(resp.Message.Content)) {
				return errStopStream
			}
			for _, call := range fromOllamaToolCalls(resp.Message.ToolCalls) {
				if !emit(model.ToolCallEvent(call)) {
					return errStopStream
				}
			}
			if resp.Done {
				usage = &model.Usage{
					InputTokens:  int64(resp.Metrics.PromptEvalCount),
					OutputTokens: int64(resp.Metrics.EvalCount),
				}
			}
			return nil
		})
		if errors.Is(err, errStopStream) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return usage, nil
	})
}

// TestConnection checks the server is reachable. apiKey is ignored.
func (s *OllamaChatService) TestConnection(ctx context.Context, apiKey, baseURL string) bool {
	client, err := s.client(baseURL)
	if err != nil {
		return false
	}
	if err := client.Ping(ctx); err != nil {
		if config.Debug {
			config.DebugLog.Debugf("[Provider] ollama ping failed: %v", err)
		}
		return false
	}
	return true
}
