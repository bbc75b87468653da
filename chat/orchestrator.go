// Package chat drives a request from the user's text to a finished assistant
// message. The Orchestrator resolves the conversation's provider, runs the
// stream, and writes each delta into the ChatStore as it arrives so the UI can
// render the reply incrementally.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chatdesk/config"
	"chatdesk/metrics"
	"chatdesk/model"
	"chatdesk/provider"
	"chatdesk/store"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

var (
	// ErrBusy is returned while another request is loading or streaming.
	ErrBusy = errors.New("a response is still in progress")

	ErrEmptyMessage   = errors.New("message is empty")
	ErrNothingToRetry = errors.New("no user message to retry")
	ErrNoConversation = errors.New("no active conversation")
)

// errorAnnotationPrefix introduces a failure note in an assistant message.
const errorAnnotationPrefix = "⚠️ Error: "

// Result describes how a request ended.
type Result struct {
	ConversationID string
	// MessageID is the assistant message written for this request, if any.
	MessageID string
	Content   string
	ToolCalls []model.ToolCall
	Usage     *model.Usage
	Canceled  bool
	// Err is the provider or configuration failure, already reported in the
	// conversation and in the store's status.
	Err error
}

// Orchestrator coordinates the stores and provider factories for one user.
type Orchestrator struct {
	chats         *store.ChatStore
	providers     *store.ProviderStore
	chatServices  *provider.ChatServiceFactory
	modelServices *provider.ModelServiceFactory
	tools         []mcptypes.Tool
	now           func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTools offers tools to the model on every request.
func WithTools(tools []mcptypes.Tool) Option {
	return func(o *Orchestrator) { o.tools = tools }
}

func New(chats *store.ChatStore, providers *store.ProviderStore, chatServices *provider.ChatServiceFactory, modelServices *provider.ModelServiceFactory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		chats:         chats,
		providers:     providers,
		chatServices:  chatServices,
		modelServices: modelServices,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SendMessage appends text as a user message to the active conversation,
// creating one from the provider defaults if needed, and runs the request to
// completion. It blocks until the reply is finished, failed or aborted.
//
// The returned error covers problems that prevented the request from being
// recorded at all (ErrBusy, an empty message, storage failures). Provider
// failures are reported in Result.Err.
func (o *Orchestrator) SendMessage(ctx context.Context, text string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	id, err := o.chats.BeginRequest(cancel)
	if err != nil {
		if errors.Is(err, store.ErrRequestInFlight) {
			return nil, ErrBusy
		}
		return nil, err
	}
	defer o.chats.EndRequest(id)

	conv, err := o.activeConversation()
	if err != nil {
		o.failRequest(id, err.Error())
		return nil, err
	}
	if _, err := o.chats.AddMessage(conv.ID, model.RoleUser, text); err != nil {
		o.failRequest(id, err.Error())
		return nil, err
	}

	return o.run(reqCtx, id, conv.ID)
}

// Retry re-sends the last user message of the active conversation. Any reply
// after it, typically a failed one, is discarded first; the user message
// itself is not duplicated.
func (o *Orchestrator) Retry(ctx context.Context) (*Result, error) {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	id, err := o.chats.BeginRequest(cancel)
	if err != nil {
		if errors.Is(err, store.ErrRequestInFlight) {
			return nil, ErrBusy
		}
		return nil, err
	}
	defer o.chats.EndRequest(id)

	conv, ok := o.chats.ActiveConversation()
	if !ok {
		o.failRequest(id, ErrNoConversation.Error())
		return nil, ErrNoConversation
	}
	last, idx := conv.LastUserMessage()
	if idx < 0 {
		o.failRequest(id, ErrNothingToRetry.Error())
		return nil, ErrNothingToRetry
	}
	if err := o.chats.TrimAfter(conv.ID, last.ID); err != nil {
		o.failRequest(id, err.Error())
		return nil, err
	}

	if config.Debug {
		config.DebugLog.Debugf("[Chat] retrying message %s in %s", last.ID, conv.ID)
	}
	return o.run(reqCtx, id, conv.ID)
}

// Abort cancels the in-flight request, if any.
func (o *Orchestrator) Abort() bool {
	return o.chats.Abort()
}

// activeConversation returns the active conversation, creating it from the
// provider defaults on first use. A conversation without a provider picks up
// the defaults as well.
func (o *Orchestrator) activeConversation() (model.Conversation, error) {
	defaults := o.providers.Defaults()

	conv, ok := o.chats.ActiveConversation()
	if !ok {
		return o.chats.CreateConversation(defaults)
	}

	sel := model.ProviderSelection{ProviderID: conv.ProviderID, ModelID: conv.ModelID}
	if sel.Empty() && !defaults.Empty() {
		if err := o.chats.SetConversationModel(conv.ID, defaults); err != nil {
			return model.Conversation{}, err
		}
		conv.ProviderID = defaults.ProviderID
		conv.ModelID = defaults.ModelID
	}
	return conv, nil
}

// failRequest moves the request to error. A request that was aborted or
// superseded is left alone.
func (o *Orchestrator) failRequest(id store.RequestID, msg string) {
	if err := o.chats.Fail(id, msg); err != nil && config.Debug {
		config.DebugLog.Warnf("[Chat] could not record failure: %v", err)
	}
}

// run sends the conversation's history to its provider and records the reply.
func (o *Orchestrator) run(ctx context.Context, id store.RequestID, convID string) (*Result, error) {
	conv, ok := o.chats.Conversation(convID)
	if !ok {
		o.failRequest(id, store.ErrConversationNotFound.Error())
		return nil, store.ErrConversationNotFound
	}

	settings := o.chats.DefaultSettings().Resolve(&conv)
	svc, opts, err := o.resolve(conv, settings)
	if err != nil {
		return o.guide(id, conv.ID, err)
	}

	if config.Debug {
		config.DebugLog.Debugf("[Chat] request to %s/%s (key %s, stream %v, %d messages)",
			svc.ProviderID(), opts.Model, model.MaskAPIKey(opts.APIKey), settings.Stream, len(conv.Messages))
	}

	metrics.StreamStarted()
	defer metrics.StreamEnded()

	if !settings.Stream {
		return o.send(ctx, id, conv, svc, opts)
	}
	return o.stream(ctx, id, conv, svc, opts)
}

// resolve picks the chat service and builds the request options. It fails
// with a ConfigurationError or UnsupportedProviderError before any network
// call is made.
func (o *Orchestrator) resolve(conv model.Conversation, settings model.GenerationSettings) (model.ChatService, model.ChatOptions, error) {
	if conv.ProviderID == "" {
		return nil, model.ChatOptions{}, &model.ConfigurationError{Reason: model.ReasonNoProvider}
	}

	svc, err := o.chatServices.Get(conv.ProviderID)
	if err != nil {
		return nil, model.ChatOptions{}, err
	}

	// Providers without keys, like a local Ollama, work unconfigured.
	info, _ := provider.Lookup(conv.ProviderID)
	cp, ok := o.providers.Get(conv.ProviderID)
	switch {
	case !ok && info.APIKeyRequired:
		return nil, model.ChatOptions{}, &model.ConfigurationError{ProviderID: conv.ProviderID, Reason: model.ReasonNotConfigured}
	case ok && !cp.IsActive:
		return nil, model.ChatOptions{}, &model.ConfigurationError{ProviderID: conv.ProviderID, Reason: model.ReasonInactive}
	case info.APIKeyRequired && cp.APIKey == "":
		return nil, model.ChatOptions{}, &model.ConfigurationError{ProviderID: conv.ProviderID, Reason: model.ReasonMissingAPIKey}
	}
	if conv.ModelID == "" {
		return nil, model.ChatOptions{}, &model.ConfigurationError{ProviderID: conv.ProviderID, Reason: model.ReasonNoModel}
	}

	return svc, model.ChatOptions{
		Model:        conv.ModelID,
		APIKey:       cp.APIKey,
		BaseURL:      cp.BaseURL,
		SystemPrompt: settings.SystemPrompt,
		MaxTurns:     settings.MaxTurns,
		Temperature:  settings.Temperature,
		MaxTokens:    settings.MaxTokens,
		TopP:         settings.TopP,
		Tools:        o.tools,
	}, nil
}

// guide records a standalone assistant message explaining how to fix a
// resolution error and moves the request to error.
func (o *Orchestrator) guide(id store.RequestID, convID string, cause error) (*Result, error) {
	text := guidance(cause)
	msg, err := o.chats.AddMessage(convID, model.RoleAssistant, text)
	o.failRequest(id, cause.Error())
	if err != nil {
		return nil, err
	}

	if config.Debug {
		config.DebugLog.Infof("[Chat] request not sent: %v", cause)
	}
	return &Result{ConversationID: convID, MessageID: msg.ID, Content: text, Err: cause}, nil
}

// stream consumes the provider stream. The assistant message is created on
// the first non-empty delta and rewritten in full on every delta after that.
func (o *Orchestrator) stream(ctx context.Context, id store.RequestID, conv model.Conversation, svc model.ChatService, opts model.ChatOptions) (*Result, error) {
	start := o.now()
	res := &Result{ConversationID: conv.ID}
	var (
		content   strings.Builder
		streamErr error
		storeErr  error
	)

	provider.StreamWithCallbacks(ctx, svc, conv.Messages, opts, provider.Callbacks{
		OnContent: func(delta string) {
			if delta == "" || ctx.Err() != nil || storeErr != nil {
				return
			}
			content.WriteString(delta)
			metrics.RecordDelta(svc.ProviderID())

			if res.MessageID == "" {
				msg, err := o.chats.AddMessage(conv.ID, model.RoleAssistant, content.String())
				if err != nil {
					storeErr = err
					return
				}
				res.MessageID = msg.ID
				if err := o.chats.MarkStreaming(id, msg.ID); err != nil && ctx.Err() == nil {
					storeErr = err
				}
				return
			}
			if err := o.chats.UpdateMessageContent(conv.ID, res.MessageID, content.String()); err != nil {
				storeErr = err
			}
		},
		OnToolCall: func(call model.ToolCall) {
			res.ToolCalls = append(res.ToolCalls, call)
		},
		OnFinish: func(usage *model.Usage) {
			res.Usage = usage
		},
		OnError: func(err error) {
			streamErr = err
		},
	})
	res.Content = content.String()

	if ctx.Err() != nil {
		return o.canceled(id, res, svc.ProviderID(), opts.Model, start), nil
	}
	if storeErr != nil {
		o.failRequest(id, storeErr.Error())
		o.record(svc.ProviderID(), opts.Model, metrics.StatusError, start, res.Usage)
		return res, storeErr
	}
	if streamErr != nil {
		return o.fail(id, res, streamErr, svc.ProviderID(), opts.Model, start)
	}
	return o.finish(id, res, svc.ProviderID(), opts.Model, start)
}

// send runs a non-streaming request and writes the whole reply at once.
func (o *Orchestrator) send(ctx context.Context, id store.RequestID, conv model.Conversation, svc model.ChatService, opts model.ChatOptions) (*Result, error) {
	start := o.now()
	res := &Result{ConversationID: conv.ID}

	resp, err := svc.SendMessage(ctx, conv.Messages, opts)
	if ctx.Err() != nil {
		return o.canceled(id, res, svc.ProviderID(), opts.Model, start), nil
	}
	if err != nil {
		return o.fail(id, res, err, svc.ProviderID(), opts.Model, start)
	}

	res.Content = resp.Content
	res.ToolCalls = resp.ToolCalls
	usage := resp.Usage
	res.Usage = &usage

	if resp.Content != "" {
		msg, err := o.chats.AddMessage(conv.ID, model.RoleAssistant, resp.Content)
		if err != nil {
			o.failRequest(id, err.Error())
			return res, err
		}
		res.MessageID = msg.ID
	}
	return o.finish(id, res, svc.ProviderID(), opts.Model, start)
}

// finish records tool calls and marks the request successful.
func (o *Orchestrator) finish(id store.RequestID, res *Result, providerID, modelID string, start time.Time) (*Result, error) {
	if len(res.ToolCalls) > 0 {
		if res.MessageID == "" {
			msg, err := o.chats.AddMessage(res.ConversationID, model.RoleAssistant, "")
			if err != nil {
				o.failRequest(id, err.Error())
				return res, err
			}
			res.MessageID = msg.ID
		}
		if err := o.chats.SetMessageToolCalls(res.ConversationID, res.MessageID, res.ToolCalls); err != nil {
			o.failRequest(id, err.Error())
			return res, err
		}
	}

	if err := o.chats.Finish(id); err != nil {
		// An abort racing the last event already moved the status to idle,
		// or a newer request owns it.
		if config.Debug {
			config.DebugLog.Debugf("[Chat] finish ignored: %v", err)
		}
	}
	o.record(providerID, modelID, metrics.StatusSuccess, start, res.Usage)

	if config.Debug {
		config.DebugLog.Debugf("[Chat] reply complete: %d chars, %d tool calls", len(res.Content), len(res.ToolCalls))
	}
	return res, nil
}

// fail annotates the partial reply, or adds a message carrying only the
// annotation when nothing arrived, and moves the request to error.
func (o *Orchestrator) fail(id store.RequestID, res *Result, cause error, providerID, modelID string, start time.Time) (*Result, error) {
	res.Err = cause
	msg := errorMessage(cause)

	if config.Debug {
		config.DebugLog.Errorf("[Chat] %s request failed: %v", providerID, cause)
	}

	var err error
	if res.MessageID != "" {
		res.Content = res.Content + "\n\n" + errorAnnotationPrefix + msg
		err = o.chats.UpdateMessageContent(res.ConversationID, res.MessageID, res.Content)
	} else {
		res.Content = errorAnnotationPrefix + msg
		if isResolutionError(cause) {
			res.Content = guidance(cause)
		}
		var m model.Message
		m, err = o.chats.AddMessage(res.ConversationID, model.RoleAssistant, res.Content)
		res.MessageID = m.ID
	}

	o.failRequest(id, msg)
	o.record(providerID, modelID, metrics.StatusError, start, nil)
	return res, err
}

// canceled ends an aborted request silently. Whatever content arrived stays
// in the conversation as it is.
func (o *Orchestrator) canceled(id store.RequestID, res *Result, providerID, modelID string, start time.Time) *Result {
	res.Canceled = true
	// The caller's context may have been cancelled without Abort; make sure
	// the status does not stay busy. Once aborted, a newer request may own
	// the status and must not be touched.
	o.chats.AbortRequest(id)
	o.record(providerID, modelID, metrics.StatusCanceled, start, nil)

	if config.Debug {
		config.DebugLog.Debugf("[Chat] request canceled after %d chars", len(res.Content))
	}
	return res
}

func (o *Orchestrator) record(providerID, modelID, status string, start time.Time, usage *model.Usage) {
	var in, out int
	if usage != nil {
		in, out = int(usage.InputTokens), int(usage.OutputTokens)
	}
	metrics.RecordRequest(providerID, modelID, status, o.now().Sub(start), in, out)
}

// errorMessage is the user-facing text for a provider failure.
func errorMessage(err error) string {
	var reqErr *model.ProviderRequestError
	if errors.As(err, &reqErr) && reqErr.Message != "" {
		return reqErr.Message
	}
	return err.Error()
}

func isResolutionError(err error) bool {
	var cfgErr *model.ConfigurationError
	var unsupported *model.UnsupportedProviderError
	return errors.As(err, &cfgErr) || errors.As(err, &unsupported)
}

// guidance explains how to fix an error that stopped a request before it was
// sent.
func guidance(err error) string {
	var unsupported *model.UnsupportedProviderError
	if errors.As(err, &unsupported) {
		return fmt.Sprintf("⚠️ The provider %q is not supported. Choose another provider with `/use <provider> <model>`.", unsupported.ProviderID)
	}

	var cfgErr *model.ConfigurationError
	if errors.As(err, &cfgErr) {
		if cfgErr.ProviderID == "" {
			return "⚠️ No AI provider is set up yet. Add one with `/key <provider> <api-key>`, then pick a model with `/use <provider> <model>`."
		}
		name := provider.DisplayName(cfgErr.ProviderID)
		switch cfgErr.Reason {
		case model.ReasonMissingAPIKey, model.ReasonNotConfigured:
			return fmt.Sprintf("⚠️ %s needs an API key. Add it with `/key %s <api-key>`.", name, cfgErr.ProviderID)
		case model.ReasonInactive:
			return fmt.Sprintf("⚠️ %s is switched off. Activate it with `/activate %s` or pick another provider with `/use`.", name, cfgErr.ProviderID)
		case model.ReasonNoModel:
			return fmt.Sprintf("⚠️ No %s model is selected. List models with `/models %s` and pick one with `/use %s <model>`.", name, cfgErr.ProviderID, cfgErr.ProviderID)
		}
		return fmt.Sprintf("⚠️ %s is not ready: %s.", name, cfgErr.Reason)
	}

	return errorAnnotationPrefix + err.Error()
}
