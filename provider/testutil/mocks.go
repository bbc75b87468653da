package testutil

import (
	"context"
	"iter"
	"slices"
	"sync"

	"chatdesk/model"
)

// Call records one request made to a MockChatService.
type Call struct {
	Messages []model.Message
	Options  model.ChatOptions
	Stream   bool
}

// MockChatService implements model.ChatService for testing. By default it
// streams Events and answers SendMessage with Response/Err; the Func fields
// override either.
type MockChatService struct {
	ID        string
	Events    []model.StreamEvent
	Response  *model.ChatResponse
	Err       error
	Connected bool

	StreamMessageFunc  func(ctx context.Context, messages []model.Message, opts model.ChatOptions) iter.Seq[model.StreamEvent]
	SendMessageFunc    func(ctx context.Context, messages []model.Message, opts model.ChatOptions) (*model.ChatResponse, error)
	TestConnectionFunc func(ctx context.Context, apiKey, baseURL string) bool

	mu    sync.Mutex
	calls []Call
}

// NewMockChatService creates a mock that streams "Mock response".
func NewMockChatService(id string) *MockChatService {
	return &MockChatService{
		ID:        id,
		Events:    TextStream("Mock ", "response"),
		Response:  &model.ChatResponse{Content: "Mock response"},
		Connected: true,
	}
}

func (m *MockChatService) ProviderID() string { return m.ID }

func (m *MockChatService) SendMessage(ctx context.Context, messages []model.Message, opts model.ChatOptions) (*model.ChatResponse, error) {
	m.record(messages, opts, false)
	if m.SendMessageFunc != nil {
		return m.SendMessageFunc(ctx, messages, opts)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Err != nil {
		return nil, m.Err
	}
	resp := *m.Response
	resp.ModelID = opts.Model
	return &resp, nil
}

func (m *MockChatService) StreamMessage(ctx context.Context, messages []model.Message, opts model.ChatOptions) iter.Seq[model.StreamEvent] {
	m.record(messages, opts, true)
	if m.StreamMessageFunc != nil {
		return m.StreamMessageFunc(ctx, messages, opts)
	}
	return ScriptedStream(ctx, m.Events...)
}

func (m *MockChatService) TestConnection(ctx context.Context, apiKey, baseURL string) bool {
	if m.TestConnectionFunc != nil {
		return m.TestConnectionFunc(ctx, apiKey, baseURL)
	}
	return m.Connected
}

func (m *MockChatService) record(messages []model.Message, opts model.ChatOptions, stream bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Messages: slices.Clone(messages), Options: opts, Stream: stream})
}

// Calls returns every request made so far.
func (m *MockChatService) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// LastCall returns the most recent request, or false if none was made.
func (m *MockChatService) LastCall() (Call, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return Call{}, false
	}
	return m.calls[len(m.calls)-1], true
}

// ScriptedStream yields events in order, stopping silently once ctx is done.
func ScriptedStream(ctx context.Context, events ...model.StreamEvent) iter.Seq[model.StreamEvent] {
	return func(yield func(model.StreamEvent) bool) {
		for _, ev := range events {
			if ctx.Err() != nil {
				return
			}
			if !yield(ev) {
				return
			}
		}
	}
}

// PausedStream yields before, then waits until gate is closed and yields
// after. If ctx is cancelled while waiting the stream ends with no further
// events, like a real adapter whose transport was aborted.
func PausedStream(ctx context.Context, gate <-chan struct{}, before, after []model.StreamEvent) iter.Seq[model.StreamEvent] {
	return func(yield func(model.StreamEvent) bool) {
		for _, ev := range before {
			if !yield(ev) {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-gate:
		}
		for _, ev := range after {
			if ctx.Err() != nil {
				return
			}
			if !yield(ev) {
				return
			}
		}
	}
}

// TextStream builds Started, one ContentDelta per delta, Finished.
func TextStream(deltas ...string) []model.StreamEvent {
	events := []model.StreamEvent{model.Started()}
	for _, d := range deltas {
		events = append(events, model.ContentDelta(d))
	}
	return append(events, model.Finished(nil))
}

// FailingStream builds Started, the deltas, then Failed(err).
func FailingStream(err error, deltas ...string) []model.StreamEvent {
	events := []model.StreamEvent{model.Started()}
	for _, d := range deltas {
		events = append(events, model.ContentDelta(d))
	}
	return append(events, model.Failed(err))
}

// MockModelService implements model.ModelService for testing.
type MockModelService struct {
	ID        string
	Models    []model.ModelInfo
	Connected bool
}

func NewMockModelService(id string, models ...model.ModelInfo) *MockModelService {
	return &MockModelService{ID: id, Models: models, Connected: true}
}

func (m *MockModelService) ProviderID() string { return m.ID }

func (m *MockModelService) FetchModels(ctx context.Context, apiKey, baseURL string) []model.ModelInfo {
	if m.Models == nil {
		return []model.ModelInfo{}
	}
	return slices.Clone(m.Models)
}

func (m *MockModelService) TestConnection(ctx context.Context, apiKey, baseURL string) bool {
	return m.Connected
}
