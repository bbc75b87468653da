package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"chatdesk/config"
	"chatdesk/model"
	"chatdesk/storage"

	"github.com/google/uuid"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrNotTailMessage       = errors.New("only the last message can be rewritten")
	ErrRequestInFlight      = errors.New("a request is already in flight")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrEmptyTitle           = errors.New("title cannot be empty")
	ErrStaleRequest         = errors.New("request has been superseded")
)

// RequestID identifies one request from BeginRequest to EndRequest. The zero
// value never matches a request.
type RequestID uint64

// RequestState is the transient status of the single in-flight request. It
// is never persisted.
type RequestState struct {
	Status             model.ChatStatus
	StreamingMessageID string
	LastError          string
}

// ConversationSettings are per-conversation overrides of the default
// generation settings. Zero values defer to the defaults.
type ConversationSettings struct {
	SystemPrompt string
	MaxTurns     int
	Temperature  *float64
	MaxTokens    int
}

// ChatStore owns the chat document (conversations, active selection, default
// settings) and the process-wide request status.
//
// Only one request may be in flight at a time. BeginRequest enforces that and
// takes ownership of the request's cancel func; Abort is the only way to
// cancel it from outside.
type ChatStore struct {
	notifier

	mu      sync.RWMutex
	backend storage.Store
	doc     storage.ChatDocument
	req     RequestState
	cancel  context.CancelFunc
	seq     RequestID
	current RequestID
	now     func() time.Time
}

// NewChatStore loads the chat document, or starts from defaults when none
// has been saved yet.
func NewChatStore(backend storage.Store) (*ChatStore, error) {
	doc, err := storage.LoadOrDefault(backend, storage.KeyChat, storage.DefaultChatDocument())
	if err != nil {
		return nil, fmt.Errorf("failed to load chat state: %w", err)
	}
	if doc.Conversations == nil {
		doc.Conversations = []model.Conversation{}
	}

	return &ChatStore{
		backend: backend,
		doc:     doc,
		req:     RequestState{Status: model.StatusIdle},
		now:     time.Now,
	}, nil
}

// mutate runs fn under the write lock and persists the document. If fn or
// the save fails, the document is rolled back so memory never runs ahead of
// disk, and subscribers are not notified.
func (s *ChatStore) mutate(fn func() error) error {
	s.mu.Lock()
	prev := cloneChatDocument(s.doc)
	if err := fn(); err != nil {
		s.doc = prev
		s.mu.Unlock()
		return err
	}
	if err := s.backend.Save(storage.KeyChat, s.doc); err != nil {
		s.doc = prev
		s.mu.Unlock()
		if config.Debug {
			config.DebugLog.Errorf("[Store] failed to save chat state: %v", err)
		}
		return fmt.Errorf("failed to save chat state: %w", err)
	}
	s.mu.Unlock()

	s.notify()
	return nil
}

// mutateStatus changes transient request state only; nothing is persisted.
func (s *ChatStore) mutateStatus(fn func() error) error {
	s.mu.Lock()
	err := fn()
	s.mu.Unlock()
	if err == nil {
		s.notify()
	}
	return err
}

func (s *ChatStore) find(id string) (*model.Conversation, error) {
	for i := range s.doc.Conversations {
		if s.doc.Conversations[i].ID == id {
			return &s.doc.Conversations[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, id)
}

// CreateConversation starts an empty conversation with the given provider
// and model and makes it active. The caller resolves the selection; the
// store never reads provider defaults itself.
func (s *ChatStore) CreateConversation(sel model.ProviderSelection) (model.Conversation, error) {
	now := s.now()
	conv := model.Conversation{
		ID:         uuid.New().String(),
		Title:      model.DefaultConversationTitle,
		Messages:   []model.Message{},
		ProviderID: sel.ProviderID,
		ModelID:    sel.ModelID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := s.mutate(func() error {
		s.doc.Conversations = append([]model.Conversation{conv}, s.doc.Conversations...)
		s.doc.ActiveConversationID = &conv.ID
		return nil
	})
	if err != nil {
		return model.Conversation{}, err
	}

	if config.Debug {
		config.DebugLog.Debugf("[Store] created conversation %s (%s/%s)", conv.ID, sel.ProviderID, sel.ModelID)
	}
	return cloneConversation(conv), nil
}

// DeleteConversation removes a conversation. If it was active, the most
// recently updated remaining conversation becomes active.
func (s *ChatStore) DeleteConversation(id string) error {
	return s.mutate(func() error {
		idx := slices.IndexFunc(s.doc.Conversations, func(c model.Conversation) bool { return c.ID == id })
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrConversationNotFound, id)
		}
		s.doc.Conversations = slices.Delete(s.doc.Conversations, idx, idx+1)

		if s.doc.ActiveConversationID != nil && *s.doc.ActiveConversationID == id {
			s.doc.ActiveConversationID = nil
			if sorted := sortedByUpdate(s.doc.Conversations); len(sorted) > 0 {
				next := sorted[0].ID
				s.doc.ActiveConversationID = &next
			}
		}
		return nil
	})
}

func (s *ChatStore) SetActiveConversation(id string) error {
	return s.mutate(func() error {
		if _, err := s.find(id); err != nil {
			return err
		}
		s.doc.ActiveConversationID = &id
		return nil
	})
}

// ActiveConversation returns a copy of the active conversation.
func (s *ChatStore) ActiveConversation() (model.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.doc.ActiveConversationID == nil {
		return model.Conversation{}, false
	}
	conv, err := s.find(*s.doc.ActiveConversationID)
	if err != nil {
		return model.Conversation{}, false
	}
	return cloneConversation(*conv), true
}

func (s *ChatStore) Conversation(id string) (model.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, err := s.find(id)
	if err != nil {
		return model.Conversation{}, false
	}
	return cloneConversation(*conv), true
}

// Conversations returns every conversation, most recently updated first.
func (s *ChatStore) Conversations() []model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := sortedByUpdate(s.doc.Conversations)
	for i := range out {
		out[i] = cloneConversation(out[i])
	}
	return out
}

// RenameConversation sets a title and locks it against auto-derivation.
func (s *ChatStore) RenameConversation(id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}
	return s.mutate(func() error {
		conv, err := s.find(id)
		if err != nil {
			return err
		}
		conv.Title = title
		conv.TitleLocked = true
		conv.UpdatedAt = s.now()
		return nil
	})
}

func (s *ChatStore) SetConversationModel(id string, sel model.ProviderSelection) error {
	return s.mutate(func() error {
		conv, err := s.find(id)
		if err != nil {
			return err
		}
		conv.ProviderID = sel.ProviderID
		conv.ModelID = sel.ModelID
		conv.UpdatedAt = s.now()
		return nil
	})
}

func (s *ChatStore) UpdateConversationSettings(id string, settings ConversationSettings) error {
	return s.mutate(func() error {
		conv, err := s.find(id)
		if err != nil {
			return err
		}
		conv.SystemPrompt = settings.SystemPrompt
		conv.MaxTurns = settings.MaxTurns
		conv.Temperature = settings.Temperature
		conv.MaxTokens = settings.MaxTokens
		conv.UpdatedAt = s.now()
		return nil
	})
}

// ClearMessages empties a conversation. An unlocked title is reset so the
// next first message derives a new one.
func (s *ChatStore) ClearMessages(id string) error {
	return s.mutate(func() error {
		conv, err := s.find(id)
		if err != nil {
			return err
		}
		conv.Messages = []model.Message{}
		if !conv.TitleLocked {
			conv.Title = model.DefaultConversationTitle
		}
		conv.UpdatedAt = s.now()
		return nil
	})
}

// SearchConversations matches titles fuzzily and message bodies by substring.
func (s *ChatStore) SearchConversations(query string) []storage.ConversationMatch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return storage.SearchConversations(s.doc.Conversations, query)
}

// AddMessage appends a message. The first user message of a conversation
// derives its title unless the title was set by hand.
func (s *ChatStore) AddMessage(convID string, role model.Role, content string) (model.Message, error) {
	if !role.Valid() {
		return model.Message{}, fmt.Errorf("invalid role: %q", role)
	}

	msg := model.NewMessage(role, content)
	msg.Timestamp = s.now()

	err := s.mutate(func() error {
		conv, err := s.find(convID)
		if err != nil {
			return err
		}
		if role == model.RoleUser && !conv.HasUserMessage() && !conv.TitleLocked {
			conv.Title = model.DeriveTitle(content)
		}
		conv.Messages = append(conv.Messages, msg)
		conv.UpdatedAt = msg.Timestamp
		return nil
	})
	if err != nil {
		return model.Message{}, err
	}
	return msg, nil
}

// UpdateMessageContent replaces a message's full content and refreshes its
// timestamp. Only the tail message may be rewritten, which is the message
// being streamed into.
func (s *ChatStore) UpdateMessageContent(convID, msgID, content string) error {
	return s.mutate(func() error {
		msg, conv, err := s.tailMessage(convID, msgID)
		if err != nil {
			return err
		}
		msg.Content = content
		msg.Timestamp = s.now()
		conv.UpdatedAt = msg.Timestamp
		return nil
	})
}

// SetMessageToolCalls records the tool calls an assistant message made.
func (s *ChatStore) SetMessageToolCalls(convID, msgID string, calls []model.ToolCall) error {
	return s.mutate(func() error {
		conv, err := s.find(convID)
		if err != nil {
			return err
		}
		idx := slices.IndexFunc(conv.Messages, func(m model.Message) bool { return m.ID == msgID })
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrMessageNotFound, msgID)
		}
		conv.Messages[idx].ToolCalls = slices.Clone(calls)
		conv.UpdatedAt = s.now()
		return nil
	})
}

// TrimAfter drops every message after msgID. Retrying a failed request uses
// it to discard the failed reply while keeping the user message.
func (s *ChatStore) TrimAfter(convID, msgID string) error {
	return s.mutate(func() error {
		conv, err := s.find(convID)
		if err != nil {
			return err
		}
		idx := slices.IndexFunc(conv.Messages, func(m model.Message) bool { return m.ID == msgID })
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrMessageNotFound, msgID)
		}
		conv.Messages = conv.Messages[:idx+1]
		conv.UpdatedAt = s.now()
		return nil
	})
}

func (s *ChatStore) tailMessage(convID, msgID string) (*model.Message, *model.Conversation, error) {
	conv, err := s.find(convID)
	if err != nil {
		return nil, nil, err
	}
	idx := slices.IndexFunc(conv.Messages, func(m model.Message) bool { return m.ID == msgID })
	if idx < 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrMessageNotFound, msgID)
	}
	if idx != len(conv.Messages)-1 {
		return nil, nil, ErrNotTailMessage
	}
	return &conv.Messages[idx], conv, nil
}

func (s *ChatStore) DefaultSettings() model.GenerationSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.DefaultSettings
}

func (s *ChatStore) UpdateDefaultSettings(settings model.GenerationSettings) error {
	return s.mutate(func() error {
		s.doc.DefaultSettings = settings
		return nil
	})
}

// RequestState returns the current transient request status.
func (s *ChatStore) RequestState() RequestState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.req
}

func (s *ChatStore) Status() model.ChatStatus { return s.RequestState().Status }

func (s *ChatStore) StreamingMessageID() string { return s.RequestState().StreamingMessageID }

func (s *ChatStore) LastError() string { return s.RequestState().LastError }

// transition must be called with s.mu held.
func (s *ChatStore) transition(next model.ChatStatus) error {
	if !s.req.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.req.Status, next)
	}
	if config.Debug {
		config.DebugLog.Debugf("[Store] status %s -> %s", s.req.Status, next)
	}
	s.req.Status = next
	return nil
}

// BeginRequest moves to loading and takes the request's cancel func. It
// fails with ErrRequestInFlight while another request is loading or
// streaming. The returned RequestID must be passed to every later call for
// this request; calls with an older id are ignored once a newer request has
// begun.
func (s *ChatStore) BeginRequest(cancel context.CancelFunc) (RequestID, error) {
	var id RequestID
	err := s.mutateStatus(func() error {
		if s.req.Status.Busy() {
			return ErrRequestInFlight
		}
		if err := s.transition(model.StatusLoading); err != nil {
			return err
		}
		s.seq++
		id = s.seq
		s.current = id
		s.req.StreamingMessageID = ""
		s.req.LastError = ""
		s.cancel = cancel
		return nil
	})
	return id, err
}

// owns must be called with s.mu held.
func (s *ChatStore) owns(id RequestID) error {
	if id == 0 || id != s.current {
		return fmt.Errorf("%w: %d", ErrStaleRequest, id)
	}
	return nil
}

// MarkStreaming records the assistant message receiving content. Calling it
// again with the same message while streaming is a no-op.
func (s *ChatStore) MarkStreaming(id RequestID, msgID string) error {
	return s.mutateStatus(func() error {
		if err := s.owns(id); err != nil {
			return err
		}
		if s.req.Status == model.StatusStreaming && s.req.StreamingMessageID == msgID {
			return nil
		}
		if err := s.transition(model.StatusStreaming); err != nil {
			return err
		}
		s.req.StreamingMessageID = msgID
		return nil
	})
}

// Finish marks the request successful.
func (s *ChatStore) Finish(id RequestID) error {
	return s.mutateStatus(func() error {
		if err := s.owns(id); err != nil {
			return err
		}
		if err := s.transition(model.StatusSuccess); err != nil {
			return err
		}
		s.req.StreamingMessageID = ""
		return nil
	})
}

// Fail marks the request failed with a message for the UI.
func (s *ChatStore) Fail(id RequestID, message string) error {
	return s.mutateStatus(func() error {
		if err := s.owns(id); err != nil {
			return err
		}
		if err := s.transition(model.StatusError); err != nil {
			return err
		}
		s.req.StreamingMessageID = ""
		s.req.LastError = message
		return nil
	})
}

// Abort cancels whatever request is in flight and forces idle. It reports
// whether anything was aborted; with nothing in flight it does nothing, so
// success and error remain as they were.
func (s *ChatStore) Abort() bool {
	return s.abort(func() bool { return true })
}

// AbortRequest is Abort limited to request id. It does nothing once a newer
// request has begun.
func (s *ChatStore) AbortRequest(id RequestID) bool {
	return s.abort(func() bool { return s.owns(id) == nil })
}

func (s *ChatStore) abort(applies func() bool) bool {
	s.mu.Lock()
	if !s.req.Status.Busy() || !applies() {
		s.mu.Unlock()
		return false
	}
	cancel := s.cancel
	s.cancel = nil
	s.req.Status = model.StatusIdle
	s.req.StreamingMessageID = ""
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if config.Debug {
		config.DebugLog.Debugf("[Store] request aborted")
	}
	s.notify()
	return true
}

// EndRequest releases request id's cancel func once the orchestrator is
// done with it. A newer request's cancel func is left alone.
func (s *ChatStore) EndRequest(id RequestID) {
	s.mu.Lock()
	var cancel context.CancelFunc
	if s.owns(id) == nil {
		cancel = s.cancel
		s.cancel = nil
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func sortedByUpdate(convs []model.Conversation) []model.Conversation {
	out := slices.Clone(convs)
	slices.SortStableFunc(out, func(a, b model.Conversation) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return out
}

func cloneConversation(c model.Conversation) model.Conversation {
	c.Messages = slices.Clone(c.Messages)
	for i := range c.Messages {
		c.Messages[i].ToolCalls = slices.Clone(c.Messages[i].ToolCalls)
	}
	return c
}

// cloneChatDocument copies everything mutations write in place. Pointer
// fields are only ever replaced, never written through.
func cloneChatDocument(doc storage.ChatDocument) storage.ChatDocument {
	doc.Conversations = slices.Clone(doc.Conversations)
	for i := range doc.Conversations {
		doc.Conversations[i] = cloneConversation(doc.Conversations[i])
	}
	return doc
}
