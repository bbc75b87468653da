package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"chatdesk/model"
	"chatdesk/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackend(t *testing.T) storage.Store {
	t.Helper()
	s, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func newChatStore(t *testing.T) (*ChatStore, storage.Store) {
	t.Helper()
	backend := newBackend(t)
	s, err := NewChatStore(backend)
	require.NoError(t, err)

	// Deterministic, strictly increasing clock.
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return s, backend
}

var haiku = model.ProviderSelection{ProviderID: "anthropic", ModelID: "claude-3-haiku"}

func TestCreateConversation(t *testing.T) {
	s, _ := newChatStore(t)

	conv, err := s.CreateConversation(haiku)
	require.NoError(t, err)

	assert.Equal(t, model.DefaultConversationTitle, conv.Title)
	assert.Equal(t, "anthropic", conv.ProviderID)
	assert.Equal(t, "claude-3-haiku", conv.ModelID)
	assert.Empty(t, conv.Messages)

	active, ok := s.ActiveConversation()
	require.True(t, ok)
	assert.Equal(t, conv.ID, active.ID)
}

func TestConversationsNewestFirst(t *testing.T) {
	s, _ := newChatStore(t)

	first, err := s.CreateConversation(haiku)
	require.NoError(t, err)
	second, err := s.CreateConversation(haiku)
	require.NoError(t, err)

	ids := func() []string {
		var out []string
		for _, c := range s.Conversations() {
			out = append(out, c.ID)
		}
		return out
	}
	assert.Equal(t, []string{second.ID, first.ID}, ids())

	_, err = s.AddMessage(first.ID, model.RoleUser, "bump")
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID, second.ID}, ids())
}

func TestAddMessageDerivesTitle(t *testing.T) {
	s, _ := newChatStore(t)
	conv, err := s.CreateConversation(haiku)
	require.NoError(t, err)

	_, err = s.AddMessage(conv.ID, model.RoleUser, "Explain quantum computing in simple terms please")
	require.NoError(t, err)
	_, err = s.AddMessage(conv.ID, model.RoleUser, "And now something else")
	require.NoError(t, err)

	got, ok := s.Conversation(conv.ID)
	require.True(t, ok)
	assert.Equal(t, "Explain quantum comp...", got.Title)
	assert.Len(t, got.Messages, 2)
}

func TestRenameLocksTitle(t *testing.T) {
	s, _ := newChatStore(t)
	conv, err := s.CreateConversation(haiku)
	require.NoError(t, err)

	require.NoError(t, s.RenameConversation(conv.ID, "  Physics  "))
	assert.ErrorIs(t, s.RenameConversation(conv.ID, " "), ErrEmptyTitle)

	_, err = s.AddMessage(conv.ID, model.RoleUser, "Explain quantum computing")
	require.NoError(t, err)

	got, _ := s.Conversation(conv.ID)
	assert.Equal(t, "Physics", got.Title)

	require.NoError(t, s.ClearMessages(conv.ID))
	got, _ = s.Conversation(conv.ID)
	assert.Equal(t, "Physics", got.Title)
	assert.Empty(t, got.Messages)
}

func TestUpdateMessageContentTailOnly(t *testing.T) {
	s, _ := newChatStore(t)
	conv, err := s.CreateConversation(haiku)
	require.NoError(t, err)

	user, err := s.AddMessage(conv.ID, model.RoleUser, "Hi")
	require.NoError(t, err)
	reply, err := s.AddMessage(conv.ID, model.RoleAssistant, "Hel")
	require.NoError(t, err)

	require.NoError(t, s.UpdateMessageContent(conv.ID, reply.ID, "Hello"))
	assert.ErrorIs(t, s.UpdateMessageContent(conv.ID, user.ID, "edited"), ErrNotTailMessage)
	assert.ErrorIs(t, s.UpdateMessageContent(conv.ID, "missing", "x"), ErrMessageNotFound)
	assert.ErrorIs(t, s.UpdateMessageContent("missing", reply.ID, "x"), ErrConversationNotFound)

	got, _ := s.Conversation(conv.ID)
	last := got.Messages[len(got.Messages)-1]
	assert.Equal(t, "Hello", last.Content)
	assert.True(t, last.Timestamp.After(reply.Timestamp), "timestamp should be refreshed")
}

func TestTrimAfter(t *testing.T) {
	s, _ := newChatStore(t)
	conv, err := s.CreateConversation(haiku)
	require.NoError(t, err)

	user, err := s.AddMessage(conv.ID, model.RoleUser, "Hi")
	require.NoError(t, err)
	_, err = s.AddMessage(conv.ID, model.RoleAssistant, "\n\n⚠️ Error: boom")
	require.NoError(t, err)

	require.NoError(t, s.TrimAfter(conv.ID, user.ID))
	got, _ := s.Conversation(conv.ID)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, user.ID, got.Messages[0].ID)
}

func TestDeleteConversationMovesActive(t *testing.T) {
	s, _ := newChatStore(t)
	older, err := s.CreateConversation(haiku)
	require.NoError(t, err)
	newer, err := s.CreateConversation(haiku)
	require.NoError(t, err)

	require.NoError(t, s.DeleteConversation(newer.ID))
	active, ok := s.ActiveConversation()
	require.True(t, ok)
	assert.Equal(t, older.ID, active.ID)

	require.NoError(t, s.DeleteConversation(older.ID))
	_, ok = s.ActiveConversation()
	assert.False(t, ok)

	assert.ErrorIs(t, s.DeleteConversation(older.ID), ErrConversationNotFound)
}

func TestConversationCopiesAreIndependent(t *testing.T) {
	s, _ := newChatStore(t)
	conv, err := s.CreateConversation(haiku)
	require.NoError(t, err)
	_, err = s.AddMessage(conv.ID, model.RoleUser, "Hi")
	require.NoError(t, err)

	got, _ := s.Conversation(conv.ID)
	got.Messages[0].Content = "tampered"

	again, _ := s.Conversation(conv.ID)
	assert.Equal(t, "Hi", again.Messages[0].Content)
}

func TestChatStatePersists(t *testing.T) {
	s, backend := newChatStore(t)
	conv, err := s.CreateConversation(haiku)
	require.NoError(t, err)
	_, err = s.AddMessage(conv.ID, model.RoleUser, "Hi")
	require.NoError(t, err)
	require.NoError(t, s.UpdateConversationSettings(conv.ID, ConversationSettings{SystemPrompt: "Be brief.", MaxTurns: 3}))

	settings := s.DefaultSettings()
	settings.Stream = false
	require.NoError(t, s.UpdateDefaultSettings(settings))

	begin(t, s, func() {})

	reloaded, err := NewChatStore(backend)
	require.NoError(t, err)

	got, ok := reloaded.ActiveConversation()
	require.True(t, ok)
	assert.Equal(t, conv.ID, got.ID)
	assert.Equal(t, "Be brief.", got.SystemPrompt)
	assert.Equal(t, 3, got.MaxTurns)
	require.Len(t, got.Messages, 1)
	assert.False(t, reloaded.DefaultSettings().Stream)

	// Request status is transient.
	assert.Equal(t, model.StatusIdle, reloaded.Status())
}

// begin starts a request and fails the test if the store refuses it.
func begin(t *testing.T, s *ChatStore, cancel context.CancelFunc) RequestID {
	t.Helper()
	id, err := s.BeginRequest(cancel)
	require.NoError(t, err)
	require.NotZero(t, id)
	return id
}

func TestStatusLifecycle(t *testing.T) {
	s, _ := newChatStore(t)
	assert.Equal(t, model.StatusIdle, s.Status())

	id := begin(t, s, func() {})
	assert.Equal(t, model.StatusLoading, s.Status())

	require.NoError(t, s.MarkStreaming(id, "m1"))
	require.NoError(t, s.MarkStreaming(id, "m1"))
	assert.Equal(t, model.StatusStreaming, s.Status())
	assert.Equal(t, "m1", s.StreamingMessageID())

	require.NoError(t, s.Finish(id))
	assert.Equal(t, model.StatusSuccess, s.Status())
	assert.Empty(t, s.StreamingMessageID())

	id = begin(t, s, func() {})
	require.NoError(t, s.Fail(id, "rate limited"))
	assert.Equal(t, model.StatusError, s.Status())
	assert.Equal(t, "rate limited", s.LastError())

	// A new request clears the previous error.
	begin(t, s, func() {})
	assert.Empty(t, s.LastError())
}

func TestInvalidTransitions(t *testing.T) {
	s, _ := newChatStore(t)

	id := begin(t, s, func() {})
	require.True(t, s.Abort())
	assert.ErrorIs(t, s.MarkStreaming(id, "m1"), ErrInvalidTransition)
	assert.ErrorIs(t, s.Finish(id), ErrInvalidTransition)

	id = begin(t, s, func() {})
	require.NoError(t, s.Finish(id))
	assert.ErrorIs(t, s.MarkStreaming(id, "m1"), ErrInvalidTransition)
	assert.ErrorIs(t, s.Fail(id, "x"), ErrInvalidTransition)
}

func TestBeginRequestRejectsWhileBusy(t *testing.T) {
	s, _ := newChatStore(t)

	id := begin(t, s, func() {})
	_, err := s.BeginRequest(func() {})
	assert.ErrorIs(t, err, ErrRequestInFlight)

	require.NoError(t, s.MarkStreaming(id, "m1"))
	_, err = s.BeginRequest(func() {})
	assert.ErrorIs(t, err, ErrRequestInFlight)
}

func TestAbort(t *testing.T) {
	s, _ := newChatStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	id := begin(t, s, cancel)
	require.NoError(t, s.MarkStreaming(id, "m1"))

	assert.True(t, s.Abort())
	assert.Error(t, ctx.Err(), "abort should cancel the request context")
	assert.Equal(t, model.StatusIdle, s.Status())
	assert.Empty(t, s.StreamingMessageID())

	assert.False(t, s.Abort(), "second abort is a no-op")
	assert.False(t, s.AbortRequest(id))
	assert.Equal(t, model.StatusIdle, s.Status())
}

func TestAbortLeavesTerminalStatus(t *testing.T) {
	s, _ := newChatStore(t)

	id := begin(t, s, func() {})
	require.NoError(t, s.Fail(id, "boom"))

	assert.False(t, s.Abort())
	assert.Equal(t, model.StatusError, s.Status())
	assert.Equal(t, "boom", s.LastError())

	id = begin(t, s, func() {})
	require.NoError(t, s.Finish(id))
	assert.False(t, s.Abort())
	assert.Equal(t, model.StatusSuccess, s.Status())
}

func TestSupersededRequestCannotTouchNewOne(t *testing.T) {
	s, _ := newChatStore(t)

	first := begin(t, s, func() {})
	require.True(t, s.Abort())

	ctx, cancel := context.WithCancel(context.Background())
	second := begin(t, s, cancel)
	require.NoError(t, s.MarkStreaming(second, "m2"))

	// The first request unwinding must leave the second one alone.
	assert.False(t, s.AbortRequest(first))
	s.EndRequest(first)
	assert.ErrorIs(t, s.Finish(first), ErrStaleRequest)
	assert.ErrorIs(t, s.Fail(first, "late"), ErrStaleRequest)
	assert.ErrorIs(t, s.MarkStreaming(first, "m1"), ErrStaleRequest)

	assert.NoError(t, ctx.Err())
	assert.Equal(t, model.StatusStreaming, s.Status())
	assert.Equal(t, "m2", s.StreamingMessageID())
	assert.Empty(t, s.LastError())

	assert.True(t, s.AbortRequest(second))
	assert.Error(t, ctx.Err())
}

func TestEndRequestReleasesCancel(t *testing.T) {
	s, _ := newChatStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	id := begin(t, s, cancel)
	require.NoError(t, s.Finish(id))
	s.EndRequest(id)
	assert.Error(t, ctx.Err())
}

func TestSubscribe(t *testing.T) {
	s, _ := newChatStore(t)

	calls := 0
	unsubscribe := s.Subscribe(func() {
		calls++
		// Subscribers run outside the lock and may read the store.
		_ = s.Conversations()
	})

	conv, err := s.CreateConversation(haiku)
	require.NoError(t, err)
	begin(t, s, func() {})
	assert.Equal(t, 2, calls)

	// Rejected mutations do not notify.
	_, err = s.BeginRequest(func() {})
	assert.Error(t, err)
	assert.Equal(t, 2, calls)

	unsubscribe()
	_, err = s.AddMessage(conv.ID, model.RoleUser, "Hi")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestSearchConversationsThroughStore(t *testing.T) {
	s, _ := newChatStore(t)
	conv, err := s.CreateConversation(haiku)
	require.NoError(t, err)
	_, err = s.AddMessage(conv.ID, model.RoleUser, "Tell me about goroutines")
	require.NoError(t, err)

	matches := s.SearchConversations("goroutines")
	require.NotEmpty(t, matches)
	assert.Equal(t, conv.ID, matches[0].ConversationID)
}

// flakyBackend wraps a real store and fails every Save while broken is set.
type flakyBackend struct {
	storage.Store
	broken bool
}

var errDiskFull = errors.New("disk full")

func (b *flakyBackend) Save(key string, v any) error {
	if b.broken {
		return errDiskFull
	}
	return b.Store.Save(key, v)
}

func TestFailedSaveRollsBackChatState(t *testing.T) {
	backend := &flakyBackend{Store: newBackend(t)}
	s, err := NewChatStore(backend)
	require.NoError(t, err)

	conv, err := s.CreateConversation(haiku)
	require.NoError(t, err)
	_, err = s.AddMessage(conv.ID, model.RoleUser, "Hello")
	require.NoError(t, err)

	calls := 0
	defer s.Subscribe(func() { calls++ })()

	backend.broken = true
	_, err = s.AddMessage(conv.ID, model.RoleAssistant, "lost")
	require.ErrorIs(t, err, errDiskFull)
	_, err = s.CreateConversation(haiku)
	require.ErrorIs(t, err, errDiskFull)
	assert.Zero(t, calls, "rolled back mutations do not notify")

	got, ok := s.Conversation(conv.ID)
	require.True(t, ok)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "Hello", got.Messages[0].Content)
	assert.Len(t, s.Conversations(), 1)

	// Memory and disk agree once saving works again.
	backend.broken = false
	reloaded, err := NewChatStore(backend)
	require.NoError(t, err)
	again, ok := reloaded.Conversation(conv.ID)
	require.True(t, ok)
	require.Len(t, again.Messages, 1)
	assert.Equal(t, "Hello", again.Messages[0].Content)
}

func TestFailedSaveRollsBackInPlaceEdit(t *testing.T) {
	backend := &flakyBackend{Store: newBackend(t)}
	s, err := NewChatStore(backend)
	require.NoError(t, err)

	conv, err := s.CreateConversation(haiku)
	require.NoError(t, err)
	msg, err := s.AddMessage(conv.ID, model.RoleAssistant, "partial")
	require.NoError(t, err)

	backend.broken = true
	require.ErrorIs(t, s.UpdateMessageContent(conv.ID, msg.ID, "partial and more"), errDiskFull)

	got, _ := s.Conversation(conv.ID)
	assert.Equal(t, "partial", got.Messages[0].Content)
}
