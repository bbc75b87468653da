package store

import (
	"testing"
	"time"

	"chatdesk/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppStore(t *testing.T) {
	backend := newBackend(t)
	s, err := NewAppStore(backend)
	require.NoError(t, err)

	state := s.State()
	assert.True(t, state.SidebarOpen)
	assert.True(t, state.IsFirstVisit)

	notified := 0
	s.Subscribe(func() { notified++ })

	require.NoError(t, s.SetSidebarOpen(false))
	require.NoError(t, s.SetLastGreeting("Good morning"))
	require.NoError(t, s.MarkVisited())
	assert.Equal(t, 3, notified)

	reloaded, err := NewAppStore(backend)
	require.NoError(t, err)
	assert.Equal(t, storage.AppDocument{SidebarOpen: false, LastGreeting: "Good morning", IsFirstVisit: false}, reloaded.State())
}

func TestAuthStore(t *testing.T) {
	backend := newBackend(t)
	s, err := NewAuthStore(backend)
	require.NoError(t, err)

	checked := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return checked }

	assert.False(t, s.State().IsLoggedIn)

	require.NoError(t, s.Login("tok-123", storage.AuthUser{ID: "u1", Name: "Sam"}))

	reloaded, err := NewAuthStore(backend)
	require.NoError(t, err)
	state := reloaded.State()
	assert.True(t, state.IsLoggedIn)
	require.NotNil(t, state.Token)
	assert.Equal(t, "tok-123", *state.Token)
	require.NotNil(t, state.User)
	assert.Equal(t, "Sam", state.User.Name)
	require.NotNil(t, state.LastChecked)
	assert.True(t, checked.Equal(*state.LastChecked))

	require.NoError(t, s.Logout())
	state = s.State()
	assert.False(t, state.IsLoggedIn)
	assert.Nil(t, state.Token)
	assert.Nil(t, state.User)
}
