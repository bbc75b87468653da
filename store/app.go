package store

import (
	"fmt"
	"sync"
	"time"

	"chatdesk/storage"
)

// document is a persisted value of type T with no behaviour of its own.
type document[T any] struct {
	notifier

	mu      sync.RWMutex
	backend storage.Store
	key     string
	value   T
}

func loadDocument[T any](backend storage.Store, key string, def T) (*document[T], error) {
	v, err := storage.LoadOrDefault(backend, key, def)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s state: %w", key, err)
	}
	return &document[T]{backend: backend, key: key, value: v}, nil
}

func (d *document[T]) get() T {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.value
}

func (d *document[T]) update(fn func(*T)) error {
	d.mu.Lock()
	next := d.value
	fn(&next)
	if err := d.backend.Save(d.key, next); err != nil {
		d.mu.Unlock()
		return fmt.Errorf("failed to save %s state: %w", d.key, err)
	}
	d.value = next
	d.mu.Unlock()

	d.notify()
	return nil
}

// AppStore holds UI preferences that outlive a session.
type AppStore struct {
	*document[storage.AppDocument]
}

func NewAppStore(backend storage.Store) (*AppStore, error) {
	d, err := loadDocument(backend, storage.KeyApp, storage.DefaultAppDocument())
	if err != nil {
		return nil, err
	}
	return &AppStore{d}, nil
}

func (s *AppStore) State() storage.AppDocument { return s.get() }

func (s *AppStore) SetSidebarOpen(open bool) error {
	return s.update(func(d *storage.AppDocument) { d.SidebarOpen = open })
}

func (s *AppStore) SetLastGreeting(greeting string) error {
	return s.update(func(d *storage.AppDocument) { d.LastGreeting = greeting })
}

// MarkVisited clears the first-visit flag.
func (s *AppStore) MarkVisited() error {
	return s.update(func(d *storage.AppDocument) { d.IsFirstVisit = false })
}

// AuthStore holds the signed-in user, if any. Nothing in chatdesk requires a
// login; the document is kept so an existing auth file survives round trips.
type AuthStore struct {
	*document[storage.AuthDocument]
	now func() time.Time
}

func NewAuthStore(backend storage.Store) (*AuthStore, error) {
	d, err := loadDocument(backend, storage.KeyAuth, storage.DefaultAuthDocument())
	if err != nil {
		return nil, err
	}
	return &AuthStore{document: d, now: time.Now}, nil
}

func (s *AuthStore) State() storage.AuthDocument { return s.get() }

func (s *AuthStore) Login(token string, user storage.AuthUser) error {
	now := s.now()
	return s.update(func(d *storage.AuthDocument) {
		d.IsLoggedIn = true
		d.Token = &token
		d.User = &user
		d.LastChecked = &now
	})
}

func (s *AuthStore) Logout() error {
	return s.update(func(d *storage.AuthDocument) {
		*d = storage.DefaultAuthDocument()
	})
}

// MarkChecked records when the session was last verified.
func (s *AuthStore) MarkChecked() error {
	now := s.now()
	return s.update(func(d *storage.AuthDocument) { d.LastChecked = &now })
}
