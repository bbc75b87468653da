// Package store holds chatdesk's in-memory application state: conversations
// and the request status machine, configured providers, and the small app and
// auth documents.
//
// Each store is constructed once at startup around a storage.Store, loads its
// document, and rewrites the whole document after every mutation. State is
// only changed through the stores' methods; readers get copies. Observers
// register with Subscribe and are called after each mutation, outside the
// store's lock, so a subscriber may read the store again.
package store

import (
	"sync"
)

// notifier fans mutation notifications out to subscribers.
type notifier struct {
	mu   sync.Mutex
	next int
	subs map[int]func()
}

// Subscribe registers fn and returns a function that removes it.
func (n *notifier) Subscribe(fn func()) (unsubscribe func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.subs == nil {
		n.subs = make(map[int]func())
	}
	id := n.next
	n.next++
	n.subs[id] = fn

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

func (n *notifier) notify() {
	n.mu.Lock()
	fns := make([]func(), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
