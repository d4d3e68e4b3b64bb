package session

import (
	"log/slog"
	"sync"
)

// Registry maps anonymous users to their session stores.
type Registry struct {
	mu     sync.RWMutex
	stores map[string]*Store
	opts   []Option
}

// NewRegistry creates an empty registry; opts apply to every new store.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{stores: make(map[string]*Store), opts: opts}
}

// For returns the user's store, creating it with one fresh session.
func (r *Registry) For(userID string) *Store {
	r.mu.RLock()
	st, ok := r.stores[userID]
	r.mu.RUnlock()
	if ok {
		return st
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.stores[userID]; ok {
		return st
	}
	st = NewStore(r.opts...)
	st.CreateSession()
	r.stores[userID] = st
	slog.Info("Session store created", "user_id", userID)
	return st
}

// Lookup returns the user's store without creating one.
func (r *Registry) Lookup(userID string) (*Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.stores[userID]
	return st, ok
}

// Drop discards the user's store and closes its listeners.
func (r *Registry) Drop(userID string) {
	r.mu.Lock()
	st, ok := r.stores[userID]
	delete(r.stores, userID)
	r.mu.Unlock()

	if ok {
		st.CloseSubscribers()
		slog.Info("Session store dropped", "user_id", userID)
	}
}

// Len returns the number of live stores.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stores)
}
