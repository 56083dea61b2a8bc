package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/pavelanni/recap/internal/llm"
)

// Entry is an active session with the metadata needed to store its result.
// Conversation is the model context its quiz was generated in.
type Entry struct {
	Session      *Session
	Conversation *llm.Conversation
	Model        string
	Language     string
	Saved        bool
}

// Registry holds the sessions of the web UI, keyed by a random ID.
type Registry struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[uuid.UUID]*Entry)}
}

// Put stores e and returns its new ID.
func (r *Registry) Put(e *Entry) uuid.UUID {
	id := uuid.New()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = e
	return id
}

// Get returns the entry for id, or nil.
func (r *Registry) Get(id uuid.UUID) *Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[id]
}

// MarkSaved flags the entry as persisted. It returns false if it already was.
func (r *Registry) MarkSaved(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.Saved {
		return false
	}
	e.Saved = true
	return true
}

// Delete abandons and removes the entry for id and discards its
// conversation.
func (r *Registry) Delete(id uuid.UUID) {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()
	if !ok {
		return
	}
	e.Session.Abandon()
	if e.Conversation != nil {
		e.Conversation.Reset()
	}
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
