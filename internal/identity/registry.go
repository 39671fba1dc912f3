// Package identity tracks the authentication state of every live connection.
package identity

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrAlreadyConnected = errors.New("identity: connection already registered")
	ErrAlreadyLoggedIn  = errors.New("identity: connection already logged in")
	ErrNotFound         = errors.New("identity: connection not found")
)

// Connection is a snapshot of one participant's connection state.
type Connection struct {
	ID        string
	Connected bool
	LoggedIn  bool
	Username  string
}

// Registry maps connection identifiers to their state. Callers only ever see
// copies; the registry is the single owner of each entry.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Connection)}
}

// OnConnect registers a new anonymous connection.
func (r *Registry) OnConnect(connID string) (Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[connID]; ok {
		return Connection{}, fmt.Errorf("%w: %q", ErrAlreadyConnected, connID)
	}
	c := &Connection{ID: connID, Connected: true}
	r.conns[connID] = c
	return *c, nil
}

// OnDisconnect removes the connection and reports whether it was present.
func (r *Registry) OnDisconnect(connID string) (Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return Connection{}, false
	}
	delete(r.conns, connID)
	removed := *c
	removed.Connected = false
	return removed, true
}

// Login marks the connection authenticated under username. A connection that
// is already logged in keeps its first username and ErrAlreadyLoggedIn is
// returned.
func (r *Registry) Login(connID, username string) (Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return Connection{}, fmt.Errorf("%w: %q", ErrNotFound, connID)
	}
	if c.LoggedIn {
		return *c, fmt.Errorf("%w: %q", ErrAlreadyLoggedIn, connID)
	}
	c.LoggedIn = true
	c.Username = username
	return *c, nil
}

func (r *Registry) Get(connID string) (Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[connID]
	if !ok {
		return Connection{}, fmt.Errorf("%w: %q", ErrNotFound, connID)
	}
	return *c, nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
