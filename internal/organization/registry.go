// Package organization holds the name-indexed set of organizations. An
// organization is an isolated messaging namespace; names are unique and
// compared case-sensitively.
package organization

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// maxIDAttempts bounds retries when the generator hands out an id already in use.
const maxIDAttempts = 8

// RoomSet is the set of room identifiers of an organization. It encodes as a
// JSON array, empty when there are no rooms.
type RoomSet map[string]struct{}

func (s RoomSet) MarshalJSON() ([]byte, error) {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return json.Marshal(ids)
}

func (s *RoomSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	set := make(RoomSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	*s = set
	return nil
}

// Organization is a messaging namespace. Namespace and Rooms are reserved
// for routing and are always empty.
type Organization struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Namespace string  `json:"namespace"`
	Rooms     RoomSet `json:"rooms"`
}

func (o *Organization) clone() Organization {
	c := *o
	c.Rooms = make(RoomSet, len(o.Rooms))
	for id := range o.Rooms {
		c.Rooms[id] = struct{}{}
	}
	return c
}

// IDGenerator produces organization identifiers.
type IDGenerator func() string

type Option func(*Registry)

// WithIDGenerator overrides the default UUID generator.
func WithIDGenerator(gen IDGenerator) Option {
	return func(r *Registry) {
		if gen != nil {
			r.newID = gen
		}
	}
}

// Registry stores organizations by id with an explicit name index. Entries
// are never removed.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*Organization
	byName map[string]string
	newID  IDGenerator
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		byID:   make(map[string]*Organization),
		byName: make(map[string]string),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FindOrCreate returns the organization called name, creating it when it does
// not exist yet. created reports whether this call inserted it. Lookup and
// insert share one critical section, so concurrent callers for the same name
// all observe the first caller's organization.
func (r *Registry) FindOrCreate(name string) (org Organization, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byName[name]; ok {
		return r.byID[id].clone(), false
	}

	o := &Organization{
		ID:    r.allocateID(),
		Name:  name,
		Rooms: make(RoomSet),
	}
	r.byID[o.ID] = o
	r.byName[name] = o.ID
	return o.clone(), true
}

// allocateID must be called with mu held.
func (r *Registry) allocateID() string {
	for range maxIDAttempts {
		id := r.newID()
		if _, taken := r.byID[id]; !taken && id != "" {
			return id
		}
	}
	panic(fmt.Sprintf("organization: id generator produced %d unusable ids in a row", maxIDAttempts))
}

func (r *Registry) Get(id string) (Organization, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.byID[id]
	if !ok {
		return Organization{}, false
	}
	return o.clone(), true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
