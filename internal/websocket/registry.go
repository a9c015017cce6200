package websocket

import (
	"errors"
	"slices"
	"sync"

	"github.com/samber/lo"
)

var ErrRegistryClosed = errors.New("registry closed")

// Registry maps group names to the sessions currently connected to them.
// Lock order is Registry.mu, then groupMembers.mu.
type Registry struct {
	mu     sync.RWMutex
	groups map[string]*groupMembers
	closed bool
}

// groupMembers serializes membership changes and fan-out for one group, so a
// publish sees either all of a registration or none of it.
type groupMembers struct {
	mu       sync.Mutex
	sessions map[*Session]struct{}
}

func NewRegistry() *Registry {
	return &Registry{groups: make(map[string]*groupMembers)}
}

func (r *Registry) Register(group string, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}

	members, ok := r.groups[group]
	if !ok {
		members = &groupMembers{sessions: make(map[*Session]struct{})}
		r.groups[group] = members
	}

	members.mu.Lock()
	members.sessions[s] = struct{}{}
	members.mu.Unlock()
	return nil
}

// Deregister is idempotent. Empty groups are kept.
func (r *Registry) Deregister(group string, s *Session) {
	members := r.lookup(group)
	if members == nil {
		return
	}

	members.mu.Lock()
	delete(members.sessions, s)
	members.mu.Unlock()
}

func (r *Registry) Members(group string) []*Session {
	members := r.lookup(group)
	if members == nil {
		return nil
	}

	members.mu.Lock()
	defer members.mu.Unlock()
	return lo.Keys(members.sessions)
}

func (r *Registry) Count(group string) int {
	members := r.lookup(group)
	if members == nil {
		return 0
	}

	members.mu.Lock()
	defer members.mu.Unlock()
	return len(members.sessions)
}

// Groups lists every group that has been registered to, sorted.
func (r *Registry) Groups() []string {
	r.mu.RLock()
	names := lo.Keys(r.groups)
	r.mu.RUnlock()

	slices.Sort(names)
	return names
}

// Close refuses further registrations and returns every session still
// registered so the caller can disconnect them.
func (r *Registry) Close() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	var sessions []*Session
	for _, members := range r.groups {
		members.mu.Lock()
		sessions = append(sessions, lo.Keys(members.sessions)...)
		members.mu.Unlock()
	}
	return sessions
}

// fanout enqueues frame on every member while holding the group lock and
// returns the sessions whose queue was full.
func (r *Registry) fanout(group string, frame []byte) (delivered int, failed []*Session) {
	members := r.lookup(group)
	if members == nil {
		return 0, nil
	}

	members.mu.Lock()
	defer members.mu.Unlock()

	for s := range members.sessions {
		if s.enqueue(frame) {
			delivered++
		} else {
			failed = append(failed, s)
		}
	}
	return delivered, failed
}

func (r *Registry) lookup(group string) *groupMembers {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.groups[group]
}
