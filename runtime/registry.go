package runtime

import (
	"sync"

	"chat-relay/contract"
	"chat-relay/domain"
)

type Set map[domain.ConnID]struct{}

// Registry binds live connections to their delivery sink and to at most
// one room each. Joining another room replaces the previous membership.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[domain.ConnID]contract.EventSink
	roomMembers map[string]Set
	connRoom    map[domain.ConnID]string
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:    make(map[domain.ConnID]contract.EventSink),
		roomMembers: make(map[string]Set),
		connRoom:    make(map[domain.ConnID]string),
	}
}

// Attach registers a connection's sink at transport establishment, before
// any room is joined. Global broadcasts reach every attached connection.
func (r *Registry) Attach(conn domain.ConnID, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[conn] = sink
}

// Subscribe registers the connection's sink and assigns it to a room,
// dropping any previous room assignment first. The room's member set is
// initialized on the fly.
func (r *Registry) Subscribe(conn domain.ConnID, room string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[conn] = sink

	if prev, ok := r.connRoom[conn]; ok && prev != room {
		delete(r.roomMembers[prev], conn)
	}
	if _, ok := r.roomMembers[room]; !ok {
		r.roomMembers[room] = make(Set)
	}
	r.roomMembers[room][conn] = struct{}{}
	r.connRoom[conn] = room
}

// Unsubscribe removes the connection's sink and room membership. Emptied
// member sets are removed so dead rooms don't accumulate here; durable
// rooms and presence entries are unaffected.
func (r *Registry) Unsubscribe(conn domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, conn)

	room, ok := r.connRoom[conn]
	if !ok {
		return
	}
	delete(r.connRoom, conn)

	if members, ok := r.roomMembers[room]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(r.roomMembers, room)
		}
	}
}

// SinksForRoom resolves the delivery set for one room. Returns nil for an
// unknown or empty room.
func (r *Registry) SinksForRoom(room string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.roomMembers[room]
	if !ok {
		return nil
	}
	var sinks []contract.EventSink
	for conn := range members {
		if sink, exists := r.sessions[conn]; exists {
			sinks = append(sinks, sink)
		}
	}
	return sinks
}

// AllSinks resolves every connected sink, regardless of room.
func (r *Registry) AllSinks() []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sinks := make([]contract.EventSink, 0, len(r.sessions))
	for _, sink := range r.sessions {
		sinks = append(sinks, sink)
	}
	return sinks
}

// Sink resolves a single connection's sink.
func (r *Registry) Sink(conn domain.ConnID) (contract.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sink, ok := r.sessions[conn]
	return sink, ok
}

// Member reports whether the connection currently belongs to the room.
func (r *Registry) Member(conn domain.ConnID, room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connRoom[conn] == room
}
