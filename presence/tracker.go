// Package presence maintains live room occupancy and the typing set.
// All state is owned by the Tracker and guarded by a mutex: handlers for
// different connections run on real goroutines, so the cooperative
// single-thread assumption of the original relay does not hold here.
package presence

import (
	"sort"
	"sync"

	"chat-relay/domain"
)

// globalScope keys the single typing set used in the default mode.
const globalScope = ""

// RoomCount pairs a room with its live connection count.
type RoomCount struct {
	Room  string
	Count int
}

// Tracker records, per room, the set of active connections, plus the set
// of display names currently typing. Counts are per connection, not per
// display name. Room entries are retained once created, even when empty.
type Tracker struct {
	mu           sync.Mutex
	perRoomScope bool
	rooms        map[string]map[domain.ConnID]string
	typing       map[string]map[string]struct{}
}

// NewTracker builds a Tracker. With perRoomScope false (the default, and
// the behavior of the original relay) typing is one process-wide set;
// with true each room has its own.
func NewTracker(perRoomScope bool) *Tracker {
	return &Tracker{
		perRoomScope: perRoomScope,
		rooms:        make(map[string]map[domain.ConnID]string),
		typing:       make(map[string]map[string]struct{}),
	}
}

// PerRoomTyping reports the configured typing scope.
func (t *Tracker) PerRoomTyping() bool { return t.perRoomScope }

// Join adds the connection to the room's active set, creating the room
// entry on first use, and returns the updated count. Idempotent.
func (t *Tracker) Join(room string, conn domain.ConnID, user string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	members, ok := t.rooms[room]
	if !ok {
		members = make(map[domain.ConnID]string)
		t.rooms[room] = members
	}
	members[conn] = user
	return len(members)
}

// Leave removes the connection from every room it belongs to and returns
// the affected rooms with their updated counts. Emptied room entries are
// kept; sweeping them is out of scope.
func (t *Tracker) Leave(conn domain.ConnID) []RoomCount {
	t.mu.Lock()
	defer t.mu.Unlock()

	var affected []RoomCount
	for room, members := range t.rooms {
		if _, ok := members[conn]; !ok {
			continue
		}
		delete(members, conn)
		affected = append(affected, RoomCount{Room: room, Count: len(members)})
	}
	return affected
}

// Count returns the room's live connection count, zero for unknown rooms.
func (t *Tracker) Count(room string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rooms[room])
}

// MarkTyping records the user as typing. The room argument is ignored in
// global scope.
func (t *Tracker) MarkTyping(user, room string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := t.scopeKey(room)
	set, ok := t.typing[key]
	if !ok {
		set = make(map[string]struct{})
		t.typing[key] = set
	}
	set[user] = struct{}{}
}

// ClearTyping removes the user's typing mark and reports whether the user
// was present. Absent users are a no-op, so callers can skip broadcasting.
func (t *Tracker) ClearTyping(user, room string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.typing[t.scopeKey(room)]
	if !ok {
		return false
	}
	if _, present := set[user]; !present {
		return false
	}
	delete(set, user)
	return true
}

// ClearAllTyping empties every typing set. The original relay does this on
// any disconnect, wiping the marks of users that are still typing.
func (t *Tracker) ClearAllTyping() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.typing = make(map[string]map[string]struct{})
}

// TypingUsers returns the typing set for the room's scope, sorted for a
// stable broadcast order.
func (t *Tracker) TypingUsers(room string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	set := t.typing[t.scopeKey(room)]
	users := make([]string, 0, len(set))
	for user := range set {
		users = append(users, user)
	}
	sort.Strings(users)
	return users
}

func (t *Tracker) scopeKey(room string) string {
	if t.perRoomScope {
		return room
	}
	return globalScope
}
