package runtime

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	chaterrors "chat-relay/errors"
)

// State is the lifecycle position of one connection session.
type State int

const (
	StateConnected State = iota
	StateInRoom
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateInRoom:
		return "in-room"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Session is the per-connection state machine:
// Connected -> InRoom -> Disconnected (terminal).
// All observable effects go out as broadcast events; the sender sees them
// too, being a member of the room it joined.
type Session struct {
	id   domain.ConnID
	sink contract.EventSink
	orch *Orchestrator
	log  *slog.Logger

	mu    sync.Mutex
	state State
	room  string
	user  string
}

// NewSession starts a session for a newly established connection and
// attaches its sink so global broadcasts reach it immediately.
func (o *Orchestrator) NewSession(sink contract.EventSink) *Session {
	id := uuid.New()
	o.Attach(id, sink)
	return &Session{
		id:    id,
		sink:  sink,
		orch:  o,
		log:   o.log.With("conn", id.String()),
		state: StateConnected,
	}
}

func (s *Session) ID() domain.ConnID { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Join binds the connection to a room. The durable room is created on
// first join, the display name recorded on it, then the room is told
// about the newcomer and its new count, and the joining connection alone
// receives the room history.
func (s *Session) Join(cmd domain.JoinRoomCommand) error {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return chaterrors.ErrSessionTerminated
	}
	s.mu.Unlock()

	if _, err := s.orch.rooms.FindRoom(cmd.RoomName); err != nil {
		if !errors.Is(err, chaterrors.ErrRoomNotFound) {
			return err
		}
		if _, err := s.orch.rooms.CreateRoom(cmd.RoomName); err != nil {
			return err
		}
	}
	if _, err := s.orch.rooms.AddUserToRoom(cmd.RoomName, cmd.UserName); err != nil {
		return err
	}

	s.orch.registry.Subscribe(s.id, cmd.RoomName, s.sink)
	count := s.orch.tracker.Join(cmd.RoomName, s.id, cmd.UserName)

	s.mu.Lock()
	s.state = StateInRoom
	s.room = cmd.RoomName
	s.user = cmd.UserName
	s.mu.Unlock()

	s.orch.Publish(event.UserJoined{UserName: cmd.UserName, Room: cmd.RoomName})
	s.orch.Publish(event.RoomUserCount{Room: cmd.RoomName, Count: count})

	history, err := s.orch.messages.ListMessages(cmd.RoomName)
	if err != nil {
		return fmt.Errorf("loading history for %s: %w", cmd.RoomName, err)
	}
	s.orch.Publish(event.ChatHistory{Conn: s.id, Messages: history})

	s.log.Info("Joined room", "room", cmd.RoomName, "user", cmd.UserName, "count", count)
	return nil
}

// Send persists a message and broadcasts the stored record, durable ID
// included, to the room. Sends are only accepted for the room this
// connection actually joined; the room name in the payload is not trusted.
func (s *Session) Send(cmd domain.SendMessageCommand) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state == StateDisconnected {
		return chaterrors.ErrSessionTerminated
	}
	if state != StateInRoom || !s.orch.registry.Member(s.id, cmd.RoomName) {
		return chaterrors.ErrNotInRoom
	}

	msg := domain.Message{
		Room:     cmd.RoomName,
		Author:   cmd.UserName,
		Content:  cmd.Message,
		ImageURL: cmd.ImageURL,
		At:       time.Now().UTC(),
	}
	if msg.Empty() {
		return chaterrors.ErrEmptyMessage
	}

	stored, err := s.orch.messages.AppendMessage(msg)
	if err != nil {
		return fmt.Errorf("persisting message: %w", err)
	}
	// Round-trip through the store so the broadcast record is exactly
	// what later history fetches will return.
	stored, err = s.orch.messages.GetMessage(stored.ID.String())
	if err != nil {
		return fmt.Errorf("reloading stored message: %w", err)
	}

	s.orch.Publish(event.MessagePosted{Message: stored})
	return nil
}

// Typing marks the user as typing and broadcasts the resulting set.
func (s *Session) Typing(cmd domain.TypingCommand) error {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return chaterrors.ErrSessionTerminated
	}
	room := s.room
	s.mu.Unlock()

	// In per-room mode a connection that never joined has no room to
	// scope the broadcast to, so the indicator is dropped.
	if s.orch.tracker.PerRoomTyping() && room == "" {
		return nil
	}

	s.orch.tracker.MarkTyping(cmd.UserName, room)
	s.publishTyping(room)
	return nil
}

// StoppedTyping clears the user's typing mark. If the user was not marked
// nothing is broadcast.
func (s *Session) StoppedTyping(cmd domain.StoppedTypingCommand) error {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return chaterrors.ErrSessionTerminated
	}
	room := s.room
	s.mu.Unlock()

	if s.orch.tracker.PerRoomTyping() && room == "" {
		return nil
	}
	if !s.orch.tracker.ClearTyping(cmd.UserName, room) {
		return nil
	}
	s.publishTyping(room)
	return nil
}

// Disconnect is the terminal transition. In the default global typing
// mode it empties the whole typing set and announces that to everyone,
// reproducing the original relay's behavior; the per-room mode clears
// only this session's user. Presence is then dropped in every room the
// connection was counted in, each with a fresh count broadcast.
// Safe to call more than once.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.state = StateDisconnected
	room := s.room
	user := s.user
	s.mu.Unlock()

	if s.orch.tracker.PerRoomTyping() {
		if user != "" && s.orch.tracker.ClearTyping(user, room) {
			s.publishTyping(room)
		}
	} else {
		s.orch.tracker.ClearAllTyping()
		s.orch.Publish(event.TypingUsers{Users: []string{}})
	}

	for _, rc := range s.orch.tracker.Leave(s.id) {
		s.orch.Publish(event.RoomUserCount{Room: rc.Room, Count: rc.Count})
	}

	s.orch.registry.Unsubscribe(s.id)
	s.log.Info("Disconnected", "room", room, "user", user)
}

// publishTyping broadcasts the current typing set. In global mode the
// event has no room and goes to every connection; in per-room mode it is
// scoped to the session's room.
func (s *Session) publishTyping(room string) {
	scope := ""
	if s.orch.tracker.PerRoomTyping() {
		scope = room
	}
	s.orch.Publish(event.TypingUsers{Room: scope, Users: s.orch.tracker.TypingUsers(room)})
}
