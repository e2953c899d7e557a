// Package event defines the domain events broadcast by the relay and the
// routing scope of each one. Routing is derived from the event shape:
// events exposing a Room are delivered to that room's subscribers, events
// exposing a Target go to a single connection, everything else is global.
package event

import (
	"chat-relay/domain"
)

// DomainEvent is anything the relay fans out to connected clients.
// EventName is the wire-level event name seen by clients.
type DomainEvent interface {
	EventName() string
}

// RoomScoped events are delivered to every subscriber of one room.
type RoomScoped interface {
	DomainEvent
	RoomName() string
}

// DirectScoped events are delivered to exactly one connection.
type DirectScoped interface {
	DomainEvent
	Target() domain.ConnID
}

// MessagePosted carries the full stored record, durable ID included.
type MessagePosted struct {
	Message domain.Message
}

func (e MessagePosted) EventName() string { return "message" }
func (e MessagePosted) RoomName() string  { return e.Message.Room }

// MessageDeleted notifies a room that a persisted message was removed.
type MessageDeleted struct {
	Room      string `json:"roomName"`
	MessageID string `json:"messageId"`
}

func (e MessageDeleted) EventName() string { return "message-deleted" }
func (e MessageDeleted) RoomName() string  { return e.Room }

// UserJoined announces a new participant to the room.
type UserJoined struct {
	UserName string `json:"userName"`
	Room     string `json:"roomName"`
}

func (e UserJoined) EventName() string { return "joineduser" }
func (e UserJoined) RoomName() string  { return e.Room }

// RoomUserCount carries the live connection count of a room.
type RoomUserCount struct {
	Room  string `json:"roomName"`
	Count int    `json:"count"`
}

func (e RoomUserCount) EventName() string { return "room-user-count" }
func (e RoomUserCount) RoomName() string  { return e.Room }

// ChatHistory delivers a room's persisted messages, ascending by
// timestamp, to the connection that just joined.
type ChatHistory struct {
	Conn     domain.ConnID
	Messages []domain.Message
}

func (e ChatHistory) EventName() string     { return "chat-history" }
func (e ChatHistory) Target() domain.ConnID { return e.Conn }

// TypingUsers carries the current typing set. Room is empty in the
// default global mode, which makes the event global; when typing is
// scoped per room the event is delivered to that room only.
type TypingUsers struct {
	Room  string
	Users []string
}

func (e TypingUsers) EventName() string { return "typing_users" }
func (e TypingUsers) RoomName() string  { return e.Room }

// ErrorNotice reports a rejected command back to its sender only.
type ErrorNotice struct {
	Conn   domain.ConnID `json:"-"`
	Reason string        `json:"error"`
}

func (e ErrorNotice) EventName() string     { return "error" }
func (e ErrorNotice) Target() domain.ConnID { return e.Conn }
