package domain

// RoomName is the unique key of a room. Rooms are created on explicit
// request or on first join, and are never deleted by the relay.
type RoomName string

// Room is the durable record of a named room and the display names
// that ever joined it. Display names are not unique.
type Room struct {
	Name  string   `json:"name"`
	Users []string `json:"users"`
}
