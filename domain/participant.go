// Package domain contains core concepts of the chat relay.
// This file defines Participant identity.
// No runtime, network, or UI logic should be added here.
package domain

import "github.com/google/uuid"

// ConnID identifies one live connection. A participant is the pair of a
// user-chosen display name and the connection carrying it; several
// connections may share a display name.
type ConnID = uuid.UUID

// Participant is one display name occupying a room through one connection.
type Participant struct {
	Conn ConnID
	Name string
}
