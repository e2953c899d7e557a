// Package domain contains core concepts of the chat relay.
// This file defines Message records and related rules.
// Messages are immutable once stored and ordered by creation time.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents an immutable chat record belonging to one room.
// Content and ImageURL are both optional but at least one must be set.
type Message struct {
	ID       uuid.UUID `json:"id"`
	Room     string    `json:"roomName"`
	Author   string    `json:"userName"`
	Content  string    `json:"message,omitempty"`
	ImageURL string    `json:"imageUrl,omitempty"`
	At       time.Time `json:"createdAt"`
}

// Empty reports whether the message carries neither text nor an image.
func (m Message) Empty() bool {
	return m.Content == "" && m.ImageURL == ""
}
