package domain

// Command is a client intent dispatched to a connection session.
type Command interface {
	CommandName() string
}

// JoinRoomCommand binds the connection to a room under a display name.
type JoinRoomCommand struct {
	RoomName string `json:"roomName" validate:"required"`
	UserName string `json:"userName" validate:"required"`
}

func (JoinRoomCommand) CommandName() string { return "join-room" }

// SendMessageCommand posts a text and/or image message to a room the
// connection has joined.
type SendMessageCommand struct {
	RoomName string `json:"roomName" validate:"required"`
	UserName string `json:"userName" validate:"required"`
	Message  string `json:"message,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

func (SendMessageCommand) CommandName() string { return "send-message" }

// TypingCommand marks the user as typing.
type TypingCommand struct {
	UserName string `json:"userName" validate:"required"`
}

func (TypingCommand) CommandName() string { return "typing" }

// StoppedTypingCommand clears the user's typing mark.
type StoppedTypingCommand struct {
	UserName string `json:"userName" validate:"required"`
}

func (StoppedTypingCommand) CommandName() string { return "stopped_typing" }
