// Package ws is the WebSocket transport of the relay. Every frame is a
// JSON envelope {"event": name, "data": payload}, in both directions.
package ws

import (
	"encoding/json"
	"fmt"

	"chat-relay/domain"
	"chat-relay/domain/event"
)

// Envelope is the wire frame carrying one event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EncodeEvent renders a domain event into its wire frame. Payload shapes
// follow the protocol: message events carry the full stored record,
// chat-history an array of records, typing_users a bare array of names.
func EncodeEvent(evt event.DomainEvent) ([]byte, error) {
	var payload any
	switch e := evt.(type) {
	case event.MessagePosted:
		payload = e.Message
	case event.ChatHistory:
		messages := e.Messages
		if messages == nil {
			messages = []domain.Message{}
		}
		payload = messages
	case event.TypingUsers:
		users := e.Users
		if users == nil {
			users = []string{}
		}
		payload = users
	default:
		// UserJoined, RoomUserCount, MessageDeleted, ErrorNotice carry
		// their own JSON shape
		payload = evt
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", evt.EventName(), err)
	}
	return json.Marshal(Envelope{Event: evt.EventName(), Data: data})
}

// DecodeCommand parses a client frame into its session command.
func DecodeCommand(frame []byte) (domain.Command, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	switch env.Event {
	case "join-room":
		var cmd domain.JoinRoomCommand
		if err := json.Unmarshal(env.Data, &cmd); err != nil {
			return nil, fmt.Errorf("malformed join-room payload: %w", err)
		}
		return cmd, nil
	case "send-message":
		var cmd domain.SendMessageCommand
		if err := json.Unmarshal(env.Data, &cmd); err != nil {
			return nil, fmt.Errorf("malformed send-message payload: %w", err)
		}
		return cmd, nil
	case "typing":
		user, err := decodeUserName(env.Data)
		if err != nil {
			return nil, fmt.Errorf("malformed typing payload: %w", err)
		}
		return domain.TypingCommand{UserName: user}, nil
	case "stopped_typing":
		user, err := decodeUserName(env.Data)
		if err != nil {
			return nil, fmt.Errorf("malformed stopped_typing payload: %w", err)
		}
		return domain.StoppedTypingCommand{UserName: user}, nil
	default:
		return nil, fmt.Errorf("unknown event %q", env.Event)
	}
}

// decodeUserName accepts both the bare-string payload of the original
// protocol and an {"userName": ...} object.
func decodeUserName(data json.RawMessage) (string, error) {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		return bare, nil
	}
	var obj struct {
		UserName string `json:"userName"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", err
	}
	return obj.UserName, nil
}
