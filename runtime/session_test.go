package runtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"chat-relay/domain"
	"chat-relay/domain/event"
	chaterrors "chat-relay/errors"
	"chat-relay/presence"
	"chat-relay/repositories"
	"chat-relay/runtime/workers"
)

type recordingSink struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (s *recordingSink) Consume(e event.DomainEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) byName(name string) []event.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var got []event.DomainEvent
	for _, e := range s.events {
		if e.EventName() == name {
			got = append(got, e)
		}
	}
	return got
}

func newTestOrchestrator(t *testing.T, perRoomTyping bool) *Orchestrator {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	opts := badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	orch := NewOrchestrator(log, workers.NewSupervisor(log), NewRegistry(),
		presence.NewTracker(perRoomTyping),
		repositories.NewRoomRepository(db, log),
		repositories.NewMessageRepository(db, log, nil), 64)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = orch.Start(ctx) }()
	return orch
}

func waitForEvents(t *testing.T, sink *recordingSink, name string, n int) []event.DomainEvent {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(sink.byName(name)) >= n
	}, 2*time.Second, 5*time.Millisecond, "expected %d %q events", n, name)
	return sink.byName(name)
}

func TestSession_Join_Announces_User_Count_And_History(t *testing.T) {
	req := require.New(t)
	orch := newTestOrchestrator(t, false)
	sinkA := &recordingSink{}
	sinkB := &recordingSink{}

	// Given A alone in the lobby
	sessionA := orch.NewSession(sinkA)
	req.NoError(sessionA.Join(domain.JoinRoomCommand{RoomName: "lobby", UserName: "A"}))
	req.Equal(StateInRoom, sessionA.State())

	// When B joins
	sessionB := orch.NewSession(sinkB)
	req.NoError(sessionB.Join(domain.JoinRoomCommand{RoomName: "lobby", UserName: "B"}))

	// Then the room hears about B and the count reaches 2 for everyone
	joined := waitForEvents(t, sinkA, "joineduser", 2)
	req.Equal("B", joined[1].(event.UserJoined).UserName)

	counts := waitForEvents(t, sinkA, "room-user-count", 2)
	req.Equal(2, counts[1].(event.RoomUserCount).Count)
	waitForEvents(t, sinkB, "room-user-count", 1)

	// And only the joining connection received the history
	waitForEvents(t, sinkB, "chat-history", 1)
	historyA := sinkA.byName("chat-history")
	req.Len(historyA, 1) // A's own join only, not B's
}

func TestSession_Send_Broadcasts_Stored_Record_To_Room(t *testing.T) {
	req := require.New(t)
	orch := newTestOrchestrator(t, false)
	sinkA := &recordingSink{}
	sinkB := &recordingSink{}

	sessionA := orch.NewSession(sinkA)
	req.NoError(sessionA.Join(domain.JoinRoomCommand{RoomName: "lobby", UserName: "A"}))
	sessionB := orch.NewSession(sinkB)
	req.NoError(sessionB.Join(domain.JoinRoomCommand{RoomName: "lobby", UserName: "B"}))

	// When A sends a message
	req.NoError(sessionA.Send(domain.SendMessageCommand{
		RoomName: "lobby", UserName: "A", Message: "hi",
	}))

	// Then both A and B receive the stored record with a durable ID
	for _, sink := range []*recordingSink{sinkA, sinkB} {
		posted := waitForEvents(t, sink, "message", 1)
		msg := posted[0].(event.MessagePosted).Message
		req.Equal("A", msg.Author)
		req.Equal("hi", msg.Content)
		req.NotZero(msg.ID)
	}

	// And a later joiner sees it in history
	sinkC := &recordingSink{}
	sessionC := orch.NewSession(sinkC)
	req.NoError(sessionC.Join(domain.JoinRoomCommand{RoomName: "lobby", UserName: "C"}))
	history := waitForEvents(t, sinkC, "chat-history", 1)
	messages := history[0].(event.ChatHistory).Messages
	req.Len(messages, 1)
	req.Equal("hi", messages[0].Content)
}

func TestSession_Send_Requires_Membership_Of_The_Named_Room(t *testing.T) {
	req := require.New(t)
	orch := newTestOrchestrator(t, false)
	session := orch.NewSession(&recordingSink{})

	// Sending before any join is refused
	err := session.Send(domain.SendMessageCommand{RoomName: "lobby", UserName: "A", Message: "hi"})
	req.True(errors.Is(err, chaterrors.ErrNotInRoom))

	// Sending to a different room than the one joined is refused too:
	// the payload's room name is not trusted
	req.NoError(session.Join(domain.JoinRoomCommand{RoomName: "lobby", UserName: "A"}))
	err = session.Send(domain.SendMessageCommand{RoomName: "games", UserName: "A", Message: "hi"})
	req.True(errors.Is(err, chaterrors.ErrNotInRoom))
}

func TestSession_Send_Requires_Text_Or_Image(t *testing.T) {
	req := require.New(t)
	orch := newTestOrchestrator(t, false)
	session := orch.NewSession(&recordingSink{})
	req.NoError(session.Join(domain.JoinRoomCommand{RoomName: "lobby", UserName: "A"}))

	err := session.Send(domain.SendMessageCommand{RoomName: "lobby", UserName: "A"})
	req.True(errors.Is(err, chaterrors.ErrEmptyMessage))

	// An image reference alone is enough
	req.NoError(session.Send(domain.SendMessageCommand{
		RoomName: "lobby", UserName: "A", ImageURL: "/uploads/pic.png",
	}))
}

func TestSession_Typing_Lifecycle(t *testing.T) {
	req := require.New(t)
	orch := newTestOrchestrator(t, false)
	sinkA := &recordingSink{}
	sinkB := &recordingSink{}

	sessionA := orch.NewSession(sinkA)
	req.NoError(sessionA.Join(domain.JoinRoomCommand{RoomName: "lobby", UserName: "A"}))

	// The typing list is global: a connection that never joined any room
	// still receives it
	orch.NewSession(sinkB)

	req.NoError(sessionA.Typing(domain.TypingCommand{UserName: "A"}))
	for _, sink := range []*recordingSink{sinkA, sinkB} {
		typing := waitForEvents(t, sink, "typing_users", 1)
		req.Equal([]string{"A"}, typing[0].(event.TypingUsers).Users)
	}

	// Stopping typing for a user that never typed broadcasts nothing
	req.NoError(sessionA.StoppedTyping(domain.StoppedTypingCommand{UserName: "Z"}))

	// Stopping for the typing user broadcasts the emptied set
	req.NoError(sessionA.StoppedTyping(domain.StoppedTypingCommand{UserName: "A"}))
	typing := waitForEvents(t, sinkB, "typing_users", 2)
	req.Empty(typing[1].(event.TypingUsers).Users)
	// The "Z" no-op produced no event in between
	req.Len(typing, 2)
}

func TestSession_Disconnect_Clears_All_Typing_And_Presence(t *testing.T) {
	req := require.New(t)
	orch := newTestOrchestrator(t, false)
	sinkA := &recordingSink{}
	sinkB := &recordingSink{}

	sessionA := orch.NewSession(sinkA)
	req.NoError(sessionA.Join(domain.JoinRoomCommand{RoomName: "lobby", UserName: "A"}))
	sessionB := orch.NewSession(sinkB)
	req.NoError(sessionB.Join(domain.JoinRoomCommand{RoomName: "lobby", UserName: "B"}))

	// Given both users are typing
	req.NoError(sessionA.Typing(domain.TypingCommand{UserName: "A"}))
	req.NoError(sessionB.Typing(domain.TypingCommand{UserName: "B"}))
	waitForEvents(t, sinkB, "typing_users", 2)

	// When A disconnects
	sessionA.Disconnect()
	req.Equal(StateDisconnected, sessionA.State())

	// Then the whole typing set is wiped, B's mark included
	typing := waitForEvents(t, sinkB, "typing_users", 3)
	req.Empty(typing[2].(event.TypingUsers).Users)

	// And the room count drops by exactly one
	counts := waitForEvents(t, sinkB, "room-user-count", 2)
	req.Equal(1, counts[len(counts)-1].(event.RoomUserCount).Count)

	// Disconnect is idempotent and later commands are refused
	sessionA.Disconnect()
	err := sessionA.Typing(domain.TypingCommand{UserName: "A"})
	req.True(errors.Is(err, chaterrors.ErrSessionTerminated))
}

func TestSession_Disconnect_PerRoom_Mode_Clears_Only_Its_User(t *testing.T) {
	req := require.New(t)
	orch := newTestOrchestrator(t, true)
	sinkA := &recordingSink{}
	sinkB := &recordingSink{}

	sessionA := orch.NewSession(sinkA)
	req.NoError(sessionA.Join(domain.JoinRoomCommand{RoomName: "lobby", UserName: "A"}))
	sessionB := orch.NewSession(sinkB)
	req.NoError(sessionB.Join(domain.JoinRoomCommand{RoomName: "lobby", UserName: "B"}))

	req.NoError(sessionA.Typing(domain.TypingCommand{UserName: "A"}))
	req.NoError(sessionB.Typing(domain.TypingCommand{UserName: "B"}))
	waitForEvents(t, sinkB, "typing_users", 2)

	// When A disconnects, only A's mark goes away
	sessionA.Disconnect()
	typing := waitForEvents(t, sinkB, "typing_users", 3)
	req.Equal([]string{"B"}, typing[2].(event.TypingUsers).Users)
}

func TestSession_PerRoom_Mode_Drops_Typing_Before_Join(t *testing.T) {
	req := require.New(t)
	orch := newTestOrchestrator(t, true)
	sinkA := &recordingSink{}
	sinkB := &recordingSink{}

	sessionA := orch.NewSession(sinkA)
	req.NoError(sessionA.Join(domain.JoinRoomCommand{RoomName: "lobby", UserName: "A"}))

	// Given a connection that types without having joined any room
	sessionB := orch.NewSession(sinkB)
	req.NoError(sessionB.Typing(domain.TypingCommand{UserName: "B"}))
	req.NoError(sessionB.StoppedTyping(domain.StoppedTypingCommand{UserName: "B"}))

	// Then a real typing event from A still works and never includes B
	req.NoError(sessionA.Typing(domain.TypingCommand{UserName: "A"}))
	typing := waitForEvents(t, sinkA, "typing_users", 1)
	req.Equal([]string{"A"}, typing[0].(event.TypingUsers).Users)
	req.Empty(sinkB.byName("typing_users"))
}

func TestSession_Message_Delete_Broadcasts_To_The_Room(t *testing.T) {
	req := require.New(t)
	orch := newTestOrchestrator(t, false)
	sinkA := &recordingSink{}

	sessionA := orch.NewSession(sinkA)
	req.NoError(sessionA.Join(domain.JoinRoomCommand{RoomName: "lobby", UserName: "A"}))
	req.NoError(sessionA.Send(domain.SendMessageCommand{RoomName: "lobby", UserName: "A", Message: "oops"}))

	posted := waitForEvents(t, sinkA, "message", 1)
	id := posted[0].(event.MessagePosted).Message.ID.String()

	// When the message is deleted through the orchestrator
	deleted, err := orch.DeleteMessage(id)
	req.NoError(err)
	req.Equal("oops", deleted.Content)

	// Then the room is notified and history no longer contains it
	gone := waitForEvents(t, sinkA, "message-deleted", 1)
	req.Equal(id, gone[0].(event.MessageDeleted).MessageID)

	sinkC := &recordingSink{}
	sessionC := orch.NewSession(sinkC)
	req.NoError(sessionC.Join(domain.JoinRoomCommand{RoomName: "lobby", UserName: "C"}))
	history := waitForEvents(t, sinkC, "chat-history", 1)
	req.Empty(history[0].(event.ChatHistory).Messages)

	// Deleting twice reports not-found
	_, err = orch.DeleteMessage(id)
	req.True(errors.Is(err, chaterrors.ErrMessageNotFound))
}
