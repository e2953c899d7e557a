package workers

import (
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
)

type countingSink struct{ consumed []event.DomainEvent }

func (s *countingSink) Consume(e event.DomainEvent) { s.consumed = append(s.consumed, e) }

type fakeRegistry struct {
	room   map[string][]contract.EventSink
	direct map[domain.ConnID]contract.EventSink
	all    []contract.EventSink
}

func (f *fakeRegistry) Attach(domain.ConnID, contract.EventSink)            {}
func (f *fakeRegistry) Subscribe(domain.ConnID, string, contract.EventSink) {}
func (f *fakeRegistry) Unsubscribe(domain.ConnID)                           {}
func (f *fakeRegistry) Member(domain.ConnID, string) bool                   { return false }
func (f *fakeRegistry) SinksForRoom(room string) []contract.EventSink       { return f.room[room] }
func (f *fakeRegistry) AllSinks() []contract.EventSink                      { return f.all }
func (f *fakeRegistry) Sink(conn domain.ConnID) (contract.EventSink, bool) {
	sink, ok := f.direct[conn]
	return sink, ok
}

func TestEventFanout_Routes_Room_Events_To_Room_Sinks(t *testing.T) {
	req := require.New(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	inRoom := &countingSink{}
	elsewhere := &countingSink{}
	registry := &fakeRegistry{
		room: map[string][]contract.EventSink{"lobby": {inRoom}},
		all:  []contract.EventSink{inRoom, elsewhere},
	}

	fanout := NewEventFanout(log, nil, registry)
	fanout.Fanout(event.UserJoined{UserName: "A", Room: "lobby"})

	req.Len(inRoom.consumed, 1)
	req.Empty(elsewhere.consumed)
}

func TestEventFanout_Routes_Global_Events_To_Everyone(t *testing.T) {
	req := require.New(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := &countingSink{}
	b := &countingSink{}
	registry := &fakeRegistry{all: []contract.EventSink{a, b}}

	fanout := NewEventFanout(log, nil, registry)
	// A typing event without a room is global
	fanout.Fanout(event.TypingUsers{Users: []string{"A"}})

	req.Len(a.consumed, 1)
	req.Len(b.consumed, 1)
}

func TestEventFanout_Routes_Direct_Events_To_One_Connection(t *testing.T) {
	req := require.New(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	target := &countingSink{}
	other := &countingSink{}
	conn := uuid.New()
	registry := &fakeRegistry{
		direct: map[domain.ConnID]contract.EventSink{conn: target},
		all:    []contract.EventSink{target, other},
	}

	fanout := NewEventFanout(log, nil, registry)
	fanout.Fanout(event.ChatHistory{Conn: conn})

	req.Len(target.consumed, 1)
	req.Empty(other.consumed)

	// A direct event for a gone connection is dropped silently
	fanout.Fanout(event.ChatHistory{Conn: uuid.New()})
	req.Len(target.consumed, 1)
}
