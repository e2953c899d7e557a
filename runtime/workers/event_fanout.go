package workers

import (
	"context"
	"log/slog"

	"chat-relay/contract"
	"chat-relay/domain/event"
)

// EventFanout consumes the relay's event channel and routes each event to
// the sinks its scope selects: room events to the room's subscribers,
// direct events to one connection, anything else to every connection.
//
// Delivery is best-effort with no guarantees regarding ordering across
// publishers, durability, or retries. A single fanout goroutine keeps the
// events published by one handler in program order.
type EventFanout struct {
	Log      *slog.Logger
	Events   chan event.DomainEvent
	registry contract.IRegistry
}

func NewEventFanout(log *slog.Logger, events chan event.DomainEvent, registry contract.IRegistry) *EventFanout {
	return &EventFanout{Log: log, Events: events, registry: registry}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt := <-w.Events:
			w.Fanout(evt)
		case <-ctx.Done():
			w.Log.Debug("Context done, stopping event fanout")
			return nil
		}
	}
}

// Fanout delivers one event to its scope's sinks. Sinks must not block;
// a broken or slow connection just misses the event.
func (w *EventFanout) Fanout(evt event.DomainEvent) {
	switch e := evt.(type) {
	case event.DirectScoped:
		sink, ok := w.registry.Sink(e.Target())
		if !ok {
			w.Log.Debug("Dropping direct event for a gone connection", "event", evt.EventName())
			return
		}
		sink.Consume(evt)
	case event.RoomScoped:
		if e.RoomName() == "" {
			w.deliverAll(evt)
			return
		}
		for _, sink := range w.registry.SinksForRoom(e.RoomName()) {
			sink.Consume(evt)
		}
	default:
		w.deliverAll(evt)
	}
}

func (w *EventFanout) deliverAll(evt event.DomainEvent) {
	for _, sink := range w.registry.AllSinks() {
		sink.Consume(evt)
	}
}
