// Package runtime coordinates event production and fan-out for the relay.
// It owns the shared mutable state (registry, presence tracker) and the
// event pipeline; business rules live in the Session state machine.
package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/presence"
	"chat-relay/runtime/workers"
)

type Orchestrator struct {
	log        *slog.Logger
	supervisor contract.ISupervisor
	registry   contract.IRegistry
	tracker    *presence.Tracker
	rooms      contract.RoomRepository
	messages   contract.MessageRepository
	events     chan event.DomainEvent
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor,
	registry contract.IRegistry, tracker *presence.Tracker,
	rooms contract.RoomRepository, messages contract.MessageRepository,
	bufferSize int) *Orchestrator {
	return &Orchestrator{
		log:        log,
		supervisor: supervisor,
		registry:   registry,
		tracker:    tracker,
		rooms:      rooms,
		messages:   messages,
		events:     make(chan event.DomainEvent, bufferSize),
	}
}

// Publish queues an event for fan-out. Publishing never blocks: when the
// channel is full the event is dropped with a warning, matching the
// best-effort, non-backpressured delivery of the relay.
func (o *Orchestrator) Publish(evt event.DomainEvent) {
	select {
	case o.events <- evt:
	default:
		o.log.Warn(fmt.Sprintf("Event channel full, dropping %s", evt.EventName()))
	}
}

// Attach registers a freshly established connection so that global
// broadcasts reach it before it joins any room.
func (o *Orchestrator) Attach(conn domain.ConnID, sink contract.EventSink) {
	o.registry.Attach(conn, sink)
}

// DeleteMessage removes a persisted message and notifies its room.
// Used by the gateway's delete endpoint.
func (o *Orchestrator) DeleteMessage(id string) (domain.Message, error) {
	msg, err := o.messages.DeleteMessage(id)
	if err != nil {
		return domain.Message{}, err
	}
	o.Publish(event.MessageDeleted{Room: msg.Room, MessageID: msg.ID.String()})
	return msg, nil
}

// Start registers the fanout worker and runs the supervisor until the
// context is canceled.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.supervisor.Add(workers.NewEventFanout(o.log, o.events, o.registry))
	o.log.Info("Starting orchestrator and all supervised workers")
	o.supervisor.Run(ctx)
	return nil
}

// Stop initiates a graceful shutdown by canceling the supervision context.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}
