package contract

import (
	"context"
	"reflect"

	"chat-relay/domain"
	"chat-relay/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker
// lifecycle events, avoiding manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives domain events for one connection. Consume must not
// block: delivery is best-effort and a slow consumer drops events.
type EventSink interface {
	Consume(e event.DomainEvent)
}

// IRegistry binds live connections to rooms and resolves delivery sets.
type IRegistry interface {
	Attach(conn domain.ConnID, sink EventSink)
	Subscribe(conn domain.ConnID, room string, sink EventSink)
	Unsubscribe(conn domain.ConnID)
	SinksForRoom(room string) []EventSink
	AllSinks() []EventSink
	Sink(conn domain.ConnID) (EventSink, bool)
	Member(conn domain.ConnID, room string) bool
}

// RoomRepository is the durable store for rooms.
type RoomRepository interface {
	CreateRoom(name string) (domain.Room, error)
	FindRoom(name string) (domain.Room, error)
	AddUserToRoom(name, user string) (domain.Room, error)
}

// MessageRepository is the durable store for messages.
type MessageRepository interface {
	AppendMessage(msg domain.Message) (domain.Message, error)
	GetMessage(id string) (domain.Message, error)
	DeleteMessage(id string) (domain.Message, error)
	ListMessages(room string) ([]domain.Message, error)
}

// BlobStore persists uploaded image bytes and returns a public URL.
type BlobStore interface {
	StoreImage(data []byte, originalExt string) (string, error)
}
