package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"chat-relay/domain"
	"chat-relay/infrastructure/rest"
	"chat-relay/infrastructure/ws"
	"chat-relay/internal"
	"chat-relay/presence"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/storage"
)

// startRelay wires the full stack the way cmd/server does and exposes it
// over an httptest server, so the scenario exercises the real HTTP and
// WebSocket surfaces end to end.
func startRelay(t *testing.T) *httptest.Server {
	req := require.New(t)
	// Reduced to 16 Mo for testing (avoid 20 Go of storage)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	req.NoError(err)

	log := internal.GetLoggerFromString("ERROR")
	supervisor := workers.NewSupervisor(log)
	registry := runtime.NewRegistry()
	tracker := presence.NewTracker(false)
	roomRepository := repositories.NewRoomRepository(db, log)
	messageRepository := repositories.NewMessageRepository(db, log, lo.ToPtr(100))
	blobs, err := storage.NewDiskBlobStore(t.TempDir(), log)
	req.NoError(err)

	orchestrator := runtime.NewOrchestrator(log, supervisor, registry, tracker,
		roomRepository, messageRepository, 256)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		req.NoError(orchestrator.Start(ctx))
	}()

	opts := ws.Options{
		SendBufferSize: 64,
		MaxMessageSize: 64 << 10,
		PongTimeout:    10 * time.Second,
		WriteTimeout:   5 * time.Second,
	}
	gateway := rest.NewGateway(roomRepository, messageRepository, blobs, orchestrator, log, 1<<20)
	srv := httptest.NewServer(rest.Routes(gateway, ws.NewHandler(orchestrator, log, opts), blobs))

	t.Cleanup(func() {
		srv.Close()
		cancel()
		orchestrator.Stop()
		<-done
		db.Close()
	})
	return srv
}

func dialRelay(t *testing.T, srv *httptest.Server) *websocket.Conn {
	req := require.New(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	req.NoError(err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(ws.Envelope{Event: event, Data: raw}))
}

// waitFor drains frames until the wanted event shows up, discarding
// unrelated broadcasts that interleave with it.
func waitFor(t *testing.T, conn *websocket.Conn, event string) json.RawMessage {
	req := require.New(t)
	req.NoError(conn.SetReadDeadline(time.Now().Add(5 * time.Second)))
	for {
		var env ws.Envelope
		req.NoError(conn.ReadJSON(&env), "waiting for %q", event)
		if env.Event == event {
			return env.Data
		}
	}
}

func Test_Scenario(t *testing.T) {
	req := require.New(t)
	srv := startRelay(t)

	// 1. Create the room through the gateway
	body, _ := json.Marshal(map[string]string{"roomName": "lobby"})
	resp, err := http.Post(srv.URL+"/create-room", "application/json", bytes.NewReader(body))
	req.NoError(err)
	resp.Body.Close()
	req.Equal(http.StatusCreated, resp.StatusCode)

	// 2. Two users join over WebSocket
	alice := dialRelay(t, srv)
	bob := dialRelay(t, srv)

	send(t, alice, "join-room", map[string]string{"roomName": "lobby", "userName": "alice"})
	waitFor(t, alice, "chat-history")

	send(t, bob, "join-room", map[string]string{"roomName": "lobby", "userName": "bob"})
	waitFor(t, bob, "chat-history")

	// Alice sees bob arrive and the count reach two
	var count struct {
		RoomName string `json:"roomName"`
		Count    int    `json:"count"`
	}
	req.NoError(json.Unmarshal(waitFor(t, alice, "room-user-count"), &count))
	req.Equal("lobby", count.RoomName)

	// 3. A message from alice reaches bob with a durable identifier
	send(t, alice, "send-message", map[string]string{
		"roomName": "lobby",
		"userName": "alice",
		"message":  "integration says hi",
	})

	var msg domain.Message
	req.NoError(json.Unmarshal(waitFor(t, bob, "message"), &msg))
	req.Equal("alice", msg.Author)
	req.Equal("integration says hi", msg.Content)
	req.NotEqual(uuid.Nil, msg.ID)

	// 4. Typing indicator round trip
	send(t, alice, "typing", "alice")
	var typing []string
	req.NoError(json.Unmarshal(waitFor(t, bob, "typing_users"), &typing))
	req.Contains(typing, "alice")

	send(t, alice, "stopped_typing", "alice")
	req.NoError(json.Unmarshal(waitFor(t, bob, "typing_users"), &typing))
	req.NotContains(typing, "alice")

	// 5. Deleting the message over REST notifies the room
	del, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/delete-message/%s", srv.URL, msg.ID), nil)
	req.NoError(err)
	resp, err = http.DefaultClient.Do(del)
	req.NoError(err)
	resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	var gone struct {
		MessageID string `json:"messageId"`
	}
	req.NoError(json.Unmarshal(waitFor(t, bob, "message-deleted"), &gone))
	req.Equal(msg.ID.String(), gone.MessageID)

	// 6. A sender outside the room is rejected with a user facing error
	send(t, bob, "send-message", map[string]string{
		"roomName": "elsewhere",
		"userName": "bob",
		"message":  "should not land",
	})
	var notice struct {
		Error string `json:"error"`
	}
	req.NoError(json.Unmarshal(waitFor(t, bob, "error"), &notice))
	req.Contains(notice.Error, "join the room")
}
