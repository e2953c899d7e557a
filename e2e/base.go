package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"

	"chat-relay/infrastructure/ws"
)

type BaseRelaySuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseRelaySuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)

	if s.Config.RelayAddr == "" {
		s.T().Skip("RELAY_ADDR not set, skipping live relay suite")
	}
}

// Dial opens a WebSocket connection to the relay with a colorized log header
func (s *BaseRelaySuite) Dial(t *testing.T, name string) *websocket.Conn {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)

	url := fmt.Sprintf("ws://%s/ws", s.Config.RelayAddr)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err, "Failed to connect to relay at "+url)
	return conn
}

// SendEvent writes one envelope frame to the connection
func (s *BaseRelaySuite) SendEvent(conn *websocket.Conn, event string, data any) {
	raw, err := json.Marshal(data)
	s.Require().NoError(err)
	s.Require().NoError(conn.WriteJSON(ws.Envelope{Event: event, Data: raw}))
}

// WaitEvent reads frames until one with the given event name arrives.
// Frames for other events are discarded, which keeps scenarios robust
// against interleaved broadcasts from concurrent clients.
func (s *BaseRelaySuite) WaitEvent(conn *websocket.Conn, event string, timeout time.Duration) json.RawMessage {
	deadline := time.Now().Add(timeout)
	s.Require().NoError(conn.SetReadDeadline(deadline))

	for {
		var env ws.Envelope
		err := conn.ReadJSON(&env)
		s.Require().NoError(err, "timed out waiting for %q", event)
		if env.Event == event {
			return env.Data
		}
		s.T().Logf("skipping %q while waiting for %q", env.Event, event)
	}
}

// PostJSON calls a REST gateway route and decodes the response body into out
func (s *BaseRelaySuite) PostJSON(path string, body any, wantStatus int, out any) {
	raw, err := json.Marshal(body)
	s.Require().NoError(err)

	url := fmt.Sprintf("http://%s%s", s.Config.RelayAddr, path)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	s.Require().NoError(err)
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.Require().Equal(wantStatus, resp.StatusCode, "unexpected status for %s: %s", path, payload)

	if out != nil {
		s.Require().NoError(json.Unmarshal(payload, out))
	}
}
