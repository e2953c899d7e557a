package ws

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"chat-relay/domain"
	"chat-relay/domain/event"
	chaterrors "chat-relay/errors"
	"chat-relay/runtime"
)

var validate = validator.New()

// Options tunes one connection's transport behavior.
type Options struct {
	SendBufferSize int
	MaxMessageSize int64
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
}

// Client owns one WebSocket connection: a read pump feeding the session
// state machine and a write pump draining the send channel. It is the
// connection's EventSink; Consume never blocks, a full send buffer just
// drops the frame.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	session *runtime.Session
	log     *slog.Logger
	opts    Options
}

// NewClient wraps an upgraded connection and starts its session.
func NewClient(conn *websocket.Conn, orch *runtime.Orchestrator, log *slog.Logger, opts Options) *Client {
	conn.SetReadLimit(opts.MaxMessageSize)
	c := &Client{
		conn: conn,
		send: make(chan []byte, opts.SendBufferSize),
		log:  log.With("remote", conn.RemoteAddr().String()),
		opts: opts,
	}
	c.session = orch.NewSession(c)
	return c
}

// Consume implements contract.EventSink.
func (c *Client) Consume(evt event.DomainEvent) {
	frame, err := EncodeEvent(evt)
	if err != nil {
		c.log.Error("Dropping unencodable event", "event", evt.EventName(), "error", err)
		return
	}
	select {
	case c.send <- frame:
	default:
		c.log.Debug("Send buffer full, dropping event", "event", evt.EventName())
	}
}

// Run services the connection until it closes, then tears the session
// down. The write pump runs on its own goroutine; the read pump runs on
// the caller's.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.session.Disconnect()
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.log.Warn("Unexpected close", "error", err)
			}
			return
		}
		c.dispatch(frame)
	}
}

// dispatch decodes and validates one client frame, applies it to the
// session, and reports rejections back to the sender only. Malformed or
// rejected frames never kill the connection.
func (c *Client) dispatch(frame []byte) {
	cmd, err := DecodeCommand(frame)
	if err != nil {
		c.log.Debug("Rejecting frame", "error", err)
		c.notifyError("invalid payload")
		return
	}
	if err := validate.Struct(cmd); err != nil {
		c.log.Debug("Rejecting command", "command", cmd.CommandName(), "error", err)
		c.notifyError("missing required fields")
		return
	}

	switch cmd := cmd.(type) {
	case domain.JoinRoomCommand:
		err = c.session.Join(cmd)
	case domain.SendMessageCommand:
		err = c.session.Send(cmd)
	case domain.TypingCommand:
		err = c.session.Typing(cmd)
	case domain.StoppedTypingCommand:
		err = c.session.StoppedTyping(cmd)
	}
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, chaterrors.ErrNotInRoom):
		c.notifyError("join the room before sending to it")
	case errors.Is(err, chaterrors.ErrEmptyMessage):
		c.notifyError("message needs a text body or an image")
	case errors.Is(err, chaterrors.ErrSessionTerminated):
		// nothing to tell a connection that is already gone
	default:
		// Storage failures on the socket path: drop the command, keep
		// the connection
		c.log.Error("Command failed", "command", cmd.CommandName(), "error", err)
		c.notifyError("temporary failure, try again")
	}
}

func (c *Client) notifyError(reason string) {
	c.Consume(event.ErrorNotice{Conn: c.session.ID(), Reason: reason})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.PongTimeout * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				if !errors.Is(err, io.ErrClosedPipe) {
					c.log.Debug("Write failed, closing", "error", err)
				}
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
