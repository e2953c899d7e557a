// Interactive terminal client for manual testing against a running relay.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"

	"chat-relay/domain"
	"chat-relay/infrastructure/ws"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("error: %v", err)
	}
}

func run() error {
	url := flag.String("url", "ws://localhost:3000/ws", "Relay WebSocket URL")
	room := flag.String("room", "lobby", "Room to join")
	user := flag.String("user", "guest", "Display name")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("Connecting to %s...\n", *url)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, *url, nil)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	if err := send(conn, "join-room", domain.JoinRoomCommand{RoomName: *room, UserName: *user}); err != nil {
		return fmt.Errorf("join: %w", err)
	}

	go printEvents(conn)

	color.Green.Printf("Joined %s as %s. Type messages to chat, /quit to exit.\n", *room, *user)

	inputCh := make(chan string)
	go readInput(inputCh)

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nShutting down...")
			return nil
		case line, ok := <-inputCh:
			if !ok {
				return nil
			}
			msg := strings.TrimSpace(line)
			if msg == "" {
				continue
			}
			if msg == "/quit" {
				fmt.Println("Bye!")
				return nil
			}
			err := send(conn, "send-message", domain.SendMessageCommand{
				RoomName: *room, UserName: *user, Message: msg,
			})
			if err != nil {
				return fmt.Errorf("send: %w", err)
			}
		}
	}
}

func send(conn *websocket.Conn, eventName string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return conn.WriteJSON(ws.Envelope{Event: eventName, Data: data})
}

func printEvents(conn *websocket.Conn) {
	for {
		var env ws.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			color.Red.Printf("connection closed: %v\n", err)
			return
		}
		switch env.Event {
		case "message":
			var msg domain.Message
			if err := json.Unmarshal(env.Data, &msg); err == nil {
				color.Cyan.Printf("[%s] ", msg.Room)
				fmt.Printf("%s: %s", msg.Author, msg.Content)
				if msg.ImageURL != "" {
					fmt.Printf(" (%s)", msg.ImageURL)
				}
				fmt.Println()
			}
		case "joineduser":
			var payload struct {
				UserName string `json:"userName"`
				RoomName string `json:"roomName"`
			}
			if err := json.Unmarshal(env.Data, &payload); err == nil {
				color.Green.Printf(">>> %s joined %s\n", payload.UserName, payload.RoomName)
			}
		case "room-user-count":
			var payload struct {
				RoomName string `json:"roomName"`
				Count    int    `json:"count"`
			}
			if err := json.Unmarshal(env.Data, &payload); err == nil {
				color.Yellow.Printf("=== %s now has %d online\n", payload.RoomName, payload.Count)
			}
		case "chat-history":
			var history []domain.Message
			if err := json.Unmarshal(env.Data, &history); err == nil {
				for _, msg := range history {
					fmt.Printf("(history) %s: %s\n", msg.Author, msg.Content)
				}
			}
		case "typing_users":
			var users []string
			if err := json.Unmarshal(env.Data, &users); err == nil && len(users) > 0 {
				color.Gray.Printf("... typing: %s\n", strings.Join(users, ", "))
			}
		case "error":
			color.Red.Printf("server: %s\n", string(env.Data))
		}
	}
}

func readInput(dst chan<- string) {
	defer close(dst)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		dst <- scanner.Text()
	}
}
