// Package rest is the thin HTTP gateway of the relay: room creation and
// join, image upload, and message deletion. Everything real-time lives on
// the WebSocket side.
package rest

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/go-playground/validator/v10"

	"chat-relay/contract"
	"chat-relay/domain"
	chaterrors "chat-relay/errors"
	"chat-relay/runtime"
	"chat-relay/storage"
)

var validate = validator.New()

type Gateway struct {
	rooms         contract.RoomRepository
	messages      contract.MessageRepository
	blobs         contract.BlobStore
	orch          *runtime.Orchestrator
	log           *slog.Logger
	maxUploadSize int64
}

func NewGateway(rooms contract.RoomRepository, messages contract.MessageRepository,
	blobs contract.BlobStore, orch *runtime.Orchestrator, log *slog.Logger,
	maxUploadSize int64) *Gateway {
	return &Gateway{
		rooms:         rooms,
		messages:      messages,
		blobs:         blobs,
		orch:          orch,
		log:           log,
		maxUploadSize: maxUploadSize,
	}
}

type createRoomRequest struct {
	RoomName string `json:"roomName" validate:"required"`
}

type joinRoomRequest struct {
	RoomName string `json:"roomName" validate:"required"`
	UserName string `json:"userName" validate:"required"`
}

func (g *Gateway) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if !g.decode(w, r, &req) {
		return
	}

	room, err := g.rooms.CreateRoom(req.RoomName)
	if err != nil {
		g.storageFailure(w, "create-room", err)
		return
	}
	g.writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Room created",
		"room":    room,
	})
}

func (g *Gateway) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var req joinRoomRequest
	if !g.decode(w, r, &req) {
		return
	}

	room, err := g.rooms.AddUserToRoom(req.RoomName, req.UserName)
	if errors.Is(err, chaterrors.ErrRoomNotFound) {
		g.writeError(w, http.StatusNotFound, "Room not found")
		return
	}
	if err != nil {
		g.storageFailure(w, "join-room", err)
		return
	}

	history, err := g.messages.ListMessages(req.RoomName)
	if err != nil {
		g.storageFailure(w, "join-room", err)
		return
	}
	if history == nil {
		history = []domain.Message{}
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"message": "User joined room",
		"room":    room,
		"history": history,
	})
}

func (g *Gateway) UploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, g.maxUploadSize)
	file, header, err := r.FormFile("image")
	if err != nil {
		g.writeError(w, http.StatusBadRequest, "multipart field \"image\" is required")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		g.writeError(w, http.StatusBadRequest, "could not read upload")
		return
	}

	url, err := g.blobs.StoreImage(data, filepath.Ext(header.Filename))
	if errors.Is(err, chaterrors.ErrUnsupportedImage) {
		g.writeError(w, http.StatusBadRequest, "only image uploads are accepted")
		return
	}
	if err != nil {
		g.storageFailure(w, "upload-image", err)
		return
	}
	g.writeJSON(w, http.StatusCreated, map[string]any{"imageUrl": url})
}

func (g *Gateway) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	msg, err := g.orch.DeleteMessage(id)
	if errors.Is(err, chaterrors.ErrMessageNotFound) {
		g.writeError(w, http.StatusNotFound, "Message not found")
		return
	}
	if err != nil {
		g.storageFailure(w, "delete-message", err)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"message": "Message deleted",
		"deleted": msg,
	})
}

// decode parses and validates a JSON body, answering 400 on failure.
func (g *Gateway) decode(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		g.writeError(w, http.StatusBadRequest, "malformed JSON body")
		return false
	}
	if err := validate.Struct(req); err != nil {
		g.writeError(w, http.StatusBadRequest, "missing required fields")
		return false
	}
	return true
}

func (g *Gateway) storageFailure(w http.ResponseWriter, op string, err error) {
	g.log.Error("Storage failure", "op", op, "error", err)
	g.writeError(w, http.StatusInternalServerError, "storage failure")
}

func (g *Gateway) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.log.Error("Response encoding failed", "error", err)
	}
}

func (g *Gateway) writeError(w http.ResponseWriter, code int, msg string) {
	g.writeJSON(w, code, map[string]string{"error": msg})
}

// Routes mounts the gateway, the uploads file server, and the WebSocket
// endpoint on one mux.
func Routes(g *Gateway, wsHandler http.Handler, blobs *storage.DiskBlobStore) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /create-room", g.CreateRoom)
	mux.HandleFunc("POST /join-room", g.JoinRoom)
	mux.HandleFunc("POST /upload-image", g.UploadImage)
	mux.HandleFunc("DELETE /delete-message/{id}", g.DeleteMessage)
	mux.Handle("GET /ws", wsHandler)
	mux.Handle("GET "+storage.PublicPrefix,
		http.StripPrefix(storage.PublicPrefix, http.FileServer(http.Dir(blobs.Dir()))))
	return mux
}
