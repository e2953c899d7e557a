package repositories

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"

	"chat-relay/domain"
	chaterrors "chat-relay/errors"
)

// RoomRepository persists room records in BadgerDB under "room:{name}".
// Room names are the unique key; rooms are never deleted.
type RoomRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewRoomRepository(db *badger.DB, log *slog.Logger) RoomRepository {
	return RoomRepository{db: db, log: log}
}

func roomKey(name string) []byte {
	return []byte(fmt.Sprintf("room:%s", name))
}

// CreateRoom stores a new empty room. Creating a room that already exists
// returns the existing record unchanged.
func (r RoomRepository) CreateRoom(name string) (domain.Room, error) {
	var room domain.Room
	err := r.db.Update(func(txn *badger.Txn) error {
		existing, err := readRoom(txn, name)
		if err == nil {
			r.log.Debug(fmt.Sprintf("Room %s already exists", name))
			room = existing
			return nil
		}
		if !errors.Is(err, chaterrors.ErrRoomNotFound) {
			return err
		}

		room = domain.Room{Name: name, Users: []string{}}
		return writeRoom(txn, room)
	})
	return room, err
}

// FindRoom looks a room up by name.
func (r RoomRepository) FindRoom(name string) (domain.Room, error) {
	var room domain.Room
	err := r.db.View(func(txn *badger.Txn) error {
		found, err := readRoom(txn, name)
		if err != nil {
			return err
		}
		room = found
		return nil
	})
	return room, err
}

// AddUserToRoom appends a display name to the room's user list. Appending
// a name that is already present is a no-op.
func (r RoomRepository) AddUserToRoom(name, user string) (domain.Room, error) {
	var room domain.Room
	err := r.db.Update(func(txn *badger.Txn) error {
		found, err := readRoom(txn, name)
		if err != nil {
			return err
		}
		if !lo.Contains(found.Users, user) {
			found.Users = append(found.Users, user)
			if err := writeRoom(txn, found); err != nil {
				return err
			}
		}
		room = found
		return nil
	})
	return room, err
}

func readRoom(txn *badger.Txn, name string) (domain.Room, error) {
	item, err := txn.Get(roomKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Room{}, chaterrors.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, err
	}

	var room domain.Room
	if err := item.Value(func(v []byte) error {
		return json.Unmarshal(v, &room)
	}); err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

func writeRoom(txn *badger.Txn, room domain.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}
	return txn.Set(roomKey(room.Name), data)
}
