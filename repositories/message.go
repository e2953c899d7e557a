package repositories

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"chat-relay/domain"
	chaterrors "chat-relay/errors"
)

// MessageRepository persists messages in BadgerDB.
type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

// diskMessage is the stored shape of a message record.
type diskMessage struct {
	ID       uuid.UUID `json:"id"`
	Room     string    `json:"room"`
	Author   string    `json:"author"`
	Content  string    `json:"content,omitempty"`
	ImageURL string    `json:"imageUrl,omitempty"`
	At       int64     `json:"at"`
}

// roomSegment hex-encodes the room name for use inside a key. Room names
// are client input and may contain the ':' delimiter; encoding keeps one
// room's prefix from ever matching another room's keys.
func roomSegment(room string) string {
	return hex.EncodeToString([]byte(room))
}

// messageKey builds the primary key "msg:{room_hex}:{timestamp_padded}:{uuid}".
// The 19-digit zero padding makes lexicographical order match chronological
// order, and the UUID disambiguates two messages in the same nanosecond.
func messageKey(room string, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", roomSegment(room), at.UnixNano(), id))
}

// indexKey points from a message ID to its primary key, so lookups and
// deletions by durable identifier need no room or timestamp.
func indexKey(id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msgid:%s", id))
}

// AppendMessage assigns a durable identifier, persists the record, and
// returns the stored message.
func (m MessageRepository) AppendMessage(msg domain.Message) (domain.Message, error) {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.At.IsZero() {
		msg.At = time.Now().UTC()
	}

	data, err := json.Marshal(fromDomainMessage(msg))
	if err != nil {
		return domain.Message{}, err
	}

	primary := messageKey(msg.Room, msg.At, msg.ID)
	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(primary, data); err != nil {
			return err
		}
		return txn.Set(indexKey(msg.ID), primary)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// GetMessage resolves a durable identifier through the id index.
func (m MessageRepository) GetMessage(id string) (domain.Message, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return domain.Message{}, chaterrors.ErrMessageNotFound
	}

	var msg domain.Message
	err = m.db.View(func(txn *badger.Txn) error {
		stored, err := m.readByID(txn, parsed)
		if err != nil {
			return err
		}
		msg = stored
		return nil
	})
	return msg, err
}

// DeleteMessage removes the record and its index entry, returning the
// message as it was stored.
func (m MessageRepository) DeleteMessage(id string) (domain.Message, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return domain.Message{}, chaterrors.ErrMessageNotFound
	}

	var msg domain.Message
	err = m.db.Update(func(txn *badger.Txn) error {
		stored, err := m.readByID(txn, parsed)
		if err != nil {
			return err
		}
		if err := txn.Delete(messageKey(stored.Room, stored.At, stored.ID)); err != nil {
			return err
		}
		if err := txn.Delete(indexKey(parsed)); err != nil {
			return err
		}
		msg = stored
		return nil
	})
	return msg, err
}

// ListMessages returns a room's messages ascending by timestamp. Thanks to
// the padded timestamp in the key, a forward prefix scan is already in
// chronological order. When a limit is configured, the newest records are
// collected backwards first and then put back in ascending order.
func (m MessageRepository) ListMessages(room string) ([]domain.Message, error) {
	var stored []diskMessage
	prefix := []byte(fmt.Sprintf("msg:%s:", roomSegment(room)))

	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = m.limitMessages != nil
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := prefix
		if options.Reverse {
			// Seek past the newest possible key, then walk backwards
			seekKey = append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		}

		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(stored) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("History capped at %d messages for room %s", *m.limitMessages, room))
				break
			}
			item := it.Item()
			err := item.Value(func(value []byte) error {
				var dm diskMessage
				if err := json.Unmarshal(value, &dm); err != nil {
					return fmt.Errorf("corrupt message record %s: %w", item.Key(), err)
				}
				stored = append(stored, dm)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if m.limitMessages != nil {
		lo.Reverse(stored)
	}
	return lo.Map(stored, func(dm diskMessage, _ int) domain.Message {
		return toDomainMessage(dm)
	}), nil
}

func (m MessageRepository) readByID(txn *badger.Txn, id uuid.UUID) (domain.Message, error) {
	item, err := txn.Get(indexKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, chaterrors.ErrMessageNotFound
	}
	if err != nil {
		return domain.Message{}, err
	}

	var primary []byte
	if err := item.Value(func(v []byte) error {
		primary = append([]byte{}, v...)
		return nil
	}); err != nil {
		return domain.Message{}, err
	}

	record, err := txn.Get(primary)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, chaterrors.ErrMessageNotFound
	}
	if err != nil {
		return domain.Message{}, err
	}

	var dm diskMessage
	if err := record.Value(func(v []byte) error {
		return json.Unmarshal(v, &dm)
	}); err != nil {
		return domain.Message{}, err
	}
	return toDomainMessage(dm), nil
}

func fromDomainMessage(msg domain.Message) diskMessage {
	return diskMessage{
		ID:       msg.ID,
		Room:     msg.Room,
		Author:   msg.Author,
		Content:  msg.Content,
		ImageURL: msg.ImageURL,
		At:       msg.At.UnixNano(),
	}
}

func toDomainMessage(dm diskMessage) domain.Message {
	return domain.Message{
		ID:       dm.ID,
		Room:     dm.Room,
		Author:   dm.Author,
		Content:  dm.Content,
		ImageURL: dm.ImageURL,
		At:       time.Unix(0, dm.At).UTC(),
	}
}
