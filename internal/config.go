package internal

import (
	"fmt"
	"time"
)

type Config struct {
	Host            string        `env:"HOST,required=true"`
	Port            int           `env:"PORT,required=true"`
	BadgerFilepath  string        `env:"BADGER_FILEPATH,required=true"`
	UploadDir       string        `env:"UPLOAD_DIR,required=true"`
	LogLevel        string        `env:"LOG_LEVEL,required=true"`
	EventBufferSize int           `env:"EVENT_BUFFER_SIZE,required=true"`
	SendBufferSize  int           `env:"SEND_BUFFER_SIZE,required=true"`
	TypingScope     string        `env:"TYPING_SCOPE,default=global"`
	HistoryLimit    *int          `env:"HISTORY_LIMIT"`
	MaxMessageSize  int64         `env:"MAX_MESSAGE_SIZE,default=65536"`
	MaxUploadSize   int64         `env:"MAX_UPLOAD_SIZE,default=5242880"`
	PongTimeout     time.Duration `env:"PONG_TIMEOUT,default=60s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT,default=10s"`
	DebugPort       int           `env:"DEBUG_PORT,default=8081"`
}

// TypingPerRoom reports whether the alternative per-room typing scope is
// enabled. The default mirrors the original relay: one global typing set,
// emptied entirely on any disconnect.
func (c Config) TypingPerRoom() (bool, error) {
	switch c.TypingScope {
	case "global":
		return false, nil
	case "room":
		return true, nil
	default:
		return false, fmt.Errorf("TYPING_SCOPE must be \"global\" or \"room\", got %q", c.TypingScope)
	}
}
