package errors

import "fmt"

var (
	ErrWorkerPanic       = fmt.Errorf("worker panic")
	ErrRoomNotFound      = fmt.Errorf("room not found")
	ErrMessageNotFound   = fmt.Errorf("message not found")
	ErrNotInRoom         = fmt.Errorf("connection has not joined this room")
	ErrEmptyMessage      = fmt.Errorf("message needs a text body or an image")
	ErrUnsupportedImage  = fmt.Errorf("uploaded content is not a supported image")
	ErrSessionTerminated = fmt.Errorf("session already disconnected")
)
