package room

import "errors"

var (
	// ErrRoomNotFound is returned when joining a room code with no record.
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomInactive is returned when the room exists but has been ended
	// or has expired.
	ErrRoomInactive = errors.New("room is not active")

	// ErrRoomFull is returned when the room's viewer ceiling is reached.
	ErrRoomFull = errors.New("room is at capacity")
)
