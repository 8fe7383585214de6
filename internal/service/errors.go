package service

import "errors"

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrRoomFull            = errors.New("room is full")
	ErrCodeExhausted       = errors.New("room code space exhausted")
	ErrStaleResync         = errors.New("resync gap too large, full snapshot required")
	ErrParticipantNotFound = errors.New("participant not found in room")
	ErrNotHost             = errors.New("only the host may perform this action")
	ErrInvalidOperation    = errors.New("invalid operation data")
	ErrInvalidResumeToken  = errors.New("invalid or expired resume token")
	ErrLogCapacity         = errors.New("operation log capacity exhausted")
	ErrInternalServer      = errors.New("internal server error")
)
