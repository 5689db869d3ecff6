package roomerrors

import "errors"

// Room engine sentinel errors. Shared by alloc, round, storage, game and ws
// so none of them has to import another just to match an error.
var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrQuotaExceeded       = errors.New("swap quota exceeded")
	ErrBoostMiss           = errors.New("boost drew a blank card")
	ErrInvalidSlot         = errors.New("invalid slot")
	ErrDegradedPoolReset   = errors.New("draw pool exhausted; reset to full deck")
	ErrMissingRoomID       = errors.New("room id is required")
	ErrNotAllReady         = errors.New("not every player is ready for a new round")
	ErrRoomClosed          = errors.New("room is closed")
	ErrIndexOutOfRange     = errors.New("card index out of range")
	ErrIdentifierConflict  = errors.New("connection already holds another seat")
)
