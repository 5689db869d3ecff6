package game

// Delivery pushes events to connected participants. Implementations must be
// safe for concurrent use: every room actor calls it from its own goroutine.
type Delivery interface {
	SendTo(connID, event string, payload any)
	BroadcastToRoom(roomID, event string, payload any, excludeConnID string)
}
