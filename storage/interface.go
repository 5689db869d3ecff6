package storage

import (
	"context"
	"time"

	"card-room-server/cards"
	"card-room-server/round"
)

// Store abstracts persistence for rooms and their round-scoped participant records.
// Every setter is idempotent: writing the same value twice leaves the same state.
// GetRoom and AdvanceRoundRecords return roomerrors.ErrRoomNotFound for unknown rooms.
type Store interface {
	// Rooms
	CreateRoom(ctx context.Context, room *round.Room) error
	GetRoom(ctx context.Context, roomID string) (*round.Room, error)
	SetOwnedCards(ctx context.Context, roomID string, owned []int) error

	// Round records
	GetRoundParticipants(ctx context.Context, roomID string, roundNumber int) (map[string]*round.Record, error)
	AddParticipant(ctx context.Context, roomID string, rec *round.Record) error
	SetHand(ctx context.Context, connID, roomID string, roundNumber int, hand []cards.Card) error
	SetFlippedCards(ctx context.Context, connID, roomID string, roundNumber int, flipped []int) error
	SetChantCount(ctx context.Context, connID, roomID string, roundNumber int, n int) error
	SetTotalSwaps(ctx context.Context, connID, roomID string, roundNumber int, n int) error
	SetFolded(ctx context.Context, connID, roomID string, roundNumber int, folded bool) error
	SetReady(ctx context.Context, connID, roomID string, roundNumber int, ready bool) error
	SetCompletion(ctx context.Context, connID, roomID string, roundNumber int, pct float64) error
	SetIdentifier(ctx context.Context, connID, roomID string, identifier string) error
	RekeyParticipant(ctx context.Context, oldConnID, newConnID, roomID string) error

	// AdvanceRoundRecords creates fresh records for every current participant,
	// clears the room's owned set and returns the new round number.
	AdvanceRoundRecords(ctx context.Context, roomID string) (int, error)

	// Retention
	DeleteRoomsOlderThan(ctx context.Context, cutoff time.Time) ([]string, error)

	// Lifecycle
	Close()
}

// Ensure both stores implement Store at compile time.
var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
