package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"card-room-server/cards"
	"card-room-server/round"
	"card-room-server/roomerrors"
)

// MemoryStore keeps rooms and records in process memory. It is the default
// store when no database is configured and the store used by tests.
type MemoryStore struct {
	mu      sync.RWMutex
	rooms   map[string]*round.Room
	records map[string]map[int]map[string]*round.Record // room -> round -> conn -> record
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:   make(map[string]*round.Room),
		records: make(map[string]map[int]map[string]*round.Record),
	}
}

// Close is a no-op.
func (s *MemoryStore) Close() {}

// CreateRoom stores a copy of room. Creating an id twice is an error.
func (s *MemoryStore) CreateRoom(_ context.Context, room *round.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID]; ok {
		return fmt.Errorf("room %s already exists", room.ID)
	}
	s.rooms[room.ID] = room.Clone()
	s.records[room.ID] = make(map[int]map[string]*round.Record)
	return nil
}

// GetRoom returns a copy of the room.
func (s *MemoryStore) GetRoom(_ context.Context, roomID string) (*round.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", roomerrors.ErrRoomNotFound, roomID)
	}
	return room.Clone(), nil
}

// SetOwnedCards replaces the room's owned set.
func (s *MemoryStore) SetOwnedCards(_ context.Context, roomID string, owned []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return fmt.Errorf("%w: %s", roomerrors.ErrRoomNotFound, roomID)
	}
	room.Owned = append([]int{}, owned...)
	return nil
}

// GetRoundParticipants returns copies of the records of one round keyed by connection id.
func (s *MemoryStore) GetRoundParticipants(_ context.Context, roomID string, roundNumber int) (map[string]*round.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rounds, ok := s.records[roomID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", roomerrors.ErrRoomNotFound, roomID)
	}
	out := make(map[string]*round.Record, len(rounds[roundNumber]))
	for conn, rec := range rounds[roundNumber] {
		out[conn] = rec.Clone()
	}
	return out, nil
}

// AddParticipant inserts rec into its round unless a record for the connection already exists.
func (s *MemoryStore) AddParticipant(_ context.Context, roomID string, rec *round.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rounds, ok := s.records[roomID]
	if !ok {
		return fmt.Errorf("%w: %s", roomerrors.ErrRoomNotFound, roomID)
	}
	if rounds[rec.Round] == nil {
		rounds[rec.Round] = make(map[string]*round.Record)
	}
	if _, exists := rounds[rec.Round][rec.ConnID]; exists {
		return nil
	}
	rounds[rec.Round][rec.ConnID] = rec.Clone()
	return nil
}

// update applies fn to one record. Unknown records are ignored, matching an UPDATE with no rows.
func (s *MemoryStore) update(roomID, connID string, roundNumber int, fn func(*round.Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rounds, ok := s.records[roomID]
	if !ok {
		return fmt.Errorf("%w: %s", roomerrors.ErrRoomNotFound, roomID)
	}
	if rec, ok := rounds[roundNumber][connID]; ok {
		fn(rec)
	}
	return nil
}

func (s *MemoryStore) SetHand(_ context.Context, connID, roomID string, roundNumber int, hand []cards.Card) error {
	return s.update(roomID, connID, roundNumber, func(r *round.Record) {
		r.Hand = append([]cards.Card{}, hand...)
	})
}

func (s *MemoryStore) SetFlippedCards(_ context.Context, connID, roomID string, roundNumber int, flipped []int) error {
	return s.update(roomID, connID, roundNumber, func(r *round.Record) {
		r.Flipped = append([]int{}, flipped...)
	})
}

func (s *MemoryStore) SetChantCount(_ context.Context, connID, roomID string, roundNumber int, n int) error {
	return s.update(roomID, connID, roundNumber, func(r *round.Record) { r.ChantCount = n })
}

func (s *MemoryStore) SetTotalSwaps(_ context.Context, connID, roomID string, roundNumber int, n int) error {
	return s.update(roomID, connID, roundNumber, func(r *round.Record) { r.TotalSwaps = n })
}

func (s *MemoryStore) SetFolded(_ context.Context, connID, roomID string, roundNumber int, folded bool) error {
	return s.update(roomID, connID, roundNumber, func(r *round.Record) { r.Folded = folded })
}

func (s *MemoryStore) SetReady(_ context.Context, connID, roomID string, roundNumber int, ready bool) error {
	return s.update(roomID, connID, roundNumber, func(r *round.Record) { r.Ready = ready })
}

func (s *MemoryStore) SetCompletion(_ context.Context, connID, roomID string, roundNumber int, pct float64) error {
	return s.update(roomID, connID, roundNumber, func(r *round.Record) { r.Completion = pct })
}

// SetIdentifier binds a persistent identifier to the connection's records in every round.
func (s *MemoryStore) SetIdentifier(_ context.Context, connID, roomID string, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rounds, ok := s.records[roomID]
	if !ok {
		return fmt.Errorf("%w: %s", roomerrors.ErrRoomNotFound, roomID)
	}
	for _, recs := range rounds {
		if rec, ok := recs[connID]; ok {
			rec.Identifier = identifier
		}
	}
	return nil
}

// RekeyParticipant moves the connection's records in every round of the room to newConnID.
func (s *MemoryStore) RekeyParticipant(_ context.Context, oldConnID, newConnID, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rounds, ok := s.records[roomID]
	if !ok {
		return fmt.Errorf("%w: %s", roomerrors.ErrRoomNotFound, roomID)
	}
	if oldConnID == newConnID {
		return nil
	}
	for _, recs := range rounds {
		if _, taken := recs[newConnID]; taken {
			if _, moving := recs[oldConnID]; moving {
				return fmt.Errorf("%w: %s in room %s", roomerrors.ErrIdentifierConflict, newConnID, roomID)
			}
		}
	}
	for _, recs := range rounds {
		if rec, ok := recs[oldConnID]; ok {
			delete(recs, oldConnID)
			rec.ConnID = newConnID
			recs[newConnID] = rec
		}
	}
	return nil
}

// AdvanceRoundRecords starts the next round for every participant of the current one.
func (s *MemoryStore) AdvanceRoundRecords(_ context.Context, roomID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", roomerrors.ErrRoomNotFound, roomID)
	}
	rounds := s.records[roomID]
	next := room.CurrentRound + 1
	fresh := make(map[string]*round.Record, len(rounds[room.CurrentRound]))
	for conn, rec := range rounds[room.CurrentRound] {
		nr := round.NewRecord(rec.ConnID, rec.Identifier, rec.Seat, next, rec.JoinedAt)
		nr.Name = rec.Name
		fresh[conn] = nr
	}
	rounds[next] = fresh
	room.CurrentRound = next
	room.Owned = []int{}
	return next, nil
}

// DeleteRoomsOlderThan removes rooms created before cutoff with all their records.
func (s *MemoryStore) DeleteRoomsOlderThan(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted []string
	for id, room := range s.rooms {
		if room.CreatedAt.Before(cutoff) {
			delete(s.rooms, id)
			delete(s.records, id)
			deleted = append(deleted, id)
		}
	}
	return deleted, nil
}
