package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"card-room-server/config"
	"card-room-server/roomerrors"
	"card-room-server/round"
	"card-room-server/storage"
)

const (
	roomIDLength   = 6
	roomIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxIDAttempts  = 20
)

// Manager owns the live room actors and routes actions to them.
type Manager struct {
	ctx      context.Context
	cfg      *config.Config
	store    storage.Store
	delivery Delivery

	mu    sync.Mutex
	rooms map[string]*Room

	// NewSource seeds each room's engine. Tests replace it for determinism.
	NewSource func() rand.Source
	now       func() time.Time
	idRand    *rand.Rand
}

// NewManager creates a Manager. Room actors stop when ctx is cancelled.
func NewManager(ctx context.Context, cfg *config.Config, store storage.Store, delivery Delivery) *Manager {
	return &Manager{
		ctx:       ctx,
		cfg:       cfg,
		store:     store,
		delivery:  delivery,
		rooms:     make(map[string]*Room),
		NewSource: func() rand.Source { return rand.NewSource(time.Now().UnixNano()) },
		now:       time.Now,
		idRand:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NormalizeRoomID trims and upper-cases a client-supplied room id.
func NormalizeRoomID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// CreateRoom creates a room with the caller seated as its creator (Player1,
// no persistent identifier yet). Invalid settings fall back to configured
// defaults; a negative maxBoosts asks for the default and zero disables boosts.
// When connID is set, room_created is sent to it.
func (m *Manager) CreateRoom(ctx context.Context, connID string, mode, maxBoosts, decks int) (*round.Room, error) {
	if !round.ValidMode(mode) {
		mode = m.cfg.DefaultMode
	}
	if maxBoosts < 0 {
		maxBoosts = m.cfg.DefaultMaxBoosts
	}
	if !round.ValidDecks(decks) {
		decks = m.cfg.DefaultDecks
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.newRoomID(ctx)
	if err != nil {
		return nil, err
	}
	now := m.now()
	room := &round.Room{
		ID:           id,
		Mode:         mode,
		MaxBoosts:    maxBoosts,
		Decks:        decks,
		CurrentRound: 1,
		Owned:        []int{},
		CreatedAt:    now,
	}
	if err := m.store.CreateRoom(ctx, room); err != nil {
		return nil, fmt.Errorf("creating room: %w", err)
	}
	table := round.NewTable(room.Clone(), nil)
	creator := table.AddCreator(connID, now)
	if err := m.store.AddParticipant(ctx, id, creator); err != nil {
		return nil, fmt.Errorf("seating creator: %w", err)
	}
	m.startLocked(table)
	slog.Info("room created", "tag", "game", "room", id, "mode", mode, "max_boosts", maxBoosts, "decks", decks)

	if connID != "" {
		m.delivery.SendTo(connID, EventRoomCreated, RoomCreatedMsg{
			RoomID:    id,
			Mode:      mode,
			MaxBoosts: maxBoosts,
			Decks:     decks,
			Players:   []PlayerSummary{summarize(creator)},
		})
	}
	return room, nil
}

func (m *Manager) newRoomID(ctx context.Context) (string, error) {
	buf := make([]byte, roomIDLength)
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		for i := range buf {
			buf[i] = roomIDAlphabet[m.idRand.Intn(len(roomIDAlphabet))]
		}
		id := string(buf)
		if _, live := m.rooms[id]; live {
			continue
		}
		_, err := m.store.GetRoom(ctx, id)
		if errors.Is(err, roomerrors.ErrRoomNotFound) {
			return id, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", errors.New("could not generate a unique room id")
}

// Room returns the live actor for id, loading it from the store if needed.
func (m *Manager) Room(ctx context.Context, id string) (*Room, error) {
	id = NormalizeRoomID(id)
	if id == "" {
		return nil, roomerrors.ErrMissingRoomID
	}
	m.mu.Lock()
	r, ok := m.rooms[id]
	m.mu.Unlock()
	if ok {
		return r, nil
	}

	table, err := loadTable(ctx, m.store, id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another caller may have started the room while we were loading.
	if r, ok := m.rooms[id]; ok {
		return r, nil
	}
	slog.Debug("room loaded from store", "tag", "game", "room", id, "round", table.Room.CurrentRound)
	return m.startLocked(table), nil
}

func (m *Manager) startLocked(table *round.Table) *Room {
	r := NewRoom(table, m.store, m.delivery, m.cfg, m.NewSource())
	m.rooms[r.ID] = r
	go r.Run(m.ctx)
	return r
}

// Dispatch sends a to the room and waits for the result, bounded by the
// configured action timeout. Failures the room could not report itself
// (unknown room, timeout) are sent to a.ConnID as an error event.
func (m *Manager) Dispatch(ctx context.Context, roomID string, a Action) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	r, err := m.Room(ctx, roomID)
	processed := false
	if err == nil {
		processed, err = r.submit(ctx, a)
	}
	if err != nil && !processed {
		slog.Info("action not delivered", "tag", "game", "room", roomID, "action", a.Type, "conn", a.ConnID, "error", err)
		if a.ConnID != "" {
			m.delivery.SendTo(a.ConnID, EventError, failure(err))
		}
	}
	return err
}

// Snapshot returns the read-only view of a room.
func (m *Manager) Snapshot(ctx context.Context, roomID string) (Snapshot, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	r, err := m.Room(ctx, roomID)
	if err != nil {
		return Snapshot{}, err
	}
	return r.Snapshot(ctx)
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := m.cfg.ActionTimeout(); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

// Remove stops and forgets a live room. The stored room is untouched.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	r, ok := m.rooms[id]
	delete(m.rooms, id)
	m.mu.Unlock()
	if ok {
		r.Stop()
	}
}

// Live returns the number of running room actors.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

// Shutdown stops every room actor.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	rooms := m.rooms
	m.rooms = make(map[string]*Room)
	m.mu.Unlock()
	for _, r := range rooms {
		r.Stop()
	}
}

// loadTable reads a room and its current round's records from the store.
func loadTable(ctx context.Context, store storage.Store, id string) (*round.Table, error) {
	room, err := store.GetRoom(ctx, id)
	if err != nil {
		return nil, err
	}
	recs, err := store.GetRoundParticipants(ctx, id, room.CurrentRound)
	if err != nil {
		return nil, err
	}
	list := make([]*round.Record, 0, len(recs))
	for _, rec := range recs {
		list = append(list, rec)
	}
	return round.NewTable(room, list), nil
}
