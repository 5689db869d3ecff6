package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"card-room-server/alloc"
	"card-room-server/config"
	"card-room-server/roomerrors"
	"card-room-server/round"
	"card-room-server/storage"
)

// Room owns one room's live state. Every read-allocate-write sequence on the
// owned-card set runs inside Run, so requests for the same room never interleave.
type Room struct {
	ID string

	table    *round.Table
	engine   *alloc.Engine
	store    storage.Store
	delivery Delivery
	cfg      *config.Config
	now      func() time.Time

	Actions chan Action
	Done    chan struct{}

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRoom creates the actor for a loaded table. Call Run in its own goroutine.
func NewRoom(table *round.Table, store storage.Store, delivery Delivery, cfg *config.Config, src rand.Source) *Room {
	return &Room{
		ID:       table.Room.ID,
		table:    table,
		engine:   alloc.NewEngine(src),
		store:    store,
		delivery: delivery,
		cfg:      cfg,
		now:      time.Now,
		Actions:  make(chan Action, 16),
		Done:     make(chan struct{}),
		stop:     make(chan struct{}),
	}
}

// Run is the room loop. It processes actions sequentially until ctx is
// cancelled or Stop is called.
func (r *Room) Run(ctx context.Context) {
	defer close(r.Done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case a := <-r.Actions:
			err := r.handle(ctx, a)
			if err != nil {
				r.report(a, err)
			}
			if a.reply != nil {
				a.reply <- err
			}
		}
	}
}

// Stop ends the loop. Pending and later submissions fail with ErrRoomClosed.
func (r *Room) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Submit enqueues a and waits for it to be processed. The returned error is
// the handler's; failures have already been reported to a.ConnID.
func (r *Room) Submit(ctx context.Context, a Action) error {
	_, err := r.submit(ctx, a)
	return err
}

// submit also reports whether the room processed the action.
func (r *Room) submit(ctx context.Context, a Action) (processed bool, err error) {
	a.reply = make(chan error, 1)
	select {
	case r.Actions <- a:
	case <-ctx.Done():
		return false, ctx.Err()
	case <-r.Done:
		return false, fmt.Errorf("%w: %s", roomerrors.ErrRoomClosed, r.ID)
	}
	select {
	case err := <-a.reply:
		return true, err
	case <-ctx.Done():
		return false, ctx.Err()
	case <-r.Done:
		return false, fmt.Errorf("%w: %s", roomerrors.ErrRoomClosed, r.ID)
	}
}

// Snapshot returns a read-only view of the room without hands.
func (r *Room) Snapshot(ctx context.Context) (Snapshot, error) {
	out := make(chan Snapshot, 1)
	if err := r.Submit(ctx, Action{Type: ActionSnapshot, snapshot: out}); err != nil {
		return Snapshot{}, err
	}
	// A nil error means the loop has already filled out.
	return <-out, nil
}

func (r *Room) handle(ctx context.Context, a Action) error {
	switch a.Type {
	case ActionJoin:
		return r.handleJoin(ctx, a)
	case ActionFlipCard:
		return r.handleFlipCard(ctx, a)
	case ActionSwapCard:
		return r.handleSwapCard(ctx, a)
	case ActionBoostSwap:
		return r.handleBoostSwap(ctx, a)
	case ActionFold:
		return r.handleFold(ctx, a)
	case ActionReadyForNewRound:
		return r.handleReady(ctx, a)
	case ActionSwapCardPositions:
		return r.handleSwapPositions(ctx, a)
	case ActionStartNewRound:
		return r.handleStartNewRound(ctx, a)
	case ActionUpdateChantCount:
		return r.handleChantCount(ctx, a)
	case ActionUpdateCompletion:
		return r.handleCompletion(ctx, a)
	case ActionOpenAll:
		return r.handleOpenAll(ctx)
	case ActionNewRound:
		return r.handleForceNewRound(ctx)
	case ActionSnapshot:
		if a.snapshot != nil {
			a.snapshot <- r.snapshot()
		}
		return nil
	default:
		return fmt.Errorf("unknown action type %d", a.Type)
	}
}

// report translates a handler failure into an event for the sender.
// Unknown connections are only logged.
func (r *Room) report(a Action, err error) {
	switch {
	case errors.Is(err, roomerrors.ErrParticipantNotFound):
		slog.Warn("event from unknown connection ignored", "tag", "game", "room", r.ID, "action", a.Type, "conn", a.ConnID)
		return
	case errors.Is(err, roomerrors.ErrBoostMiss):
		slog.Debug("boost missed", "tag", "game", "room", r.ID, "conn", a.ConnID)
	default:
		slog.Info("action rejected", "tag", "game", "room", r.ID, "action", a.Type, "conn", a.ConnID, "error", err)
	}
	if a.ConnID == "" {
		return
	}
	event := EventError
	switch a.Type {
	case ActionSwapCard:
		event = EventSwapFailed
	case ActionBoostSwap:
		event = EventBoostFailed
	}
	r.delivery.SendTo(a.ConnID, event, failure(err))
}

// storeFailed reloads the room from the store so memory never runs ahead of
// persisted state, and returns err.
func (r *Room) storeFailed(ctx context.Context, err error) error {
	slog.Error("store write failed, reloading room", "tag", "game", "room", r.ID, "error", err)
	if table, lerr := loadTable(ctx, r.store, r.ID); lerr != nil {
		slog.Error("reload failed", "tag", "game", "room", r.ID, "error", lerr)
	} else {
		r.table = table
	}
	return fmt.Errorf("persisting room %s: %w", r.ID, err)
}

// reconcile repairs the owned set when it no longer equals the union of hands.
func (r *Room) reconcile(ctx context.Context) {
	if !r.table.Drift() {
		return
	}
	healed := r.table.OwnedFromHands()
	slog.Warn("owned set drifted from hands, repairing", "tag", "game", "room", r.ID,
		"stored", len(r.table.Room.Owned), "from_hands", len(healed))
	r.table.SetOwned(healed)
	if err := r.store.SetOwnedCards(ctx, r.ID, r.table.Room.Owned); err != nil {
		slog.Error("persisting repaired owned set failed", "tag", "game", "room", r.ID, "error", err)
	}
}

func (r *Room) snapshot() Snapshot {
	room := r.table.Room
	s := Snapshot{
		RoomID:         room.ID,
		Mode:           room.Mode,
		MaxBoosts:      room.MaxBoosts,
		Decks:          room.Decks,
		Round:          room.CurrentRound,
		Status:         r.table.Status().String(),
		UsedCards:      append([]int{}, room.Owned...),
		RemainingCards: r.table.RemainingCards(),
		Players:        []PlayerSummary{},
		Stats:          r.table.Stats(),
	}
	for _, rec := range r.table.Records() {
		s.Players = append(s.Players, summarize(rec))
	}
	return s
}

func (r *Room) gameStarted(rec *round.Record) GameStartedMsg {
	room := r.table.Room
	remaining := r.table.RemainingCards()
	return GameStartedMsg{
		RoomID:             room.ID,
		PlayerID:           rec.ConnID,
		PlayerName:         rec.Name,
		Round:              room.CurrentRound,
		Cards:              append(rec.Hand[:0:0], rec.Hand...),
		UsedCards:          append([]int{}, room.Owned...),
		PlayersCount:       r.table.Len(),
		Mode:               room.Mode,
		MaxBoosts:          room.MaxBoosts,
		Decks:              room.Decks,
		ChantCount:         rec.ChantCount,
		TotalSwaps:         rec.TotalSwaps,
		FlippedCards:       append([]int{}, rec.Flipped...),
		Folded:             rec.Folded,
		ShowDeckSuggestion: remaining < r.cfg.DeckSuggestionThreshold && room.Decks < round.MaxDecks,
		RemainingCards:     remaining,
		Stats:              r.table.Stats(),
	}
}
