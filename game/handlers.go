package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"card-room-server/alloc"
	"card-room-server/roomerrors"
	"card-room-server/round"
)

func (r *Room) handleJoin(ctx context.Context, a Action) error {
	res, err := r.table.Reconnect(a.PersistentID, a.ConnID, r.now())
	if err != nil {
		return err
	}
	rec := res.Record

	switch res.Kind {
	case round.Rekeyed:
		err = r.store.RekeyParticipant(ctx, res.OldConnID, a.ConnID, r.ID)
	case round.ClaimedCreator:
		err = errors.Join(
			r.store.SetIdentifier(ctx, res.OldConnID, r.ID, rec.Identifier),
			r.store.RekeyParticipant(ctx, res.OldConnID, a.ConnID, r.ID),
		)
	case round.Joined:
		err = r.store.AddParticipant(ctx, r.ID, rec)
	}
	if err != nil {
		return r.storeFailed(ctx, err)
	}
	slog.Info("participant joined", "tag", "game", "room", r.ID, "conn", a.ConnID, "name", rec.Name, "kind", res.Kind)

	if len(rec.Hand) == 0 {
		if err := r.dealTo(ctx, rec); err != nil {
			return err
		}
	}
	if res.Kind == round.Joined {
		r.delivery.BroadcastToRoom(r.ID, EventPlayerJoined, PlayerJoinedMsg{
			PlayerID:   rec.ConnID,
			PlayerName: rec.Name,
			Stats:      r.table.Stats(),
		}, rec.ConnID)
	}
	r.delivery.SendTo(rec.ConnID, EventGameStarted, r.gameStarted(rec))
	return nil
}

// dealTo deals a fresh hand to one participant from the available pool.
func (r *Room) dealTo(ctx context.Context, rec *round.Record) error {
	room := r.table.Room
	owned := r.table.Owned()
	hand, degraded := r.engine.Deal(room.Mode, owned, room.Decks)
	if degraded {
		slog.Warn("deal exhausted the pool", "tag", "game", "room", r.ID, "conn", rec.ConnID,
			"remaining", r.table.RemainingCards(), "error", roomerrors.ErrDegradedPoolReset)
	}
	for _, c := range hand {
		owned.Add(c.Index)
	}
	err := errors.Join(
		r.store.SetHand(ctx, rec.ConnID, r.ID, rec.Round, hand),
		r.store.SetOwnedCards(ctx, r.ID, owned.Sorted()),
	)
	if err != nil {
		return r.storeFailed(ctx, err)
	}
	rec.Hand = hand
	r.table.SetOwned(owned)
	r.reconcile(ctx)
	return nil
}

func (r *Room) handleFlipCard(ctx context.Context, a Action) error {
	changed, err := r.table.Flip(a.ConnID, a.Slot)
	if err != nil || !changed {
		return err
	}
	rec, _ := r.table.Participant(a.ConnID)
	if err := r.store.SetFlippedCards(ctx, rec.ConnID, r.ID, rec.Round, rec.Flipped); err != nil {
		return r.storeFailed(ctx, err)
	}
	r.delivery.BroadcastToRoom(r.ID, EventCardFlipped, CardFlippedMsg{
		PlayerID:  rec.ConnID,
		CardIndex: a.Slot,
		Rotation:  a.Rotation,
	}, "")
	return nil
}

func (r *Room) request(rec *round.Record, slot int) alloc.Request {
	return alloc.Request{
		Hand:       rec.Hand,
		Slot:       slot,
		ChantCount: rec.ChantCount,
		TotalSwaps: rec.TotalSwaps,
		MaxBoosts:  r.table.Room.MaxBoosts,
		Decks:      r.table.Room.Decks,
	}
}

// applyDraw persists an engine result, then applies it to the record and table.
func (r *Room) applyDraw(ctx context.Context, rec *round.Record, res alloc.Result) error {
	owned := res.Owned.Sorted()
	err := errors.Join(
		r.store.SetHand(ctx, rec.ConnID, r.ID, rec.Round, res.Hand),
		r.store.SetOwnedCards(ctx, r.ID, owned),
		r.store.SetTotalSwaps(ctx, rec.ConnID, r.ID, rec.Round, res.TotalSwaps),
		r.store.SetChantCount(ctx, rec.ConnID, r.ID, rec.Round, res.ChantCount),
	)
	if err != nil {
		return r.storeFailed(ctx, err)
	}
	rec.Hand = res.Hand
	rec.TotalSwaps = res.TotalSwaps
	rec.ChantCount = res.ChantCount
	r.table.SetOwned(res.Owned)
	r.reconcile(ctx)
	return nil
}

func (r *Room) handleSwapCard(ctx context.Context, a Action) error {
	rec, err := r.table.Participant(a.ConnID)
	if err != nil {
		return err
	}
	res, err := r.engine.Swap(r.request(rec, a.Slot), r.table.Owned())
	if err != nil {
		return err
	}
	if err := r.applyDraw(ctx, rec, res); err != nil {
		return err
	}
	result := "success"
	if res.Outcome == alloc.OutcomeBlank {
		result = "blank"
		slog.Info("swap drew from an empty pool", "tag", "game", "room", r.ID, "conn", rec.ConnID)
	}
	r.delivery.BroadcastToRoom(r.ID, EventCardSwapped, CardSwappedMsg{
		PlayerID:        rec.ConnID,
		CardIndex:       a.Slot,
		UsedCards:       append([]int{}, r.table.Room.Owned...),
		Result:          result,
		Outcome:         res.Outcome.String(),
		NewCard:         rec.Hand[a.Slot],
		TotalSwaps:      rec.TotalSwaps,
		SwapsRemaining:  r.table.Room.MaxBoosts - rec.TotalSwaps,
		ResetChantCount: res.Tier > 0,
	}, "")
	return nil
}

func (r *Room) handleBoostSwap(ctx context.Context, a Action) error {
	rec, err := r.table.Participant(a.ConnID)
	if err != nil {
		return err
	}
	res, err := r.engine.BoostSwap(r.request(rec, a.Slot), a.DesiredValue, a.BoostLevel, r.table.Owned())
	if err != nil {
		return err
	}
	if err := r.applyDraw(ctx, rec, res); err != nil {
		return err
	}
	r.delivery.BroadcastToRoom(r.ID, EventBoostCompleted, BoostCompletedMsg{
		PlayerID:        rec.ConnID,
		CardIndex:       a.Slot,
		UsedCards:       append([]int{}, r.table.Room.Owned...),
		BoostsRemaining: r.table.Room.MaxBoosts - rec.TotalSwaps,
		NewCard:         res.Card,
		BoostLevel:      a.BoostLevel,
		Outcome:         res.Outcome.String(),
		ResetChantCount: true,
	}, "")
	return nil
}

func (r *Room) handleFold(ctx context.Context, a Action) error {
	changed, allFolded, err := r.table.Fold(a.ConnID)
	if err != nil || !changed {
		return err
	}
	rec, _ := r.table.Participant(a.ConnID)
	if err := r.store.SetFolded(ctx, rec.ConnID, r.ID, rec.Round, true); err != nil {
		return r.storeFailed(ctx, err)
	}
	stats := r.table.Stats()
	if allFolded {
		slog.Info("all participants folded", "tag", "game", "room", r.ID, "round", rec.Round)
		r.delivery.BroadcastToRoom(r.ID, EventAllFolded, AllFoldedMsg{
			Message:          "Everyone folded! Press ready to start the next round.",
			CanStartNewRound: true,
			Stats:            stats,
		}, "")
		return nil
	}
	r.delivery.BroadcastToRoom(r.ID, EventPlayerFolded, PlayerFoldedMsg{
		PlayerID: rec.ConnID,
		Stats:    stats,
	}, "")
	return nil
}

func (r *Room) handleReady(ctx context.Context, a Action) error {
	allReady, err := r.table.VoteReady(a.ConnID)
	if err != nil {
		return err
	}
	rec, _ := r.table.Participant(a.ConnID)
	if err := r.store.SetReady(ctx, rec.ConnID, r.ID, rec.Round, true); err != nil {
		return r.storeFailed(ctx, err)
	}
	r.delivery.BroadcastToRoom(r.ID, EventPlayerReady, PlayerReadyMsg{
		PlayerID: rec.ConnID,
		Stats:    r.table.Stats(),
	}, "")
	if allReady {
		return r.advance(ctx)
	}
	return nil
}

func (r *Room) handleStartNewRound(ctx context.Context, a Action) error {
	if _, err := r.table.Participant(a.ConnID); err != nil {
		return err
	}
	if !r.table.AllReady() {
		s := r.table.Stats()
		return fmt.Errorf("%w: %d of %d ready", roomerrors.ErrNotAllReady, s.ReadyCount, s.Total)
	}
	return r.advance(ctx)
}

// advance starts the next round: fresh records, new hands dealt in seat
// order, and the owned set rebuilt from the dealt hands.
func (r *Room) advance(ctx context.Context) error {
	next, err := r.store.AdvanceRoundRecords(ctx, r.ID)
	if err != nil {
		return r.storeFailed(ctx, err)
	}
	r.table.AdvanceRound(next)

	room := r.table.Room
	owned := alloc.NewOwned()
	recs := r.table.Records()
	for _, rec := range recs {
		hand, degraded := r.engine.Deal(room.Mode, owned, room.Decks)
		if degraded {
			slog.Warn("deal exhausted the pool", "tag", "game", "room", r.ID, "conn", rec.ConnID,
				"round", next, "error", roomerrors.ErrDegradedPoolReset)
		}
		for _, c := range hand {
			owned.Add(c.Index)
		}
		rec.Hand = hand
		if err := r.store.SetHand(ctx, rec.ConnID, r.ID, next, hand); err != nil {
			return r.storeFailed(ctx, err)
		}
	}
	r.table.SetOwned(r.table.OwnedFromHands())
	if err := r.store.SetOwnedCards(ctx, r.ID, room.Owned); err != nil {
		return r.storeFailed(ctx, err)
	}
	slog.Info("new round started", "tag", "game", "room", r.ID, "round", next, "players", len(recs))

	r.delivery.BroadcastToRoom(r.ID, EventNewRoundStarted, NewRoundStartedMsg{
		Message:      "A new round has started!",
		Round:        next,
		UsedCards:    append([]int{}, room.Owned...),
		PlayersCount: len(recs),
	}, "")
	for _, rec := range recs {
		r.delivery.SendTo(rec.ConnID, EventGameStarted, r.gameStarted(rec))
	}
	return nil
}

func (r *Room) handleSwapPositions(ctx context.Context, a Action) error {
	if _, err := r.table.Participant(a.ConnID); err != nil {
		return err
	}
	changed, err := r.table.SwapPositions(a.Slot, a.ToSlot)
	if err != nil {
		return err
	}
	var errs []error
	for _, rec := range changed {
		errs = append(errs,
			r.store.SetHand(ctx, rec.ConnID, r.ID, rec.Round, rec.Hand),
			r.store.SetFlippedCards(ctx, rec.ConnID, r.ID, rec.Round, rec.Flipped),
		)
	}
	if err := errors.Join(errs...); err != nil {
		return r.storeFailed(ctx, err)
	}
	r.delivery.BroadcastToRoom(r.ID, EventCardPositionsSwapped, CardPositionsSwappedMsg{
		PlayerID:  a.ConnID,
		FromIndex: a.Slot,
		ToIndex:   a.ToSlot,
	}, a.ConnID)
	return nil
}

func (r *Room) handleChantCount(ctx context.Context, a Action) error {
	rec, err := r.table.SetChant(a.ConnID, a.ChantCount)
	if err != nil {
		return err
	}
	if err := r.store.SetChantCount(ctx, rec.ConnID, r.ID, rec.Round, rec.ChantCount); err != nil {
		return r.storeFailed(ctx, err)
	}
	r.delivery.BroadcastToRoom(r.ID, EventChantCountUpdated, ChantCountUpdatedMsg{
		PlayerID:   rec.ConnID,
		ChantCount: rec.ChantCount,
	}, "")
	return nil
}

func (r *Room) handleCompletion(ctx context.Context, a Action) error {
	rec, err := r.table.SetCompletion(a.ConnID, a.Percentage)
	if err != nil {
		return err
	}
	if err := r.store.SetCompletion(ctx, rec.ConnID, r.ID, rec.Round, rec.Completion); err != nil {
		return r.storeFailed(ctx, err)
	}
	r.delivery.BroadcastToRoom(r.ID, EventCompletionUpdated, CompletionUpdatedMsg{
		PlayerID:   rec.ConnID,
		Percentage: rec.Completion,
	}, "")
	return nil
}

// handleOpenAll folds every participant and reveals every card.
func (r *Room) handleOpenAll(ctx context.Context) error {
	recs := r.table.OpenAll()
	var errs []error
	for _, rec := range recs {
		errs = append(errs,
			r.store.SetFolded(ctx, rec.ConnID, r.ID, rec.Round, true),
			r.store.SetFlippedCards(ctx, rec.ConnID, r.ID, rec.Round, rec.Flipped),
		)
	}
	if err := errors.Join(errs...); err != nil {
		return r.storeFailed(ctx, err)
	}
	slog.Info("system call openall", "tag", "game", "room", r.ID, "players", len(recs))
	for _, rec := range recs {
		for i := range rec.Hand {
			r.delivery.BroadcastToRoom(r.ID, EventCardFlipped, CardFlippedMsg{
				PlayerID:  rec.ConnID,
				CardIndex: i,
				Rotation:  fullFlipRotation,
			}, "")
		}
	}
	r.delivery.BroadcastToRoom(r.ID, EventAllFoldedSilently, AllFoldedMsg{
		Message:          "System: every player has folded.",
		CanStartNewRound: true,
		Stats:            r.table.Stats(),
	}, "")
	return nil
}

// handleForceNewRound marks everyone ready and starts the next round.
func (r *Room) handleForceNewRound(ctx context.Context) error {
	recs := r.table.ForceReady()
	var errs []error
	for _, rec := range recs {
		errs = append(errs, r.store.SetReady(ctx, rec.ConnID, r.ID, rec.Round, true))
	}
	if err := errors.Join(errs...); err != nil {
		return r.storeFailed(ctx, err)
	}
	slog.Info("system call newround", "tag", "game", "room", r.ID, "players", len(recs))
	if !r.table.AllReady() {
		return fmt.Errorf("%w: room has no players", roomerrors.ErrNotAllReady)
	}
	return r.advance(ctx)
}
