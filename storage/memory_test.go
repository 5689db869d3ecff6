package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"card-room-server/cards"
	"card-room-server/round"
	"card-room-server/roomerrors"
)

func newTestRoom(t *testing.T, s *MemoryStore, id string, created time.Time) {
	t.Helper()
	room := &round.Room{ID: id, Mode: 3, MaxBoosts: 2, Decks: 1, CurrentRound: 1, Owned: []int{}, CreatedAt: created}
	if err := s.CreateRoom(context.Background(), room); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
}

func TestMemoryStore_RoomNotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.GetRoom(context.Background(), "NOPE00")
	if !errors.Is(err, roomerrors.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
	if _, err := s.AdvanceRoundRecords(context.Background(), "NOPE00"); !errors.Is(err, roomerrors.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound from AdvanceRoundRecords, got %v", err)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	newTestRoom(t, s, "ABC123", time.Now())

	rec := round.NewRecord("c1", "p1", 1, 1, time.Now())
	if err := s.AddParticipant(ctx, "ABC123", rec); err != nil {
		t.Fatal(err)
	}
	rec.Folded = true // mutating the caller's copy must not leak into the store

	recs, err := s.GetRoundParticipants(ctx, "ABC123", 1)
	if err != nil {
		t.Fatal(err)
	}
	if recs["c1"].Folded {
		t.Error("store shares memory with the caller")
	}
	recs["c1"].ChantCount = 9
	again, _ := s.GetRoundParticipants(ctx, "ABC123", 1)
	if again["c1"].ChantCount != 0 {
		t.Error("returned record shares memory with the store")
	}
}

func TestMemoryStore_SettersAreIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	newTestRoom(t, s, "ABC123", time.Now())
	s.AddParticipant(ctx, "ABC123", round.NewRecord("c1", "p1", 1, 1, time.Now()))

	hand := []cards.Card{cards.MustFromIndex(4), cards.MustFromIndex(17), cards.MustFromIndex(30)}
	for i := 0; i < 2; i++ {
		s.SetHand(ctx, "c1", "ABC123", 1, hand)
		s.SetFlippedCards(ctx, "c1", "ABC123", 1, []int{2})
		s.SetChantCount(ctx, "c1", "ABC123", 1, 2)
		s.SetTotalSwaps(ctx, "c1", "ABC123", 1, 1)
		s.SetFolded(ctx, "c1", "ABC123", 1, true)
		s.SetReady(ctx, "c1", "ABC123", 1, true)
		s.SetCompletion(ctx, "c1", "ABC123", 1, 50)
		s.SetOwnedCards(ctx, "ABC123", []int{4, 17, 30})
	}

	recs, _ := s.GetRoundParticipants(ctx, "ABC123", 1)
	got := recs["c1"]
	if len(got.Hand) != 3 || got.Hand[1].Index != 17 {
		t.Errorf("hand = %v", got.Hand)
	}
	if len(got.Flipped) != 1 || got.Flipped[0] != 2 {
		t.Errorf("flipped = %v", got.Flipped)
	}
	if got.ChantCount != 2 || got.TotalSwaps != 1 || !got.Folded || !got.Ready || got.Completion != 50 {
		t.Errorf("unexpected record %+v", got)
	}
	room, _ := s.GetRoom(ctx, "ABC123")
	if len(room.Owned) != 3 {
		t.Errorf("owned = %v", room.Owned)
	}
}

func TestMemoryStore_UpdateOfUnknownRecordIsIgnored(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	newTestRoom(t, s, "ABC123", time.Now())
	if err := s.SetFolded(ctx, "ghost", "ABC123", 1, true); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	recs, _ := s.GetRoundParticipants(ctx, "ABC123", 1)
	if len(recs) != 0 {
		t.Errorf("expected no records, got %d", len(recs))
	}
}

func TestMemoryStore_RekeyKeepsRecord(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	newTestRoom(t, s, "ABC123", time.Now())
	s.AddParticipant(ctx, "ABC123", round.NewRecord("old", "p1", 1, 1, time.Now()))
	s.SetChantCount(ctx, "old", "ABC123", 1, 3)

	if err := s.RekeyParticipant(ctx, "old", "new", "ABC123"); err != nil {
		t.Fatal(err)
	}
	recs, _ := s.GetRoundParticipants(ctx, "ABC123", 1)
	if _, ok := recs["old"]; ok {
		t.Error("old connection id still present")
	}
	got, ok := recs["new"]
	if !ok {
		t.Fatal("record not found under new connection id")
	}
	if got.ConnID != "new" || got.ChantCount != 3 || got.Identifier != "p1" {
		t.Errorf("unexpected record %+v", got)
	}
}

func TestMemoryStore_RekeyRefusesToOverwrite(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	newTestRoom(t, s, "ABC123", time.Now())
	s.AddParticipant(ctx, "ABC123", round.NewRecord("a", "p1", 1, 1, time.Now()))
	s.AddParticipant(ctx, "ABC123", round.NewRecord("b", "p2", 2, 1, time.Now()))
	s.SetChantCount(ctx, "a", "ABC123", 1, 4)

	err := s.RekeyParticipant(ctx, "b", "a", "ABC123")
	if !errors.Is(err, roomerrors.ErrIdentifierConflict) {
		t.Fatalf("expected identifier conflict, got %v", err)
	}
	recs, _ := s.GetRoundParticipants(ctx, "ABC123", 1)
	if len(recs) != 2 {
		t.Fatalf("expected both records to survive, got %d", len(recs))
	}
	if recs["a"].Identifier != "p1" || recs["a"].ChantCount != 4 {
		t.Errorf("record a was overwritten: %+v", recs["a"])
	}
	if recs["b"].Identifier != "p2" {
		t.Errorf("record b was moved: %+v", recs["b"])
	}
}

func TestMemoryStore_AdvanceRoundRecords(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	newTestRoom(t, s, "ABC123", time.Now())
	s.AddParticipant(ctx, "ABC123", round.NewRecord("c1", "p1", 1, 1, time.Now()))
	s.AddParticipant(ctx, "ABC123", round.NewRecord("c2", "p2", 2, 1, time.Now()))
	s.SetFolded(ctx, "c1", "ABC123", 1, true)
	s.SetOwnedCards(ctx, "ABC123", []int{1, 2, 3})

	next, err := s.AdvanceRoundRecords(ctx, "ABC123")
	if err != nil {
		t.Fatal(err)
	}
	if next != 2 {
		t.Fatalf("next round = %d, want 2", next)
	}
	room, _ := s.GetRoom(ctx, "ABC123")
	if room.CurrentRound != 2 || len(room.Owned) != 0 {
		t.Errorf("room not advanced: %+v", room)
	}
	fresh, _ := s.GetRoundParticipants(ctx, "ABC123", 2)
	if len(fresh) != 2 {
		t.Fatalf("expected 2 fresh records, got %d", len(fresh))
	}
	if fresh["c1"].Folded || fresh["c1"].Name != "Player1" || fresh["c2"].Seat != 2 {
		t.Errorf("fresh records wrong: %+v %+v", fresh["c1"], fresh["c2"])
	}
	old, _ := s.GetRoundParticipants(ctx, "ABC123", 1)
	if !old["c1"].Folded {
		t.Error("past round record was modified")
	}
}

func TestMemoryStore_DeleteRoomsOlderThan(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()
	newTestRoom(t, s, "OLD001", now.Add(-48*time.Hour))
	newTestRoom(t, s, "NEW001", now.Add(-time.Hour))

	deleted, err := s.DeleteRoomsOlderThan(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(deleted) != 1 || deleted[0] != "OLD001" {
		t.Fatalf("deleted = %v", deleted)
	}
	if _, err := s.GetRoom(ctx, "OLD001"); !errors.Is(err, roomerrors.ErrRoomNotFound) {
		t.Error("old room still present")
	}
	if _, err := s.GetRoom(ctx, "NEW001"); err != nil {
		t.Errorf("recent room deleted: %v", err)
	}
}
