package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"card-room-server/cards"
	"card-room-server/round"
	"card-room-server/roomerrors"
)

func TestEncodeJSON_NilBecomesEmptyArray(t *testing.T) {
	var owned []int
	got, err := encodeJSON(owned)
	if err != nil {
		t.Fatal(err)
	}
	if got != "[]" {
		t.Errorf("encodeJSON(nil) = %q, want []", got)
	}
}

func TestDecodeCards(t *testing.T) {
	hand, err := decodeCards([]byte(`[{"value":5,"suit":1,"index":17,"deck":1}]`))
	if err != nil {
		t.Fatal(err)
	}
	if len(hand) != 1 || hand[0] != cards.MustFromIndex(17) {
		t.Errorf("decoded %v", hand)
	}
	empty, err := decodeCards(nil)
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("decodeCards(nil) = %v, %v", empty, err)
	}
	if _, err := decodeCards([]byte(`{`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestDecodeInts(t *testing.T) {
	got, err := decodeInts([]byte(`[0,2]`))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1] != 2 {
		t.Errorf("decoded %v", got)
	}
}

func TestNewPostgresStore_EmptyURL(t *testing.T) {
	s, err := NewPostgresStore(context.Background(), "")
	if err != nil || s != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", s, err)
	}
}

// TestPostgresStore_RoundTrip runs against a real database when TEST_DATABASE_URL is set.
func TestPostgresStore_RoundTrip(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := NewPostgresStore(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	id := fmt.Sprintf("T%05d", time.Now().UnixNano()%100000)
	room := &round.Room{ID: id, Mode: 3, MaxBoosts: 2, Decks: 1, CurrentRound: 1, Owned: []int{}, CreatedAt: time.Now().Add(-72 * time.Hour)}
	if err := s.CreateRoom(ctx, room); err != nil {
		t.Fatal(err)
	}
	if err := s.AddParticipant(ctx, id, round.NewRecord("c1", "", 1, 1, time.Now())); err != nil {
		t.Fatal(err)
	}
	hand := []cards.Card{cards.MustFromIndex(1), cards.MustFromIndex(2), cards.MustFromIndex(3)}
	s.SetHand(ctx, "c1", id, 1, hand)
	s.SetOwnedCards(ctx, id, []int{1, 2, 3})
	s.SetIdentifier(ctx, "c1", id, "p1")
	s.RekeyParticipant(ctx, "c1", "c2", id)

	recs, err := s.GetRoundParticipants(ctx, id, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got := recs["c2"]; got == nil || got.Identifier != "p1" || len(got.Hand) != 3 {
		t.Fatalf("unexpected records %+v", recs)
	}

	next, err := s.AdvanceRoundRecords(ctx, id)
	if err != nil || next != 2 {
		t.Fatalf("AdvanceRoundRecords = %d, %v", next, err)
	}
	got, _ := s.GetRoom(ctx, id)
	if got.CurrentRound != 2 || len(got.Owned) != 0 {
		t.Errorf("room not advanced: %+v", got)
	}

	deleted, err := s.DeleteRoomsOlderThan(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, d := range deleted {
		found = found || d == id
	}
	if !found {
		t.Errorf("room %s not deleted", id)
	}
	if _, err := s.GetRoom(ctx, id); !errors.Is(err, roomerrors.ErrRoomNotFound) {
		t.Errorf("expected ErrRoomNotFound, got %v", err)
	}
}
