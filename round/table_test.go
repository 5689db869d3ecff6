package round

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"card-room-server/cards"
	"card-room-server/roomerrors"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func testTable(mode int) *Table {
	room := &Room{ID: "ABC123", Mode: mode, MaxBoosts: 2, Decks: 1, CurrentRound: 1, Owned: []int{}}
	return NewTable(room, nil)
}

func dealt(indices ...int) []cards.Card {
	h := make([]cards.Card, len(indices))
	for i, idx := range indices {
		h[i] = cards.MustFromIndex(idx)
	}
	return h
}

func reconnect(t *testing.T, tb *Table, persistentID, connID string, now time.Time) Reconnection {
	t.Helper()
	r, err := tb.Reconnect(persistentID, connID, now)
	require.NoError(t, err)
	return r
}

func TestReconnect_JoinAssignsNextPlayerName(t *testing.T) {
	tb := testTable(3)
	tb.AddCreator("c1", t0)
	r := reconnect(t, tb, "p2", "c2", t0)
	assert.Equal(t, ClaimedCreator, r.Kind, "the creator slot is claimed first")

	r = reconnect(t, tb, "p3", "c3", t0)
	require.Equal(t, Joined, r.Kind)
	assert.Equal(t, "Player2", r.Record.Name)
	assert.Equal(t, 2, r.Record.Seat)
	assert.Equal(t, 2, tb.Len())
}

func TestReconnect_PreservesRecordUnderNewConnection(t *testing.T) {
	tb := testTable(3)
	r := reconnect(t, tb, "p1", "conn-a", t0)
	require.Equal(t, Joined, r.Kind)
	rec := r.Record
	rec.Hand = dealt(1, 2, 3)
	rec.ChantCount = 2
	rec.TotalSwaps = 1
	rec.Folded = true

	r = reconnect(t, tb, "p1", "conn-b", t0)
	require.Equal(t, Rekeyed, r.Kind)
	assert.Equal(t, "conn-a", r.OldConnID)
	assert.Equal(t, 1, tb.Len(), "no duplicate record for the same identifier")

	got, err := tb.Participant("conn-b")
	require.NoError(t, err)
	assert.Equal(t, dealt(1, 2, 3), got.Hand)
	assert.Equal(t, 2, got.ChantCount)
	assert.Equal(t, 1, got.TotalSwaps)
	assert.True(t, got.Folded)

	_, err = tb.Participant("conn-a")
	assert.True(t, errors.Is(err, roomerrors.ErrParticipantNotFound))
}

func TestReconnect_CreatorClaimRebindsConnection(t *testing.T) {
	tb := testTable(3)
	tb.AddCreator("http-session", t0)
	r := reconnect(t, tb, "persist-1", "socket-1", t0)
	require.Equal(t, ClaimedCreator, r.Kind)
	assert.Equal(t, "persist-1", r.Record.Identifier)
	assert.Equal(t, "socket-1", r.Record.ConnID)
	assert.Equal(t, "http-session", r.OldConnID)

	// Later reconnects go through the identifier path.
	r = reconnect(t, tb, "persist-1", "socket-2", t0)
	assert.Equal(t, Rekeyed, r.Kind)
	assert.Equal(t, 1, tb.Len())
}

func TestReconnect_SameConnectionIsExisting(t *testing.T) {
	tb := testTable(3)
	reconnect(t, tb, "p1", "c1", t0)
	r := reconnect(t, tb, "p1", "c1", t0)
	assert.Equal(t, Existing, r.Kind)

	reconnect(t, tb, "", "c2", t0)
	r = reconnect(t, tb, "", "c2", t0)
	assert.Equal(t, Existing, r.Kind)
	assert.Equal(t, 2, tb.Len())
}

func TestReconnect_NoCreatorClaimWhenSeveralUnclaimed(t *testing.T) {
	tb := testTable(3)
	tb.AddCreator("c1", t0)
	reconnect(t, tb, "", "c2", t0) // anonymous second participant
	r := reconnect(t, tb, "p9", "c9", t0)
	assert.Equal(t, Joined, r.Kind)
	assert.Equal(t, 3, tb.Len())
}

func TestReconnect_SeatedConnectionCannotTakeAnotherSeat(t *testing.T) {
	tb := testTable(3)
	a := reconnect(t, tb, "id-a", "a", t0).Record
	a.Hand = dealt(0, 1, 2)
	b := reconnect(t, tb, "id-b", "b", t0).Record
	b.Hand = dealt(10, 11, 12)

	_, err := tb.Reconnect("id-b", "a", t0)
	require.True(t, errors.Is(err, roomerrors.ErrIdentifierConflict), "got %v", err)
	assert.Equal(t, 2, tb.Len())

	got, err := tb.Participant("a")
	require.NoError(t, err)
	assert.Equal(t, "id-a", got.Identifier)
	assert.Equal(t, dealt(0, 1, 2), got.Hand)
	got, err = tb.Participant("b")
	require.NoError(t, err)
	assert.Equal(t, dealt(10, 11, 12), got.Hand)
}

func TestReconnect_SeatedConnectionDoesNotClaimCreator(t *testing.T) {
	tb := testTable(3)
	tb.AddCreator("creator", t0)
	tb.records["c2"] = NewRecord("c2", "id-2", 2, 1, t0)

	r := reconnect(t, tb, "fresh-id", "c2", t0)
	assert.Equal(t, Existing, r.Kind)
	assert.Equal(t, "id-2", r.Record.Identifier)

	creator, err := tb.Participant("creator")
	require.NoError(t, err)
	assert.Empty(t, creator.Identifier)
	assert.Equal(t, 2, tb.Len())
}

func TestFold_AnnouncesAllFoldedOnce(t *testing.T) {
	tb := testTable(3)
	reconnect(t, tb, "p1", "c1", t0)
	reconnect(t, tb, "p2", "c2", t0)

	changed, all, err := tb.Fold("c1")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, all)
	assert.Equal(t, Active, tb.Status())

	changed, all, err = tb.Fold("c2")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, all)
	assert.Equal(t, AllFolded, tb.Status())

	changed, all, err = tb.Fold("c2")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.False(t, all)

	_, _, err = tb.Fold("nobody")
	assert.True(t, errors.Is(err, roomerrors.ErrParticipantNotFound))
}

func TestVoteReady_UnanimityAndStats(t *testing.T) {
	tb := testTable(3)
	reconnect(t, tb, "p1", "c1", t0)
	reconnect(t, tb, "p2", "c2", t0)
	tb.Fold("c1")

	all, err := tb.VoteReady("c1")
	require.NoError(t, err)
	assert.False(t, all)
	assert.Equal(t, Stats{Total: 2, FoldedCount: 1, ReadyCount: 1}, tb.Stats())

	all, err = tb.VoteReady("c2")
	require.NoError(t, err)
	assert.True(t, all)
}

func TestAdvanceRound_ResetsEverything(t *testing.T) {
	tb := testTable(3)
	a := reconnect(t, tb, "p1", "c1", t0).Record
	b := reconnect(t, tb, "p2", "c2", t0).Record
	a.Hand, b.Hand = dealt(1, 2, 3), dealt(4, 5, 6)
	a.Folded, a.Ready, a.TotalSwaps, a.ChantCount = true, true, 2, 3
	b.Flipped = []int{0, 2}
	tb.SetOwned(tb.OwnedFromHands())

	tb.AdvanceRound(2)

	assert.Equal(t, 2, tb.Room.CurrentRound)
	assert.Empty(t, tb.Room.Owned)
	for _, rec := range tb.Records() {
		assert.Equal(t, 2, rec.Round)
		assert.Empty(t, rec.Hand)
		assert.Empty(t, rec.Flipped)
		assert.False(t, rec.Folded)
		assert.False(t, rec.Ready)
		assert.Zero(t, rec.TotalSwaps)
		assert.Zero(t, rec.ChantCount)
	}
	// Old records are untouched history.
	assert.Equal(t, 1, a.Round)
	assert.True(t, a.Folded)

	got, err := tb.Participant("c1")
	require.NoError(t, err)
	assert.Equal(t, "p1", got.Identifier)
	assert.Equal(t, "Player1", got.Name)
}

func TestSwapPositions_AllHandsAndSelfInverse(t *testing.T) {
	tb := testTable(3)
	a := reconnect(t, tb, "p1", "c1", t0).Record
	b := reconnect(t, tb, "p2", "c2", t0).Record
	a.Hand, b.Hand = dealt(1, 2, 3), dealt(4, 5, 6)
	a.Flipped = []int{0}
	b.Flipped = []int{0, 2}

	changed, err := tb.SwapPositions(0, 2)
	require.NoError(t, err)
	assert.Len(t, changed, 2)
	assert.Equal(t, dealt(3, 2, 1), a.Hand)
	assert.Equal(t, dealt(6, 5, 4), b.Hand)
	assert.ElementsMatch(t, []int{2}, a.Flipped)
	assert.ElementsMatch(t, []int{0, 2}, b.Flipped)

	_, err = tb.SwapPositions(0, 2)
	require.NoError(t, err)
	assert.Equal(t, dealt(1, 2, 3), a.Hand)
	assert.Equal(t, dealt(4, 5, 6), b.Hand)
	assert.ElementsMatch(t, []int{0}, a.Flipped)
	assert.ElementsMatch(t, []int{0, 2}, b.Flipped)
}

func TestSwapPositions_RejectsOutOfRange(t *testing.T) {
	tb := testTable(3)
	reconnect(t, tb, "p1", "c1", t0).Record.Hand = dealt(1, 2, 3)
	for _, pair := range [][2]int{{-1, 0}, {0, 3}, {5, 1}} {
		_, err := tb.SwapPositions(pair[0], pair[1])
		assert.True(t, errors.Is(err, roomerrors.ErrInvalidSlot), "%v", pair)
	}
}

func TestSwapPositions_SkipsUndealtHands(t *testing.T) {
	tb := testTable(6)
	a := reconnect(t, tb, "p1", "c1", t0).Record
	reconnect(t, tb, "p2", "c2", t0)
	a.Hand = dealt(1, 2, 3, 4, 5, 6)
	changed, err := tb.SwapPositions(1, 4)
	require.NoError(t, err)
	assert.Len(t, changed, 1)
	assert.Equal(t, 5, a.Hand[1].Index)
}

func TestFlip(t *testing.T) {
	tb := testTable(3)
	reconnect(t, tb, "p1", "c1", t0).Record.Hand = dealt(1, 2, 3)

	changed, err := tb.Flip("c1", 1)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = tb.Flip("c1", 1)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = tb.Flip("c1", 3)
	assert.True(t, errors.Is(err, roomerrors.ErrInvalidSlot))
}

func TestOpenAllAndForceReady(t *testing.T) {
	tb := testTable(3)
	reconnect(t, tb, "p1", "c1", t0).Record.Hand = dealt(1, 2, 3)
	reconnect(t, tb, "p2", "c2", t0).Record.Hand = dealt(4, 5, 6)

	tb.OpenAll()
	assert.True(t, tb.AllFolded())
	for _, rec := range tb.Records() {
		assert.Equal(t, []int{0, 1, 2}, rec.Flipped)
	}
	tb.ForceReady()
	assert.True(t, tb.AllReady())
}

func TestDriftDetection(t *testing.T) {
	tb := testTable(3)
	reconnect(t, tb, "p1", "c1", t0).Record.Hand = dealt(1, 2, 3)
	tb.SetOwned(tb.OwnedFromHands())
	assert.False(t, tb.Drift())
	assert.Equal(t, 49, tb.RemainingCards())

	tb.Room.Owned = []int{1, 2, 3, 40}
	assert.True(t, tb.Drift())
}

func TestSetChantAndCompletionClamp(t *testing.T) {
	tb := testTable(3)
	reconnect(t, tb, "p1", "c1", t0)

	rec, err := tb.SetChant("c1", -4)
	require.NoError(t, err)
	assert.Zero(t, rec.ChantCount)
	rec, _ = tb.SetChant("c1", 3)
	assert.Equal(t, 3, rec.ChantCount)

	rec, err = tb.SetCompletion("c1", 140)
	require.NoError(t, err)
	assert.Equal(t, 100.0, rec.Completion)
	rec, _ = tb.SetCompletion("c1", 37.5)
	assert.Equal(t, 37.5, rec.Completion)

	_, err = tb.SetChant("ghost", 1)
	assert.ErrorIs(t, err, roomerrors.ErrParticipantNotFound)
}
