package round

import (
	"fmt"
	"sort"
	"time"

	"github.com/thoas/go-funk"

	"card-room-server/alloc"
	"card-room-server/cards"
	"card-room-server/roomerrors"
)

// Table is a room together with the records of its current round.
// It is not safe for concurrent use; the owning room actor serializes access.
type Table struct {
	Room    *Room
	records map[string]*Record
}

// NewTable builds a table from a room and its current-round records.
func NewTable(room *Room, records []*Record) *Table {
	t := &Table{Room: room, records: make(map[string]*Record, len(records))}
	for _, rec := range records {
		t.records[rec.ConnID] = rec
	}
	return t
}

// Records returns the current round's records ordered by seat.
func (t *Table) Records() []*Record {
	out := make([]*Record, 0, len(t.records))
	for _, rec := range t.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seat < out[j].Seat })
	return out
}

// Participant returns the record owned by connID.
func (t *Table) Participant(connID string) (*Record, error) {
	rec, ok := t.records[connID]
	if !ok {
		return nil, fmt.Errorf("%w: %s in room %s", roomerrors.ErrParticipantNotFound, connID, t.Room.ID)
	}
	return rec, nil
}

// Len returns the number of participants in the current round.
func (t *Table) Len() int {
	return len(t.records)
}

// Stats recomputes the room summary from the records.
func (t *Table) Stats() Stats {
	s := Stats{Total: len(t.records)}
	for _, rec := range t.records {
		if rec.Folded {
			s.FoldedCount++
		}
		if rec.Ready {
			s.ReadyCount++
		}
	}
	return s
}

// Status derives the room-level state.
func (t *Table) Status() Status {
	if t.AllFolded() {
		return AllFolded
	}
	return Active
}

// AllFolded reports whether every participant has folded.
func (t *Table) AllFolded() bool {
	if len(t.records) == 0 {
		return false
	}
	for _, rec := range t.records {
		if !rec.Folded {
			return false
		}
	}
	return true
}

// AllReady reports whether every participant voted for a new round.
func (t *Table) AllReady() bool {
	if len(t.records) == 0 {
		return false
	}
	for _, rec := range t.records {
		if !rec.Ready {
			return false
		}
	}
	return true
}

// Fold marks connID as folded. allFolded is true only for the call that
// completed the fold set, so the room-wide announcement happens once.
func (t *Table) Fold(connID string) (changed, allFolded bool, err error) {
	rec, err := t.Participant(connID)
	if err != nil {
		return false, false, err
	}
	if rec.Folded {
		return false, false, nil
	}
	rec.Folded = true
	return true, t.AllFolded(), nil
}

// VoteReady marks connID as ready. allReady means the round must advance.
func (t *Table) VoteReady(connID string) (allReady bool, err error) {
	rec, err := t.Participant(connID)
	if err != nil {
		return false, err
	}
	rec.Ready = true
	return t.AllReady(), nil
}

// AdvanceRound replaces every record with a fresh one for round next and
// clears the owned set. Hands must be dealt again by the caller.
func (t *Table) AdvanceRound(next int) {
	fresh := make(map[string]*Record, len(t.records))
	for conn, rec := range t.records {
		nr := NewRecord(rec.ConnID, rec.Identifier, rec.Seat, next, rec.JoinedAt)
		nr.Name = rec.Name
		fresh[conn] = nr
	}
	t.records = fresh
	t.Room.CurrentRound = next
	t.Room.Owned = []int{}
}

// ReconnectKind says how a join request was matched to a record.
type ReconnectKind int

const (
	Existing       ReconnectKind = iota // connection already owns a record
	Rekeyed                             // persistent identifier matched
	ClaimedCreator                      // the unclaimed creator record took the identifier
	Joined                              // brand-new participant
)

// String returns a log-friendly name.
func (k ReconnectKind) String() string {
	switch k {
	case Existing:
		return "existing"
	case Rekeyed:
		return "rekeyed"
	case ClaimedCreator:
		return "claimed_creator"
	case Joined:
		return "joined"
	default:
		return "unknown"
	}
}

// Reconnection is the outcome of Reconnect.
type Reconnection struct {
	Kind      ReconnectKind
	Record    *Record
	OldConnID string
}

// Reconnect resolves a join request. A persistent identifier match rekeys that
// record to connID. Otherwise, when exactly one record has no identifier and
// it is the creator's seat, the identifier is bound to it and it is rekeyed.
// Anything else joins as a new participant.
//
// A connection that already holds a seat never takes over another one:
// an identifier belonging to a different record fails with
// ErrIdentifierConflict, and the creator claim is skipped.
func (t *Table) Reconnect(persistentID, connID string, now time.Time) (Reconnection, error) {
	own := t.records[connID]
	if persistentID != "" {
		for _, rec := range t.records {
			if rec.Identifier != persistentID {
				continue
			}
			if own != nil && own != rec {
				return Reconnection{}, fmt.Errorf("%w: %s is seat %d", roomerrors.ErrIdentifierConflict, connID, own.Seat)
			}
			old := rec.ConnID
			t.rekey(rec, connID)
			kind := Rekeyed
			if old == connID {
				kind = Existing
			}
			return Reconnection{Kind: kind, Record: rec, OldConnID: old}, nil
		}
		if creator := t.unclaimedCreator(); creator != nil && (own == nil || own == creator) {
			old := creator.ConnID
			creator.Identifier = persistentID
			t.rekey(creator, connID)
			return Reconnection{Kind: ClaimedCreator, Record: creator, OldConnID: old}, nil
		}
	}
	if own != nil {
		return Reconnection{Kind: Existing, Record: own, OldConnID: connID}, nil
	}

	seat := 1
	for _, rec := range t.records {
		if rec.Seat >= seat {
			seat = rec.Seat + 1
		}
	}
	rec := NewRecord(connID, persistentID, seat, t.Room.CurrentRound, now)
	t.records[connID] = rec
	return Reconnection{Kind: Joined, Record: rec}, nil
}

// AddCreator seats the room creator. The creator has no persistent identifier
// until its first join supplies one.
func (t *Table) AddCreator(connID string, now time.Time) *Record {
	rec := NewRecord(connID, "", 1, t.Room.CurrentRound, now)
	t.records[connID] = rec
	return rec
}

func (t *Table) unclaimedCreator() *Record {
	var found *Record
	for _, rec := range t.records {
		if rec.Identifier == "" {
			if found != nil {
				return nil
			}
			found = rec
		}
	}
	if found == nil || found.Seat != 1 {
		return nil
	}
	return found
}

func (t *Table) rekey(rec *Record, connID string) {
	if rec.ConnID == connID {
		return
	}
	delete(t.records, rec.ConnID)
	rec.ConnID = connID
	t.records[connID] = rec
}

// Flip reveals the card at slot of connID's hand. changed is false when it was already revealed.
func (t *Table) Flip(connID string, slot int) (changed bool, err error) {
	rec, err := t.Participant(connID)
	if err != nil {
		return false, err
	}
	if slot < 0 || slot >= len(rec.Hand) {
		return false, fmt.Errorf("%w: slot %d, hand has %d cards", roomerrors.ErrInvalidSlot, slot, len(rec.Hand))
	}
	if funk.ContainsInt(rec.Flipped, slot) {
		return false, nil
	}
	rec.Flipped = append(rec.Flipped, slot)
	return true, nil
}

// SwapPositions applies the same slot permutation to every participant's hand
// and flip set. Applying it twice restores the original layout.
func (t *Table) SwapPositions(from, to int) ([]*Record, error) {
	if from < 0 || from >= t.Room.Mode || to < 0 || to >= t.Room.Mode {
		return nil, fmt.Errorf("%w: positions %d and %d, hand size %d", roomerrors.ErrInvalidSlot, from, to, t.Room.Mode)
	}
	var changed []*Record
	if from == to {
		return changed, nil
	}
	for _, rec := range t.Records() {
		if from >= len(rec.Hand) || to >= len(rec.Hand) {
			continue
		}
		rec.Hand[from], rec.Hand[to] = rec.Hand[to], rec.Hand[from]
		for i, pos := range rec.Flipped {
			switch pos {
			case from:
				rec.Flipped[i] = to
			case to:
				rec.Flipped[i] = from
			}
		}
		changed = append(changed, rec)
	}
	return changed, nil
}

// OpenAll folds every participant and reveals every card.
func (t *Table) OpenAll() []*Record {
	recs := t.Records()
	for _, rec := range recs {
		rec.Folded = true
		rec.Flipped = rec.Flipped[:0]
		for i := range rec.Hand {
			rec.Flipped = append(rec.Flipped, i)
		}
	}
	return recs
}

// ForceReady marks every participant ready for a new round.
func (t *Table) ForceReady() []*Record {
	recs := t.Records()
	for _, rec := range recs {
		rec.Ready = true
	}
	return recs
}

// Owned returns the room's owned set as the allocation engine sees it.
func (t *Table) Owned() alloc.Owned {
	return alloc.NewOwned(t.Room.Owned...)
}

// SetOwned stores the engine's updated owned set on the room.
func (t *Table) SetOwned(o alloc.Owned) {
	t.Room.Owned = o.Sorted()
}

// OwnedFromHands recomputes the owned set from every hand.
func (t *Table) OwnedFromHands() alloc.Owned {
	hands := make([][]cards.Card, 0, len(t.records))
	for _, rec := range t.records {
		hands = append(hands, rec.Hand)
	}
	return alloc.FromHands(hands...)
}

// Drift reports whether the stored owned set disagrees with the hands.
func (t *Table) Drift() bool {
	return !t.Owned().Equal(t.OwnedFromHands())
}

// RemainingCards returns how many indices are not owned.
func (t *Table) RemainingCards() int {
	return cards.Size(t.Room.Decks) - len(t.Room.Owned)
}

// SetChant stores the client-reported chant streak. Negative values clamp to 0.
func (t *Table) SetChant(connID string, n int) (*Record, error) {
	rec, err := t.Participant(connID)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		n = 0
	}
	rec.ChantCount = n
	return rec, nil
}

// SetCompletion stores the client-reported completion percentage, clamped to [0, 100].
func (t *Table) SetCompletion(connID string, pct float64) (*Record, error) {
	rec, err := t.Participant(connID)
	if err != nil {
		return nil, err
	}
	switch {
	case pct < 0:
		pct = 0
	case pct > 100:
		pct = 100
	}
	rec.Completion = pct
	return rec, nil
}
