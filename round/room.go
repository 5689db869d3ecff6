package round

import (
	"fmt"
	"time"

	"card-room-server/cards"
)

// Hand sizes a room can be created with.
const (
	ModeThree = 3
	ModeSix   = 6
)

// MaxDecks is the largest deck count a room can use.
const MaxDecks = 2

// Room holds a room's settings and the owned-card set of its current round.
type Room struct {
	ID           string    `json:"id"`
	Mode         int       `json:"mode"`
	MaxBoosts    int       `json:"max_boosts"`
	Decks        int       `json:"decks"`
	CurrentRound int       `json:"current_round"`
	Owned        []int     `json:"used_cards"`
	CreatedAt    time.Time `json:"created_at"`
}

// Clone returns a deep copy of r.
func (r *Room) Clone() *Room {
	c := *r
	c.Owned = append([]int{}, r.Owned...)
	return &c
}

// ValidMode reports whether mode is a supported hand size.
func ValidMode(mode int) bool {
	return mode == ModeThree || mode == ModeSix
}

// ValidDecks reports whether decks is a supported deck count.
func ValidDecks(decks int) bool {
	return decks >= 1 && decks <= MaxDecks
}

// Record is one participant's state for one round. Records of past rounds are history.
type Record struct {
	ConnID     string       `json:"player_id"`
	Identifier string       `json:"identifier,omitempty"`
	Name       string       `json:"name"`
	Seat       int          `json:"seat"`
	Round      int          `json:"round"`
	Hand       []cards.Card `json:"cards"`
	ChantCount int          `json:"chant_count"`
	TotalSwaps int          `json:"total_swaps"`
	Folded     bool         `json:"folded"`
	Ready      bool         `json:"ready_for_new_round"`
	Flipped    []int        `json:"flipped_cards"`
	Completion float64      `json:"completion_percentage"`
	JoinedAt   time.Time    `json:"joined_at"`
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	c := *r
	c.Hand = append([]cards.Card{}, r.Hand...)
	c.Flipped = append([]int{}, r.Flipped...)
	return &c
}

// NewRecord returns a fresh record for a participant in the given round.
func NewRecord(connID, identifier string, seat, round int, joinedAt time.Time) *Record {
	return &Record{
		ConnID:     connID,
		Identifier: identifier,
		Name:       DisplayName(seat),
		Seat:       seat,
		Round:      round,
		Hand:       []cards.Card{},
		Flipped:    []int{},
		JoinedAt:   joinedAt,
	}
}

// DisplayName returns the generated name for a seat.
func DisplayName(seat int) string {
	return fmt.Sprintf("Player%d", seat)
}

// Stats is the derived room summary sent with most room-wide events.
type Stats struct {
	Total       int `json:"total_players"`
	FoldedCount int `json:"folded_count"`
	ReadyCount  int `json:"ready_count"`
}

// Status is the room-level state derived from its records.
type Status int

const (
	Active Status = iota
	AllFolded
)

// String returns the protocol string for a Status.
func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case AllFolded:
		return "all_folded"
	default:
		return "unknown"
	}
}
