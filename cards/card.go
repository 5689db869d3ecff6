package cards

import (
	"fmt"

	"card-room-server/roomerrors"
)

const (
	// DeckSize is the number of cards in one standard deck.
	DeckSize = 52
	// ValuesPerSuit is the number of distinct values (ace=1 .. king=13).
	ValuesPerSuit = 13
	// Suits is the number of suits per deck.
	Suits = 4
	// BlankIndex marks "no card drawn". It never enters an owned set.
	BlankIndex = -1
)

// Card is a single card. Index is its identity; Value, Suit and Deck are derived from it.
type Card struct {
	Value int `json:"value"`
	Suit  int `json:"suit"`
	Index int `json:"index"`
	Deck  int `json:"deck"`
}

// Blank is the sentinel card returned when nothing could be drawn.
var Blank = Card{Index: BlankIndex}

// IsBlank reports whether c is the blank sentinel.
func (c Card) IsBlank() bool {
	return c.Index == BlankIndex
}

// Size returns the number of indices in a universe of the given deck count.
func Size(decks int) int {
	return DeckSize * decks
}

// ValueOf returns the value (1..13) carried by index.
func ValueOf(index int) int {
	return index%ValuesPerSuit + 1
}

// SuitOf returns the suit (0..3) carried by index.
func SuitOf(index int) int {
	return (index % DeckSize) / ValuesPerSuit
}

// FromIndex maps a linear index to its card. Indices outside [0, 52*decks) are rejected.
func FromIndex(index, decks int) (Card, error) {
	if index < 0 || index >= Size(decks) {
		return Card{}, fmt.Errorf("%w: %d not in [0,%d)", roomerrors.ErrIndexOutOfRange, index, Size(decks))
	}
	return card(index), nil
}

// card builds a card without range checking. Callers guarantee the index is valid.
func card(index int) Card {
	return Card{
		Value: ValueOf(index),
		Suit:  SuitOf(index),
		Index: index,
		Deck:  index/DeckSize + 1,
	}
}

// MustFromIndex is FromIndex for indices already known to be in range.
func MustFromIndex(index int) Card {
	if index < 0 {
		panic(fmt.Sprintf("cards: negative index %d", index))
	}
	return card(index)
}

// IndexOf returns the linear index for a value/suit pair in the given deck (1-based).
func IndexOf(value, suit, deck int) int {
	return (deck-1)*DeckSize + suit*ValuesPerSuit + value - 1
}

// Universe returns every index for the deck count, ascending.
func Universe(decks int) []int {
	out := make([]int, Size(decks))
	for i := range out {
		out[i] = i
	}
	return out
}

// CardsOfValue returns every index carrying value across all decks, ascending.
// Values outside [1,13] yield nil.
func CardsOfValue(value, decks int) []int {
	if value < 1 || value > ValuesPerSuit {
		return nil
	}
	out := make([]int, 0, Suits*decks)
	for i := 0; i < Size(decks); i++ {
		if ValueOf(i) == value {
			out = append(out, i)
		}
	}
	return out
}

// Indices returns the indices of a hand, skipping blanks.
func Indices(hand []Card) []int {
	out := make([]int, 0, len(hand))
	for _, c := range hand {
		if !c.IsBlank() {
			out = append(out, c.Index)
		}
	}
	return out
}
