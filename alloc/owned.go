package alloc

import (
	"sort"

	"card-room-server/cards"
)

// Owned is the set of card indices currently held by any participant of a room's active round.
type Owned map[int]struct{}

// NewOwned builds a set from indices. Blank and negative indices are ignored.
func NewOwned(indices ...int) Owned {
	o := make(Owned, len(indices))
	for _, idx := range indices {
		o.Add(idx)
	}
	return o
}

// FromHands rebuilds the owned set as the union of every hand's indices.
func FromHands(hands ...[]cards.Card) Owned {
	o := make(Owned)
	for _, h := range hands {
		for _, c := range h {
			o.Add(c.Index)
		}
	}
	return o
}

// Add inserts idx unless it is the blank sentinel.
func (o Owned) Add(idx int) {
	if idx < 0 {
		return
	}
	o[idx] = struct{}{}
}

// Remove deletes idx from the set.
func (o Owned) Remove(idx int) {
	delete(o, idx)
}

// Has reports whether idx is owned.
func (o Owned) Has(idx int) bool {
	_, ok := o[idx]
	return ok
}

// Clone returns an independent copy.
func (o Owned) Clone() Owned {
	c := make(Owned, len(o))
	for idx := range o {
		c[idx] = struct{}{}
	}
	return c
}

// Sorted returns the indices ascending. Never nil, so it marshals as [].
func (o Owned) Sorted() []int {
	out := make([]int, 0, len(o))
	for idx := range o {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// Equal reports whether both sets hold the same indices.
func (o Owned) Equal(other Owned) bool {
	if len(o) != len(other) {
		return false
	}
	for idx := range o {
		if !other.Has(idx) {
			return false
		}
	}
	return true
}

// Available returns the indices of the universe not in owned, ascending.
func Available(owned Owned, decks int) []int {
	out := make([]int, 0, cards.Size(decks))
	for idx := 0; idx < cards.Size(decks); idx++ {
		if !owned.Has(idx) {
			out = append(out, idx)
		}
	}
	return out
}
