package alloc

import (
	"fmt"
	"math/rand"

	"github.com/thoas/go-funk"

	"card-room-server/cards"
	"card-room-server/roomerrors"
)

// Outcome describes how a swap or boost picked its card.
type Outcome int

const (
	OutcomePlain   Outcome = iota // uniform draw from the available pool
	OutcomeBetter                 // chant boost hit a strictly higher value
	OutcomeGood                   // chant boost hit the same or one lower value
	OutcomeDesired                // boost swap hit the requested value
	OutcomeBlank                  // nothing left to draw
)

// String returns the protocol string for an Outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomePlain:
		return "plain"
	case OutcomeBetter:
		return "better"
	case OutcomeGood:
		return "good"
	case OutcomeDesired:
		return "desired"
	case OutcomeBlank:
		return "blank"
	default:
		return "unknown"
	}
}

// goodWindow is added on top of the chant tier for the "good" candidate band.
const goodWindow = 20

// Tier returns the boost percentage earned by a chant streak.
func Tier(chantCount int) int {
	switch {
	case chantCount >= 3:
		return 30
	case chantCount == 2:
		return 20
	case chantCount == 1:
		return 10
	default:
		return 0
	}
}

// MinPoolSize returns the minimum candidate-pool size for a boost level.
// Unknown levels fall back to the widest pool.
func MinPoolSize(boostLevel int) int {
	switch boostLevel {
	case 3:
		return 5
	case 4:
		return 3
	default:
		return 10
	}
}

// Request carries the participant state a swap or boost needs.
type Request struct {
	Hand       []cards.Card
	Slot       int
	ChantCount int
	TotalSwaps int
	MaxBoosts  int
	Decks      int
}

// Result is the state after a swap or boost. Hand and Owned are fresh copies.
type Result struct {
	Card       cards.Card
	Replaced   cards.Card
	Hand       []cards.Card
	Owned      Owned
	ChantCount int
	TotalSwaps int
	Tier       int
	Outcome    Outcome
}

func (r Request) check() error {
	if r.TotalSwaps >= r.MaxBoosts {
		return fmt.Errorf("%w: used %d of %d", roomerrors.ErrQuotaExceeded, r.TotalSwaps, r.MaxBoosts)
	}
	if r.Slot < 0 || r.Slot >= len(r.Hand) {
		return fmt.Errorf("%w: slot %d, hand has %d cards", roomerrors.ErrInvalidSlot, r.Slot, len(r.Hand))
	}
	return nil
}

// Engine draws cards for one room. It is not safe for concurrent use; each
// room actor owns its own Engine.
type Engine struct {
	rng *rand.Rand
}

// NewEngine returns an Engine drawing from src.
func NewEngine(src rand.Source) *Engine {
	return &Engine{rng: rand.New(src)}
}

// Deal draws handSize distinct indices from the indices not in owned.
// When fewer than handSize remain, the pool resets to the full universe and
// degraded is true; the caller must log it.
func (e *Engine) Deal(handSize int, owned Owned, decks int) (hand []cards.Card, degraded bool) {
	pool := Available(owned, decks)
	if len(pool) < handSize {
		pool = cards.Universe(decks)
		degraded = true
	}
	picked := e.sample(pool, handSize)
	hand = make([]cards.Card, len(picked))
	for i, idx := range picked {
		hand[i] = cards.MustFromIndex(idx)
	}
	return hand, degraded
}

// Swap replaces the card at req.Slot with a draw from the available pool,
// biased by the chant tier. An empty pool yields a blank: the hand and owned
// set are untouched but the attempt still counts against the quota.
func (e *Engine) Swap(req Request, owned Owned) (Result, error) {
	if err := req.check(); err != nil {
		return Result{}, err
	}
	old := req.Hand[req.Slot]
	res := Result{
		Replaced:   old,
		Hand:       cloneHand(req.Hand),
		Owned:      owned.Clone(),
		ChantCount: req.ChantCount,
		TotalSwaps: req.TotalSwaps + 1,
		Tier:       Tier(req.ChantCount),
	}

	avail := Available(owned, req.Decks)
	if len(avail) == 0 {
		res.Card = cards.Blank
		res.Outcome = OutcomeBlank
		return res, nil
	}

	idx, outcome := e.pickBoosted(avail, old.Value, res.Tier)
	if res.Tier > 0 {
		res.ChantCount = 0
	}
	res.Outcome = outcome
	res.place(req.Slot, old, idx)
	return res, nil
}

// pickBoosted draws from better candidates with probability tier%, from good
// candidates with a further 20%, and uniformly otherwise.
func (e *Engine) pickBoosted(avail []int, replacedValue, tier int) (int, Outcome) {
	if tier <= 0 {
		return avail[e.rng.Intn(len(avail))], OutcomePlain
	}
	var better, good []int
	for _, idx := range avail {
		v := cards.ValueOf(idx)
		if v > replacedValue {
			better = append(better, idx)
		} else if v >= replacedValue-1 {
			good = append(good, idx)
		}
	}
	roll := e.rng.Float64() * 100
	switch {
	case roll < float64(tier) && len(better) > 0:
		return better[e.rng.Intn(len(better))], OutcomeBetter
	case roll < float64(tier+goodWindow) && len(good) > 0:
		return good[e.rng.Intn(len(good))], OutcomeGood
	default:
		return avail[e.rng.Intn(len(avail))], OutcomePlain
	}
}

// BoostSwap draws from a candidate pool padded to the boost level's minimum
// size. Blank padding guarantees a real chance of missing when the deck is
// thin. A blank pick returns ErrBoostMiss with no state change and no quota used.
func (e *Engine) BoostSwap(req Request, desiredValue, boostLevel int, owned Owned) (Result, error) {
	if err := req.check(); err != nil {
		return Result{}, err
	}
	minPool := MinPoolSize(boostLevel)
	avail := Available(owned, req.Decks)

	var pool []int
	if boostLevel > 1 && desiredValue >= 1 && desiredValue <= cards.ValuesPerSuit {
		desired := desiredCards(owned, desiredValue, req.Decks)
		if len(desired) > 0 {
			pool = append(pool, desired...)
			var rest []int
			for _, idx := range avail {
				if !funk.ContainsInt(desired, idx) {
					rest = append(rest, idx)
				}
			}
			if need := minPool - len(pool); need > 0 {
				if len(rest) >= need {
					pool = append(pool, e.sample(rest, need)...)
				} else {
					pool = padBlanks(append(pool, rest...), minPool)
				}
			}
		}
	}
	if pool == nil {
		pool = padBlanks(append([]int(nil), avail...), minPool)
	}

	idx := pool[e.rng.Intn(len(pool))]
	if idx == cards.BlankIndex {
		return Result{}, roomerrors.ErrBoostMiss
	}

	old := req.Hand[req.Slot]
	res := Result{
		Replaced:   old,
		Hand:       cloneHand(req.Hand),
		Owned:      owned.Clone(),
		ChantCount: 0,
		TotalSwaps: req.TotalSwaps + 1,
		Outcome:    OutcomePlain,
	}
	if cards.ValueOf(idx) == desiredValue {
		res.Outcome = OutcomeDesired
	}
	res.place(req.Slot, old, idx)
	return res, nil
}

// desiredCards returns, per suit, the lowest available index carrying value.
func desiredCards(owned Owned, value, decks int) []int {
	out := make([]int, 0, cards.Suits)
	for suit := 0; suit < cards.Suits; suit++ {
		for deck := 1; deck <= decks; deck++ {
			idx := cards.IndexOf(value, suit, deck)
			if !owned.Has(idx) {
				out = append(out, idx)
				break
			}
		}
	}
	return out
}

func (r *Result) place(slot int, old cards.Card, idx int) {
	r.Card = cards.MustFromIndex(idx)
	r.Hand[slot] = r.Card
	r.Owned.Remove(old.Index)
	r.Owned.Add(idx)
}

// sample picks n distinct elements of pool without replacement.
func (e *Engine) sample(pool []int, n int) []int {
	if n > len(pool) {
		n = len(pool)
	}
	buf := append([]int(nil), pool...)
	for i := 0; i < n; i++ {
		j := i + e.rng.Intn(len(buf)-i)
		buf[i], buf[j] = buf[j], buf[i]
	}
	return buf[:n]
}

func padBlanks(pool []int, size int) []int {
	for len(pool) < size {
		pool = append(pool, cards.BlankIndex)
	}
	return pool
}

func cloneHand(h []cards.Card) []cards.Card {
	return append([]cards.Card(nil), h...)
}
