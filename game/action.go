package game

// ActionType enumerates the kinds of actions a room can process.
type ActionType int

const (
	ActionJoin ActionType = iota
	ActionFlipCard
	ActionSwapCard
	ActionBoostSwap
	ActionFold
	ActionReadyForNewRound
	ActionSwapCardPositions
	ActionStartNewRound
	ActionUpdateChantCount
	ActionUpdateCompletion
	ActionOpenAll  // system call: fold everyone and reveal every card
	ActionNewRound // system call: mark everyone ready and advance
	ActionSnapshot // read-only view for the HTTP API
)

// String returns a log-friendly name for an ActionType.
func (t ActionType) String() string {
	switch t {
	case ActionJoin:
		return "join_room"
	case ActionFlipCard:
		return "flip_card"
	case ActionSwapCard:
		return "swap_card"
	case ActionBoostSwap:
		return "boost_swap"
	case ActionFold:
		return "fold"
	case ActionReadyForNewRound:
		return "ready_for_new_round"
	case ActionSwapCardPositions:
		return "swap_card_positions"
	case ActionStartNewRound:
		return "start_new_round"
	case ActionUpdateChantCount:
		return "update_chant_count"
	case ActionUpdateCompletion:
		return "update_completion"
	case ActionOpenAll:
		return "openall"
	case ActionNewRound:
		return "newround"
	case ActionSnapshot:
		return "snapshot"
	default:
		return "unknown"
	}
}

// Action is one request sent into a room's action channel.
type Action struct {
	Type   ActionType
	ConnID string // originating connection; empty for system calls

	PersistentID string  // join
	Slot         int     // flip, swap, boost; source slot for position swaps
	ToSlot       int     // position swaps
	Rotation     int     // flip
	DesiredValue int     // boost
	BoostLevel   int     // boost
	ChantCount   int     // update_chant_count
	Percentage   float64 // update_completion

	snapshot chan Snapshot
	reply    chan error
}
