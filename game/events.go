package game

import (
	"context"
	"errors"

	"card-room-server/cards"
	"card-room-server/roomerrors"
	"card-room-server/round"
)

// Outbound event names.
const (
	EventRoomCreated          = "room_created"
	EventPlayerJoined         = "player_joined"
	EventGameStarted          = "game_started"
	EventCardFlipped          = "card_flipped"
	EventCardSwapped          = "card_swapped"
	EventSwapFailed           = "swap_failed"
	EventBoostCompleted       = "boost_completed"
	EventBoostFailed          = "boost_failed"
	EventPlayerFolded         = "player_folded"
	EventAllFolded            = "all_folded"
	EventAllFoldedSilently    = "all_players_folded_silently"
	EventPlayerReady          = "player_ready"
	EventNewRoundStarted      = "new_round_started"
	EventCardPositionsSwapped = "card_positions_swapped"
	EventChantCountUpdated    = "chant_count_updated"
	EventCompletionUpdated    = "completion_updated"
	EventError                = "error"
)

// fullFlipRotation is the rotation reported for cards revealed by the openall system call.
const fullFlipRotation = 180

// PlayerSummary is the public part of a participant record.
type PlayerSummary struct {
	PlayerID   string  `json:"player_id"`
	Name       string  `json:"name"`
	Seat       int     `json:"seat"`
	Folded     bool    `json:"folded"`
	Ready      bool    `json:"ready_for_new_round"`
	Flipped    []int   `json:"flipped_cards"`
	Completion float64 `json:"completion_percentage"`
}

func summarize(rec *round.Record) PlayerSummary {
	return PlayerSummary{
		PlayerID:   rec.ConnID,
		Name:       rec.Name,
		Seat:       rec.Seat,
		Folded:     rec.Folded,
		Ready:      rec.Ready,
		Flipped:    append([]int{}, rec.Flipped...),
		Completion: rec.Completion,
	}
}

type RoomCreatedMsg struct {
	RoomID    string          `json:"room_id"`
	Mode      int             `json:"mode"`
	MaxBoosts int             `json:"max_boosts"`
	Decks     int             `json:"decks"`
	Players   []PlayerSummary `json:"players"`
}

type PlayerJoinedMsg struct {
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
	round.Stats
}

// GameStartedMsg is sent to one participant with everything needed to render its seat.
type GameStartedMsg struct {
	RoomID             string       `json:"room_id"`
	PlayerID           string       `json:"player_id"`
	PlayerName         string       `json:"player_name"`
	Round              int          `json:"round"`
	Cards              []cards.Card `json:"cards"`
	UsedCards          []int        `json:"used_cards"`
	PlayersCount       int          `json:"players_count"`
	Mode               int          `json:"mode"`
	MaxBoosts          int          `json:"max_boosts"`
	Decks              int          `json:"decks"`
	ChantCount         int          `json:"chant_count"`
	TotalSwaps         int          `json:"total_swaps"`
	FlippedCards       []int        `json:"flipped_cards"`
	Folded             bool         `json:"folded"`
	ShowDeckSuggestion bool         `json:"show_deck_suggestion"`
	RemainingCards     int          `json:"remaining_cards"`
	round.Stats
}

type CardFlippedMsg struct {
	PlayerID  string `json:"player_id"`
	CardIndex int    `json:"card_index"`
	Rotation  int    `json:"rotation"`
}

// CardSwappedMsg reports a swap. Result is "success", or "blank" when the
// deck was empty and the old card was kept.
type CardSwappedMsg struct {
	PlayerID        string     `json:"player_id"`
	CardIndex       int        `json:"card_index"`
	UsedCards       []int      `json:"used_cards"`
	Result          string     `json:"result"`
	Outcome         string     `json:"outcome"`
	NewCard         cards.Card `json:"new_card"`
	TotalSwaps      int        `json:"total_swaps"`
	SwapsRemaining  int        `json:"swaps_remaining"`
	ResetChantCount bool       `json:"reset_chant_count"`
}

type BoostCompletedMsg struct {
	PlayerID        string     `json:"player_id"`
	CardIndex       int        `json:"card_index"`
	UsedCards       []int      `json:"used_cards"`
	BoostsRemaining int        `json:"boosts_remaining"`
	NewCard         cards.Card `json:"new_card"`
	BoostLevel      int        `json:"boost_level"`
	Outcome         string     `json:"outcome"`
	ResetChantCount bool       `json:"reset_chant_count"`
}

// FailureMsg is the payload of swap_failed, boost_failed and error.
type FailureMsg struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Miss    bool   `json:"miss,omitempty"`
}

type PlayerFoldedMsg struct {
	PlayerID  string `json:"player_id"`
	AllFolded bool   `json:"all_folded"`
	round.Stats
}

type AllFoldedMsg struct {
	Message          string `json:"message"`
	CanStartNewRound bool   `json:"can_start_new_round"`
	round.Stats
}

type PlayerReadyMsg struct {
	PlayerID string `json:"player_id"`
	round.Stats
}

type NewRoundStartedMsg struct {
	Message      string `json:"message"`
	Round        int    `json:"round"`
	UsedCards    []int  `json:"used_cards"`
	PlayersCount int    `json:"players_count"`
}

type CardPositionsSwappedMsg struct {
	PlayerID  string `json:"player_id"`
	FromIndex int    `json:"from_index"`
	ToIndex   int    `json:"to_index"`
}

type ChantCountUpdatedMsg struct {
	PlayerID   string `json:"player_id"`
	ChantCount int    `json:"chant_count"`
}

type CompletionUpdatedMsg struct {
	PlayerID   string  `json:"player_id"`
	Percentage float64 `json:"percentage"`
}

// Snapshot is the read-only room view served by the HTTP API. Hands are omitted.
type Snapshot struct {
	RoomID         string          `json:"room_id"`
	Mode           int             `json:"mode"`
	MaxBoosts      int             `json:"max_boosts"`
	Decks          int             `json:"decks"`
	Round          int             `json:"round"`
	Status         string          `json:"status"`
	UsedCards      []int           `json:"used_cards"`
	RemainingCards int             `json:"remaining_cards"`
	Players        []PlayerSummary `json:"players"`
	round.Stats
}

// ErrorCode maps an error to the stable code sent to clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, roomerrors.ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, roomerrors.ErrParticipantNotFound):
		return "participant_not_found"
	case errors.Is(err, roomerrors.ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, roomerrors.ErrBoostMiss):
		return "boost_miss"
	case errors.Is(err, roomerrors.ErrInvalidSlot):
		return "invalid_slot"
	case errors.Is(err, roomerrors.ErrMissingRoomID):
		return "missing_room_id"
	case errors.Is(err, roomerrors.ErrNotAllReady):
		return "not_all_ready"
	case errors.Is(err, roomerrors.ErrRoomClosed):
		return "room_closed"
	case errors.Is(err, roomerrors.ErrIdentifierConflict):
		return "identifier_conflict"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal"
	}
}

func failure(err error) FailureMsg {
	msg := FailureMsg{Message: err.Error(), Code: ErrorCode(err)}
	switch msg.Code {
	case "boost_miss":
		msg.Message = "Drew a blank card. Nothing was swapped, try again!"
		msg.Miss = true
	case "timeout":
		msg.Message = "The room is busy, try again."
	case "internal":
		msg.Message = "Internal server error."
	}
	return msg
}
