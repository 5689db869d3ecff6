package ws

import "encoding/json"

// InboundEnvelope is the generic envelope for all client-to-server messages.
// The Type field is used for routing; Raw holds the full JSON payload.
type InboundEnvelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements custom unmarshaling to capture the raw payload.
func (e *InboundEnvelope) UnmarshalJSON(data []byte) error {
	type typeOnly struct {
		Type string `json:"type"`
	}
	var t typeOnly
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	e.Type = t.Type
	e.Raw = json.RawMessage(data)
	return nil
}

// --- Client-to-Server message payloads ---

// CreateRoomMsg asks for a new room. Zero or invalid settings use server
// defaults, except max_boosts where only an omitted value does.
type CreateRoomMsg struct {
	Mode      int  `json:"mode"`
	MaxBoosts *int `json:"max_boosts"`
	Decks     int  `json:"decks"`
}

// maxBoosts returns the requested boost limit, or -1 to ask for the default.
func (m CreateRoomMsg) maxBoosts() int {
	if m.MaxBoosts == nil {
		return -1
	}
	return *m.MaxBoosts
}

// RoomMsg carries only the room id (fold, ready_for_new_round, start_new_round).
type RoomMsg struct {
	RoomID string `json:"room_id"`
}

// JoinRoomMsg joins or rejoins a room. PlayerID is the client's persistent identifier.
type JoinRoomMsg struct {
	RoomID   string `json:"room_id"`
	PlayerID string `json:"player_id"`
}

type FlipCardMsg struct {
	RoomID    string `json:"room_id"`
	CardIndex int    `json:"card_index"`
	Rotation  int    `json:"rotation"`
}

type SwapCardMsg struct {
	RoomID    string `json:"room_id"`
	CardIndex int    `json:"card_index"`
}

// BoostSwapMsg requests a boost swap. BoostLevel defaults to 1 when omitted.
type BoostSwapMsg struct {
	RoomID       string `json:"room_id"`
	CardIndex    int    `json:"card_index"`
	DesiredValue int    `json:"desired_value"`
	BoostLevel   int    `json:"boost_level"`
}

// SwapCardPositionsMsg reorders two hand slots. Both indices are required.
type SwapCardPositionsMsg struct {
	RoomID    string `json:"room_id"`
	FromIndex *int   `json:"from_index"`
	ToIndex   *int   `json:"to_index"`
}

type UpdateChantCountMsg struct {
	RoomID     string `json:"room_id"`
	ChantCount int    `json:"chant_count"`
}

type UpdateCompletionMsg struct {
	RoomID     string  `json:"room_id"`
	Percentage float64 `json:"percentage"`
}

// --- Server-to-Client messages ---

// OutboundMsg wraps every server-to-client event.
type OutboundMsg struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
