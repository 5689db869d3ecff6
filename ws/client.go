package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"card-room-server/game"
	"card-room-server/roomerrors"
	"card-room-server/wsutil"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	ID   string // connection id, fresh for every socket
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte

	roomID string // guarded by Hub.mu
}

// ReadPump pumps messages from the websocket connection to the hub.
// It runs in its own goroutine per connection.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read error", "tag", "ws", "conn", c.ID, "error", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// WritePump pumps messages from the send channel to the websocket connection.
// It runs in its own goroutine per connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(data []byte) {
	var envelope InboundEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.sendError("Invalid message format.")
		return
	}

	switch envelope.Type {
	case "create_room":
		c.handleCreateRoom(envelope.Raw)
	case "join_room":
		c.handleJoinRoom(envelope.Raw)
	case "flip_card":
		var msg FlipCardMsg
		if c.decode(envelope, &msg) {
			c.dispatch(msg.RoomID, game.Action{Type: game.ActionFlipCard, Slot: msg.CardIndex, Rotation: msg.Rotation})
		}
	case "swap_card":
		var msg SwapCardMsg
		if c.decode(envelope, &msg) {
			c.dispatch(msg.RoomID, game.Action{Type: game.ActionSwapCard, Slot: msg.CardIndex})
		}
	case "boost_swap":
		msg := BoostSwapMsg{BoostLevel: 1}
		if c.decode(envelope, &msg) {
			c.dispatch(msg.RoomID, game.Action{
				Type:         game.ActionBoostSwap,
				Slot:         msg.CardIndex,
				DesiredValue: msg.DesiredValue,
				BoostLevel:   msg.BoostLevel,
			})
		}
	case "fold":
		c.handleRoomOnly(envelope, game.ActionFold)
	case "ready_for_new_round":
		c.handleRoomOnly(envelope, game.ActionReadyForNewRound)
	case "start_new_round":
		c.handleRoomOnly(envelope, game.ActionStartNewRound)
	case "swap_card_positions":
		var msg SwapCardPositionsMsg
		if !c.decode(envelope, &msg) {
			return
		}
		if msg.FromIndex == nil || msg.ToIndex == nil {
			c.sendError("Invalid swap data.")
			return
		}
		c.dispatch(msg.RoomID, game.Action{Type: game.ActionSwapCardPositions, Slot: *msg.FromIndex, ToSlot: *msg.ToIndex})
	case "update_chant_count":
		var msg UpdateChantCountMsg
		if c.decode(envelope, &msg) {
			c.dispatch(msg.RoomID, game.Action{Type: game.ActionUpdateChantCount, ChantCount: msg.ChantCount})
		}
	case "update_completion":
		var msg UpdateCompletionMsg
		if c.decode(envelope, &msg) {
			c.dispatch(msg.RoomID, game.Action{Type: game.ActionUpdateCompletion, Percentage: msg.Percentage})
		}
	default:
		c.sendError("Unknown message type: " + envelope.Type)
	}
}

// decode unmarshals the envelope into v, replying with an error on failure.
func (c *Client) decode(envelope InboundEnvelope, v any) bool {
	if err := json.Unmarshal(envelope.Raw, v); err != nil {
		c.sendError("Invalid " + envelope.Type + " message.")
		return false
	}
	return true
}

func (c *Client) handleRoomOnly(envelope InboundEnvelope, t game.ActionType) {
	var msg RoomMsg
	if c.decode(envelope, &msg) {
		c.dispatch(msg.RoomID, game.Action{Type: t})
	}
}

func (c *Client) handleCreateRoom(raw json.RawMessage) {
	var msg CreateRoomMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("Invalid create_room message.")
		return
	}
	room, err := c.Hub.Rooms.CreateRoom(context.Background(), c.ID, msg.Mode, msg.maxBoosts(), msg.Decks)
	if err != nil {
		slog.Error("create room failed", "tag", "ws", "conn", c.ID, "error", err)
		c.sendError("Could not create room.")
		return
	}
	c.Hub.Join(c, room.ID)
}

func (c *Client) handleJoinRoom(raw json.RawMessage) {
	var msg JoinRoomMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("Invalid join_room message.")
		return
	}
	roomID := game.NormalizeRoomID(msg.RoomID)
	// Subscribe first so the joiner sees its own room's broadcasts.
	c.Hub.Join(c, roomID)
	err := c.dispatch(roomID, game.Action{Type: game.ActionJoin, PersistentID: msg.PlayerID})
	if errors.Is(err, roomerrors.ErrRoomNotFound) || errors.Is(err, roomerrors.ErrMissingRoomID) {
		c.Hub.Leave(c)
	}
}

// dispatch forwards an action for this connection. The room reports failures
// to the client itself, so errors are only logged here.
func (c *Client) dispatch(roomID string, a game.Action) error {
	a.ConnID = c.ID
	err := c.Hub.Rooms.Dispatch(context.Background(), roomID, a)
	if err != nil {
		slog.Debug("action failed", "tag", "ws", "conn", c.ID, "room", roomID, "action", a.Type, "error", err)
	}
	return err
}

func (c *Client) sendError(message string) {
	data, _ := json.Marshal(OutboundMsg{Type: game.EventError, Data: game.FailureMsg{Message: message, Code: "bad_request"}})
	wsutil.SafeSend(c.Send, data)
}
