// Package pubsub mirrors room broadcasts onto a NATS subject tree so other
// services (spectators, analytics) can follow rooms without a websocket.
package pubsub

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"card-room-server/game"
)

// SubjectPrefix is the root of every mirrored subject: rooms.<ROOMID>.<event>.
const SubjectPrefix = "rooms"

// Publisher is the part of *nats.Conn the mirror uses.
type Publisher interface {
	Publish(subj string, data []byte) error
}

// Connect dials the broker with the reconnect policy used across the servers.
func Connect(url string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("card-room-server"),
		nats.Timeout(10 * time.Second),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(5),
	}
	return nats.Connect(url, opts...)
}

// Mirror wraps a Delivery and republishes every room broadcast on NATS.
// Direct sends to a single connection are not mirrored.
type Mirror struct {
	next game.Delivery
	pub  Publisher
}

// NewMirror returns a Delivery that forwards to next and publishes to pub.
func NewMirror(next game.Delivery, pub Publisher) *Mirror {
	return &Mirror{next: next, pub: pub}
}

// Subject returns the mirrored subject for an event in a room.
func Subject(roomID, event string) string {
	return SubjectPrefix + "." + roomID + "." + event
}

func (m *Mirror) SendTo(connID, event string, payload any) {
	m.next.SendTo(connID, event, payload)
}

// BroadcastToRoom delivers locally first. Publish failures are logged and never
// affect websocket delivery.
func (m *Mirror) BroadcastToRoom(roomID, event string, payload any, excludeConnID string) {
	m.next.BroadcastToRoom(roomID, event, payload, excludeConnID)

	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("encoding mirrored event failed", "tag", "pubsub", "event", event, "error", err)
		return
	}
	if err := m.pub.Publish(Subject(roomID, event), data); err != nil {
		slog.Warn("publish failed", "tag", "pubsub", "room", roomID, "event", event, "error", err)
	}
}
