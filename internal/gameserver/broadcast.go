package gameserver

import (
	"log/slog"

	"github.com/mazeworks/mazeserver/internal/protocol"
)

// SendTo encodes a message and queues it on one connection. Per
// connection, send order is FIFO on the wire; across connections
// there is no ordering guarantee.
func (cm *ClientManager) SendTo(c *Client, msgType string, data any) error {
	raw, err := protocol.Encode(msgType, data)
	if err != nil {
		return err
	}
	return c.Send(raw)
}

// Broadcast encodes once and queues the message on every connection.
// A slow consumer never blocks the rest: its own send grace closes it.
func (cm *ClientManager) Broadcast(msgType string, data any) {
	cm.broadcastExcept(0, msgType, data)
}

// BroadcastExcept is Broadcast skipping one connection, typically the
// sender of the triggering message.
func (cm *ClientManager) BroadcastExcept(exceptID uint64, msgType string, data any) {
	cm.broadcastExcept(exceptID, msgType, data)
}

func (cm *ClientManager) broadcastExcept(exceptID uint64, msgType string, data any) {
	raw, err := protocol.Encode(msgType, data)
	if err != nil {
		slog.Error("encoding broadcast", "type", msgType, "error", err)
		return
	}

	for _, c := range cm.Snapshot() {
		if c.id == exceptID {
			continue
		}
		if err := c.Send(raw); err != nil {
			slog.Debug("broadcast dropped", "type", msgType, "connId", c.id, "error", err)
		}
	}
}
