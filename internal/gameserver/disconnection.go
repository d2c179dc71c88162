package gameserver

import (
	"log/slog"

	"github.com/mazeworks/mazeserver/internal/protocol"
)

// Disconnect runs the teardown for a dead connection: fold the match
// coins into the durable record, log the player out, remove the
// runtime state and tell everyone else. A superseded session skips
// the player teardown because the binding already points elsewhere.
func (h *Handler) Disconnect(c *Client) {
	playerID := c.PlayerID()

	if playerID == "" || h.clients.ByPlayer(playerID) != c {
		h.clients.Unregister(c)
		return
	}

	if st, ok := h.engine.Player(playerID); ok {
		h.registry.AddCoins(playerID, st.Coins)
	}
	h.registry.Logout(playerID)
	h.engine.RemovePlayer(playerID)
	h.clients.Unregister(c)

	h.clients.Broadcast(protocol.TypePlayerLeave, playerLeavePayload{PlayerID: playerID})

	slog.Info("player left", "player", playerID, "connId", c.id)
}
