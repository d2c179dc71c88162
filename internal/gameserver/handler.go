package gameserver

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/mazeworks/mazeserver/internal/data"
	"github.com/mazeworks/mazeserver/internal/game"
	"github.com/mazeworks/mazeserver/internal/player"
	"github.com/mazeworks/mazeserver/internal/protocol"
)

// chatMessageLimit caps chat messages, in code points.
const chatMessageLimit = 200

// Handler is the message dispatcher: it binds connections to players
// and turns inbound messages into engine calls and outbound events.
// It touches the engine and registry only through their own locking.
type Handler struct {
	engine   *game.Engine
	registry *player.Registry
	clients  *ClientManager
	chat     *data.ChatLog

	maxPlayers int

	clock func() time.Time
}

// NewHandler creates the dispatcher. chat may be nil when the chat
// log is disabled.
func NewHandler(engine *game.Engine, registry *player.Registry, clients *ClientManager, chat *data.ChatLog, maxPlayers int) *Handler {
	return &Handler{
		engine:     engine,
		registry:   registry,
		clients:    clients,
		chat:       chat,
		maxPlayers: maxPlayers,
		clock:      time.Now,
	}
}

// HandleMessage dispatches one decoded text message. A returned error
// is fatal for the connection: the endpoint closes it with a
// protocol-error close code.
func (h *Handler) HandleMessage(c *Client, raw []byte) error {
	env, err := protocol.DecodeEnvelope(raw)
	if err != nil {
		h.sendError(c, game.ErrProtocol, "malformed message")
		return fmt.Errorf("decoding message: %w", err)
	}

	switch env.Type {
	case protocol.TypeAuth:
		return h.handleAuth(c, env)
	case protocol.TypePing:
		return h.handlePing(c, env)
	}

	// Everything else is ignored until the connection is bound.
	if !c.Bound() {
		slog.Debug("message before auth ignored", "type", env.Type, "connId", c.id)
		return nil
	}

	switch env.Type {
	case protocol.TypeMove:
		return h.handleMove(c, env)
	case protocol.TypePurchase:
		return h.handlePurchase(c, env)
	case protocol.TypeUseItem:
		return h.handleUseItem(c, env)
	case protocol.TypeChat:
		return h.handleChat(c, env)
	default:
		h.sendError(c, game.ErrProtocol, "unknown message type "+env.Type)
		return fmt.Errorf("unknown message type %q", env.Type)
	}
}

func (h *Handler) handleAuth(c *Client, env protocol.Envelope) error {
	var req authRequest
	if err := env.DecodeData(&req); err != nil {
		h.authFailed(c, "malformed auth payload")
		return fmt.Errorf("decoding auth: %w", err)
	}
	if req.PlayerName == "" {
		h.authFailed(c, "playerName is required")
		return fmt.Errorf("auth without playerName")
	}

	playerID := req.PlayerID
	if playerID == "" || !h.registry.IsValid(playerID) {
		var err error
		playerID, err = h.registry.RegisterOrResolve(
			player.SurrogateFingerprint(c.id, req.PlayerName), req.PlayerName)
		if err != nil {
			h.authFailed(c, "registration failed")
			return fmt.Errorf("registering player: %w", err)
		}
	}

	if h.maxPlayers > 0 && h.engine.PlayerCount() >= h.maxPlayers {
		if _, resuming := h.engine.Player(playerID); !resuming {
			h.authFailed(c, "server is full")
			return fmt.Errorf("server full, rejecting %s", playerID)
		}
	}

	if err := h.registry.Login(playerID); err != nil {
		h.authFailed(c, "login rejected")
		return fmt.Errorf("logging in %s: %w", playerID, err)
	}

	// A new session for the same player supersedes the old one.
	if prior := h.clients.Bind(playerID, c); prior != nil {
		slog.Info("session superseded", "player", playerID, "oldConn", prior.id, "newConn", c.id)
		prior.CloseWith(protocol.CloseGoingAway)
	}

	st, err := h.engine.AddPlayer(playerID)
	if err != nil {
		// Already in the match: the superseded session left its state.
		st, _ = h.engine.Player(playerID)
	}

	token := fmt.Sprintf("session_%d", h.clock().Unix())
	c.SetIdentity(playerID, req.PlayerName, token)

	rec, _ := h.registry.Get(playerID)
	if err := h.clients.SendTo(c, protocol.TypeAuthSuccess, authSuccessPayload{
		PlayerID:   playerID,
		PlayerName: req.PlayerName,
		Token:      token,
	}); err != nil {
		return err
	}
	if err := h.clients.SendTo(c, protocol.TypePlayerData, playerData(req.PlayerName, st, rec)); err != nil {
		return err
	}
	if err := h.clients.SendTo(c, protocol.TypeMazeData, mazeData(h.engine.Maze())); err != nil {
		return err
	}

	h.clients.BroadcastExcept(c.id, protocol.TypePlayerJoin, playerJoinPayload{
		PlayerID:   playerID,
		PlayerName: req.PlayerName,
		Position:   st.Pos,
	})

	slog.Info("player authenticated",
		"player", playerID, "name", req.PlayerName, "connId", c.id)
	return nil
}

func (h *Handler) authFailed(c *Client, reason string) {
	if err := h.clients.SendTo(c, protocol.TypeAuthFailed, authFailedPayload{Reason: reason}); err != nil {
		slog.Debug("sending auth_failed", "connId", c.id, "error", err)
	}
}

func (h *Handler) handleMove(c *Client, env protocol.Envelope) error {
	var req moveRequest
	if err := env.DecodeData(&req); err != nil {
		h.sendError(c, game.ErrProtocol, "malformed move payload")
		return fmt.Errorf("decoding move: %w", err)
	}
	width, height, layers := h.engine.Dims()
	if !validMovePayload(req, width, height, layers) {
		h.sendError(c, game.ErrInvalidMove, "position out of range")
		return nil
	}

	playerID := c.PlayerID()
	res, accepted, err := h.engine.MoveTo(playerID, req.Position, req.Rotation)
	if err != nil {
		h.sendError(c, game.KindOf(err), err.Error())
		return nil
	}

	moved := playerMovedPayload{PlayerID: playerID, Position: res.Pos, Rotation: res.Yaw}
	h.clients.BroadcastExcept(c.id, protocol.TypePlayerMoved, moved)
	if !accepted {
		// Authoritative correction back to the sender.
		if err := h.clients.SendTo(c, protocol.TypePlayerMoved, moved); err != nil {
			slog.Debug("sending correction", "player", playerID, "error", err)
		}
	}

	if accepted {
		h.collectCoinAt(c, playerID, res.Pos)
	}

	if res.GoalReached {
		h.clients.Broadcast(protocol.TypeGameEvent, gameEventPayload{
			EventType:  eventPlayerReachedGoal,
			PlayerID:   playerID,
			FinishRank: res.FinishRank,
			Reward:     res.Reward,
		})
		if res.FinishRank == 1 {
			h.registry.RecordWin(playerID)
		}
		if res.AllFinished {
			h.clients.Broadcast(protocol.TypeGameEvent, gameEventPayload{EventType: eventGameOver})
		}
	}
	return nil
}

// collectCoinAt picks up the coin under the player's cell, if any.
// Coins are collected by walking over them; there is no client
// message for it.
func (h *Handler) collectCoinAt(c *Client, playerID string, pos game.Position) {
	idx, ok := h.engine.CoinAt(pos.Cell())
	if !ok {
		return
	}
	_, remaining, err := h.engine.CollectCoin(playerID, idx)
	if err != nil {
		// Lost the race to another player on the same cell.
		slog.Debug("coin collection failed", "player", playerID, "index", idx, "error", err)
		return
	}

	h.clients.Broadcast(protocol.TypeGameEvent, gameEventPayload{
		EventType:      eventCoinCollected,
		PlayerID:       playerID,
		CoinIndex:      &idx,
		RemainingCoins: &remaining,
	})
	h.sendGameState(c, playerID)
}

func (h *Handler) handlePurchase(c *Client, env protocol.Envelope) error {
	var req purchaseRequest
	if err := env.DecodeData(&req); err != nil {
		h.sendError(c, game.ErrProtocol, "malformed purchase payload")
		return fmt.Errorf("decoding purchase_item: %w", err)
	}

	kind, ok := game.ParseItem(req.ItemType)
	if !ok {
		h.sendError(c, game.ErrInvalidTarget, "unknown item "+req.ItemType)
		return nil
	}

	playerID := c.PlayerID()
	if _, _, err := h.engine.PurchaseItem(playerID, kind); err != nil {
		h.sendError(c, game.KindOf(err), err.Error())
		return nil
	}

	slog.Debug("item purchased", "player", playerID, "item", kind)
	h.sendGameState(c, playerID)
	return nil
}

func (h *Handler) handleUseItem(c *Client, env protocol.Envelope) error {
	var req useItemRequest
	if err := env.DecodeData(&req); err != nil {
		h.sendError(c, game.ErrProtocol, "malformed use_item payload")
		return fmt.Errorf("decoding use_item: %w", err)
	}

	kind, ok := game.ParseItem(req.ItemType)
	if !ok {
		h.sendError(c, game.ErrInvalidTarget, "unknown item "+req.ItemType)
		return nil
	}

	playerID := c.PlayerID()
	eff, err := h.engine.UseItem(playerID, kind, req.TargetPlayerID, req.TargetPosition)
	if err != nil {
		h.sendError(c, game.KindOf(err), err.Error())
		return nil
	}

	h.clients.Broadcast(protocol.TypeItemEffect, itemEffect(eff))
	h.sendGameState(c, playerID)
	return nil
}

func (h *Handler) handleChat(c *Client, env protocol.Envelope) error {
	var req chatRequest
	if err := env.DecodeData(&req); err != nil {
		h.sendError(c, game.ErrProtocol, "malformed chat payload")
		return fmt.Errorf("decoding chat_message: %w", err)
	}
	if req.Message == "" {
		return nil
	}

	msg := req.Message
	if runes := []rune(msg); len(runes) > chatMessageLimit {
		msg = string(runes[:chatMessageLimit])
	}

	name := c.PlayerName()
	if h.chat != nil {
		if err := h.chat.Append(name, msg); err != nil {
			slog.Error("appending chat log", "error", err)
		}
	}

	h.clients.Broadcast(protocol.TypeChat, chatPayload{
		PlayerID:   c.PlayerID(),
		PlayerName: name,
		Message:    msg,
	})
	return nil
}

func (h *Handler) handlePing(c *Client, env protocol.Envelope) error {
	var req pingRequest
	if err := env.DecodeData(&req); err != nil {
		h.sendError(c, game.ErrProtocol, "malformed ping payload")
		return fmt.Errorf("decoding ping: %w", err)
	}
	return h.clients.SendTo(c, protocol.TypePong, pongPayload{Timestamp: req.Timestamp})
}

// SystemMessage broadcasts an operator chat line to every connection.
func (h *Handler) SystemMessage(msg string) {
	if h.chat != nil {
		if err := h.chat.Append("SYSTEM", msg); err != nil {
			slog.Error("appending chat log", "error", err)
		}
	}
	h.clients.Broadcast(protocol.TypeChat, chatPayload{
		PlayerID:   "SYSTEM",
		PlayerName: "SYSTEM",
		Message:    msg,
	})
}

// Kick closes the connection bound to the player, if any. The normal
// disconnection flow then logs the player out.
func (h *Handler) Kick(playerID string) bool {
	c := h.clients.ByPlayer(playerID)
	if c == nil {
		return false
	}
	c.CloseWith(protocol.CloseNormal)
	return true
}

// AnnouncePosition broadcasts an authoritative position change made
// outside the move path (teleport, kill respawn).
func (h *Handler) AnnouncePosition(playerID string, pos game.Position) {
	h.clients.Broadcast(protocol.TypePlayerMoved, playerMovedPayload{
		PlayerID: playerID,
		Position: pos,
	})
}

// sendGameState pushes the player's authoritative state after a
// mutation the client needs to reflect.
func (h *Handler) sendGameState(c *Client, playerID string) {
	st, ok := h.engine.Player(playerID)
	if !ok {
		return
	}
	if err := h.clients.SendTo(c, protocol.TypeGameState, gameState(st, h.engine.Snapshot())); err != nil {
		slog.Debug("sending game_state", "player", playerID, "error", err)
	}
}

func (h *Handler) sendError(c *Client, kind game.ErrorKind, msg string) {
	if err := h.clients.SendTo(c, protocol.TypeError, errorPayload{
		Code:    string(kind),
		Message: msg,
	}); err != nil {
		slog.Debug("sending error", "connId", c.id, "error", err)
	}
}
