package gameserver

import (
	"github.com/mazeworks/mazeserver/internal/game"
	"github.com/mazeworks/mazeserver/internal/maze"
	"github.com/mazeworks/mazeserver/internal/player"
)

// Inbound payloads. Field names follow the historical client wire
// format (camelCase, optional fields omitted).

type authRequest struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Token      string `json:"token"`
}

type moveRequest struct {
	Position game.Position `json:"position"`
	Rotation float64       `json:"rotation"`
}

type purchaseRequest struct {
	ItemType string `json:"itemType"`
}

type useItemRequest struct {
	ItemType       string         `json:"itemType"`
	TargetPlayerID string         `json:"targetPlayerId"`
	TargetPosition *maze.Position `json:"targetPosition"`
}

type chatRequest struct {
	Message string `json:"message"`
}

type pingRequest struct {
	Timestamp int64 `json:"timestamp"`
}

// Outbound payloads.

type authSuccessPayload struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Token      string `json:"token"`
}

type authFailedPayload struct {
	Reason string `json:"reason"`
}

type playerDataPayload struct {
	PlayerID   string         `json:"playerId"`
	PlayerName string         `json:"playerName"`
	Position   game.Position  `json:"position"`
	Rotation   float64        `json:"rotation"`
	Coins      int            `json:"coins"`
	TotalCoins int            `json:"totalCoins"`
	Inventory  map[string]int `json:"inventory"`
	HasCompass bool           `json:"hasCompass"`
	Alive      bool           `json:"alive"`
	FinishRank int            `json:"finishRank"`
}

type coinPayload struct {
	X         int  `json:"x"`
	Y         int  `json:"y"`
	Z         int  `json:"z"`
	Collected bool `json:"collected"`
}

type mazeDataPayload struct {
	Width  int             `json:"width"`
	Height int             `json:"height"`
	Layers int             `json:"layers"`
	Layout [][][]bool      `json:"layout"`
	Start  maze.Position   `json:"start"`
	End    maze.Position   `json:"end"`
	Coins  []coinPayload   `json:"coins"`
	Stairs []maze.Position `json:"stairs"`
}

type gameStatePayload struct {
	PlayerID       string         `json:"playerId"`
	Coins          int            `json:"coins"`
	Inventory      map[string]int `json:"inventory"`
	HasCompass     bool           `json:"hasCompass"`
	RemainingCoins int            `json:"remainingCoins"`
	FinishedCount  int            `json:"finishedCount"`
	Running        bool           `json:"running"`
}

type playerMovedPayload struct {
	PlayerID string        `json:"playerId"`
	Position game.Position `json:"position"`
	Rotation float64       `json:"rotation"`
}

type playerJoinPayload struct {
	PlayerID   string        `json:"playerId"`
	PlayerName string        `json:"playerName"`
	Position   game.Position `json:"position"`
}

type playerLeavePayload struct {
	PlayerID string `json:"playerId"`
}

type itemEffectPayload struct {
	ItemType       string         `json:"itemType"`
	PlayerID       string         `json:"playerId"`
	TargetPlayerID string         `json:"targetPlayerId,omitempty"`
	TargetCell     *maze.Position `json:"targetCell,omitempty"`
	Respawn        *game.Position `json:"respawn,omitempty"`
	PlayerPosition *game.Position `json:"playerPosition,omitempty"`
	TargetPosition *game.Position `json:"targetPosition,omitempty"`
	BoostUntil     int64          `json:"boostUntil,omitempty"`
	Remaining      int            `json:"remaining"`
}

// Game event type strings carried inside game_event.
const (
	eventPlayerReachedGoal = "player_reached_goal"
	eventCoinCollected     = "coin_collected"
	eventGameOver          = "game_over"
)

type gameEventPayload struct {
	EventType      string `json:"eventType"`
	PlayerID       string `json:"playerId,omitempty"`
	FinishRank     int    `json:"finishRank,omitempty"`
	Reward         int    `json:"reward,omitempty"`
	CoinIndex      *int   `json:"coinIndex,omitempty"`
	RemainingCoins *int   `json:"remainingCoins,omitempty"`
}

type chatPayload struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Message    string `json:"message"`
}

type pongPayload struct {
	Timestamp int64 `json:"timestamp"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func inventoryWire(inv map[game.ItemKind]int) map[string]int {
	out := make(map[string]int, len(inv))
	for k, v := range inv {
		out[string(k)] = v
	}
	return out
}

func playerData(name string, st game.PlayerState, rec player.Record) playerDataPayload {
	return playerDataPayload{
		PlayerID:   st.ID,
		PlayerName: name,
		Position:   st.Pos,
		Rotation:   st.Yaw,
		Coins:      st.Coins,
		TotalCoins: rec.TotalCoins,
		Inventory:  inventoryWire(st.Inventory),
		HasCompass: st.HasCompass,
		Alive:      st.Alive,
		FinishRank: st.FinishRank,
	}
}

func mazeData(m game.MazeSnapshot) mazeDataPayload {
	coins := make([]coinPayload, len(m.Coins))
	for i, c := range m.Coins {
		coins[i] = coinPayload{X: c.X, Y: c.Y, Z: c.Z, Collected: m.Collected[i]}
	}
	p := mazeDataPayload{
		Layout: m.Layout,
		Start:  m.Start,
		End:    m.End,
		Coins:  coins,
		Stairs: m.Stairs,
	}
	if len(m.Layout) > 0 {
		p.Layers = len(m.Layout)
		p.Height = len(m.Layout[0])
		if p.Height > 0 {
			p.Width = len(m.Layout[0][0])
		}
	}
	return p
}

func gameState(st game.PlayerState, snap game.Snapshot) gameStatePayload {
	return gameStatePayload{
		PlayerID:       st.ID,
		Coins:          st.Coins,
		Inventory:      inventoryWire(st.Inventory),
		HasCompass:     st.HasCompass,
		RemainingCoins: snap.RemainingCoins,
		FinishedCount:  snap.FinishedCount,
		Running:        snap.Running,
	}
}

func itemEffect(eff *game.Effect) itemEffectPayload {
	p := itemEffectPayload{
		ItemType:       string(eff.Item),
		PlayerID:       eff.PlayerID,
		TargetPlayerID: eff.TargetID,
		TargetCell:     eff.Cell,
		Respawn:        eff.Respawn,
		PlayerPosition: eff.PlayerPos,
		TargetPosition: eff.TargetPos,
		Remaining:      eff.Remaining,
	}
	if !eff.BoostUntil.IsZero() {
		p.BoostUntil = eff.BoostUntil.UnixMilli()
	}
	return p
}
