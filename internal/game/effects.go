package game

import (
	"time"

	"github.com/mazeworks/mazeserver/internal/maze"
)

// Effect describes an applied item use for the item_effect broadcast.
type Effect struct {
	Item     ItemKind
	PlayerID string

	// TargetID and Respawn are set for kill_sword; TargetID plus the
	// two positions for swap_item; Cell for hammer and slow_trap.
	TargetID  string
	Cell      *maze.Position
	Respawn   *Position
	PlayerPos *Position
	TargetPos *Position

	BoostUntil time.Time

	// Remaining is the inventory count left after the use.
	Remaining int
}

// UseItem applies one inventory item. The inventory counter is only
// decremented when the effect actually applied.
func (e *Engine) UseItem(playerID string, kind ItemKind, targetID string, targetCell *maze.Position) (*Effect, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return nil, opErr(ErrGameNotRunning, "match is not running")
	}
	p, ok := e.players[playerID]
	if !ok {
		return nil, opErr(ErrPlayerNotFound, "player %s not in match", playerID)
	}
	if _, priced := kind.Price(); !priced {
		return nil, opErr(ErrInvalidTarget, "unknown item %q", kind)
	}
	if p.Inventory[kind] <= 0 {
		return nil, opErr(ErrItemNotOwned, "no %s in inventory", kind)
	}

	eff := &Effect{Item: kind, PlayerID: playerID}

	switch kind {
	case SpeedPotion:
		p.SpeedBoostUntil = e.clock().Add(speedBoostTime)
		eff.BoostUntil = p.SpeedBoostUntil

	case Compass:
		p.HasCompass = true

	case Hammer:
		if targetCell == nil {
			return nil, opErr(ErrInvalidTarget, "hammer needs a target cell")
		}
		c := *targetCell
		if !e.grid.InBounds(c.X, c.Y, c.Z) || e.grid.At(c.X, c.Y, c.Z) != maze.Wall {
			return nil, opErr(ErrInvalidTarget, "cell (%d,%d,%d) is not a wall", c.X, c.Y, c.Z)
		}
		e.grid.Set(c.X, c.Y, c.Z, maze.Path)
		e.broken[c] = e.clock().Add(wallRepairTime)
		eff.Cell = &c

	case KillSword:
		if targetID == "" {
			return nil, opErr(ErrInvalidTarget, "kill_sword needs a target player")
		}
		target, ok := e.players[targetID]
		if !ok {
			return nil, opErr(ErrInvalidTarget, "target %s not in match", targetID)
		}
		if !target.Alive {
			return nil, opErr(ErrInvalidTarget, "target %s is already dead", targetID)
		}
		target.Alive = false
		respawn := e.respawn(target)
		eff.TargetID = targetID
		eff.Respawn = &respawn

	case SlowTrap:
		if targetCell == nil {
			return nil, opErr(ErrInvalidTarget, "slow_trap needs a target cell")
		}
		c := *targetCell
		if !e.grid.Walkable(c.X, c.Y, c.Z) {
			return nil, opErr(ErrInvalidTarget, "cell (%d,%d,%d) cannot hold a trap", c.X, c.Y, c.Z)
		}
		e.traps = append(e.traps, trapState{Pos: c, PlacedAt: e.clock()})
		eff.Cell = &c

	case SwapItem:
		if targetID == "" {
			return nil, opErr(ErrInvalidTarget, "swap_item needs a target player")
		}
		target, ok := e.players[targetID]
		if !ok {
			return nil, opErr(ErrInvalidTarget, "target %s not in match", targetID)
		}
		p.Pos, target.Pos = target.Pos, p.Pos
		userPos, targetPos := p.Pos, target.Pos
		eff.TargetID = targetID
		eff.PlayerPos = &userPos
		eff.TargetPos = &targetPos

	default:
		return nil, opErr(ErrInvalidTarget, "item %q cannot be used", kind)
	}

	p.Inventory[kind]--
	eff.Remaining = p.Inventory[kind]
	return eff, nil
}

// Traps returns the active slow trap cells.
func (e *Engine) Traps() []maze.Position {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]maze.Position, len(e.traps))
	for i, t := range e.traps {
		out[i] = t.Pos
	}
	return out
}
