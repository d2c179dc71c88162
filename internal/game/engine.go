// Package game implements the authoritative match state: the maze and
// its ephemeral effects, the coin pool, player runtime state, item
// purchases and effects, and the finish ordering. All public
// operations serialize on a single engine-wide mutex; nothing inside
// it blocks on I/O.
package game

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/mazeworks/mazeserver/internal/maze"
)

const (
	baseMoveSpeed  = 0.1
	boostedSpeed   = 0.2
	speedBoostTime = 10 * time.Second
	trapLifetime   = 30 * time.Second
	wallRepairTime = 60 * time.Second

	// moveSlack absorbs float accumulation when validating a single
	// client-reported step against the per-move speed.
	moveSlack = 0.02
)

// Direction is one directional move step relative to the player's yaw.
type Direction uint8

const (
	Forward Direction = iota
	Backward
	Left
	Right
	Up
	Down
)

// Position is a float location inside the maze. Z is the layer axis.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Cell returns the integer cell the position occupies.
func (p Position) Cell() maze.Position {
	return maze.Position{
		X: int(math.Round(p.X)),
		Y: int(math.Round(p.Y)),
		Z: int(math.Round(p.Z)),
	}
}

// PlayerState is one player's runtime state for the current match.
type PlayerState struct {
	ID              string
	Pos             Position
	Yaw             float64
	Alive           bool
	HasCompass      bool
	SpeedBoostUntil time.Time
	Coins           int
	Inventory       map[ItemKind]int
	ReachedGoal     bool
	FinishRank      int
}

func (p *PlayerState) clone() PlayerState {
	cp := *p
	cp.Inventory = make(map[ItemKind]int, len(p.Inventory))
	for k, v := range p.Inventory {
		cp.Inventory[k] = v
	}
	return cp
}

type trapState struct {
	Pos      maze.Position
	PlacedAt time.Time
}

// MoveResult reports an accepted movement and any goal crossing it
// triggered.
type MoveResult struct {
	Pos         Position
	Yaw         float64
	GoalReached bool
	FinishRank  int
	Reward      int
	AllFinished bool
}

// Snapshot is a copy of the match-global counters plus all player
// states, taken atomically.
type Snapshot struct {
	Running        bool
	RemainingCoins int
	FinishedCount  int
	Players        []PlayerState
	Traps          []maze.Position
}

// MazeSnapshot is the maze in its wire shape, taken atomically so a
// hammered wall never tears against the coin pool.
type MazeSnapshot struct {
	Layout    [][][]bool
	Start     maze.Position
	End       maze.Position
	Coins     []maze.Position
	Collected []bool
	Stairs    []maze.Position
}

// Engine is the single source of truth for match state.
type Engine struct {
	mu sync.Mutex

	grid      *maze.Grid
	collected []bool
	remaining int

	players map[string]*PlayerState

	traps  []trapState
	broken map[maze.Position]time.Time

	running  bool
	finished int
	nextRank int

	rng   *rand.Rand
	clock func() time.Time
}

// New builds an engine over a loaded maze. The coin pool is taken
// from the grid as-is; an empty pool stays empty.
func New(grid *maze.Grid) *Engine {
	return &Engine{
		grid:      grid,
		collected: make([]bool, len(grid.Coins)),
		remaining: len(grid.Coins),
		players:   make(map[string]*PlayerState),
		broken:    make(map[maze.Position]time.Time),
		running:   true,
		nextRank:  1,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		clock:     time.Now,
	}
}

// AddPlayer creates runtime state at the maze start. Fails if the
// player is already present.
func (e *Engine) AddPlayer(playerID string) (PlayerState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.players[playerID]; ok {
		return PlayerState{}, opErr(ErrInternal, "player %s already in match", playerID)
	}

	start := e.grid.StartPos
	p := &PlayerState{
		ID:    playerID,
		Pos:   Position{X: float64(start.X), Y: float64(start.Y), Z: float64(start.Z)},
		Alive: true,
		Inventory: map[ItemKind]int{
			SpeedPotion: 0,
			Compass:     0,
			Hammer:      0,
			KillSword:   0,
			SlowTrap:    0,
			SwapItem:    0,
		},
	}
	e.players[playerID] = p
	return p.clone(), nil
}

// RemovePlayer drops runtime state. The durable record is untouched.
func (e *Engine) RemovePlayer(playerID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.players[playerID]; !ok {
		return false
	}
	delete(e.players, playerID)
	return true
}

// Move advances the player one step in the given direction relative
// to its yaw. Layer changes are only allowed through stair cells.
func (e *Engine) Move(playerID string, dir Direction) (*MoveResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return nil, opErr(ErrGameNotRunning, "match is not running")
	}
	p, ok := e.players[playerID]
	if !ok {
		return nil, opErr(ErrPlayerNotFound, "player %s not in match", playerID)
	}
	if !p.Alive {
		return nil, opErr(ErrInvalidMove, "player %s is dead", playerID)
	}

	speed := baseMoveSpeed
	if e.boosted(p) {
		speed = boostedSpeed
	}

	var dx, dy, dz float64
	switch dir {
	case Forward:
		dx = -math.Sin(p.Yaw) * speed
		dy = -math.Cos(p.Yaw) * speed
	case Backward:
		dx = math.Sin(p.Yaw) * speed
		dy = math.Cos(p.Yaw) * speed
	case Left:
		dx = -math.Cos(p.Yaw) * speed
		dy = math.Sin(p.Yaw) * speed
	case Right:
		dx = math.Cos(p.Yaw) * speed
		dy = -math.Sin(p.Yaw) * speed
	case Up:
		dz = speed
	case Down:
		dz = -speed
	default:
		return nil, opErr(ErrInvalidMove, "unknown direction %d", dir)
	}

	next := Position{X: p.Pos.X + dx, Y: p.Pos.Y + dy, Z: p.Pos.Z + dz}
	if dz != 0 && !e.stairStep(p.Pos, next) {
		return nil, opErr(ErrInvalidMove, "layer change outside a stair cell")
	}
	cell := next.Cell()
	if !e.grid.Walkable(cell.X, cell.Y, cell.Z) {
		return nil, opErr(ErrInvalidMove, "cell (%d,%d,%d) is blocked", cell.X, cell.Y, cell.Z)
	}

	p.Pos = next
	res := &MoveResult{Pos: p.Pos, Yaw: p.Yaw}
	e.checkGoal(p, res)
	return res, nil
}

// MoveTo applies a client-reported position. The server stays
// authoritative: if the submitted delta is not reachable by a single
// move step from the last accepted position, the position is clamped
// back and accepted=false is returned. Yaw is always taken.
func (e *Engine) MoveTo(playerID string, pos Position, yaw float64) (*MoveResult, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return nil, false, opErr(ErrGameNotRunning, "match is not running")
	}
	p, ok := e.players[playerID]
	if !ok {
		return nil, false, opErr(ErrPlayerNotFound, "player %s not in match", playerID)
	}
	p.Yaw = yaw
	if !p.Alive {
		return &MoveResult{Pos: p.Pos, Yaw: p.Yaw}, false, nil
	}

	speed := baseMoveSpeed
	if e.boosted(p) {
		speed = boostedSpeed
	}

	dx := pos.X - p.Pos.X
	dy := pos.Y - p.Pos.Y
	dz := pos.Z - p.Pos.Z

	accepted := true
	switch {
	case dz != 0:
		// Vertical steps carry no horizontal component.
		if math.Abs(dz) > speed+moveSlack || math.Hypot(dx, dy) > moveSlack {
			accepted = false
		} else if !e.stairStep(p.Pos, pos) {
			accepted = false
		}
	default:
		if math.Hypot(dx, dy) > speed+moveSlack {
			accepted = false
		}
	}
	if accepted {
		cell := pos.Cell()
		if !e.grid.Walkable(cell.X, cell.Y, cell.Z) {
			accepted = false
		}
	}

	if !accepted {
		return &MoveResult{Pos: p.Pos, Yaw: p.Yaw}, false, nil
	}

	p.Pos = pos
	res := &MoveResult{Pos: p.Pos, Yaw: p.Yaw}
	e.checkGoal(p, res)
	return res, true, nil
}

// stairStep reports whether a vertical step between from and to stays
// inside a stair shaft: both occupied cells must be stair cells.
func (e *Engine) stairStep(from, to Position) bool {
	return e.isStairCell(from.Cell()) && e.isStairCell(to.Cell())
}

func (e *Engine) isStairCell(c maze.Position) bool {
	cell := e.grid.At(c.X, c.Y, c.Z)
	return cell == maze.StairUp || cell == maze.StairDown
}

func (e *Engine) boosted(p *PlayerState) bool {
	return !p.SpeedBoostUntil.IsZero() && e.clock().Before(p.SpeedBoostUntil)
}

// checkGoal assigns a finish rank and its coin bonus the first time a
// player's cell equals the maze end.
func (e *Engine) checkGoal(p *PlayerState, res *MoveResult) {
	if p.ReachedGoal || p.Pos.Cell() != e.grid.EndPos {
		return
	}
	p.ReachedGoal = true
	p.FinishRank = e.nextRank
	e.nextRank++
	reward := 61 - p.FinishRank
	if reward < 0 {
		reward = 0
	}
	p.Coins += reward
	e.finished++

	res.GoalReached = true
	res.FinishRank = p.FinishRank
	res.Reward = reward
	res.AllFinished = e.finished == len(e.players)
}

// CollectCoin flips the collected bit for the coin at the given pool
// index. Idempotent: an already-collected or invalid index fails.
func (e *Engine) CollectCoin(playerID string, coinIndex int) (playerCoins, remaining int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return 0, 0, opErr(ErrGameNotRunning, "match is not running")
	}
	p, ok := e.players[playerID]
	if !ok {
		return 0, 0, opErr(ErrPlayerNotFound, "player %s not in match", playerID)
	}
	if coinIndex < 0 || coinIndex >= len(e.collected) {
		return 0, 0, opErr(ErrInvalidTarget, "coin index %d out of range", coinIndex)
	}
	if e.collected[coinIndex] {
		return 0, 0, opErr(ErrInvalidTarget, "coin %d already collected", coinIndex)
	}

	e.collected[coinIndex] = true
	p.Coins++
	e.remaining--
	return p.Coins, e.remaining, nil
}

// CoinAt reports the pool index of an uncollected coin occupying the
// given cell.
func (e *Engine) CoinAt(cell maze.Position) (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, c := range e.grid.Coins {
		if c == cell && !e.collected[i] {
			return i, true
		}
	}
	return 0, false
}

// PurchaseItem exchanges this-match coins for one inventory unit.
func (e *Engine) PurchaseItem(playerID string, kind ItemKind) (coins, owned int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return 0, 0, opErr(ErrGameNotRunning, "match is not running")
	}
	p, ok := e.players[playerID]
	if !ok {
		return 0, 0, opErr(ErrPlayerNotFound, "player %s not in match", playerID)
	}
	price, ok := kind.Price()
	if !ok {
		return 0, 0, opErr(ErrInvalidTarget, "unknown item %q", kind)
	}
	if p.Coins < price {
		return 0, 0, opErr(ErrInsufficientCoins, "%s costs %d, have %d", kind, price, p.Coins)
	}

	p.Coins -= price
	p.Inventory[kind]++
	return p.Coins, p.Inventory[kind], nil
}

// Tick expires slow traps, repairs broken walls and clears lapsed
// speed boosts. Called by the tick loop every cadence period.
func (e *Engine) Tick(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	live := e.traps[:0]
	for _, t := range e.traps {
		if now.Sub(t.PlacedAt) < trapLifetime {
			live = append(live, t)
		}
	}
	e.traps = live

	for pos, repairAt := range e.broken {
		if !repairAt.After(now) {
			e.grid.Set(pos.X, pos.Y, pos.Z, maze.Wall)
			delete(e.broken, pos)
		}
	}

	for _, p := range e.players {
		if !p.SpeedBoostUntil.IsZero() && !now.Before(p.SpeedBoostUntil) {
			p.SpeedBoostUntil = time.Time{}
		}
	}
}

// respawn places the player on a uniformly random non-blocking cell.
// Coins and inventory survive; compass and speed boost do not.
func (e *Engine) respawn(p *PlayerState) Position {
	for {
		x := e.rng.Intn(e.grid.Width)
		y := e.rng.Intn(e.grid.Height)
		z := e.rng.Intn(e.grid.Layers)
		if !e.grid.Walkable(x, y, z) {
			continue
		}
		p.Pos = Position{X: float64(x), Y: float64(y), Z: float64(z)}
		p.Alive = true
		p.HasCompass = false
		p.SpeedBoostUntil = time.Time{}
		return p.Pos
	}
}

// Give adds items directly to a player's inventory (operator path).
func (e *Engine) Give(playerID string, kind ItemKind, count int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.players[playerID]
	if !ok {
		return opErr(ErrPlayerNotFound, "player %s not in match", playerID)
	}
	if _, priced := kind.Price(); !priced {
		return opErr(ErrInvalidTarget, "item %q cannot be given", kind)
	}
	if count <= 0 {
		return opErr(ErrInvalidTarget, "count must be positive")
	}
	p.Inventory[kind] += count
	return nil
}

// Teleport moves a player to an arbitrary valid position.
func (e *Engine) Teleport(playerID string, pos Position) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.players[playerID]
	if !ok {
		return opErr(ErrPlayerNotFound, "player %s not in match", playerID)
	}
	cell := pos.Cell()
	if !e.grid.Walkable(cell.X, cell.Y, cell.Z) {
		return opErr(ErrInvalidTarget, "cell (%d,%d,%d) is blocked", cell.X, cell.Y, cell.Z)
	}
	p.Pos = pos
	return nil
}

// Kill marks the player dead and immediately respawns it, returning
// the respawn position.
func (e *Engine) Kill(playerID string) (Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.players[playerID]
	if !ok {
		return Position{}, opErr(ErrPlayerNotFound, "player %s not in match", playerID)
	}
	if !p.Alive {
		return Position{}, opErr(ErrInvalidTarget, "player %s is already dead", playerID)
	}
	p.Alive = false
	return e.respawn(p), nil
}

// SetCoins overwrites a player's this-match coin count.
func (e *Engine) SetCoins(playerID string, coins int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.players[playerID]
	if !ok {
		return opErr(ErrPlayerNotFound, "player %s not in match", playerID)
	}
	if coins < 0 {
		return opErr(ErrInvalidTarget, "coin count must be non-negative")
	}
	p.Coins = coins
	return nil
}

// Reset returns the match to its initial state while preserving each
// player's this-match coins and inventory.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := e.grid.StartPos
	for _, p := range e.players {
		p.Pos = Position{X: float64(start.X), Y: float64(start.Y), Z: float64(start.Z)}
		p.Alive = true
		p.HasCompass = false
		p.SpeedBoostUntil = time.Time{}
		p.ReachedGoal = false
		p.FinishRank = 0
	}

	for i := range e.collected {
		e.collected[i] = false
	}
	e.remaining = len(e.collected)

	for pos := range e.broken {
		e.grid.Set(pos.X, pos.Y, pos.Z, maze.Wall)
		delete(e.broken, pos)
	}
	e.traps = nil

	e.finished = 0
	e.nextRank = 1
}

// Player returns a copy of one player's state.
func (e *Engine) Player(playerID string) (PlayerState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.players[playerID]
	if !ok {
		return PlayerState{}, false
	}
	return p.clone(), true
}

// Snapshot copies the match counters and all player states, ordered
// by player ID.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		Running:        e.running,
		RemainingCoins: e.remaining,
		FinishedCount:  e.finished,
		Players:        make([]PlayerState, 0, len(e.players)),
	}
	for _, p := range e.players {
		snap.Players = append(snap.Players, p.clone())
	}
	sort.Slice(snap.Players, func(i, j int) bool {
		return snap.Players[i].ID < snap.Players[j].ID
	})
	for _, t := range e.traps {
		snap.Traps = append(snap.Traps, t.Pos)
	}
	return snap
}

// Maze copies the maze in its wire shape.
func (e *Engine) Maze() MazeSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	return MazeSnapshot{
		Layout:    e.grid.Layout(),
		Start:     e.grid.StartPos,
		End:       e.grid.EndPos,
		Coins:     append([]maze.Position(nil), e.grid.Coins...),
		Collected: append([]bool(nil), e.collected...),
		Stairs:    e.grid.StairPairs(),
	}
}

// Dims returns the maze dimensions.
func (e *Engine) Dims() (width, height, layers int) {
	return e.grid.Width, e.grid.Height, e.grid.Layers
}

// RemainingCoins returns the count of uncollected coins.
func (e *Engine) RemainingCoins() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remaining
}

// PlayerCount returns the number of players in the match.
func (e *Engine) PlayerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.players)
}
