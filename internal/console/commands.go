// Package console implements the operator console: a line-oriented
// command interpreter driving the privileged engine API, plus the
// interactive prompt it runs behind.
package console

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/mazeworks/mazeserver/internal/game"
	"github.com/mazeworks/mazeserver/internal/player"
)

// Level is an administrative privilege level.
type Level int

const (
	LevelNone Level = iota
	LevelModerator
	LevelAdmin
	LevelSuperAdmin
)

// ConsoleExecutor is the executor ID the local console runs as. It
// always holds super-admin privileges.
const ConsoleExecutor = "console"

const historyCap = 1000

// Dispatcher is the slice of the connection layer the console needs.
type Dispatcher interface {
	Kick(playerID string) bool
	SystemMessage(msg string)
	AnnouncePosition(playerID string, pos game.Position)
}

// Result is the outcome of one executed command line.
type Result struct {
	Success bool
	Message string
}

func fail(format string, args ...any) Result {
	return Result{Success: false, Message: fmt.Sprintf(format, args...)}
}

func ok(format string, args ...any) Result {
	return Result{Success: true, Message: fmt.Sprintf(format, args...)}
}

// Interpreter executes operator commands against the engine and
// registry. Safe for concurrent use; the admin table and history have
// their own lock, engine calls use the engine's.
type Interpreter struct {
	engine   *game.Engine
	registry *player.Registry
	dispatch Dispatcher
	shutdown func()

	mu      sync.Mutex
	admins  map[string]Level
	history []string
}

// NewInterpreter wires the command interpreter. shutdown is invoked
// by quit/exit and may be nil.
func NewInterpreter(engine *game.Engine, registry *player.Registry, dispatch Dispatcher, shutdown func()) *Interpreter {
	return &Interpreter{
		engine:   engine,
		registry: registry,
		dispatch: dispatch,
		shutdown: shutdown,
		admins:   make(map[string]Level),
	}
}

// SetAdmin sets a player's administrative level. Level 0 removes the
// entry.
func (in *Interpreter) SetAdmin(playerID string, level Level) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if level <= LevelNone {
		delete(in.admins, playerID)
		return
	}
	in.admins[playerID] = level
}

func (in *Interpreter) level(executor string) Level {
	if executor == ConsoleExecutor {
		return LevelSuperAdmin
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.admins[executor]
}

// History returns a copy of the executed command history.
func (in *Interpreter) History() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]string(nil), in.history...)
}

func (in *Interpreter) record(executor, line string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.history = append(in.history, "["+executor+"] "+line)
	if len(in.history) > historyCap {
		in.history = in.history[len(in.history)-historyCap:]
	}
}

// Execute runs one command line on behalf of the given executor.
func (in *Interpreter) Execute(line, executor string) Result {
	line = strings.TrimSpace(line)
	if line == "" {
		return fail("Empty command")
	}
	in.record(executor, line)

	args := Tokenize(line)
	cmd := strings.ToLower(args[0])
	args = args[1:]

	type command struct {
		minLevel Level
		run      func([]string) Result
	}
	commands := map[string]command{
		"give":    {LevelAdmin, in.cmdGive},
		"tp":      {LevelAdmin, in.cmdTeleport},
		"kick":    {LevelModerator, in.cmdKick},
		"kill":    {LevelModerator, in.cmdKill},
		"clear":   {LevelSuperAdmin, in.cmdReset},
		"coin":    {LevelAdmin, in.cmdCoin},
		"system":  {LevelModerator, in.cmdSystem},
		"admin":   {LevelSuperAdmin, in.cmdAdmin},
		"players": {LevelModerator, in.cmdPlayers},
		"restart": {LevelSuperAdmin, in.cmdReset},
		"help":    {LevelNone, in.cmdHelp},
		"quit":    {LevelSuperAdmin, in.cmdQuit},
		"exit":    {LevelSuperAdmin, in.cmdQuit},
	}

	c, found := commands[cmd]
	if !found {
		return fail("Unknown command: %s", cmd)
	}
	if in.level(executor) < c.minLevel {
		return fail("Insufficient permissions for %s command", cmd)
	}
	return c.run(args)
}

// Tokenize splits a command line on whitespace, honoring double-quoted
// spans.
func Tokenize(line string) []string {
	var tokens []string
	var cur strings.Builder
	inQuotes := false
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range line {
		switch {
		case r == '"':
			if inQuotes {
				tokens = append(tokens, cur.String())
				cur.Reset()
			}
			inQuotes = !inQuotes
		case !inQuotes && (r == ' ' || r == '\t'):
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

func (in *Interpreter) cmdGive(args []string) Result {
	if len(args) < 2 {
		return fail("Usage: give <player> <item> [count]")
	}
	playerID, item := args[0], args[1]
	count := 1
	if len(args) > 2 {
		n, err := strconv.Atoi(args[2])
		if err != nil || n <= 0 {
			return fail("Invalid count: %s", args[2])
		}
		count = n
	}

	kind, found := game.ParseItem(item)
	if !found {
		return fail("Unknown item: %s", item)
	}

	// Coins are durable currency, not match inventory.
	if kind == game.CoinItem {
		if !in.registry.AddCoins(playerID, count) {
			return fail("Player not found: %s", playerID)
		}
		return ok("Gave %d coins to %s", count, playerID)
	}

	if err := in.engine.Give(playerID, kind, count); err != nil {
		return fail("%s", err)
	}
	return ok("Gave %d %s to %s", count, kind, playerID)
}

func (in *Interpreter) cmdTeleport(args []string) Result {
	if len(args) < 4 {
		return fail("Usage: tp <player> <x> <y> <z>")
	}
	playerID := args[0]
	coords := make([]float64, 3)
	for i, arg := range args[1:4] {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return fail("Invalid coordinate: %s", arg)
		}
		coords[i] = v
	}

	pos := game.Position{X: coords[0], Y: coords[1], Z: coords[2]}
	if err := in.engine.Teleport(playerID, pos); err != nil {
		return fail("%s", err)
	}
	in.dispatch.AnnouncePosition(playerID, pos)
	return ok("Teleported %s to (%.1f, %.1f, %.1f)", playerID, pos.X, pos.Y, pos.Z)
}

func (in *Interpreter) cmdKick(args []string) Result {
	if len(args) < 1 {
		return fail("Usage: kick <player> [reason]")
	}
	playerID := args[0]
	if !in.dispatch.Kick(playerID) {
		return fail("Player not connected: %s", playerID)
	}
	if len(args) > 1 {
		in.dispatch.SystemMessage(playerID + " was kicked: " + strings.Join(args[1:], " "))
	}
	return ok("Kicked %s", playerID)
}

func (in *Interpreter) cmdKill(args []string) Result {
	if len(args) < 1 {
		return fail("Usage: kill <player>")
	}
	playerID := args[0]
	pos, err := in.engine.Kill(playerID)
	if err != nil {
		return fail("%s", err)
	}
	in.dispatch.AnnouncePosition(playerID, pos)
	return ok("Killed %s, respawned at (%.0f, %.0f, %.0f)", playerID, pos.X, pos.Y, pos.Z)
}

func (in *Interpreter) cmdReset(args []string) Result {
	in.engine.Reset()
	in.dispatch.SystemMessage("Game has been reset by an administrator")
	return ok("Game reset")
}

func (in *Interpreter) cmdCoin(args []string) Result {
	if len(args) < 2 {
		return fail("Usage: coin <player> <amount>")
	}
	playerID := args[0]
	amount, err := strconv.Atoi(args[1])
	if err != nil {
		return fail("Invalid amount: %s", args[1])
	}

	if err := in.engine.SetCoins(playerID, amount); err != nil {
		return fail("%s", err)
	}
	// Mirror into the durable record.
	if rec, found := in.registry.Get(playerID); found {
		rec.TotalCoins = amount
		in.registry.Update(playerID, rec)
	}
	return ok("Set %s coins to %d", playerID, amount)
}

func (in *Interpreter) cmdSystem(args []string) Result {
	if len(args) < 1 {
		return fail("Usage: system <message>")
	}
	in.dispatch.SystemMessage(strings.Join(args, " "))
	return ok("System message sent")
}

func (in *Interpreter) cmdAdmin(args []string) Result {
	if len(args) < 2 {
		return fail("Usage: admin <player> <level>")
	}
	playerID := args[0]
	level, err := strconv.Atoi(args[1])
	if err != nil || level < 0 || level > int(LevelSuperAdmin) {
		return fail("Invalid level: %s (0-3)", args[1])
	}
	if !in.registry.IsValid(playerID) {
		return fail("Player not found: %s", playerID)
	}
	in.SetAdmin(playerID, Level(level))
	return ok("Set %s admin level to %d", playerID, level)
}

func (in *Interpreter) cmdPlayers(args []string) Result {
	online := in.registry.Online()
	if len(online) == 0 {
		return ok("No players online")
	}
	sort.Strings(online)

	var b strings.Builder
	fmt.Fprintf(&b, "%d player(s) online:", len(online))
	for _, id := range online {
		rec, _ := in.registry.Get(id)
		coins := 0
		if st, found := in.engine.Player(id); found {
			coins = st.Coins
		}
		fmt.Fprintf(&b, "\n  %s  coins=%d totalCoins=%d games=%d wins=%d",
			id, coins, rec.TotalCoins, rec.GamesPlayed, rec.GamesWon)
	}
	return ok("%s", b.String())
}

func (in *Interpreter) cmdHelp(args []string) Result {
	return ok(`Available commands:
  give <player> <item> [count]    - Give an item (or coins) to a player
  tp <player> <x> <y> <z>         - Teleport a player
  kick <player> [reason]          - Disconnect a player
  kill <player>                   - Kill and respawn a player
  clear                           - Reset the match
  coin <player> <amount>          - Set a player's coins
  system <message>                - Broadcast a system chat message
  admin <player> <level>          - Set admin level (0-3)
  players                         - List online players
  restart                         - Reset the match
  quit | exit                     - Shut the server down
  help                            - Show this help`)
}

func (in *Interpreter) cmdQuit(args []string) Result {
	if in.shutdown != nil {
		in.shutdown()
	}
	return ok("Shutting down")
}
