package console

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mazeworks/mazeserver/internal/game"
	"github.com/mazeworks/mazeserver/internal/maze"
	"github.com/mazeworks/mazeserver/internal/player"
)

type memStore struct {
	records []player.Record
}

func (s *memStore) Load(ctx context.Context) ([]player.Record, error) {
	return append([]player.Record(nil), s.records...), nil
}

func (s *memStore) Save(ctx context.Context, records []player.Record) error {
	s.records = append([]player.Record(nil), records...)
	return nil
}

type fakeDispatch struct {
	kicked    []string
	kickOK    bool
	system    []string
	announced []string
}

func (d *fakeDispatch) Kick(playerID string) bool {
	d.kicked = append(d.kicked, playerID)
	return d.kickOK
}

func (d *fakeDispatch) SystemMessage(msg string) {
	d.system = append(d.system, msg)
}

func (d *fakeDispatch) AnnouncePosition(playerID string, pos game.Position) {
	d.announced = append(d.announced, playerID)
}

func openGrid(t *testing.T) *maze.Grid {
	t.Helper()
	layout := make([][][]bool, 1)
	layout[0] = make([][]bool, 7)
	for y := range 7 {
		layout[0][y] = make([]bool, 7)
		for x := range 7 {
			layout[0][y][x] = x == 0 || y == 0 || x == 6 || y == 6
		}
	}
	g, err := maze.FromLayout(layout,
		maze.Position{X: 1, Y: 1, Z: 0},
		maze.Position{X: 5, Y: 5, Z: 0}, nil, nil)
	require.NoError(t, err)
	return g
}

type fixture struct {
	interp   *Interpreter
	engine   *game.Engine
	registry *player.Registry
	dispatch *fakeDispatch
	shutdown int
}

func newFixture(t *testing.T) (*fixture, string) {
	t.Helper()

	engine := game.New(openGrid(t))
	registry, err := player.NewRegistry(context.Background(), &memStore{})
	require.NoError(t, err)

	f := &fixture{
		engine:   engine,
		registry: registry,
		dispatch: &fakeDispatch{kickOK: true},
	}
	f.interp = NewInterpreter(engine, registry, f.dispatch, func() { f.shutdown++ })

	playerID, err := registry.RegisterOrResolve("AA:BB:CC:DD:EE:01", "alice")
	require.NoError(t, err)
	require.NoError(t, registry.Login(playerID))
	_, err = engine.AddPlayer(playerID)
	require.NoError(t, err)
	return f, playerID
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"give p1 hammer 2", []string{"give", "p1", "hammer", "2"}},
		{`system "server restarting soon"`, []string{"system", "server restarting soon"}},
		{"  spaced   out  ", []string{"spaced", "out"}},
		{`kick p1 "being rude" now`, []string{"kick", "p1", "being rude", "now"}},
		{"", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Tokenize(tt.line), "line %q", tt.line)
	}
}

func TestGiveItemAndCoins(t *testing.T) {
	f, pid := newFixture(t)

	res := f.interp.Execute(fmt.Sprintf("give %s hammer 2", pid), ConsoleExecutor)
	require.True(t, res.Success, res.Message)
	st, found := f.engine.Player(pid)
	require.True(t, found)
	assert.Equal(t, 2, st.Inventory[game.Hammer])

	// The coin pseudo-item goes to the durable record, not inventory.
	res = f.interp.Execute(fmt.Sprintf("give %s coin 50", pid), ConsoleExecutor)
	require.True(t, res.Success, res.Message)
	rec, _ := f.registry.Get(pid)
	assert.Equal(t, 50, rec.TotalCoins)
	st, _ = f.engine.Player(pid)
	assert.Zero(t, st.Coins)

	res = f.interp.Execute("give nobody hammer", ConsoleExecutor)
	assert.False(t, res.Success)

	res = f.interp.Execute(fmt.Sprintf("give %s excalibur", pid), ConsoleExecutor)
	assert.False(t, res.Success)
}

func TestTeleportValidatesPosition(t *testing.T) {
	f, pid := newFixture(t)

	res := f.interp.Execute(fmt.Sprintf("tp %s 3 3 0", pid), ConsoleExecutor)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, []string{pid}, f.dispatch.announced)

	st, _ := f.engine.Player(pid)
	assert.Equal(t, game.Position{X: 3, Y: 3, Z: 0}, st.Pos)

	// Into the outer shell.
	res = f.interp.Execute(fmt.Sprintf("tp %s 0 0 0", pid), ConsoleExecutor)
	assert.False(t, res.Success)

	res = f.interp.Execute(fmt.Sprintf("tp %s 1 1", pid), ConsoleExecutor)
	assert.False(t, res.Success)
}

func TestKickAndKill(t *testing.T) {
	f, pid := newFixture(t)

	res := f.interp.Execute(fmt.Sprintf("kick %s spamming", pid), ConsoleExecutor)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, []string{pid}, f.dispatch.kicked)
	require.Len(t, f.dispatch.system, 1)
	assert.Contains(t, f.dispatch.system[0], "spamming")

	res = f.interp.Execute(fmt.Sprintf("kill %s", pid), ConsoleExecutor)
	require.True(t, res.Success, res.Message)
	st, _ := f.engine.Player(pid)
	assert.True(t, st.Alive, "respawned alive")
}

func TestCoinMirrorsDurableRecord(t *testing.T) {
	f, pid := newFixture(t)

	res := f.interp.Execute(fmt.Sprintf("coin %s 75", pid), ConsoleExecutor)
	require.True(t, res.Success, res.Message)

	st, _ := f.engine.Player(pid)
	assert.Equal(t, 75, st.Coins)
	rec, _ := f.registry.Get(pid)
	assert.Equal(t, 75, rec.TotalCoins)

	res = f.interp.Execute(fmt.Sprintf("coin %s -5", pid), ConsoleExecutor)
	assert.False(t, res.Success)
}

func TestResetAndSystemBroadcast(t *testing.T) {
	f, pid := newFixture(t)
	require.NoError(t, f.engine.SetCoins(pid, 10))

	res := f.interp.Execute("restart", ConsoleExecutor)
	require.True(t, res.Success)
	require.Len(t, f.dispatch.system, 1)

	res = f.interp.Execute(`system "maintenance window at noon"`, ConsoleExecutor)
	require.True(t, res.Success)
	assert.Equal(t, "maintenance window at noon", f.dispatch.system[1])
}

func TestAdminLevelsGatePlayers(t *testing.T) {
	f, pid := newFixture(t)

	// An unprivileged player cannot run moderator commands.
	res := f.interp.Execute("players", pid)
	assert.False(t, res.Success)

	res = f.interp.Execute(fmt.Sprintf("admin %s 1", pid), ConsoleExecutor)
	require.True(t, res.Success, res.Message)

	res = f.interp.Execute("players", pid)
	assert.True(t, res.Success)
	assert.Contains(t, res.Message, pid)

	// Moderator still cannot reset.
	res = f.interp.Execute("clear", pid)
	assert.False(t, res.Success)

	// Demote back to none.
	res = f.interp.Execute(fmt.Sprintf("admin %s 0", pid), ConsoleExecutor)
	require.True(t, res.Success)
	res = f.interp.Execute("players", pid)
	assert.False(t, res.Success)

	res = f.interp.Execute(fmt.Sprintf("admin %s 9", pid), ConsoleExecutor)
	assert.False(t, res.Success)
}

func TestUnknownAndQuit(t *testing.T) {
	f, _ := newFixture(t)

	res := f.interp.Execute("frobnicate", ConsoleExecutor)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "Unknown command")

	res = f.interp.Execute("quit", ConsoleExecutor)
	assert.True(t, res.Success)
	assert.Equal(t, 1, f.shutdown)
}

func TestHistoryIsBounded(t *testing.T) {
	f, _ := newFixture(t)

	for i := range historyCap + 50 {
		f.interp.Execute(fmt.Sprintf("help %d", i), ConsoleExecutor)
	}

	hist := f.interp.History()
	require.Len(t, hist, historyCap)
	assert.True(t, strings.HasSuffix(hist[len(hist)-1],
		fmt.Sprintf("help %d", historyCap+49)))
	assert.True(t, strings.HasPrefix(hist[0], "[console] help "))
}
