package data

import (
	"context"
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mazeworks/mazeserver/internal/maze"
	"github.com/mazeworks/mazeserver/internal/player"
)

func TestPlayerStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewPlayerStore(dir)
	ctx := context.Background()

	// Missing file loads as an empty registry.
	records, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	in := []player.Record{
		{
			PlayerID:    "PLAYER_100001",
			Fingerprint: "AA:BB:CC:DD:EE:01",
			Cookie:      "c-1",
			TotalCoins:  12,
			GamesPlayed: 3,
			GamesWon:    1,
			LastLogin:   time.Date(2026, 8, 25, 10, 30, 0, 0, time.Local),
			Online:      true,
		},
		{PlayerID: "PLAYER_100002", Fingerprint: "AA:BB:CC:DD:EE:02"},
	}
	require.NoError(t, store.Save(ctx, in))

	out, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, in[0].PlayerID, out[0].PlayerID)
	assert.Equal(t, in[0].Fingerprint, out[0].Fingerprint)
	assert.Equal(t, in[0].Cookie, out[0].Cookie)
	assert.Equal(t, in[0].TotalCoins, out[0].TotalCoins)
	assert.Equal(t, in[0].GamesPlayed, out[0].GamesPlayed)
	assert.Equal(t, in[0].GamesWon, out[0].GamesWon)
	assert.True(t, in[0].LastLogin.Equal(out[0].LastLogin))
	assert.True(t, out[0].Online)
	assert.Equal(t, "PLAYER_100002", out[1].PlayerID)

	// The legacy field names stay on disk.
	raw, err := os.ReadFile(filepath.Join(dir, "players.json"))
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(raw, &rows))
	assert.Equal(t, "AA:BB:CC:DD:EE:01", rows[0]["macAddress"])
	assert.Equal(t, "2026-08-25 10:30:00", rows[0]["lastLogin"])
}

func TestPlayerStoreRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "players.json"), []byte("{oops"), 0o644))

	_, err := NewPlayerStore(dir).Load(context.Background())
	assert.Error(t, err)
}

func TestMazeRoundTrip(t *testing.T) {
	dir := t.TempDir()
	g := maze.Generate(25, 25, 3, rand.New(rand.NewSource(11)))

	require.NoError(t, SaveMaze(dir, g))

	loaded, err := LoadMaze(dir)
	require.NoError(t, err)
	assert.Equal(t, g.Layout(), loaded.Layout())
	assert.Equal(t, g.StartPos, loaded.StartPos)
	assert.Equal(t, g.EndPos, loaded.EndPos)
	assert.Equal(t, g.Coins, loaded.Coins)
	assert.Equal(t, g.StairPairs(), loaded.StairPairs())
}

func TestLoadMazeMissingFile(t *testing.T) {
	_, err := LoadMaze(t.TempDir())
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

func TestChatLogAppendAndTail(t *testing.T) {
	dir := t.TempDir()
	log, err := OpenChatLog(dir)
	require.NoError(t, err)
	defer log.Close()

	require.NoError(t, log.Append("Alice", "hello"))
	require.NoError(t, log.Append("Bob", "hi there"))
	require.NoError(t, log.Append("SYSTEM", "maintenance soon"))

	lines, err := log.Tail(2)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "[Bob]: hi there")
	assert.Contains(t, lines[1], "[SYSTEM]: maintenance soon")
	assert.Regexp(t, `^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] `, lines[0])

	all, err := log.Tail(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, log.Close())
	assert.Error(t, log.Append("Alice", "too late"))
}

func TestGameConfigCreatesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadGameConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultGameConfig(), cfg)
	assert.FileExists(t, filepath.Join(dir, "config.json"))

	cfg.MaxPlayers = 25
	require.NoError(t, SaveGameConfig(dir, cfg))
	again, err := LoadGameConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, 25, again.MaxPlayers)
}

func TestCreateBackupCopiesExistingFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewPlayerStore(dir)
	require.NoError(t, store.Save(context.Background(), []player.Record{
		{PlayerID: "PLAYER_100003", Fingerprint: "AA:BB:CC:DD:EE:03"},
	}))
	_, err := LoadGameConfig(dir)
	require.NoError(t, err)

	require.NoError(t, CreateBackup(dir))

	entries, err := os.ReadDir(filepath.Join(dir, "backups"))
	require.NoError(t, err)
	require.Len(t, entries, 2, "players and config copied, maze skipped")
	for _, e := range entries {
		assert.Regexp(t, `^backup_\d{8}_\d{6}_`, e.Name())
	}
}
