// Package data persists server state as JSON files under the data
// directory: player records, the maze snapshot, the game config and
// the append-only chat log, plus timestamped backups of all three.
package data

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mazeworks/mazeserver/internal/player"
)

// timeLayout is the legacy timestamp form used across the data files.
const timeLayout = "2006-01-02 15:04:05"

// PlayerStore reads and writes players.json.
type PlayerStore struct {
	mu   sync.Mutex
	path string
}

func NewPlayerStore(dir string) *PlayerStore {
	return &PlayerStore{path: filepath.Join(dir, "players.json")}
}

// playerRecord is the on-disk shape of one durable record. The
// fingerprint keeps its historical macAddress key.
type playerRecord struct {
	PlayerID    string `json:"playerId"`
	MacAddress  string `json:"macAddress"`
	Cookie      string `json:"cookie"`
	TotalCoins  int    `json:"totalCoins"`
	GamesPlayed int    `json:"gamesPlayed"`
	GamesWon    int    `json:"gamesWon"`
	LastLogin   string `json:"lastLogin"`
	IsOnline    bool   `json:"isOnline"`
}

// Load reads all records. A missing file is an empty registry.
func (s *PlayerStore) Load(_ context.Context) ([]player.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}

	var rows []playerRecord
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", s.path, err)
	}

	records := make([]player.Record, 0, len(rows))
	for _, row := range rows {
		rec := player.Record{
			PlayerID:    row.PlayerID,
			Fingerprint: row.MacAddress,
			Cookie:      row.Cookie,
			TotalCoins:  row.TotalCoins,
			GamesPlayed: row.GamesPlayed,
			GamesWon:    row.GamesWon,
			Online:      row.IsOnline,
		}
		if row.LastLogin != "" {
			if ts, err := time.ParseInLocation(timeLayout, row.LastLogin, time.Local); err == nil {
				rec.LastLogin = ts
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// Save writes the full record set atomically.
func (s *PlayerStore) Save(_ context.Context, records []player.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([]playerRecord, 0, len(records))
	for _, rec := range records {
		rows = append(rows, playerRecord{
			PlayerID:    rec.PlayerID,
			MacAddress:  rec.Fingerprint,
			Cookie:      rec.Cookie,
			TotalCoins:  rec.TotalCoins,
			GamesPlayed: rec.GamesPlayed,
			GamesWon:    rec.GamesWon,
			LastLogin:   rec.LastLogin.Format(timeLayout),
			IsOnline:    rec.Online,
		})
	}

	raw, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding player records: %w", err)
	}
	return writeFileAtomic(s.path, raw)
}

// writeFileAtomic writes via a temp file and rename so a crash never
// leaves a truncated JSON file behind.
func writeFileAtomic(path string, raw []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
