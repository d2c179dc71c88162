package data

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// GameConfig is the client-visible game configuration stored in
// config.json and served by /api/config.
type GameConfig struct {
	ServerName  string `json:"serverName"`
	GameVersion string `json:"gameVersion"`
	MazeWidth   int    `json:"mazeWidth"`
	MazeHeight  int    `json:"mazeHeight"`
	MazeLayers  int    `json:"mazeLayers"`
	MaxPlayers  int    `json:"maxPlayers"`
}

func DefaultGameConfig() GameConfig {
	return GameConfig{
		ServerName:  "Maze Server",
		GameVersion: "1.0.0",
		MazeWidth:   50,
		MazeHeight:  50,
		MazeLayers:  7,
		MaxPlayers:  10,
	}
}

func gameConfigPath(dir string) string {
	return filepath.Join(dir, "config.json")
}

// LoadGameConfig reads config.json, writing the defaults first when
// the file does not exist yet.
func LoadGameConfig(dir string) (GameConfig, error) {
	cfg := DefaultGameConfig()

	raw, err := os.ReadFile(gameConfigPath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, SaveGameConfig(dir, cfg)
		}
		return cfg, fmt.Errorf("reading config.json: %w", err)
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config.json: %w", err)
	}
	return cfg, nil
}

func SaveGameConfig(dir string, cfg GameConfig) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config.json: %w", err)
	}
	return writeFileAtomic(gameConfigPath(dir), raw)
}
