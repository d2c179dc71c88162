// Package config loads the server configuration: YAML file defaults
// overridden by command-line flags.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Server holds all configuration for the maze server.
type Server struct {
	// Network. The game socket listens on HTTPPort+1.
	BindAddress string `yaml:"bind_address"`
	HTTPPort    int    `yaml:"http_port"`

	// Paths
	DataDir string `yaml:"data_dir"`
	WebRoot string `yaml:"web_root"`

	// Logging
	LogLevel   string `yaml:"log_level"`
	ConsoleLog bool   `yaml:"console_log"`
	FileLog    bool   `yaml:"file_log"`

	// Game
	ServerName  string `yaml:"server_name"`
	GameVersion string `yaml:"game_version"`
	MaxPlayers  int    `yaml:"max_players"`
	MazeWidth   int    `yaml:"maze_width"`
	MazeHeight  int    `yaml:"maze_height"`
	MazeLayers  int    `yaml:"maze_layers"`

	// Limits
	WriteQueueSize  int `yaml:"write_queue_size"`
	WriteGraceMs    int `yaml:"write_grace_ms"`
	ShutdownGraceMs int `yaml:"shutdown_grace_ms"`

	// Database. When a DSN is set the player registry persists to
	// PostgreSQL instead of players.json.
	Database DatabaseConfig `yaml:"database"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// WebSocketPort returns the game socket port derived from the HTTP
// port.
func (s Server) WebSocketPort() int {
	return s.HTTPPort + 1
}

// Default returns the server config with sensible defaults.
func Default() Server {
	return Server{
		BindAddress:     "0.0.0.0",
		HTTPPort:        8080,
		DataDir:         "./Data",
		WebRoot:         "./web",
		LogLevel:        "info",
		ConsoleLog:      true,
		FileLog:         true,
		ServerName:      "Maze Server",
		GameVersion:     "1.0.0",
		MaxPlayers:      10,
		MazeWidth:       50,
		MazeHeight:      50,
		MazeLayers:      7,
		WriteQueueSize:  64,
		WriteGraceMs:    2000,
		ShutdownGraceMs: 3000,
		Database: DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "maze",
			Password: "maze",
			DBName:   "maze",
			SSLMode:  "disable",
		},
	}
}

// Load loads server config from a YAML file. If the file doesn't
// exist, returns defaults.
func Load(path string) (Server, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}
