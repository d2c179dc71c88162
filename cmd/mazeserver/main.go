package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mazeworks/mazeserver/internal/config"
	"github.com/mazeworks/mazeserver/internal/console"
	"github.com/mazeworks/mazeserver/internal/data"
	"github.com/mazeworks/mazeserver/internal/db"
	"github.com/mazeworks/mazeserver/internal/game"
	"github.com/mazeworks/mazeserver/internal/gameserver"
	"github.com/mazeworks/mazeserver/internal/maze"
	"github.com/mazeworks/mazeserver/internal/player"
	"github.com/mazeworks/mazeserver/internal/webserver"
)

const DefaultConfigPath = "config/server.yaml"

// persistGrace bounds the final registry flush during shutdown.
const persistGrace = 2 * time.Second

// consoleDrain is how long shutdown waits for the console loop after
// the tick loop has stopped.
const consoleDrain = time.Second

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

// flags holds the command-line overrides layered over the YAML config.
type flags struct {
	configPath   string
	port         int
	dataDir      string
	webRoot      string
	logLevel     string
	noConsoleLog bool
	noFileLog    bool
	dsn          string
}

func parseFlags(args []string) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("mazeserver", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", DefaultConfigPath, "path to server.yaml")
	fs.IntVar(&f.port, "p", 0, "base HTTP port (game socket listens on port+1)")
	fs.IntVar(&f.port, "port", 0, "base HTTP port (game socket listens on port+1)")
	fs.StringVar(&f.dataDir, "d", "", "data directory")
	fs.StringVar(&f.dataDir, "data", "", "data directory")
	fs.StringVar(&f.webRoot, "w", "", "web root for static client files")
	fs.StringVar(&f.webRoot, "web", "", "web root for static client files")
	fs.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warning, error")
	fs.BoolVar(&f.noConsoleLog, "no-console-log", false, "disable logging to stdout")
	fs.BoolVar(&f.noFileLog, "no-file-log", false, "disable logging to server.log")
	fs.StringVar(&f.dsn, "dsn", "", "PostgreSQL DSN; overrides the config database section")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	return f, nil
}

// apply layers the flag overrides onto the loaded config.
func (f flags) apply(cfg *config.Server) {
	if f.port != 0 {
		cfg.HTTPPort = f.port
	}
	if f.dataDir != "" {
		cfg.DataDir = f.dataDir
	}
	if f.webRoot != "" {
		cfg.WebRoot = f.webRoot
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.noConsoleLog {
		cfg.ConsoleLog = false
	}
	if f.noFileLog {
		cfg.FileLog = false
	}
	if f.dsn != "" {
		cfg.Database.Enabled = true
	}
}

func run(ctx context.Context) error {
	fl, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	// Load config FIRST to determine log level and sinks.
	cfg, err := config.Load(fl.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	fl.apply(&cfg)

	logSink, logFile, err := buildLogSink(cfg)
	if err != nil {
		return err
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logLevel := parseLogLevel(cfg.LogLevel)
	slog.SetDefault(slog.New(slog.NewTextHandler(logSink, &slog.HandlerOptions{
		Level: logLevel,
	})))

	slog.Info("maze server starting",
		"log_level", cfg.LogLevel,
		"http_port", cfg.HTTPPort,
		"ws_port", cfg.WebSocketPort(),
		"data_dir", cfg.DataDir)

	// Rotate a backup of the previous run's data before touching it.
	if err := data.CreateBackup(cfg.DataDir); err != nil {
		slog.Warn("data backup failed", "error", err)
	}

	// config.json carries the client-visible settings; it overrides the
	// server config so both surfaces report the same values.
	gameCfg, err := data.LoadGameConfig(cfg.DataDir)
	if err != nil {
		slog.Warn("config.json unreadable, using defaults", "error", err)
	} else {
		cfg.ServerName = gameCfg.ServerName
		cfg.GameVersion = gameCfg.GameVersion
		cfg.MaxPlayers = gameCfg.MaxPlayers
		cfg.MazeWidth = gameCfg.MazeWidth
		cfg.MazeHeight = gameCfg.MazeHeight
		cfg.MazeLayers = gameCfg.MazeLayers
	}

	grid, err := loadOrGenerateMaze(cfg)
	if err != nil {
		return err
	}

	store, database, err := openPlayerStore(ctx, cfg, fl.dsn)
	if err != nil {
		return err
	}
	if database != nil {
		defer database.Close()
	}

	registry, err := player.NewRegistry(ctx, store)
	if err != nil {
		return fmt.Errorf("loading player registry: %w", err)
	}
	slog.Info("player registry loaded", "players", registry.Count())

	chat, err := data.OpenChatLog(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening chat log: %w", err)
	}
	defer chat.Close()

	engine := game.New(grid)
	clients := gameserver.NewClientManager()
	handler := gameserver.NewHandler(engine, registry, clients, chat, cfg.MaxPlayers)
	gameSrv := gameserver.NewServer(cfg, handler, clients)
	webSrv := webserver.New(cfg, registry, clients)
	ticker := game.NewTicker(engine, game.TickPeriod)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	interp := console.NewInterpreter(engine, registry, handler, cancel)
	cons := console.New(interp, os.Stdin, os.Stdout)

	// Re-route logs through the console so async lines redraw the
	// prompt instead of tearing through typed input.
	slog.SetDefault(slog.New(slog.NewTextHandler(cons.LogWriter(logSink), &slog.HandlerOptions{
		Level: logLevel,
	})))

	// Shutdown runs in stages: the servers close their listeners and
	// join connection workers first, then the tick loop stops, then the
	// console is drained.
	tickCtx, stopTick := context.WithCancel(context.Background())
	defer stopTick()
	consCtx, stopConsole := context.WithCancel(context.Background())
	defer stopConsole()

	gameDone := make(chan struct{})
	consDone := make(chan struct{})

	// A failed server cancels gctx so the others stop and Wait returns
	// instead of leaving a half-alive process behind.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(gameDone)
		slog.Info("game server starting", "port", cfg.WebSocketPort())
		if err := gameSrv.Run(gctx); err != nil {
			return fmt.Errorf("game server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := webSrv.Run(gctx); err != nil {
			return fmt.Errorf("web server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return ticker.Run(tickCtx)
	})
	g.Go(func() error {
		defer close(consDone)
		err := cons.Run(consCtx)
		if err == nil {
			// Console EOF (Ctrl+D or closed stdin) stops the server.
			cancel()
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gameDone
		stopTick()
		select {
		case <-consDone:
		case <-time.After(consoleDrain):
			slog.Warn("console did not drain in time")
		}
		stopConsole()
		return nil
	})

	err = g.Wait()

	persistCtx, cancelPersist := context.WithTimeout(context.Background(), persistGrace)
	defer cancelPersist()
	if perr := registry.Persist(persistCtx); perr != nil {
		slog.Error("final player persist failed", "error", perr)
		if err == nil {
			err = perr
		}
	}

	slog.Info("server stopped")
	return err
}

// buildLogSink assembles the log destination from the console and file
// settings. Both disabled still returns a sink so logging never panics.
func buildLogSink(cfg config.Server) (io.Writer, *os.File, error) {
	var sinks []io.Writer
	if cfg.ConsoleLog {
		sinks = append(sinks, os.Stdout)
	}

	var logFile *os.File
	if cfg.FileLog {
		path := filepath.Join(cfg.DataDir, "server.log")
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating data directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening %s: %w", path, err)
		}
		logFile = f
		sinks = append(sinks, f)
	}

	switch len(sinks) {
	case 0:
		return io.Discard, nil, nil
	case 1:
		return sinks[0], logFile, nil
	default:
		return io.MultiWriter(sinks...), logFile, nil
	}
}

// loadOrGenerateMaze restores the persisted maze, generating and
// saving a fresh one when no usable snapshot exists.
func loadOrGenerateMaze(cfg config.Server) (*maze.Grid, error) {
	grid, err := data.LoadMaze(cfg.DataDir)
	switch {
	case err == nil:
		slog.Info("maze loaded from disk")
		return grid, nil
	case os.IsNotExist(err):
		slog.Info("no maze snapshot, generating",
			"width", cfg.MazeWidth, "height", cfg.MazeHeight, "layers", cfg.MazeLayers)
	default:
		slog.Warn("maze snapshot unusable, regenerating", "error", err)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	grid = maze.Generate(cfg.MazeWidth, cfg.MazeHeight, cfg.MazeLayers, rng)
	if err := data.SaveMaze(cfg.DataDir, grid); err != nil {
		return nil, fmt.Errorf("saving generated maze: %w", err)
	}
	return grid, nil
}

// openPlayerStore picks the registry backend: PostgreSQL when the
// database section (or --dsn) is enabled, players.json otherwise.
func openPlayerStore(ctx context.Context, cfg config.Server, dsnOverride string) (player.Store, *db.DB, error) {
	if !cfg.Database.Enabled {
		return data.NewPlayerStore(cfg.DataDir), nil, nil
	}

	dsn := dsnOverride
	if dsn == "" {
		dsn = cfg.Database.DSN()
	}

	database, err := db.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := db.RunMigrations(ctx, dsn); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database connected, migrations applied")
	return db.NewPlayerStore(database), database, nil
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
