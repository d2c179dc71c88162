// Package webserver is the HTTP surface next to the game socket:
// static client assets plus the two JSON status endpoints.
package webserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/mazeworks/mazeserver/internal/config"
	"github.com/mazeworks/mazeserver/internal/gameserver"
	"github.com/mazeworks/mazeserver/internal/player"
)

type configResponse struct {
	WebSocketPort int    `json:"websocketPort"`
	GameVersion   string `json:"gameVersion"`
	ServerName    string `json:"serverName"`
	MazeSize      string `json:"mazeSize"`
	MaxPlayers    int    `json:"maxPlayers"`
}

type statusResponse struct {
	Status           string `json:"status"`
	ConnectedPlayers int    `json:"connectedPlayers"`
	TotalPlayers     int    `json:"totalPlayers"`
	OnlinePlayers    int    `json:"onlinePlayers"`
	Uptime           string `json:"uptime"`
	ServerTime       string `json:"serverTime"`
}

// Server serves the web root and /api endpoints on the base port.
type Server struct {
	cfg      config.Server
	registry *player.Registry
	clients  *gameserver.ClientManager

	startedAt time.Time
	webRoot   string
}

// New wires the HTTP surface.
func New(cfg config.Server, registry *player.Registry, clients *gameserver.ClientManager) *Server {
	root, err := filepath.Abs(cfg.WebRoot)
	if err != nil {
		root = cfg.WebRoot
	}
	return &Server{
		cfg:       cfg,
		registry:  registry,
		clients:   clients,
		startedAt: time.Now(),
		webRoot:   root,
	}
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/config", s.handleConfig)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("/", s.handleStatic)
	return mux
}

// Run serves HTTP until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindAddress, s.cfg.HTTPPort)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("web server started", "address", addr, "root", s.webRoot)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serving http on %s: %w", addr, err)
	}
	return nil
}

// Serve is Run over a pre-built listener, used in tests.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, configResponse{
		WebSocketPort: s.cfg.WebSocketPort(),
		GameVersion:   s.cfg.GameVersion,
		ServerName:    s.cfg.ServerName,
		MazeSize:      fmt.Sprintf("%dx%dx%d", s.cfg.MazeWidth, s.cfg.MazeHeight, s.cfg.MazeLayers),
		MaxPlayers:    s.cfg.MaxPlayers,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, statusResponse{
		Status:           "running",
		ConnectedPlayers: s.clients.Count(),
		TotalPlayers:     s.registry.Count(),
		OnlinePlayers:    len(s.registry.Online()),
		Uptime:           time.Since(s.startedAt).Truncate(time.Second).String(),
		ServerTime:       time.Now().Format(time.RFC3339),
	})
}

// handleStatic serves files under the web root. Any path with a `..`
// segment, or that canonicalizes outside the root, is forbidden.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	reqPath := r.URL.Path
	if reqPath == "/" {
		reqPath = "/index.html"
	}

	for _, seg := range strings.Split(reqPath, "/") {
		if seg == ".." {
			http.Error(w, "Access denied", http.StatusForbidden)
			return
		}
	}

	clean := path.Clean("/" + reqPath)
	full := filepath.Join(s.webRoot, filepath.FromSlash(clean))
	if full != s.webRoot && !strings.HasPrefix(full, s.webRoot+string(os.PathSeparator)) {
		http.Error(w, "Access denied", http.StatusForbidden)
		return
	}

	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, full)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding api response", "error", err)
	}
}
