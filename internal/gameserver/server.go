package gameserver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mazeworks/mazeserver/internal/config"
	"github.com/mazeworks/mazeserver/internal/protocol"
)

// Server accepts game socket connections, performs the opening
// handshake and runs the per-connection reader. Each connection gets
// a monotonically increasing connId.
type Server struct {
	cfg     config.Server
	handler *Handler
	clients *ClientManager

	connSeq atomic.Uint64

	listener net.Listener
	mu       sync.Mutex
}

// NewServer wires the listener to the dispatcher.
func NewServer(cfg config.Server, handler *Handler, clients *ClientManager) *Server {
	return &Server{
		cfg:     cfg,
		handler: handler,
		clients: clients,
	}
}

// Addr returns the listen address, or nil before Run.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run listens on the configured game port and serves until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindAddress, s.cfg.WebSocketPort())
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	return s.Serve(ctx, ln)
}

// Serve accepts connections from the given listener. Used directly in
// tests with a custom listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	// Shutdown order: listener first, then every live connection.
	go func() {
		<-ctx.Done()
		ln.Close()
		s.closeAll()
	}()

	slog.Info("game server started", "address", ln.Addr())

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			slog.Error("failed to accept new connection", "error", err)
			continue
		}

		if tcpConn, ok := conn.(*net.TCPConn); ok {
			if err := tcpConn.SetKeepAlive(true); err != nil {
				slog.Warn("set keepalive failed", "error", err)
			}
			if err := tcpConn.SetKeepAlivePeriod(30 * time.Second); err != nil {
				slog.Warn("set keepalive period failed", "error", err)
			}
		}

		wg.Go(func() {
			s.handleConnection(ctx, conn)
		})
	}

	// Join connection workers within the shutdown grace; workers past
	// the deadline are detached and killed by their closed sockets.
	grace := time.Duration(s.cfg.ShutdownGraceMs) * time.Millisecond
	if grace <= 0 {
		grace = 3 * time.Second
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		slog.Warn("connection workers did not drain in time", "grace", grace)
	}
	return nil
}

// closeAll closes every live connection. The snapshot is taken under
// the manager lock; the closes happen outside it.
func (s *Server) closeAll() {
	for _, c := range s.clients.Snapshot() {
		c.CloseWith(protocol.CloseGoingAway)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	connID := s.connSeq.Add(1)

	if err := protocol.Handshake(conn); err != nil {
		slog.Debug("handshake failed", "remote", conn.RemoteAddr(), "error", err)
		return
	}

	client := NewClient(connID, conn, s.cfg.WriteQueueSize,
		time.Duration(s.cfg.WriteGraceMs)*time.Millisecond)
	s.clients.Register(client)
	go client.writePump()

	slog.Info("new game connection", "connId", connID, "remote", client.IP())

	defer func() {
		client.CloseWith(protocol.CloseGoingAway)
		s.handler.Disconnect(client)
	}()

	s.readLoop(ctx, client, conn)
}

// readLoop decodes frames until the connection dies. Control frames
// are handled inline; text frames go to the dispatcher. Waiting for
// the next frame polls on a short deadline so shutdown is observed
// promptly; once a frame has started it must complete within the
// write timeout.
func (s *Server) readLoop(ctx context.Context, client *Client, conn net.Conn) {
	br := bufio.NewReader(conn)
	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
			return
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(readPollInterval)); err != nil {
			return
		}
		if _, err := br.Peek(1); err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, io.EOF) {
				slog.Info("client disconnected", "connId", client.id, "player", client.PlayerID())
			}
			return
		}

		if err := conn.SetReadDeadline(time.Now().Add(defaultWriteTimeout)); err != nil {
			return
		}
		frame, err := protocol.ReadFrame(br)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				slog.Info("client disconnected", "connId", client.id, "player", client.PlayerID())
			} else if errors.Is(err, protocol.ErrProtocol) {
				slog.Warn("protocol violation", "connId", client.id, "error", err)
				client.CloseWith(protocol.CloseProtocolError)
			} else {
				slog.Debug("read failed", "connId", client.id, "error", err)
			}
			return
		}

		switch frame.Opcode {
		case protocol.OpPing:
			if err := client.Pong(frame.Payload); err != nil {
				return
			}
		case protocol.OpPong:
			// Unsolicited pong, ignore.
		case protocol.OpClose:
			client.CloseWith(protocol.CloseNormal)
			return
		case protocol.OpText:
			if err := s.handler.HandleMessage(client, frame.Payload); err != nil {
				slog.Warn("closing connection", "connId", client.id, "error", err)
				client.CloseWith(protocol.CloseProtocolError)
				return
			}
		}
	}
}
