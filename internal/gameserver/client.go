package gameserver

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mazeworks/mazeserver/internal/protocol"
)

// Default write queue / timeout constants.
// Overridden by config values when available.
const (
	defaultSendQueueSize = 64
	defaultWriteGrace    = 2 * time.Second
	defaultWriteTimeout  = 5 * time.Second
	readPollInterval     = 100 * time.Millisecond
)

type outFrame struct {
	opcode  byte
	payload []byte
}

// Client is one game socket connection. The reader goroutine owns
// conn reads; writePump owns all writes.
type Client struct {
	id   uint64
	conn net.Conn
	ip   string

	// mu protects the identity fields set during auth.
	mu         sync.Mutex
	playerID   string
	playerName string
	token      string

	// Per-client write queue. writePump drains it and is the only
	// writer on the socket, so frames never interleave. Enqueueing
	// never blocks; a queue that stays over capacity past the write
	// grace marks the client too slow and the connection is closed.
	qmu      sync.Mutex
	queue    []outFrame
	lagSince time.Time
	wakeCh   chan struct{}

	closeCh   chan struct{}
	closeOnce sync.Once
	closeCode atomic.Uint32

	queueSize    int
	writeGrace   time.Duration
	writeTimeout time.Duration
}

// NewClient creates the connection state for an accepted socket.
func NewClient(id uint64, conn net.Conn, queueSize int, writeGrace time.Duration) *Client {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		host = conn.RemoteAddr().String()
	}
	if queueSize <= 0 {
		queueSize = defaultSendQueueSize
	}
	if writeGrace <= 0 {
		writeGrace = defaultWriteGrace
	}
	return &Client{
		id:           id,
		conn:         conn,
		ip:           host,
		wakeCh:       make(chan struct{}, 1),
		closeCh:      make(chan struct{}),
		queueSize:    queueSize,
		writeGrace:   writeGrace,
		writeTimeout: defaultWriteTimeout,
	}
}

// ID returns the connection ID.
func (c *Client) ID() uint64 { return c.id }

// IP returns the client's remote IP address.
func (c *Client) IP() string { return c.ip }

// PlayerID returns the bound player ID, or "" before auth.
func (c *Client) PlayerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID
}

// PlayerName returns the display name supplied at auth.
func (c *Client) PlayerName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerName
}

// Token returns the session token issued at auth.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Bound reports whether the connection has completed auth.
func (c *Client) Bound() bool {
	return c.PlayerID() != ""
}

// SetIdentity binds the connection to an authenticated player.
func (c *Client) SetIdentity(playerID, playerName, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playerID = playerID
	c.playerName = playerName
	c.token = token
}

// writePump is the dedicated writer goroutine for this client. It
// drains the queue until the connection is closed, then sends the
// close frame best-effort and hard-closes the socket.
func (c *Client) writePump() {
	defer c.conn.Close()

	for {
		select {
		case <-c.wakeCh:
		case <-c.closeCh:
			code := uint16(c.closeCode.Load())
			if code != 0 {
				_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
				_ = protocol.WriteClose(c.conn, code)
			}
			return
		}

		for {
			f, ok := c.dequeue()
			if !ok {
				break
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				slog.Warn("set write deadline failed", "client", c.ip, "error", err)
				return
			}
			if err := protocol.WriteFrame(c.conn, f.opcode, f.payload); err != nil {
				slog.Warn("write failed", "client", c.ip, "error", err)
				c.CloseWith(0)
				return
			}
		}
	}
}

// dequeue pops the oldest frame and clears the lag mark once the
// backlog is back under capacity.
func (c *Client) dequeue() (outFrame, bool) {
	c.qmu.Lock()
	defer c.qmu.Unlock()

	if len(c.queue) == 0 {
		return outFrame{}, false
	}
	f := c.queue[0]
	c.queue = c.queue[1:]
	if len(c.queue) <= c.queueSize {
		c.lagSince = time.Time{}
	}
	return f, true
}

// Send queues a text message for delivery. Enqueueing never blocks
// the caller; a client whose backlog stays over capacity past the
// write grace is closed with policy-violation.
func (c *Client) Send(payload []byte) error {
	return c.send(outFrame{opcode: protocol.OpText, payload: payload})
}

// Pong queues a pong control frame echoing the ping payload.
func (c *Client) Pong(payload []byte) error {
	return c.send(outFrame{opcode: protocol.OpPong, payload: payload})
}

func (c *Client) send(f outFrame) error {
	select {
	case <-c.closeCh:
		return fmt.Errorf("client %d closed", c.id)
	default:
	}

	c.qmu.Lock()
	c.queue = append(c.queue, f)
	backlog := len(c.queue)
	if backlog <= c.queueSize {
		c.lagSince = time.Time{}
	} else if c.lagSince.IsZero() {
		c.lagSince = time.Now()
	} else if time.Since(c.lagSince) > c.writeGrace {
		c.qmu.Unlock()
		slog.Warn("send backlog over capacity past grace, disconnecting slow client",
			"client", c.ip, "connId", c.id, "backlog", backlog)
		c.CloseWith(protocol.ClosePolicyViolation)
		return fmt.Errorf("send backlog stalled for %v", c.writeGrace)
	}
	c.qmu.Unlock()

	select {
	case c.wakeCh <- struct{}{}:
	default:
	}
	return nil
}

// CloseWith signals the writer to send a close frame with the given
// code (0 = no frame) and stop. Safe to call multiple times; only the
// first code wins.
func (c *Client) CloseWith(code uint16) {
	c.closeOnce.Do(func() {
		c.closeCode.Store(uint32(code))
		close(c.closeCh)
	})
}

// Close closes the connection immediately after a best-effort normal
// close frame.
func (c *Client) Close() error {
	c.CloseWith(protocol.CloseNormal)
	return c.conn.Close()
}

// Done returns a channel closed when the connection is shutting down.
func (c *Client) Done() <-chan struct{} {
	return c.closeCh
}
