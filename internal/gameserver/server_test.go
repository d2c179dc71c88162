package gameserver

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mazeworks/mazeserver/internal/config"
	"github.com/mazeworks/mazeserver/internal/protocol"
)

func startServer(t *testing.T, h *harness) (*Server, context.CancelFunc, net.Addr) {
	t.Helper()

	cfg := config.Default()
	cfg.ShutdownGraceMs = 1000

	srv := NewServer(cfg, h.handler, h.clients)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Error("server did not stop")
		}
	})
	return srv, cancel, ln.Addr()
}

// dialGameSocket performs the opening handshake over plain TCP.
func dialGameSocket(t *testing.T, addr net.Addr) net.Conn {
	t.Helper()

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	req := "GET /game HTTP/1.1\r\n" +
		"Host: " + addr.String() + "\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 13\r\n\r\n"
	_, err = conn.Write([]byte(req))
	require.NoError(t, err)

	br := bufio.NewReader(conn)
	status, err := br.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, status, "101")
	for {
		line, err := br.ReadString('\n')
		require.NoError(t, err)
		if line == "\r\n" {
			break
		}
	}
	require.Zero(t, br.Buffered(), "no frame bytes expected yet")
	return conn
}

// writeMaskedText sends one client text frame.
func writeMaskedText(t *testing.T, conn net.Conn, payload []byte) {
	t.Helper()

	mask := [4]byte{0x1a, 0x2b, 0x3c, 0x4d}
	buf := []byte{0x80 | protocol.OpText}
	switch {
	case len(payload) < 126:
		buf = append(buf, 0x80|byte(len(payload)))
	default:
		buf = append(buf, 0x80|126)
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(payload)))
	}
	buf = append(buf, mask[:]...)
	for i, b := range payload {
		buf = append(buf, b^mask[i%4])
	}
	_, err := conn.Write(buf)
	require.NoError(t, err)
}

func TestServerEndToEndAuthOverTCP(t *testing.T) {
	h := newHarness(t)
	_, _, addr := startServer(t, h)

	conn := dialGameSocket(t, addr)
	writeMaskedText(t, conn, envelope(t, protocol.TypeAuth, authRequest{PlayerName: "Alice"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	opcode, payload, err := readServerFrame(conn)
	require.NoError(t, err)
	require.Equal(t, protocol.OpText, opcode)

	var env protocol.Envelope
	require.NoError(t, json.Unmarshal(payload, &env))
	assert.Equal(t, protocol.TypeAuthSuccess, env.Type)

	auth := decodeInto[authSuccessPayload](t, env.Data)
	assert.True(t, strings.HasPrefix(auth.Token, "session_"))
}

func TestServerClosesOnProtocolViolation(t *testing.T) {
	h := newHarness(t)
	_, _, addr := startServer(t, h)

	conn := dialGameSocket(t, addr)

	// Unmasked client frame is a protocol violation.
	_, err := conn.Write([]byte{0x80 | protocol.OpText, 0x02, 'h', 'i'})
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		opcode, payload, err := readServerFrame(conn)
		if err != nil {
			return // hard close is acceptable too
		}
		if opcode == protocol.OpClose {
			require.GreaterOrEqual(t, len(payload), 2)
			code := binary.BigEndian.Uint16(payload[:2])
			assert.Equal(t, protocol.CloseProtocolError, code)
			return
		}
	}
}

func TestServerShutdownClosesConnections(t *testing.T) {
	h := newHarness(t)
	_, cancel, addr := startServer(t, h)

	conns := make([]net.Conn, 0, 3)
	for i := range 3 {
		conn := dialGameSocket(t, addr)
		writeMaskedText(t, conn, envelope(t, protocol.TypeAuth,
			authRequest{PlayerName: fmt.Sprintf("Player%d", i)}))
		conns = append(conns, conn)
	}

	require.Eventually(t, func() bool {
		return h.clients.BoundCount() == 3
	}, 2*time.Second, 20*time.Millisecond)

	cancel()

	// Every connection observes a close frame or an abrupt close.
	for _, conn := range conns {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		for {
			opcode, _, err := readServerFrame(conn)
			if err != nil || opcode == protocol.OpClose {
				break
			}
		}
	}

	// New connections are refused once the listener is down.
	require.Eventually(t, func() bool {
		c, err := net.Dial("tcp", addr.String())
		if err != nil {
			return true
		}
		c.Close()
		return false
	}, 2*time.Second, 50*time.Millisecond)
}
