package protocol

import (
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

const (
	maxHandshakeSize = 8 * 1024
	handshakePolls   = 10
	handshakePoll    = 20 * time.Millisecond
)

// AcceptKey computes the Sec-WebSocket-Accept value for a client key.
func AcceptKey(clientKey string) string {
	sum := sha1.Sum([]byte(clientKey + acceptGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Handshake performs the server side of the opening handshake. On any
// validation failure it replies 400 and returns an error; the caller
// closes the socket.
func Handshake(conn net.Conn) error {
	req, err := readRequest(conn)
	if err != nil {
		reject(conn)
		return fmt.Errorf("reading handshake: %w", err)
	}

	key, err := validateUpgrade(req)
	if err != nil {
		reject(conn)
		return fmt.Errorf("validating handshake: %w", err)
	}

	resp := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + AcceptKey(key) + "\r\n\r\n"
	if _, err := conn.Write([]byte(resp)); err != nil {
		return fmt.Errorf("writing handshake response: %w", err)
	}
	return nil
}

// readRequest accumulates the opening request until the header
// terminator, the size cap, or the poll budget is hit.
func readRequest(conn net.Conn) (string, error) {
	var req []byte
	buf := make([]byte, 1024)

	for attempt := 0; attempt < handshakePolls; attempt++ {
		if err := conn.SetReadDeadline(time.Now().Add(handshakePoll)); err != nil {
			return "", err
		}
		n, err := conn.Read(buf)
		if n > 0 {
			req = append(req, buf[:n]...)
			if len(req) > maxHandshakeSize {
				return "", errors.New("handshake request too large")
			}
			if strings.Contains(string(req), "\r\n\r\n") {
				_ = conn.SetReadDeadline(time.Time{})
				return string(req), nil
			}
		}
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			return "", err
		}
	}
	_ = conn.SetReadDeadline(time.Time{})
	return "", errors.New("handshake request incomplete")
}

// validateUpgrade checks the request line and upgrade headers and
// returns the client key.
func validateUpgrade(req string) (string, error) {
	lines := strings.Split(req, "\r\n")
	if len(lines) == 0 || !strings.HasPrefix(lines[0], "GET ") {
		return "", errors.New("not a GET request")
	}

	headers := make(map[string]string)
	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		headers[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}

	if !strings.EqualFold(headers["upgrade"], "websocket") {
		return "", errors.New("missing Upgrade: websocket")
	}
	if !strings.Contains(strings.ToLower(headers["connection"]), "upgrade") {
		return "", errors.New("Connection header does not request an upgrade")
	}
	if headers["sec-websocket-version"] != "13" {
		return "", fmt.Errorf("unsupported protocol version %q", headers["sec-websocket-version"])
	}
	key := headers["sec-websocket-key"]
	if key == "" {
		return "", errors.New("missing Sec-WebSocket-Key")
	}
	return key, nil
}

func reject(conn net.Conn) {
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	_, _ = conn.Write([]byte("HTTP/1.1 400 Bad Request\r\nConnection: close\r\n\r\n"))
	_ = conn.SetWriteDeadline(time.Time{})
}
