package protocol

import (
	"io"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcceptKeyKnownVector(t *testing.T) {
	// The worked example from the protocol RFC.
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=",
		AcceptKey("dGhlIHNhbXBsZSBub25jZQ=="))
}

func runHandshake(t *testing.T, request string) (reply string, err error) {
	t.Helper()

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan error, 1)
	go func() { done <- Handshake(server) }()

	_, werr := client.Write([]byte(request))
	require.NoError(t, werr)

	var buf [4096]byte
	n, rerr := client.Read(buf[:])
	if rerr != nil && rerr != io.EOF {
		t.Fatalf("reading handshake reply: %v", rerr)
	}
	return string(buf[:n]), <-done
}

func TestHandshakeSuccess(t *testing.T) {
	req := "GET /game HTTP/1.1\r\n" +
		"Host: localhost\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: keep-alive, Upgrade\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 13\r\n\r\n"

	reply, err := runHandshake(t, req)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(reply, "HTTP/1.1 101 "), "reply: %q", reply)
	assert.Contains(t, reply, "Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=")
}

func TestHandshakeHeaderNamesAreCaseInsensitive(t *testing.T) {
	req := "GET / HTTP/1.1\r\n" +
		"UPGRADE: WebSocket\r\n" +
		"CONNECTION: upgrade\r\n" +
		"SEC-WEBSOCKET-KEY: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"SEC-WEBSOCKET-VERSION: 13\r\n\r\n"

	reply, err := runHandshake(t, req)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(reply, "HTTP/1.1 101 "))
}

func TestHandshakeRejections(t *testing.T) {
	tests := []struct {
		name string
		req  string
	}{
		{
			"missing key",
			"GET / HTTP/1.1\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Version: 13\r\n\r\n",
		},
		{
			"wrong method",
			"POST / HTTP/1.1\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Key: x\r\nSec-WebSocket-Version: 13\r\n\r\n",
		},
		{
			"no upgrade header",
			"GET / HTTP/1.1\r\nConnection: Upgrade\r\nSec-WebSocket-Key: x\r\nSec-WebSocket-Version: 13\r\n\r\n",
		},
		{
			"wrong version",
			"GET / HTTP/1.1\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Key: x\r\nSec-WebSocket-Version: 8\r\n\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := runHandshake(t, tt.req)
			require.Error(t, err)
			assert.True(t, strings.HasPrefix(reply, "HTTP/1.1 400 "), "reply: %q", reply)
		})
	}
}

func TestHandshakeTimesOutOnSilence(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan error, 1)
	go func() { done <- Handshake(server) }()
	go func() { _, _ = io.Copy(io.Discard, client) }()

	// Never send anything; the poll budget must expire.
	err := <-done
	require.Error(t, err)
}
