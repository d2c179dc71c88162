// Package protocol implements the server side of the game socket:
// the opening handshake, the framed text-message codec and the JSON
// message envelope.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Frame opcodes. Fragmentation and binary frames are not supported.
const (
	OpText  byte = 0x1
	OpClose byte = 0x8
	OpPing  byte = 0x9
	OpPong  byte = 0xA
)

// MaxPayload is the largest accepted message payload. Exceeding it
// must close the connection.
const MaxPayload = 64 * 1024

// ErrProtocol marks a malformed frame. The connection must be closed
// with a protocol-error close code.
var ErrProtocol = errors.New("protocol violation")

// Frame is one decoded frame. Control frames surface here too; the
// connection endpoint handles them inline.
type Frame struct {
	Opcode  byte
	Payload []byte
}

// ReadFrame decodes a single client frame. Client frames must carry a
// mask, FIN must be set, and only text/close/ping/pong opcodes are
// accepted.
func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, err
	}

	fin := hdr[0]&0x80 != 0
	opcode := hdr[0] & 0x0F
	masked := hdr[1]&0x80 != 0
	length := uint64(hdr[1] & 0x7F)

	if !fin {
		return Frame{}, fmt.Errorf("%w: fragmented frame", ErrProtocol)
	}
	switch opcode {
	case OpText, OpClose, OpPing, OpPong:
	default:
		return Frame{}, fmt.Errorf("%w: unsupported opcode 0x%X", ErrProtocol, opcode)
	}
	if !masked {
		return Frame{}, fmt.Errorf("%w: unmasked client frame", ErrProtocol)
	}

	switch length {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return Frame{}, err
		}
		length = uint64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return Frame{}, err
		}
		length = binary.BigEndian.Uint64(ext[:])
	}
	if length > MaxPayload {
		return Frame{}, fmt.Errorf("%w: payload %d exceeds %d", ErrProtocol, length, MaxPayload)
	}

	var mask [4]byte
	if _, err := io.ReadFull(r, mask[:]); err != nil {
		return Frame{}, err
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, err
	}
	for i := range payload {
		payload[i] ^= mask[i%4]
	}

	return Frame{Opcode: opcode, Payload: payload}, nil
}

// WriteFrame encodes one unmasked server frame.
func WriteFrame(w io.Writer, opcode byte, payload []byte) error {
	if len(payload) > MaxPayload {
		return fmt.Errorf("payload %d exceeds %d", len(payload), MaxPayload)
	}

	buf := make([]byte, 0, 10+len(payload))
	buf = append(buf, 0x80|opcode)

	switch {
	case len(payload) < 126:
		buf = append(buf, byte(len(payload)))
	case len(payload) <= 0xFFFF:
		buf = append(buf, 126)
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(payload)))
	default:
		buf = append(buf, 127)
		buf = binary.BigEndian.AppendUint64(buf, uint64(len(payload)))
	}
	buf = append(buf, payload...)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// WriteClose sends a close frame. The payload carries the close code
// when one is given, per the framing rules for close frames.
func WriteClose(w io.Writer, code uint16) error {
	if code == 0 {
		return WriteFrame(w, OpClose, nil)
	}
	var payload [2]byte
	binary.BigEndian.PutUint16(payload[:], code)
	return WriteFrame(w, OpClose, payload[:])
}

// Close codes used by the connection endpoint.
const (
	CloseNormal          uint16 = 1000
	CloseGoingAway       uint16 = 1001
	CloseProtocolError   uint16 = 1002
	CloseMessageTooBig   uint16 = 1009
	ClosePolicyViolation uint16 = 1008
)
