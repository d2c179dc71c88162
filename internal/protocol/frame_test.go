package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clientFrame builds a masked client frame the way a browser would.
func clientFrame(t *testing.T, fin bool, opcode byte, payload []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	b0 := opcode
	if fin {
		b0 |= 0x80
	}
	buf.WriteByte(b0)

	switch {
	case len(payload) < 126:
		buf.WriteByte(0x80 | byte(len(payload)))
	case len(payload) <= 0xFFFF:
		buf.WriteByte(0x80 | 126)
		var ext [2]byte
		binary.BigEndian.PutUint16(ext[:], uint16(len(payload)))
		buf.Write(ext[:])
	default:
		buf.WriteByte(0x80 | 127)
		var ext [8]byte
		binary.BigEndian.PutUint64(ext[:], uint64(len(payload)))
		buf.Write(ext[:])
	}

	mask := [4]byte{0x11, 0x22, 0x33, 0x44}
	buf.Write(mask[:])
	for i, b := range payload {
		buf.WriteByte(b ^ mask[i%4])
	}
	return buf.Bytes()
}

func TestReadFrameTextRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty", nil},
		{"short", []byte(`{"type":"ping"}`)},
		{"16-bit length", bytes.Repeat([]byte("x"), 300)},
		{"64 KiB cap", bytes.Repeat([]byte("y"), MaxPayload)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := bytes.NewReader(clientFrame(t, true, OpText, tt.payload))
			f, err := ReadFrame(r)
			require.NoError(t, err)
			assert.Equal(t, OpText, f.Opcode)
			if len(tt.payload) == 0 {
				assert.Empty(t, f.Payload)
			} else {
				assert.Equal(t, tt.payload, f.Payload)
			}
		})
	}
}

func TestReadFrameProtocolViolations(t *testing.T) {
	tooBig := clientFrame(t, true, OpText, bytes.Repeat([]byte("z"), MaxPayload+1))

	tests := []struct {
		name string
		raw  []byte
	}{
		{"fragmented", clientFrame(t, false, OpText, []byte("abc"))},
		{"binary opcode", clientFrame(t, true, 0x2, []byte("abc"))},
		{"reserved opcode", clientFrame(t, true, 0x7, nil)},
		{"oversized payload", tooBig},
		{"unmasked", []byte{0x81, 0x03, 'a', 'b', 'c'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFrame(bytes.NewReader(tt.raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrProtocol), "want protocol error, got %v", err)
		})
	}
}

func TestReadFrameControlFrames(t *testing.T) {
	for _, opcode := range []byte{OpClose, OpPing, OpPong} {
		r := bytes.NewReader(clientFrame(t, true, opcode, []byte("ctl")))
		f, err := ReadFrame(r)
		require.NoError(t, err)
		assert.Equal(t, opcode, f.Opcode)
	}
}

func TestWriteFrameIsUnmaskedAndReadableBack(t *testing.T) {
	payload := []byte(strings.Repeat("hello ", 50))

	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, OpText, payload))

	raw := buf.Bytes()
	assert.Equal(t, byte(0x80|OpText), raw[0], "FIN set, text opcode")
	assert.Zero(t, raw[1]&0x80, "server frames are unmasked")

	// 300 bytes needs the 16-bit length form.
	assert.Equal(t, byte(126), raw[1]&0x7F)
	assert.Equal(t, payload, raw[4:])
}

func TestWriteCloseCarriesCode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteClose(&buf, CloseProtocolError))

	raw := buf.Bytes()
	assert.Equal(t, byte(0x80|OpClose), raw[0])
	assert.Equal(t, byte(2), raw[1])
	assert.Equal(t, CloseProtocolError, binary.BigEndian.Uint16(raw[2:4]))

	buf.Reset()
	require.NoError(t, WriteClose(&buf, 0))
	assert.Equal(t, []byte{0x80 | OpClose, 0}, buf.Bytes())
}

func TestWriteFrameRejectsOversizedPayload(t *testing.T) {
	err := WriteFrame(&bytes.Buffer{}, OpText, bytes.Repeat([]byte("a"), MaxPayload+1))
	assert.Error(t, err)
}
