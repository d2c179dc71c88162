package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Inbound message types.
const (
	TypeAuth     = "auth"
	TypeMove     = "move"
	TypePurchase = "purchase_item"
	TypeUseItem  = "use_item"
	TypeChat     = "chat_message"
	TypePing     = "ping"
)

// Outbound message types.
const (
	TypeAuthSuccess = "auth_success"
	TypeAuthFailed  = "auth_failed"
	TypePlayerData  = "player_data"
	TypeMazeData    = "maze_data"
	TypePlayerJoin  = "player_join"
	TypePlayerLeave = "player_leave"
	TypePlayerMoved = "player_moved"
	TypeGameState   = "game_state"
	TypeItemEffect  = "item_effect"
	TypeGameEvent   = "game_event"
	TypePong        = "pong"
	TypeError       = "error"
)

// Envelope is the wire envelope shared by both directions. Older
// client builds omit the data wrapper and put payload fields at the
// top level; DecodeEnvelope tolerates both dialects.
type Envelope struct {
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// DecodeEnvelope parses an inbound message. When the data wrapper is
// absent, Data is aliased to the whole message so payload decoding
// sees the top-level fields.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decoding envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, errors.New("message has no type")
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		env.Data = raw
	}
	return env, nil
}

// DecodeData unmarshals the payload into v. With the flat dialect the
// envelope's own fields are visible to v too; payload structs must not
// reuse the reserved field names.
func (e Envelope) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return errors.New("message has no data")
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	return nil
}

// Encode wraps a payload in the canonical envelope form. Outbound
// messages always carry the data wrapper.
func Encode(msgType string, data any) ([]byte, error) {
	env := struct {
		Type      string `json:"type"`
		Timestamp int64  `json:"timestamp"`
		Data      any    `json:"data"`
	}{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", msgType, err)
	}
	return out, nil
}
