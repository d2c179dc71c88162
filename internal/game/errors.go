package game

import "fmt"

// ErrorKind identifies a failure class carried on the wire in error
// messages.
type ErrorKind string

const (
	ErrInvalidMove       ErrorKind = "INVALID_MOVE"
	ErrInsufficientCoins ErrorKind = "INSUFFICIENT_COINS"
	ErrItemNotOwned      ErrorKind = "ITEM_NOT_OWNED"
	ErrPlayerNotFound    ErrorKind = "PLAYER_NOT_FOUND"
	ErrInvalidTarget     ErrorKind = "INVALID_TARGET"
	ErrGameNotRunning    ErrorKind = "GAME_NOT_RUNNING"
	ErrAuthFailed        ErrorKind = "AUTH_FAILED"
	ErrProtocol          ErrorKind = "PROTOCOL_ERROR"
	ErrRateLimited       ErrorKind = "RATE_LIMITED"
	ErrInternal          ErrorKind = "INTERNAL"
)

// OpError is a tagged operation failure. The dispatcher converts it
// into an error message addressed to the offending connection.
type OpError struct {
	Kind    ErrorKind
	Message string
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func opErr(kind ErrorKind, format string, args ...any) *OpError {
	return &OpError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the error kind from an engine failure, mapping
// anything unrecognized to INTERNAL.
func KindOf(err error) ErrorKind {
	if oe, ok := err.(*OpError); ok {
		return oe.Kind
	}
	return ErrInternal
}
