package discord

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by commands issued while no IPC session is open.
// The command is dropped, not queued.
var ErrNotConnected = errors.New("presence client not connected")

// ProtocolError is an IPC handshake or send failure. The transport is torn
// down and a reconnect is scheduled.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("discord ipc %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }
