package discord

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/embycord/internal/config"
)

// Dialer opens the transport to the local presence host
type Dialer interface {
	Dial(ctx context.Context) (net.Conn, error)
}

// DialerFunc adapts a function to a Dialer
type DialerFunc func(ctx context.Context) (net.Conn, error)

// Dial calls f
func (f DialerFunc) Dial(ctx context.Context) (net.Conn, error) { return f(ctx) }

// ipcDialer tries each well-known IPC endpoint in order
type ipcDialer struct{}

// DefaultDialer connects to the first reachable discord-ipc-N endpoint
var DefaultDialer Dialer = ipcDialer{}

var errNoEndpoint = errors.New("no discord ipc endpoint available")

func (ipcDialer) Dial(ctx context.Context) (net.Conn, error) {
	timeout := config.GetTimeouts().IPCDial

	var lastErr error
	for _, path := range ipcPaths() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		conn, err := dialEndpoint(ctx, path, timeout)
		if err == nil {
			log.Trace().Str("path", path).Msg("Connected to discord ipc endpoint")
			return conn, nil
		}
		lastErr = err
	}

	if lastErr == nil {
		return nil, errNoEndpoint
	}
	return nil, fmt.Errorf("%w: %v", errNoEndpoint, lastErr)
}

// endpointCount is how many numbered sockets the host may listen on
const endpointCount = 10

func withDeadline(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
