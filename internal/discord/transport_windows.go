//go:build windows

package discord

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/natefinch/npipe"
)

func ipcPaths() []string {
	paths := make([]string, 0, endpointCount)
	for i := range endpointCount {
		paths = append(paths, fmt.Sprintf(`\\.\pipe\discord-ipc-%d`, i))
	}
	return paths
}

func dialEndpoint(ctx context.Context, path string, timeout time.Duration) (net.Conn, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	conn, err := npipe.DialTimeout(path, timeout)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
