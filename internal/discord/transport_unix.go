//go:build !windows

package discord

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"
)

// ipcPaths lists candidate unix sockets: the plain runtime dir plus the
// flatpak and snap sandbox locations.
func ipcPaths() []string {
	var bases []string
	seen := make(map[string]bool)
	for _, env := range []string{"XDG_RUNTIME_DIR", "TMPDIR", "TMP", "TEMP"} {
		if dir := os.Getenv(env); dir != "" && !seen[dir] {
			seen[dir] = true
			bases = append(bases, dir)
		}
	}
	if !seen["/tmp"] {
		bases = append(bases, "/tmp")
	}

	subdirs := []string{"", filepath.Join("app", "com.discordapp.Discord"), "snap.discord"}

	var paths []string
	for _, base := range bases {
		for _, sub := range subdirs {
			for i := range endpointCount {
				paths = append(paths, filepath.Join(base, sub, fmt.Sprintf("discord-ipc-%d", i)))
			}
		}
	}
	return paths
}

func dialEndpoint(ctx context.Context, path string, timeout time.Duration) (net.Conn, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	dialCtx, cancel := withDeadline(ctx, timeout)
	defer cancel()

	var d net.Dialer
	return d.DialContext(dialCtx, "unix", path)
}
