package config

import "time"

// TimeoutConfig holds timeout settings for various operations.
// These can be configured via CLI flags to tune behaviour on slow networks.
type TimeoutConfig struct {
	// HTTPClient is the timeout for HTTP requests to media servers and GitHub.
	// Default: 15s
	HTTPClient time.Duration

	// WebSocketPing is the interval between media server WebSocket keep-alives.
	// Default: 30s
	WebSocketPing time.Duration

	// IPCDial is the timeout for dialing a single Discord IPC socket or pipe.
	// Default: 2s
	IPCDial time.Duration
}

// DefaultTimeoutConfig returns the default timeout configuration
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPClient:    15 * time.Second,
		WebSocketPing: 30 * time.Second,
		IPCDial:       2 * time.Second,
	}
}

// global instance that can be set at startup
var globalTimeouts = DefaultTimeoutConfig()

// SetGlobalTimeouts sets the global timeout configuration
func SetGlobalTimeouts(cfg *TimeoutConfig) {
	if cfg == nil {
		cfg = DefaultTimeoutConfig()
	}
	globalTimeouts = cfg
}

// GetTimeouts returns the global timeout configuration
func GetTimeouts() *TimeoutConfig {
	return globalTimeouts
}
