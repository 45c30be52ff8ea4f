package mediabrowser

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/embycord/internal/config"
)

// WatchSessions subscribes to the server's websocket and calls notify whenever
// session state changes. It reconnects with exponential backoff and blocks
// until ctx is cancelled.
func (c *Client) WatchSessions(ctx context.Context, notify func()) error {
	const (
		initialBackoff = 1 * time.Second
		maxBackoff     = 5 * time.Minute
	)

	pingInterval := config.GetTimeouts().WebSocketPing
	backoff := initialBackoff

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := c.watchSessionsOnce(ctx, notify, pingInterval)
		if err == nil {
			backoff = initialBackoff
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		log.Warn().
			Err(err).
			Str("server", c.Name()).
			Dur("backoff", backoff).
			Msgf("%s WebSocket disconnected, reconnecting", c.config.name)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff = min(backoff*2, maxBackoff)
	}
}

// watchSessionsOnce runs a single websocket connection until it fails
func (c *Client) watchSessionsOnce(ctx context.Context, notify func(), pingInterval time.Duration) error {
	token := c.token()
	if token == "" {
		return &AuthError{Server: c.Name(), Err: ErrNotLoggedIn}
	}

	wsURL, err := c.webSocketURL(token)
	if err != nil {
		return fmt.Errorf("failed to build WebSocket URL: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("WebSocket dial failed: %w", err)
	}
	defer conn.Close()

	log.Debug().Str("server", c.Name()).Msgf("Connected to %s WebSocket", c.config.name)

	if err := conn.WriteJSON(wsMessage{MessageType: "SessionsStart", Data: c.config.sessionsStartData}); err != nil {
		return fmt.Errorf("failed to send subscription message: %w", err)
	}

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	readErrCh := make(chan error, 1)

	go func() {
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				readErrCh <- err
				return
			}

			var msg wsResponse
			if err := json.Unmarshal(message, &msg); err != nil {
				log.Debug().Err(err).Str("server", c.Name()).Msg("Failed to parse WebSocket message")
				continue
			}

			if isSessionMessage(msg.MessageType) {
				log.Trace().Str("server", c.Name()).Str("type", msg.MessageType).Msg("Session notification")
				notify()
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return ctx.Err()
		case err := <-readErrCh:
			return err
		case <-pingTicker.C:
			if err := conn.WriteJSON(wsMessage{MessageType: "KeepAlive"}); err != nil {
				return fmt.Errorf("keep-alive failed: %w", err)
			}
		}
	}
}

func (c *Client) webSocketURL(token string) (string, error) {
	parsed, err := url.Parse(c.creds.hostURL())
	if err != nil {
		return "", err
	}

	switch parsed.Scheme {
	case "https":
		parsed.Scheme = "wss"
	default:
		parsed.Scheme = "ws"
	}
	parsed.Path = c.config.webSocketPath

	q := url.Values{}
	q.Set("api_key", token)
	q.Set("deviceId", c.device.ID)
	parsed.RawQuery = q.Encode()

	return parsed.String(), nil
}

// isSessionMessage reports whether a websocket message type may change the
// displayed presence. PlaybackProgress is excluded: position changes are
// covered by the predicted end wake-up.
func isSessionMessage(messageType string) bool {
	switch messageType {
	case "Sessions", "SessionEnded", "PlaybackStart", "PlaybackStopped":
		return true
	}
	return false
}

type wsMessage struct {
	MessageType string `json:"MessageType"`
	Data        string `json:"Data,omitempty"`
}

type wsResponse struct {
	MessageType string          `json:"MessageType"`
	Data        json.RawMessage `json:"Data,omitempty"`
}
