package discord

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ReconnectDelay is the fixed backoff between connection attempts
const ReconnectDelay = 30 * time.Second

const (
	handshakeTimeout = 5 * time.Second
	writeTimeout     = 5 * time.Second
)

// State is the connection state of the presence client
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Stopper is the part of *time.Timer the client needs
type Stopper interface {
	Stop() bool
}

// AfterFunc schedules f after d; time.AfterFunc in production
type AfterFunc func(d time.Duration, f func()) Stopper

func realAfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// Option configures a Client
type Option func(*Client)

// WithDialer replaces the IPC dialer
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithAfterFunc replaces the timer used to schedule reconnects
func WithAfterFunc(f AfterFunc) Option {
	return func(c *Client) { c.afterFunc = f }
}

// WithReconnectDelay overrides ReconnectDelay
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) { c.reconnectDelay = d }
}

// Client keeps a single IPC session with the local presence host. Unexpected
// disconnects heal themselves; only Disconnect is terminal.
type Client struct {
	dialer         Dialer
	afterFunc      AfterFunc
	reconnectDelay time.Duration
	pid            int

	mu          sync.Mutex
	state       State
	appID       string
	conn        net.Conn
	generation  uint64
	attempt     uint64
	intentional bool
	retry       Stopper
	user        string
	listeners   []func(State)

	// writeMu serializes frames on conn
	writeMu sync.Mutex
}

// NewClient creates a disconnected client
func NewClient(opts ...Option) *Client {
	c := &Client{
		dialer:         DefaultDialer,
		afterFunc:      realAfterFunc,
		reconnectDelay: ReconnectDelay,
		pid:            os.Getpid(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current connection state
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether activities can currently be sent
func (c *Client) Connected() bool {
	return c.State() == StateConnected
}

// AppID returns the application id of the current or last session
func (c *Client) AppID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appID
}

// User returns the chat user name reported by the host, if connected
func (c *Client) User() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

// OnStateChange registers fn to be called after every state transition
func (c *Client) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Connect opens the IPC session for appID. When the host is unavailable it
// logs, schedules a retry after the reconnect delay and returns nil. Calling
// Connect while connected or connecting with the same appID is a no-op; a
// different appID replaces the session.
func (c *Client) Connect(appID string) error {
	if appID == "" {
		return errors.New("discord application id is required")
	}

	c.mu.Lock()
	if (c.state == StateConnected || c.state == StateConnecting) && c.appID == appID {
		c.mu.Unlock()
		return nil
	}
	old := c.detachLocked()
	c.attempt++
	attempt := c.attempt
	c.appID = appID
	c.intentional = false
	c.stopRetryLocked()
	c.state = StateConnecting
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
	c.notify(StateConnecting)

	conn, user, err := c.open(appID)
	if err != nil {
		log.Warn().
			Err(err).
			Str("app_id", appID).
			Dur("retry_in", c.reconnectDelay).
			Msg("Presence host unavailable, will retry")

		c.mu.Lock()
		stale := c.intentional || c.attempt != attempt
		if !stale {
			c.state = StateDisconnected
			c.scheduleReconnectLocked()
		}
		c.mu.Unlock()
		if !stale {
			c.notify(StateDisconnected)
		}
		return nil
	}

	c.mu.Lock()
	if c.intentional || c.attempt != attempt {
		// Disconnect or another Connect won while we were dialing
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.generation++
	gen := c.generation
	c.user = user
	c.state = StateConnected
	c.mu.Unlock()

	log.Info().Str("app_id", appID).Str("user", user).Msg("Connected to Discord")
	c.notify(StateConnected)

	go c.readLoop(conn, gen)
	return nil
}

// open dials and completes the handshake, returning the READY user
func (c *Client) open(appID string) (net.Conn, string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
	defer cancel()

	conn, err := c.dialer.Dial(ctx)
	if err != nil {
		return nil, "", err
	}

	user, err := handshakeConn(conn, appID)
	if err != nil {
		conn.Close()
		return nil, "", &ProtocolError{Op: "handshake", Err: err}
	}
	return conn, user, nil
}

func handshakeConn(conn net.Conn, appID string) (string, error) {
	if err := conn.SetDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return "", err
	}
	defer conn.SetDeadline(time.Time{})

	if err := writeFrame(conn, opHandshake, handshake{V: 1, ClientID: appID}); err != nil {
		return "", err
	}

	op, body, err := readFrame(conn)
	if err != nil {
		return "", err
	}
	if op == opClose {
		var e errorData
		_ = json.Unmarshal(body, &e)
		return "", fmt.Errorf("host closed connection: %s (code %d)", e.Message, e.Code)
	}

	var msg message
	if err := json.Unmarshal(body, &msg); err != nil {
		return "", fmt.Errorf("invalid handshake reply: %w", err)
	}
	if msg.Evt != "READY" {
		return "", fmt.Errorf("unexpected handshake reply %q", msg.Evt)
	}

	var ready readyData
	_ = json.Unmarshal(msg.Data, &ready)
	return ready.User.Username, nil
}

// SetActivity replaces the displayed activity. A nil activity clears it.
func (c *Client) SetActivity(ctx context.Context, activity *Activity) error {
	return c.send(ctx, "SET_ACTIVITY", activityArgs{PID: c.pid, Activity: activity})
}

// ClearActivity removes the displayed activity
func (c *Client) ClearActivity(ctx context.Context) error {
	return c.SetActivity(ctx, nil)
}

func (c *Client) send(ctx context.Context, cmd string, args any) error {
	c.mu.Lock()
	conn, gen, state := c.conn, c.generation, c.state
	c.mu.Unlock()

	if conn == nil || state != StateConnected {
		return ErrNotConnected
	}

	err := c.writeCommand(ctx, conn, command{Cmd: cmd, Args: args, Nonce: uuid.NewString()})
	if err != nil {
		perr := &ProtocolError{Op: cmd, Err: err}
		c.handleClosed(gen, perr)
		return perr
	}
	return nil
}

func (c *Client) writeCommand(ctx context.Context, conn net.Conn, cmd command) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	defer conn.SetWriteDeadline(time.Time{})

	return writeFrame(conn, opFrame, cmd)
}

// Disconnect clears the activity, closes the transport and stops any pending
// reconnect. The client stays disconnected until the next Connect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.intentional = true
	c.stopRetryLocked()
	conn := c.detachLocked()
	wasDisconnected := c.state == StateDisconnected
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		_ = c.writeCommand(ctx, conn, command{Cmd: "SET_ACTIVITY", Args: activityArgs{PID: c.pid}, Nonce: uuid.NewString()})
		cancel()

		c.writeMu.Lock()
		_ = writeFrame(conn, opClose, struct{}{})
		c.writeMu.Unlock()

		if err := conn.Close(); err != nil {
			log.Debug().Err(err).Msg("Error closing discord ipc transport")
		}
		log.Info().Msg("Disconnected from Discord")
	}

	if !wasDisconnected {
		c.notify(StateDisconnected)
	}
}

// readLoop answers pings and watches for the transport closing
func (c *Client) readLoop(conn net.Conn, gen uint64) {
	for {
		op, body, err := readFrame(conn)
		if err != nil {
			c.handleClosed(gen, err)
			return
		}

		switch op {
		case opPing:
			var payload any = struct{}{}
			if json.Valid(body) {
				payload = json.RawMessage(body)
			}
			c.writeMu.Lock()
			err := writeFrame(conn, opPong, payload)
			c.writeMu.Unlock()
			if err != nil {
				c.handleClosed(gen, err)
				return
			}
		case opClose:
			var e errorData
			_ = json.Unmarshal(body, &e)
			c.handleClosed(gen, fmt.Errorf("host closed connection: %s (code %d)", e.Message, e.Code))
			return
		case opFrame:
			var msg message
			if err := json.Unmarshal(body, &msg); err != nil {
				log.Debug().Err(err).Msg("Ignoring malformed discord ipc frame")
				continue
			}
			if msg.Evt == "ERROR" {
				var e errorData
				_ = json.Unmarshal(msg.Data, &e)
				log.Warn().Str("cmd", msg.Cmd).Int("code", e.Code).Str("message", e.Message).Msg("Discord rejected command")
				continue
			}
			log.Trace().Str("cmd", msg.Cmd).Str("evt", msg.Evt).Msg("Discord ipc frame")
		}
	}
}

// handleClosed treats a transport failure on connection gen exactly like a
// disconnect and schedules a reconnect unless the disconnect was intentional.
func (c *Client) handleClosed(gen uint64, cause error) {
	c.mu.Lock()
	if gen != c.generation || c.conn == nil {
		c.mu.Unlock()
		return
	}
	conn := c.detachLocked()
	c.state = StateDisconnected
	reconnect := !c.intentional
	if reconnect {
		c.scheduleReconnectLocked()
	}
	c.mu.Unlock()

	conn.Close()

	log.Warn().
		Err(cause).
		Bool("reconnect", reconnect).
		Dur("retry_in", c.reconnectDelay).
		Msg("Discord connection closed")

	c.notify(StateDisconnected)
}

// detachLocked removes the current conn and invalidates its read loop
func (c *Client) detachLocked() net.Conn {
	conn := c.conn
	c.conn = nil
	c.user = ""
	c.generation++
	return conn
}

func (c *Client) stopRetryLocked() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

func (c *Client) scheduleReconnectLocked() {
	c.stopRetryLocked()
	appID := c.appID

	var pending Stopper
	pending = c.afterFunc(c.reconnectDelay, func() {
		c.mu.Lock()
		if c.retry != pending || c.intentional {
			c.mu.Unlock()
			return
		}
		c.retry = nil
		c.mu.Unlock()

		log.Debug().Str("app_id", appID).Msg("Reconnecting to Discord")
		_ = c.Connect(appID)
	})
	c.retry = pending
}

func (c *Client) notify(state State) {
	c.mu.Lock()
	listeners := append([]func(State){}, c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
}
