package presence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/embycord/internal/config"
	"github.com/saltyorg/embycord/internal/database"
	"github.com/saltyorg/embycord/internal/discord"
	"github.com/saltyorg/embycord/internal/mediabrowser"
)

// EndSlack is how long after the predicted end of an item the next poll fires
const EndSlack = 1500 * time.Millisecond

const logoutTimeout = 5 * time.Second

// ErrNotRunning is returned by Poll when no server is active
var ErrNotRunning = errors.New("presence synchronizer not running")

// Store is the configuration the synchronizer reads
type Store interface {
	GetSelectedServer() (*database.MediaServer, error)
	GetSetting(key string) (string, error)
}

// MediaClient is the media server API used by the synchronizer
type MediaClient interface {
	Login(ctx context.Context) error
	GetSessions(ctx context.Context) ([]mediabrowser.Session, error)
	GetItemInternalLibraryID(ctx context.Context, itemID string) (string, error)
	WatchSessions(ctx context.Context, notify func()) error
	Logout(ctx context.Context)
	Username() string
}

// PresenceClient is the rich presence connection used by the synchronizer
type PresenceClient interface {
	Connect(appID string) error
	SetActivity(ctx context.Context, activity *discord.Activity) error
	ClearActivity(ctx context.Context) error
	Disconnect()
	Connected() bool
}

// ClientFactory builds a fresh media client for a server
type ClientFactory func(server *database.MediaServer, settings config.Settings) MediaClient

// NewClientFactory returns the production factory: a circuit breaker
// wrapped mediabrowser client identifying itself as this device.
func NewClientFactory(version, iconURL string) ClientFactory {
	deviceName, err := os.Hostname()
	if err != nil || deviceName == "" {
		deviceName = "embycord"
	}

	return func(server *database.MediaServer, settings config.Settings) MediaClient {
		device := mediabrowser.DeviceIdentity{
			Name:    deviceName,
			ID:      settings.DeviceUUID,
			Version: version,
			IconURL: iconURL,
		}
		client := mediabrowser.New(server.Type, mediabrowser.CredentialsFor(server), device)
		return mediabrowser.NewBreakerClient(client)
	}
}

// Phase is the synchronizer's position in its state machine
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseAuthenticating Phase = "authenticating"
	PhasePolling        Phase = "polling"
	PhasePresenting     Phase = "presenting"
	PhaseStopped        Phase = "stopped"
)

// Status is a snapshot for the tray and CLI
type Status struct {
	Phase     Phase
	Server    string
	Activity  string
	NextWake  time.Time
	LastPoll  time.Time
	LastError string
}

// Action is the outcome of one poll
type Action string

const (
	ActionDisabled   Action = "disabled"
	ActionError      Action = "error"
	ActionCleared    Action = "cleared"
	ActionIgnored    Action = "ignored"
	ActionPresenting Action = "presenting"
)

// PollResult describes what a poll did
type PollResult struct {
	Action   Action
	Activity *discord.Activity
	NextWake time.Time
	Err      error
}

// Synchronizer mirrors the selected server's playback as rich presence.
// All polling for one server happens on a single loop goroutine, so polls
// never overlap.
type Synchronizer struct {
	store    Store
	presence PresenceClient
	factory  ClientFactory
	clock    Clock

	mu        sync.Mutex
	run       *run
	status    Status
	listeners []func(Status)

	// status changes waiting for delivery, drained in order by one goroutine
	pending    []Status
	delivering bool
}

// run is the state of one active server. It is owned by its loop goroutine.
type run struct {
	server      *database.MediaServer
	fingerprint fingerprint
	cancel      context.CancelFunc
	done        chan struct{}
	nudge       chan struct{}
	requests    chan pollRequest
}

type pollRequest struct {
	ctx    context.Context
	result chan PollResult
}

// fingerprint captures everything that requires a fresh client when changed
type fingerprint struct {
	ServerID     int64
	Type         database.ServerType
	Address      string
	Port         int
	Protocol     string
	Username     string
	Password     string
	AppID        string
	DeviceUUID   string
	PollInterval time.Duration
	RetryDelay   time.Duration
	UseWebSocket bool
}

func fingerprintOf(server *database.MediaServer, settings config.Settings) fingerprint {
	return fingerprint{
		ServerID:     server.ID,
		Type:         server.Type,
		Address:      server.Address,
		Port:         server.Port,
		Protocol:     server.Protocol,
		Username:     server.Username,
		Password:     server.Password,
		AppID:        settings.ClientID(string(server.Type)),
		DeviceUUID:   settings.DeviceUUID,
		PollInterval: settings.PollInterval,
		RetryDelay:   settings.RetryDelay,
		UseWebSocket: settings.UseWebSocket,
	}
}

// SynchronizerOption configures a Synchronizer
type SynchronizerOption func(*Synchronizer)

// WithClock replaces the real clock
func WithClock(c Clock) SynchronizerOption {
	return func(s *Synchronizer) { s.clock = c }
}

// NewSynchronizer creates a stopped synchronizer
func NewSynchronizer(store Store, presence PresenceClient, factory ClientFactory, opts ...SynchronizerOption) *Synchronizer {
	s := &Synchronizer{
		store:    store,
		presence: presence,
		factory:  factory,
		clock:    RealClock(),
		status:   Status{Phase: PhaseIdle},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Synchronizer) settings() config.Settings {
	return config.LoadSettings(config.NewLoader(s.store))
}

// Start begins synchronizing the selected server. It is a no-op when already
// running, when no server is selected or when status display is disabled.
// Login happens on the loop goroutine and is retried until it succeeds.
func (s *Synchronizer) Start(ctx context.Context) error {
	server, err := s.store.GetSelectedServer()
	if err != nil {
		return fmt.Errorf("failed to load selected server: %w", err)
	}
	settings := s.settings()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run != nil {
		return nil
	}
	if server == nil {
		log.Info().Msg("No media server selected, presence idle")
		s.setStatusLocked(Status{Phase: PhaseIdle})
		return nil
	}
	if !settings.DisplayStatus {
		log.Info().Msg("Status display disabled, presence idle")
		s.setStatusLocked(Status{Phase: PhaseIdle, Server: server.DisplayName()})
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{
		server:      server,
		fingerprint: fingerprintOf(server, settings),
		cancel:      cancel,
		done:        make(chan struct{}),
		nudge:       make(chan struct{}, 1),
		requests:    make(chan pollRequest),
	}
	s.run = r
	s.setStatusLocked(Status{Phase: PhaseAuthenticating, Server: server.DisplayName()})

	go s.loop(runCtx, r, settings)

	log.Info().Str("server", server.DisplayName()).Str("type", string(server.Type)).Msg("Presence synchronizer started")
	return nil
}

// Stop logs out of the media server, discards the client, cancels every
// pending timer and clears the displayed presence. It blocks until the loop
// has exited.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	r := s.run
	s.run = nil
	s.mu.Unlock()

	if r == nil {
		return
	}

	r.cancel()
	<-r.done

	s.mu.Lock()
	s.setStatusLocked(Status{Phase: PhaseStopped, Server: r.server.DisplayName()})
	s.mu.Unlock()

	log.Info().Str("server", r.server.DisplayName()).Msg("Presence synchronizer stopped")
}

// SwitchServer stops the current server and starts the selected one with a
// brand-new client.
func (s *Synchronizer) SwitchServer(ctx context.Context) error {
	s.Stop()
	return s.Start(ctx)
}

// Reload re-reads the configuration and restarts only when something that
// affects the connection changed.
func (s *Synchronizer) Reload(ctx context.Context) error {
	server, err := s.store.GetSelectedServer()
	if err != nil {
		return fmt.Errorf("failed to load selected server: %w", err)
	}
	settings := s.settings()

	s.mu.Lock()
	r := s.run
	s.mu.Unlock()

	switch {
	case r == nil:
		return s.Start(ctx)
	case server == nil || !settings.DisplayStatus:
		s.Stop()
		return nil
	case fingerprintOf(server, settings) != r.fingerprint:
		log.Info().Str("server", server.DisplayName()).Msg("Configuration changed, restarting presence")
		return s.SwitchServer(ctx)
	}
	return nil
}

// Shutdown stops the synchronizer and closes the presence connection for good
func (s *Synchronizer) Shutdown() {
	s.Stop()
	s.presence.Disconnect()
}

// Running reports whether a server is active
func (s *Synchronizer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run != nil
}

// Poll asks the loop to poll now and waits for the result. Before login has
// succeeded the request waits until ctx is done.
func (s *Synchronizer) Poll(ctx context.Context) (PollResult, error) {
	s.mu.Lock()
	r := s.run
	s.mu.Unlock()

	if r == nil {
		return PollResult{}, ErrNotRunning
	}

	req := pollRequest{ctx: ctx, result: make(chan PollResult, 1)}
	select {
	case r.requests <- req:
	case <-r.done:
		return PollResult{}, ErrNotRunning
	case <-ctx.Done():
		return PollResult{}, ctx.Err()
	}

	select {
	case res := <-req.result:
		return res, nil
	case <-ctx.Done():
		return PollResult{}, ctx.Err()
	}
}

// Status returns a snapshot of the current state
func (s *Synchronizer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// OnChange registers fn to be called after every status change
func (s *Synchronizer) OnChange(fn func(Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Synchronizer) setStatusLocked(st Status) {
	s.status = st
	if len(s.listeners) == 0 {
		return
	}
	s.pending = append(s.pending, st)
	if !s.delivering {
		s.delivering = true
		go s.deliver()
	}
}

// deliver hands queued statuses to listeners outside the lock, oldest first.
func (s *Synchronizer) deliver() {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.delivering = false
			s.mu.Unlock()
			return
		}
		st := s.pending[0]
		s.pending = s.pending[1:]
		fns := append([]func(Status){}, s.listeners...)
		s.mu.Unlock()

		for _, fn := range fns {
			fn(st)
		}
	}
}

// updateStatus applies fn to the status unless r is no longer the active run
func (s *Synchronizer) updateStatus(r *run, fn func(*Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != r {
		return
	}
	st := s.status
	fn(&st)
	s.setStatusLocked(st)
}

// loop authenticates, then polls on the fallback ticker, the predicted-end
// wake timer, websocket nudges and explicit Poll requests until cancelled.
func (s *Synchronizer) loop(ctx context.Context, r *run, settings config.Settings) {
	defer close(r.done)
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Str("stack", string(debug.Stack())).
				Msg("Presence loop panicked")
		}
	}()

	client := s.factory(r.server, settings)
	defer s.teardown(client)

	if !s.authenticate(ctx, r, client, settings) {
		return
	}
	s.updateStatus(r, func(st *Status) {
		st.Phase = PhasePolling
		st.LastError = ""
	})

	ticker := s.clock.NewTicker(settings.PollInterval)
	defer ticker.Stop()

	if settings.UseWebSocket {
		go func() {
			err := client.WatchSessions(ctx, func() {
				select {
				case r.nudge <- struct{}{}:
				default:
				}
			})
			if err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("Session notifications stopped")
			}
		}()
	}

	var wake Timer
	var wakeC <-chan time.Time
	defer func() {
		if wake != nil {
			wake.Stop()
		}
	}()

	poll := func(pollCtx context.Context) PollResult {
		res := s.poll(pollCtx, r, client, settings)

		// One next-wake value, recomputed after every poll
		if wake != nil {
			wake.Stop()
			wake, wakeC = nil, nil
		}
		if !res.NextWake.IsZero() {
			wake = s.clock.NewTimer(max(res.NextWake.Sub(s.clock.Now()), 0))
			wakeC = wake.C()
		}
		return res
	}

	poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			log.Trace().Msg("Fallback poll")
			poll(ctx)
		case <-wakeC:
			log.Debug().Msg("Predicted end reached, polling")
			wake, wakeC = nil, nil
			poll(ctx)
		case <-r.nudge:
			log.Trace().Msg("Session notification, polling")
			poll(ctx)
		case req := <-r.requests:
			req.result <- poll(req.ctx)
		}
	}
}

// authenticate connects the presence client and logs in, retrying the whole
// sequence after the retry delay until it succeeds or ctx is cancelled.
func (s *Synchronizer) authenticate(ctx context.Context, r *run, client MediaClient, settings config.Settings) bool {
	appID := settings.ClientID(string(r.server.Type))

	for {
		if err := s.presence.Connect(appID); err != nil {
			log.Error().Err(err).Msg("Failed to connect presence client")
		}

		err := client.Login(ctx)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		log.Error().
			Err(err).
			Str("server", r.server.DisplayName()).
			Dur("retry_in", settings.RetryDelay).
			Msg("Media server login failed, will retry")
		s.updateStatus(r, func(st *Status) {
			st.Phase = PhaseAuthenticating
			st.LastError = err.Error()
		})

		timer := s.clock.NewTimer(settings.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C():
		}
	}
}

// poll runs one poll cycle. Every failure is logged and reported in the result.
func (s *Synchronizer) poll(ctx context.Context, r *run, client MediaClient, settings config.Settings) PollResult {
	loader := config.NewLoader(s.store)
	if !loader.Bool(config.KeyDisplayStatus, true) {
		return PollResult{Action: ActionDisabled}
	}

	now := s.clock.Now()

	sessions, err := client.GetSessions(ctx)
	if err != nil {
		log.Warn().Err(err).Str("server", r.server.DisplayName()).Msg("Failed to fetch sessions")
		s.updateStatus(r, func(st *Status) {
			st.LastPoll = now
			st.LastError = err.Error()
			st.NextWake = time.Time{}
		})
		return PollResult{Action: ActionError, Err: err}
	}

	session := SelectSession(sessions, client.Username())
	if session == nil {
		s.clear(ctx)
		s.updateStatus(r, func(st *Status) {
			*st = Status{Phase: PhasePolling, Server: st.Server, LastPoll: now}
		})
		return PollResult{Action: ActionCleared}
	}

	item := session.NowPlayingItem
	libraryID, err := client.GetItemInternalLibraryID(ctx, item.ID)
	if err != nil {
		log.Warn().Err(err).Str("item", item.Name).Msg("Could not resolve library, treating as not ignored")
	}

	if s.ignoredViews(r).IsIgnored(libraryID) {
		log.Debug().Str("item", item.Name).Str("library", libraryID).Msg("Library ignored, clearing presence")
		s.clear(ctx)
		s.updateStatus(r, func(st *Status) {
			*st = Status{Phase: PhasePolling, Server: st.Server, LastPoll: now}
		})
		return PollResult{Action: ActionIgnored}
	}

	activity := BuildActivity(*session, Options{
		UseTimeElapsed: loader.Bool(config.KeyUseTimeElapsed, false),
		ServerType:     string(r.server.Type),
	}, now)

	if err := s.presence.SetActivity(ctx, activity); err != nil {
		if errors.Is(err, discord.ErrNotConnected) {
			log.Debug().Msg("Presence client not connected, activity dropped")
		} else {
			log.Warn().Err(err).Msg("Failed to set activity")
		}
	}

	next := PredictedEnd(*session, now)
	if !next.IsZero() {
		next = next.Add(EndSlack)
	}

	log.Debug().
		Str("details", activity.Details).
		Str("state", activity.State).
		Bool("paused", session.PlayState.IsPaused).
		Time("next_wake", next).
		Msg("Presence updated")

	s.updateStatus(r, func(st *Status) {
		*st = Status{
			Phase:    PhasePresenting,
			Server:   st.Server,
			Activity: activity.Details + " · " + activity.State,
			NextWake: next,
			LastPoll: now,
		}
	})

	return PollResult{Action: ActionPresenting, Activity: activity, NextWake: next}
}

// ignoredViews returns the freshest copy of the active server's record so
// library toggles apply without a restart.
func (s *Synchronizer) ignoredViews(r *run) *database.MediaServer {
	current, err := s.store.GetSelectedServer()
	if err != nil || current == nil || current.ID != r.server.ID {
		return r.server
	}
	return current
}

func (s *Synchronizer) clear(ctx context.Context) {
	if !s.presence.Connected() {
		return
	}
	if err := s.presence.ClearActivity(ctx); err != nil && !errors.Is(err, discord.ErrNotConnected) {
		log.Warn().Err(err).Msg("Failed to clear activity")
	}
}

// teardown logs out and clears presence when the loop exits
func (s *Synchronizer) teardown(client MediaClient) {
	ctx, cancel := context.WithTimeout(context.Background(), logoutTimeout)
	defer cancel()

	client.Logout(ctx)
	s.clear(ctx)
}
