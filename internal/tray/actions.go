package tray

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/embycord/internal/config"
	"github.com/saltyorg/embycord/internal/database"
	"github.com/saltyorg/embycord/internal/logging"
	"github.com/saltyorg/embycord/internal/presence"
)

const actionTimeout = 10 * time.Second

// Store is the persisted configuration the tray edits
type Store interface {
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
	ListServers() ([]*database.MediaServer, error)
	SelectServer(id int64) error
}

// Synchronizer is the presence loop the tray controls
type Synchronizer interface {
	Start(ctx context.Context) error
	Stop()
	SwitchServer(ctx context.Context) error
	Poll(ctx context.Context) (presence.PollResult, error)
	Status() presence.Status
	OnChange(fn func(presence.Status))
}

// Autostart toggles launch at login
type Autostart interface {
	Enabled() (bool, error)
	Toggle() (bool, error)
}

// Actions implements every menu action against the store and synchronizer.
// It holds no UI state so the menu glue stays thin.
type Actions struct {
	store     Store
	sync      Synchronizer
	autostart Autostart
	verbosity int
}

// NewActions creates the menu action handlers. autostart may be nil when
// launch at login is unsupported.
func NewActions(store Store, sync Synchronizer, autostart Autostart, verbosity int) *Actions {
	return &Actions{store: store, sync: sync, autostart: autostart, verbosity: verbosity}
}

func (a *Actions) loader() *config.Loader {
	return config.NewLoader(a.store)
}

// DisplayStatus reports the persisted "Display as status" preference
func (a *Actions) DisplayStatus() bool {
	return a.loader().Bool(config.KeyDisplayStatus, true)
}

// UseTimeElapsed reports the persisted "Show elapsed time" preference
func (a *Actions) UseTimeElapsed() bool {
	return a.loader().Bool(config.KeyUseTimeElapsed, false)
}

// DebugLogging reports the persisted debug logging preference
func (a *Actions) DebugLogging() bool {
	return a.loader().Bool(config.KeyDebugLogging, false)
}

// LaunchAtLogin reports whether autostart is registered
func (a *Actions) LaunchAtLogin() bool {
	if a.autostart == nil {
		return false
	}
	on, err := a.autostart.Enabled()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read launch at login state")
		return false
	}
	return on
}

// ToggleDisplayStatus flips the preference. Turning it off stops the
// synchronizer, which clears presence; turning it on starts it again.
func (a *Actions) ToggleDisplayStatus(ctx context.Context) (bool, error) {
	on := !a.DisplayStatus()
	if err := a.store.SetSetting(config.KeyDisplayStatus, strconv.FormatBool(on)); err != nil {
		return !on, err
	}

	if on {
		log.Info().Msg("Status display enabled")
		return on, a.sync.Start(ctx)
	}
	log.Info().Msg("Status display disabled")
	a.sync.Stop()
	return on, nil
}

// ToggleTimeElapsed flips elapsed/remaining timestamps and refreshes the
// activity right away.
func (a *Actions) ToggleTimeElapsed(ctx context.Context) (bool, error) {
	on := !a.UseTimeElapsed()
	if err := a.store.SetSetting(config.KeyUseTimeElapsed, strconv.FormatBool(on)); err != nil {
		return !on, err
	}
	a.refresh(ctx)
	return on, nil
}

// ToggleDebugLogging flips the debug preference and applies it to the
// running logger. CLI verbosity still wins when higher.
func (a *Actions) ToggleDebugLogging() (bool, error) {
	on := !a.DebugLogging()
	if err := a.store.SetSetting(config.KeyDebugLogging, strconv.FormatBool(on)); err != nil {
		return !on, err
	}
	logging.SetLevel(logging.LevelFor(a.verbosity, on))
	return on, nil
}

// ToggleLaunchAtLogin flips the autostart registration
func (a *Actions) ToggleLaunchAtLogin() (bool, error) {
	if a.autostart == nil {
		return false, fmt.Errorf("launch at login is not supported on this platform")
	}
	return a.autostart.Toggle()
}

// Servers lists the configured servers for the switch submenu
func (a *Actions) Servers() []*database.MediaServer {
	servers, err := a.store.ListServers()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to list media servers")
		return nil
	}
	return servers
}

// SelectServer makes id the active server and restarts the synchronizer
// with a fresh client.
func (a *Actions) SelectServer(ctx context.Context, id int64) error {
	if err := a.store.SelectServer(id); err != nil {
		return err
	}
	return a.sync.SwitchServer(ctx)
}

func (a *Actions) refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	if _, err := a.sync.Poll(ctx); err != nil {
		log.Debug().Err(err).Msg("Refresh after preference change skipped")
	}
}

// StatusTitle renders the first, disabled menu line
func StatusTitle(st presence.Status) string {
	switch st.Phase {
	case presence.PhasePresenting:
		return truncate(st.Activity, 48)
	case presence.PhaseAuthenticating:
		if st.LastError != "" {
			return "Cannot sign in to " + st.Server
		}
		return "Connecting to " + st.Server
	case presence.PhasePolling:
		if st.LastError != "" {
			return st.Server + " unreachable"
		}
		return "Nothing playing"
	case presence.PhaseStopped, presence.PhaseIdle:
		if st.Server == "" {
			return "No server configured"
		}
		return "Paused"
	}
	return string(st.Phase)
}

// Tooltip renders the tray icon tooltip
func Tooltip(st presence.Status) string {
	if st.Phase == presence.PhasePresenting && st.Activity != "" {
		return "embycord: " + truncate(st.Activity, 100)
	}
	return "embycord"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
