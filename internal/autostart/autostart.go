package autostart

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// Manager registers the application to launch when the user logs in.
// Registration is per-user on every platform.
type Manager struct {
	// Name identifies the entry (desktop file, LaunchAgent label suffix, Run value)
	Name string
	// Exec is the absolute path of the executable to launch
	Exec string
	// Args are passed to Exec on launch
	Args []string
}

// New creates a manager for the running executable
func New(name string, args ...string) (*Manager, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return &Manager{Name: name, Exec: exe, Args: args}, nil
}

// Enabled reports whether launch at login is registered
func (m *Manager) Enabled() (bool, error) {
	return m.enabled()
}

// Enable registers launch at login
func (m *Manager) Enable() error {
	if err := m.enable(); err != nil {
		return fmt.Errorf("failed to enable launch at login: %w", err)
	}
	log.Info().Str("exec", m.Exec).Msg("Launch at login enabled")
	return nil
}

// Disable removes the launch at login registration. Disabling when not
// registered is not an error.
func (m *Manager) Disable() error {
	if err := m.disable(); err != nil {
		return fmt.Errorf("failed to disable launch at login: %w", err)
	}
	log.Info().Msg("Launch at login disabled")
	return nil
}

// Toggle flips the registration and returns the new state
func (m *Manager) Toggle() (bool, error) {
	enabled, err := m.Enabled()
	if err != nil {
		return false, err
	}
	if enabled {
		return false, m.Disable()
	}
	return true, m.Enable()
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, err
	}
}
