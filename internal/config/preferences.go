package config

import (
	"strings"
	"time"
)

// CurrentSettingsVersion is bumped whenever Normalize learns a new defaulting rule.
const CurrentSettingsVersion = 2

// Preference keys in the settings table
const (
	KeySettingsVersion  = "settings.version"
	KeyDisplayStatus    = "presence.display_status"
	KeyUseTimeElapsed   = "presence.use_time_elapsed"
	KeyPollInterval     = "presence.poll_interval_seconds"
	KeyRetryDelay       = "presence.retry_delay_seconds"
	KeyUseWebSocket     = "presence.websocket"
	KeyDebugLogging     = "log.debug"
	KeyDeviceUUID       = "device.uuid"
	KeyClientIDEmby     = "discord.client_id.emby"
	KeyClientIDJellyfin = "discord.client_id.jellyfin"
	KeyCheckUpdates     = "update.check"
	KeySecret           = "security.secret"
)

// Built-in Discord application IDs, one per media server type
const (
	DefaultClientIDEmby     = "609837785049726977"
	DefaultClientIDJellyfin = "759905779089424384"
)

const (
	DefaultPollInterval = 15 * time.Second
	DefaultRetryDelay   = 30 * time.Second
)

// Settings is the typed view of all global preferences.
type Settings struct {
	Version        int
	DisplayStatus  bool
	UseTimeElapsed bool
	DebugLogging   bool
	UseWebSocket   bool
	CheckUpdates   bool
	DeviceUUID     string
	PollInterval   time.Duration
	RetryDelay     time.Duration

	// ClientIDs maps a server type ("emby", "jellyfin") to a Discord application ID
	ClientIDs map[string]string
}

// ClientID returns the Discord application ID for a server type
func (s Settings) ClientID(serverType string) string {
	if id := s.ClientIDs[strings.ToLower(serverType)]; id != "" {
		return id
	}
	return DefaultClientIDEmby
}

// LoadSettings reads all preferences through the loader and normalizes them
func LoadSettings(l *Loader) Settings {
	return Normalize(Settings{
		Version:        l.Int(KeySettingsVersion, 0),
		DisplayStatus:  l.Bool(KeyDisplayStatus, true),
		UseTimeElapsed: l.Bool(KeyUseTimeElapsed, false),
		DebugLogging:   l.Bool(KeyDebugLogging, false),
		UseWebSocket:   l.Bool(KeyUseWebSocket, true),
		CheckUpdates:   l.Bool(KeyCheckUpdates, true),
		DeviceUUID:     l.String(KeyDeviceUUID, ""),
		PollInterval:   l.DurationSeconds(KeyPollInterval, int(DefaultPollInterval.Seconds())),
		RetryDelay:     l.DurationSeconds(KeyRetryDelay, int(DefaultRetryDelay.Seconds())),
		ClientIDs: map[string]string{
			"emby":     l.String(KeyClientIDEmby, ""),
			"jellyfin": l.String(KeyClientIDJellyfin, ""),
		},
	})
}

// Normalize applies defaulting rules to a Settings value. It does not touch storage.
func Normalize(s Settings) Settings {
	out := s

	if out.PollInterval <= 0 {
		out.PollInterval = DefaultPollInterval
	}
	if out.RetryDelay <= 0 {
		out.RetryDelay = DefaultRetryDelay
	}

	ids := map[string]string{
		"emby":     DefaultClientIDEmby,
		"jellyfin": DefaultClientIDJellyfin,
	}
	for serverType, id := range s.ClientIDs {
		if id = strings.TrimSpace(id); id != "" && isSnowflake(id) {
			ids[strings.ToLower(serverType)] = id
		}
	}
	out.ClientIDs = ids

	// Version 1 stored no websocket flag; treat it as enabled.
	if out.Version < 2 {
		out.UseWebSocket = true
	}
	out.Version = CurrentSettingsVersion

	return out
}

// isSnowflake reports whether id looks like a Discord application ID
func isSnowflake(id string) bool {
	if len(id) < 15 || len(id) > 21 {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
