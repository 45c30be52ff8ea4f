package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/embycord/internal/config"
	"github.com/saltyorg/embycord/internal/logging"
)

// GetSetting retrieves a setting value by key
func (db *DB) GetSetting(key string) (string, error) {
	var value string
	err := db.queryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, nil
}

// GetSettingJSON retrieves a setting and unmarshals it from JSON
func (db *DB) GetSettingJSON(key string, v any) error {
	value, err := db.GetSetting(key)
	if err != nil {
		return err
	}
	if value == "" {
		return nil
	}
	return json.Unmarshal([]byte(value), v)
}

// SetSetting stores a setting value
func (db *DB) SetSetting(key, value string) error {
	_, err := db.exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// SetSettingJSON stores a setting as JSON
func (db *DB) SetSettingJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal setting %s: %w", key, err)
	}
	return db.SetSetting(key, string(data))
}

// GetAllSettings retrieves all settings
func (db *DB) GetAllSettings() (map[string]string, error) {
	rows, err := db.query("SELECT key, value FROM settings ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		settings[key] = value
	}

	return settings, rows.Err()
}

// DeleteSetting removes a setting
func (db *DB) DeleteSetting(key string) error {
	if _, err := db.exec("DELETE FROM settings WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	return nil
}

// DefaultSettings are written on first start and after a reset
var DefaultSettings = map[string]any{
	config.KeySettingsVersion: config.CurrentSettingsVersion,
	config.KeyDisplayStatus:   true,
	config.KeyUseTimeElapsed:  false,
	config.KeyUseWebSocket:    true,
	config.KeyPollInterval:    int(config.DefaultPollInterval.Seconds()),
	config.KeyRetryDelay:      int(config.DefaultRetryDelay.Seconds()),
	config.KeyDebugLogging:    false,
	config.KeyCheckUpdates:    true,
	"log.max_size_mb":         logging.DefaultMaxSizeMB,
	"log.max_backups":         logging.DefaultMaxBackups,
	"log.max_age_days":        logging.DefaultMaxAgeDays,
	"log.compress":            logging.DefaultCompress,
}

// InitializeDefaults sets default values for settings that don't exist
// and generates the persistent device identifier.
func (db *DB) InitializeDefaults() error {
	for key, value := range DefaultSettings {
		existing, err := db.GetSetting(key)
		if err != nil {
			return err
		}
		if existing == "" {
			if err := db.SetSettingJSON(key, value); err != nil {
				return err
			}
		}
	}

	_, err := db.EnsureDeviceUUID()
	return err
}

// EnsureDeviceUUID returns the stored device UUID, generating one on first use.
// The value is sent as DeviceId in the media server authorization header.
func (db *DB) EnsureDeviceUUID() (string, error) {
	return db.ensureGenerated(config.KeyDeviceUUID, func() (string, error) {
		return uuid.NewString(), nil
	})
}

// EnsureSecret returns the credential encryption secret, generating one on first use.
func (db *DB) EnsureSecret() (string, error) {
	return db.ensureGenerated(config.KeySecret, config.NewSecret)
}

func (db *DB) ensureGenerated(key string, generate func() (string, error)) (string, error) {
	var existing string
	if err := db.GetSettingJSON(key, &existing); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	if existing != "" {
		return existing, nil
	}

	value, err := generate()
	if err != nil {
		return "", fmt.Errorf("failed to generate %s: %w", key, err)
	}
	if err := db.SetSettingJSON(key, value); err != nil {
		return "", err
	}

	log.Debug().Str("key", key).Msg("Generated persistent setting")
	return value, nil
}

// Reset removes all media servers and restores default preferences.
// The device UUID and encryption secret survive so the device keeps its identity.
func (db *DB) Reset() error {
	err := db.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM media_servers"); err != nil {
			return fmt.Errorf("failed to delete media servers: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM settings WHERE key NOT IN (?, ?)", config.KeyDeviceUUID, config.KeySecret); err != nil {
			return fmt.Errorf("failed to delete settings: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Msg("Configuration reset to defaults")
	return db.InitializeDefaults()
}
