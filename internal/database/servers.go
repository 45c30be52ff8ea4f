package database

import (
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// ServerType identifies the media server flavour
type ServerType string

const (
	ServerTypeEmby     ServerType = "emby"
	ServerTypeJellyfin ServerType = "jellyfin"
)

// ParseServerType parses a user supplied server type
func ParseServerType(s string) (ServerType, error) {
	switch ServerType(strings.ToLower(strings.TrimSpace(s))) {
	case ServerTypeEmby, "":
		return ServerTypeEmby, nil
	case ServerTypeJellyfin:
		return ServerTypeJellyfin, nil
	}
	return "", fmt.Errorf("unknown server type %q (expected emby or jellyfin)", s)
}

// MediaServer is a configured Emby or Jellyfin server
type MediaServer struct {
	ID           int64      `json:"id"`
	ServerID     string     `json:"server_id"`
	Type         ServerType `json:"server_type"`
	Name         string     `json:"name"`
	Address      string     `json:"address"`
	Port         int        `json:"port"`
	Protocol     string     `json:"protocol"`
	Username     string     `json:"username"`
	Password     string     `json:"password"`
	IgnoredViews []string   `json:"ignored_views"`
	Selected     bool       `json:"is_selected"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// DisplayName returns the server name, falling back to its address
func (s *MediaServer) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("%s://%s:%d", s.Protocol, s.Address, s.Port)
}

// IsIgnored reports whether a library's internal id is in the ignored set
func (s *MediaServer) IsIgnored(viewID string) bool {
	return viewID != "" && slices.Contains(s.IgnoredViews, viewID)
}

// ErrServerNotFound is returned when a server id does not exist
var ErrServerNotFound = errors.New("media server not found")

func (s *MediaServer) validate() error {
	if strings.TrimSpace(s.Address) == "" {
		return fmt.Errorf("address is required")
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("port %d out of range", s.Port)
	}
	switch s.Protocol {
	case "http", "https":
	case "":
		s.Protocol = "http"
	default:
		return fmt.Errorf("protocol must be http or https, got %q", s.Protocol)
	}
	if strings.TrimSpace(s.Username) == "" {
		return fmt.Errorf("username is required")
	}
	if s.Type == "" {
		s.Type = ServerTypeEmby
	}
	return nil
}

const serverColumns = `id, server_id, server_type, name, address, port, protocol, username, password,
	ignored_views, is_selected, created_at, updated_at`

// CreateServer inserts a media server. The first server added becomes the selected one.
func (db *DB) CreateServer(s *MediaServer) error {
	if err := s.validate(); err != nil {
		return err
	}

	password, err := db.encryptPassword(s.Password)
	if err != nil {
		return err
	}
	views, err := marshalViews(s.IgnoredViews)
	if err != nil {
		return err
	}

	var count int
	if err := db.queryRow("SELECT COUNT(*) FROM media_servers").Scan(&count); err != nil {
		return fmt.Errorf("failed to count media servers: %w", err)
	}
	if count == 0 {
		s.Selected = true
	}

	now := time.Now()
	err = db.Transaction(func(tx *sql.Tx) error {
		if s.Selected {
			if _, err := tx.Exec("UPDATE media_servers SET is_selected = 0"); err != nil {
				return fmt.Errorf("failed to clear selection: %w", err)
			}
		}

		result, err := tx.Exec(`
			INSERT INTO media_servers (server_id, server_type, name, address, port, protocol, username,
				password, ignored_views, is_selected, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, s.ServerID, string(s.Type), s.Name, s.Address, s.Port, s.Protocol, s.Username,
			password, views, s.Selected, now, now)
		if err != nil {
			return fmt.Errorf("failed to create media server: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get media server id: %w", err)
		}
		s.ID = id
		return nil
	})
	if err != nil {
		return err
	}

	s.CreatedAt = now
	s.UpdatedAt = now
	log.Info().Int64("id", s.ID).Str("server", s.DisplayName()).Str("type", string(s.Type)).Msg("Media server added")
	return nil
}

// UpdateServer persists all mutable fields of an existing server
func (db *DB) UpdateServer(s *MediaServer) error {
	if err := s.validate(); err != nil {
		return err
	}

	password, err := db.encryptPassword(s.Password)
	if err != nil {
		return err
	}
	views, err := marshalViews(s.IgnoredViews)
	if err != nil {
		return err
	}

	s.UpdatedAt = time.Now()
	result, err := db.exec(`
		UPDATE media_servers SET server_id = ?, server_type = ?, name = ?, address = ?, port = ?,
			protocol = ?, username = ?, password = ?, ignored_views = ?, updated_at = ?
		WHERE id = ?
	`, s.ServerID, string(s.Type), s.Name, s.Address, s.Port, s.Protocol, s.Username,
		password, views, s.UpdatedAt, s.ID)
	if err != nil {
		return fmt.Errorf("failed to update media server: %w", err)
	}
	return requireAffected(result)
}

// GetServer retrieves a server by id
func (db *DB) GetServer(id int64) (*MediaServer, error) {
	row := db.queryRow("SELECT "+serverColumns+" FROM media_servers WHERE id = ?", id)
	s, err := db.scanServer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrServerNotFound
	}
	return s, err
}

// GetSelectedServer returns the selected server, or nil when none is selected
func (db *DB) GetSelectedServer() (*MediaServer, error) {
	row := db.queryRow("SELECT " + serverColumns + " FROM media_servers WHERE is_selected = 1 LIMIT 1")
	s, err := db.scanServer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// ListServers returns every configured server ordered by id
func (db *DB) ListServers() ([]*MediaServer, error) {
	rows, err := db.query("SELECT " + serverColumns + " FROM media_servers ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list media servers: %w", err)
	}
	defer rows.Close()

	var servers []*MediaServer
	for rows.Next() {
		s, err := db.scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, s)
	}
	return servers, rows.Err()
}

// SelectServer makes id the only selected server
func (db *DB) SelectServer(id int64) error {
	return db.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec("UPDATE media_servers SET is_selected = 0"); err != nil {
			return fmt.Errorf("failed to clear selection: %w", err)
		}
		result, err := tx.Exec("UPDATE media_servers SET is_selected = 1, updated_at = ? WHERE id = ?", time.Now(), id)
		if err != nil {
			return fmt.Errorf("failed to select media server: %w", err)
		}
		return requireAffected(result)
	})
}

// DeselectServers clears the selection so no server is active
func (db *DB) DeselectServers() error {
	if _, err := db.exec("UPDATE media_servers SET is_selected = 0"); err != nil {
		return fmt.Errorf("failed to clear selection: %w", err)
	}
	return nil
}

// DeleteServer removes a server. Removing the selected server selects the oldest remaining one.
func (db *DB) DeleteServer(id int64) error {
	return db.Transaction(func(tx *sql.Tx) error {
		var selected bool
		err := tx.QueryRow("SELECT is_selected FROM media_servers WHERE id = ?", id).Scan(&selected)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrServerNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get media server: %w", err)
		}

		if _, err := tx.Exec("DELETE FROM media_servers WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to delete media server: %w", err)
		}

		if selected {
			if _, err := tx.Exec(`
				UPDATE media_servers SET is_selected = 1
				WHERE id = (SELECT id FROM media_servers ORDER BY id LIMIT 1)
			`); err != nil {
				return fmt.Errorf("failed to select fallback server: %w", err)
			}
		}
		return nil
	})
}

// SetIgnoredViews replaces the ignored library set of a server
func (db *DB) SetIgnoredViews(id int64, views []string) error {
	data, err := marshalViews(views)
	if err != nil {
		return err
	}
	result, err := db.exec("UPDATE media_servers SET ignored_views = ?, updated_at = ? WHERE id = ?", data, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update ignored views: %w", err)
	}
	return requireAffected(result)
}

// ToggleIgnoredView flips a library between ignored and watched and
// reports whether it is ignored afterwards.
func (db *DB) ToggleIgnoredView(id int64, viewID string) (bool, error) {
	s, err := db.GetServer(id)
	if err != nil {
		return false, err
	}

	ignored := !s.IsIgnored(viewID)
	if ignored {
		s.IgnoredViews = append(s.IgnoredViews, viewID)
	} else {
		s.IgnoredViews = slices.DeleteFunc(s.IgnoredViews, func(v string) bool { return v == viewID })
	}

	if err := db.SetIgnoredViews(id, s.IgnoredViews); err != nil {
		return false, err
	}
	return ignored, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (db *DB) scanServer(row rowScanner) (*MediaServer, error) {
	var (
		s          MediaServer
		serverType string
		password   string
		views      string
	)
	err := row.Scan(&s.ID, &s.ServerID, &serverType, &s.Name, &s.Address, &s.Port, &s.Protocol,
		&s.Username, &password, &views, &s.Selected, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan media server: %w", err)
	}
	s.Type = ServerType(serverType)

	if s.Password, err = db.decryptPassword(password); err != nil {
		return nil, fmt.Errorf("media server %d: %w", s.ID, err)
	}

	if views != "" {
		if err := json.Unmarshal([]byte(views), &s.IgnoredViews); err != nil {
			log.Warn().Err(err).Int64("id", s.ID).Msg("Invalid ignored views, treating as empty")
			s.IgnoredViews = nil
		}
	}
	return &s, nil
}

func (db *DB) encryptPassword(plain string) (string, error) {
	if db.encryptor == nil || plain == "" {
		return plain, nil
	}
	enc, err := db.encryptor.Encrypt(plain)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt password: %w", err)
	}
	return enc, nil
}

func (db *DB) decryptPassword(stored string) (string, error) {
	if db.encryptor == nil || stored == "" {
		return stored, nil
	}
	plain, err := db.encryptor.Decrypt(stored)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt password: %w", err)
	}
	return plain, nil
}

func marshalViews(views []string) (string, error) {
	if views == nil {
		views = []string{}
	}
	data, err := json.Marshal(views)
	if err != nil {
		return "", fmt.Errorf("failed to marshal ignored views: %w", err)
	}
	return string(data), nil
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return ErrServerNotFound
	}
	return nil
}
