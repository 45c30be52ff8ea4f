package mediabrowser

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/saltyorg/embycord/internal/database"
)

// Credentials identify one user on one media server
type Credentials struct {
	Address  string
	Port     int
	Protocol string
	Username string
	Password string
}

// CredentialsFor extracts the credentials of a stored server
func CredentialsFor(s *database.MediaServer) Credentials {
	return Credentials{
		Address:  s.Address,
		Port:     s.Port,
		Protocol: s.Protocol,
		Username: s.Username,
		Password: s.Password,
	}
}

// hostURL returns scheme://host:port without any API base path
func (c Credentials) hostURL() string {
	protocol := strings.ToLower(c.Protocol)
	if protocol == "" {
		protocol = "http"
	}
	return fmt.Sprintf("%s://%s", protocol, net.JoinHostPort(c.Address, strconv.Itoa(c.Port)))
}

// DeviceIdentity is sent in the Authorization header of every request
type DeviceIdentity struct {
	Name    string
	ID      string
	Version string

	// IconURL is optional; when set it is registered as the device icon after login
	IconURL string
}

// serverConfig holds what differs between Emby and Jellyfin.
// Both forked from MediaBrowser and share nearly all endpoints.
type serverConfig struct {
	name string

	// basePath prefixes every API path
	basePath string

	// authScheme is the Authorization header scheme
	authScheme string

	webSocketPath string

	// sessionsStartData is the Data of the SessionsStart websocket message
	sessionsStartData string
}

var serverConfigs = map[database.ServerType]serverConfig{
	database.ServerTypeEmby: {
		name:          "Emby",
		basePath:      "/emby",
		authScheme:    "Emby",
		webSocketPath: "/embywebsocket",
		// InitialDelay,Interval,InactiveSessionThreshold in ms
		sessionsStartData: "0,1500,300",
	},
	database.ServerTypeJellyfin: {
		name:              "Jellyfin",
		basePath:          "",
		authScheme:        "MediaBrowser",
		webSocketPath:     "/socket",
		sessionsStartData: "0,1500",
	},
}

func configFor(t database.ServerType) serverConfig {
	if cfg, ok := serverConfigs[t]; ok {
		return cfg
	}
	return serverConfigs[database.ServerTypeEmby]
}

// Session is one device's playback state as reported by /Sessions
type Session struct {
	ID             string          `json:"Id"`
	UserName       string          `json:"UserName"`
	Client         string          `json:"Client"`
	DeviceName     string          `json:"DeviceName"`
	NowPlayingItem *NowPlayingItem `json:"NowPlayingItem,omitempty"`
	PlayState      PlayState       `json:"PlayState"`
}

// NowPlayingItem is the media object presently playing in a session
type NowPlayingItem struct {
	ID                string       `json:"Id"`
	Type              string       `json:"Type"`
	Name              string       `json:"Name"`
	SeriesName        string       `json:"SeriesName,omitempty"`
	ParentIndexNumber *int         `json:"ParentIndexNumber,omitempty"`
	IndexNumber       *int         `json:"IndexNumber,omitempty"`
	RunTimeTicks      int64        `json:"RunTimeTicks"`
	ProductionYear    int          `json:"ProductionYear,omitempty"`
	Artists           []string     `json:"Artists,omitempty"`
	AlbumArtists      []NameIDPair `json:"AlbumArtists,omitempty"`
}

// NameIDPair is the server's reference to another item
type NameIDPair struct {
	Name string `json:"Name"`
	ID   string `json:"Id"`
}

// PlayState is the pause state and position of a session
type PlayState struct {
	IsPaused      bool  `json:"IsPaused"`
	PositionTicks int64 `json:"PositionTicks"`
}

// View is a playable library as seen by the configured user
type View struct {
	// ID is the internal library id compared against the ignored set
	ID string `json:"id"`

	// LibraryID is the library's own GUID
	LibraryID      string `json:"library_id"`
	Name           string `json:"name"`
	CollectionType string `json:"collection_type"`
}

// playableCollectionTypes lists the library types that can produce sessions.
// Mixed libraries report no collection type.
var playableCollectionTypes = map[string]bool{
	"tvshows":     true,
	"movies":      true,
	"homevideos":  true,
	"music":       true,
	"musicvideos": true,
	"audiobooks":  true,
	"":            true,
}

type authenticateRequest struct {
	Username string `json:"Username"`
	Pw       string `json:"Pw"`
}

type authenticateResponse struct {
	AccessToken string `json:"AccessToken"`
	ServerID    string `json:"ServerId"`
	User        struct {
		ID   string `json:"Id"`
		Name string `json:"Name"`
	} `json:"User"`
}

type capabilitiesRequest struct {
	IconURL string `json:"IconUrl"`
}

type baseItem struct {
	ID             string `json:"Id"`
	Name           string `json:"Name"`
	Type           string `json:"Type"`
	CollectionType string `json:"CollectionType"`
}

type itemsResponse struct {
	Items            []baseItem `json:"Items"`
	TotalRecordCount int        `json:"TotalRecordCount"`
}
