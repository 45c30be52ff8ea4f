package mediabrowser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/embycord/internal/config"
	"github.com/saltyorg/embycord/internal/database"
	"github.com/saltyorg/embycord/internal/httpclient"
)

// Client talks to one Emby or Jellyfin server on behalf of one user.
// The token and both library caches belong to this instance only;
// switching servers means building a new Client.
type Client struct {
	serverType database.ServerType
	config     serverConfig
	creds      Credentials
	device     DeviceIdentity
	baseURL    string
	client     *http.Client

	mu          sync.Mutex
	accessToken string
	userID      string
	serverID    string

	// itemLibraries maps item id -> internal library id
	itemLibraries map[string]string
	// libraries maps library GUID -> internal library id
	libraries map[string]string
}

// New creates a client for the given server. No network calls are made.
func New(serverType database.ServerType, creds Credentials, device DeviceIdentity) *Client {
	cfg := configFor(serverType)
	return &Client{
		serverType:    serverType,
		config:        cfg,
		creds:         creds,
		device:        device,
		baseURL:       creds.hostURL() + cfg.basePath,
		client:        httpclient.NewTraceClient(strings.ToLower(cfg.name), config.GetTimeouts().HTTPClient),
		itemLibraries: make(map[string]string),
		libraries:     make(map[string]string),
	}
}

// ServerType returns the media server flavour
func (c *Client) ServerType() database.ServerType {
	return c.serverType
}

// Name returns a human readable server label for logs
func (c *Client) Name() string {
	return fmt.Sprintf("%s %s", c.config.name, c.creds.hostURL())
}

// Username returns the configured username
func (c *Client) Username() string {
	return c.creds.Username
}

// LoggedIn reports whether a token is held
func (c *Client) LoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken != ""
}

// UserID returns the authenticated user's id, empty before login
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// ServerID returns the server GUID reported at login
func (c *Client) ServerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverID
}

func (c *Client) token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// authorization builds the device identifying Authorization header value
func (c *Client) authorization(token string) string {
	value := fmt.Sprintf(`%s Client="Other", Device="%s", DeviceId="%s", Version="%s"`,
		c.config.authScheme, c.device.Name, c.device.ID, c.device.Version)
	if token != "" {
		value += fmt.Sprintf(`, Token="%s"`, token)
	}
	return value
}

// Login authenticates with the configured credentials. It returns
// immediately when a token is already held.
func (c *Client) Login(ctx context.Context) error {
	if c.LoggedIn() {
		return nil
	}

	var resp authenticateResponse
	body := authenticateRequest{Username: c.creds.Username, Pw: c.creds.Password}
	if err := c.doJSON(ctx, http.MethodPost, "/Users/AuthenticateByName", nil, "", body, &resp); err != nil {
		return &AuthError{Server: c.Name(), Err: err}
	}
	if resp.AccessToken == "" || resp.User.ID == "" {
		return &AuthError{Server: c.Name(), Err: fmt.Errorf("response did not contain an access token")}
	}

	if c.device.IconURL != "" {
		err := c.doJSON(ctx, http.MethodPost, "/Sessions/Capabilities/Full", nil, resp.AccessToken,
			capabilitiesRequest{IconURL: c.device.IconURL}, nil)
		if err != nil {
			return &AuthError{Server: c.Name(), Err: fmt.Errorf("failed to set device icon: %w", err)}
		}
	}

	c.mu.Lock()
	c.accessToken = resp.AccessToken
	c.userID = resp.User.ID
	c.serverID = resp.ServerID
	c.mu.Unlock()

	log.Info().
		Str("server", c.Name()).
		Str("user", c.creds.Username).
		Msgf("Logged in to %s", c.config.name)

	return nil
}

// GetSessions returns every session the server reports. An error means the
// current state is unknown, not that nothing is playing.
func (c *Client) GetSessions(ctx context.Context) ([]Session, error) {
	token := c.token()
	if token == "" {
		return nil, &AuthError{Server: c.Name(), Err: ErrNotLoggedIn}
	}

	var sessions []Session
	if err := c.doJSON(ctx, http.MethodGet, "/Sessions", nil, token, nil, &sessions); err != nil {
		if code := statusCode(err); code == http.StatusUnauthorized || code == http.StatusForbidden {
			return nil, &AuthError{Server: c.Name(), Err: err}
		}
		return nil, &TransportError{Op: "get sessions", Err: err}
	}

	return sessions, nil
}

// GetUserViews returns the user's playable libraries with their internal ids.
// Libraries whose id cannot be resolved (for example empty ones) are omitted.
func (c *Client) GetUserViews(ctx context.Context) ([]View, error) {
	token, userID := c.token(), c.UserID()
	if token == "" {
		return nil, &AuthError{Server: c.Name(), Err: ErrNotLoggedIn}
	}

	var resp itemsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/Users/"+url.PathEscape(userID)+"/views", nil, token, nil, &resp); err != nil {
		return nil, &TransportError{Op: "get user views", Err: err}
	}

	views := make([]View, 0, len(resp.Items))
	for _, item := range resp.Items {
		if !playableCollectionTypes[strings.ToLower(item.CollectionType)] {
			continue
		}

		internalID, err := c.GetLibraryInternalID(ctx, item.ID)
		if err != nil {
			log.Debug().Err(err).Str("library", item.Name).Msg("Skipping library that could not be resolved")
			continue
		}
		if internalID == "" {
			continue
		}

		views = append(views, View{
			ID:             internalID,
			LibraryID:      item.ID,
			Name:           item.Name,
			CollectionType: item.CollectionType,
		})
	}

	return views, nil
}

// GetItemInternalLibraryID resolves an item to the internal id of its library.
// The library is always the second ancestor from the root. Results are cached.
func (c *Client) GetItemInternalLibraryID(ctx context.Context, itemID string) (string, error) {
	c.mu.Lock()
	cached, ok := c.itemLibraries[itemID]
	token := c.accessToken
	c.mu.Unlock()
	if ok {
		return cached, nil
	}
	if token == "" {
		return "", &LibraryResolutionError{ID: itemID, Err: ErrNotLoggedIn}
	}

	var ancestors []baseItem
	if err := c.doJSON(ctx, http.MethodGet, "/Items/"+url.PathEscape(itemID)+"/Ancestors", nil, token, nil, &ancestors); err != nil {
		return "", &LibraryResolutionError{ID: itemID, Err: err}
	}
	if len(ancestors) < 2 {
		return "", &LibraryResolutionError{ID: itemID, Err: fmt.Errorf("expected at least 2 ancestors, got %d", len(ancestors))}
	}

	libraryID := ancestors[len(ancestors)-2].ID

	c.mu.Lock()
	c.itemLibraries[itemID] = libraryID
	c.mu.Unlock()

	return libraryID, nil
}

// GetLibraryInternalID resolves a library GUID to an internal library id by
// looking up one of its items. Empty libraries resolve to "" and are not cached.
func (c *Client) GetLibraryInternalID(ctx context.Context, libraryID string) (string, error) {
	c.mu.Lock()
	cached, ok := c.libraries[libraryID]
	token, userID := c.accessToken, c.userID
	c.mu.Unlock()
	if ok {
		return cached, nil
	}
	if token == "" {
		return "", &LibraryResolutionError{ID: libraryID, Err: ErrNotLoggedIn}
	}

	query := url.Values{}
	query.Set("ParentId", libraryID)
	query.Set("Limit", "1")
	query.Set("Recursive", "true")
	query.Set("IsFolder", "false")

	var resp itemsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/Users/"+url.PathEscape(userID)+"/Items", query, token, nil, &resp); err != nil {
		return "", &LibraryResolutionError{ID: libraryID, Err: err}
	}
	if len(resp.Items) == 0 {
		return "", nil
	}

	internalID, err := c.GetItemInternalLibraryID(ctx, resp.Items[0].ID)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.libraries[libraryID] = internalID
	c.mu.Unlock()

	return internalID, nil
}

// Logout invalidates the session server-side on a best-effort basis.
// Failures are logged and never returned. Local state is always cleared.
func (c *Client) Logout(ctx context.Context) {
	c.mu.Lock()
	token := c.accessToken
	c.accessToken = ""
	c.userID = ""
	c.itemLibraries = make(map[string]string)
	c.libraries = make(map[string]string)
	c.mu.Unlock()

	if token == "" {
		return
	}

	if err := c.doJSON(ctx, http.MethodPost, "/Sessions/Logout", nil, token, nil, nil); err != nil {
		log.Warn().Err(err).Str("server", c.Name()).Msg("Failed to log out of media server")
		return
	}

	log.Debug().Str("server", c.Name()).Msg("Logged out of media server")
}

// doJSON performs a request against the API base. body is JSON encoded when
// non-nil and out is decoded from the response when non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, token string, body, out any) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", c.authorization(token))
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("X-Emby-Token", token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil {
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
