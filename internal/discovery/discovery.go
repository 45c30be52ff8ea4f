package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/embycord/internal/database"
)

// Port is the UDP port media servers answer discovery probes on
const Port = 7359

// DefaultTimeout is how long Find listens for answers
const DefaultTimeout = 3 * time.Second

var probes = []struct {
	message    string
	serverType database.ServerType
}{
	{"who is EmbyServer?", database.ServerTypeEmby},
	{"who is JellyfinServer?", database.ServerTypeJellyfin},
}

// Server is a media server that answered a probe
type Server struct {
	FullAddress string
	Address     string
	Port        int
	Protocol    string
	Name        string
	ID          string
	Type        database.ServerType
}

type response struct {
	Address string `json:"Address"`
	ID      string `json:"Id"`
	Name    string `json:"Name"`
}

// Finder broadcasts discovery probes
type Finder struct {
	target string
}

// Option configures a Finder
type Option func(*Finder)

// WithTarget sends probes to addr instead of the IPv4 broadcast address
func WithTarget(addr string) Option {
	return func(f *Finder) { f.target = addr }
}

// NewFinder creates a Finder
func NewFinder(opts ...Option) *Finder {
	f := &Finder{target: net.JoinHostPort("255.255.255.255", strconv.Itoa(Port))}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Find broadcasts on the local network and returns every server that
// answered within timeout, deduplicated by server ID.
func Find(ctx context.Context, timeout time.Duration) ([]Server, error) {
	return NewFinder().Find(ctx, timeout)
}

// Find sends one probe per server type and collects the answers
func (f *Finder) Find(ctx context.Context, timeout time.Duration) ([]Server, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	target, err := net.ResolveUDPAddr("udp4", f.target)
	if err != nil {
		return nil, fmt.Errorf("invalid discovery target %q: %w", f.target, err)
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		found   = make(map[string]Server)
		errs    []error
		replies int
	)

	for _, p := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()

			servers, err := probe(ctx, target, p.message, p.serverType)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			for _, s := range servers {
				replies++
				key := s.ID
				if key == "" {
					key = s.FullAddress
				}
				if _, ok := found[key]; !ok {
					found[key] = s
				}
			}
		}()
	}
	wg.Wait()

	if len(errs) == len(probes) {
		return nil, errors.Join(errs...)
	}

	servers := make([]Server, 0, len(found))
	for _, s := range found {
		servers = append(servers, s)
	}
	sort.Slice(servers, func(i, j int) bool {
		if servers[i].Name != servers[j].Name {
			return servers[i].Name < servers[j].Name
		}
		return servers[i].ID < servers[j].ID
	})

	log.Debug().Int("replies", replies).Int("servers", len(servers)).Msg("Discovery finished")
	return servers, nil
}

func probe(ctx context.Context, target *net.UDPAddr, message string, serverType database.ServerType) ([]Server, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("failed to open discovery socket: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if _, err := conn.WriteToUDP([]byte(message), target); err != nil {
		return nil, fmt.Errorf("failed to send discovery probe: %w", err)
	}

	var servers []Server
	buf := make([]byte, 4096)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			// Deadline reached
			return servers, nil
		}

		s, err := ParseResponse(buf[:n], serverType)
		if err != nil {
			log.Debug().Err(err).Str("from", from.String()).Msg("Ignoring malformed discovery reply")
			continue
		}
		log.Debug().Str("name", s.Name).Str("address", s.FullAddress).Str("type", string(serverType)).Msg("Discovered media server")
		servers = append(servers, s)
	}
}

// ParseResponse decodes a discovery reply such as
// {"Address":"http://192.168.1.10:8096","Id":"abc","Name":"Living Room"}
func ParseResponse(data []byte, serverType database.ServerType) (Server, error) {
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Server{}, fmt.Errorf("failed to decode discovery reply: %w", err)
	}
	if resp.Address == "" {
		return Server{}, errors.New("discovery reply has no address")
	}

	u, err := url.Parse(resp.Address)
	if err != nil || u.Hostname() == "" {
		return Server{}, fmt.Errorf("invalid server address %q", resp.Address)
	}

	protocol := strings.ToLower(u.Scheme)
	if protocol == "" {
		protocol = "http"
	}

	port := 0
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return Server{}, fmt.Errorf("invalid server port %q", p)
		}
	} else if protocol == "https" {
		port = 443
	} else {
		port = 80
	}

	return Server{
		FullAddress: resp.Address,
		Address:     u.Hostname(),
		Port:        port,
		Protocol:    protocol,
		Name:        resp.Name,
		ID:          resp.ID,
		Type:        serverType,
	}, nil
}
