package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/saltyorg/embycord/internal/database"
)

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    Server
		wantErr bool
	}{
		{
			name: "emby reply",
			body: `{"Address":"http://192.168.1.10:8096","Id":"abc","Name":"Living Room"}`,
			want: Server{
				FullAddress: "http://192.168.1.10:8096",
				Address:     "192.168.1.10",
				Port:        8096,
				Protocol:    "http",
				Name:        "Living Room",
				ID:          "abc",
				Type:        database.ServerTypeEmby,
			},
		},
		{
			name: "https without port",
			body: `{"Address":"https://media.example.com","Id":"x1","Name":"Remote"}`,
			want: Server{
				FullAddress: "https://media.example.com",
				Address:     "media.example.com",
				Port:        443,
				Protocol:    "https",
				Name:        "Remote",
				ID:          "x1",
				Type:        database.ServerTypeEmby,
			},
		},
		{name: "not json", body: `hello`, wantErr: true},
		{name: "no address", body: `{"Id":"abc"}`, wantErr: true},
		{name: "bad port", body: `{"Address":"http://host:port"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResponse([]byte(tt.body), database.ServerTypeEmby)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

// fakeServer answers every probe with the reply registered for its message
func fakeServer(t *testing.T, replies map[string][]string) string {
	t.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 1024)
		for {
			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			for _, reply := range replies[string(buf[:n])] {
				_, _ = conn.WriteToUDP([]byte(reply), from)
			}
		}
	}()

	return conn.LocalAddr().String()
}

func TestFind_CollectsAndDedupes(t *testing.T) {
	addr := fakeServer(t, map[string][]string{
		"who is EmbyServer?": {
			`{"Address":"http://10.0.0.2:8096","Id":"emby-1","Name":"Den"}`,
			`{"Address":"http://10.0.0.2:8096","Id":"emby-1","Name":"Den"}`,
			`garbage`,
		},
		"who is JellyfinServer?": {
			`{"Address":"http://10.0.0.3:8096","Id":"jf-1","Name":"Attic"}`,
		},
	})

	servers, err := NewFinder(WithTarget(addr)).Find(context.Background(), 300*time.Millisecond)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("found %d servers, want 2: %+v", len(servers), servers)
	}
	if servers[0].Name != "Attic" || servers[0].Type != database.ServerTypeJellyfin {
		t.Errorf("servers[0] = %+v", servers[0])
	}
	if servers[1].ID != "emby-1" || servers[1].Type != database.ServerTypeEmby {
		t.Errorf("servers[1] = %+v", servers[1])
	}
}

func TestFind_NoAnswers(t *testing.T) {
	addr := fakeServer(t, nil)

	start := time.Now()
	servers, err := NewFinder(WithTarget(addr)).Find(context.Background(), 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(servers) != 0 {
		t.Fatalf("found %+v, want none", servers)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Find took %v", elapsed)
	}
}

func TestFind_CancelledContext(t *testing.T) {
	addr := fakeServer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if _, err := NewFinder(WithTarget(addr)).Find(ctx, time.Minute); err != nil {
		t.Fatalf("Find: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("cancelled Find took %v", elapsed)
	}
}
