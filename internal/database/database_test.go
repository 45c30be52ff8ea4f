package database

import (
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/saltyorg/embycord/internal/config"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInitializeDefaults_GeneratesIdentityOnce(t *testing.T) {
	db := openTestDB(t)

	first, err := db.EnsureDeviceUUID()
	if err != nil {
		t.Fatalf("EnsureDeviceUUID: %v", err)
	}
	if first == "" {
		t.Fatal("expected generated device uuid")
	}

	if err := db.InitializeDefaults(); err != nil {
		t.Fatalf("InitializeDefaults: %v", err)
	}
	second, _ := db.EnsureDeviceUUID()
	if first != second {
		t.Fatalf("device uuid changed: %q -> %q", first, second)
	}

	s := config.LoadSettings(config.NewLoader(db))
	if !s.DisplayStatus {
		t.Error("display status should default to true")
	}
	if s.UseTimeElapsed {
		t.Error("use time elapsed should default to false")
	}
	if s.DeviceUUID != first {
		t.Errorf("settings uuid = %q, want %q", s.DeviceUUID, first)
	}
}

func TestInitializeDefaults_KeepsExistingValues(t *testing.T) {
	db := openTestDB(t)

	if err := db.SetSettingJSON(config.KeyDisplayStatus, false); err != nil {
		t.Fatalf("SetSettingJSON: %v", err)
	}
	if err := db.InitializeDefaults(); err != nil {
		t.Fatalf("InitializeDefaults: %v", err)
	}

	if got, _ := db.GetSetting(config.KeyDisplayStatus); got != "false" {
		t.Fatalf("display status = %q, want false", got)
	}
}

func TestServers_PasswordEncryptedAtRest(t *testing.T) {
	db := openTestDB(t)

	s := &MediaServer{Address: "10.0.0.2", Port: 8096, Username: "alice", Password: "hunter2"}
	if err := db.CreateServer(s); err != nil {
		t.Fatalf("CreateServer: %v", err)
	}

	var stored string
	if err := db.queryRow("SELECT password FROM media_servers WHERE id = ?", s.ID).Scan(&stored); err != nil {
		t.Fatalf("read raw password: %v", err)
	}
	if stored == "hunter2" || stored == "" {
		t.Fatalf("password stored in clear: %q", stored)
	}

	got, err := db.GetServer(s.ID)
	if err != nil {
		t.Fatalf("GetServer: %v", err)
	}
	if got.Password != "hunter2" {
		t.Fatalf("password = %q, want hunter2", got.Password)
	}
	if got.Protocol != "http" || got.Type != ServerTypeEmby {
		t.Fatalf("defaults not applied: protocol=%q type=%q", got.Protocol, got.Type)
	}
}

func TestServers_Selection(t *testing.T) {
	db := openTestDB(t)

	a := &MediaServer{Name: "a", Address: "a.local", Port: 8096, Username: "u"}
	b := &MediaServer{Name: "b", Address: "b.local", Port: 8920, Protocol: "https", Username: "u", Type: ServerTypeJellyfin}
	for _, s := range []*MediaServer{a, b} {
		if err := db.CreateServer(s); err != nil {
			t.Fatalf("CreateServer(%s): %v", s.Name, err)
		}
	}

	selected, err := db.GetSelectedServer()
	if err != nil || selected == nil || selected.ID != a.ID {
		t.Fatalf("first server should be selected, got %+v err=%v", selected, err)
	}

	if err := db.SelectServer(b.ID); err != nil {
		t.Fatalf("SelectServer: %v", err)
	}
	selected, _ = db.GetSelectedServer()
	if selected == nil || selected.ID != b.ID {
		t.Fatalf("expected b selected, got %+v", selected)
	}

	if err := db.DeleteServer(b.ID); err != nil {
		t.Fatalf("DeleteServer: %v", err)
	}
	selected, _ = db.GetSelectedServer()
	if selected == nil || selected.ID != a.ID {
		t.Fatalf("expected fallback to a, got %+v", selected)
	}

	if err := db.SelectServer(999); !errors.Is(err, ErrServerNotFound) {
		t.Fatalf("SelectServer(999) err = %v, want ErrServerNotFound", err)
	}

	if err := db.DeselectServers(); err != nil {
		t.Fatalf("DeselectServers: %v", err)
	}
	if selected, _ = db.GetSelectedServer(); selected != nil {
		t.Fatalf("expected no selection, got %+v", selected)
	}
}

func TestServers_ToggleIgnoredView(t *testing.T) {
	db := openTestDB(t)

	s := &MediaServer{Address: "host", Port: 8096, Username: "u"}
	if err := db.CreateServer(s); err != nil {
		t.Fatalf("CreateServer: %v", err)
	}

	ignored, err := db.ToggleIgnoredView(s.ID, "lib-1")
	if err != nil || !ignored {
		t.Fatalf("first toggle = %v, %v; want true", ignored, err)
	}
	if _, err := db.ToggleIgnoredView(s.ID, "lib-2"); err != nil {
		t.Fatalf("toggle lib-2: %v", err)
	}

	got, _ := db.GetServer(s.ID)
	if !slices.Equal(got.IgnoredViews, []string{"lib-1", "lib-2"}) {
		t.Fatalf("ignored views = %v", got.IgnoredViews)
	}
	if !got.IsIgnored("lib-1") || got.IsIgnored("lib-3") || got.IsIgnored("") {
		t.Fatal("IsIgnored mismatch")
	}

	ignored, err = db.ToggleIgnoredView(s.ID, "lib-1")
	if err != nil || ignored {
		t.Fatalf("second toggle = %v, %v; want false", ignored, err)
	}
	got, _ = db.GetServer(s.ID)
	if !slices.Equal(got.IgnoredViews, []string{"lib-2"}) {
		t.Fatalf("ignored views after untoggle = %v", got.IgnoredViews)
	}
}

func TestCreateServer_Validation(t *testing.T) {
	db := openTestDB(t)

	tests := []struct {
		name   string
		server MediaServer
	}{
		{"missing address", MediaServer{Port: 8096, Username: "u"}},
		{"bad port", MediaServer{Address: "h", Port: 70000, Username: "u"}},
		{"bad protocol", MediaServer{Address: "h", Port: 8096, Protocol: "ftp", Username: "u"}},
		{"missing username", MediaServer{Address: "h", Port: 8096}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.server
			if err := db.CreateServer(&s); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestReset_KeepsDeviceIdentity(t *testing.T) {
	db := openTestDB(t)

	id, _ := db.EnsureDeviceUUID()
	if err := db.CreateServer(&MediaServer{Address: "h", Port: 8096, Username: "u", Password: "p"}); err != nil {
		t.Fatalf("CreateServer: %v", err)
	}
	if err := db.SetSettingJSON(config.KeyUseTimeElapsed, true); err != nil {
		t.Fatalf("SetSettingJSON: %v", err)
	}

	if err := db.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	servers, err := db.ListServers()
	if err != nil {
		t.Fatalf("ListServers: %v", err)
	}
	if len(servers) != 0 {
		t.Fatalf("expected no servers after reset, got %d", len(servers))
	}
	if got, _ := db.GetSetting(config.KeyUseTimeElapsed); got != "false" {
		t.Errorf("use_time_elapsed = %q, want default false", got)
	}
	if after, _ := db.EnsureDeviceUUID(); after != id {
		t.Errorf("device uuid changed across reset: %q -> %q", id, after)
	}
}

func TestParseServerType(t *testing.T) {
	tests := []struct {
		in      string
		want    ServerType
		wantErr bool
	}{
		{"", ServerTypeEmby, false},
		{"Emby", ServerTypeEmby, false},
		{" jellyfin ", ServerTypeJellyfin, false},
		{"plex", "", true},
	}
	for _, tt := range tests {
		got, err := ParseServerType(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseServerType(%q) = %q, %v", tt.in, got, err)
		}
	}
}
