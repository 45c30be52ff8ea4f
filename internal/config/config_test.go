package config

import (
	"testing"
	"time"
)

type mapGetter map[string]string

func (m mapGetter) GetSetting(key string) (string, error) {
	return m[key], nil
}

func TestLoaderReadsJSONEncodedValues(t *testing.T) {
	loader := NewLoader(mapGetter{
		"log.level":          `"debug"`,
		"presence.websocket": "false",
		"count":              "7",
		"broken":             "seven",
	})

	if got := loader.String("log.level", "info"); got != "debug" {
		t.Errorf("String() = %q, want %q", got, "debug")
	}
	if got := loader.Bool("presence.websocket", true); got {
		t.Errorf("Bool() = %v, want false", got)
	}
	if got := loader.Int("count", 1); got != 7 {
		t.Errorf("Int() = %d, want 7", got)
	}
	if got := loader.Int("broken", 3); got != 3 {
		t.Errorf("Int() with invalid value = %d, want default 3", got)
	}
	if got := loader.DurationSeconds("missing", 30); got != 30*time.Second {
		t.Errorf("DurationSeconds() = %v, want 30s", got)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		in    Settings
		check func(t *testing.T, s Settings)
	}{
		{
			name: "zero intervals get defaults",
			in:   Settings{},
			check: func(t *testing.T, s Settings) {
				if s.PollInterval != DefaultPollInterval {
					t.Errorf("PollInterval = %v, want %v", s.PollInterval, DefaultPollInterval)
				}
				if s.RetryDelay != DefaultRetryDelay {
					t.Errorf("RetryDelay = %v, want %v", s.RetryDelay, DefaultRetryDelay)
				}
			},
		},
		{
			name: "built-in client ids per server type",
			in:   Settings{},
			check: func(t *testing.T, s Settings) {
				if s.ClientID("emby") != DefaultClientIDEmby {
					t.Errorf("emby client id = %q", s.ClientID("emby"))
				}
				if s.ClientID("Jellyfin") != DefaultClientIDJellyfin {
					t.Errorf("jellyfin client id = %q", s.ClientID("Jellyfin"))
				}
			},
		},
		{
			name: "valid override wins, garbage override ignored",
			in: Settings{ClientIDs: map[string]string{
				"emby":     " 123456789012345678 ",
				"jellyfin": "not-an-id",
			}},
			check: func(t *testing.T, s Settings) {
				if s.ClientID("emby") != "123456789012345678" {
					t.Errorf("emby override = %q", s.ClientID("emby"))
				}
				if s.ClientID("jellyfin") != DefaultClientIDJellyfin {
					t.Errorf("jellyfin should fall back, got %q", s.ClientID("jellyfin"))
				}
			},
		},
		{
			name: "version 1 enables websocket",
			in:   Settings{Version: 1, UseWebSocket: false},
			check: func(t *testing.T, s Settings) {
				if !s.UseWebSocket {
					t.Error("expected UseWebSocket after upgrade from version 1")
				}
				if s.Version != CurrentSettingsVersion {
					t.Errorf("Version = %d, want %d", s.Version, CurrentSettingsVersion)
				}
			},
		},
		{
			name: "current version keeps websocket choice",
			in:   Settings{Version: CurrentSettingsVersion, UseWebSocket: false},
			check: func(t *testing.T, s Settings) {
				if s.UseWebSocket {
					t.Error("expected UseWebSocket to stay disabled")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, Normalize(tt.in))
		})
	}
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	in := Settings{ClientIDs: map[string]string{"emby": "123456789012345678"}}
	_ = Normalize(in)
	if len(in.ClientIDs) != 1 {
		t.Fatalf("input map modified: %v", in.ClientIDs)
	}
}

func TestCredentialEncryptorRoundTrip(t *testing.T) {
	secret, err := NewSecret()
	if err != nil {
		t.Fatalf("NewSecret() error: %v", err)
	}
	enc, err := NewCredentialEncryptor(secret)
	if err != nil {
		t.Fatalf("NewCredentialEncryptor() error: %v", err)
	}

	ciphertext, err := enc.Encrypt("hunter2")
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	if ciphertext == "hunter2" {
		t.Fatal("ciphertext equals plaintext")
	}

	plaintext, err := enc.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt() error: %v", err)
	}
	if plaintext != "hunter2" {
		t.Errorf("Decrypt() = %q, want %q", plaintext, "hunter2")
	}

	other, _ := NewCredentialEncryptor("another-secret")
	if _, err := other.Decrypt(ciphertext); err != ErrDecryptionFailed {
		t.Errorf("Decrypt with wrong key error = %v, want %v", err, ErrDecryptionFailed)
	}
}

func TestCredentialEncryptorRejectsEmptySecret(t *testing.T) {
	if _, err := NewCredentialEncryptor(""); err != ErrEmptySecret {
		t.Fatalf("error = %v, want %v", err, ErrEmptySecret)
	}
}
