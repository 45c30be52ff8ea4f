package httpclient

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func TestRedactURL(t *testing.T) {
	u, _ := url.Parse("http://media.local:8096/socket?api_key=secret&deviceId=abc")
	got := redactURL(u)
	if strings.Contains(got, "secret") {
		t.Errorf("redactURL() leaked api key: %s", got)
	}
	if !strings.Contains(got, "deviceId=abc") {
		t.Errorf("redactURL() dropped non-sensitive param: %s", got)
	}
}

func TestRedactHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("X-Emby-Token", "tok")
	h.Set("Authorization", `Emby Client="Other", Device="d", DeviceId="id", Version="1.0", Token="tok"`)
	h.Set("Accept", "application/json")

	out := redactHeaders(h)
	if out["X-Emby-Token"] != "[redacted]" {
		t.Errorf("X-Emby-Token = %v", out["X-Emby-Token"])
	}
	if auth := out["Authorization"].(string); strings.Contains(auth, `"tok"`) {
		t.Errorf("Authorization leaked token: %s", auth)
	}
	if out["Accept"] != "application/json" {
		t.Errorf("Accept = %v", out["Accept"])
	}
}

func TestScrubTokens(t *testing.T) {
	body := []byte(`{"AccessToken":"abc","User":{"Id":"u1"}}`)
	got := string(scrubTokens(body))
	if strings.Contains(got, "abc") {
		t.Errorf("scrubTokens() leaked token: %s", got)
	}
	if !strings.Contains(got, "u1") {
		t.Errorf("scrubTokens() dropped user: %s", got)
	}

	plain := []byte(`[{"Id":"1"}]`)
	if string(scrubTokens(plain)) != string(plain) {
		t.Error("scrubTokens() should pass through non-auth bodies")
	}
}
