package update

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.2.0", "1.2.0", 0},
		{"1.2.0", "v1.2.0", 0},
		{"1.2", "1.2.0", 0},
		{"1.2.0", "1.10.0", -1},
		{"2.0.0", "1.99.99", 1},
		{"1.2.0-beta.1", "1.2.0", 0},
		{"dev", "0.0.1", -1},
		{"4.2.0", "4.2.1", -1},
	}

	for _, tt := range tests {
		if got := Compare(tt.a, tt.b); got != tt.want {
			t.Errorf("Compare(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func releaseServer(t *testing.T, tag string, hits *atomic.Int32) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/saltyorg/embycord/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		if r.Header.Get("User-Agent") != "embycord" {
			http.Error(w, "missing user agent", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tag_name":"` + tag + `","html_url":"https://github.com/saltyorg/embycord/releases/tag/` + tag + `"}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCheck(t *testing.T) {
	srv := releaseServer(t, "v1.3.0", nil)

	tests := []struct {
		current string
		pending bool
	}{
		{"1.2.9", true},
		{"1.3.0", false},
		{"1.4.0", false},
	}

	for _, tt := range tests {
		t.Run(tt.current, func(t *testing.T) {
			c := NewChecker("saltyorg", "embycord", tt.current, WithBaseURL(srv.URL))
			res, err := c.Check(context.Background())
			if err != nil {
				t.Fatalf("Check: %v", err)
			}
			if res.Pending != tt.pending || res.Latest != "v1.3.0" {
				t.Fatalf("result = %+v, want pending=%v", res, tt.pending)
			}
		})
	}
}

func TestCheck_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := NewChecker("saltyorg", "embycord", "1.0.0", WithBaseURL(srv.URL))
	if _, err := c.Check(context.Background()); err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestScheduler_RunsOnStart(t *testing.T) {
	var hits atomic.Int32
	srv := releaseServer(t, "2.0.0", &hits)

	results := make(chan Result, 1)
	s := NewScheduler(NewChecker("saltyorg", "embycord", "1.0.0", WithBaseURL(srv.URL)), "", func(r Result) {
		results <- r
	})
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	select {
	case r := <-results:
		if !r.Pending || r.Latest != "2.0.0" {
			t.Fatalf("result = %+v", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no check on start")
	}

	if last, ok := s.Last(); !ok || last.Latest != "2.0.0" {
		t.Fatalf("Last = %+v, %v", last, ok)
	}
	if next := s.NextRun(); next.Before(time.Now().Add(23 * time.Hour)) {
		t.Fatalf("next run = %v, want about a day from now", next)
	}
	if hits.Load() != 1 {
		t.Fatalf("hits = %d, want 1", hits.Load())
	}
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	s := NewScheduler(NewChecker("saltyorg", "embycord", "1.0.0"), "not a schedule", nil)
	if err := s.Start(); err == nil {
		s.Stop()
		t.Fatal("expected error for invalid schedule")
	}
}
