package presence

import (
	"reflect"
	"testing"
	"time"

	"github.com/saltyorg/embycord/internal/mediabrowser"
)

func intPtr(v int) *int { return &v }

func episodeSession() mediabrowser.Session {
	return mediabrowser.Session{
		UserName: "alice",
		Client:   "Android",
		NowPlayingItem: &mediabrowser.NowPlayingItem{
			ID:                "item-9",
			Type:              "Episode",
			SeriesName:        "Foo",
			ParentIndexNumber: intPtr(1),
			IndexNumber:       intPtr(3),
			Name:              "Pilot",
			RunTimeTicks:      36000000000,
		},
		PlayState: mediabrowser.PlayState{IsPaused: false, PositionTicks: 6000000000},
	}
}

func TestBuildActivity_EpisodeScenario(t *testing.T) {
	now := time.Unix(1700000000, 0)

	a := BuildActivity(episodeSession(), Options{ServerType: "emby"}, now)
	if a == nil {
		t.Fatal("expected activity")
	}
	if a.Details != "Watching Foo" {
		t.Errorf("details = %q", a.Details)
	}
	if a.State != "S01E03: Pilot" {
		t.Errorf("state = %q", a.State)
	}
	if a.Timestamps == nil || a.Timestamps.Start != 0 {
		t.Fatalf("expected only an end timestamp, got %+v", a.Timestamps)
	}
	// 3600s runtime, 600s in
	if got := a.Timestamps.End - now.Unix(); got != 3000 {
		t.Errorf("end - now = %d, want 3000", got)
	}
	if a.Assets.LargeImage != "emby" || a.Assets.LargeText != "Watching on Android" {
		t.Errorf("large assets = %+v", a.Assets)
	}
	if a.Assets.SmallImage != "play" || a.Assets.SmallText != "Playing" {
		t.Errorf("small assets = %+v", a.Assets)
	}
	if a.Instance {
		t.Error("instance must be false")
	}
}

func TestBuildActivity_Timestamps(t *testing.T) {
	now := time.Unix(1700000000, 0)

	tests := []struct {
		name      string
		paused    bool
		elapsed   bool
		wantStart int64
		wantEnd   int64
		wantNone  bool
	}{
		{name: "remaining", wantEnd: 1700003000},
		{name: "elapsed", elapsed: true, wantStart: 1699999400},
		{name: "paused remaining", paused: true, wantNone: true},
		{name: "paused elapsed", paused: true, elapsed: true, wantNone: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := episodeSession()
			s.PlayState.IsPaused = tt.paused

			a := BuildActivity(s, Options{UseTimeElapsed: tt.elapsed}, now)
			if tt.wantNone {
				if a.Timestamps != nil {
					t.Fatalf("paused session has timestamps %+v", a.Timestamps)
				}
				if a.Assets.SmallImage != "pause" || a.Assets.SmallText != "Paused" {
					t.Fatalf("paused assets = %+v", a.Assets)
				}
				return
			}
			if a.Timestamps == nil {
				t.Fatal("expected timestamps")
			}
			if a.Timestamps.Start != tt.wantStart || a.Timestamps.End != tt.wantEnd {
				t.Fatalf("timestamps = %+v, want start=%d end=%d", a.Timestamps, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestBuildActivity_Formats(t *testing.T) {
	now := time.Unix(1700000000, 0)

	tests := []struct {
		name        string
		item        mediabrowser.NowPlayingItem
		wantDetails string
		wantState   string
		wantLarge   string
	}{
		{
			name:        "episode with year",
			item:        mediabrowser.NowPlayingItem{Type: "Episode", SeriesName: "Foo", ProductionYear: 2019, ParentIndexNumber: intPtr(2), IndexNumber: intPtr(11), Name: "Bar"},
			wantDetails: "Watching Foo (2019)",
			wantState:   "S02E11: Bar",
			wantLarge:   "Watching on Web",
		},
		{
			name:        "episode without season",
			item:        mediabrowser.NowPlayingItem{Type: "Episode", SeriesName: "Foo", IndexNumber: intPtr(4), Name: "Bar"},
			wantDetails: "Watching Foo",
			wantState:   "E04: Bar",
			wantLarge:   "Watching on Web",
		},
		{
			name:        "episode without numbers",
			item:        mediabrowser.NowPlayingItem{Type: "Episode", SeriesName: "Foo", Name: "Special"},
			wantDetails: "Watching Foo",
			wantState:   "Special",
			wantLarge:   "Watching on Web",
		},
		{
			name:        "movie",
			item:        mediabrowser.NowPlayingItem{Type: "Movie", Name: "Heat", ProductionYear: 1995},
			wantDetails: "Watching a Movie",
			wantState:   "Heat (1995)",
			wantLarge:   "Watching on Web",
		},
		{
			name:        "movie without year",
			item:        mediabrowser.NowPlayingItem{Type: "Movie", Name: "Heat"},
			wantDetails: "Watching a Movie",
			wantState:   "Heat",
			wantLarge:   "Watching on Web",
		},
		{
			name:        "music video",
			item:        mediabrowser.NowPlayingItem{Type: "MusicVideo", Name: "Clip", ProductionYear: 2001, Artists: []string{"A", "B", "C", "D"}},
			wantDetails: "Watching Clip (2001)",
			wantState:   "By A, B, C",
			wantLarge:   "Watching on Web",
		},
		{
			name:        "music video without artists",
			item:        mediabrowser.NowPlayingItem{Type: "MusicVideo", Name: "Clip"},
			wantDetails: "Watching Clip",
			wantState:   "Unknown Artist",
			wantLarge:   "Watching on Web",
		},
		{
			name:        "audio",
			item:        mediabrowser.NowPlayingItem{Type: "Audio", Name: "Song", ProductionYear: 1984, Artists: []string{"X"}},
			wantDetails: "Listening to Song (1984)",
			wantState:   "By X",
			wantLarge:   "Listening on Web",
		},
		{
			name: "audio album artists fallback",
			item: mediabrowser.NowPlayingItem{Type: "Audio", Name: "Song", AlbumArtists: []mediabrowser.NameIDPair{
				{Name: "P"}, {Name: "Q"}, {Name: "R"}, {Name: "S"},
			}},
			wantDetails: "Listening to Song",
			wantState:   "By P, Q, R",
			wantLarge:   "Listening on Web",
		},
		{
			name:        "audio unknown artist",
			item:        mediabrowser.NowPlayingItem{Type: "Audio", Name: "Song"},
			wantDetails: "Listening to Song",
			wantState:   "Unknown Artist",
			wantLarge:   "Listening on Web",
		},
		{
			name:        "other",
			item:        mediabrowser.NowPlayingItem{Type: "TvChannel", Name: "News"},
			wantDetails: "Watching Other Content",
			wantState:   "News",
			wantLarge:   "Watching on Web",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := tt.item
			s := mediabrowser.Session{UserName: "alice", Client: "Web", NowPlayingItem: &item}

			a := BuildActivity(s, Options{ServerType: "jellyfin"}, now)
			if a.Details != tt.wantDetails {
				t.Errorf("details = %q, want %q", a.Details, tt.wantDetails)
			}
			if a.State != tt.wantState {
				t.Errorf("state = %q, want %q", a.State, tt.wantState)
			}
			if a.Assets.LargeText != tt.wantLarge {
				t.Errorf("large text = %q, want %q", a.Assets.LargeText, tt.wantLarge)
			}
			if a.Assets.LargeImage != "jellyfin" {
				t.Errorf("large image = %q", a.Assets.LargeImage)
			}
		})
	}
}

func TestBuildActivity_Idempotent(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s := episodeSession()

	first := BuildActivity(s, Options{ServerType: "emby"}, now)
	second := BuildActivity(s, Options{ServerType: "emby"}, now)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("mapping not idempotent:\n%+v\n%+v", first, second)
	}
}

func TestBuildActivity_NoItem(t *testing.T) {
	if a := BuildActivity(mediabrowser.Session{UserName: "alice"}, Options{}, time.Now()); a != nil {
		t.Fatalf("expected nil activity, got %+v", a)
	}
}

func TestBuildActivity_TruncatesLongFields(t *testing.T) {
	long := make([]rune, 200)
	for i := range long {
		long[i] = 'x'
	}
	s := mediabrowser.Session{NowPlayingItem: &mediabrowser.NowPlayingItem{Type: "Movie", Name: string(long)}}

	a := BuildActivity(s, Options{}, time.Now())
	if n := len([]rune(a.State)); n != maxFieldLength {
		t.Fatalf("state length = %d, want %d", n, maxFieldLength)
	}
}

func TestCalcEndTimestamp_Monotonic(t *testing.T) {
	s := episodeSession()
	remaining := ticksToSeconds(s.NowPlayingItem.RunTimeTicks - s.PlayState.PositionTicks)

	prev := int64(-1)
	for _, now := range []int64{0, 1, 1000, 1700000000, 1700000001} {
		end := CalcEndTimestamp(s, now)
		if end <= prev {
			t.Fatalf("CalcEndTimestamp not increasing at %d: %d <= %d", now, end, prev)
		}
		if end-now != remaining {
			t.Fatalf("end - now = %d, want %d", end-now, remaining)
		}
		prev = end
	}
}

func TestTicksRounding(t *testing.T) {
	s := mediabrowser.Session{
		NowPlayingItem: &mediabrowser.NowPlayingItem{RunTimeTicks: 15_000_000},
		PlayState:      mediabrowser.PlayState{PositionTicks: 0},
	}
	// 1.5s rounds half away from zero
	if got := CalcEndTimestamp(s, 100); got != 102 {
		t.Fatalf("CalcEndTimestamp = %d, want 102", got)
	}
}

func TestPredictedEnd(t *testing.T) {
	now := time.Unix(1700000000, 0)

	s := episodeSession()
	if got := PredictedEnd(s, now); !got.Equal(now.Add(3000 * time.Second)) {
		t.Fatalf("PredictedEnd = %v", got)
	}

	s.PlayState.IsPaused = true
	if got := PredictedEnd(s, now); !got.IsZero() {
		t.Fatalf("paused PredictedEnd = %v, want zero", got)
	}

	s = episodeSession()
	s.NowPlayingItem.RunTimeTicks = 0
	if got := PredictedEnd(s, now); !got.IsZero() {
		t.Fatalf("unknown runtime PredictedEnd = %v, want zero", got)
	}
}

func TestSelectSession(t *testing.T) {
	item := &mediabrowser.NowPlayingItem{Type: "Movie", Name: "Heat"}
	sessions := []mediabrowser.Session{
		{ID: "1", UserName: "alice"},
		{ID: "2", UserName: "bob", NowPlayingItem: item},
		{ID: "3", UserName: "ALICE", NowPlayingItem: item},
		{ID: "4", UserName: "alice", NowPlayingItem: item},
	}

	got := SelectSession(sessions, "Alice")
	if got == nil || got.ID != "3" {
		t.Fatalf("SelectSession = %+v, want session 3", got)
	}
	if SelectSession(sessions, "carol") != nil {
		t.Fatal("expected no session for carol")
	}
	if SelectSession(nil, "alice") != nil {
		t.Fatal("expected no session for empty list")
	}
}

func TestIsEmpty(t *testing.T) {
	var nilPtr *int
	tests := []struct {
		in   any
		want bool
	}{
		{nil, true},
		{"", true},
		{"   ", true},
		{"x", false},
		{[]string{}, true},
		{[]string{"a"}, false},
		{nilPtr, true},
		{intPtr(0), false},
		{map[string]int{}, true},
		{0, false},
	}
	for _, tt := range tests {
		if got := IsEmpty(tt.in); got != tt.want {
			t.Errorf("IsEmpty(%#v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
