package presence

import (
	"fmt"
	"strings"
	"time"

	"github.com/saltyorg/embycord/internal/discord"
	"github.com/saltyorg/embycord/internal/mediabrowser"
)

// Options are the user preferences that shape an activity
type Options struct {
	// UseTimeElapsed shows time since start instead of time remaining
	UseTimeElapsed bool

	// ServerType is used as the large image key ("emby" or "jellyfin")
	ServerType string
}

// maxFieldLength is the longest details/state text the host accepts
const maxFieldLength = 128

const maxArtists = 3

// BuildActivity maps a playback session to a presence payload. It is a pure
// function of its inputs. A session without a playing item yields nil.
func BuildActivity(s mediabrowser.Session, opts Options, now time.Time) *discord.Activity {
	item := s.NowPlayingItem
	if item == nil {
		return nil
	}

	paused := s.PlayState.IsPaused
	label := "Watching"
	if item.Type == "Audio" {
		label = "Listening"
	}

	largeImage := strings.ToLower(opts.ServerType)
	if largeImage == "" {
		largeImage = "emby"
	}

	activity := &discord.Activity{
		Assets: &discord.Assets{
			LargeImage: largeImage,
			LargeText:  fmt.Sprintf("%s on %s", label, s.Client),
			SmallImage: "play",
			SmallText:  "Playing",
		},
		Instance: false,
	}
	if paused {
		activity.Assets.SmallImage = "pause"
		activity.Assets.SmallText = "Paused"
	} else {
		nowUnix := now.Unix()
		if opts.UseTimeElapsed {
			activity.Timestamps = &discord.Timestamps{Start: CalcStartTimestamp(s, nowUnix)}
		} else {
			activity.Timestamps = &discord.Timestamps{End: CalcEndTimestamp(s, nowUnix)}
		}
	}

	details, state := describe(item)
	activity.Details = truncate(details, maxFieldLength)
	activity.State = truncate(state, maxFieldLength)

	return activity
}

// describe returns the details and state lines for an item
func describe(item *mediabrowser.NowPlayingItem) (string, string) {
	switch item.Type {
	case "Episode":
		return "Watching " + withYear(item.SeriesName, item.ProductionYear), episodeLabel(item)
	case "Movie":
		return "Watching a Movie", withYear(item.Name, item.ProductionYear)
	case "MusicVideo":
		return "Watching " + withYear(item.Name, item.ProductionYear), byArtists(item.Artists)
	case "Audio":
		artists := item.Artists
		if IsEmpty(artists) {
			artists = make([]string, 0, len(item.AlbumArtists))
			for _, a := range item.AlbumArtists {
				if !IsEmpty(a.Name) {
					artists = append(artists, a.Name)
				}
			}
		}
		return "Listening to " + withYear(item.Name, item.ProductionYear), byArtists(artists)
	default:
		return "Watching Other Content", item.Name
	}
}

// episodeLabel renders "S01E03: Name", dropping each number that is absent
func episodeLabel(item *mediabrowser.NowPlayingItem) string {
	var seg strings.Builder
	if item.ParentIndexNumber != nil {
		fmt.Fprintf(&seg, "S%02d", *item.ParentIndexNumber)
	}
	if item.IndexNumber != nil {
		fmt.Fprintf(&seg, "E%02d", *item.IndexNumber)
	}
	if seg.Len() == 0 {
		return item.Name
	}
	return seg.String() + ": " + item.Name
}

func withYear(name string, year int) string {
	if year <= 0 {
		return name
	}
	return fmt.Sprintf("%s (%d)", name, year)
}

func byArtists(artists []string) string {
	if IsEmpty(artists) {
		return "Unknown Artist"
	}
	if len(artists) > maxArtists {
		artists = artists[:maxArtists]
	}
	return "By " + strings.Join(artists, ", ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// SelectSession returns the first session of username that is playing
// something, or nil. Usernames compare case-insensitively.
func SelectSession(sessions []mediabrowser.Session, username string) *mediabrowser.Session {
	for i := range sessions {
		s := &sessions[i]
		if s.NowPlayingItem != nil && strings.EqualFold(s.UserName, username) {
			return s
		}
	}
	return nil
}
