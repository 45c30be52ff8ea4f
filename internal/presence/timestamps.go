package presence

import (
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/saltyorg/embycord/internal/mediabrowser"
)

// ticksPerSecond converts media server ticks (100ns) to seconds
const ticksPerSecond = 10000 * 1000

func ticksToSeconds(ticks int64) int64 {
	return int64(math.Round(float64(ticks) / ticksPerSecond))
}

// CalcEndTimestamp returns the unix second at which the playing item will end,
// assuming playback continues from its current position.
func CalcEndTimestamp(s mediabrowser.Session, nowUnix int64) int64 {
	if s.NowPlayingItem == nil {
		return nowUnix
	}
	return nowUnix + ticksToSeconds(s.NowPlayingItem.RunTimeTicks-s.PlayState.PositionTicks)
}

// CalcStartTimestamp returns the unix second at which playback of the item
// would have started had it never been paused.
func CalcStartTimestamp(s mediabrowser.Session, nowUnix int64) int64 {
	return nowUnix - ticksToSeconds(s.PlayState.PositionTicks)
}

// PredictedEnd returns the wall-clock time the current item ends, or the zero
// time when nothing is playing, playback is paused or the runtime is unknown.
func PredictedEnd(s mediabrowser.Session, now time.Time) time.Time {
	item := s.NowPlayingItem
	if item == nil || s.PlayState.IsPaused || item.RunTimeTicks <= 0 {
		return time.Time{}
	}

	remaining := item.RunTimeTicks - s.PlayState.PositionTicks
	if remaining < 0 {
		remaining = 0
	}
	return now.Add(time.Duration(remaining) * 100)
}

// IsEmpty reports whether v holds no meaningful value: nil, a blank string,
// an empty slice or map, or a nil pointer.
func IsEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []string:
		return len(x) == 0
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
