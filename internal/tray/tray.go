package tray

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/getlantern/systray"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/embycord/internal/presence"
	"github.com/saltyorg/embycord/internal/update"
)

// Tray is the system tray icon and menu
type Tray struct {
	actions *Actions
	sync    Synchronizer

	status   *systray.MenuItem
	update   *systray.MenuItem
	display  *systray.MenuItem
	elapsed  *systray.MenuItem
	autorun  *systray.MenuItem
	debugLog *systray.MenuItem
	quit     *systray.MenuItem
	servers  []serverItem

	mu            sync.Mutex
	ready         bool
	pendingUpdate *update.Result
}

type serverItem struct {
	id   int64
	item *systray.MenuItem
}

// New creates the tray
func New(actions *Actions, sync Synchronizer) *Tray {
	return &Tray{actions: actions, sync: sync}
}

// Run shows the tray and blocks until ctx is done or Quit is clicked.
// It must be called from the main goroutine.
func (t *Tray) Run(ctx context.Context, cancel context.CancelFunc) {
	go func() {
		<-ctx.Done()
		systray.Quit()
	}()
	systray.Run(func() { t.onReady(ctx, cancel) }, func() { cancel() })
}

// SetUpdate shows the update line once a newer release exists. It may be
// called before the menu is built.
func (t *Tray) SetUpdate(res update.Result) {
	if !res.Pending {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.ready {
		t.pendingUpdate = &res
		return
	}
	t.showUpdate(res)
}

func (t *Tray) showUpdate(res update.Result) {
	t.update.SetTitle("Update available: " + res.Latest)
	t.update.SetTooltip(res.URL)
	t.update.Show()
}

func (t *Tray) onReady(ctx context.Context, cancel context.CancelFunc) {
	systray.SetIcon(icon)
	systray.SetTooltip("embycord")

	t.status = systray.AddMenuItem("Starting…", "")
	t.status.Disable()
	t.update = systray.AddMenuItem("", "")
	t.update.Disable()
	t.update.Hide()
	systray.AddSeparator()

	t.display = systray.AddMenuItemCheckbox("Display as status", "Show what you are playing on your profile", t.actions.DisplayStatus())
	t.elapsed = systray.AddMenuItemCheckbox("Show elapsed time", "Show time elapsed instead of time remaining", t.actions.UseTimeElapsed())

	serversMenu := systray.AddMenuItem("Servers", "Switch media server")
	for _, s := range t.actions.Servers() {
		item := serversMenu.AddSubMenuItemCheckbox(s.DisplayName(), string(s.Type), s.Selected)
		t.servers = append(t.servers, serverItem{id: s.ID, item: item})
	}
	if len(t.servers) == 0 {
		serversMenu.Disable()
	}

	systray.AddSeparator()
	t.autorun = systray.AddMenuItemCheckbox("Launch at login", "Start embycord when you log in", t.actions.LaunchAtLogin())
	t.debugLog = systray.AddMenuItemCheckbox("Debug logging", "Write debug output to the log file", t.actions.DebugLogging())
	systray.AddSeparator()
	t.quit = systray.AddMenuItem("Quit", "Exit embycord")

	t.mu.Lock()
	t.ready = true
	if t.pendingUpdate != nil {
		t.showUpdate(*t.pendingUpdate)
		t.pendingUpdate = nil
	}
	t.mu.Unlock()

	t.sync.OnChange(t.render)
	t.render(t.sync.Status())

	for _, s := range t.servers {
		go t.watchServer(ctx, s)
	}
	go t.loop(ctx, cancel)
}

func (t *Tray) render(st presence.Status) {
	t.status.SetTitle(StatusTitle(st))
	systray.SetTooltip(Tooltip(st))
}

func (t *Tray) loop(ctx context.Context, cancel context.CancelFunc) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("stack", string(debug.Stack())).Msg("Tray loop panicked")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.display.ClickedCh:
			on, err := t.actions.ToggleDisplayStatus(ctx)
			t.apply(t.display, on, err, "display status")
		case <-t.elapsed.ClickedCh:
			on, err := t.actions.ToggleTimeElapsed(ctx)
			t.apply(t.elapsed, on, err, "elapsed time")
		case <-t.autorun.ClickedCh:
			on, err := t.actions.ToggleLaunchAtLogin()
			t.apply(t.autorun, on, err, "launch at login")
		case <-t.debugLog.ClickedCh:
			on, err := t.actions.ToggleDebugLogging()
			t.apply(t.debugLog, on, err, "debug logging")
		case <-t.quit.ClickedCh:
			log.Info().Msg("Quit requested from tray")
			cancel()
			return
		}
	}
}

func (t *Tray) watchServer(ctx context.Context, s serverItem) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.item.ClickedCh:
			if err := t.actions.SelectServer(ctx, s.id); err != nil {
				log.Error().Err(err).Int64("server_id", s.id).Msg("Failed to switch server")
				continue
			}
			for _, other := range t.servers {
				setChecked(other.item, other.id == s.id)
			}
		}
	}
}

func (t *Tray) apply(item *systray.MenuItem, on bool, err error, what string) {
	if err != nil {
		log.Error().Err(err).Str("setting", what).Msg("Failed to change setting")
	}
	setChecked(item, on)
}

func setChecked(item *systray.MenuItem, on bool) {
	if on {
		item.Check()
	} else {
		item.Uncheck()
	}
}
