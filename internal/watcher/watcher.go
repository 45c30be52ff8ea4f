package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultDebounce is how long writes must settle before a reload fires
const DefaultDebounce = time.Second

// ReloadFunc is called once a burst of database writes has settled
type ReloadFunc func(ctx context.Context) error

// Watcher watches the settings database for changes made by other processes
// (the CLI editing servers or preferences while the daemon runs) and triggers
// a reload after writes settle.
type Watcher struct {
	dbPath   string
	reload   ReloadFunc
	debounce time.Duration
	watcher  *fsnotify.Watcher

	mu      sync.Mutex
	running bool
	pending *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Watcher
type Option func(*Watcher)

// WithDebounce overrides DefaultDebounce
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// New creates a watcher for the database at dbPath
func New(dbPath string, reload ReloadFunc, opts ...Option) (*Watcher, error) {
	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database path: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := &Watcher{
		dbPath:   absPath,
		reload:   reload,
		debounce: DefaultDebounce,
		watcher:  fsWatcher,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching the database directory
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	// sqlite replaces and creates sidecar files, so watch the directory
	dir := filepath.Dir(w.dbPath)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w.running = true
	w.wg.Add(1)
	go w.eventLoop()

	log.Info().Str("path", w.dbPath).Msg("Settings watcher started")
	return nil
}

// Stop stops the watcher and drops any pending reload
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	if w.pending != nil {
		w.pending.Stop()
		w.pending = nil
	}
	w.mu.Unlock()

	w.cancel()
	w.watcher.Close()
	w.wg.Wait()

	log.Info().Msg("Settings watcher stopped")
}

// IsRunning returns whether the watcher is currently running
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Settings watcher error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	if !w.isDatabaseFile(event.Name) {
		return
	}

	log.Trace().Str("path", event.Name).Str("op", event.Op.String()).Msg("Settings database changed")
	w.schedule()
}

// isDatabaseFile matches the database and its -wal/-journal sidecars
func (w *Watcher) isDatabaseFile(name string) bool {
	name = filepath.Clean(name)
	if name == w.dbPath {
		return true
	}
	suffix, ok := strings.CutPrefix(name, w.dbPath)
	if !ok {
		return false
	}
	return suffix == "-wal" || suffix == "-journal"
}

// schedule starts or resets the debounce timer
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	if w.pending != nil {
		w.pending.Reset(w.debounce)
		return
	}
	w.pending = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	w.mu.Lock()
	w.pending = nil
	running := w.running
	w.mu.Unlock()

	if !running {
		return
	}

	log.Debug().Msg("Settings changed on disk, reloading")
	if err := w.reload(w.ctx); err != nil {
		log.Error().Err(err).Msg("Failed to reload after settings change")
	}
}
