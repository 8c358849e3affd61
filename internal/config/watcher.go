package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultQuietPeriod is how long the file must stay unchanged before a reload
const DefaultQuietPeriod = 500 * time.Millisecond

// Watcher reports settled changes to a single config file.
type Watcher struct {
	path  string
	quiet time.Duration
}

// NewWatcher creates a watcher for path. quiet <= 0 uses DefaultQuietPeriod.
func NewWatcher(path string, quiet time.Duration) *Watcher {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &Watcher{path: filepath.Clean(path), quiet: quiet}
}

// Path returns the watched file
func (w *Watcher) Path() string {
	return w.path
}

// Run watches until ctx is cancelled, calling onChange once per burst of writes.
// onChange runs on the watcher goroutine, so reloads never overlap.
// Returns an error only if the watch cannot be established.
func (w *Watcher) Run(ctx context.Context, onChange func()) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Close()

	// Watch the directory: editors often replace the file instead of writing it
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}

	settled := make(chan struct{}, 1)
	debounce := newQuietTimer(w.quiet, func() {
		select {
		case settled <- struct{}{}:
		default:
		}
	})
	defer debounce.Stop()

	log.Info().Str("path", w.path).Msg("Watching config file")

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("Config watcher shutting down")
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			log.Trace().Str("op", ev.Op.String()).Msg("Config file event")
			debounce.Touch()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("File watcher error")

		case <-settled:
			onChange()
		}
	}
}

// quietTimer fires fn once after no Touch calls for the quiet period
type quietTimer struct {
	mu    sync.Mutex
	timer *time.Timer
	quiet time.Duration
	fn    func()
}

func newQuietTimer(quiet time.Duration, fn func()) *quietTimer {
	return &quietTimer{quiet: quiet, fn: fn}
}

// Touch records activity and restarts the quiet period
func (q *quietTimer) Touch() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.timer != nil {
		q.timer.Stop()
	}
	q.timer = time.AfterFunc(q.quiet, q.fn)
}

// Stop cancels a pending fire
func (q *quietTimer) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.timer != nil {
		q.timer.Stop()
	}
}
