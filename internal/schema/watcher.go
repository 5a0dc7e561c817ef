package schema

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reports changes to a schema file. The parent directory is watched
// so replacing the file by rename is seen as well.
type Watcher struct {
	file     string
	debounce time.Duration
	log      *slog.Logger
	watcher  *fsnotify.Watcher
	changes  chan struct{}
}

// NewWatcher starts watching file. Call Run to deliver events and Close to
// release the watcher.
func NewWatcher(file string, debounce time.Duration, log *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		fw.Close()
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		file:     abs,
		debounce: debounce,
		log:      log,
		watcher:  fw,
		changes:  make(chan struct{}, 1),
	}, nil
}

// Changes receives one value per settled burst of modifications. Pending
// notifications are merged, a slow reader only ever sees one.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Run delivers change notifications until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.file {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.log.Debug("schema file changed", slog.String("file", w.file))
			select {
			case w.changes <- struct{}{}:
			default:
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("schema watcher error", slog.String("error", err.Error()))
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
