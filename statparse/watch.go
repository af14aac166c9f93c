package statparse

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period after the last file event before
// the watcher fires. Simulators rewrite a dump with many small writes;
// debouncing coalesces them into one re-parse.
const DefaultDebounce = 500 * time.Millisecond

// A Watcher triggers a callback when statistics files under a root
// change. New directories are picked up as they appear, so a run that
// creates benchmark/configuration/seed subtrees on the fly is still
// observed.
type Watcher struct {
	// Root is the directory tree to observe.
	Root string

	// Pattern is the leaf file name to match, e.g. "stats.txt".
	// Empty matches every file.
	Pattern string

	// Debounce is the quiet period before OnChange fires. Zero means
	// DefaultDebounce.
	Debounce time.Duration

	// OnChange is called once per settled burst of changes.
	OnChange func()

	// Logger receives watch events. Nil means no logging.
	Logger *zap.Logger
}

func (w *Watcher) logger() *zap.Logger {
	if w.Logger == nil {
		return zap.NewNop()
	}
	return w.Logger.Named("watcher")
}

func (w *Watcher) debounce() time.Duration {
	if w.Debounce <= 0 {
		return DefaultDebounce
	}
	return w.Debounce
}

// Watch blocks, observing the tree until ctx is done. It returns nil on
// cancellation and an error only for watcher setup or runtime faults.
func (w *Watcher) Watch(ctx context.Context) error {
	if w.Root == "" {
		return fmt.Errorf("statparse: watch root not set")
	}
	log := w.logger()

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("statparse: creating watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.Root); err != nil {
		return err
	}
	log.Info("watching", zap.String("root", w.Root))

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			// Descend into directories created after startup.
			if ev.Op.Has(fsnotify.Create) {
				if err := w.addTree(fw, ev.Name); err != nil {
					log.Warn("cannot watch new path", zap.String("path", ev.Name), zap.Error(err))
				}
			}
			if !w.matches(ev.Name) {
				continue
			}
			if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Remove) {
				continue
			}
			log.Debug("change", zap.String("path", ev.Name), zap.Stringer("op", ev.Op))
			if timer == nil {
				timer = time.NewTimer(w.debounce())
				fire = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce())
			}

		case <-fire:
			timer, fire = nil, nil
			if w.OnChange != nil {
				w.OnChange()
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("statparse: watch: %w", err)
		}
	}
}

// addTree registers path and, when it is a directory, every directory
// below it. Paths that vanish mid-walk are skipped.
func (w *Watcher) addTree(fw *fsnotify.Watcher, path string) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == path {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		return fw.Add(p)
	})
}

// matches reports whether a changed path names a statistics file.
func (w *Watcher) matches(path string) bool {
	if w.Pattern == "" {
		return true
	}
	ok, err := filepath.Match(w.Pattern, filepath.Base(path))
	return err == nil && ok
}
