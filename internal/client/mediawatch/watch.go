// Package mediawatch keeps the media index current while the folder is
// edited outside a sync, so the next sync does not need a full rescan.
package mediawatch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dmitrijs2005/ankisync/internal/logging"
	"github.com/fsnotify/fsnotify"
)

// Toucher records the current state of one media file.
type Toucher interface {
	Touch(ctx context.Context, fname string) error
}

type Watcher struct {
	store Toucher
	dir   string
	log   logging.Logger
	w     *fsnotify.Watcher
}

// New starts watching dir. Events are only consumed once Run is called.
func New(store Toucher, dir string, log logging.Logger) (*Watcher, error) {
	if log == nil {
		log = logging.Nop()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch media folder %s: %w", dir, err)
	}
	return &Watcher{store: store, dir: dir, log: log, w: w}, nil
}

// Run feeds folder events to the store until ctx is done, then closes the
// watcher. Store errors are logged and do not stop the loop.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.w.Close()
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
				!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if filepath.Dir(ev.Name) != filepath.Clean(w.dir) {
				continue
			}
			name := filepath.Base(ev.Name)
			if err := w.store.Touch(ctx, name); err != nil && !errors.Is(err, context.Canceled) {
				w.log.Warn(ctx, "failed to record media change", "file", name, "error", err)
			}

		case err, ok := <-w.w.Errors:
			if !ok {
				return nil
			}
			w.log.Error(ctx, "media watcher error", "error", err)
		}
	}
}
