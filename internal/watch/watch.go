// Package watch re-runs a callback when the events file changes on disk.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"pumpscope/internal/logger"
)

const defaultDebounce = 2 * time.Second

// Watcher fires OnChange once per burst of writes to a single file. The parent
// directory is watched so editors that save by rename are still seen.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(ctx context.Context)
}

func New(path string, debounce time.Duration, onChange func(ctx context.Context)) (*Watcher, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("watch: path is required")
	}
	if onChange == nil {
		return nil, fmt.Errorf("watch: onChange is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{path: abs, debounce: debounce, onChange: onChange}, nil
}

// Run blocks until ctx is cancelled. OnChange runs on the watcher goroutine,
// so changes made while it runs are coalesced into the next call.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	logger.Infof("watching %s (debounce %s)", w.path, w.debounce)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(evt) {
				continue
			}
			logger.Debugf("watch event %s %s", evt.Op, evt.Name)
			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.debounce)
			pending = true
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("watch error: %v", err)
		case <-timer.C:
			pending = false
			w.onChange(ctx)
		}
	}
}

func (w *Watcher) relevant(evt fsnotify.Event) bool {
	if filepath.Clean(evt.Name) != w.path {
		return false
	}
	return evt.Has(fsnotify.Write) || evt.Has(fsnotify.Create) || evt.Has(fsnotify.Rename)
}
