// Copyright 2025 Buildarr Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package daemon

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/buildarr/buildarr/internal/log"
)

// defaultDebounce collapses a burst of filesystem events within this
// window into a single trigger.
const defaultDebounce = 2 * time.Second

// watcher watches the loaded configuration files for changes. Events are
// debounced, and the output channel is buffered with capacity one so that
// triggers arriving while a run is in progress collapse into at most one
// pending follow-up run.
type watcher struct {
	fsw      *fsnotify.Watcher
	files    map[string]bool
	debounce time.Duration
	events   chan string
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// newWatcher watches the parent directories of the given files, filtering
// events down to the files themselves. Watching directories rather than
// files keeps the watch alive across editors that replace files on save.
func newWatcher(files []string, debounce time.Duration, logger *slog.Logger) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	w := &watcher{
		fsw:      fsw,
		files:    make(map[string]bool, len(files)),
		debounce: debounce,
		events:   make(chan string, 1),
		logger:   log.WithComponent(logger, "watcher"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	dirs := make(map[string]bool)
	for _, file := range files {
		abs, err := filepath.Abs(file)
		if err != nil {
			fsw.Close()
			return nil, fmt.Errorf("resolving %q: %w", file, err)
		}
		w.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watching %q: %w", dir, err)
		}
	}

	go w.loop()
	return w, nil
}

// Events returns the debounced change channel. Values are the path of the
// most recently changed configuration file.
func (w *watcher) Events() <-chan string {
	return w.events
}

// Close stops the watcher and releases the underlying filesystem watches.
func (w *watcher) Close() error {
	close(w.stopCh)
	<-w.doneCh
	return w.fsw.Close()
}

func (w *watcher) loop() {
	defer close(w.doneCh)

	var (
		debounceTimer *time.Timer
		debounceC     <-chan time.Time
		lastPath      string
	)

	for {
		select {
		case <-w.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			watcherEvents.WithLabelValues(event.Op.String()).Inc()
			w.logger.Debug("Configuration file event",
				slog.String("path", event.Name),
				slog.String("op", event.Op.String()))
			lastPath = event.Name
			if debounceTimer == nil {
				debounceTimer = time.NewTimer(w.debounce)
				debounceC = debounceTimer.C
			} else {
				if !debounceTimer.Stop() {
					select {
					case <-debounceTimer.C:
					default:
					}
				}
				debounceTimer.Reset(w.debounce)
			}

		case <-debounceC:
			debounceTimer = nil
			debounceC = nil
			select {
			case w.events <- lastPath:
			default:
				// A trigger is already pending; coalesce.
				triggersCoalesced.Inc()
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", log.Error(err))
		}
	}
}

func (w *watcher) relevant(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) &&
		!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	return w.files[abs]
}
