// Copyright 2025 Kadir Pekel
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

package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher watches a file-backed SQLStore's underlying database file
// for writes made by another process sharing the same file (e.g. a
// dashboard process and a CLI process both pointed at one sqlite
// database), and signals callers so they can drop any in-process cache
// of run/event state.
type FileWatcher struct {
	path    string
	watcher *fsnotify.Watcher
}

// NewFileWatcher starts watching dbPath's containing directory for
// changes to dbPath itself (sqlite writes a dedicated -wal/-journal
// file, so the directory must be watched rather than the file handle).
func NewFileWatcher(dbPath string) (*FileWatcher, error) {
	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return nil, fmt.Errorf("persistence: resolve path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("persistence: create file watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(absPath)); err != nil {
		w.Close()
		return nil, fmt.Errorf("persistence: watch directory %s: %w", filepath.Dir(absPath), err)
	}

	return &FileWatcher{path: absPath, watcher: w}, nil
}

// Watch runs until ctx is canceled, invoking onChange (debounced by
// 100ms to coalesce sqlite's multi-file write bursts) whenever the
// database file is written or recreated.
func (fw *FileWatcher) Watch(ctx context.Context, onChange func()) {
	defer fw.watcher.Close()

	dbFile := filepath.Base(fw.path)
	var debounce *time.Timer
	const debounceDelay = 100 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return

		case ev, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != dbFile {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, onChange)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("persistence: file watcher error", "error", err, "path", fw.path)
		}
	}
}

// Close stops the underlying watcher without waiting for Watch's
// context to be canceled.
func (fw *FileWatcher) Close() error {
	return fw.watcher.Close()
}
