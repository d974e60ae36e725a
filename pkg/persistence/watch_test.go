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

package persistence_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentrt/conductor/pkg/persistence"
)

func TestFileWatcherSignalsOnWrite(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "runs.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("initial"), 0644))

	fw, err := persistence.NewFileWatcher(dbPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 1)
	go fw.Watch(ctx, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})

	// Give the watch loop a moment to start before triggering events.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(dbPath, []byte("updated"), 0644))

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("expected a change signal after writing the watched file")
	}
}

func TestFileWatcherIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "runs.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("initial"), 0644))

	fw, err := persistence.NewFileWatcher(dbPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 1)
	go fw.Watch(ctx, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0644))

	select {
	case <-changed:
		t.Fatal("unrelated file write must not signal a change")
	case <-time.After(300 * time.Millisecond):
	}
}
