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
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const watchTimeout = 5 * time.Second

func waitForEvent(t *testing.T, events <-chan string) string {
	t.Helper()
	select {
	case path := <-events:
		return path
	case <-time.After(watchTimeout):
		t.Fatal("timed out waiting for a watcher event")
		return ""
	}
}

func expectNoEvent(t *testing.T, events <-chan string, within time.Duration) {
	t.Helper()
	select {
	case path := <-events:
		t.Fatalf("unexpected watcher event for %q", path)
	case <-time.After(within):
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "buildarr.yml")
	require.NoError(t, os.WriteFile(path, []byte("dummy: {}\n"), 0o644))

	w, err := newWatcher([]string{path}, 100*time.Millisecond, slog.Default())
	require.NoError(t, err)
	defer w.Close()

	// A burst of writes inside the debounce window yields one event.
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("dummy: {}\n"), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	got := waitForEvent(t, w.Events())
	require.Equal(t, path, got)
	expectNoEvent(t, w.Events(), 300*time.Millisecond)

	// A later write is a fresh trigger.
	require.NoError(t, os.WriteFile(path, []byte("dummy: {hostname: x}\n"), 0o644))
	waitForEvent(t, w.Events())
}

func TestWatcherIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "buildarr.yml")
	unrelated := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(watched, []byte("dummy: {}\n"), 0o644))

	w, err := newWatcher([]string{watched}, 50*time.Millisecond, slog.Default())
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(unrelated, []byte("scratch\n"), 0o644))
	expectNoEvent(t, w.Events(), 300*time.Millisecond)
}

func TestWatcherSurvivesFileReplacement(t *testing.T) {
	// Editors often save by writing a temp file and renaming it over the
	// original. The directory watch keeps events flowing afterwards.
	dir := t.TempDir()
	path := filepath.Join(dir, "buildarr.yml")
	replacement := filepath.Join(dir, "buildarr.yml.tmp")
	require.NoError(t, os.WriteFile(path, []byte("dummy: {}\n"), 0o644))

	w, err := newWatcher([]string{path}, 50*time.Millisecond, slog.Default())
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(replacement, []byte("dummy: {port: 5001}\n"), 0o644))
	require.NoError(t, os.Rename(replacement, path))
	waitForEvent(t, w.Events())

	require.NoError(t, os.WriteFile(path, []byte("dummy: {port: 5002}\n"), 0o644))
	waitForEvent(t, w.Events())
}

func TestWatcherCloseStopsLoop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "buildarr.yml")
	require.NoError(t, os.WriteFile(path, []byte("dummy: {}\n"), 0o644))

	w, err := newWatcher([]string{path}, 50*time.Millisecond, slog.Default())
	require.NoError(t, err)
	require.NoError(t, w.Close())
}
