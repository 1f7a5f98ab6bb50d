// Package testutil provides shared helpers for building temporary
// workspaces and indexes in tests.
package testutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/elena-cabrera/markdown-os/internal/search"
	"github.com/elena-cabrera/markdown-os/internal/storage"
)

// Logger returns a quiet structured logger for tests.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// TempWorkspace creates a workspace over a fresh temp directory seeded
// with the given relative path → content pairs.
func TempWorkspace(t *testing.T, files map[string]string) *storage.Workspace {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		WriteFile(t, root, rel, content)
	}
	ws, err := storage.NewWorkspace(root, nil)
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	t.Cleanup(ws.ReleaseAll)
	return ws
}

// WriteFile writes content at root/rel, creating parent directories.
func WriteFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", rel, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

// OpenIndex returns an in-memory search index that is closed with the
// test.
func OpenIndex(t *testing.T) *search.DB {
	t.Helper()
	idx, err := search.Open("")
	if err != nil {
		t.Fatalf("search.Open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

// Eventually polls cond every 10ms until it returns true or the timeout
// elapses, failing the test on timeout.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}
