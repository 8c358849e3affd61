package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatcherCoalescesBurst(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("deckd: {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var changes atomic.Int32
	w := NewWatcher(path, 100*time.Millisecond)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func() { changes.Add(1) })
	}()

	// Give fsnotify time to register the directory
	time.Sleep(100 * time.Millisecond)

	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte("deckd:\n  brightness: 50\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Unrelated files in the same directory are ignored
	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for changes.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	time.Sleep(300 * time.Millisecond)

	if got := changes.Load(); got != 1 {
		t.Errorf("changes = %d, want 1", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop on cancellation")
	}
}

func TestWatcherMissingDirectory(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "nope", "config.yaml"), 0)
	if err := w.Run(context.Background(), func() {}); err == nil {
		t.Fatal("Run() error = nil, want watch failure")
	}
}

func TestQuietTimerStop(t *testing.T) {
	var fired atomic.Bool
	q := newQuietTimer(20*time.Millisecond, func() { fired.Store(true) })
	q.Touch()
	q.Stop()
	time.Sleep(60 * time.Millisecond)
	if fired.Load() {
		t.Error("stopped timer fired")
	}
}
