package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(path, []byte("xss: flag\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	got := make(chan string, 4)
	w := New(nil, path, 20*time.Millisecond, func(b []byte) error {
		got <- string(b)
		return nil
	})
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("xss: block\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case s := <-got:
		if s != "xss: block\n" {
			t.Fatalf("unexpected contents %q", s)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload within 5s")
	}
}

func TestWatcherIgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(path, []byte("a: b\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	got := make(chan struct{}, 1)
	w := New(nil, path, 20*time.Millisecond, func([]byte) error {
		got <- struct{}{}
		return nil
	})
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case <-got:
		t.Fatal("reload fired for an unrelated file")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherStartStop(t *testing.T) {
	dir := t.TempDir()
	w := New(nil, filepath.Join(dir, "p.yaml"), 0, func([]byte) error { return nil })
	if w.debounce != DefaultDebounce {
		t.Fatalf("expected default debounce, got %s", w.debounce)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := w.Start(context.Background()); !errors.Is(err, ErrRunning) {
		t.Fatalf("expected ErrRunning, got %v", err)
	}
	w.Stop()
	w.Stop()
}

func TestWatcherMissingDirectory(t *testing.T) {
	w := New(nil, filepath.Join(t.TempDir(), "nope", "p.yaml"), 0, func([]byte) error { return nil })
	if err := w.Start(context.Background()); err == nil {
		w.Stop()
		t.Fatal("expected error for a missing directory")
	}
}
