package services

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"stack-keeper/internal/config"
	"stack-keeper/internal/models"
)

func newTestWatchdog(t *testing.T, debounce int) (*Watchdog, string) {
	t.Helper()
	dir := t.TempDir()
	stack := &config.StackSpec{Services: []models.ServiceSpec{{
		Name:    "web",
		Command: "/bin/sh",
		WorkDir: dir,
		Watch:   &models.WatchSpec{Globs: []string{"*.txt"}, Debounce: debounce},
	}}}
	return NewWatchdog(stack), dir
}

func touchAt(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

/**
 * Test that services without watch rules compile into an empty rule set
 */
func TestWatchdogNoRules(t *testing.T) {
	stack := &config.StackSpec{Services: []models.ServiceSpec{{Name: "plain", Command: "/bin/sh"}}}
	w := NewWatchdog(stack)
	if w.RuleCount() != 0 {
		t.Fatalf("expected 0 rules, got %d", w.RuleCount())
	}
}

/**
 * Test that files existing at startup never trigger
 */
func TestWatchdogPrimeSuppressesBaseline(t *testing.T) {
	w, dir := newTestWatchdog(t, 1)
	now := time.Now()

	touchAt(t, filepath.Join(dir, "app.txt"), now.Add(-time.Hour))
	w.Prime()

	if got := w.Poll(now); got != nil {
		t.Errorf("baseline files triggered: %v", got)
	}
	if got := w.Poll(now.Add(10 * time.Second)); got != nil {
		t.Errorf("baseline files triggered after debounce window: %v", got)
	}
}

/**
 * Test the debounce window: detection opens it, the trigger fires once it
 * has been open for the full debounce, and only once per burst
 */
func TestWatchdogDebouncedTrigger(t *testing.T) {
	w, dir := newTestWatchdog(t, 2)
	now := time.Now()

	touchAt(t, filepath.Join(dir, "app.txt"), now.Add(-time.Hour))
	w.Prime()

	touchAt(t, filepath.Join(dir, "app.txt"), now)
	if got := w.Poll(now); got != nil {
		t.Fatalf("trigger fired inside the debounce window: %v", got)
	}

	got := w.Poll(now.Add(3 * time.Second))
	if len(got) != 1 || got[0] != "web" {
		t.Fatalf("expected [web], got %v", got)
	}

	// The burst is consumed; nothing fires until the next change.
	if got := w.Poll(now.Add(10 * time.Second)); got != nil {
		t.Errorf("trigger repeated without a new change: %v", got)
	}
}

/**
 * Test that changes during the window extend the tracked mtime but do not
 * restart the debounce
 */
func TestWatchdogBurstCoalesces(t *testing.T) {
	w, dir := newTestWatchdog(t, 2)
	now := time.Now()
	w.Prime()

	touchAt(t, filepath.Join(dir, "a.txt"), now)
	if got := w.Poll(now); got != nil {
		t.Fatalf("unexpected trigger: %v", got)
	}
	touchAt(t, filepath.Join(dir, "b.txt"), now.Add(time.Second))
	if got := w.Poll(now.Add(time.Second)); got != nil {
		t.Fatalf("unexpected trigger: %v", got)
	}

	got := w.Poll(now.Add(2 * time.Second))
	if len(got) != 1 || got[0] != "web" {
		t.Fatalf("expected one coalesced trigger, got %v", got)
	}
}

/**
 * Test that non-matching files are ignored
 */
func TestWatchdogGlobFilter(t *testing.T) {
	w, dir := newTestWatchdog(t, 1)
	now := time.Now()
	w.Prime()

	touchAt(t, filepath.Join(dir, "ignored.log"), now)
	if got := w.Poll(now.Add(5 * time.Second)); got != nil {
		t.Errorf("non-matching file triggered: %v", got)
	}
}
