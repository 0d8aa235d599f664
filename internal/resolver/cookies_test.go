package resolver

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

type toggler struct {
	available atomic.Bool
}

func (t *toggler) SetCookiesAvailable(ok bool) { t.available.Store(ok) }

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCookieWatcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.txt")
	target := &toggler{}

	w, err := WatchCookies(path, target)
	if err != nil {
		t.Fatalf("WatchCookies failed: %v", err)
	}
	defer w.Close()

	if target.available.Load() {
		t.Fatal("Cookies should start unavailable")
	}

	if err := os.WriteFile(path, []byte("# Netscape HTTP Cookie File\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	waitFor(t, target.available.Load, "Cookies were not picked up")

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return !target.available.Load() }, "Cookies removal was not noticed")

	if err := w.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestWatchCookies_NoPath(t *testing.T) {
	if _, err := WatchCookies("", &toggler{}); err == nil {
		t.Error("Expected error for empty path")
	}
}
