package batch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWatcher_EnqueuePairsAndSkips(t *testing.T) {
	dir := t.TempDir()
	p := NewPool(PoolOptions{Runner: &fakeRunner{}, Workers: 1, QueueSize: 4, Log: zerolog.Nop()})
	w := NewWatcher(p, dir, zerolog.Nop())

	_, sub := writeTestPair(t, dir, "film")
	w.enqueue(sub)

	orphan := filepath.Join(dir, "orphan.srt")
	if err := os.WriteFile(orphan, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}
	w.enqueue(orphan)

	st := w.Status()
	if st.FilesQueued != 1 {
		t.Errorf("FilesQueued = %d, want 1", st.FilesQueued)
	}
	if st.FilesSkipped != 1 {
		t.Errorf("FilesSkipped = %d, want 1", st.FilesSkipped)
	}
	if got := p.Stats().Pending; got != 1 {
		t.Errorf("Pending = %d, want 1", got)
	}
}

func TestWatcher_QueueFullSkips(t *testing.T) {
	dir := t.TempDir()
	p := NewPool(PoolOptions{Runner: &fakeRunner{}, Workers: 1, QueueSize: 1, Log: zerolog.Nop()})
	w := NewWatcher(p, dir, zerolog.Nop())

	_, sub1 := writeTestPair(t, dir, "a")
	_, sub2 := writeTestPair(t, dir, "b")
	w.enqueue(sub1)
	w.enqueue(sub2)

	if got := w.Status().FilesSkipped; got != 1 {
		t.Errorf("FilesSkipped = %d, want 1 when the queue is full", got)
	}
}

func TestWatcher_Lifecycle(t *testing.T) {
	dir := t.TempDir()
	p := NewPool(PoolOptions{Runner: &fakeRunner{}, Workers: 1, QueueSize: 4, Log: zerolog.Nop()})
	w := NewWatcher(p, dir, zerolog.Nop())

	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := w.Status().Status; got != "watching" {
		t.Errorf("status = %q, want watching", got)
	}

	w.Stop()
	if got := w.Status().Status; got != "stopped" {
		t.Errorf("status = %q, want stopped", got)
	}
}

func TestWatcher_LateTimerAfterShutdownDoesNotPanic(t *testing.T) {
	dir := t.TempDir()
	p := NewPool(PoolOptions{Runner: &fakeRunner{}, Workers: 1, QueueSize: 4, Log: zerolog.Nop()})
	w := NewWatcher(p, dir, zerolog.Nop())
	_, sub := writeTestPair(t, dir, "late")

	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	p.Start()
	w.Stop()
	p.Stop()

	// A debounce timer that outlives Stop lands here; it must be dropped,
	// not sent to the closed jobs channel.
	w.enqueue(sub)
	if got := w.Status().FilesQueued; got != 0 {
		t.Errorf("FilesQueued = %d, want 0 after shutdown", got)
	}
}

func TestWatcher_PicksUpDroppedSubtitle(t *testing.T) {
	dir := t.TempDir()
	p := NewPool(PoolOptions{Runner: &fakeRunner{}, Workers: 1, QueueSize: 4, Log: zerolog.Nop()})
	w := NewWatcher(p, dir, zerolog.Nop())

	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	writeTestPair(t, dir, "dropped")

	// Debounce plus fsnotify delivery needs real time to elapse.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if w.Status().FilesQueued == 1 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("subtitle drop never queued: status = %+v", w.Status())
}
