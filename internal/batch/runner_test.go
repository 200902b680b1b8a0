package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/snarg/subsync/internal/subtitle"
	"github.com/snarg/subsync/internal/syncer"
)

type fakeRunner struct {
	mu     sync.Mutex
	calls  int
	fail   bool
	offset float64
	apply  bool
}

func (f *fakeRunner) Sync(_ context.Context, req syncer.Request) (*syncer.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fail {
		return nil, errors.New("no audio track")
	}
	res := &syncer.Result{OffsetSeconds: f.offset, Confidence: 0.8, Method: syncer.MethodLocalVad}
	if f.apply {
		req.Doc.Shift(f.offset)
		res.Applied = true
	}
	return res, nil
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func writeTestPair(t *testing.T, dir, base string) (media, sub string) {
	t.Helper()
	media = filepath.Join(dir, base+".mkv")
	if err := os.WriteFile(media, []byte("fake video"), 0o644); err != nil {
		t.Fatal(err)
	}
	sub = filepath.Join(dir, base+".srt")
	doc := &subtitle.Document{Entries: []subtitle.Entry{
		{Index: 1, Start: 1, End: 3, Text: "hello"},
		{Index: 2, Start: 5, End: 7, Text: "world"},
	}}
	if err := doc.WriteSRTFile(sub); err != nil {
		t.Fatal(err)
	}
	return media, sub
}

func TestNewPool_QueueCapacity(t *testing.T) {
	p := NewPool(PoolOptions{Runner: &fakeRunner{}, Workers: 4, QueueSize: 100, Log: zerolog.Nop()})
	if cap(p.jobs) != 100 {
		t.Errorf("queue capacity = %d, want 100", cap(p.jobs))
	}
}

func TestPool_EnqueueFull(t *testing.T) {
	// Never started, so nothing drains.
	p := NewPool(PoolOptions{Runner: &fakeRunner{}, Workers: 1, QueueSize: 2, Log: zerolog.Nop()})

	p.Enqueue(Job{SubtitlePath: "a.srt"})
	p.Enqueue(Job{SubtitlePath: "b.srt"})
	if p.Enqueue(Job{SubtitlePath: "c.srt"}) {
		t.Error("Enqueue should return false when the queue is full")
	}
	if got := p.Stats().Pending; got != 2 {
		t.Errorf("Pending = %d, want 2", got)
	}
}

func TestPool_EnqueueAfterStopReturnsFalse(t *testing.T) {
	p := NewPool(PoolOptions{Runner: &fakeRunner{}, Workers: 1, QueueSize: 2, Log: zerolog.Nop()})
	p.Start()
	p.Stop()

	if p.Enqueue(Job{SubtitlePath: "late.srt"}) {
		t.Error("Enqueue after Stop should return false")
	}
}

func TestPool_StopTwice(t *testing.T) {
	p := NewPool(PoolOptions{Runner: &fakeRunner{}, Workers: 1, QueueSize: 2, Log: zerolog.Nop()})
	p.Start()
	p.Stop()
	p.Stop()
}

func TestPool_ProcessesJobs(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{offset: 2, apply: true}
	p := NewPool(PoolOptions{Runner: runner, Workers: 2, QueueSize: 8, Apply: true, Log: zerolog.Nop()})
	p.Start()

	media, sub := writeTestPair(t, dir, "episode01")
	if !p.Enqueue(Job{MediaPath: media, SubtitlePath: sub}) {
		t.Fatal("Enqueue failed")
	}
	p.Stop()

	stats := p.Stats()
	if stats.Completed != 1 || stats.Failed != 0 {
		t.Fatalf("stats = %+v, want 1 completed, 0 failed", stats)
	}

	// Applied offsets are written back in place.
	doc, err := subtitle.ParseSRTFile(sub)
	if err != nil {
		t.Fatalf("ParseSRTFile: %v", err)
	}
	if doc.Entries[0].Start != 3 {
		t.Errorf("first entry start = %v, want 3 after +2 shift", doc.Entries[0].Start)
	}
}

func TestPool_FailureDoesNotAbortBatch(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{fail: true}
	p := NewPool(PoolOptions{Runner: runner, Workers: 1, QueueSize: 8, Log: zerolog.Nop()})
	p.Start()

	for _, base := range []string{"a", "b", "c"} {
		media, sub := writeTestPair(t, dir, base)
		p.Enqueue(Job{MediaPath: media, SubtitlePath: sub})
	}
	p.Stop()

	stats := p.Stats()
	if stats.Failed != 3 {
		t.Errorf("Failed = %d, want 3", stats.Failed)
	}
	if runner.callCount() != 3 {
		t.Errorf("runner calls = %d, want 3: one failure must not stop the batch", runner.callCount())
	}
}

func TestPool_UnparseableSubtitleCountsAsFailure(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "bad.srt")
	if err := os.WriteFile(sub, []byte("not a subtitle"), 0o644); err != nil {
		t.Fatal(err)
	}

	runner := &fakeRunner{}
	p := NewPool(PoolOptions{Runner: runner, Workers: 1, QueueSize: 2, Log: zerolog.Nop()})
	p.Start()
	p.Enqueue(Job{MediaPath: "movie.mkv", SubtitlePath: sub})
	p.Stop()

	if got := p.Stats().Failed; got != 1 {
		t.Errorf("Failed = %d, want 1", got)
	}
	if runner.callCount() != 0 {
		t.Errorf("runner ran %d times on an unparseable subtitle, want 0", runner.callCount())
	}
}

func TestPool_ReportOnlyLeavesFileAlone(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{offset: 2} // apply=false
	p := NewPool(PoolOptions{Runner: runner, Workers: 1, QueueSize: 2, Log: zerolog.Nop()})
	p.Start()

	media, sub := writeTestPair(t, dir, "episode02")
	before, err := os.ReadFile(sub)
	if err != nil {
		t.Fatal(err)
	}
	p.Enqueue(Job{MediaPath: media, SubtitlePath: sub})
	p.Stop()

	after, err := os.ReadFile(sub)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("report-only run modified the subtitle file")
	}
}

func TestPairMedia(t *testing.T) {
	dir := t.TempDir()
	media, sub := writeTestPair(t, dir, "show")

	got, ok := PairMedia(sub)
	if !ok {
		t.Fatal("PairMedia found no sibling")
	}
	if got != media {
		t.Errorf("PairMedia = %q, want %q", got, media)
	}

	orphan := filepath.Join(dir, "orphan.srt")
	if err := os.WriteFile(orphan, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := PairMedia(orphan); ok {
		t.Error("PairMedia matched an orphan subtitle")
	}
}

func TestScanDirectory(t *testing.T) {
	dir := t.TempDir()
	writeTestPair(t, dir, "e1")
	writeTestPair(t, dir, "e2")

	orphan := filepath.Join(dir, "orphan.srt")
	if err := os.WriteFile(orphan, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}

	jobs, err := ScanDirectory(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("ScanDirectory: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("len(jobs) = %d, want 2 (orphan skipped)", len(jobs))
	}
	for _, j := range jobs {
		if j.MediaPath == "" || j.SubtitlePath == "" {
			t.Errorf("incomplete job: %+v", j)
		}
	}
}
