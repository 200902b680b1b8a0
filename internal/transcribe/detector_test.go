package transcribe

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/subsync/internal/subtitle"
)

// createStubWav writes a throwaway file standing in for an extracted window.
func createStubWav() (string, error) {
	f, err := os.CreateTemp("", "subsync-test-*.wav")
	if err != nil {
		return "", err
	}
	f.WriteString("RIFFfake")
	f.Close()
	return f.Name(), nil
}

func testDoc() *subtitle.Document {
	return &subtitle.Document{Entries: []subtitle.Entry{
		{Index: 1, Start: 30.0, End: 33.0, Text: "Hello there, old friend."},
		{Index: 2, Start: 35.0, End: 38.0, Text: "Long time no see."},
	}}
}

// newStubDetector wires a detector at the given endpoint with window
// extraction stubbed out; it records cleanup invocation.
func newStubDetector(url string, windowSeconds float64, cleaned *bool) *Detector {
	d := NewDetector(DetectorConfig{
		URL:           url,
		Model:         "whisper-1",
		Timeout:       5 * time.Second,
		MaxAttempts:   2,
		RetryDelay:    time.Millisecond,
		WindowSeconds: windowSeconds,
	}, zerolog.Nop())
	d.extractWindow = func(ctx context.Context, path string, start, duration float64) (string, func(), error) {
		tmp, err := createStubWav()
		if err != nil {
			return "", nil, err
		}
		return tmp, func() { *cleaned = true }, nil
	}
	return d
}

func TestDetectOffset_ObservedMinusExpected(t *testing.T) {
	// Window is 20s centered on the 30s subtitle onset, so it starts at
	// 20s. Whisper hears the first word 12.5s into the window: observed
	// onset is 32.5s absolute, offset +2.5s.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"text": "Hello there, old friend.",
			"segments": [
				{"start": 12.5, "end": 15.5, "text": "Hello there, old friend."},
				{"start": 17.5, "end": 20.0, "text": "Long time no see."}
			],
			"words": [{"word": "Hello", "start": 12.5, "end": 12.9}]
		}`))
	}))
	defer srv.Close()

	cleaned := false
	d := newStubDetector(srv.URL, 20, &cleaned)
	det, err := d.DetectOffset(context.Background(), "movie.mkv", testDoc())
	if err != nil {
		t.Fatalf("DetectOffset: %v", err)
	}

	if math.Abs(det.OffsetSeconds-2.5) > 1e-9 {
		t.Errorf("offset = %v, want +2.5", det.OffsetSeconds)
	}
	if det.ExpectedOnset != 30.0 {
		t.Errorf("expected onset = %v, want 30.0", det.ExpectedOnset)
	}
	if !cleaned {
		t.Error("window artifact not cleaned up on success")
	}
	// Two segments, word timestamps, and full lexical overlap: high trust.
	if det.Confidence < 0.85 {
		t.Errorf("confidence = %v, want >= 0.85", det.Confidence)
	}
}

func TestDetectOffset_EmptyTranscriptIsDetectorFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text": "", "segments": [], "words": []}`))
	}))
	defer srv.Close()

	cleaned := false
	d := newStubDetector(srv.URL, 20, &cleaned)
	_, err := d.DetectOffset(context.Background(), "movie.mkv", testDoc())
	if !errors.Is(err, ErrEmptyTranscript) {
		t.Errorf("err = %v, want ErrEmptyTranscript", err)
	}
	if !cleaned {
		t.Error("window artifact not cleaned up on failure")
	}
}

func TestDetectOffset_RetriesThenFails(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cleaned := false
	d := newStubDetector(srv.URL, 20, &cleaned)
	_, err := d.DetectOffset(context.Background(), "movie.mkv", testDoc())
	if err == nil {
		t.Fatal("expected error after retries exhaust")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (MaxAttempts)", calls)
	}
	if !cleaned {
		t.Error("window artifact not cleaned up after retry exhaustion")
	}
}

func TestDetectOffset_NoEntries(t *testing.T) {
	d := NewDetector(DetectorConfig{URL: "http://unused"}, zerolog.Nop())
	_, err := d.DetectOffset(context.Background(), "movie.mkv", &subtitle.Document{})
	if !errors.Is(err, ErrNoEntries) {
		t.Errorf("err = %v, want ErrNoEntries", err)
	}
}

func TestDetectOffset_SegmentOnsetFallback(t *testing.T) {
	// No word timestamps: first segment start is the observed onset.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"text": "Hello there.",
			"segments": [{"start": 10.0, "end": 12.0, "text": "Hello there."}]
		}`))
	}))
	defer srv.Close()

	cleaned := false
	d := newStubDetector(srv.URL, 20, &cleaned)
	det, err := d.DetectOffset(context.Background(), "movie.mkv", testDoc())
	if err != nil {
		t.Fatalf("DetectOffset: %v", err)
	}
	// windowStart=20, onset=10 → observed 30 → offset 0.
	if math.Abs(det.OffsetSeconds) > 1e-9 {
		t.Errorf("offset = %v, want 0", det.OffsetSeconds)
	}
	if det.WordCount != 0 {
		t.Errorf("word count = %d, want 0", det.WordCount)
	}
}

func TestLexicalOverlap(t *testing.T) {
	if got := lexicalOverlap("Hello there friend", "hello THERE, friend!"); got != 1 {
		t.Errorf("overlap = %v, want 1", got)
	}
	if got := lexicalOverlap("completely different words", "hello there"); got != 0 {
		t.Errorf("overlap = %v, want 0", got)
	}
	if got := lexicalOverlap("", "hello"); got != 0 {
		t.Errorf("overlap of empty transcript = %v, want 0", got)
	}
}
