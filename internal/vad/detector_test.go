package vad

import (
	"math"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/snarg/subsync/internal/audio"
)

// fakeClassifier returns scripted per-chunk probabilities.
type fakeClassifier struct {
	probs []float64
}

func (f *fakeClassifier) Probabilities(pcm []float64, sampleRate, chunkSize int) ([]float64, error) {
	n := (len(pcm) + chunkSize - 1) / chunkSize
	out := make([]float64, n)
	copy(out, f.probs)
	return out, nil
}

func (f *fakeClassifier) Close() error { return nil }

func newTestDetector(t *testing.T, cfg Config, probs []float64) *Detector {
	t.Helper()
	d, err := NewDetector(cfg, DefaultHeuristicConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	d.newClassifier = func() Classifier { return &fakeClassifier{probs: probs} }
	return d
}

// samplesOfChunks builds silence covering n chunks at the config rate.
func samplesOfChunks(cfg Config, n int) *audio.Samples {
	total := n * cfg.ChunkSize
	return &audio.Samples{
		PCM:        make([]float64, total),
		SampleRate: cfg.SampleRate,
		Channels:   1,
		Duration:   float64(total) / float64(cfg.SampleRate),
	}
}

func TestConfigValidate_ChunkSize(t *testing.T) {
	tests := []struct {
		chunk int
		ok    bool
	}{
		{256, true},
		{512, true},
		{2048, true},
		{500, false}, // not a power of two
		{128, false}, // below range
		{4096, false},
		{0, false},
	}
	for _, tt := range tests {
		cfg := DefaultConfig()
		cfg.ChunkSize = tt.chunk
		err := cfg.Validate()
		if tt.ok && err != nil {
			t.Errorf("chunk %d: unexpected error %v", tt.chunk, err)
		}
		if !tt.ok && err == nil {
			t.Errorf("chunk %d: expected validation error", tt.chunk)
		}
	}
}

func TestNewDetector_RejectsInvalidConfigBeforeDetection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChunkSize = 500
	if _, err := NewDetector(cfg, DefaultHeuristicConfig(), zerolog.Nop()); err == nil {
		t.Fatal("expected error for chunk size 500")
	}
}

func TestDetectPCM_SegmentInvariants(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PaddingChunks = 1
	cfg.MinSpeechDurationMs = 0
	cfg.SpeechMergeGapMs = 100

	// Two speech runs with a short silent gap between them.
	probs := []float64{0, 0.9, 0.9, 0, 0, 0.8, 0.8, 0.8, 0, 0, 0, 0, 0.9, 0, 0, 0}
	d := newTestDetector(t, cfg, probs)

	res, err := d.DetectPCM(samplesOfChunks(cfg, len(probs)))
	if err != nil {
		t.Fatalf("DetectPCM: %v", err)
	}
	if len(res.Segments) == 0 {
		t.Fatal("expected speech segments")
	}
	for i, s := range res.Segments {
		if s.End <= s.Start {
			t.Errorf("segment %d: End %v not after Start %v", i, s.End, s.Start)
		}
		if i > 0 && s.Start < res.Segments[i-1].End {
			t.Errorf("segment %d overlaps previous: %v < %v", i, s.Start, res.Segments[i-1].End)
		}
	}
}

func TestDetectPCM_Deterministic(t *testing.T) {
	cfg := DefaultConfig()
	probs := []float64{0, 0.9, 0.9, 0, 0.8, 0.8, 0, 0, 0.7, 0.7, 0.7, 0}
	samples := samplesOfChunks(cfg, len(probs))

	a, err := newTestDetector(t, cfg, probs).DetectPCM(samples)
	if err != nil {
		t.Fatalf("DetectPCM: %v", err)
	}
	b, err := newTestDetector(t, cfg, probs).DetectPCM(samples)
	if err != nil {
		t.Fatalf("DetectPCM: %v", err)
	}
	if !reflect.DeepEqual(a.Segments, b.Segments) {
		t.Errorf("segments differ between runs:\n%v\n%v", a.Segments, b.Segments)
	}
}

func TestDetectPCM_PaddingWidensSegments(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSpeechDurationMs = 0
	probs := []float64{0, 0, 0, 0.9, 0.9, 0, 0, 0}
	samples := samplesOfChunks(cfg, len(probs))

	cfg.PaddingChunks = 0
	bare, _ := newTestDetector(t, cfg, probs).DetectPCM(samples)
	cfg.PaddingChunks = 1
	padded, _ := newTestDetector(t, cfg, probs).DetectPCM(samples)

	if len(bare.Segments) != 1 || len(padded.Segments) != 1 {
		t.Fatalf("segments = %d/%d, want 1/1", len(bare.Segments), len(padded.Segments))
	}
	if padded.Segments[0].Start >= bare.Segments[0].Start {
		t.Errorf("padded start %v should precede bare start %v", padded.Segments[0].Start, bare.Segments[0].Start)
	}
	if padded.Segments[0].End <= bare.Segments[0].End {
		t.Errorf("padded end %v should exceed bare end %v", padded.Segments[0].End, bare.Segments[0].End)
	}
}

func TestDetectPCM_DropsShortSegments(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PaddingChunks = 0
	cfg.ChunkSize = 256
	// One chunk at 16kHz/256 = 16ms, below the 250ms minimum.
	probs := []float64{0, 0.9, 0, 0}
	d := newTestDetector(t, cfg, probs)

	res, err := d.DetectPCM(samplesOfChunks(cfg, len(probs)))
	if err != nil {
		t.Fatalf("DetectPCM: %v", err)
	}
	if len(res.Segments) != 0 {
		t.Errorf("segments = %d, want 0 (too short)", len(res.Segments))
	}
	if res.Confidence != 0 {
		t.Errorf("confidence = %v, want 0 for no speech", res.Confidence)
	}
}

func TestScoreConfidence_MonotonicAndCapped(t *testing.T) {
	cfg := DefaultConfig()
	d, err := NewDetector(cfg, DefaultHeuristicConfig(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	seg := func(start, dur, prob float64) Segment {
		return Segment{Start: start, End: start + dur, Confidence: prob}
	}

	// More segments — not less confidence.
	few := d.scoreConfidence([]Segment{seg(0, 1, 0.8)})
	many := d.scoreConfidence([]Segment{seg(0, 1, 0.8), seg(2, 1, 0.8), seg(4, 1, 0.8)})
	if many < few {
		t.Errorf("confidence decreased with segment count: %v < %v", many, few)
	}

	// Longer first segment — not less confidence.
	short := d.scoreConfidence([]Segment{seg(0, 0.5, 0.8)})
	long := d.scoreConfidence([]Segment{seg(0, 3.0, 0.8)})
	if long < short {
		t.Errorf("confidence decreased with first-segment duration: %v < %v", long, short)
	}

	// Higher probability — not less confidence.
	lowP := d.scoreConfidence([]Segment{seg(0, 1, 0.4)})
	highP := d.scoreConfidence([]Segment{seg(0, 1, 0.95)})
	if highP < lowP {
		t.Errorf("confidence decreased with probability: %v < %v", highP, lowP)
	}

	// Never exceeds the cap.
	huge := make([]Segment, 50)
	for i := range huge {
		huge[i] = seg(float64(i*10), 9, 1.0)
	}
	if got := d.scoreConfidence(huge); got > cfg.MaxConfidence {
		t.Errorf("confidence %v exceeds cap %v", got, cfg.MaxConfidence)
	}
}

func TestMergeClose_TakesMaxConfidence(t *testing.T) {
	segs := []Segment{
		{Start: 0, End: 1, Confidence: 0.5},
		{Start: 1.1, End: 2, Confidence: 0.9},
	}
	merged := mergeClose(segs, 0.2)
	if len(merged) != 1 {
		t.Fatalf("merged = %d, want 1", len(merged))
	}
	if merged[0].Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", merged[0].Confidence)
	}
	if merged[0].Start != 0 || merged[0].End != 2 {
		t.Errorf("bounds = [%v,%v], want [0,2]", merged[0].Start, merged[0].End)
	}
}

func TestHeuristic_DetectDialogue(t *testing.T) {
	// 3s at 16kHz: speech-band tone burst in [1.0,2.0], silence elsewhere.
	rate := 16000
	s := &audio.Samples{PCM: make([]float64, 3*rate), SampleRate: rate, Channels: 1, Duration: 3}
	for i := rate; i < 2*rate; i++ {
		tt := float64(i) / float64(rate)
		// Two voice-band partials so the spectrum isn't a pure line.
		s.PCM[i] = 0.4*math.Sin(2*math.Pi*300*tt) + 0.3*math.Sin(2*math.Pi*900*tt)
	}

	cfg := DefaultHeuristicConfig()
	cfg.EntropyThreshold = 0.05 // synthetic tones are far more tonal than speech
	h := NewHeuristic(cfg, zerolog.Nop())
	segs := h.DetectDialogue(s)

	if len(segs) != 1 {
		t.Fatalf("segments = %d, want 1 (%v)", len(segs), segs)
	}
	if math.Abs(segs[0].Start-1.0) > 0.15 || math.Abs(segs[0].End-2.0) > 0.15 {
		t.Errorf("segment = [%v,%v], want ~[1,2]", segs[0].Start, segs[0].End)
	}
	for i, sg := range segs {
		if sg.End <= sg.Start {
			t.Errorf("segment %d: End %v not after Start %v", i, sg.End, sg.Start)
		}
	}
}
