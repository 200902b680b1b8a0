package vad

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/subsync/internal/audio"
)

// Config tunes the chunk-classifier VAD.
type Config struct {
	SampleRate          int     // classifier input rate
	ChunkSize           int     // samples per labeled chunk; power of two in [256,2048]
	Sensitivity         float64 // probability needed to call a chunk speech
	PaddingChunks       int     // chunks added around each run to keep onsets
	MinSpeechDurationMs int
	SpeechMergeGapMs    int
	MaxConfidence       float64 // cap for the overall result confidence
	ModelPath           string  // silero onnx model; empty selects the energy classifier
}

// DefaultConfig is tuned for 16kHz dialogue detection.
func DefaultConfig() Config {
	return Config{
		SampleRate:          16000,
		ChunkSize:           512,
		Sensitivity:         0.5,
		PaddingChunks:       2,
		MinSpeechDurationMs: 250,
		SpeechMergeGapMs:    300,
		MaxConfidence:       0.95,
	}
}

// Validate rejects configurations before any detection work runs.
func (c Config) Validate() error {
	if c.ChunkSize < 256 || c.ChunkSize > 2048 || c.ChunkSize&(c.ChunkSize-1) != 0 {
		return fmt.Errorf("vad chunk size %d: must be a power of two in [256,2048]", c.ChunkSize)
	}
	if c.Sensitivity < 0 || c.Sensitivity > 1 {
		return fmt.Errorf("vad sensitivity %v: must be in [0,1]", c.Sensitivity)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("vad sample rate %d: must be positive", c.SampleRate)
	}
	if c.PaddingChunks < 0 {
		return fmt.Errorf("vad padding chunks %d: must not be negative", c.PaddingChunks)
	}
	return nil
}

// AudioInfo describes the audio a detection ran over.
type AudioInfo struct {
	SampleRate int
	Channels   int
	Duration   float64
}

// Result is the output of one speech detection pass.
type Result struct {
	Segments       []Segment
	AudioInfo      AudioInfo
	Confidence     float64
	ProcessingTime time.Duration
}

// Detector labels fixed-size chunks with a Classifier and assembles them
// into speech segments. Construct one per sync call.
type Detector struct {
	cfg       Config
	heuristic HeuristicConfig
	extractor *audio.Extractor
	log       zerolog.Logger

	// newClassifier is swappable in tests.
	newClassifier func() Classifier
}

// NewDetector validates cfg and builds a detector. When cfg.ModelPath is
// set the Silero ONNX classifier is used, otherwise the energy fallback.
func NewDetector(cfg Config, heuristic HeuristicConfig, log zerolog.Logger) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Detector{
		cfg:       cfg,
		heuristic: heuristic,
		extractor: &audio.Extractor{},
		log:       log.With().Str("component", "vad").Logger(),
	}
	d.newClassifier = func() Classifier {
		if cfg.ModelPath != "" {
			return newSileroClassifier(cfg.ModelPath, cfg.Sensitivity)
		}
		return newEnergyClassifier(heuristic)
	}
	return d, nil
}

// DetectSpeech decodes path at the classifier rate and runs detection.
func (d *Detector) DetectSpeech(ctx context.Context, path string) (*Result, error) {
	samples, err := d.extractor.Extract(ctx, path, audio.ExtractOpts{SampleRate: d.cfg.SampleRate})
	if err != nil {
		return nil, err
	}
	return d.DetectPCM(samples)
}

// DetectPCM runs detection over already-decoded audio. Deterministic:
// identical samples and config produce identical, ascending segments.
func (d *Detector) DetectPCM(samples *audio.Samples) (*Result, error) {
	start := time.Now()

	cls := d.newClassifier()
	defer cls.Close()

	probs, err := cls.Probabilities(samples.PCM, samples.SampleRate, d.cfg.ChunkSize)
	if err != nil {
		return nil, fmt.Errorf("classify chunks: %w", err)
	}

	labels := make([]bool, len(probs))
	for i, p := range probs {
		labels[i] = p >= d.cfg.Sensitivity
	}
	padLabels(labels, d.cfg.PaddingChunks)

	chunkSec := float64(d.cfg.ChunkSize) / float64(samples.SampleRate)
	segs := labelsToSegments(labels, probs, chunkSec, samples.Duration)
	segs = dropShort(segs, float64(d.cfg.MinSpeechDurationMs)/1000)
	segs = mergeClose(segs, float64(d.cfg.SpeechMergeGapMs)/1000)
	sortAscending(segs)

	res := &Result{
		Segments: segs,
		AudioInfo: AudioInfo{
			SampleRate: samples.SampleRate,
			Channels:   samples.Channels,
			Duration:   samples.Duration,
		},
		Confidence:     d.scoreConfidence(segs),
		ProcessingTime: time.Since(start),
	}
	d.log.Debug().
		Int("segments", len(segs)).
		Float64("confidence", res.Confidence).
		Dur("elapsed", res.ProcessingTime).
		Msg("speech detection complete")
	return res, nil
}

// padLabels widens every speech run by n chunks on each side so segment
// boundaries don't clip speech onsets and offsets.
func padLabels(labels []bool, n int) {
	if n == 0 {
		return
	}
	orig := make([]bool, len(labels))
	copy(orig, labels)
	for i, speech := range orig {
		if !speech {
			continue
		}
		lo := i - n
		if lo < 0 {
			lo = 0
		}
		hi := i + n
		if hi > len(labels)-1 {
			hi = len(labels) - 1
		}
		for j := lo; j <= hi; j++ {
			labels[j] = true
		}
	}
}

func labelsToSegments(labels []bool, probs []float64, chunkSec, maxEnd float64) []Segment {
	var segs []Segment
	var open bool
	var startIdx int
	var probSum float64
	var count int

	closeRun := func(endIdx int) {
		end := float64(endIdx) * chunkSec
		if end > maxEnd {
			end = maxEnd
		}
		segs = append(segs, Segment{
			Start:      float64(startIdx) * chunkSec,
			End:        end,
			Confidence: probSum / float64(count),
		})
		open = false
		probSum, count = 0, 0
	}

	for i, speech := range labels {
		if speech {
			if !open {
				open = true
				startIdx = i
			}
			probSum += probs[i]
			count++
			continue
		}
		if open {
			closeRun(i)
		}
	}
	if open {
		closeRun(len(labels))
	}
	return segs
}

// scoreConfidence rises monotonically with segment count, first-segment
// duration, and mean per-segment probability, capped at MaxConfidence.
func (d *Detector) scoreConfidence(segs []Segment) float64 {
	if len(segs) == 0 {
		return 0
	}
	score := 0.3
	score += minf(0.25, 0.05*float64(len(segs)))
	score += minf(0.2, 0.04*segs[0].Duration())

	var probSum float64
	for _, s := range segs {
		probSum += s.Confidence
	}
	score += 0.2 * (probSum / float64(len(segs)))

	return minf(score, d.cfg.MaxConfidence)
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
