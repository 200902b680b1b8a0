package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/subsync/internal/audio"
	"github.com/snarg/subsync/internal/subtitle"
)

// ErrEmptyTranscript means the service answered but heard nothing usable.
// It is a detector failure the orchestrator can fall back from, not a crash.
var ErrEmptyTranscript = errors.New("transcription returned no usable speech")

// ErrNoEntries means the subtitle document has nothing to anchor on.
var ErrNoEntries = errors.New("subtitle document has no entries")

// DetectorConfig tunes the cloud offset detector.
type DetectorConfig struct {
	URL           string
	APIKey        string
	Model         string
	Language      string
	Temperature   float64
	Timeout       time.Duration
	MaxAttempts   int
	RetryDelay    time.Duration
	WindowSeconds float64
}

// Detection is the cloud detector's measurement.
type Detection struct {
	OffsetSeconds float64
	Confidence    float64
	Transcript    string
	SegmentCount  int
	WordCount     int
	ExpectedOnset float64 // first subtitle entry start, seconds
	ObservedOnset float64 // first transcribed speech, absolute seconds
}

// Detector estimates the subtitle offset by transcribing a bounded audio
// window and comparing observed speech onset against the subtitle's.
type Detector struct {
	cfg    DetectorConfig
	client *WhisperClient
	log    zerolog.Logger

	// extractWindow is swappable in tests to avoid a real ffmpeg run.
	extractWindow func(ctx context.Context, path string, start, duration float64) (string, func(), error)
}

// NewDetector builds a cloud detector from config.
func NewDetector(cfg DetectorConfig, log zerolog.Logger) *Detector {
	if cfg.WindowSeconds <= 0 {
		cfg.WindowSeconds = 60
	}
	return &Detector{
		cfg:           cfg,
		client:        NewWhisperClient(cfg.URL, cfg.APIKey, cfg.Model, cfg.Timeout),
		log:           log.With().Str("component", "cloud-detector").Logger(),
		extractWindow: audio.ExtractWindow,
	}
}

// DetectOffset measures offset = observed transcript onset − the first
// subtitle entry's start time. The extracted window artifact is removed on
// every exit path.
func (d *Detector) DetectOffset(ctx context.Context, audioPath string, doc *subtitle.Document) (*Detection, error) {
	if len(doc.Entries) == 0 {
		return nil, ErrNoEntries
	}
	expected := doc.Entries[0].Start

	// Center the extraction window on the expected onset so speech that is
	// early or late by up to half a window stays in view.
	windowStart := expected - d.cfg.WindowSeconds/2
	if windowStart < 0 {
		windowStart = 0
	}

	wavPath, cleanup, err := d.extractWindow(ctx, audioPath, windowStart, d.cfg.WindowSeconds)
	if err != nil {
		return nil, fmt.Errorf("extract audio window: %w", err)
	}
	defer cleanup()

	policy := RetryPolicy{MaxAttempts: d.cfg.MaxAttempts, Delay: d.cfg.RetryDelay}
	var resp *WhisperResponse
	err = policy.Do(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = d.client.Transcribe(ctx, wavPath, TranscribeOpts{
			Temperature: d.cfg.Temperature,
			Language:    d.cfg.Language,
		})
		return callErr
	})
	if err != nil {
		return nil, err
	}

	onset, ok := firstOnset(resp)
	if !ok || strings.TrimSpace(resp.Text) == "" {
		return nil, ErrEmptyTranscript
	}

	observed := windowStart + onset
	det := &Detection{
		OffsetSeconds: observed - expected,
		Transcript:    strings.TrimSpace(resp.Text),
		SegmentCount:  len(resp.Segments),
		WordCount:     len(resp.Words),
		ExpectedOnset: expected,
		ObservedOnset: observed,
	}
	det.Confidence = d.scoreConfidence(det, doc, windowStart)

	d.log.Debug().
		Float64("expected_onset", expected).
		Float64("observed_onset", observed).
		Float64("offset", det.OffsetSeconds).
		Float64("confidence", det.Confidence).
		Msg("cloud offset detected")
	return det, nil
}

// firstOnset returns the start of the first transcribed word, falling back
// to the first segment when word timestamps are absent.
func firstOnset(resp *WhisperResponse) (float64, bool) {
	if len(resp.Words) > 0 {
		return resp.Words[0].Start, true
	}
	if len(resp.Segments) > 0 {
		return resp.Segments[0].Start, true
	}
	return 0, false
}

// scoreConfidence builds a [0,1] trust score: a base for any transcript,
// bonuses for segment count and word-level timing, and a lexical-overlap
// bonus against the subtitle text near the window.
func (d *Detector) scoreConfidence(det *Detection, doc *subtitle.Document, windowStart float64) float64 {
	score := 0.5
	if det.SegmentCount >= 2 {
		score += 0.15
	}
	if det.WordCount > 0 {
		score += 0.2
	}
	score += 0.15 * lexicalOverlap(det.Transcript, windowText(doc, windowStart, d.cfg.WindowSeconds))
	if score > 1 {
		score = 1
	}
	return score
}

// windowText joins the text of entries intersecting the extraction window.
func windowText(doc *subtitle.Document, start, duration float64) string {
	end := start + duration
	var parts []string
	for _, e := range doc.Entries {
		if e.End > start && e.Start < end {
			parts = append(parts, e.Text)
		}
	}
	return strings.Join(parts, " ")
}

// lexicalOverlap is the fraction of transcript tokens also present in the
// reference text after case folding and punctuation stripping.
func lexicalOverlap(transcript, reference string) float64 {
	tTokens := tokenize(transcript)
	if len(tTokens) == 0 {
		return 0
	}
	ref := make(map[string]bool)
	for _, tok := range tokenize(reference) {
		ref[tok] = true
	}
	matched := 0
	for _, tok := range tTokens {
		if ref[tok] {
			matched++
		}
	}
	return float64(matched) / float64(len(tTokens))
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	var out []string
	for _, f := range fields {
		if len(f) > 1 { // skip single-letter noise
			out = append(out, f)
		}
	}
	return out
}
