package vad

import (
	"github.com/rs/zerolog"

	"github.com/snarg/subsync/internal/audio"
)

// HeuristicConfig tunes the energy/spectral-threshold dialogue detector.
type HeuristicConfig struct {
	EnergyThreshold  float64 // RMS floor for a speech frame
	CentroidLowHz    float64 // human voice band lower bound
	CentroidHighHz   float64 // human voice band upper bound
	EntropyThreshold float64 // spectral entropy floor (speech is noisy-ish)
	MinDurationMs    int     // discard dialogue shorter than this
	MergeGapMs       int     // merge dialogue closer than this
	FrameSize        int
	FrameHop         int
}

// DefaultHeuristicConfig matches conversational dialogue in film audio.
func DefaultHeuristicConfig() HeuristicConfig {
	return HeuristicConfig{
		EnergyThreshold:  0.015,
		CentroidLowHz:    200,
		CentroidHighHz:   3500,
		EntropyThreshold: 0.45,
		MinDurationMs:    200,
		MergeGapMs:       300,
		FrameSize:        1024,
		FrameHop:         512,
	}
}

// Heuristic detects dialogue by frame voting: a frame counts as speech when
// at least 2 of 3 checks pass (energy, voice-band centroid, entropy). It
// needs no model file, which makes it the fallback when no classifier is
// configured, and doubles as the content classifier for rate optimization.
type Heuristic struct {
	cfg HeuristicConfig
	log zerolog.Logger
}

// NewHeuristic builds a detector; zero thresholds fall back to defaults.
func NewHeuristic(cfg HeuristicConfig, log zerolog.Logger) *Heuristic {
	def := DefaultHeuristicConfig()
	if cfg.FrameSize == 0 {
		cfg.FrameSize = def.FrameSize
	}
	if cfg.FrameHop == 0 {
		cfg.FrameHop = def.FrameHop
	}
	return &Heuristic{cfg: cfg, log: log.With().Str("component", "heuristic-vad").Logger()}
}

// DetectDialogue returns merged, filtered dialogue segments, ascending.
func (h *Heuristic) DetectDialogue(s *audio.Samples) []Segment {
	frames := audio.SpectralFrames(s, h.cfg.FrameSize, h.cfg.FrameHop)

	var segs []Segment
	var open bool
	var start float64
	var votesSum, frameCount int

	closeSegment := func(end float64) {
		conf := float64(votesSum) / float64(3*frameCount)
		segs = append(segs, Segment{Start: start, End: end, Confidence: conf})
		open = false
		votesSum, frameCount = 0, 0
	}

	for _, f := range frames {
		votes := h.speechVotes(f)
		if votes >= 2 {
			if !open {
				open = true
				start = f.Time
			}
			votesSum += votes
			frameCount++
			continue
		}
		if open {
			closeSegment(f.Time)
		}
	}
	if open {
		closeSegment(s.Duration)
	}

	segs = mergeClose(segs, float64(h.cfg.MergeGapMs)/1000)
	segs = dropShort(segs, float64(h.cfg.MinDurationMs)/1000)
	h.log.Debug().Int("segments", len(segs)).Msg("dialogue detection complete")
	return segs
}

func (h *Heuristic) speechVotes(f audio.FrameFeatures) int {
	votes := 0
	if f.Energy >= h.cfg.EnergyThreshold {
		votes++
	}
	if f.Centroid >= h.cfg.CentroidLowHz && f.Centroid <= h.cfg.CentroidHighHz {
		votes++
	}
	if f.Entropy >= h.cfg.EntropyThreshold {
		votes++
	}
	return votes
}
