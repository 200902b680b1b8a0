// Package rate infers audio content type and picks the sample rate the
// active detector works best at, resampling when needed.
package rate

import (
	"github.com/rs/zerolog"

	"github.com/snarg/subsync/internal/audio"
)

// UseCase is the inferred content type of a clip.
type UseCase string

const (
	UseCaseSpeech UseCase = "speech"
	UseCaseMusic  UseCase = "music"
	UseCaseMixed  UseCase = "mixed"
)

// Recommended rates per use case. Sync work on mixed content sits in the
// middle tier: enough bandwidth for spectral features without music-grade
// cost.
const (
	rateSpeech = 16000
	rateMusic  = 44100
	rateMixed  = 22050
)

// Content-classification thresholds from the hop-RMS envelope and ZCR.
// Speech alternates bursts and pauses (high energy variance); sustained
// music holds level (low variance, often higher ZCR from harmonics).
const (
	speechVarianceFloor = 0.004
	musicVarianceCeil   = 0.0015
	speechZCRCeil       = 0.18
)

// Recommendation is the optimizer's verdict for one clip.
type Recommendation struct {
	UseCase    UseCase
	TargetRate int
	Confidence float64
	// Changed is false when the current rate already matches the target.
	Changed bool
}

// Optimizer classifies content and recommends a rate.
type Optimizer struct {
	log zerolog.Logger
}

// NewOptimizer returns an optimizer with the given logger.
func NewOptimizer(log zerolog.Logger) *Optimizer {
	return &Optimizer{log: log.With().Str("component", "rate-optimizer").Logger()}
}

// AutoOptimize infers the use case from zero-crossing rate and energy
// variance and maps it to a recommended rate.
func (o *Optimizer) AutoOptimize(s *audio.Samples) Recommendation {
	stats := audio.Stats(s)
	useCase, confidence := classify(stats)

	target := rateMixed
	switch useCase {
	case UseCaseSpeech:
		target = rateSpeech
	case UseCaseMusic:
		target = rateMusic
	}

	rec := Recommendation{
		UseCase:    useCase,
		TargetRate: target,
		Confidence: confidence,
		Changed:    s.SampleRate != target,
	}
	o.log.Debug().
		Str("use_case", string(useCase)).
		Int("current_rate", s.SampleRate).
		Int("target_rate", target).
		Bool("changed", rec.Changed).
		Msg("rate recommendation")
	return rec
}

func classify(stats audio.ContentStats) (UseCase, float64) {
	switch {
	case stats.EnergyVariance >= speechVarianceFloor && stats.MeanZCR <= speechZCRCeil:
		return UseCaseSpeech, 0.8
	case stats.EnergyVariance <= musicVarianceCeil && stats.MeanEnergy > 0.05:
		return UseCaseMusic, 0.7
	default:
		return UseCaseMixed, 0.5
	}
}
