// Package audio decodes media files and derives the signal features the
// sync detectors run on: a mono PCM buffer, an RMS energy envelope, and
// per-frame spectral statistics.
package audio

import "math"

// Samples is decoded mono PCM in [-1,1]. It is created once per input and
// owned exclusively by the sync call that decoded it.
type Samples struct {
	PCM        []float64
	SampleRate int
	Channels   int // channel count of the source before downmix
	Duration   float64
}

// EnergyEnvelope is a downsampled energy-over-time signal: one RMS value
// per hop. Derived from Samples and read-only once built.
type EnergyEnvelope struct {
	Values     []float64
	HopSeconds float64
	SampleRate int
	Duration   float64
}

// Envelope computes the per-hop RMS energy envelope of s.
func Envelope(s *Samples, hopSeconds float64) *EnergyEnvelope {
	hop := int(hopSeconds * float64(s.SampleRate))
	if hop < 1 {
		hop = 1
	}
	n := (len(s.PCM) + hop - 1) / hop
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		lo := i * hop
		hi := lo + hop
		if hi > len(s.PCM) {
			hi = len(s.PCM)
		}
		values[i] = rms(s.PCM[lo:hi])
	}
	return &EnergyEnvelope{
		Values:     values,
		HopSeconds: hopSeconds,
		SampleRate: s.SampleRate,
		Duration:   s.Duration,
	}
}

// ContentStats are cheap whole-clip statistics used for content-type
// inference by the sample-rate optimizer.
type ContentStats struct {
	MeanZCR        float64 // zero crossings per sample
	EnergyVariance float64 // variance of the hop RMS envelope
	MeanEnergy     float64
}

// Stats computes content statistics over s using ~50ms hops.
func Stats(s *Samples) ContentStats {
	env := Envelope(s, 0.05)
	mean, variance := meanVar(env.Values)
	return ContentStats{
		MeanZCR:        zeroCrossingRate(s.PCM),
		EnergyVariance: variance,
		MeanEnergy:     mean,
	}
}

func rms(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

func zeroCrossingRate(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(x); i++ {
		if (x[i-1] >= 0) != (x[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(x)-1)
}

func meanVar(x []float64) (float64, float64) {
	if len(x) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range x {
		sum += v
	}
	mean := sum / float64(len(x))
	var sq float64
	for _, v := range x {
		d := v - mean
		sq += d * d
	}
	return mean, sq / float64(len(x))
}
