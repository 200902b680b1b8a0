package rate

import (
	"fmt"
	"math"

	"github.com/snarg/subsync/internal/audio"
)

// Quality selects the resampling kernel.
type Quality string

const (
	// QualityLinear interpolates between neighbors: fast, audible rolloff.
	QualityLinear Quality = "linear"
	// QualitySinc uses a Hann-windowed sinc kernel: slow, highest fidelity.
	QualitySinc Quality = "sinc"
)

// sincTaps is the one-sided kernel width for QualitySinc.
const sincTaps = 16

// Resample converts s to targetRate, preserving duration. The input is not
// modified.
func Resample(s *audio.Samples, targetRate int, q Quality) (*audio.Samples, error) {
	if targetRate <= 0 {
		return nil, fmt.Errorf("target rate %d: must be positive", targetRate)
	}
	if targetRate == s.SampleRate {
		out := *s
		return &out, nil
	}

	ratio := float64(s.SampleRate) / float64(targetRate)
	outLen := int(math.Round(float64(len(s.PCM)) * float64(targetRate) / float64(s.SampleRate)))
	out := make([]float64, outLen)

	switch q {
	case QualitySinc:
		resampleSinc(s.PCM, out, ratio)
	case QualityLinear, "":
		resampleLinear(s.PCM, out, ratio)
	default:
		return nil, fmt.Errorf("unknown resample quality %q", q)
	}

	return &audio.Samples{
		PCM:        out,
		SampleRate: targetRate,
		Channels:   s.Channels,
		Duration:   s.Duration,
	}, nil
}

func resampleLinear(in, out []float64, ratio float64) {
	for i := range out {
		pos := float64(i) * ratio
		lo := int(pos)
		if lo >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := pos - float64(lo)
		out[i] = in[lo]*(1-frac) + in[lo+1]*frac
	}
}

func resampleSinc(in, out []float64, ratio float64) {
	// When downsampling, widen and scale the kernel to act as the
	// anti-aliasing lowpass.
	cutoff := 1.0
	taps := sincTaps
	if ratio > 1 {
		cutoff = 1 / ratio
		taps = int(float64(sincTaps) * ratio)
	}

	for i := range out {
		pos := float64(i) * ratio
		center := int(pos)
		var acc, norm float64
		for j := center - taps; j <= center+taps; j++ {
			if j < 0 || j >= len(in) {
				continue
			}
			x := pos - float64(j)
			w := windowedSinc(x*cutoff, float64(taps))
			acc += in[j] * w
			norm += w
		}
		if norm != 0 {
			out[i] = acc / norm
		}
	}
}

// windowedSinc is sinc(x) under a Hann window of half-width taps.
func windowedSinc(x, taps float64) float64 {
	if x == 0 {
		return 1
	}
	if math.Abs(x) >= taps {
		return 0
	}
	px := math.Pi * x
	return (math.Sin(px) / px) * (0.5 + 0.5*math.Cos(px/taps))
}
