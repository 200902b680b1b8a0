package vad

import (
	"github.com/snarg/subsync/internal/audio"
)

// Classifier labels fixed-size PCM chunks with a speech probability.
// Implementations are constructed per detection call and hold no shared
// state, so concurrent batch syncs stay independent.
type Classifier interface {
	// Probabilities returns one speech probability in [0,1] per chunkSize
	// chunk of pcm. A short tail chunk is still labeled.
	Probabilities(pcm []float64, sampleRate, chunkSize int) ([]float64, error)
	Close() error
}

// energyClassifier scores chunks with the same 2-of-3 spectral vote the
// heuristic detector uses. It is the built-in fallback when no pretrained
// model path is configured.
type energyClassifier struct {
	cfg HeuristicConfig
}

func newEnergyClassifier(cfg HeuristicConfig) *energyClassifier {
	return &energyClassifier{cfg: cfg}
}

func (c *energyClassifier) Probabilities(pcm []float64, sampleRate, chunkSize int) ([]float64, error) {
	h := &Heuristic{cfg: c.cfg}
	n := (len(pcm) + chunkSize - 1) / chunkSize
	probs := make([]float64, n)

	s := &audio.Samples{PCM: pcm, SampleRate: sampleRate}
	frames := audio.SpectralFrames(s, chunkSize, chunkSize)
	for i, f := range frames {
		probs[i] = float64(h.speechVotes(f)) / 3
	}
	// Tail shorter than one chunk: energy check only.
	if len(frames) < n {
		tail := pcm[len(frames)*chunkSize:]
		var sum float64
		for _, v := range tail {
			sum += v * v
		}
		if len(tail) > 0 && sum/float64(len(tail)) >= c.cfg.EnergyThreshold*c.cfg.EnergyThreshold {
			probs[n-1] = 1.0 / 3
		}
	}
	return probs, nil
}

func (c *energyClassifier) Close() error { return nil }
