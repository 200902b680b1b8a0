package vad

import (
	"fmt"

	"github.com/streamer45/silero-vad-go/speech"
)

// sileroClassifier labels chunks with the pretrained Silero ONNX speech
// model. A fresh detector is built per call and destroyed on Close — the
// underlying session is stateful and must not be shared across syncs.
type sileroClassifier struct {
	modelPath string
	threshold float32
}

func newSileroClassifier(modelPath string, sensitivity float64) *sileroClassifier {
	return &sileroClassifier{modelPath: modelPath, threshold: float32(sensitivity)}
}

func (c *sileroClassifier) Probabilities(pcm []float64, sampleRate, chunkSize int) ([]float64, error) {
	sd, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:  c.modelPath,
		SampleRate: sampleRate,
		Threshold:  c.threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("create silero detector: %w", err)
	}
	defer sd.Destroy()

	pcm32 := make([]float32, len(pcm))
	for i, v := range pcm {
		pcm32[i] = float32(v)
	}
	segments, err := sd.Detect(pcm32)
	if err != nil {
		return nil, fmt.Errorf("silero detect: %w", err)
	}

	// Map model segments back onto fixed chunks: a chunk's probability is
	// the fraction of it covered by detected speech.
	n := (len(pcm) + chunkSize - 1) / chunkSize
	probs := make([]float64, n)
	chunkSec := float64(chunkSize) / float64(sampleRate)
	for _, seg := range segments {
		end := seg.SpeechEndAt
		if end <= 0 { // 0 means speech ran to end of input
			end = float64(len(pcm)) / float64(sampleRate)
		}
		for i := 0; i < n; i++ {
			lo := float64(i) * chunkSec
			hi := lo + chunkSec
			overlap := min64(hi, end) - max64(lo, seg.SpeechStartAt)
			if overlap > 0 {
				if frac := overlap / chunkSec; frac > probs[i] {
					probs[i] = frac
				}
			}
		}
	}
	return probs, nil
}

func (c *sileroClassifier) Close() error { return nil }

func min64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
