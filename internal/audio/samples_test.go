package audio

import (
	"math"
	"testing"
)

// sine builds a mono test tone.
func sine(freq float64, rate int, duration float64) *Samples {
	n := int(duration * float64(rate))
	pcm := make([]float64, n)
	for i := range pcm {
		pcm[i] = math.Sin(2 * math.Pi * freq * float64(i) / float64(rate))
	}
	return &Samples{PCM: pcm, SampleRate: rate, Channels: 1, Duration: duration}
}

func TestEnvelope_ConstantSignal(t *testing.T) {
	s := &Samples{PCM: make([]float64, 8000), SampleRate: 8000, Duration: 1}
	for i := range s.PCM {
		s.PCM[i] = 0.5
	}
	env := Envelope(s, 0.1)

	if len(env.Values) != 10 {
		t.Fatalf("len = %d, want 10", len(env.Values))
	}
	for i, v := range env.Values {
		if math.Abs(v-0.5) > 1e-9 {
			t.Errorf("env[%d] = %v, want 0.5", i, v)
		}
	}
}

func TestEnvelope_SilenceVsTone(t *testing.T) {
	s := sine(440, 8000, 2.0)
	// Mute the second half.
	for i := len(s.PCM) / 2; i < len(s.PCM); i++ {
		s.PCM[i] = 0
	}
	env := Envelope(s, 0.1)

	n := len(env.Values)
	if env.Values[2] < 0.5 {
		t.Errorf("tone hop energy = %v, want ~0.707", env.Values[2])
	}
	if env.Values[n-2] != 0 {
		t.Errorf("silent hop energy = %v, want 0", env.Values[n-2])
	}
}

func TestSpectralFrames_CentroidTracksFrequency(t *testing.T) {
	low := SpectralFrames(sine(200, 16000, 0.5), 1024, 512)
	high := SpectralFrames(sine(3000, 16000, 0.5), 1024, 512)

	if len(low) == 0 || len(high) == 0 {
		t.Fatal("no frames produced")
	}
	if math.Abs(low[0].Centroid-200) > 100 {
		t.Errorf("low centroid = %v Hz, want ~200", low[0].Centroid)
	}
	if math.Abs(high[0].Centroid-3000) > 300 {
		t.Errorf("high centroid = %v Hz, want ~3000", high[0].Centroid)
	}
}

func TestSpectralFrames_EntropyToneVsNoise(t *testing.T) {
	tone := SpectralFrames(sine(440, 16000, 0.2), 512, 256)

	// Deterministic pseudo-noise, good enough for a spectrum spread check.
	noise := &Samples{PCM: make([]float64, 3200), SampleRate: 16000, Duration: 0.2}
	seed := uint64(1)
	for i := range noise.PCM {
		seed = seed*6364136223846793005 + 1442695040888963407
		noise.PCM[i] = float64(int64(seed>>11))/float64(1<<52) - 1
	}
	noisy := SpectralFrames(noise, 512, 256)

	if tone[0].Entropy >= noisy[0].Entropy {
		t.Errorf("tone entropy %v should be below noise entropy %v", tone[0].Entropy, noisy[0].Entropy)
	}
}

func TestZeroCrossingRate(t *testing.T) {
	// Alternating signal crosses on every step.
	s := []float64{1, -1, 1, -1, 1}
	if got := zeroCrossingRate(s); got != 1 {
		t.Errorf("zcr = %v, want 1", got)
	}
	flat := []float64{1, 1, 1, 1}
	if got := zeroCrossingRate(flat); got != 0 {
		t.Errorf("zcr = %v, want 0", got)
	}
}

func TestStats_SpeechLikeVariance(t *testing.T) {
	// Bursts separated by silence should show higher energy variance than
	// a sustained tone.
	bursty := sine(440, 8000, 2.0)
	for i := range bursty.PCM {
		if (i/2000)%2 == 1 {
			bursty.PCM[i] = 0
		}
	}
	sustained := sine(440, 8000, 2.0)

	if Stats(bursty).EnergyVariance <= Stats(sustained).EnergyVariance {
		t.Error("bursty signal should have higher energy variance than sustained tone")
	}
}
