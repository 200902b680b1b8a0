package audio

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// FrameFeatures are the per-frame spectral statistics consumed by the
// heuristic dialogue detector.
type FrameFeatures struct {
	Time     float64 // frame start, seconds
	Energy   float64 // frame RMS
	Centroid float64 // spectral centroid, Hz
	Entropy  float64 // normalized spectral entropy, [0,1]
	ZCR      float64 // zero-crossing rate within the frame
}

// SpectralFrames slices s into frameSize windows advanced by hop samples
// and computes Hann-windowed FFT features for each. Frames shorter than
// frameSize at the tail are dropped.
func SpectralFrames(s *Samples, frameSize, hop int) []FrameFeatures {
	if frameSize < 2 || hop < 1 || len(s.PCM) < frameSize {
		return nil
	}

	fft := fourier.NewFFT(frameSize)
	window := hannWindow(frameSize)
	windowed := make([]float64, frameSize)
	nBins := frameSize/2 + 1
	mags := make([]float64, nBins)

	var frames []FrameFeatures
	for start := 0; start+frameSize <= len(s.PCM); start += hop {
		frame := s.PCM[start : start+frameSize]
		for i, v := range frame {
			windowed[i] = v * window[i]
		}
		coeffs := fft.Coefficients(nil, windowed)
		for i := 0; i < nBins; i++ {
			mags[i] = cmplxAbs(coeffs[i])
		}
		frames = append(frames, FrameFeatures{
			Time:     float64(start) / float64(s.SampleRate),
			Energy:   rms(frame),
			Centroid: spectralCentroid(mags, s.SampleRate, frameSize),
			Entropy:  spectralEntropy(mags),
			ZCR:      zeroCrossingRate(frame),
		})
	}
	return frames
}

func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}

// spectralCentroid is the magnitude-weighted mean frequency in Hz.
func spectralCentroid(mags []float64, sampleRate, frameSize int) float64 {
	var num, den float64
	binHz := float64(sampleRate) / float64(frameSize)
	for k, m := range mags {
		num += float64(k) * binHz * m
		den += m
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// spectralEntropy is the Shannon entropy of the normalized power spectrum,
// scaled to [0,1]. Flat (noisy) spectra approach 1, tonal spectra approach 0.
func spectralEntropy(mags []float64) float64 {
	var total float64
	for _, m := range mags {
		total += m * m
	}
	if total == 0 {
		return 0
	}
	var h float64
	for _, m := range mags {
		p := m * m / total
		if p > 0 {
			h -= p * math.Log2(p)
		}
	}
	return h / math.Log2(float64(len(mags)))
}
