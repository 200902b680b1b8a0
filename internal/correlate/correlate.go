// Package correlate estimates the time offset between an audio energy
// envelope and a subtitle-derived activity signal by sliding normalized
// cross-correlation.
package correlate

import "math"

// Result of an offset search.
type Result struct {
	// OffsetSeconds is the shift to apply to the subtitles so they align
	// with the audio. Positive means the subtitles fire too early.
	OffsetSeconds float64
	// Peak is the best normalized correlation found, in [-1,1].
	Peak float64
	// Confidence is Peak when it clears the threshold, else 0 — a
	// sub-threshold peak is noise, not a usable offset.
	Confidence float64
	// LagsSearched is the number of integer hop lags evaluated.
	LagsSearched int
}

// Estimate slides activity against the envelope for every integer hop lag
// within ±maxOffsetSeconds and returns the best alignment. Signals of
// unequal length are handled by correlating only the overlapping region.
// O(N·W) for N envelope hops and W lags.
func Estimate(envelope []float64, hopSeconds float64, activity []float64, maxOffsetSeconds, threshold float64) Result {
	if len(envelope) == 0 || len(activity) == 0 || hopSeconds <= 0 {
		return Result{}
	}

	maxLag := int(maxOffsetSeconds / hopSeconds)
	if maxLag < 1 {
		maxLag = 1
	}

	best := math.Inf(-1)
	bestLag := 0
	searched := 0
	for lag := -maxLag; lag <= maxLag; lag++ {
		c, ok := normalizedCorrelation(envelope, activity, lag)
		if !ok {
			continue
		}
		searched++
		if c > best {
			best = c
			bestLag = lag
		}
	}
	if searched == 0 {
		return Result{}
	}

	res := Result{
		// activity[i+lag] matching audio[i] means subtitle events lead the
		// audio by lag hops; shifting subtitles by -lag realigns them.
		OffsetSeconds: -float64(bestLag) * hopSeconds,
		Peak:          best,
		LagsSearched:  searched,
	}
	if best >= threshold {
		res.Confidence = math.Min(best, 1)
	}
	return res
}

// normalizedCorrelation computes Σ(a[i]·b[i+lag]) / sqrt(Σa[i]²·Σb[i+lag]²)
// over the index range where both signals are defined. Returns ok=false
// when the overlap is empty or either side is all zero.
func normalizedCorrelation(a, b []float64, lag int) (float64, bool) {
	lo := 0
	if lag < 0 {
		lo = -lag
	}
	hi := len(a)
	if len(b)-lag < hi {
		hi = len(b) - lag
	}
	if hi <= lo {
		return 0, false
	}

	var dot, aa, bb float64
	for i := lo; i < hi; i++ {
		av := a[i]
		bv := b[i+lag]
		dot += av * bv
		aa += av * av
		bb += bv * bv
	}
	if aa == 0 || bb == 0 {
		return 0, false
	}
	return dot / math.Sqrt(aa*bb), true
}
