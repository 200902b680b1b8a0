// Package vad detects spoken dialogue in decoded audio. It carries two
// detectors over one segment model: a spectral-heuristic frame voter and a
// chunk classifier VAD that can run a pretrained speech model.
package vad

import "sort"

// Segment is a contiguous time range classified as speech.
// Invariant after postprocessing: End > Start, ascending, non-overlapping.
type Segment struct {
	Start      float64
	End        float64
	Confidence float64
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 { return s.End - s.Start }

// mergeClose joins segments whose gap is below maxGap seconds, keeping the
// max confidence of the merged pair. Input must be ascending by start.
func mergeClose(segs []Segment, maxGap float64) []Segment {
	if len(segs) == 0 {
		return segs
	}
	out := []Segment{segs[0]}
	for _, s := range segs[1:] {
		last := &out[len(out)-1]
		if s.Start-last.End <= maxGap {
			if s.End > last.End {
				last.End = s.End
			}
			if s.Confidence > last.Confidence {
				last.Confidence = s.Confidence
			}
			continue
		}
		out = append(out, s)
	}
	return out
}

// dropShort removes segments shorter than minDuration seconds.
func dropShort(segs []Segment, minDuration float64) []Segment {
	out := segs[:0]
	for _, s := range segs {
		if s.Duration() >= minDuration {
			out = append(out, s)
		}
	}
	return out
}

func sortAscending(segs []Segment) {
	sort.Slice(segs, func(i, j int) bool { return segs[i].Start < segs[j].Start })
}
