// Package subtitle holds the in-memory subtitle document the sync engine
// operates on, plus a minimal SRT codec for the CLI.
package subtitle

import "math"

// Entry is a single subtitle cue. Times are seconds from stream start.
type Entry struct {
	Index int
	Start float64
	End   float64
	Text  string
}

// Document is an ordered subtitle track.
type Document struct {
	Entries []Entry
}

// Duration returns the end time of the last entry, or 0 for an empty track.
func (d *Document) Duration() float64 {
	if len(d.Entries) == 0 {
		return 0
	}
	return d.Entries[len(d.Entries)-1].End
}

// Shift moves every entry by offset seconds. A start that would go negative
// clamps to 0 and the paired end is reduced by the same remainder, floored
// at 0 — no entry ever carries a negative timestamp.
func (d *Document) Shift(offset float64) {
	for i := range d.Entries {
		e := &d.Entries[i]
		e.Start = math.Max(0, e.Start+offset)
		e.End = math.Max(0, e.End+offset)
		if e.End < e.Start {
			e.End = e.Start
		}
	}
}

// ActivitySignal samples the track into a binary step signal at the given
// hop: 1 for every instant covered by any entry's [start,end), else 0.
// The signal has n samples; entries beyond n*hopSeconds are truncated.
func (d *Document) ActivitySignal(hopSeconds float64, n int) []float64 {
	sig := make([]float64, n)
	if hopSeconds <= 0 {
		return sig
	}
	for _, e := range d.Entries {
		lo := int(e.Start / hopSeconds)
		hi := int(math.Ceil(e.End / hopSeconds))
		if lo < 0 {
			lo = 0
		}
		if hi > n {
			hi = n
		}
		for i := lo; i < hi; i++ {
			sig[i] = 1
		}
	}
	return sig
}

// Clone returns a deep copy of the document so a sync attempt can mutate
// timing without touching the caller's copy.
func (d *Document) Clone() *Document {
	out := &Document{Entries: make([]Entry, len(d.Entries))}
	copy(out.Entries, d.Entries)
	return out
}
