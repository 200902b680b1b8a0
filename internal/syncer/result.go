// Package syncer orchestrates subtitle synchronization: it selects a
// detection method, scores the candidate offset, falls back when the cloud
// path fails, and commits the timestamp shift when confidence allows.
package syncer

import "time"

// Method identifies how an offset was obtained. The set is closed: fallback
// is a transition between these variants, not dynamic dispatch.
type Method string

const (
	MethodManual   Method = "manual"
	MethodLocalVad Method = "local_vad"
	MethodCloud    Method = "cloud"
)

// Result is the only value crossing the sync boundary outward.
type Result struct {
	OffsetSeconds   float64           `json:"offset_seconds"`
	Confidence      float64           `json:"confidence"`
	Method          Method            `json:"method_used"`
	CorrelationPeak float64           `json:"correlation_peak,omitempty"`
	Applied         bool              `json:"applied"`
	Diagnostics     map[string]string `json:"diagnostics,omitempty"`
	ProcessingTime  time.Duration     `json:"processing_duration"`
	Warnings        []string          `json:"warnings,omitempty"`
}

// candidate is an internal offset measurement from one detector.
type candidate struct {
	offset          float64
	confidence      float64
	correlationPeak float64
	diagnostics     map[string]string
	warnings        []string
}
