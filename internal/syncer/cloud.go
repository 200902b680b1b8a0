package syncer

import (
	"context"
	"fmt"
	"strconv"

	"github.com/snarg/subsync/internal/metrics"
)

// transcriptPreviewLen bounds how much transcript lands in diagnostics.
const transcriptPreviewLen = 120

// cloudDetect measures the offset by cloud transcription. Errors propagate
// to the caller, which decides whether to fall back.
func (s *Syncer) cloudDetect(ctx context.Context, req Request) (candidate, error) {
	det, err := s.cloud.DetectOffset(ctx, req.MediaPath, req.Doc)
	if err != nil {
		metrics.WhisperRequestsTotal.WithLabelValues("error").Inc()
		return candidate{}, fmt.Errorf("cloud transcription: %w", err)
	}
	metrics.WhisperRequestsTotal.WithLabelValues("ok").Inc()

	preview := det.Transcript
	if len(preview) > transcriptPreviewLen {
		preview = preview[:transcriptPreviewLen] + "…"
	}
	return candidate{
		offset:     det.OffsetSeconds,
		confidence: det.Confidence,
		diagnostics: map[string]string{
			"transcript":     preview,
			"segments":       strconv.Itoa(det.SegmentCount),
			"words":          strconv.Itoa(det.WordCount),
			"expected_onset": fmt.Sprintf("%.2f", det.ExpectedOnset),
			"observed_onset": fmt.Sprintf("%.2f", det.ObservedOnset),
		},
	}, nil
}
