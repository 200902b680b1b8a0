package syncer

import (
	"context"
	"fmt"
	"strconv"

	"github.com/snarg/subsync/internal/audio"
	"github.com/snarg/subsync/internal/correlate"
	"github.com/snarg/subsync/internal/rate"
	"github.com/snarg/subsync/internal/vad"
)

// localVadDetect decodes the media, resamples to the classifier rate, runs
// speech detection, and correlates the resulting speech activity against
// the subtitle activity signal. A clip with no detectable speech yields a
// zero-confidence candidate, not an error: only decode and classifier
// failures are fatal.
func (s *Syncer) localVadDetect(ctx context.Context, req Request) (candidate, error) {
	extractor := &audio.Extractor{}
	samples, err := extractor.Extract(ctx, req.MediaPath, audio.ExtractOpts{})
	if err != nil {
		return candidate{}, fmt.Errorf("decode %s: %w", req.MediaPath, err)
	}

	rec := rate.NewOptimizer(s.log).AutoOptimize(samples)
	diag := map[string]string{
		"decoded_rate": strconv.Itoa(samples.SampleRate),
		"vad_rate":     strconv.Itoa(s.cfg.VADSampleRate),
	}
	rateDiagnostics(rec, diag)

	if samples.SampleRate != s.cfg.VADSampleRate {
		samples, err = rate.Resample(samples, s.cfg.VADSampleRate, rate.Quality(s.cfg.ResampleQuality))
		if err != nil {
			return candidate{}, fmt.Errorf("resample to %d Hz: %w", s.cfg.VADSampleRate, err)
		}
	}

	det, err := vad.NewDetector(s.vadConfig(), s.heuristicConfig(), s.log)
	if err != nil {
		return candidate{}, err
	}
	vres, err := det.DetectPCM(samples)
	if err != nil {
		return candidate{}, err
	}
	diag["speech_segments"] = strconv.Itoa(len(vres.Segments))

	if len(vres.Segments) == 0 {
		return candidate{
			diagnostics: diag,
			warnings:    []string{"no speech detected in audio, offset unavailable"},
		}, nil
	}

	hop := float64(s.cfg.EnvelopeHopMs) / 1000
	speech := speechActivity(vres.Segments, hop, samples.Duration)
	subs := req.Doc.ActivitySignal(hop, signalLength(req.Doc.Duration(), hop))

	corr := correlate.Estimate(speech, hop, subs, s.cfg.MaxOffsetSeconds, s.cfg.CorrelationThreshold)
	diag["correlation_peak"] = fmt.Sprintf("%.3f", corr.Peak)
	diag["lags_searched"] = strconv.Itoa(corr.LagsSearched)

	cand := candidate{
		correlationPeak: corr.Peak,
		diagnostics:     diag,
	}
	if corr.Confidence == 0 {
		cand.warnings = append(cand.warnings,
			fmt.Sprintf("correlation peak %.3f below threshold %.2f, offset unavailable",
				corr.Peak, s.cfg.CorrelationThreshold))
		return cand, nil
	}

	cand.offset = corr.OffsetSeconds
	// Alignment quality dominates; the VAD's own confidence tempers it.
	cand.confidence = 0.6*corr.Confidence + 0.4*vres.Confidence
	return cand, nil
}

func (s *Syncer) vadConfig() vad.Config {
	return vad.Config{
		SampleRate:          s.cfg.VADSampleRate,
		ChunkSize:           s.cfg.VADChunkSize,
		Sensitivity:         s.cfg.VADSensitivity,
		PaddingChunks:       s.cfg.VADPaddingChunks,
		MinSpeechDurationMs: s.cfg.VADMinSpeechMs,
		SpeechMergeGapMs:    s.cfg.VADMergeGapMs,
		MaxConfidence:       s.cfg.VADMaxConfidence,
		ModelPath:           s.cfg.VADModelPath,
	}
}

func (s *Syncer) heuristicConfig() vad.HeuristicConfig {
	return vad.HeuristicConfig{
		EnergyThreshold:  s.cfg.EnergyThreshold,
		CentroidLowHz:    s.cfg.CentroidLowHz,
		CentroidHighHz:   s.cfg.CentroidHighHz,
		EntropyThreshold: s.cfg.EntropyThreshold,
		MinDurationMs:    s.cfg.MinDialogueMs,
		MergeGapMs:       s.cfg.DialogueMergeGapMs,
	}
}

// rateDiagnostics surfaces the optimizer's verdict in the result. The
// classifier pins the analysis rate, so the recommendation is advisory
// output rather than the resample target.
func rateDiagnostics(rec rate.Recommendation, diag map[string]string) {
	diag["use_case"] = string(rec.UseCase)
	diag["recommended_rate"] = strconv.Itoa(rec.TargetRate)
	diag["rate_change_recommended"] = strconv.FormatBool(rec.Changed)
}

// speechActivity rasterizes speech segments into a binary signal with one
// value per hop, the same representation ActivitySignal uses for subtitles.
func speechActivity(segs []vad.Segment, hopSeconds, duration float64) []float64 {
	sig := make([]float64, signalLength(duration, hopSeconds))
	for _, seg := range segs {
		lo := int(seg.Start / hopSeconds)
		hi := int(seg.End / hopSeconds)
		for i := lo; i <= hi && i < len(sig); i++ {
			sig[i] = 1
		}
	}
	return sig
}

func signalLength(duration, hopSeconds float64) int {
	if hopSeconds <= 0 || duration <= 0 {
		return 0
	}
	return int(duration/hopSeconds) + 1
}
