package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog"

	"github.com/snarg/subsync/internal/config"
	"github.com/snarg/subsync/internal/metrics"
	"github.com/snarg/subsync/internal/subtitle"
	"github.com/snarg/subsync/internal/transcribe"
)

// Request is one synchronization job. The document is mutated in place
// when Apply is set and the offset clears the confidence gate.
type Request struct {
	MediaPath    string
	Doc          *subtitle.Document
	ManualOffset *float64
	Apply        bool
}

// Syncer runs the method-selection state machine for one request at a
// time. It holds no per-request state, so one Syncer may serve many
// concurrent requests.
type Syncer struct {
	cfg   *config.Config
	cloud *transcribe.Detector
	log   zerolog.Logger

	// Detection entry points, swappable in tests.
	detectLocal func(ctx context.Context, req Request) (candidate, error)
	detectCloud func(ctx context.Context, req Request) (candidate, error)
}

// New builds a syncer from validated configuration.
func New(cfg *config.Config, log zerolog.Logger) (*Syncer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Syncer{
		cfg: cfg,
		cloud: transcribe.NewDetector(transcribe.DetectorConfig{
			URL:           cfg.WhisperURL,
			APIKey:        cfg.WhisperAPIKey,
			Model:         cfg.WhisperModel,
			Language:      cfg.WhisperLang,
			Temperature:   cfg.WhisperTemp,
			Timeout:       cfg.WhisperTimeout,
			MaxAttempts:   cfg.WhisperRetries,
			RetryDelay:    cfg.WhisperRetryDelay,
			WindowSeconds: cfg.WindowSeconds,
		}, log),
		log: log.With().Str("component", "syncer").Logger(),
	}
	s.detectLocal = s.localVadDetect
	s.detectCloud = s.cloudDetect
	return s, nil
}

// newStateMachine models the orchestration lifecycle. The fallback event
// is the only edge back into method selection.
func newStateMachine() *fsm.FSM {
	return fsm.NewFSM("idle",
		fsm.Events{
			{Name: "select", Src: []string{"idle"}, Dst: "selecting"},
			{Name: "detect", Src: []string{"selecting"}, Dst: "detecting"},
			{Name: "fallback", Src: []string{"detecting"}, Dst: "selecting"},
			{Name: "score", Src: []string{"detecting"}, Dst: "scoring"},
			{Name: "apply", Src: []string{"scoring"}, Dst: "applying"},
			{Name: "report", Src: []string{"scoring"}, Dst: "reporting"},
			{Name: "finish", Src: []string{"applying", "reporting"}, Dst: "done"},
		},
		fsm.Callbacks{},
	)
}

// Sync resolves and optionally applies the offset for one request.
// A manual offset always wins. Otherwise the preferred method runs first
// and any cloud failure or sub-floor confidence falls back to local VAD.
// No-signal outcomes return a zero-confidence result, not an error.
func (s *Syncer) Sync(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	machine := newStateMachine()
	transition := func(event string) {
		if err := machine.Event(ctx, event); err != nil {
			s.log.Warn().Err(err).Str("event", event).Msg("state machine transition rejected")
		}
	}

	transition("select")
	method, cand, err := s.detect(ctx, transition, req)
	if err != nil {
		metrics.SyncsTotal.WithLabelValues(string(method), "error").Inc()
		return nil, err
	}

	transition("score")
	res := &Result{
		OffsetSeconds:   cand.offset,
		Confidence:      cand.confidence,
		Method:          method,
		CorrelationPeak: cand.correlationPeak,
		Diagnostics:     cand.diagnostics,
		Warnings:        cand.warnings,
	}

	shouldApply := req.Apply && (method == MethodManual || res.Confidence > s.cfg.MinApplyConfidence)
	if shouldApply {
		transition("apply")
		req.Doc.Shift(res.OffsetSeconds)
		res.Applied = true
	} else {
		transition("report")
		if req.Apply {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("confidence %.2f below apply threshold %.2f, subtitles unchanged",
					res.Confidence, s.cfg.MinApplyConfidence))
		}
	}
	transition("finish")

	res.ProcessingTime = time.Since(start)
	metrics.SyncsTotal.WithLabelValues(string(method), "ok").Inc()
	metrics.SyncDuration.Observe(res.ProcessingTime.Seconds())
	metrics.OffsetSeconds.Observe(abs(res.OffsetSeconds))

	s.log.Info().
		Str("method", string(method)).
		Float64("offset", res.OffsetSeconds).
		Float64("confidence", res.Confidence).
		Bool("applied", res.Applied).
		Dur("elapsed", res.ProcessingTime).
		Msg("sync complete")
	return res, nil
}

// detect runs the selected method, handling the cloud→local fallback edge.
func (s *Syncer) detect(ctx context.Context, transition func(string), req Request) (Method, candidate, error) {
	if req.ManualOffset != nil {
		transition("detect")
		return MethodManual, candidate{
			offset:     *req.ManualOffset,
			confidence: 1,
			diagnostics: map[string]string{
				"source": "manual offset supplied by caller",
			},
		}, nil
	}

	if s.cfg.PreferredMethod == "cloud" {
		transition("detect")
		cand, err := s.detectCloud(ctx, req)
		if err == nil && cand.confidence >= s.cfg.MinCloudConfidence {
			return MethodCloud, cand, nil
		}

		// Cloud failed or is too uncertain: fall back to local VAD rather
		// than surfacing the failure.
		reason := fmt.Sprintf("cloud confidence %.2f below floor %.2f", cand.confidence, s.cfg.MinCloudConfidence)
		if err != nil {
			reason = err.Error()
		}
		s.log.Warn().Str("reason", reason).Msg("cloud detection failed, falling back to local VAD")
		metrics.FallbacksTotal.Inc()
		transition("fallback")
		transition("detect")

		cand, lerr := s.detectLocal(ctx, req)
		if lerr != nil {
			return MethodLocalVad, candidate{}, lerr
		}
		cand.warnings = append(cand.warnings, "cloud detection fell back to local VAD: "+reason)
		if cand.diagnostics == nil {
			cand.diagnostics = map[string]string{}
		}
		cand.diagnostics["fallback_reason"] = reason
		return MethodLocalVad, cand, nil
	}

	transition("detect")
	cand, err := s.detectLocal(ctx, req)
	if err != nil {
		return MethodLocalVad, candidate{}, err
	}
	return MethodLocalVad, cand, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
