// Package batch runs many subtitle/media pairs through the sync pipeline
// with bounded concurrency, and can watch a drop directory for new work.
package batch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/subsync/internal/history"
	"github.com/snarg/subsync/internal/subtitle"
	"github.com/snarg/subsync/internal/syncer"
)

// Job is one subtitle/media pair to synchronize. When OutputPath is empty
// the subtitle file is rewritten in place.
type Job struct {
	MediaPath    string
	SubtitlePath string
	OutputPath   string
}

// Stats reports the current state of the batch queue.
type Stats struct {
	Pending   int   `json:"pending"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Runner is the sync entry point the pool drives. *syncer.Syncer satisfies it.
type Runner interface {
	Sync(ctx context.Context, req syncer.Request) (*syncer.Result, error)
}

// PoolOptions configures the batch worker pool.
type PoolOptions struct {
	Runner    Runner
	Workers   int
	QueueSize int
	// Apply controls whether detected offsets are written back. Report-only
	// batches leave every subtitle file untouched.
	Apply      bool
	JobTimeout time.Duration
	// History may be nil or disabled; outcomes are then not persisted.
	History *history.Store
	Log     zerolog.Logger
}

// Pool fans jobs out to worker goroutines. One pair's failure never aborts
// the batch: it is counted, logged, and the next job runs.
type Pool struct {
	jobs   chan Job
	runner Runner
	opts   PoolOptions
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// closeMu serializes Enqueue against Stop so a late producer (for
	// example a debounce timer firing during shutdown) gets false instead
	// of a send on the closed jobs channel.
	closeMu sync.Mutex
	closed  bool

	completed atomic.Int64
	failed    atomic.Int64
}

// NewPool creates a batch worker pool.
func NewPool(opts PoolOptions) *Pool {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = opts.Workers * 2
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 10 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		jobs:   make(chan Job, opts.QueueSize),
		runner: opts.Runner,
		opts:   opts,
		log:    opts.Log.With().Str("component", "batch").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.log.Info().Int("workers", p.opts.Workers).Int("queue_size", p.opts.QueueSize).Msg("batch pool started")
}

// Stop signals workers to drain the queue and waits for completion.
// Safe to call once; later Enqueue calls return false.
func (p *Pool) Stop() {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.closeMu.Unlock()

	p.wg.Wait()
	p.cancel()
	p.log.Info().
		Int64("completed", p.completed.Load()).
		Int64("failed", p.failed.Load()).
		Msg("batch pool stopped")
}

// Enqueue adds a job to the queue. Returns false when the queue is full or
// the pool has been stopped.
func (p *Pool) Enqueue(j Job) bool {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.jobs <- j:
		return true
	default:
		return false
	}
}

// Stats returns current queue statistics.
func (p *Pool) Stats() Stats {
	return Stats{
		Pending:   len(p.jobs),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	log := p.log.With().Int("worker", id).Logger()

	for job := range p.jobs {
		start := time.Now()
		res, err := p.processJob(job)
		if err != nil {
			p.failed.Add(1)
			log.Warn().Err(err).
				Str("subtitle", job.SubtitlePath).
				Str("media", job.MediaPath).
				Msg("sync failed")
			continue
		}
		p.completed.Add(1)
		log.Info().
			Str("subtitle", job.SubtitlePath).
			Str("method", string(res.Method)).
			Float64("offset", res.OffsetSeconds).
			Float64("confidence", res.Confidence).
			Bool("applied", res.Applied).
			Dur("elapsed", time.Since(start)).
			Msg("sync complete")
	}
}

func (p *Pool) processJob(job Job) (*syncer.Result, error) {
	ctx, cancel := context.WithTimeout(p.ctx, p.opts.JobTimeout)
	defer cancel()

	doc, err := subtitle.ParseSRTFile(job.SubtitlePath)
	if err != nil {
		return nil, fmt.Errorf("parse subtitle: %w", err)
	}

	res, err := p.runner.Sync(ctx, syncer.Request{
		MediaPath: job.MediaPath,
		Doc:       doc,
		Apply:     p.opts.Apply,
	})
	if err != nil {
		return nil, err
	}

	if res.Applied {
		out := job.OutputPath
		if out == "" {
			out = job.SubtitlePath
		}
		if err := doc.WriteSRTFile(out); err != nil {
			return nil, fmt.Errorf("write subtitle: %w", err)
		}
	}

	if p.opts.History.Enabled() {
		err := p.opts.History.Record(ctx, history.Entry{
			MediaPath:     job.MediaPath,
			SubtitlePath:  job.SubtitlePath,
			OffsetSeconds: res.OffsetSeconds,
			Confidence:    res.Confidence,
			Method:        string(res.Method),
			Applied:       res.Applied,
			DurationMs:    int(res.ProcessingTime.Milliseconds()),
			Warnings:      res.Warnings,
		})
		if err != nil {
			p.log.Warn().Err(err).Str("media", job.MediaPath).Msg("history record failed")
		}
	}
	return res, nil
}

// videoExtensions are the media containers a subtitle can pair with, in
// preference order.
var videoExtensions = []string{".mkv", ".mp4", ".avi", ".mov", ".m4v", ".webm"}

// PairMedia finds the sibling video file sharing the subtitle's basename.
func PairMedia(subtitlePath string) (string, bool) {
	base := strings.TrimSuffix(subtitlePath, filepath.Ext(subtitlePath))
	for _, ext := range videoExtensions {
		candidate := base + ext
		if fileExists(candidate) {
			return candidate, true
		}
	}
	return "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// ScanDirectory walks dir, pairing every .srt file with its sibling video.
// Unpaired subtitles are logged and skipped.
func ScanDirectory(dir string, log zerolog.Logger) ([]Job, error) {
	var jobs []Job
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".srt") {
			return nil
		}
		media, ok := PairMedia(path)
		if !ok {
			log.Warn().Str("subtitle", path).Msg("no sibling video file, skipping")
			return nil
		}
		jobs = append(jobs, Job{MediaPath: media, SubtitlePath: path})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	return jobs, nil
}
