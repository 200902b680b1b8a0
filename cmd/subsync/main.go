package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/subsync/internal/api"
	"github.com/snarg/subsync/internal/batch"
	"github.com/snarg/subsync/internal/config"
	"github.com/snarg/subsync/internal/history"
	"github.com/snarg/subsync/internal/subtitle"
	"github.com/snarg/subsync/internal/syncer"
)

var version = "dev"

func main() {
	var (
		mediaPath    = flag.String("media", "", "media file to sync against")
		subtitlePath = flag.String("subtitle", "", "subtitle file (.srt)")
		outputPath   = flag.String("output", "", "output subtitle path (default: rewrite in place)")
		manualOffset = flag.Float64("offset", 0, "manual offset in seconds, skips detection")
		apply        = flag.Bool("apply", false, "write the shifted subtitles back")
		batchDir     = flag.String("batch", "", "sync every subtitle/video pair under this directory")
		watchDir     = flag.String("watch", "", "watch this directory for dropped subtitle files")
		serve        = flag.Bool("serve", false, "run the HTTP service")
		addr         = flag.String("addr", "", "HTTP listen address (serve mode)")
		method       = flag.String("method", "", "preferred detection method: vad or cloud")
		workers      = flag.Int("workers", 0, "batch worker count")
		logLevel     = flag.String("log-level", "", "log level: trace, debug, info, warn, error")
		envFile      = flag.String("env", "", "path to .env file")
		showVersion  = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("subsync " + version)
		return
	}

	cfg, err := config.Load(config.Overrides{
		EnvFile:  *envFile,
		LogLevel: *logLevel,
		HTTPAddr: *addr,
		Method:   *method,
		Workers:  *workers,
	})
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("subsync starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := history.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open history store")
	}
	defer store.Close()

	s, err := syncer.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build syncer")
	}

	var offset *float64
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "offset" {
			offset = manualOffset
		}
	})

	switch {
	case *serve:
		runServe(ctx, cfg, s, store, log)
	case *watchDir != "":
		runWatch(ctx, cfg, s, store, *watchDir, *apply, log)
	case *batchDir != "":
		runBatch(cfg, s, store, *batchDir, *apply, log)
	case *subtitlePath != "":
		runSingle(ctx, s, store, singleJob{
			media:    *mediaPath,
			subtitle: *subtitlePath,
			output:   *outputPath,
			offset:   offset,
			apply:    *apply,
		}, log)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

type singleJob struct {
	media    string
	subtitle string
	output   string
	offset   *float64
	apply    bool
}

func runSingle(ctx context.Context, s *syncer.Syncer, store *history.Store, job singleJob, log zerolog.Logger) {
	if job.media == "" && job.offset == nil {
		log.Fatal().Msg("-media is required unless -offset is given")
	}

	doc, err := subtitle.ParseSRTFile(job.subtitle)
	if err != nil {
		log.Fatal().Err(err).Msg("subtitle parse failed")
	}

	res, err := s.Sync(ctx, syncer.Request{
		MediaPath:    job.media,
		Doc:          doc,
		ManualOffset: job.offset,
		Apply:        job.apply,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("sync failed")
	}

	if res.Applied {
		out := job.output
		if out == "" {
			out = job.subtitle
		}
		if err := doc.WriteSRTFile(out); err != nil {
			log.Fatal().Err(err).Msg("write subtitle failed")
		}
		log.Info().Str("output", out).Msg("subtitles written")
	}

	if store.Enabled() {
		err := store.Record(ctx, history.Entry{
			MediaPath:     job.media,
			SubtitlePath:  job.subtitle,
			OffsetSeconds: res.OffsetSeconds,
			Confidence:    res.Confidence,
			Method:        string(res.Method),
			Applied:       res.Applied,
			DurationMs:    int(res.ProcessingTime.Milliseconds()),
			Warnings:      res.Warnings,
		})
		if err != nil {
			log.Warn().Err(err).Msg("history record failed")
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(res)
}

func runBatch(cfg *config.Config, s *syncer.Syncer, store *history.Store, dir string, apply bool, log zerolog.Logger) {
	jobs, err := batch.ScanDirectory(dir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("directory scan failed")
	}
	if len(jobs) == 0 {
		log.Warn().Str("dir", dir).Msg("no subtitle/video pairs found")
		return
	}

	pool := batch.NewPool(batch.PoolOptions{
		Runner:    s,
		Workers:   cfg.Workers,
		QueueSize: len(jobs),
		Apply:     apply,
		History:   store,
		Log:       log,
	})
	pool.Start()
	for _, j := range jobs {
		pool.Enqueue(j)
	}
	pool.Stop()

	stats := pool.Stats()
	log.Info().
		Int64("completed", stats.Completed).
		Int64("failed", stats.Failed).
		Msg("batch finished")
}

func runWatch(ctx context.Context, cfg *config.Config, s *syncer.Syncer, store *history.Store, dir string, apply bool, log zerolog.Logger) {
	pool := batch.NewPool(batch.PoolOptions{
		Runner:    s,
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
		Apply:     apply,
		History:   store,
		Log:       log,
	})
	pool.Start()

	w := batch.NewWatcher(pool, dir, log)
	if err := w.Start(); err != nil {
		log.Fatal().Err(err).Msg("watcher start failed")
	}

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")
	w.Stop()
	pool.Stop()
}

func runServe(ctx context.Context, cfg *config.Config, s *syncer.Syncer, store *history.Store, log zerolog.Logger) {
	srv := api.NewServer(api.ServerOptions{
		Config:    cfg,
		Runner:    s,
		Store:     store,
		Version:   version,
		StartTime: time.Now(),
		Log:       log.With().Str("component", "http").Logger(),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}
	log.Info().Msg("subsync stopped")
}
