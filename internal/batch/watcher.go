package batch

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// debounceDelay coalesces rapid Create+Write events on the same file and
// gives the writer time to finish before the subtitle is read.
const debounceDelay = 500 * time.Millisecond

// Watcher monitors a drop directory for new subtitle files and enqueues a
// sync job for each one that has a sibling video file.
type Watcher struct {
	pool     *Pool
	watchDir string
	log      zerolog.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}

	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	filesQueued  atomic.Int64
	filesSkipped atomic.Int64
	status       atomic.Value // string: "starting", "watching", "stopped"
}

// NewWatcher creates a watcher feeding the given pool.
func NewWatcher(pool *Pool, watchDir string, log zerolog.Logger) *Watcher {
	w := &Watcher{
		pool:           pool,
		watchDir:       watchDir,
		log:            log.With().Str("component", "watcher").Logger(),
		done:           make(chan struct{}),
		debounceTimers: make(map[string]*time.Timer),
	}
	w.status.Store("starting")
	return w
}

// Start begins watching. Subdirectories existing at start are watched too;
// directories created later are added as they appear.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fsw

	dirCount := 0
	err = filepath.WalkDir(w.watchDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			w.log.Warn().Err(err).Str("path", path).Msg("error walking directory")
			return nil
		}
		if d.IsDir() {
			if addErr := fsw.Add(path); addErr != nil {
				w.log.Warn().Err(addErr).Str("path", path).Msg("failed to watch directory")
			} else {
				dirCount++
			}
		}
		return nil
	})
	if err != nil {
		fsw.Close()
		return err
	}

	w.log.Info().
		Int("directories", dirCount).
		Str("watch_dir", w.watchDir).
		Msg("subtitle watcher initialized")

	w.status.Store("watching")
	go w.watchLoop()
	return nil
}

// Stop closes the fsnotify watcher and cancels pending debounce timers.
func (w *Watcher) Stop() {
	w.status.Store("stopped")
	close(w.done)
	if w.watcher != nil {
		w.watcher.Close()
	}

	w.debounceMu.Lock()
	for path, t := range w.debounceTimers {
		t.Stop()
		delete(w.debounceTimers, path)
	}
	w.debounceMu.Unlock()

	w.log.Info().
		Int64("files_queued", w.filesQueued.Load()).
		Int64("files_skipped", w.filesSkipped.Load()).
		Msg("subtitle watcher stopped")
}

// WatcherStatus reports watcher state for the health endpoint.
type WatcherStatus struct {
	Status       string `json:"status"`
	WatchDir     string `json:"watch_dir"`
	FilesQueued  int64  `json:"files_queued"`
	FilesSkipped int64  `json:"files_skipped"`
}

// Status returns the current watcher state.
func (w *Watcher) Status() WatcherStatus {
	s, _ := w.status.Load().(string)
	return WatcherStatus{
		Status:       s,
		WatchDir:     w.watchDir,
		FilesQueued:  w.filesQueued.Load(),
		FilesSkipped: w.filesSkipped.Load(),
	}
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			// New directory: add it so drops in fresh subdirectories are seen.
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := w.watcher.Add(event.Name); err != nil {
					w.log.Warn().Err(err).Str("path", event.Name).Msg("failed to watch new directory")
				}
				continue
			}

			if !strings.EqualFold(filepath.Ext(event.Name), ".srt") {
				continue
			}
			w.scheduleEnqueue(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

func (w *Watcher) scheduleEnqueue(path string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if t, ok := w.debounceTimers[path]; ok {
		t.Reset(debounceDelay)
		return
	}
	w.debounceTimers[path] = time.AfterFunc(debounceDelay, func() {
		w.debounceMu.Lock()
		delete(w.debounceTimers, path)
		w.debounceMu.Unlock()

		w.enqueue(path)
	})
}

func (w *Watcher) enqueue(subtitlePath string) {
	// A debounce timer can fire during shutdown; drop its work instead of
	// feeding a stopped pool.
	select {
	case <-w.done:
		return
	default:
	}

	media, ok := PairMedia(subtitlePath)
	if !ok {
		w.filesSkipped.Add(1)
		w.log.Warn().Str("subtitle", subtitlePath).Msg("no sibling video file, skipping")
		return
	}
	if !w.pool.Enqueue(Job{MediaPath: media, SubtitlePath: subtitlePath}) {
		w.filesSkipped.Add(1)
		w.log.Warn().Str("subtitle", subtitlePath).Msg("queue full, dropping job")
		return
	}
	w.filesQueued.Add(1)
	w.log.Debug().Str("subtitle", subtitlePath).Str("media", media).Msg("job queued")
}
