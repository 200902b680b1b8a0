package api

import (
	"net/http"
	"time"

	"github.com/snarg/subsync/internal/audio"
	"github.com/snarg/subsync/internal/batch"
	"github.com/snarg/subsync/internal/history"
)

type HealthResponse struct {
	Status        string               `json:"status"`
	Version       string               `json:"version"`
	UptimeSeconds int64                `json:"uptime_seconds"`
	Checks        map[string]string    `json:"checks"`
	Queue         *batch.Stats         `json:"queue,omitempty"`
	Watcher       *batch.WatcherStatus `json:"watcher,omitempty"`
}

// HealthHandler reports process liveness plus the state of optional
// subsystems. A missing subsystem degrades the report, it never fails it.
type HealthHandler struct {
	store     *history.Store
	pool      *batch.Pool
	watcher   *batch.Watcher
	version   string
	startTime time.Time
}

func NewHealthHandler(store *history.Store, pool *batch.Pool, watcher *batch.Watcher, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		store:     store,
		pool:      pool,
		watcher:   watcher,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	if audio.CheckFFmpeg() {
		checks["ffmpeg"] = "ok"
	} else {
		checks["ffmpeg"] = "missing"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	if h.store.Enabled() {
		if err := h.store.HealthCheck(r.Context()); err != nil {
			checks["database"] = "error"
			if status == "healthy" {
				status = "degraded"
			}
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "not_configured"
	}

	resp := HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	}
	if h.pool != nil {
		stats := h.pool.Stats()
		resp.Queue = &stats
	}
	if h.watcher != nil {
		ws := h.watcher.Status()
		resp.Watcher = &ws
		checks["watcher"] = ws.Status
	}

	WriteJSON(w, httpStatus, resp)
}
