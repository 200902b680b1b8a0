package api

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/snarg/subsync/internal/history"
	"github.com/snarg/subsync/internal/subtitle"
	"github.com/snarg/subsync/internal/syncer"
)

// SyncRunner is the detection entry point the handler drives.
// *syncer.Syncer satisfies it.
type SyncRunner interface {
	Sync(ctx context.Context, req syncer.Request) (*syncer.Result, error)
}

// SyncRequest is the POST /api/v1/sync body. Paths are resolved on the
// server's filesystem.
type SyncRequest struct {
	MediaPath    string   `json:"media_path"`
	SubtitlePath string   `json:"subtitle_path"`
	OutputPath   string   `json:"output_path,omitempty"`
	ManualOffset *float64 `json:"manual_offset,omitempty"`
	Apply        bool     `json:"apply"`
}

// SyncResponse wraps the sync result with the paths it concerns.
type SyncResponse struct {
	MediaPath    string `json:"media_path"`
	SubtitlePath string `json:"subtitle_path"`
	OutputPath   string `json:"output_path,omitempty"`
	*syncer.Result
}

// SyncHandler runs one sync job per request.
type SyncHandler struct {
	runner SyncRunner
	store  *history.Store
}

func NewSyncHandler(runner SyncRunner, store *history.Store) *SyncHandler {
	return &SyncHandler{runner: runner, store: store}
}

func (h *SyncHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.MediaPath == "" || req.SubtitlePath == "" {
		WriteError(w, http.StatusBadRequest, "media_path and subtitle_path are required")
		return
	}
	if _, err := os.Stat(req.MediaPath); err != nil {
		WriteErrorDetail(w, http.StatusNotFound, "media file not found", req.MediaPath)
		return
	}

	doc, err := subtitle.ParseSRTFile(req.SubtitlePath)
	if err != nil {
		WriteErrorDetail(w, http.StatusUnprocessableEntity, "subtitle parse failed", err.Error())
		return
	}

	res, err := h.runner.Sync(r.Context(), syncer.Request{
		MediaPath:    req.MediaPath,
		Doc:          doc,
		ManualOffset: req.ManualOffset,
		Apply:        req.Apply,
	})
	if err != nil {
		WriteErrorDetail(w, http.StatusInternalServerError, "sync failed", err.Error())
		return
	}

	out := req.OutputPath
	if res.Applied {
		if out == "" {
			out = req.SubtitlePath
		}
		if err := doc.WriteSRTFile(out); err != nil {
			WriteErrorDetail(w, http.StatusInternalServerError, "write subtitle failed", err.Error())
			return
		}
	} else {
		out = ""
	}

	h.record(r, req, res)
	WriteJSON(w, http.StatusOK, SyncResponse{
		MediaPath:    req.MediaPath,
		SubtitlePath: req.SubtitlePath,
		OutputPath:   out,
		Result:       res,
	})
}

func (h *SyncHandler) record(r *http.Request, req SyncRequest, res *syncer.Result) {
	if !h.store.Enabled() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := h.store.Record(ctx, history.Entry{
		MediaPath:     req.MediaPath,
		SubtitlePath:  req.SubtitlePath,
		OffsetSeconds: res.OffsetSeconds,
		Confidence:    res.Confidence,
		Method:        string(res.Method),
		Applied:       res.Applied,
		DurationMs:    int(res.ProcessingTime.Milliseconds()),
		Warnings:      res.Warnings,
	})
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("history record failed")
	}
}

// HistoryHandler serves recent sync outcomes.
type HistoryHandler struct {
	store *history.Store
}

func NewHistoryHandler(store *history.Store) *HistoryHandler {
	return &HistoryHandler{store: store}
}

func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.store.Enabled() {
		WriteError(w, http.StatusNotImplemented, "history store not configured")
		return
	}
	limit, _ := QueryInt(r, "limit")
	entries, err := h.store.Recent(r.Context(), limit)
	if err != nil {
		WriteErrorDetail(w, http.StatusInternalServerError, "history query failed", err.Error())
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
