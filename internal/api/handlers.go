package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/inkmirror/internal/apperr"
	"github.com/starford/inkmirror/internal/models"
)

// Scheduler is the part of the sync scheduler the API drives.
type Scheduler interface {
	Status() StatusResponse
	TriggerNow()
}

// Journal is the read side of the sync history.
type Journal interface {
	ListRuns(ctx context.Context, limit int) ([]RunRow, error)
	RunFiles(ctx context.Context, runID string) ([]models.FileResult, error)
}

// Pinger checks that the destination store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

const maxRunsLimit = 200

// Handler holds API route handlers.
type Handler struct {
	sched   Scheduler
	journal Journal
}

// NewHandler creates a new Handler.
func NewHandler(sched Scheduler, journal Journal) *Handler {
	return &Handler{sched: sched, journal: journal}
}

// Status handles GET /api/status.
//
//	@Summary		Scheduler state, interval and last pass
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Security		BearerAuth
//	@Router			/status [get]
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.sched.Status())
}

// ListRuns handles GET /api/runs.
//
//	@Summary		Recent sync passes, newest first
//	@Tags			sync
//	@Produce		json
//	@Param			limit	query		int	false	"Maximum number of runs"
//	@Success		200		{object}	RunListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/runs [get]
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("limit must be a positive integer"))
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := h.journal.ListRuns(r.Context(), limit)
	if err != nil {
		slog.Error("list runs failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if runs == nil {
		runs = []RunRow{}
	}
	writeJSON(w, http.StatusOK, RunListResponse{Runs: runs})
}

// RunFiles handles GET /api/runs/{id}/files.
//
//	@Summary		Per-file results of a sync pass
//	@Tags			sync
//	@Produce		json
//	@Param			id	path		string	true	"Run id"
//	@Success		200	{object}	RunFilesResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/runs/{id}/files [get]
func (h *Handler) RunFiles(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	files, err := h.journal.RunFiles(r.Context(), id)
	if errors.Is(err, apperr.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody("run not found"))
		return
	}
	if err != nil {
		slog.Error("run files failed", slog.String("run_id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, RunFilesResponse{RunID: id, Files: files})
}

// TriggerSync handles POST /api/sync.
//
//	@Summary		Request an immediate sync pass
//	@Description	The pass is skipped if one is already running.
//	@Tags			sync
//	@Produce		json
//	@Success		202	{object}	SyncAcceptedResponse
//	@Security		BearerAuth
//	@Router			/sync [post]
func (h *Handler) TriggerSync(w http.ResponseWriter, _ *http.Request) {
	h.sched.TriggerNow()
	writeJSON(w, http.StatusAccepted, SyncAcceptedResponse{Status: "accepted"})
}
