package api

import (
	"github.com/starford/inkmirror/internal/journal"
	"github.com/starford/inkmirror/internal/models"
	"github.com/starford/inkmirror/internal/scheduler"
)

// StatusResponse is the scheduler snapshot (aliased from the scheduler package).
type StatusResponse = scheduler.Status

// RunRow is one recorded pass (aliased from the journal package).
type RunRow = journal.RunRow

// RunListResponse wraps recent passes, newest first.
type RunListResponse struct {
	Runs []RunRow `json:"runs" validate:"required"`
}

// RunFilesResponse lists the per-file results of a pass.
type RunFilesResponse struct {
	RunID string              `json:"run_id" example:"3f1c2a9e-7d4b-4c1a-9a0e-2b7f5d1e8c44" validate:"required"`
	Files []models.FileResult `json:"files" validate:"required"`
}

// SyncAcceptedResponse is returned when a pass has been requested.
type SyncAcceptedResponse struct {
	Status string `json:"status" example:"accepted" validate:"required"`
}
