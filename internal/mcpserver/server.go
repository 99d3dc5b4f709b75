// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes inkmirror sync controls for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/inkmirror/internal/apperr"
	"github.com/starford/inkmirror/internal/journal"
	"github.com/starford/inkmirror/internal/models"
	"github.com/starford/inkmirror/internal/scheduler"
)

// Scheduler is the part of the sync scheduler the tools drive.
type Scheduler interface {
	Status() scheduler.Status
	TriggerNow()
}

// Journal is the read side of the sync history.
type Journal interface {
	ListRuns(ctx context.Context, limit int) ([]journal.RunRow, error)
	RunFiles(ctx context.Context, runID string) ([]models.FileResult, error)
	LastResult(ctx context.Context, path string) (*models.FileResult, error)
}

// Server wraps the MCP server with inkmirror tools.
type Server struct {
	mcp     *server.MCPServer
	sched   Scheduler
	journal Journal

	pollEvery time.Duration
	maxWait   time.Duration
}

// New creates a new MCP server with all tools registered.
func New(sched Scheduler, j Journal, version string) *Server {
	s := &Server{
		sched:     sched,
		journal:   j,
		pollEvery: 250 * time.Millisecond,
		maxWait:   10 * time.Minute,
	}

	s.mcp = server.NewMCPServer(
		"inkmirror",
		version,
		server.WithToolCapabilities(false),
	)

	s.mcp.AddTool(mcp.NewTool("sync_now",
		mcp.WithDescription("Start a sync pass that mirrors handwritten .note files into the note store. "+
			"If a pass is already running no second pass is started."),
		mcp.WithBoolean("wait", mcp.Description("Wait for the pass to finish and return its summary")),
	), s.syncNow)

	s.mcp.AddTool(mcp.NewTool("sync_status",
		mcp.WithDescription("Scheduler state (idle, running, failed_for_target), interval and last error."),
	), s.syncStatus)

	s.mcp.AddTool(mcp.NewTool("recent_runs",
		mcp.WithDescription("Most recent sync passes with per-outcome counts, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs (default 10)")),
	), s.recentRuns)

	s.mcp.AddTool(mcp.NewTool("run_files",
		mcp.WithDescription("What a sync pass did with every source file."),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("Run id as returned by recent_runs")),
	), s.runFiles)

	s.mcp.AddTool(mcp.NewTool("file_status",
		mcp.WithDescription("Latest recorded outcome for one source file."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path relative to the source directory, e.g. work/meeting.note")),
	), s.fileStatus)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) syncNow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	before := s.sched.Status()
	s.sched.TriggerNow()
	if !req.GetBool("wait", false) {
		if before.State == scheduler.Running {
			return mcp.NewToolResultText("a sync pass is already running"), nil
		}
		return mcp.NewToolResultText("sync pass requested"), nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.maxWait)
	defer cancel()
	ticker := time.NewTicker(s.pollEvery)
	defer ticker.Stop()

	for {
		st := s.sched.Status()
		started := st.Passes > before.Passes || before.State == scheduler.Running
		if started && st.State != scheduler.Running {
			runs, err := s.journal.ListRuns(ctx, 1)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			out := map[string]any{"status": st}
			if len(runs) > 0 {
				out["run"] = runs[0]
			}
			return jsonResult(out), nil
		}
		select {
		case <-ctx.Done():
			return mcp.NewToolResultError("timed out waiting for the sync pass"), nil
		case <-ticker.C:
		}
	}
}

func (s *Server) syncStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.sched.Status()), nil
}

func (s *Server) recentRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 10)
	if limit <= 0 {
		return mcp.NewToolResultError("limit must be positive"), nil
	}
	runs, err := s.journal.ListRuns(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(runs) == 0 {
		return mcp.NewToolResultText("no sync passes recorded yet"), nil
	}
	return jsonResult(runs), nil
}

func (s *Server) runFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	files, err := s.journal.RunFiles(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("run not found: %s", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(files), nil
}

func (s *Server) fileStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.journal.LastResult(ctx, path)
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("no sync recorded for %s", path)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}
