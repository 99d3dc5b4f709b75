package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/inkmirror/internal/journal"
	"github.com/starford/inkmirror/internal/models"
	"github.com/starford/inkmirror/internal/scheduler"
	"github.com/starford/inkmirror/internal/testutil"
)

// fakeScheduler completes a pass on the first Status call after a trigger.
type fakeScheduler struct {
	mu       sync.Mutex
	st       scheduler.Status
	pending  bool
	triggers int
	onPass   func()
}

func (f *fakeScheduler) Status() scheduler.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending {
		f.pending = false
		f.st.Passes++
		if f.onPass != nil {
			f.onPass()
		}
	}
	return f.st
}

func (f *fakeScheduler) TriggerNow() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers++
	if f.st.State != scheduler.Running {
		f.pending = true
	}
}

func testServer(t *testing.T) (*Server, *fakeScheduler, *journal.DB) {
	t.Helper()
	db := testutil.TestJournal(t)
	sched := &fakeScheduler{st: scheduler.Status{State: scheduler.Idle, IntervalSeconds: 60}}
	srv := New(sched, db, "test")
	srv.pollEvery = time.Millisecond
	return srv, sched, db
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "sync_now":
		result, err = srv.syncNow(ctx, req)
	case "sync_status":
		result, err = srv.syncStatus(ctx, req)
	case "recent_runs":
		result, err = srv.recentRuns(ctx, req)
	case "run_files":
		result, err = srv.runFiles(ctx, req)
	case "file_status":
		result, err = srv.fileStatus(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func seedRun(t *testing.T, db *journal.DB, id string, started time.Time) {
	t.Helper()
	ctx := context.Background()
	_ = db.BeginRun(ctx, id, started)
	_ = db.RecordFile(ctx, id, models.FileResult{Path: "x.note", Outcome: models.OutcomeSkipped, SyncedAt: started})
	_ = db.FinishRun(ctx, models.Report{RunID: id, FinishedAt: started, Total: 1, Skipped: 1}, nil)
}

func TestSyncNow_NoWait(t *testing.T) {
	srv, sched, _ := testServer(t)

	r := callTool(t, srv, "sync_now", map[string]interface{}{})
	if text := resultText(r); text != "sync pass requested" {
		t.Errorf("result = %q", text)
	}
	if sched.triggers != 1 {
		t.Errorf("triggers = %d, want 1", sched.triggers)
	}
}

func TestSyncNow_AlreadyRunning(t *testing.T) {
	srv, sched, _ := testServer(t)
	sched.st.State = scheduler.Running

	r := callTool(t, srv, "sync_now", map[string]interface{}{})
	if text := resultText(r); !strings.Contains(text, "already running") {
		t.Errorf("result = %q", text)
	}
}

func TestSyncNow_Wait(t *testing.T) {
	srv, sched, db := testServer(t)
	sched.onPass = func() { seedRun(t, db, "fresh", time.Now()) }

	r := callTool(t, srv, "sync_now", map[string]interface{}{"wait": true})
	if r.IsError {
		t.Fatalf("error result: %s", resultText(r))
	}
	var out struct {
		Status scheduler.Status `json:"status"`
		Run    journal.RunRow   `json:"run"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Status.Passes != 1 || out.Run.ID != "fresh" {
		t.Errorf("out = %+v", out)
	}
}

func TestSyncStatus(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "sync_status", nil)
	if text := resultText(r); !strings.Contains(text, `"state": "idle"`) {
		t.Errorf("status = %s", text)
	}
}

func TestRecentRuns(t *testing.T) {
	srv, _, db := testServer(t)

	r := callTool(t, srv, "recent_runs", map[string]interface{}{})
	if text := resultText(r); text != "no sync passes recorded yet" {
		t.Errorf("empty result = %q", text)
	}

	seedRun(t, db, "a", time.Now().Add(-time.Minute))
	seedRun(t, db, "b", time.Now())

	r = callTool(t, srv, "recent_runs", map[string]interface{}{"limit": 1})
	var runs []journal.RunRow
	if err := json.Unmarshal([]byte(resultText(r)), &runs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "b" {
		t.Errorf("runs = %+v", runs)
	}
}

func TestRunFiles(t *testing.T) {
	srv, _, db := testServer(t)
	seedRun(t, db, "r1", time.Now())

	r := callTool(t, srv, "run_files", map[string]interface{}{"run_id": "r1"})
	if !strings.Contains(resultText(r), "x.note") {
		t.Errorf("files = %s", resultText(r))
	}

	r = callTool(t, srv, "run_files", map[string]interface{}{"run_id": "missing"})
	if !r.IsError {
		t.Error("expected error for unknown run")
	}

	r = callTool(t, srv, "run_files", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error for missing run_id")
	}
}

func TestFileStatus(t *testing.T) {
	srv, _, db := testServer(t)
	seedRun(t, db, "r1", time.Now())

	r := callTool(t, srv, "file_status", map[string]interface{}{"path": "x.note"})
	if r.IsError {
		t.Fatalf("error result: %s", resultText(r))
	}
	var res models.FileResult
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Path != "x.note" || res.Outcome != models.OutcomeSkipped {
		t.Errorf("result = %+v", res)
	}

	r = callTool(t, srv, "file_status", map[string]interface{}{"path": "other.note"})
	if !r.IsError || !strings.Contains(resultText(r), "no sync recorded") {
		t.Errorf("unknown path result = %s", resultText(r))
	}
}
