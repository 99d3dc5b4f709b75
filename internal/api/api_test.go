package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/inkmirror/internal/journal"
	"github.com/starford/inkmirror/internal/models"
	"github.com/starford/inkmirror/internal/scheduler"
	"github.com/starford/inkmirror/internal/testutil"
)

type fakeScheduler struct {
	status   scheduler.Status
	triggers atomic.Int32
}

func (f *fakeScheduler) Status() StatusResponse { return f.status }
func (f *fakeScheduler) TriggerNow()            { f.triggers.Add(1) }

// testEnv sets up a journal, a fake scheduler and the router.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (*fakeScheduler, *journal.DB, http.Handler) {
	t.Helper()
	return testEnvWithSSE(t, authToken != "", authToken, nil)
}

func testEnvWithSSE(t *testing.T, authEnabled bool, token string, sseHandler http.Handler) (*fakeScheduler, *journal.DB, http.Handler) {
	t.Helper()
	sched := &fakeScheduler{status: scheduler.Status{
		State:           scheduler.Idle,
		Interval:        time.Minute,
		IntervalSeconds: 60,
		Passes:          3,
	}}
	db := testutil.TestJournal(t)
	router := NewRouter(NewHandler(sched, db), authEnabled, token, sseHandler)
	return sched, db, router
}

func seedRun(t *testing.T, db *journal.DB, id string, started time.Time) {
	t.Helper()
	ctx := context.Background()
	if err := db.BeginRun(ctx, id, started); err != nil {
		t.Fatal(err)
	}
	_ = db.RecordFile(ctx, id, models.FileResult{Path: "a/b/file.note", NoteID: "n1", Outcome: models.OutcomeCreated, SyncedAt: started})
	_ = db.FinishRun(ctx, models.Report{RunID: id, StartedAt: started, FinishedAt: started.Add(time.Second), Total: 1, Created: 1}, nil)
}

func TestStatus(t *testing.T) {
	_, _, router := testEnv(t, "")

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got["state"] != "idle" || got["interval_seconds"] != float64(60) || got["passes"] != float64(3) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestTriggerSync(t *testing.T) {
	sched, _, router := testEnv(t, "")

	req := httptest.NewRequest(http.MethodPost, "/sync", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	if n := sched.triggers.Load(); n != 1 {
		t.Errorf("triggers = %d, want 1", n)
	}
}

func TestListRuns(t *testing.T) {
	_, db, router := testEnv(t, "")
	base := time.Now()
	seedRun(t, db, "old", base.Add(-time.Hour))
	seedRun(t, db, "new", base)

	req := httptest.NewRequest(http.MethodGet, "/runs?limit=1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp RunListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Runs) != 1 || resp.Runs[0].ID != "new" || resp.Runs[0].Created != 1 {
		t.Errorf("runs = %+v", resp.Runs)
	}
}

func TestListRuns_EmptyIsArray(t *testing.T) {
	_, _, router := testEnv(t, "")

	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body := w.Body.String(); body != "{\"runs\":[]}\n" {
		t.Errorf("body = %q", body)
	}
}

func TestListRuns_BadLimit(t *testing.T) {
	_, _, router := testEnv(t, "")

	for _, q := range []string{"abc", "0", "-3"} {
		req := httptest.NewRequest(http.MethodGet, "/runs?limit="+q, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: status = %d, want 400", q, w.Code)
		}
	}
}

func TestRunFiles(t *testing.T) {
	_, db, router := testEnv(t, "")
	seedRun(t, db, "r1", time.Now())

	req := httptest.NewRequest(http.MethodGet, "/runs/r1/files", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp RunFilesResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.RunID != "r1" || len(resp.Files) != 1 || resp.Files[0].Outcome != models.OutcomeCreated {
		t.Errorf("resp = %+v", resp)
	}
}

func TestRunFiles_NotFound(t *testing.T) {
	_, _, router := testEnv(t, "")

	req := httptest.NewRequest(http.MethodGet, "/runs/nope/files", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, _, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodPost, "/sync", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Errorf("authed trigger = %d, want 202", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	sched, _, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodPost, "/sync", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
	if sched.triggers.Load() != 0 {
		t.Error("unauthenticated request triggered a pass")
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, _, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, _, router := testEnv(t, "")

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// blockingSSE writes headers and blocks until the request context is done.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, _, router := testEnvWithSSE(t, true, "secret", blockingSSE)

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, _, router := testEnvWithSSE(t, true, "tok", blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d, want 200", w.Code)
	}
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestHealth(t *testing.T) {
	tests := []struct {
		name string
		path string
		err  error
		want int
	}{
		{"live", "/health/live", errors.New("down"), http.StatusOK},
		{"ready", "/health/ready", nil, http.StatusOK},
		{"not ready", "/health/ready", errors.New("connection refused"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := chi.NewRouter()
			MountHealth(r, fakePinger{err: tt.err})

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}
