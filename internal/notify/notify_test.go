package notify

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/starford/inkmirror/internal/sse"
)

type recorder struct {
	got []string
}

func (r *recorder) Notify(sev Severity, msg string) {
	r.got = append(r.got, string(sev)+":"+msg)
}

func TestLog_WritesSeverity(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	Log{Logger: logger}.Notify(Warning, "file skipped")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if rec["level"] != "WARN" || rec["severity"] != "warning" {
		t.Errorf("record = %v", rec)
	}
	if !strings.Contains(rec["msg"].(string), "file skipped") {
		t.Errorf("msg = %v", rec["msg"])
	}
}

func TestMulti_FansOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	Multi{a, b, Discard{}}.Notify(Error, "boom")
	if len(a.got) != 1 || len(b.got) != 1 || a.got[0] != "error:boom" {
		t.Errorf("a=%v b=%v", a.got, b.got)
	}
}

func TestBroker_PublishesNotifyEvent(t *testing.T) {
	br := sse.NewBroker(time.Second)
	defer br.Close()
	ch := br.Subscribe()
	defer br.Unsubscribe(ch)

	Broker{B: br}.Notify(Info, "synced 3 notes")

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: notify") || !strings.Contains(s, `"message":"synced 3 notes"`) {
			t.Errorf("unexpected event %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for notify event")
	}
}
