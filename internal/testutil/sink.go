package testutil

import (
	"log/slog"
	"os"
	"sync"

	"github.com/starford/inkmirror/internal/notify"
)

// Logger returns a logger that only prints errors.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// Notification is one message received by a Sink.
type Notification struct {
	Severity notify.Severity
	Message  string
}

// Sink records notifications.
type Sink struct {
	mu   sync.Mutex
	msgs []Notification
}

func (s *Sink) Notify(sev notify.Severity, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, Notification{Severity: sev, Message: msg})
}

// Messages returns a copy of everything received so far.
func (s *Sink) Messages() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.msgs...)
}
