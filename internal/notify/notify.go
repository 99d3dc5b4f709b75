// Package notify delivers user-visible progress and error messages.
package notify

import (
	"log/slog"

	"github.com/starford/inkmirror/internal/sse"
)

// Severity of a notification.
type Severity string

const (
	Info    Severity = "info"
	Warning Severity = "warning"
	Error   Severity = "error"
)

// Sink receives notifications. Notify must not block.
type Sink interface {
	Notify(sev Severity, msg string)
}

// Log writes notifications to a structured logger.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(sev Severity, msg string) {
	attrs := []any{slog.String("severity", string(sev))}
	switch sev {
	case Error:
		l.Logger.Error("notify: "+msg, attrs...)
	case Warning:
		l.Logger.Warn("notify: "+msg, attrs...)
	default:
		l.Logger.Info("notify: "+msg, attrs...)
	}
}

// Broker publishes notifications as "notify" events to SSE clients.
type Broker struct {
	B *sse.Broker
}

func (b Broker) Notify(sev Severity, msg string) {
	b.B.Publish(sse.Event{Type: "notify", Data: map[string]string{
		"severity": string(sev),
		"message":  msg,
	}})
}

// Multi fans a notification out to every sink.
type Multi []Sink

func (m Multi) Notify(sev Severity, msg string) {
	for _, s := range m {
		s.Notify(sev, msg)
	}
}

// Discard drops every notification.
type Discard struct{}

func (Discard) Notify(Severity, string) {}
