// Package scheduler runs reconciliation passes on a timer, never more than
// one at a time.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/starford/inkmirror/internal/apperr"
)

// State of the scheduler.
type State string

const (
	Idle            State = "idle"
	Running         State = "running"
	FailedForTarget State = "failed_for_target"
)

// PassFunc runs one pass.
type PassFunc func(ctx context.Context) error

// Status is a snapshot of the scheduler.
type Status struct {
	State           State         `json:"state"`
	Interval        time.Duration `json:"-"`
	IntervalSeconds float64       `json:"interval_seconds"`
	LastStart       time.Time     `json:"last_start,omitzero"`
	LastFinish      time.Time     `json:"last_finish,omitzero"`
	LastError       string        `json:"last_error,omitempty"`
	Passes          int           `json:"passes"`
	SkippedFires    int           `json:"skipped_fires"`
}

// Scheduler owns the sync timer.
//
// All mutable state (status, timer, active pass) lives in the goroutine
// started by Run. Public methods talk to it through channels.
type Scheduler struct {
	pass   PassFunc
	logger *slog.Logger

	intervalCh chan time.Duration
	triggerCh  chan struct{}
	statusCh   chan chan Status

	stopped chan struct{}
	final   Status
}

// New creates a scheduler for pass. Nothing runs until Run is called.
func New(pass PassFunc, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		pass:       pass,
		logger:     logger,
		intervalCh: make(chan time.Duration),
		triggerCh:  make(chan struct{}, 1),
		statusCh:   make(chan chan Status),
		stopped:    make(chan struct{}),
	}
}

// Run starts one pass immediately, then one every interval, until ctx is
// cancelled. Fires that arrive while a pass is active are skipped. Run
// waits for the active pass before returning.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	st := Status{State: Idle, Interval: interval}
	if interval <= 0 {
		s.final = st.snapshot()
		close(s.stopped)
		return errors.New("scheduler: interval must be positive")
	}
	timer := time.NewTimer(interval)
	var passDone chan error

	defer func() {
		timer.Stop()
		if passDone != nil {
			s.finish(&st, <-passDone)
		}
		s.final = st.snapshot()
		close(s.stopped)
	}()

	start := func(reason string) {
		if passDone != nil {
			st.SkippedFires++
			s.logger.Info("scheduler: pass still running, fire skipped", slog.String("reason", reason))
			return
		}
		st.State = Running
		st.LastStart = time.Now()
		st.Passes++
		done := make(chan error, 1)
		passDone = done
		go func() { done <- s.pass(ctx) }()
	}

	s.logger.Info("scheduler: started", slog.Duration("interval", interval))
	start("startup")

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-timer.C:
			start("timer")
			timer.Reset(st.Interval)

		case <-s.triggerCh:
			start("manual")

		case d := <-s.intervalCh:
			if d <= 0 || d == st.Interval {
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(d)
			s.logger.Info("scheduler: interval changed", slog.Duration("from", st.Interval), slog.Duration("to", d))
			st.Interval = d

		case err := <-passDone:
			passDone = nil
			s.finish(&st, err)

		case reply := <-s.statusCh:
			reply <- st.snapshot()
		}
	}
}

func (s *Scheduler) finish(st *Status, err error) {
	st.LastFinish = time.Now()
	st.State = Idle
	st.LastError = ""
	if err == nil {
		return
	}
	st.LastError = err.Error()
	if errors.Is(err, apperr.ErrConfiguration) {
		st.State = FailedForTarget
	}
	s.logger.Warn("scheduler: pass failed", slog.String("state", string(st.State)), slog.String("error", err.Error()))
}

func (st Status) snapshot() Status {
	st.IntervalSeconds = st.Interval.Seconds()
	return st
}

// SetInterval re-arms the timer with d. An active pass is not interrupted;
// the same interval is a no-op.
func (s *Scheduler) SetInterval(d time.Duration) {
	select {
	case s.intervalCh <- d:
	case <-s.stopped:
	}
}

// TriggerNow requests an immediate pass. It is skipped if one is active.
func (s *Scheduler) TriggerNow() {
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

// Status returns the current state. It blocks until Run has started.
func (s *Scheduler) Status() Status {
	reply := make(chan Status, 1)
	select {
	case s.statusCh <- reply:
		return <-reply
	case <-s.stopped:
		return s.final
	}
}
