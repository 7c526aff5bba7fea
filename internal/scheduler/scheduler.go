// Package scheduler runs a function on a fixed interval with start/stop
// control. The first run happens immediately on Start.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

type Scheduler struct {
	name     string
	interval time.Duration
	run      func(context.Context)

	running  atomic.Bool
	lastTick atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Status is a snapshot of the scheduler state.
type Status struct {
	Running  bool       `json:"running"`
	Interval string     `json:"interval"`
	LastTick *time.Time `json:"lastTick,omitempty"`
}

func New(name string, interval time.Duration, run func(context.Context)) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if run == nil {
		return nil, errors.New("run func must not be nil")
	}
	return &Scheduler{name: name, interval: interval, run: run}, nil
}

// Start launches the loop. It returns false if it is already running.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go s.loop(ctx, s.done)
	return true
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("scheduler started", slog.String("name", s.name), slog.String("interval", s.interval.String()))
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Stop cancels the loop and waits for the running tick to return. It returns
// false if the scheduler was not running.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	slog.Info("scheduler stopped", slog.String("name", s.name))
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

func (s *Scheduler) Status() Status {
	st := Status{Running: s.IsRunning(), Interval: s.interval.String()}
	if ns := s.lastTick.Load(); ns != 0 {
		t := time.Unix(0, ns).UTC()
		st.LastTick = &t
	}
	return st
}

// tick runs one iteration; a panic is logged and does not stop the loop.
func (s *Scheduler) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scheduler tick panic recovered", slog.String("name", s.name), slog.Any("panic", r))
		}
	}()

	start := time.Now()
	s.lastTick.Store(start.UnixNano())
	s.run(ctx)
	slog.Debug("scheduler tick completed", slog.String("name", s.name), slog.Int64("duration_ms", time.Since(start).Milliseconds()))
}
