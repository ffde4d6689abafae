// Package schedule runs background work on a fixed delay.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const defaultStopTimeout = 5 * time.Second

// IntervalTask runs a function once on Start and then again each time the
// interval has elapsed after the previous run finished. Runs never overlap.
type IntervalTask struct {
	name        string
	interval    time.Duration
	fn          func(context.Context)
	clock       clockwork.Clock
	stopTimeout time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// Option configures an IntervalTask.
type Option func(*IntervalTask)

// WithClock sets the clock used to wait between runs.
func WithClock(clock clockwork.Clock) Option {
	return func(t *IntervalTask) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// WithStopTimeout bounds how long Stop waits for the loop to exit.
func WithStopTimeout(d time.Duration) Option {
	return func(t *IntervalTask) {
		if d > 0 {
			t.stopTimeout = d
		}
	}
}

// NewIntervalTask builds a stopped task.
func NewIntervalTask(name string, interval time.Duration, fn func(context.Context), opts ...Option) *IntervalTask {
	stopped := make(chan struct{})
	close(stopped)

	t := &IntervalTask{
		name:        name,
		interval:    interval,
		fn:          fn,
		clock:       clockwork.NewRealClock(),
		stopTimeout: defaultStopTimeout,
		stopped:     stopped,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start launches the loop. It returns false if the loop is already running.
// Cancelling ctx stops the loop the same way Stop does.
func (t *IntervalTask) Start(ctx context.Context) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	t.mu.Lock()
	if t.cancel != nil {
		t.mu.Unlock()
		return false
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.stopped = make(chan struct{})
	stopped := t.stopped
	t.mu.Unlock()

	go func() {
		defer close(stopped)
		defer func() {
			t.mu.Lock()
			if t.stopped == stopped {
				t.cancel = nil
			}
			t.mu.Unlock()
			cancel()
		}()

		t.runOnce(runCtx)

		for {
			timer := t.clock.NewTimer(t.interval)
			select {
			case <-runCtx.Done():
				timer.Stop()
				return
			case <-timer.Chan():
			}
			if runCtx.Err() != nil {
				return
			}
			t.runOnce(runCtx)
		}
	}()

	return true
}

// Stop cancels the loop, interrupting an in-flight run, and waits for it to
// exit. It returns false when the loop did not exit within the stop timeout;
// the loop is abandoned in that case and exits on its own once the run
// returns. Calling Stop on a stopped task is a no-op.
func (t *IntervalTask) Stop() bool {
	t.mu.Lock()
	cancel := t.cancel
	stopped := t.stopped
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	timer := time.NewTimer(t.stopTimeout)
	defer timer.Stop()

	select {
	case <-stopped:
		return true
	case <-timer.C:
		log.Warn().
			Str("component", "schedule").
			Str("task", t.name).
			Dur("timeout", t.stopTimeout).
			Msg("Scheduled task did not stop in time; abandoning it")
		return false
	}
}

// Running reports whether the loop goroutine is still alive.
func (t *IntervalTask) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

func (t *IntervalTask) runOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("component", "schedule").
				Str("task", t.name).
				Interface("panic", r).
				Msg("Scheduled task panicked; continuing on next interval")
		}
	}()
	t.fn(ctx)
}
