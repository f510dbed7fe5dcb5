// Package watcher implements the completion watcher for a triggered pipeline
// run: a single-flight state machine that waits out a grace period, then
// probes remote status on a fixed cadence with a bounded attempt budget.
package watcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/newsrun-controller/internal/metrics"
	"github.com/JakeFAU/newsrun-controller/internal/pipeline"
)

// State is the lifecycle phase of one poll session.
type State string

// Session states. Completed, Stuck and Cancelled are terminal.
const (
	StateAwaitingGrace State = "awaiting_grace_period"
	StatePolling       State = "polling"
	StateCompleted     State = "completed"
	StateStuck         State = "stuck"
	StateCancelled     State = "cancelled"
)

// Watcher defaults. The remote job never finishes faster than the grace
// period, so earlier probes would be wasted; the attempt budget caps total
// polling at ten minutes past it.
const (
	DefaultInitialDelay = 15 * time.Minute
	DefaultPollInterval = 30 * time.Second
	DefaultMaxAttempts  = 20
	DefaultSettleDelay  = 10 * time.Second
)

// Config controls session timing and the attempt budget.
type Config struct {
	InitialDelay time.Duration
	PollInterval time.Duration
	MaxAttempts  int
	// SettleDelay is the extra wait after detecting job-not-running, so
	// eventually-consistent downstream storage catches up before results
	// are fetched.
	SettleDelay time.Duration
	// ResultLimit caps the result load performed on completion.
	ResultLimit int
}

func (c Config) withDefaults() Config {
	if c.InitialDelay <= 0 {
		c.InitialDelay = DefaultInitialDelay
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.ResultLimit <= 0 {
		c.ResultLimit = 10
	}
	return c
}

// Recorder records terminal run transitions in the guard's state slot.
type Recorder interface {
	RecordComplete(ctx context.Context) error
	ClearRunning(ctx context.Context) error
}

// Watcher builds poll sessions for triggered runs.
type Watcher struct {
	probe     pipeline.StatusProbe
	recorder  Recorder
	results   pipeline.ResultStore
	publisher pipeline.Publisher
	clock     pipeline.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Watcher.
func New(
	probe pipeline.StatusProbe,
	recorder Recorder,
	results pipeline.ResultStore,
	publisher pipeline.Publisher,
	clock pipeline.Clock,
	cfg Config,
	logger *zap.Logger,
) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		probe:     probe,
		recorder:  recorder,
		results:   results,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// Session is one run's in-memory polling state machine. All timer waits run
// on a single goroutine, so a tick's probe/settle/load sequence always
// finishes before the next tick is armed.
type Session struct {
	w     *Watcher
	runID string

	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time

	mu       sync.Mutex
	state    State
	attempts int
}

// Start arms the grace-period timer and returns the running session.
func (w *Watcher) Start(ctx context.Context, runID string) *Session {
	sessionCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		w:       w,
		runID:   runID,
		cancel:  cancel,
		done:    make(chan struct{}),
		started: w.clock.Now(),
		state:   StateAwaitingGrace,
	}
	go s.run(sessionCtx)
	return s
}

// Cancel releases all pending timers and transitions the session to
// Cancelled; no further side effects occur. Safe to call more than once.
func (s *Session) Cancel() {
	s.cancel()
}

// Done is closed when the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attempts returns how many probe ticks have run so far.
func (s *Session) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer s.cancel()

	timer := time.NewTimer(s.w.cfg.InitialDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		s.finish(StateCancelled)
		return
	case <-timer.C:
	}

	s.setState(StatePolling)
	s.w.logger.Info("grace period elapsed, polling pipeline status",
		zap.String("run_id", s.runID),
		zap.Duration("interval", s.w.cfg.PollInterval),
		zap.Int("max_attempts", s.w.cfg.MaxAttempts))

	for {
		// The interval timer is re-armed only here, after the previous
		// tick's full probe sequence finished, so ticks never overlap.
		timer.Reset(s.w.cfg.PollInterval)
		select {
		case <-ctx.Done():
			s.finish(StateCancelled)
			return
		case <-timer.C:
		}

		attempt := s.bumpAttempts()
		running, err := s.w.probe.IsRunning(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.finish(StateCancelled)
				return
			}
			// Transient probe failures count toward the budget like any
			// non-completion tick.
			metrics.IncProbeAttempt("error")
			s.w.logger.Warn("status probe failed",
				zap.String("run_id", s.runID), zap.Int("attempt", attempt), zap.Error(err))
			running = true
		} else if running {
			metrics.IncProbeAttempt("running")
		} else {
			metrics.IncProbeAttempt("done")
		}

		if !running {
			s.complete(ctx, timer)
			return
		}
		if attempt >= s.w.cfg.MaxAttempts {
			s.stuck(ctx)
			return
		}
	}
}

func (s *Session) complete(ctx context.Context, timer *time.Timer) {
	if s.w.cfg.SettleDelay > 0 {
		timer.Reset(s.w.cfg.SettleDelay)
		select {
		case <-ctx.Done():
			s.finish(StateCancelled)
			return
		case <-timer.C:
		}
	}

	articles, err := s.w.results.RecentArticles(ctx, s.w.cfg.ResultLimit)
	if err != nil || len(articles) == 0 {
		if ctx.Err() != nil {
			s.finish(StateCancelled)
			return
		}
		// The run record is left untouched so the guard keeps enforcing
		// its spacing from the original start.
		if err == nil {
			err = pipeline.ErrNoResults
		}
		s.w.logger.Warn("pipeline finished but results are not available yet",
			zap.String("run_id", s.runID), zap.Error(err))
		s.notify(ctx, pipeline.NotifyResultsPending,
			"pipeline finished but results are not available yet; check back shortly")
		s.finish(StateCompleted)
		return
	}

	if err := s.w.recorder.RecordComplete(ctx); err != nil {
		s.w.logger.Error("record completion failed",
			zap.String("run_id", s.runID), zap.Error(err))
	}
	metrics.IncRunCompleted()
	s.w.logger.Info("pipeline run completed",
		zap.String("run_id", s.runID),
		zap.Int("attempts", s.Attempts()),
		zap.Int("articles", len(articles)))
	s.notify(ctx, pipeline.NotifyRunCompleted,
		fmt.Sprintf("pipeline run completed, %d article(s) collected", len(articles)))
	s.finish(StateCompleted)
}

func (s *Session) stuck(ctx context.Context) {
	if err := s.w.recorder.ClearRunning(ctx); err != nil {
		s.w.logger.Error("clear stuck run failed",
			zap.String("run_id", s.runID), zap.Error(err))
	}
	metrics.IncRunStuck()
	s.w.logger.Warn("pipeline run presumed stuck, attempt budget exhausted",
		zap.String("run_id", s.runID), zap.Int("attempts", s.Attempts()))
	s.notify(ctx, pipeline.NotifyRunStuck,
		"pipeline did not finish within the polling budget; run state was cleared")
	s.finish(StateStuck)
}

func (s *Session) notify(ctx context.Context, kind pipeline.NotificationKind, msg string) {
	if s.w.publisher == nil {
		return
	}
	note := pipeline.Notification{
		Kind:    kind,
		RunID:   s.runID,
		Message: msg,
		At:      s.w.clock.Now(),
	}
	if _, err := s.w.publisher.Publish(ctx, note); err != nil {
		s.w.logger.Warn("publish notification failed",
			zap.String("run_id", s.runID), zap.String("kind", string(kind)), zap.Error(err))
	}
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) bumpAttempts() int {
	s.mu.Lock()
	s.attempts++
	n := s.attempts
	s.mu.Unlock()
	return n
}

func (s *Session) finish(state State) {
	s.setState(state)
	if state != StateCancelled {
		metrics.ObserveSessionDuration(s.w.clock.Now().Sub(s.started))
	}
}
