package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	notifymemory "github.com/JakeFAU/newsrun-controller/internal/notify/memory"
	"github.com/JakeFAU/newsrun-controller/internal/pipeline"
	resultsmemory "github.com/JakeFAU/newsrun-controller/internal/results/memory"
)

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// scriptedProbe returns the scripted outcomes tick by tick, repeating the
// last one when the script runs out. It also tracks in-flight calls to catch
// overlapping ticks.
type scriptedProbe struct {
	mu       sync.Mutex
	script   []probeStep
	calls    int
	inFlight int
	overlap  bool
	delay    time.Duration
}

type probeStep struct {
	running bool
	err     error
}

func (p *scriptedProbe) IsRunning(_ context.Context) (bool, error) {
	p.mu.Lock()
	p.calls++
	p.inFlight++
	if p.inFlight > 1 {
		p.overlap = true
	}
	idx := p.calls - 1
	if idx >= len(p.script) {
		idx = len(p.script) - 1
	}
	step := p.script[idx]
	delay := p.delay
	p.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	p.mu.Lock()
	p.inFlight--
	p.mu.Unlock()
	return step.running, step.err
}

func (p *scriptedProbe) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fakeRecorder struct {
	mu        sync.Mutex
	completes int
	clears    int
}

func (r *fakeRecorder) RecordComplete(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completes++
	return nil
}

func (r *fakeRecorder) ClearRunning(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clears++
	return nil
}

func (r *fakeRecorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completes, r.clears
}

func fastConfig(maxAttempts int) Config {
	return Config{
		InitialDelay: time.Millisecond,
		PollInterval: 2 * time.Millisecond,
		MaxAttempts:  maxAttempts,
		SettleDelay:  time.Millisecond,
		ResultLimit:  5,
	}
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not reach a terminal state in time")
	}
}

func sampleArticles() []pipeline.Article {
	return []pipeline.Article{
		{ID: "a-1", Title: "Rates hold steady", CollectedAt: time.Now().UTC()},
		{ID: "a-2", Title: "Prices tick up", CollectedAt: time.Now().UTC().Add(-time.Hour)},
	}
}

func TestSession_CompletionPath(t *testing.T) {
	t.Parallel()

	probe := &scriptedProbe{script: []probeStep{
		{running: true}, {running: true}, {running: false},
	}}
	recorder := &fakeRecorder{}
	results := resultsmemory.NewStore()
	results.Add(sampleArticles()...)
	publisher := notifymemory.New()

	w := New(probe, recorder, results, publisher, systemClock{}, fastConfig(20), nil)
	s := w.Start(context.Background(), "run-1")
	waitDone(t, s)

	require.Equal(t, StateCompleted, s.State())
	require.Equal(t, 3, s.Attempts())
	completes, clears := recorder.counts()
	require.Equal(t, 1, completes)
	require.Equal(t, 0, clears)

	notes := publisher.Notifications()
	require.Len(t, notes, 1)
	require.Equal(t, pipeline.NotifyRunCompleted, notes[0].Kind)
	require.Equal(t, "run-1", notes[0].RunID)
	require.Contains(t, notes[0].Message, "2 article(s)")
}

func TestSession_StuckAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	probe := &scriptedProbe{script: []probeStep{{running: true}}}
	recorder := &fakeRecorder{}
	publisher := notifymemory.New()

	w := New(probe, recorder, resultsmemory.NewStore(), publisher, systemClock{}, fastConfig(3), nil)
	s := w.Start(context.Background(), "run-stuck")
	waitDone(t, s)

	require.Equal(t, StateStuck, s.State())
	require.Equal(t, 3, s.Attempts())
	require.Equal(t, 3, probe.callCount())

	completes, clears := recorder.counts()
	require.Equal(t, 0, completes)
	require.Equal(t, 1, clears)

	notes := publisher.Notifications()
	require.Len(t, notes, 1)
	require.Equal(t, pipeline.NotifyRunStuck, notes[0].Kind)

	// No further probe calls occur after the terminal transition.
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 3, probe.callCount())
}

func TestSession_ProbeErrorsCountTowardBudget(t *testing.T) {
	t.Parallel()

	probe := &scriptedProbe{script: []probeStep{
		{err: errors.New("connection reset")},
	}}
	recorder := &fakeRecorder{}

	w := New(probe, recorder, resultsmemory.NewStore(), notifymemory.New(), systemClock{}, fastConfig(2), nil)
	s := w.Start(context.Background(), "run-flaky")
	waitDone(t, s)

	require.Equal(t, StateStuck, s.State())
	require.Equal(t, 2, s.Attempts())
}

func TestSession_ProbeErrorThenCompletion(t *testing.T) {
	t.Parallel()

	probe := &scriptedProbe{script: []probeStep{
		{err: errors.New("timeout")}, {running: false},
	}}
	recorder := &fakeRecorder{}
	results := resultsmemory.NewStore()
	results.Add(sampleArticles()...)

	w := New(probe, recorder, results, notifymemory.New(), systemClock{}, fastConfig(20), nil)
	s := w.Start(context.Background(), "run-recovered")
	waitDone(t, s)

	require.Equal(t, StateCompleted, s.State())
	require.Equal(t, 2, s.Attempts())
	completes, _ := recorder.counts()
	require.Equal(t, 1, completes)
}

func TestSession_EmptyResultsLeavesRecordUntouched(t *testing.T) {
	t.Parallel()

	probe := &scriptedProbe{script: []probeStep{{running: false}}}
	recorder := &fakeRecorder{}
	publisher := notifymemory.New()

	w := New(probe, recorder, resultsmemory.NewStore(), publisher, systemClock{}, fastConfig(20), nil)
	s := w.Start(context.Background(), "run-empty")
	waitDone(t, s)

	require.Equal(t, StateCompleted, s.State())
	completes, clears := recorder.counts()
	require.Equal(t, 0, completes)
	require.Equal(t, 0, clears)

	notes := publisher.Notifications()
	require.Len(t, notes, 1)
	require.Equal(t, pipeline.NotifyResultsPending, notes[0].Kind)
}

func TestSession_CancelDuringGracePeriod(t *testing.T) {
	t.Parallel()

	probe := &scriptedProbe{script: []probeStep{{running: true}}}
	recorder := &fakeRecorder{}

	cfg := fastConfig(20)
	cfg.InitialDelay = time.Minute
	w := New(probe, recorder, resultsmemory.NewStore(), notifymemory.New(), systemClock{}, cfg, nil)

	s := w.Start(context.Background(), "run-cancelled")
	require.Equal(t, StateAwaitingGrace, s.State())
	s.Cancel()
	waitDone(t, s)

	require.Equal(t, StateCancelled, s.State())
	require.Equal(t, 0, s.Attempts())
	require.Equal(t, 0, probe.callCount())
	completes, clears := recorder.counts()
	require.Equal(t, 0, completes)
	require.Equal(t, 0, clears)
}

func TestSession_CancelWhilePolling(t *testing.T) {
	t.Parallel()

	probe := &scriptedProbe{script: []probeStep{{running: true}}}
	recorder := &fakeRecorder{}

	cfg := fastConfig(1_000_000)
	w := New(probe, recorder, resultsmemory.NewStore(), notifymemory.New(), systemClock{}, cfg, nil)

	s := w.Start(context.Background(), "run-torn-down")
	require.Eventually(t, func() bool {
		return s.Attempts() > 2
	}, 5*time.Second, time.Millisecond)

	s.Cancel()
	waitDone(t, s)

	require.Equal(t, StateCancelled, s.State())
	_, clears := recorder.counts()
	require.Equal(t, 0, clears)
}

func TestSession_TicksNeverOverlap(t *testing.T) {
	t.Parallel()

	// A probe slower than the poll interval must delay the next tick, not
	// run concurrently with it.
	probe := &scriptedProbe{script: []probeStep{{running: true}}, delay: 10 * time.Millisecond}
	recorder := &fakeRecorder{}

	w := New(probe, recorder, resultsmemory.NewStore(), notifymemory.New(), systemClock{}, fastConfig(5), nil)
	s := w.Start(context.Background(), "run-slow-probe")
	waitDone(t, s)

	probe.mu.Lock()
	overlap := probe.overlap
	probe.mu.Unlock()
	require.False(t, overlap, "probe ticks overlapped")
}
