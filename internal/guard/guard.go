// Package guard implements the rate-limit/cooldown guard over the persisted
// run-record slot. It is the sole writer of the slot; every other component
// reads run state through it.
package guard

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/newsrun-controller/internal/pipeline"
)

// DefaultCooldown is the minimum spacing enforced between runs.
const DefaultCooldown = 15 * time.Minute

// DefaultStateKey is the slot key used when none is configured.
const DefaultStateKey = "pipeline:last_run"

// Config controls Guard behavior.
type Config struct {
	Cooldown time.Duration
	StateKey string
}

// Guard decides whether a new pipeline run is permitted and records run
// lifecycle transitions. It is advisory: on any store anomaly it favors
// availability and treats the slot as empty.
type Guard struct {
	store  pipeline.StateStore
	clock  pipeline.Clock
	cfg    Config
	logger *zap.Logger
}

// New constructs a Guard.
func New(store pipeline.StateStore, clock pipeline.Clock, cfg Config, logger *zap.Logger) *Guard {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.StateKey == "" {
		cfg.StateKey = DefaultStateKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		store:  store,
		clock:  clock,
		cfg:    cfg,
		logger: logger,
	}
}

// Evaluate returns the rate-limit decision for starting a run now.
// A running record blocks without a next-available time: the true end of an
// in-flight job is unknown here, and the watcher is responsible for
// eventually clearing it.
func (g *Guard) Evaluate(ctx context.Context) pipeline.Decision {
	rec, ok := g.read(ctx)
	if !ok {
		return pipeline.Decision{CanRun: true}
	}

	now := g.clock.Now()
	elapsed := now.Sub(rec.Timestamp)

	if rec.Status == pipeline.RunStatusRunning {
		return pipeline.Decision{
			CanRun: false,
			Reason: fmt.Sprintf("pipeline currently running (%d min)", int(elapsed.Minutes())),
		}
	}

	if elapsed < g.cfg.Cooldown {
		next := rec.Timestamp.Add(g.cfg.Cooldown)
		return pipeline.Decision{
			CanRun:        false,
			Reason:        fmt.Sprintf("%d minute(s) remaining in cooldown", ceilMinutes(g.cfg.Cooldown-elapsed)),
			NextAvailable: &next,
		}
	}

	return pipeline.Decision{CanRun: true}
}

// RecordStart overwrites the slot with a running record. Callers must have
// already checked Evaluate.
func (g *Guard) RecordStart(ctx context.Context) error {
	return g.write(ctx, pipeline.RunStatusRunning)
}

// RecordComplete overwrites the slot with a completed record.
func (g *Guard) RecordComplete(ctx context.Context) error {
	return g.write(ctx, pipeline.RunStatusCompleted)
}

// ClearRunning unblocks a stuck or failed run without claiming completion.
func (g *Guard) ClearRunning(ctx context.Context) error {
	return g.write(ctx, pipeline.RunStatusCleared)
}

// Reset deletes the slot entirely, bypassing the cooldown. Administrative
// escape hatch.
func (g *Guard) Reset(ctx context.Context) error {
	if err := g.store.Remove(ctx, g.cfg.StateKey); err != nil {
		return fmt.Errorf("remove run record: %w", err)
	}
	return nil
}

// LastRecord exposes the current slot for status reporting. The second return
// is false when no readable record exists.
func (g *Guard) LastRecord(ctx context.Context) (pipeline.RunRecord, bool) {
	return g.read(ctx)
}

// MinutesUntilNextRun returns 0 when a run is permitted or when no
// next-available time is known (still running), otherwise the ceiling of
// minutes until the cooldown ends.
func (g *Guard) MinutesUntilNextRun(ctx context.Context) int {
	decision := g.Evaluate(ctx)
	if decision.CanRun || decision.NextAvailable == nil {
		return 0
	}
	remaining := decision.NextAvailable.Sub(g.clock.Now())
	if remaining <= 0 {
		return 0
	}
	return ceilMinutes(remaining)
}

// FormatRemaining renders the wait as a human string.
func (g *Guard) FormatRemaining(ctx context.Context) string {
	switch n := g.MinutesUntilNextRun(ctx); n {
	case 0:
		return "Available now"
	case 1:
		return "1 minute"
	default:
		return fmt.Sprintf("%d minutes", n)
	}
}

func (g *Guard) read(ctx context.Context) (pipeline.RunRecord, bool) {
	raw, found, err := g.store.Get(ctx, g.cfg.StateKey)
	if err != nil {
		g.logger.Warn("run record unreadable, treating as absent",
			zap.String("key", g.cfg.StateKey), zap.Error(err))
		return pipeline.RunRecord{}, false
	}
	if !found {
		return pipeline.RunRecord{}, false
	}
	rec, err := pipeline.DecodeRunRecord(raw)
	if err != nil {
		g.logger.Warn("run record malformed, treating as absent",
			zap.String("key", g.cfg.StateKey), zap.Error(err))
		return pipeline.RunRecord{}, false
	}
	return rec, true
}

func (g *Guard) write(ctx context.Context, status pipeline.RunStatus) error {
	rec := pipeline.RunRecord{
		Timestamp: g.clock.Now(),
		Status:    status,
	}
	raw, err := rec.Encode()
	if err != nil {
		return err
	}
	if err := g.store.Set(ctx, g.cfg.StateKey, raw); err != nil {
		return fmt.Errorf("write run record: %w", err)
	}
	g.logger.Debug("run record written",
		zap.String("status", string(status)), zap.Time("at", rec.Timestamp))
	return nil
}

func ceilMinutes(d time.Duration) int {
	return int(math.Ceil(d.Minutes()))
}
