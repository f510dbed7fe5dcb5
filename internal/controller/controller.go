// Package controller wires the rate-limit guard and the completion watcher
// into the façade the HTTP layer calls: request a run, inspect status, clear
// or reset the slot, and read results and artifacts.
package controller

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/newsrun-controller/internal/guard"
	"github.com/JakeFAU/newsrun-controller/internal/metrics"
	"github.com/JakeFAU/newsrun-controller/internal/pipeline"
	"github.com/JakeFAU/newsrun-controller/internal/watcher"
)

// Controller is the run-controller façade. One poll session is active per
// instance at most; concurrent requests are serialized and runs beyond the
// first are denied by the guard while the record says running.
type Controller struct {
	guard    *guard.Guard
	watcher  *watcher.Watcher
	trigger  pipeline.Trigger
	results  pipeline.ResultStore
	locator  pipeline.ArtifactLocator
	idGen    pipeline.IDGenerator
	logger   *zap.Logger
	watchCtx context.Context

	mu      sync.Mutex
	session *watcher.Session
}

// New constructs a Controller. watchCtx bounds the lifetime of poll sessions;
// cancelling it (or calling Close) tears down any active session.
func New(
	watchCtx context.Context,
	g *guard.Guard,
	w *watcher.Watcher,
	trigger pipeline.Trigger,
	results pipeline.ResultStore,
	locator pipeline.ArtifactLocator,
	idGen pipeline.IDGenerator,
	logger *zap.Logger,
) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		guard:    g,
		watcher:  w,
		trigger:  trigger,
		results:  results,
		locator:  locator,
		idGen:    idGen,
		logger:   logger,
		watchCtx: watchCtx,
	}
}

// RequestRun checks the guard, records the start, triggers the remote
// pipeline once, and starts a poll session. The returned decision always
// reflects the guard's view; the run ID is set only when a run was started.
func (c *Controller) RequestRun(ctx context.Context) (string, pipeline.Decision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	decision := c.guard.Evaluate(ctx)
	if !decision.CanRun {
		reason := "cooldown"
		err := pipeline.ErrCooldownActive
		if decision.NextAvailable == nil {
			reason = "running"
			err = pipeline.ErrRunInProgress
		}
		metrics.IncRunRejected(reason)
		return "", decision, err
	}

	runID, err := c.idGen.NewID()
	if err != nil {
		return "", decision, fmt.Errorf("generate run id: %w", err)
	}

	if err := c.guard.RecordStart(ctx); err != nil {
		return "", decision, err
	}

	if err := c.trigger.TriggerRun(ctx); err != nil {
		// Roll back so the failed trigger does not burn the cooldown.
		if clearErr := c.guard.ClearRunning(ctx); clearErr != nil {
			c.logger.Error("rollback after trigger failure failed", zap.Error(clearErr))
		}
		return "", decision, &pipeline.TriggerError{Err: err}
	}

	metrics.IncRunTriggered()
	c.logger.Info("pipeline run triggered", zap.String("run_id", runID))

	if c.session != nil {
		// The guard prevents overlapping runs, so any previous session has
		// already reached a terminal state; cancel defensively anyway.
		c.session.Cancel()
	}
	c.session = c.watcher.Start(c.watchCtx, runID)
	return runID, decision, nil
}

// Status returns the current rate-limit decision plus the last run record,
// if one is readable.
func (c *Controller) Status(ctx context.Context) (pipeline.Decision, *pipeline.RunRecord) {
	decision := c.guard.Evaluate(ctx)
	if rec, ok := c.guard.LastRecord(ctx); ok {
		return decision, &rec
	}
	return decision, nil
}

// FormatRemaining renders the wait until the next permitted run.
func (c *Controller) FormatRemaining(ctx context.Context) string {
	return c.guard.FormatRemaining(ctx)
}

// ManualClear exposes the guard's clear for operator-initiated recovery of
// a stuck run.
func (c *Controller) ManualClear(ctx context.Context) error {
	c.logger.Info("run record cleared manually")
	return c.guard.ClearRunning(ctx)
}

// Reset deletes the run record entirely, bypassing the cooldown.
func (c *Controller) Reset(ctx context.Context) error {
	c.logger.Info("run record reset")
	return c.guard.Reset(ctx)
}

// Articles loads the most recent collected articles.
func (c *Controller) Articles(ctx context.Context, limit int) ([]pipeline.Article, error) {
	articles, err := c.results.RecentArticles(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("load articles: %w", err)
	}
	return articles, nil
}

// LatestArtifact returns the newest downloadable pipeline output, or nil
// when none exists.
func (c *Controller) LatestArtifact(ctx context.Context) (*pipeline.Artifact, error) {
	artifact, err := c.locator.LatestArtifact(ctx)
	if err != nil {
		return nil, fmt.Errorf("locate artifact: %w", err)
	}
	return artifact, nil
}

// ActiveSession returns the current poll session, or nil when none was
// started by this instance.
func (c *Controller) ActiveSession() *watcher.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Close cancels any active poll session.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.session.Cancel()
	}
}
