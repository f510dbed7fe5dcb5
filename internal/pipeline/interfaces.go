package pipeline

import (
	"context"
	"time"
)

// StateStore persists the single run-record slot. Get reports absence via the
// bool, never via an error; Set and Remove overwrite or delete the slot.
type StateStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
	Remove(ctx context.Context, key string) error
}

// Trigger starts the remote pipeline. It is side-effecting and not idempotent,
// so the controller calls it at most once per allowed run.
type Trigger interface {
	TriggerRun(ctx context.Context) error
}

// StatusProbe reports whether the remote pipeline is still active. An error
// indicates a transient network failure, tolerated by the watcher.
type StatusProbe interface {
	IsRunning(ctx context.Context) (bool, error)
}

// ResultStore loads collected articles once completion has been detected.
type ResultStore interface {
	RecentArticles(ctx context.Context, limit int) ([]Article, error)
}

// ArtifactLocator finds the newest downloadable pipeline output, queried
// independently of the polling state machine. Returns nil when none exists.
type ArtifactLocator interface {
	LatestArtifact(ctx context.Context) (*Artifact, error)
}

// Publisher pushes run notifications to interested consumers.
type Publisher interface {
	Publish(ctx context.Context, note Notification) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
