package pipeline

import (
	"encoding/json"
	"fmt"
	"time"
)

// RunStatus is the lifecycle state persisted in the run record.
type RunStatus string

// Run status values written to the state store.
const (
	// RunStatusRunning means a pipeline run was triggered and no completion
	// has been observed yet.
	RunStatusRunning RunStatus = "running"
	// RunStatusCompleted means the watcher observed the run finish.
	RunStatusCompleted RunStatus = "completed"
	// RunStatusCleared means a stuck or failed run was unblocked without
	// claiming successful completion. Evaluated identically to completed;
	// the distinct value exists for auditing.
	RunStatusCleared RunStatus = "cleared"
)

// RunRecord is the single persisted fact about the last pipeline invocation.
// The state store holds exactly one slot, overwritten on every transition.
type RunRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Status    RunStatus `json:"status"`
}

// Encode serializes the record for the state store slot.
func (r RunRecord) Encode() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal run record: %w", err)
	}
	return string(data), nil
}

// DecodeRunRecord parses a stored slot value. A malformed payload or an
// unknown status is an error; callers degrade to "no record".
func DecodeRunRecord(raw string) (RunRecord, error) {
	var rec RunRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return RunRecord{}, fmt.Errorf("unmarshal run record: %w", err)
	}
	switch rec.Status {
	case RunStatusRunning, RunStatusCompleted, RunStatusCleared:
	default:
		return RunRecord{}, fmt.Errorf("unknown run status %q", rec.Status)
	}
	if rec.Timestamp.IsZero() {
		return RunRecord{}, fmt.Errorf("run record missing timestamp")
	}
	return rec, nil
}

// Decision is the transient result of a rate-limit evaluation. It is never
// persisted.
type Decision struct {
	CanRun bool `json:"can_run"`
	// Reason explains a denial in user-facing terms; empty when CanRun.
	Reason string `json:"reason,omitempty"`
	// NextAvailable is set only when a cooldown, not an active run, is
	// blocking. For a running record the completion time is unknown.
	NextAvailable *time.Time `json:"next_available,omitempty"`
}

// NotificationKind labels async events surfaced to the caller instead of the
// source UI's blocking dialogs.
type NotificationKind string

// Notification kinds published by the controller.
const (
	NotifyRunCompleted   NotificationKind = "run_completed"
	NotifyRunStuck       NotificationKind = "run_stuck"
	NotifyResultsPending NotificationKind = "results_pending"
)

// Notification is an async event describing the outcome of a watched run.
type Notification struct {
	Kind    NotificationKind `json:"kind"`
	RunID   string           `json:"run_id"`
	Message string           `json:"message"`
	At      time.Time        `json:"at"`
}

// Article is one collected-and-summarized result record.
type Article struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Publication string    `json:"publication"`
	Journalist  string    `json:"journalist"`
	Summary     string    `json:"summary"`
	CollectedAt time.Time `json:"collected_at"`
}

// Artifact describes the newest downloadable output of the remote pipeline.
type Artifact struct {
	Name        string    `json:"name"`
	DownloadURL string    `json:"download_url"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}
