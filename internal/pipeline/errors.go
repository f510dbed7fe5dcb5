package pipeline

import (
	"errors"
	"fmt"
)

// Sentinel errors returned across the controller surface.
var (
	// ErrCooldownActive means the cooldown window since the last run has not
	// elapsed yet.
	ErrCooldownActive = errors.New("cooldown active")
	// ErrRunInProgress means the run record still says running.
	ErrRunInProgress = errors.New("pipeline run in progress")
	// ErrNoResults means the remote job reported done but the result store
	// returned nothing yet.
	ErrNoResults = errors.New("results not yet available")
)

// TriggerError wraps a failure to start the remote pipeline. The guard state
// is rolled back so the cooldown is not wasted on a run that never started.
type TriggerError struct {
	Err error
}

func (e *TriggerError) Error() string {
	return fmt.Sprintf("trigger pipeline: %v", e.Err)
}

func (e *TriggerError) Unwrap() error {
	return e.Err
}
