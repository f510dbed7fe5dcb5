// Package pipeline defines the core types and collaborator contracts shared by
// the run-controller subsystems: the persisted run record, rate-limit decisions,
// async notifications, and the interfaces for the remote CI pipeline, its result
// store, and the durable run-state slot.
package pipeline
