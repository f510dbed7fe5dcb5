// Package memory contains an in-memory notification publisher for tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/newsrun-controller/internal/pipeline"
)

// Publisher stores published notifications for inspection.
type Publisher struct {
	mu    sync.RWMutex
	notes []pipeline.Notification
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the notification and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, note pipeline.Notification) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notes = append(p.notes, note)
	return fmt.Sprintf("memory-%d", len(p.notes)), nil
}

// Notifications returns the recorded publishes.
func (p *Publisher) Notifications() []pipeline.Notification {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]pipeline.Notification, len(p.notes))
	copy(out, p.notes)
	return out
}
