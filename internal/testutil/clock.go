// Package testutil holds helpers shared by memstore tests.
package testutil

import (
	"sync"
	"time"
)

// Epoch is the first instant handed out by a StepClock.
var Epoch = time.UnixMilli(1_700_000_000_000)

// StepClock advances one millisecond on every call so timestamps written by
// consecutive operations are strictly ordered.
type StepClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewStepClock returns a clock starting at Epoch.
func NewStepClock() *StepClock {
	return &StepClock{t: Epoch}
}

// Now returns the next instant.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}
