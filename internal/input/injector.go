// Package input wraps the platform driver's click primitive with the
// global injection rate limit.
package input

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"ghostclick/internal/platform"
)

// DefaultMinGap is the default minimum pause between consecutive injected
// actions, across all tasks.
const DefaultMinGap = 250 * time.Millisecond

// Injector serializes click injection. The pause between actions is a
// global floor independent of per-task intervals, so several tasks firing
// in the same instant cannot hammer the input queue.
type Injector struct {
	driver platform.Driver
	minGap time.Duration

	mu   sync.Mutex
	last time.Time
}

// NewInjector returns an injector with the given minimum gap; zero or
// negative means DefaultMinGap.
func NewInjector(driver platform.Driver, minGap time.Duration) *Injector {
	if minGap <= 0 {
		minGap = DefaultMinGap
	}
	return &Injector{driver: driver, minGap: minGap}
}

// Click synthesizes the gesture at a logical screen point, waiting out
// the remainder of the global gap first. The wait is cancellable.
func (i *Injector) Click(ctx context.Context, p image.Point, kind platform.ClickKind) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if wait := i.minGap - time.Since(i.last); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := i.driver.Click(p, kind); err != nil {
		return fmt.Errorf("inject %s: %w", kind, err)
	}
	i.last = time.Now()
	return nil
}
