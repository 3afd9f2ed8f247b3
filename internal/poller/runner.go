// internal/poller/runner.go
package poller

import (
	"context"
	"time"
)

// Run polls immediately, then on every interval tick, and emits each Result
// on out. One goroutine per device. Cycles never overlap.
func (p *Poller) Run(ctx context.Context, out chan<- Result) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		res := p.PollOnce(ctx)
		if ctx.Err() != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case out <- res:
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
