// Package scheduler runs periodic jobs until their context ends.
package scheduler

import (
	"context"
	"time"
)

// Every calls fn once immediately and then every interval until ctx is
// cancelled. Calls never overlap: a tick that arrives while fn runs is
// dropped. A non-positive interval disables the job and Every returns at once.
func Every(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) {
	if interval <= 0 {
		return
	}
	if ctx.Err() != nil {
		return
	}

	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fn(ctx)
		case <-ctx.Done():
			return
		}
	}
}
