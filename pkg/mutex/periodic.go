package mutex

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// RunDetectionLoop registers a periodic [Domain.DetectDeadlocks] sweep
// with g, running every interval until ctx is canceled. It is the
// supported way to drive the fair family's on-demand detector from a
// background goroutine: callers that also run other goroutines under the
// same errgroup get a single combined Wait/error instead of hand-rolling
// a WaitGroup and error channel for the sweep loop alongside everything
// else.
func RunDetectionLoop(ctx context.Context, g *errgroup.Group, domain *Domain, interval time.Duration) {
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				domain.DetectDeadlocks()
			}
		}
	})
}
