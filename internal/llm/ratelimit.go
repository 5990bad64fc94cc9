package llm

import (
	"context"
	"time"
)

// paceLimiter is a token-bucket throttle for outbound provider calls:
// at most rps calls per second with an optional burst.
type paceLimiter struct {
	tokens chan struct{}
	stopCh chan struct{}
}

// newPaceLimiter returns nil when rps <= 0; a nil limiter admits every
// call immediately.
func newPaceLimiter(rps float64, burst int) *paceLimiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	l := &paceLimiter{
		tokens: make(chan struct{}, burst),
		stopCh: make(chan struct{}),
	}
	for i := 0; i < burst; i++ {
		l.tokens <- struct{}{}
	}

	period := time.Duration(float64(time.Second) / rps)
	if period <= 0 {
		period = time.Millisecond
	}
	ticker := time.NewTicker(period)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				select {
				case l.tokens <- struct{}{}:
				default:
					// bucket full
				}
			case <-l.stopCh:
				return
			}
		}
	}()
	return l
}

// Acquire blocks until a token is available or ctx is done.
func (l *paceLimiter) Acquire(ctx context.Context) error {
	if l == nil {
		return nil
	}
	select {
	case <-l.tokens:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *paceLimiter) Stop() {
	if l == nil {
		return
	}
	close(l.stopCh)
}
